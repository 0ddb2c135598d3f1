package metis

import (
	"fmt"
	"io"
	"reflect"
	"strings"
)

// CoreNamespace is the namespace URI of the builtin element handlers.
const CoreNamespace = "urn:metis:core"

// evaluateAttr compiles and evaluates the named attribute of el.
func evaluateAttr(el *Element, env *Environment, attr string, expected reflect.Type) (any, bool, error) {
	text, ok := el.Attribute(attr)
	if !ok {
		return nil, false, nil
	}
	expr, err := createHandle(el, env, attr, text, expected)
	if err != nil {
		return nil, true, err
	}
	v, err := expr.Evaluate(env)
	if err != nil {
		return nil, true, delegationError(el, fmt.Sprintf("evaluate %s=%q", attr, text), err)
	}
	return v, true, nil
}

func createHandle(el *Element, env *Environment, attr, text string, expected reflect.Type) (Expression, error) {
	ev := env.Evaluator()
	if ev == nil {
		return nil, configError(el, attr, ErrNoEvaluator)
	}
	expr, err := ev.CreateValueHandle(env, text, expected)
	if err != nil {
		return nil, configError(el, attr, fmt.Errorf("expression %q: %w", text, err))
	}
	if expr == nil {
		return nil, configError(el, attr, fmt.Errorf("expression %q: evaluator returned no handle", text))
	}
	return expr, nil
}

func requireAttr(el *Element, name string) (string, error) {
	v, ok := el.Attribute(name)
	if !ok {
		return "", missingAttribute(el, name)
	}
	return v, nil
}

// ConditionalHandler runs every direct child whose test attribute is true, in document
// order. All matching children run, not only the first; children without test are skipped.
type ConditionalHandler struct {
	BaseHandler
}

func (ConditionalHandler) Build(el *Element, env *Environment) error {
	for _, child := range el.ChildNodes() {
		v, ok, err := evaluateAttr(child, env, "test", TypeBool)
		if err != nil {
			return err
		}
		if !ok || !v.(bool) {
			continue
		}
		if err := child.PerformIn(env); err != nil {
			return err
		}
	}
	return nil
}

// IfHandler runs its children when its test attribute is true.
type IfHandler struct {
	BaseHandler
}

func (IfHandler) Build(el *Element, env *Environment) error {
	if _, err := requireAttr(el, "test"); err != nil {
		return err
	}
	v, _, err := evaluateAttr(el, env, "test", TypeBool)
	if err != nil {
		return err
	}
	if !v.(bool) {
		return nil
	}
	return BuildChildren(el, env)
}

// IncludeHandler executes the document named by src inside a fresh child scope. The
// element's own children run first in that scope, so they can bind parameters for the
// included document. Inclusion cycles are not detected.
type IncludeHandler struct {
	BaseHandler
}

type includeToken struct {
	src string
}

func (h IncludeHandler) Perform(el *Element, env *Environment) error {
	src, err := requireAttr(el, "src")
	if err != nil {
		return err
	}
	token := &includeToken{src: src}
	return env.WithChildContext(token, func(child *Environment) error {
		if err := h.Prepare(el, child); err != nil {
			return err
		}
		if err := h.Build(el, child); err != nil {
			return err
		}
		cp := child.Compiler()
		if cp == nil {
			return configError(el, "src", ErrNoCompiler)
		}
		doc, err := cp.Compile(src, child)
		if err != nil {
			return delegationError(el, fmt.Sprintf("compile %q", src), err)
		}
		if doc == nil {
			return delegationError(el, fmt.Sprintf("compile %q", src), ErrNoDocument)
		}
		child.Logger().Debug("include", "src", src, "depth", child.Depth())
		if err := doc.PerformIn(child); err != nil {
			return err
		}
		return h.Complete(el, child)
	})
}

// SetHandler binds the variable name to the deferred expression in value.
type SetHandler struct {
	BaseHandler
}

func (SetHandler) Build(el *Element, env *Environment) error {
	name, err := requireAttr(el, "name")
	if err != nil {
		return err
	}
	text, err := requireAttr(el, "value")
	if err != nil {
		return err
	}
	expr, err := createHandle(el, env, "value", text, TypeAny)
	if err != nil {
		return err
	}
	if err := env.VariableResolver().Bind(name, expr); err != nil {
		return delegationError(el, fmt.Sprintf("bind %q", name), err)
	}
	return nil
}

// FunctionHandler binds prefix:name in the function resolver to the body in value.
// params is an optional comma separated list of parameter names.
type FunctionHandler struct {
	BaseHandler
}

func (FunctionHandler) Build(el *Element, env *Environment) error {
	name, err := requireAttr(el, "name")
	if err != nil {
		return err
	}
	text, err := requireAttr(el, "value")
	if err != nil {
		return err
	}
	prefix, _ := el.Attribute("prefix")
	var params []string
	if raw, ok := el.Attribute("params"); ok {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				params = append(params, p)
			}
		}
	}
	ev := env.Evaluator()
	if ev == nil {
		return configError(el, "value", ErrNoEvaluator)
	}
	fn, err := ev.CreateFunctionHandle(env, text, params)
	if err != nil {
		return configError(el, "value", fmt.Errorf("function %q: %w", text, err))
	}
	env.FunctionResolver().Bind(prefix, name, fn)
	return nil
}

// CompositionHandler marks a reusable fragment; it only runs its children in place.
type CompositionHandler struct {
	BaseHandler
}

// OutHandler writes the value of its value attribute to the output.
type OutHandler struct {
	BaseHandler
}

func (OutHandler) Build(el *Element, env *Environment) error {
	if _, err := requireAttr(el, "value"); err != nil {
		return err
	}
	v, _, err := evaluateAttr(el, env, "value", TypeString)
	if err != nil {
		return err
	}
	_, err = io.WriteString(env.Output(), v.(string))
	return err
}

// TextHandler writes the element's character data, interpolating ${...} expressions.
type TextHandler struct {
	BaseHandler
}

func (TextHandler) Build(el *Element, env *Environment) error {
	text, err := interpolateText(el, env)
	if err != nil {
		return err
	}
	_, err = io.WriteString(env.Output(), text)
	return err
}

func interpolateText(el *Element, env *Environment) (string, error) {
	text := el.Text()
	if !strings.Contains(text, "${") {
		return text, nil
	}
	expr, err := createHandle(el, env, "", text, TypeString)
	if err != nil {
		return "", err
	}
	v, err := expr.Evaluate(env)
	if err != nil {
		return "", delegationError(el, "interpolate text", err)
	}
	return v.(string), nil
}

// TraceHandler writes an opening tag with all attributes to the diagnostics writer when
// an element starts and the closing tag when it completes. It is the fallback handler
// for unrecognized elements.
type TraceHandler struct {
	BaseHandler
}

func (TraceHandler) Prepare(el *Element, env *Environment) error {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(el.Name())
	for _, a := range el.Attributes() {
		fmt.Fprintf(&b, " %s=%q", attrName(a.Name), a.Value)
	}
	b.WriteString(">\n")
	_, err := io.WriteString(env.Diagnostics(), b.String())
	return err
}

func (TraceHandler) Complete(el *Element, env *Environment) error {
	_, err := fmt.Fprintf(env.Diagnostics(), "</%s>\n", el.Name())
	return err
}

// UseHandler acquires the service named by service, matching the optional filter, and
// exposes it as the variable named by var to its children in a child scope. The service
// is released when the children finish.
type UseHandler struct {
	BaseHandler
}

type useToken struct {
	service string
}

func (h UseHandler) Perform(el *Element, env *Environment) error {
	name, err := requireAttr(el, "service")
	if err != nil {
		return err
	}
	varName, err := requireAttr(el, "var")
	if err != nil {
		return err
	}
	filter, _ := el.Attribute("filter")
	svc, err := env.AcquireService(name, filter)
	if err != nil {
		return delegationError(el, fmt.Sprintf("acquire service %q", name), err)
	}
	runErr := env.WithChildContext(&useToken{service: name}, func(child *Environment) error {
		child.SetAttribute(varName, svc)
		_, err := runPhases(h, el, child)
		return err
	})
	if err := env.ReleaseService(svc); err != nil && runErr == nil {
		return delegationError(el, fmt.Sprintf("release service %q", name), err)
	}
	return runErr
}
