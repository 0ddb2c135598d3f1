package metis

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// Expression is a compiled, re-evaluatable value expression.
type Expression interface {
	Evaluate(env *Environment) (any, error)
	Text() string
}

// Function is a compiled function body callable from expressions.
type Function interface {
	Invoke(env *Environment, args ...any) (any, error)
	Params() []string
}

// Evaluator turns attribute text into expression and function handles.
type Evaluator interface {
	CreateValueHandle(env *Environment, text string, expected reflect.Type) (Expression, error)
	CreateFunctionHandle(env *Environment, text string, params []string) (Function, error)
}

var (
	// TypeAny accepts the raw evaluation result.
	TypeAny    reflect.Type
	TypeBool   = reflect.TypeOf(false)
	TypeString = reflect.TypeOf("")
	TypeInt    = reflect.TypeOf(0)
	TypeFloat  = reflect.TypeOf(0.0)
)

// Constant wraps a fixed value as an Expression.
func Constant(v any) Expression {
	return constantExpr{value: v}
}

type constantExpr struct {
	value any
}

func (c constantExpr) Evaluate(*Environment) (any, error) { return c.value, nil }
func (c constantExpr) Text() string                       { return fmt.Sprint(c.value) }

// ExprEvaluator compiles attribute text with expr-lang. Text containing ${...} is an
// interpolated string; any other text is a single expression. Identifiers are looked up
// through the environment's variable resolver first, then its function resolver, where
// a bound prefix:local function is called as prefix_local(...).
type ExprEvaluator struct {
	options []expr.Option
}

// NewExprEvaluator creates an evaluator; opts are passed to every expr.Compile call.
func NewExprEvaluator(opts ...expr.Option) *ExprEvaluator {
	return &ExprEvaluator{options: opts}
}

// CreateValueHandle compiles text into an Expression whose results are coerced to expected.
func (ev *ExprEvaluator) CreateValueHandle(_ *Environment, text string, expected reflect.Type) (Expression, error) {
	segs, err := ev.compileSegments(text)
	if err != nil {
		return nil, err
	}
	return &exprHandle{text: text, segs: segs, expected: expected}, nil
}

// CreateFunctionHandle compiles text into a Function whose params shadow variables.
func (ev *ExprEvaluator) CreateFunctionHandle(_ *Environment, text string, params []string) (Function, error) {
	prog, err := ev.compile(text)
	if err != nil {
		return nil, err
	}
	return &exprFunction{text: text, prog: prog, params: params}, nil
}

type program struct {
	prog   *vm.Program
	idents []string
}

type segment struct {
	literal string
	prog    *program
}

func (ev *ExprEvaluator) compileSegments(text string) ([]segment, error) {
	if !strings.Contains(text, "${") {
		prog, err := ev.compile(text)
		if err != nil {
			return nil, err
		}
		return []segment{{prog: prog}}, nil
	}
	var segs []segment
	rest := text
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			if rest != "" {
				segs = append(segs, segment{literal: rest})
			}
			return segs, nil
		}
		if start > 0 {
			segs = append(segs, segment{literal: rest[:start]})
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			return nil, fmt.Errorf("unterminated ${ in %q", text)
		}
		prog, err := ev.compile(rest[start+2 : start+end])
		if err != nil {
			return nil, err
		}
		segs = append(segs, segment{prog: prog})
		rest = rest[start+end+1:]
	}
}

func (ev *ExprEvaluator) compile(src string) (*program, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty expression")
	}
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", src, err)
	}
	opts := append([]expr.Option{expr.AllowUndefinedVariables()}, ev.options...)
	prog, err := expr.Compile(src, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", src, err)
	}
	c := &identCollector{seen: map[string]bool{}}
	ast.Walk(&tree.Node, c)
	return &program{prog: prog, idents: c.names}, nil
}

type identCollector struct {
	seen  map[string]bool
	names []string
}

func (c *identCollector) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok && !c.seen[id.Value] {
		c.seen[id.Value] = true
		c.names = append(c.names, id.Value)
	}
}

// run evaluates p with identifiers resolved from env; extra entries take precedence.
func (p *program) run(env *Environment, extra map[string]any) (any, error) {
	vars := make(map[string]any, len(p.idents)+len(extra))
	for _, name := range p.idents {
		if v, ok := extra[name]; ok {
			vars[name] = v
			continue
		}
		v, ok, err := lookupIdent(env, name)
		if err != nil {
			return nil, err
		}
		if ok {
			vars[name] = v
		}
	}
	return expr.Run(p.prog, vars)
}

func lookupIdent(env *Environment, name string) (any, bool, error) {
	if e, ok := env.VariableResolver().Resolve(name); ok {
		if h, self := e.(*exprHandle); self && h.busy {
			v, present := env.Attribute(name)
			return v, present, nil
		}
		v, err := e.Evaluate(env)
		return v, true, err
	}
	if fn, ok := lookupFunction(env.FunctionResolver(), name); ok {
		return func(args ...any) (any, error) { return fn.Invoke(env, args...) }, true, nil
	}
	return nil, false, nil
}

func lookupFunction(fr *FunctionResolver, name string) (Function, bool) {
	if fn, ok := fr.Resolve("", name); ok {
		return fn, true
	}
	for i := 0; i < len(name); i++ {
		if name[i] != '_' || i == 0 || i == len(name)-1 {
			continue
		}
		if fn, ok := fr.Resolve(name[:i], name[i+1:]); ok {
			return fn, true
		}
	}
	return nil, false
}

// variableReader is implemented by expressions that can report the variables they read.
type variableReader interface {
	ReadsVariable(name string) bool
}

type exprHandle struct {
	text     string
	segs     []segment
	expected reflect.Type
	busy     bool
}

func (h *exprHandle) Text() string { return h.text }

func (h *exprHandle) ReadsVariable(name string) bool {
	for _, s := range h.segs {
		if s.prog == nil {
			continue
		}
		for _, id := range s.prog.idents {
			if id == name {
				return true
			}
		}
	}
	return false
}

// Evaluate runs the expression against env. A handle that refers to its own variable
// while evaluating sees the value stored in the environment.
func (h *exprHandle) Evaluate(env *Environment) (any, error) {
	h.busy = true
	defer func() { h.busy = false }()
	if len(h.segs) == 1 && h.segs[0].prog != nil {
		v, err := h.segs[0].prog.run(env, nil)
		if err != nil {
			return nil, err
		}
		return coerce(v, h.expected)
	}
	var b strings.Builder
	for _, s := range h.segs {
		if s.prog == nil {
			b.WriteString(s.literal)
			continue
		}
		v, err := s.prog.run(env, nil)
		if err != nil {
			return nil, err
		}
		if v != nil {
			fmt.Fprint(&b, v)
		}
	}
	return coerce(b.String(), h.expected)
}

type exprFunction struct {
	text   string
	prog   *program
	params []string
}

func (f *exprFunction) Params() []string { return f.params }

func (f *exprFunction) Invoke(env *Environment, args ...any) (any, error) {
	if len(args) != len(f.params) {
		return nil, fmt.Errorf("function %q expects %d arguments, got %d", f.text, len(f.params), len(args))
	}
	bound := make(map[string]any, len(args))
	for i, p := range f.params {
		bound[p] = args[i]
	}
	return f.prog.run(env, bound)
}

// coerce converts v to the expected type; a nil expected type returns v unchanged.
func coerce(v any, expected reflect.Type) (any, error) {
	if expected == nil {
		return v, nil
	}
	switch expected.Kind() {
	case reflect.Bool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case nil:
			return false, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to bool", b)
			}
			return parsed, nil
		}
	case reflect.String:
		if v == nil {
			return "", nil
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	}
	if v == nil {
		return reflect.Zero(expected).Interface(), nil
	}
	rv := reflect.ValueOf(v)
	if s, ok := v.(string); ok && isNumeric(expected.Kind()) {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to %s", s, expected)
		}
		rv = reflect.ValueOf(f)
	}
	if rv.Type().ConvertibleTo(expected) && (isNumeric(rv.Kind()) == isNumeric(expected.Kind())) {
		return rv.Convert(expected).Interface(), nil
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", v, expected)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
