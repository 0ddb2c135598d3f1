package metis

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
)

// ServiceLookup is the external facility environments forward service requests to.
type ServiceLookup interface {
	AcquireService(name string, filter string) (any, error)
	ReleaseService(svc any) error
}

// config is shared by an environment and every child scope entered from it.
type config struct {
	evaluator   Evaluator
	compiler    Compiler
	library     *Library
	services    ServiceLookup
	output      io.Writer
	diagnostics io.Writer
	logger      *slog.Logger
}

// Option configures a root Environment.
type Option func(*config)

// WithEvaluator sets the expression evaluator used by handlers.
func WithEvaluator(ev Evaluator) Option { return func(c *config) { c.evaluator = ev } }

// WithCompiler sets the compiler used to materialize included documents.
func WithCompiler(cp Compiler) Option { return func(c *config) { c.compiler = cp } }

// WithLibrary sets the handler library elements are dispatched through.
func WithLibrary(lib *Library) Option { return func(c *config) { c.library = lib } }

// WithServices sets the lookup the root environment forwards service requests to.
func WithServices(s ServiceLookup) Option { return func(c *config) { c.services = s } }

// WithOutput sets the writer output handlers render into.
func WithOutput(w io.Writer) Option { return func(c *config) { c.output = w } }

// WithDiagnostics sets the writer trace handlers write to.
func WithDiagnostics(w io.Writer) Option { return func(c *config) { c.diagnostics = w } }

// WithLogger sets the structured logger; the default discards everything.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// Environment is one scope in a chain of nested evaluation scopes.
// It is not safe for concurrent use.
type Environment struct {
	parent *Environment
	attrs  map[string]any
	token  any
	cfg    *config

	vars  *VariableResolver
	funcs *FunctionResolver

	open   int
	closed bool
}

// NewEnvironment creates a root environment.
func NewEnvironment(opts ...Option) *Environment {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.library == nil {
		cfg.library = DefaultLibrary()
	}
	if cfg.evaluator == nil {
		cfg.evaluator = NewExprEvaluator()
	}
	if cfg.output == nil {
		cfg.output = io.Discard
	}
	if cfg.diagnostics == nil {
		cfg.diagnostics = io.Discard
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	env := &Environment{cfg: cfg}
	env.vars = newVariableResolver(env, nil)
	env.funcs = newFunctionResolver(nil)
	return env
}

// Parent returns the enclosing environment, or nil for the root.
func (e *Environment) Parent() *Environment { return e.parent }

// Attribute looks name up in this scope and then in each enclosing scope.
// A name stored with a nil value resolves here and does not fall through.
func (e *Environment) Attribute(name string) (any, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.attrs[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// SetAttribute stores value under name in this scope.
func (e *Environment) SetAttribute(name string, value any) {
	e.vars.forget(name)
	e.store(name, value)
}

// RemoveAttribute deletes the local entry for name; enclosing scopes are untouched.
func (e *Environment) RemoveAttribute(name string) {
	e.vars.forget(name)
	delete(e.attrs, name)
}

func (e *Environment) store(name string, value any) {
	if e.attrs == nil {
		e.attrs = make(map[string]any)
	}
	e.attrs[name] = value
}

// VariableResolver returns this scope's variable resolver layer.
func (e *Environment) VariableResolver() *VariableResolver { return e.vars }

// FunctionResolver returns this scope's function resolver layer.
func (e *Environment) FunctionResolver() *FunctionResolver { return e.funcs }

// Evaluator returns the configured expression evaluator.
func (e *Environment) Evaluator() Evaluator { return e.cfg.evaluator }

// Compiler returns the configured document compiler, or nil.
func (e *Environment) Compiler() Compiler { return e.cfg.compiler }

// Library returns the handler library elements are dispatched through.
func (e *Environment) Library() *Library { return e.cfg.library }

// Output returns the writer output handlers render into.
func (e *Environment) Output() io.Writer { return e.cfg.output }

// Diagnostics returns the writer trace handlers write to.
func (e *Environment) Diagnostics() io.Writer { return e.cfg.diagnostics }

// Logger returns the structured logger.
func (e *Environment) Logger() *slog.Logger { return e.cfg.logger }

// CreateTemplateHandler resolves the handler for an element name through the library.
func (e *Environment) CreateTemplateHandler(namespace, name string) (Handler, error) {
	return e.cfg.library.CreateTemplateHandler(namespace, name)
}

// EnterChildContext opens a child scope owned by token. The caller must close it with
// ExitChildContext using the same token; WithChildContext does both.
func (e *Environment) EnterChildContext(token any) (*Environment, error) {
	if token == nil || !reflect.TypeOf(token).Comparable() {
		return nil, &Error{Type: ErrConfiguration, Message: "enter child context", Err: ErrInvalidToken}
	}
	child := &Environment{parent: e, token: token, cfg: e.cfg}
	child.vars = newVariableResolver(child, e.vars)
	child.funcs = newFunctionResolver(e.funcs)
	e.open++
	return child, nil
}

// ExitChildContext closes a child scope and returns its parent. It must be called on the
// child with the token it was entered with, after every scope entered on the child has
// been exited.
func (e *Environment) ExitChildContext(token any) (*Environment, error) {
	if e.parent == nil || e.closed {
		return nil, scopeError("exit child context", ErrScopeClosed)
	}
	if e.token != token {
		return nil, scopeError(fmt.Sprintf("exit child context: owner %v, got %v", e.token, token), ErrOwnerMismatch)
	}
	if e.open > 0 {
		return nil, scopeError(fmt.Sprintf("exit child context: %d nested scopes still open", e.open), ErrScopesOpen)
	}
	e.closed = true
	e.parent.open--
	return e.parent, nil
}

// WithChildContext enters a child scope, runs fn in it and always exits the scope,
// including when fn fails or panics.
func (e *Environment) WithChildContext(token any, fn func(child *Environment) error) (err error) {
	child, err := e.EnterChildContext(token)
	if err != nil {
		return err
	}
	defer func() {
		if _, exitErr := child.ExitChildContext(token); exitErr != nil {
			err = errors.Join(err, exitErr)
		}
	}()
	return fn(child)
}

// OpenScopes returns how many child scopes entered on e have not been exited.
func (e *Environment) OpenScopes() int { return e.open }

// Depth returns the number of enclosing scopes.
func (e *Environment) Depth() int {
	n := 0
	for env := e.parent; env != nil; env = env.parent {
		n++
	}
	return n
}

// AcquireService forwards to the parent scope, or at the root to the injected lookup.
func (e *Environment) AcquireService(name string, filter string) (any, error) {
	if e.parent != nil {
		return e.parent.AcquireService(name, filter)
	}
	if e.cfg.services == nil {
		return nil, ErrNoServices
	}
	return e.cfg.services.AcquireService(name, filter)
}

// ReleaseService forwards to the parent scope, or at the root to the injected lookup.
func (e *Environment) ReleaseService(svc any) error {
	if e.parent != nil {
		return e.parent.ReleaseService(svc)
	}
	if e.cfg.services == nil {
		return ErrNoServices
	}
	return e.cfg.services.ReleaseService(svc)
}
