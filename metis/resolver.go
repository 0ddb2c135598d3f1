package metis

// varEntry is a cached variable binding. Constant entries wrap an attribute value read
// from the environment; bound entries hold an expression supplied through Bind.
type varEntry struct {
	expr     Expression
	constant bool
}

// VariableResolver resolves variable names for one environment, memoizing locally and
// delegating to the enclosing scope's resolver.
type VariableResolver struct {
	env    *Environment
	parent *VariableResolver
	cache  map[string]varEntry
}

func newVariableResolver(env *Environment, parent *VariableResolver) *VariableResolver {
	return &VariableResolver{env: env, parent: parent}
}

// Resolve returns the expression bound to name, if any. Only attributes held by this
// resolver's own environment are cached here; anything else is answered by the parent
// resolver, so a write in an enclosing scope is never shadowed by a stale entry.
func (r *VariableResolver) Resolve(name string) (Expression, bool) {
	if e, ok := r.cache[name]; ok {
		return e.expr, true
	}
	if v, ok := r.env.attrs[name]; ok && v != nil {
		expr := Constant(v)
		r.put(name, varEntry{expr: expr, constant: true})
		return expr, true
	}
	if r.parent != nil {
		return r.parent.Resolve(name)
	}
	return nil, false
}

// Bind associates name with expr in this scope. The expression is evaluated immediately
// and its result stored as the environment attribute name. An expression that reads its
// own name is cached as a constant of that result, so later reads see the stored value
// instead of applying the expression again. A nil expr clears a prior local binding
// together with its attribute.
func (r *VariableResolver) Bind(name string, expr Expression) error {
	if expr == nil {
		if _, ok := r.cache[name]; ok {
			delete(r.cache, name)
			delete(r.env.attrs, name)
		}
		return nil
	}
	v, err := expr.Evaluate(r.env)
	if err != nil {
		return err
	}
	if rv, ok := expr.(variableReader); ok && rv.ReadsVariable(name) {
		r.put(name, varEntry{expr: Constant(v), constant: true})
	} else {
		r.put(name, varEntry{expr: expr})
	}
	r.env.store(name, v)
	return nil
}

// IsConstant reports whether the local entry for name wraps a stored value rather than
// an expression supplied through Bind.
func (r *VariableResolver) IsConstant(name string) bool {
	e, ok := r.cache[name]
	return ok && e.constant
}

func (r *VariableResolver) put(name string, e varEntry) {
	if r.cache == nil {
		r.cache = make(map[string]varEntry)
	}
	r.cache[name] = e
}

// forget drops the local entry so a direct attribute write stays authoritative.
func (r *VariableResolver) forget(name string) {
	delete(r.cache, name)
}

// FunctionResolver resolves prefix:local function names with parent delegation.
type FunctionResolver struct {
	parent *FunctionResolver
	funcs  map[string]Function
}

func newFunctionResolver(parent *FunctionResolver) *FunctionResolver {
	return &FunctionResolver{parent: parent}
}

// Resolve returns the function bound to prefix:local in this scope or an enclosing one.
func (r *FunctionResolver) Resolve(prefix, local string) (Function, bool) {
	key := functionKey(prefix, local)
	for fr := r; fr != nil; fr = fr.parent {
		if fn, ok := fr.funcs[key]; ok {
			return fn, true
		}
	}
	return nil, false
}

// Bind stores fn under prefix:local in this scope; a nil fn removes the local entry.
func (r *FunctionResolver) Bind(prefix, local string, fn Function) {
	key := functionKey(prefix, local)
	if fn == nil {
		delete(r.funcs, key)
		return
	}
	if r.funcs == nil {
		r.funcs = make(map[string]Function)
	}
	r.funcs[key] = fn
}

func functionKey(prefix, local string) string {
	return prefix + ":" + local
}
