package metis

import "fmt"

// Library maps (namespace, local name) to element handlers, falling back to a parent
// library and finally to a lazily created default handler.
type Library struct {
	id       string
	parent   *Library
	table    map[string]map[string]Handler
	factory  func() (Handler, error)
	fallback defaultSlot
}

// defaultSlot caches the default handler once it has been created.
type defaultSlot struct {
	resolved bool
	handler  Handler
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithParent sets the library consulted when no local entry matches.
func WithParent(parent *Library) LibraryOption {
	return func(l *Library) { l.parent = parent }
}

// WithDefaultFactory sets the factory that builds the default handler on first use.
func WithDefaultFactory(f func() (Handler, error)) LibraryOption {
	return func(l *Library) { l.factory = f }
}

// NewLibrary creates an empty library.
func NewLibrary(id string, opts ...LibraryOption) *Library {
	l := &Library{id: id, table: make(map[string]map[string]Handler)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) ID() string       { return l.id }
func (l *Library) Parent() *Library { return l.parent }

// SetParent replaces the parent library.
func (l *Library) SetParent(parent *Library) { l.parent = parent }

// SetDefaultFactory replaces the default handler factory and discards a cached default.
func (l *Library) SetDefaultFactory(f func() (Handler, error)) {
	l.factory = f
	l.fallback = defaultSlot{}
}

// Register binds h to (namespace, name), replacing any previous entry.
func (l *Library) Register(namespace, name string, h Handler) *Library {
	byName, ok := l.table[namespace]
	if !ok {
		byName = make(map[string]Handler)
		l.table[namespace] = byName
	}
	byName[name] = h
	return l
}

// Lookup returns the handler registered locally for (namespace, name).
func (l *Library) Lookup(namespace, name string) (Handler, bool) {
	h, ok := l.table[namespace][name]
	return h, ok
}

// CreateTemplateHandler returns the handler for (namespace, name). It never returns a
// nil handler without an error. When a parent is set the parent's answer is final, so
// this library's own default is only reached by a library without a parent.
func (l *Library) CreateTemplateHandler(namespace, name string) (Handler, error) {
	if h, ok := l.Lookup(namespace, name); ok {
		return h, nil
	}
	if l.parent != nil {
		return l.parent.CreateTemplateHandler(namespace, name)
	}
	return l.DefaultHandler()
}

// DefaultHandler returns the default handler, creating it on first use. Without a
// factory the default is a TraceHandler.
func (l *Library) DefaultHandler() (Handler, error) {
	if l.fallback.resolved {
		return l.fallback.handler, nil
	}
	var h Handler = &TraceHandler{}
	if l.factory != nil {
		created, err := l.factory()
		if err != nil {
			return nil, &Error{Type: ErrConfiguration, Message: fmt.Sprintf("library %q default handler", l.id), Err: err}
		}
		if created == nil {
			return nil, &Error{Type: ErrConfiguration, Message: fmt.Sprintf("library %q default handler factory returned nil", l.id)}
		}
		h = created
	}
	l.fallback = defaultSlot{resolved: true, handler: h}
	return h, nil
}
