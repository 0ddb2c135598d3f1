package metis

import (
	"fmt"
	"sort"
)

// HandlerFactory builds a handler instance for a named kind.
type HandlerFactory func() Handler

var builtinKinds = map[string]HandlerFactory{
	"choose":      func() Handler { return ConditionalHandler{} },
	"when":        func() Handler { return CompositionHandler{} },
	"if":          func() Handler { return IfHandler{} },
	"include":     func() Handler { return IncludeHandler{} },
	"set":         func() Handler { return SetHandler{} },
	"function":    func() Handler { return FunctionHandler{} },
	"composition": func() Handler { return CompositionHandler{} },
	"out":         func() Handler { return OutHandler{} },
	"text":        func() Handler { return TextHandler{} },
	"markdown":    func() Handler { return MarkupHandler{Format: FormatMarkdown} },
	"org":         func() Handler { return MarkupHandler{Format: FormatOrg} },
	"use":         func() Handler { return UseHandler{} },
	"trace":       func() Handler { return &TraceHandler{} },
}

// BuiltinKinds returns the names of the builtin handler kinds, sorted.
func BuiltinKinds() []string {
	out := make([]string, 0, len(builtinKinds))
	for k := range builtinKinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewHandler creates a builtin handler by kind name.
func NewHandler(kind string) (Handler, error) {
	f, ok := builtinKinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return f(), nil
}

// DefaultLibrary returns a library binding every builtin kind under its own name, both
// in CoreNamespace and in the empty namespace. Unknown elements fall back to tracing.
func DefaultLibrary() *Library {
	lib := NewLibrary("core")
	for kind, f := range builtinKinds {
		h := f()
		lib.Register(CoreNamespace, kind, h)
		lib.Register("", kind, h)
	}
	return lib
}
