package metis

import (
	"io/fs"
	"path"
	"strings"
)

// Compiler materializes a template document by identifier.
type Compiler interface {
	Compile(id string, env *Environment) (*Element, error)
}

// CompilerFunc adapts a function to a Compiler.
type CompilerFunc func(id string, env *Environment) (*Element, error)

func (f CompilerFunc) Compile(id string, env *Environment) (*Element, error) { return f(id, env) }

// FileCompiler parses documents from a file system and caches the trees by cleaned path.
// Trees are read-only during execution, so one compiled document can be performed any
// number of times.
type FileCompiler struct {
	fsys    fs.FS
	backend Backend
	cache   map[string]*Element
}

// NewFileCompiler creates a compiler reading from fsys with the given parser backend.
func NewFileCompiler(fsys fs.FS, backend Backend) *FileCompiler {
	return &FileCompiler{fsys: fsys, backend: backend, cache: make(map[string]*Element)}
}

// Compile returns the tree for id, parsing it on first use.
func (c *FileCompiler) Compile(id string, _ *Environment) (*Element, error) {
	name := path.Clean(strings.TrimPrefix(id, "/"))
	if el, ok := c.cache[name]; ok {
		return el, nil
	}
	f, err := c.fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	el, err := ParseReaderWithOptions(f, ParseOptions{Backend: c.backend, DocumentID: name})
	if err != nil {
		return nil, err
	}
	c.cache[name] = el
	return el, nil
}

// Cached reports whether id has already been compiled.
func (c *FileCompiler) Cached(id string) bool {
	_, ok := c.cache[path.Clean(strings.TrimPrefix(id, "/"))]
	return ok
}
