package metis

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// LibraryProvider hands out configured handler libraries by identifier.
type LibraryProvider interface {
	TemplateHandlerLibraryForID(id string) (*Library, error)
}

// LibraryRegistry is a threadsafe LibraryProvider. Libraries are registered at start-up;
// the libraries it returns are not themselves safe for concurrent use.
type LibraryRegistry struct {
	mu        sync.RWMutex
	libraries map[string]*Library
}

// NewLibraryRegistry builds an empty registry.
func NewLibraryRegistry() *LibraryRegistry {
	return &LibraryRegistry{libraries: make(map[string]*Library)}
}

// Register adds a library. Returns ErrLibraryExists when the id is taken.
func (r *LibraryRegistry) Register(lib *Library) error {
	if lib == nil {
		return fmt.Errorf("library is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.libraries[lib.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrLibraryExists, lib.ID())
	}
	r.libraries[lib.ID()] = lib
	return nil
}

// List returns the registered ids, sorted.
func (r *LibraryRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.libraries))
	for id := range r.libraries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// TemplateHandlerLibraryForID returns the library registered under id.
func (r *LibraryRegistry) TemplateHandlerLibraryForID(id string) (*Library, error) {
	r.mu.RLock()
	lib, ok := r.libraries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLibrary, id)
	}
	return lib, nil
}

// LibraryConfig is the YAML form of a set of handler libraries.
type LibraryConfig struct {
	Libraries []LibrarySpec `yaml:"libraries"`
}

// LibrarySpec declares one library: its parent, default kind and handler table.
type LibrarySpec struct {
	ID       string        `yaml:"id"`
	Parent   string        `yaml:"parent,omitempty"`
	Default  string        `yaml:"default,omitempty"`
	Builtins bool          `yaml:"builtins,omitempty"`
	Handlers []HandlerSpec `yaml:"handlers,omitempty"`
}

// HandlerSpec binds one (namespace, name) to a handler kind.
type HandlerSpec struct {
	Namespace string `yaml:"namespace,omitempty"`
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
}

// LoadLibrariesFile reads a YAML library configuration from path into r.
func (r *LibraryRegistry) LoadLibrariesFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.LoadLibraries(f)
}

// LoadLibraries reads a YAML library configuration into r. Parents may name libraries
// declared later in the same file or already registered.
func (r *LibraryRegistry) LoadLibraries(src io.Reader) error {
	var cfg LibraryConfig
	dec := yaml.NewDecoder(src)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return &Error{Type: ErrConfiguration, Message: "decode library configuration", Err: err}
	}
	built := make(map[string]*Library, len(cfg.Libraries))
	for _, spec := range cfg.Libraries {
		lib, err := buildLibrary(spec)
		if err != nil {
			return err
		}
		if _, dup := built[spec.ID]; dup {
			return fmt.Errorf("%w: %s", ErrLibraryExists, spec.ID)
		}
		built[spec.ID] = lib
	}
	for _, spec := range cfg.Libraries {
		if spec.Parent == "" {
			continue
		}
		parent, ok := built[spec.Parent]
		if !ok {
			var err error
			if parent, err = r.TemplateHandlerLibraryForID(spec.Parent); err != nil {
				return &Error{Type: ErrConfiguration, Message: fmt.Sprintf("library %q parent", spec.ID), Err: err}
			}
		}
		built[spec.ID].SetParent(parent)
	}
	for _, spec := range cfg.Libraries {
		if err := checkParentChain(built[spec.ID]); err != nil {
			return err
		}
	}
	for _, spec := range cfg.Libraries {
		if err := r.Register(built[spec.ID]); err != nil {
			return err
		}
	}
	return nil
}

func buildLibrary(spec LibrarySpec) (*Library, error) {
	if strings.TrimSpace(spec.ID) == "" {
		return nil, &Error{Type: ErrConfiguration, Message: "library id is required"}
	}
	var lib *Library
	if spec.Builtins {
		lib = DefaultLibrary()
		lib.id = spec.ID
	} else {
		lib = NewLibrary(spec.ID)
	}
	for _, hs := range spec.Handlers {
		h, err := NewHandler(hs.Kind)
		if err != nil {
			return nil, &Error{Type: ErrConfiguration, Message: fmt.Sprintf("library %q handler %q", spec.ID, hs.Name), Err: err}
		}
		lib.Register(hs.Namespace, hs.Name, h)
	}
	if spec.Default != "" {
		kind := spec.Default
		if _, err := NewHandler(kind); err != nil {
			return nil, &Error{Type: ErrConfiguration, Message: fmt.Sprintf("library %q default", spec.ID), Err: err}
		}
		lib.SetDefaultFactory(func() (Handler, error) { return NewHandler(kind) })
	}
	return lib, nil
}

func checkParentChain(lib *Library) error {
	seen := map[*Library]bool{}
	for l := lib; l != nil; l = l.Parent() {
		if seen[l] {
			return &Error{Type: ErrConfiguration, Message: fmt.Sprintf("library %q has a cyclic parent chain", lib.ID())}
		}
		seen[l] = true
	}
	return nil
}

// LoadVariables decodes a YAML mapping of root environment attributes.
func LoadVariables(src io.Reader) (map[string]any, error) {
	vars := map[string]any{}
	if err := yaml.NewDecoder(src).Decode(&vars); err != nil && err != io.EOF {
		return nil, &Error{Type: ErrConfiguration, Message: "decode variables", Err: err}
	}
	return vars, nil
}
