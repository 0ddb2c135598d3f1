package metis

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"strings"
)

// Execute performs root in env and returns when the whole tree has run or the first
// error propagates.
func Execute(root *Element, env *Environment) error {
	env.Logger().Debug("execute", "document", root.Location().Document, "root", root.QualifiedName())
	if err := root.PerformIn(env); err != nil {
		env.Logger().Debug("execute failed", "document", root.Location().Document, "error", err)
		return err
	}
	return nil
}

// RunOptions configures Run.
type RunOptions struct {
	// FS resolves included documents; nil disables inclusion.
	FS          fs.FS
	Backend     Backend
	DocumentID  string
	Library     *Library
	Variables   map[string]any
	Services    ServiceLookup
	Output      io.Writer
	Diagnostics io.Writer
	Logger      *slog.Logger
}

// Run parses src, builds a root environment holding opts.Variables and executes the
// document. The context is only checked before execution starts; traversal itself is
// not interruptible.
func Run(ctx context.Context, src string, opts RunOptions) error {
	root, err := ParseReaderWithOptions(strings.NewReader(src), ParseOptions{Backend: opts.Backend, DocumentID: opts.DocumentID})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return Execute(root, NewRootEnvironment(opts))
}

// NewRootEnvironment builds the root environment described by opts.
func NewRootEnvironment(opts RunOptions) *Environment {
	envOpts := []Option{
		WithLibrary(opts.Library),
		WithOutput(opts.Output),
		WithDiagnostics(opts.Diagnostics),
		WithLogger(opts.Logger),
	}
	if opts.Services != nil {
		envOpts = append(envOpts, WithServices(opts.Services))
	}
	if opts.FS != nil {
		envOpts = append(envOpts, WithCompiler(NewFileCompiler(opts.FS, opts.Backend)))
	}
	env := NewEnvironment(envOpts...)
	for k, v := range opts.Variables {
		env.SetAttribute(k, v)
	}
	return env
}
