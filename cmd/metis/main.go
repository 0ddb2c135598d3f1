// Command metis executes a template document and writes its output to stdout.
//
//	metis -lib libraries.yaml -library app -vars vars.yaml page.xml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/atlas-foundry/metis-go/metis"
)

func main() {
	libFile := flag.String("lib", "", "YAML file declaring handler libraries")
	libID := flag.String("library", "", "library id to dispatch elements through (default: builtins)")
	varsFile := flag.String("vars", "", "YAML file of root variables")
	backend := flag.String("backend", string(metis.BackendXML), "parser backend: xml|html")
	trace := flag.Bool("trace", false, "write trace output of unhandled elements to stderr")
	verbose := flag.Bool("v", false, "debug logging")
	listKinds := flag.Bool("kinds", false, "list builtin handler kinds and exit")
	flag.Parse()

	if *listKinds {
		for _, k := range metis.BuiltinKinds() {
			fmt.Println(k)
		}
		return
	}
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: metis [flags] template.xml")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, flag.Arg(0), options{
		libFile:  *libFile,
		libID:    *libID,
		varsFile: *varsFile,
		backend:  metis.Backend(*backend),
		trace:    *trace,
	}, logger); err != nil {
		logger.Error("execution failed", "template", flag.Arg(0), "error", err)
		var me *metis.Error
		if errors.As(err, &me) && me.Type == metis.ErrConfiguration {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

type options struct {
	libFile  string
	libID    string
	varsFile string
	backend  metis.Backend
	trace    bool
}

func run(ctx context.Context, path string, opts options, logger *slog.Logger) error {
	var lib *metis.Library
	if opts.libFile != "" {
		reg := metis.NewLibraryRegistry()
		if err := reg.LoadLibrariesFile(opts.libFile); err != nil {
			return err
		}
		logger.Debug("loaded libraries", "file", opts.libFile, "ids", reg.List())
		if opts.libID != "" {
			var err error
			if lib, err = reg.TemplateHandlerLibraryForID(opts.libID); err != nil {
				return err
			}
		}
	} else if opts.libID != "" {
		return fmt.Errorf("-library %q requires -lib", opts.libID)
	}

	vars := map[string]any{}
	if opts.varsFile != "" {
		f, err := os.Open(opts.varsFile)
		if err != nil {
			return err
		}
		vars, err = metis.LoadVariables(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	root, err := metis.ParseFile(path, opts.backend)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var diag io.Writer = io.Discard
	if opts.trace {
		diag = os.Stderr
	}
	dir := filepath.Dir(path)
	env := metis.NewRootEnvironment(metis.RunOptions{
		FS:          os.DirFS(dir),
		Backend:     opts.backend,
		Library:     lib,
		Variables:   vars,
		Output:      os.Stdout,
		Diagnostics: diag,
		Logger:      logger,
	})
	return metis.Execute(root, env)
}
