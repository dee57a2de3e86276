package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/syssam/relgraph/compiler/gen"
	"github.com/syssam/relgraph/schema"
)

// debounce is the quiet period after a model change before regenerating.
const debounce = 200 * time.Millisecond

type generateOptions struct {
	output string
	check  bool
	watch  bool
}

func newGenerateCmd(a *app) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the typed session wrapper of the models",
		Long: `Synthesize the operation table of the models and write a typed Go wrapper
over the session dispatch table, plus an operation reference (docs).

With --check nothing is written; the command fails when the generated code
is missing or was generated from different models.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.check && opts.watch {
				return fmt.Errorf("--check and --watch are mutually exclusive")
			}
			if opts.output == "" {
				opts.output = filepath.Join(a.baseDir(), a.cfg.Generate.Output)
			}
			if opts.check {
				return a.check(cmd, opts)
			}
			if err := a.generate(cmd.Context(), opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "generated %s\n", opts.output)
			if opts.watch {
				return a.watch(cmd.Context(), opts)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output directory (default from config)")
	cmd.Flags().BoolVar(&opts.check, "check", false, "fail if the generated code is stale")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "regenerate when model files change")
	return cmd
}

func (a *app) generator(opts *generateOptions) (*gen.Generator, error) {
	t, err := a.table()
	if err != nil {
		return nil, err
	}
	return gen.NewGenerator(t, opts.output).
		WithPackage(a.cfg.Generate.Package).
		WithDocs(a.cfg.Generate.Docs).
		WithLogger(a.logger), nil
}

func (a *app) generate(ctx context.Context, opts *generateOptions) error {
	g, err := a.generator(opts)
	if err != nil {
		return err
	}
	return g.Generate(ctx)
}

func (a *app) check(cmd *cobra.Command, opts *generateOptions) error {
	g, err := a.generator(opts)
	if err != nil {
		return err
	}
	if err := g.Check(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is up to date\n", opts.output)
	return nil
}

// watch regenerates on every change of a model file until ctx is done.
// Generation errors are logged and watching continues.
func (a *app) watch(ctx context.Context, opts *generateOptions) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	dirs, err := a.modelDirs()
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	a.logger.InfoContext(ctx, "watching models", "dirs", dirs)

	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if isModelFile(ev.Name) && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				a.logger.DebugContext(ctx, "model changed", "file", ev.Name, "op", ev.Op.String())
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.logger.ErrorContext(ctx, "watch error", "error", err)
		case <-timer.C:
			if err := a.generate(ctx, opts); err != nil {
				a.logger.ErrorContext(ctx, "regenerate failed", "error", err)
				continue
			}
			a.logger.InfoContext(ctx, "regenerated", "dir", opts.output)
		}
	}
}

// modelDirs returns the directories holding model files, and the base
// directory so new files are noticed.
func (a *app) modelDirs() ([]string, error) {
	base := a.baseDir()
	dirs := []string{base}
	seen := map[string]bool{base: true}
	paths, err := schema.Glob(os.DirFS(base), a.cfg.Models...)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		dir := filepath.Join(base, filepath.Dir(filepath.FromSlash(p)))
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}

func isModelFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
