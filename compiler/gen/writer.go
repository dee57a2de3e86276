package gen

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/dave/jennifer/jen"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/imports"
)

// fileTask represents a single file generation task.
type fileTask struct {
	name string    // output file path (relative to outDir)
	code *jen.File // Go source, formatted before writing
	raw  []byte    // any other content, written as is
}

// WriterMetrics tracks generation output.
type WriterMetrics struct {
	FilesGenerated int
	TotalBytes     int64
}

type writer struct {
	outDir  string
	workers int

	mu      sync.Mutex
	metrics WriterMetrics
}

func newWriter(outDir string, workers int) *writer {
	return &writer{outDir: outDir, workers: workers}
}

// writeAll writes the files in parallel.
func (w *writer) writeAll(ctx context.Context, files []fileTask) error {
	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		return &GenerationError{Phase: PhaseWrite, File: w.outDir, Detail: "create output directory", Err: err}
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(w.workers)
	for _, f := range files {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return w.writeFile(f)
			}
		})
	}
	return eg.Wait()
}

func (w *writer) writeFile(f fileTask) error {
	fullPath := filepath.Join(w.outDir, f.name)
	out := f.raw
	if f.code != nil {
		var buf bytes.Buffer
		if err := f.code.Render(&buf); err != nil {
			return &GenerationError{Phase: PhaseRender, File: f.name, Err: err}
		}
		formatted, err := imports.Process(fullPath, buf.Bytes(), nil)
		if err != nil {
			// Keep the unformatted output next to the target for debugging.
			debugPath := fullPath + ".error"
			_ = os.WriteFile(debugPath, buf.Bytes(), 0o644)
			return &GenerationError{Phase: PhaseFormat, File: f.name, Detail: "unformatted output written to " + debugPath, Err: err}
		}
		out = formatted
	}
	if err := os.WriteFile(fullPath, out, 0o644); err != nil {
		return &GenerationError{Phase: PhaseWrite, File: f.name, Err: err}
	}
	w.mu.Lock()
	w.metrics.FilesGenerated++
	w.metrics.TotalBytes += int64(len(out))
	w.mu.Unlock()
	return nil
}

var fingerprintRe = regexp.MustCompile(`const Fingerprint = "([0-9a-f]+)"`)

// Check reports whether the generated session file in the output directory
// was generated from the current operation table. A missing file or a
// different fingerprint is a StaleError.
func (g *Generator) Check() error {
	path := filepath.Join(g.outDir, SessionFile)
	want := g.Fingerprint()
	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &StaleError{File: path, Want: want}
	}
	if err != nil {
		return err
	}
	m := fingerprintRe.FindSubmatch(src)
	if m == nil {
		return &StaleError{File: path, Want: want}
	}
	if got := string(m[1]); got != want {
		return &StaleError{File: path, Want: want, Got: got}
	}
	return nil
}
