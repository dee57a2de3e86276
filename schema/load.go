package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Decode reads every YAML document of r as an entity descriptor.
// A document may also hold a list of descriptors.
func Decode(r io.Reader) ([]*Entity, error) {
	dec := yaml.NewDecoder(r)
	var out []*Entity
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(node.Content) == 0 {
			continue
		}
		switch node.Content[0].Kind {
		case yaml.SequenceNode:
			var es []*Entity
			if err := node.Decode(&es); err != nil {
				return nil, err
			}
			out = append(out, es...)
		default:
			e := &Entity{}
			if err := node.Decode(e); err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	for _, e := range out {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LoadFile reads the entity descriptors of a single file.
func LoadFile(path string) ([]*Entity, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	es, err := Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", path, err)
	}
	return es, nil
}

// LoadFS reads the descriptors of every file in fsys matching one of the
// doublestar patterns (e.g. "models/**/*.yaml"). Files are read in lexical
// order so registration order is stable.
func LoadFS(fsys fs.FS, patterns ...string) ([]*Entity, error) {
	paths, err := Glob(fsys, patterns...)
	if err != nil {
		return nil, err
	}
	var out []*Entity
	for _, p := range paths {
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, err
		}
		es, err := Decode(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("schema: %s: %w", p, err)
		}
		out = append(out, es...)
	}
	return out, nil
}

// LoadDir is LoadFS over a directory on disk.
func LoadDir(dir string, patterns ...string) ([]*Entity, error) {
	return LoadFS(os.DirFS(filepath.Clean(dir)), patterns...)
}

// Glob expands the patterns against fsys, without duplicates, in lexical order per pattern.
func Glob(fsys fs.FS, patterns ...string) ([]string, error) {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("schema: pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}
