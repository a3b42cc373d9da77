package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dir serves files from a directory tree. Lookups are case-insensitive:
// the tree is indexed once on open.
type Dir struct {
	root  string
	index map[string]string
}

// osFile adapts *os.File to File.
type osFile struct {
	*os.File
	name string
	size int64
}

func (f *osFile) Size() int64  { return f.size }
func (f *osFile) Name() string { return f.name }

// OpenDir indexes root for reading.
func OpenDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	d := &Dir{root: root, index: make(map[string]string)}
	err = filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		d.index[NormalizePath(filepath.ToSlash(rel))] = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", root, err)
	}
	return d, nil
}

// Open implements Archive.
func (d *Dir) Open(name string) (File, error) {
	p, ok := d.index[NormalizePath(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &osFile{File: f, name: strings.TrimPrefix(name, "/"), size: info.Size()}, nil
}

// List implements Archive.
func (d *Dir) List() []string {
	out := make([]string, 0, len(d.index))
	for name := range d.index {
		out = append(out, name)
	}
	return out
}

// Close implements Archive.
func (d *Dir) Close() error { return nil }
