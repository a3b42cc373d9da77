package archive

import (
	"archive/zip"
	"fmt"
	"io"
)

// Zip serves entries of a zip pack. Entries are inflated on open since
// the resolver needs random access.
type Zip struct {
	rc      *zip.ReadCloser
	entries map[string]*zip.File
}

// OpenZip opens a zip pack.
func OpenZip(path string) (*Zip, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	z := &Zip{rc: rc, entries: make(map[string]*zip.File)}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		z.entries[NormalizePath(f.Name)] = f
	}
	return z, nil
}

// Open implements Archive.
func (z *Zip) Open(name string) (File, error) {
	entry, ok := z.entries[NormalizePath(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer r.Close()

	data := make([]byte, entry.UncompressedSize64)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("inflating %s: %w", name, err)
	}
	return NewMemFile(name, data), nil
}

// List implements Archive.
func (z *Zip) List() []string {
	out := make([]string, 0, len(z.entries))
	for name := range z.entries {
		out = append(out, name)
	}
	return out
}

// Close implements Archive.
func (z *Zip) Close() error {
	return z.rc.Close()
}
