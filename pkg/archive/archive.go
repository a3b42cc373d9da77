// Package archive provides the byte-range providers that model, animation and
// terrain containers are read from: plain directories, zip packs and an
// in-memory set, searched through a priority Manager.
package archive

import (
	"bytes"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned when no archive contains the requested file.
var ErrNotFound = errors.New("file not found")

// File is a readable, seekable stream over one archive entry.
// Close releases the entry (the "drop" of a reference-counted resource).
type File interface {
	io.Reader
	io.Seeker
	io.Closer
	Size() int64
	Name() string
}

// Opener opens entries by name. Archive and Manager implement it.
type Opener interface {
	Open(name string) (File, error)
}

// Archive opens named entries.
type Archive interface {
	Opener
	List() []string
	Close() error
}

// Pos returns the current read position of f.
func Pos(f File) int64 {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	return pos
}

// ReadAll reads the whole of f from the start.
func ReadAll(f File) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, f.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// NormalizePath normalizes an entry name for case-insensitive lookup.
func NormalizePath(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	return strings.ToLower(name)
}

// memFile is a File backed by a byte slice.
type memFile struct {
	*bytes.Reader
	name string
}

// NewMemFile wraps data as a File.
func NewMemFile(name string, data []byte) File {
	return &memFile{Reader: bytes.NewReader(data), name: name}
}

func (f *memFile) Name() string { return f.name }
func (f *memFile) Close() error { return nil }

// Mem is an in-memory archive.
type Mem struct {
	files map[string][]byte
}

// NewMem creates an empty in-memory archive.
func NewMem() *Mem {
	return &Mem{files: make(map[string][]byte)}
}

// Add stores data under name.
func (m *Mem) Add(name string, data []byte) {
	m.files[NormalizePath(name)] = data
}

// Open implements Archive.
func (m *Mem) Open(name string) (File, error) {
	data, ok := m.files[NormalizePath(name)]
	if !ok {
		return nil, ErrNotFound
	}
	return NewMemFile(name, data), nil
}

// List implements Archive.
func (m *Mem) List() []string {
	out := make([]string, 0, len(m.files))
	for name := range m.files {
		out = append(out, name)
	}
	return out
}

// Close implements Archive.
func (m *Mem) Close() error { return nil }
