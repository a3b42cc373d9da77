package bres

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Faultbox/bdae-viewer/pkg/archive"
)

// Load reads a container from f and resolves its pointers.
func Load(f archive.File, opts ...Option) (*Container, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c, err := ingest(f, o)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", f.Name(), err)
	}
	if !o.deferResolve {
		// Per-entry failures stay on the container, see EntryErrors.
		_ = c.Resolve()
	}
	return c, nil
}

// Parse loads a container from an in-memory byte slice.
func Parse(name string, data []byte, opts ...Option) (*Container, error) {
	return Load(archive.NewMemFile(name, data), opts...)
}

// ingest is the raw phase: header, offset table, string table, bulk buffer
// and removable chunks are read; nothing is resolved yet.
func ingest(f archive.File, o options) (*Container, error) {
	raw := make([]byte, HeaderSize)
	if err := readAt(f, 0, raw); err != nil {
		return nil, err
	}
	h, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	if int64(h.SizeOfFile) > f.Size() {
		return nil, fmt.Errorf("%w: header declares %d bytes, file has %d", ErrTruncated, h.SizeOfFile, f.Size())
	}
	l, err := newLayout(&h)
	if err != nil {
		return nil, err
	}

	c := &Container{
		name:    f.Name(),
		header:  h,
		layout:  l,
		strings: newStringStorage(),
		relocs:  make(map[Location]Location),
		opts:    o,
	}

	// Offset table.
	c.table = make([]byte, l.offsetTableEnd-l.offsetTableStart)
	if err := readAt(f, l.offsetTableStart, c.table); err != nil {
		return nil, fmt.Errorf("offset table: %w", err)
	}
	c.entries = make([]Entry, h.NumOffsets)
	for i := range c.entries {
		v := int64(binary.LittleEndian.Uint64(c.table[i*PointerSize:]))
		c.entries[i].Outer = Unresolved(v)
	}

	// String table, addressed from the end of the offset table.
	if o.extractStrings {
		c.stringBuf = make([]byte, l.stringEnd-l.offsetTableEnd)
		if err := readAt(f, l.offsetTableEnd, c.stringBuf); err != nil {
			return nil, fmt.Errorf("string table: %w", err)
		}
	}

	// Bulk: the header followed directly by the data section.
	c.bulk = make([]byte, l.bulkSize())
	if err := readAt(f, 0, c.bulk[:l.headerSize]); err != nil {
		return nil, err
	}
	if err := readAt(f, l.stringEnd, c.bulk[l.headerSize:]); err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}

	if h.NumRemovableChunks > 0 {
		chunks, err := readChunks(f, &h, l)
		if err != nil {
			return nil, fmt.Errorf("removable: %w", err)
		}
		c.chunks = chunks
	}
	return c, nil
}

func readChunks(f archive.File, h *Header, l layout) (*ChunkTable, error) {
	n := int(h.NumRemovableChunks)
	meta := make([]byte, n*8)
	if err := readAt(f, l.removableStart, meta); err != nil {
		return nil, err
	}

	t := &ChunkTable{
		chunks:          make([]Chunk, n),
		separated:       h.Separated(),
		headerSize:      l.headerSize,
		unremovableSize: l.bulkSize(),
	}
	for i := range t.chunks {
		t.chunks[i].Size = binary.LittleEndian.Uint32(meta[i*8:])
		t.chunks[i].Offset = binary.LittleEndian.Uint32(meta[i*8+4:])
		end := int64(t.chunks[i].Offset) + int64(t.chunks[i].Size)
		if end > l.fileSize {
			return nil, fmt.Errorf("%w: chunk %d ends at %d", ErrTruncated, i, end)
		}
	}

	if t.separated {
		for i := range t.chunks {
			ch := &t.chunks[i]
			ch.Data = make([]byte, ch.Size)
			if err := readAt(f, int64(ch.Offset), ch.Data); err != nil {
				return nil, fmt.Errorf("chunk %d: %w", i, err)
			}
		}
		return t, nil
	}

	base := int64(t.chunks[0].Offset)
	var end int64
	for i := range t.chunks {
		if int64(t.chunks[i].Offset) < base {
			return nil, fmt.Errorf("%w: chunk %d precedes chunk 0", ErrInvalidLayout, i)
		}
		if e := int64(t.chunks[i].Offset) + int64(t.chunks[i].Size); e > end {
			end = e
		}
	}
	t.payload = make([]byte, end-base)
	if err := readAt(f, base, t.payload); err != nil {
		return nil, err
	}
	for i := range t.chunks {
		ch := &t.chunks[i]
		start := int64(ch.Offset) - base
		ch.Data = t.payload[start : start+int64(ch.Size)]
	}
	return t, nil
}

func readAt(f archive.File, off int64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(f, buf); err != nil {
		return fmt.Errorf("%w: %d bytes at %d: %v", ErrTruncated, len(buf), off, err)
	}
	return nil
}
