package bres

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// ErrNilPointer is returned when reading through a null pointer.
var ErrNilPointer = errors.New("nil pointer")

// Container is a loaded BRES file.
type Container struct {
	name   string
	header Header
	layout layout

	bulk      []byte // header + data
	table     []byte // raw offset table
	stringBuf []byte // string table, from the end of the offset table
	strings   *StringStorage
	chunks    *ChunkTable

	entries   []Entry
	relocs    map[Location]Location // pointer field -> target
	entryErrs error

	opts options
}

// Name returns the file name the container was loaded from.
func (c *Container) Name() string { return c.name }

// Header returns a copy of the header, including the processed flag.
func (c *Container) Header() Header { return c.header }

// Entries returns a copy of the offset-table entries.
func (c *Container) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Strings returns the extracted strings.
func (c *Container) Strings() *StringStorage { return c.strings }

// Chunks returns the removable chunk table, nil when the file has none.
func (c *Container) Chunks() *ChunkTable { return c.chunks }

// EntryErrors returns the per-entry failures collected while resolving.
func (c *Container) EntryErrors() []error { return multierr.Errors(c.entryErrs) }

// Relocations returns the number of resolved pointer fields.
func (c *Container) Relocations() int { return len(c.relocs) }

// Context returns the container registered in file context slot.
func (c *Container) Context(slot int) *Container {
	if slot < 0 || slot > 1 {
		return nil
	}
	return c.opts.contexts[slot]
}

// Data returns the location of the first byte of the data section.
func (c *Container) Data() Location {
	return Location{Section: SectionData, Off: c.layout.headerSize}
}

// DataSize returns the length of the data section (related files included).
func (c *Container) DataSize() int64 {
	return c.layout.unremovableEnd - c.layout.stringEnd
}

// Bytes returns n bytes at loc without copying.
func (c *Container) Bytes(loc Location, n int64) ([]byte, error) {
	var buf []byte
	switch loc.Section {
	case SectionHeader, SectionData:
		buf = c.bulk
	case SectionOffsetTable:
		buf = c.table
	case SectionRemovable:
		if loc.Index < 0 || loc.Index >= c.chunks.Len() {
			return nil, fmt.Errorf("%w: chunk %d", ErrOutOfBounds, loc.Index)
		}
		buf = c.chunks.chunks[loc.Index].Data
	case SectionExternal:
		ctx, l, err := c.follow(loc)
		if err != nil {
			return nil, err
		}
		return ctx.Bytes(l, n)
	case SectionNone:
		return nil, ErrNilPointer
	default:
		return nil, fmt.Errorf("%w: %s is not addressable", ErrOutOfBounds, loc)
	}
	if n < 0 || loc.Off < 0 || loc.Off+n > int64(len(buf)) {
		return nil, fmt.Errorf("%w: %d bytes at %s", ErrOutOfBounds, n, loc)
	}
	return buf[loc.Off : loc.Off+n], nil
}

// ReadPointer returns the raw stored value of the pointer field at loc.
func (c *Container) ReadPointer(loc Location) (int64, error) {
	b, err := c.Bytes(loc, PointerSize)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// Deref returns the target of the pointer field at field, and the container
// that target lives in. A null pointer yields a zero Location.
func (c *Container) Deref(field Location) (*Container, Location, error) {
	if field.Section == SectionExternal {
		ctx, l, err := c.follow(field)
		if err != nil {
			return nil, Location{}, err
		}
		return ctx.Deref(l)
	}
	if t, ok := c.relocs[field]; ok {
		return c.resolveTarget(t)
	}

	// Fields missing from the offset table are located on demand.
	raw, err := c.ReadPointer(field)
	if err != nil {
		return nil, Location{}, err
	}
	if raw == 0 {
		return c, Location{}, nil
	}
	t, _, err := c.locate(raw, false)
	if errors.Is(err, errSkip) {
		return c, Location{}, nil
	}
	if err != nil {
		return nil, Location{}, err
	}
	return c.resolveTarget(t)
}

func (c *Container) resolveTarget(t Location) (*Container, Location, error) {
	if t.Section != SectionExternal {
		return c, t, nil
	}
	return c.follow(t)
}

// follow translates an external location into the context container.
func (c *Container) follow(loc Location) (*Container, Location, error) {
	ctx := c.Context(loc.Index)
	if ctx == nil {
		return nil, Location{}, fmt.Errorf("%w: no container in slot %d", ErrExternalContext, loc.Index)
	}
	l, err := ctx.classify(loc.Off, false)
	if errors.Is(err, errSkip) {
		return ctx, Location{}, nil
	}
	if err != nil {
		return nil, Location{}, err
	}
	return ctx, l, nil
}

// String returns the extracted string at loc, "" when loc is not a string.
func (c *Container) String(loc Location) string {
	if loc.Section != SectionString {
		return ""
	}
	return c.strings.Get(loc.Index)
}

// Cursor returns a reader positioned at loc.
func (c *Container) Cursor(loc Location) *Cursor {
	return &Cursor{c: c, loc: loc}
}

// Cursor reads little-endian values sequentially from a Location.
// The first failure sticks; later reads return zero values.
type Cursor struct {
	c   *Container
	loc Location
	err error
}

// Container returns the container the cursor reads from.
func (cur *Cursor) Container() *Container { return cur.c }

// Location returns the current position.
func (cur *Cursor) Location() Location { return cur.loc }

// IsNil reports whether the cursor was produced from a null pointer.
func (cur *Cursor) IsNil() bool { return cur.loc.Nil() }

// Err returns the first read failure.
func (cur *Cursor) Err() error { return cur.err }

// At returns a new cursor off bytes past the current position.
func (cur *Cursor) At(off int64) *Cursor {
	return &Cursor{c: cur.c, loc: cur.loc.Add(off), err: cur.err}
}

// Skip advances by n bytes.
func (cur *Cursor) Skip(n int64) {
	cur.loc = cur.loc.Add(n)
}

func (cur *Cursor) next(n int64) []byte {
	if cur.err != nil {
		return nil
	}
	b, err := cur.c.Bytes(cur.loc, n)
	if err != nil {
		cur.err = err
		return nil
	}
	cur.loc = cur.loc.Add(n)
	return b
}

// U8 reads a uint8.
func (cur *Cursor) U8() uint8 {
	if b := cur.next(1); b != nil {
		return b[0]
	}
	return 0
}

// I8 reads an int8.
func (cur *Cursor) I8() int8 { return int8(cur.U8()) }

// U16 reads a uint16.
func (cur *Cursor) U16() uint16 {
	if b := cur.next(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

// I16 reads an int16.
func (cur *Cursor) I16() int16 { return int16(cur.U16()) }

// U32 reads a uint32.
func (cur *Cursor) U32() uint32 {
	if b := cur.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

// I32 reads an int32.
func (cur *Cursor) I32() int32 { return int32(cur.U32()) }

// I64 reads an int64.
func (cur *Cursor) I64() int64 {
	if b := cur.next(8); b != nil {
		return int64(binary.LittleEndian.Uint64(b))
	}
	return 0
}

// F32 reads a float32.
func (cur *Cursor) F32() float32 {
	return math.Float32frombits(cur.U32())
}

// F32s reads n float32 values.
func (cur *Cursor) F32s(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = cur.F32()
	}
	return out
}

// RawPtr reads a pointer field without following it.
func (cur *Cursor) RawPtr() int64 {
	return cur.I64()
}

// Ptr reads a pointer field and returns a cursor at its target.
// A null pointer yields a cursor for which IsNil is true.
func (cur *Cursor) Ptr() *Cursor {
	field := cur.loc
	if cur.next(PointerSize) == nil {
		return &Cursor{c: cur.c, err: cur.err}
	}
	ctx, target, err := cur.c.Deref(field)
	if err != nil {
		cur.err = fmt.Errorf("pointer at %s: %w", field, err)
		return &Cursor{c: cur.c, err: cur.err}
	}
	return &Cursor{c: ctx, loc: target}
}

// Str reads a pointer field and returns the string it targets.
func (cur *Cursor) Str() string {
	p := cur.Ptr()
	if p.err != nil || p.IsNil() {
		return ""
	}
	return p.c.String(p.loc)
}
