// Package brestest assembles synthetic BRES containers for tests.
//
// Records are written into the data section, the string table or removable
// chunks through section-relative Refs. Pointer fields are patched and
// listed in the offset table when Bytes lays the file out.
package brestest

import (
	"encoding/binary"
	"math"

	"github.com/Faultbox/bdae-viewer/pkg/bres"
)

// Sec names the section a Ref is relative to.
type Sec uint8

const (
	Data Sec = iota
	Strings
	Chunk
	Header
	Table
	Meta // removable chunk metadata
)

// Ref is a section-relative position inside the file being built.
type Ref struct {
	Sec   Sec
	Chunk int
	Off   int64
}

// Add returns r advanced by n bytes.
func (r Ref) Add(n int64) Ref {
	r.Off += n
	return r
}

type outer struct {
	at    Ref
	raw   int64
	isRaw bool
}

type field struct {
	at     Ref
	target Ref
	raw    int64
	isRaw  bool
}

// Builder lays out a container.
type Builder struct {
	Origin        uint32 // low 31 bits
	Slot          int    // file context slot, stored in origin bit 31
	Version       uint16
	SkipSelfEntry bool // omit the entry 0 that addresses the offset table
	Separated     bool
	RelatedSize   int
	DynamicSize   int

	strs    []byte
	data    []byte
	chunks  [][]byte
	fields  []field
	entries []outer
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{Version: 1}
}

// AddString appends a length-prefixed string and returns a Ref to its first
// character.
func (b *Builder) AddString(s string) Ref {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	b.strs = append(b.strs, n[:]...)
	ref := Ref{Sec: Strings, Off: int64(len(b.strs))}
	b.strs = append(b.strs, s...)
	return ref
}

// AddRawString appends bytes to the string table verbatim.
func (b *Builder) AddRawString(p []byte) Ref {
	ref := Ref{Sec: Strings, Off: int64(len(b.strs))}
	b.strs = append(b.strs, p...)
	return ref
}

// Alloc reserves n zero bytes in the data section, 4-byte aligned.
func (b *Builder) Alloc(n int) Ref {
	for len(b.data)%4 != 0 {
		b.data = append(b.data, 0)
	}
	ref := Ref{Sec: Data, Off: int64(len(b.data))}
	b.data = append(b.data, make([]byte, n)...)
	return ref
}

// DataLen returns the current data section size.
func (b *Builder) DataLen() int { return len(b.data) }

// AddChunk appends a zeroed removable chunk and returns its index.
func (b *Builder) AddChunk(size int) int {
	b.chunks = append(b.chunks, make([]byte, size))
	return len(b.chunks) - 1
}

// ChunkRef returns a Ref at off inside chunk i.
func ChunkRef(i int, off int64) Ref {
	return Ref{Sec: Chunk, Chunk: i, Off: off}
}

func (b *Builder) buf(r Ref, n int) []byte {
	var s []byte
	switch r.Sec {
	case Data:
		s = b.data
	case Strings:
		s = b.strs
	case Chunk:
		s = b.chunks[r.Chunk]
	default:
		panic("brestest: header and table are not writable")
	}
	return s[r.Off : r.Off+int64(n)]
}

// PutBytes copies p to at.
func (b *Builder) PutBytes(at Ref, p []byte) { copy(b.buf(at, len(p)), p) }

// PutU16 writes a uint16.
func (b *Builder) PutU16(at Ref, v uint16) { binary.LittleEndian.PutUint16(b.buf(at, 2), v) }

// PutU32 writes a uint32.
func (b *Builder) PutU32(at Ref, v uint32) { binary.LittleEndian.PutUint32(b.buf(at, 4), v) }

// PutI32 writes an int32.
func (b *Builder) PutI32(at Ref, v int32) { b.PutU32(at, uint32(v)) }

// PutF32 writes a float32.
func (b *Builder) PutF32(at Ref, v float32) { b.PutU32(at, math.Float32bits(v)) }

// PutF32s writes consecutive float32 values.
func (b *Builder) PutF32s(at Ref, vs ...float32) {
	for i, v := range vs {
		b.PutF32(at.Add(int64(i*4)), v)
	}
}

// PutPtr writes a pointer to target at and lists the field in the offset
// table.
func (b *Builder) PutPtr(at, target Ref) {
	b.fields = append(b.fields, field{at: at, target: target})
	b.entries = append(b.entries, outer{at: at})
}

// PutUnlistedPtr writes a pointer that has no offset-table entry.
func (b *Builder) PutUnlistedPtr(at, target Ref) {
	b.fields = append(b.fields, field{at: at, target: target})
}

// PutRawPtr writes a raw stored value and lists the field.
func (b *Builder) PutRawPtr(at Ref, raw int64) {
	b.fields = append(b.fields, field{at: at, raw: raw, isRaw: true})
	b.entries = append(b.entries, outer{at: at})
}

// AddEntry lists target directly in the offset table.
func (b *Builder) AddEntry(target Ref) {
	b.entries = append(b.entries, outer{at: target})
}

// AddRawEntry lists a raw value in the offset table.
func (b *Builder) AddRawEntry(raw int64) {
	b.entries = append(b.entries, outer{raw: raw, isRaw: true})
}

// ExternalRaw encodes a reference into another file context.
func ExternalRaw(slot int, fileOffset int64, origin uint32) int64 {
	v := (fileOffset + int64(origin)) & 0x7FFFFFFF
	if slot == 1 {
		v |= 0x80000000
	}
	return v
}

// Layout holds the file offsets of a built container.
type Layout struct {
	NumOffsets  int
	TableStart  int64
	TableEnd    int64
	DataStart   int64
	DataEnd     int64
	Removable   int64
	ChunkOffset []int64
	FileSize    int64
}

// Layout computes the file layout for the current content.
func (b *Builder) Layout() Layout {
	var l Layout
	l.NumOffsets = len(b.entries)
	if !b.SkipSelfEntry {
		l.NumOffsets++
	}
	l.TableStart = bres.HeaderSize
	l.TableEnd = l.TableStart + int64(l.NumOffsets)*bres.PointerSize
	l.DataStart = align8(l.TableEnd + int64(len(b.strs)))
	l.DataEnd = l.DataStart + int64(len(b.data))
	l.Removable = l.DataEnd + int64(b.RelatedSize)

	pos := l.Removable + int64(len(b.chunks))*8
	for _, ch := range b.chunks {
		l.ChunkOffset = append(l.ChunkOffset, pos)
		pos += int64(len(ch))
	}
	l.FileSize = pos + int64(b.DynamicSize)
	return l
}

// FileOffset returns the file offset of r. It is only stable once all
// pointer fields and entries have been added.
func (b *Builder) FileOffset(r Ref) int64 {
	return b.Layout().fileOffset(r)
}

// Raw returns the stored pointer value for r.
func (b *Builder) Raw(r Ref) int64 {
	return b.FileOffset(r) + int64(b.Origin)
}

func (l Layout) fileOffset(r Ref) int64 {
	switch r.Sec {
	case Header:
		return r.Off
	case Table:
		return l.TableStart + r.Off
	case Meta:
		return l.Removable + r.Off
	case Strings:
		return l.TableEnd + r.Off
	case Chunk:
		return l.ChunkOffset[r.Chunk] + r.Off
	default:
		return l.DataStart + r.Off
	}
}

// Bytes lays the container out and returns the file image.
func (b *Builder) Bytes() []byte {
	l := b.Layout()
	out := make([]byte, l.FileSize)
	origin := int64(b.Origin)

	// Header.
	copy(out[0:4], bres.Signature)
	le := binary.LittleEndian
	le.PutUint16(out[4:], bres.EndianCheck)
	le.PutUint16(out[6:], b.Version)
	le.PutUint32(out[8:], bres.HeaderSize)
	le.PutUint32(out[12:], uint32(l.FileSize))
	le.PutUint32(out[16:], uint32(l.NumOffsets))
	o := b.Origin & 0x7FFFFFFF
	if b.Slot == 1 {
		o |= 0x80000000
	}
	le.PutUint32(out[20:], o)
	le.PutUint64(out[24:], uint64(l.TableStart))
	le.PutUint64(out[32:], uint64(l.TableEnd))
	le.PutUint64(out[40:], uint64(l.DataStart))
	le.PutUint64(out[48:], uint64(l.DataEnd))
	le.PutUint64(out[56:], uint64(l.Removable))
	le.PutUint32(out[64:], uint32(l.FileSize-int64(b.DynamicSize)-l.Removable))
	le.PutUint32(out[68:], uint32(len(b.chunks)))
	if b.Separated {
		le.PutUint32(out[72:], 1)
	}
	le.PutUint32(out[76:], uint32(b.DynamicSize))

	// Offset table.
	pos := l.TableStart
	if !b.SkipSelfEntry {
		le.PutUint64(out[pos:], uint64(l.TableStart+origin))
		pos += bres.PointerSize
	}
	for _, e := range b.entries {
		v := e.raw
		if !e.isRaw {
			v = l.fileOffset(e.at) + origin
		}
		le.PutUint64(out[pos:], uint64(v))
		pos += bres.PointerSize
	}

	copy(out[l.TableEnd:], b.strs)
	copy(out[l.DataStart:], b.data)
	for i, ch := range b.chunks {
		meta := l.Removable + int64(i)*8
		le.PutUint32(out[meta:], uint32(len(ch)))
		le.PutUint32(out[meta+4:], uint32(l.ChunkOffset[i]))
		copy(out[l.ChunkOffset[i]:], ch)
	}

	for _, f := range b.fields {
		v := f.raw
		if !f.isRaw {
			v = l.fileOffset(f.target) + origin
		}
		le.PutUint64(out[l.fileOffset(f.at):], uint64(v))
	}
	return out
}

// Load builds the container and parses it.
func (b *Builder) Load(name string, opts ...bres.Option) (*bres.Container, error) {
	return bres.Parse(name, b.Bytes(), opts...)
}

func align8(n int64) int64 {
	return (n + 7) &^ 7
}
