// Package bres loads and resolves BRES containers, the relocatable binary
// wrapper shared by BDAE models, animations and TRN/ITM/PHY terrain files.
//
// A container stores every pointer as an offset relative to a per-file
// origin and lists the location of each pointer field in an offset table.
// Loading copies the header and the bulk data into one buffer, extracts
// referenced strings into stable storage and indexes removable chunks, then
// walks the offset table twice (the field itself, then the value it holds)
// to turn every stored offset into a Location that can be dereferenced.
package bres

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Container format constants.
const (
	Signature   = "BRES"
	HeaderSize  = 80
	EndianCheck = 0xFEFF
	PointerSize = 8

	versionProcessedBit = 0x8000
	originSlotBit       = 0x80000000
	originValueMask     = 0x7FFFFFFF

	// Offset of the version field inside the header.
	versionFieldOffset = 6
)

// Container errors.
var (
	ErrInvalidSignature = errors.New("invalid container signature: expected 'BRES'")
	ErrTruncated        = errors.New("truncated container data")
	ErrInvalidLayout    = errors.New("invalid container section layout")
	ErrChunkNotFound    = errors.New("no removable chunk contains offset")
	ErrOutOfBounds      = errors.New("location out of bounds")
	ErrNotPointer       = errors.New("location does not hold a pointer")
	ErrExternalContext  = errors.New("invalid external reference")
)

// Header is the fixed 80-byte container header.
type Header struct {
	Signature           [4]byte
	EndianCheck         uint16
	Version             uint16
	SizeOfHeader        uint32
	SizeOfFile          uint32
	NumOffsets          uint32
	Origin              uint32
	OffsetTable         int64
	StringTable         int64
	Data                int64
	RelatedFiles        int64
	Removable           int64
	SizeOfRemovable     uint32
	NumRemovableChunks  uint32
	SeparatedAllocation uint32
	SizeOfDynamicChunk  uint32
}

// Processed reports whether pointer fix-up already ran on this header.
func (h Header) Processed() bool {
	return h.Version&versionProcessedBit != 0
}

// FormatVersion returns the version without the processed flag.
func (h Header) FormatVersion() uint16 {
	return h.Version &^ versionProcessedBit
}

// OriginValue returns the origin all stored offsets are relative to.
func (h Header) OriginValue() int64 {
	return int64(h.Origin & originValueMask)
}

// ContextSlot returns which file-context slot this container occupies.
func (h Header) ContextSlot() int {
	if h.Origin&originSlotBit != 0 {
		return 1
	}
	return 0
}

// Separated reports whether removable chunks are allocated one per buffer.
func (h Header) Separated() bool {
	return h.SeparatedAllocation != 0
}

// ParseHeader decodes and validates a header.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, ErrTruncated
	}
	if string(data[0:4]) != Signature {
		return h, ErrInvalidSignature
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if h.SizeOfHeader < HeaderSize {
		return h, fmt.Errorf("%w: header size %d", ErrInvalidLayout, h.SizeOfHeader)
	}
	return h, nil
}

// layout holds the file-offset boundaries derived from a header.
type layout struct {
	headerSize       int64
	fileSize         int64
	offsetTableStart int64
	offsetTableEnd   int64
	stringEnd        int64 // == data start
	unremovableEnd   int64
	removableStart   int64
}

func newLayout(h *Header) (layout, error) {
	l := layout{
		headerSize:       int64(h.SizeOfHeader),
		fileSize:         int64(h.SizeOfFile),
		offsetTableStart: h.OffsetTable,
		offsetTableEnd:   h.OffsetTable + int64(h.NumOffsets)*PointerSize,
		stringEnd:        h.Data,
		removableStart:   h.Removable,
	}
	if h.NumRemovableChunks > 0 {
		l.unremovableEnd = h.Removable
	} else {
		l.unremovableEnd = l.fileSize - int64(h.SizeOfDynamicChunk)
	}

	ordered := l.headerSize <= l.offsetTableStart &&
		l.offsetTableEnd <= h.StringTable &&
		h.StringTable <= l.stringEnd &&
		l.stringEnd <= l.unremovableEnd &&
		l.unremovableEnd <= l.fileSize
	if !ordered {
		return l, fmt.Errorf("%w: table %d-%d, strings %d-%d, data end %d, file %d",
			ErrInvalidLayout, l.offsetTableStart, l.offsetTableEnd, h.StringTable, l.stringEnd, l.unremovableEnd, l.fileSize)
	}

	// Chunk metadata must fit both the removable section and the file.
	if meta := int64(h.NumRemovableChunks) * 8; meta > 0 {
		if meta > int64(h.SizeOfRemovable) || l.removableStart+meta > l.fileSize {
			return l, fmt.Errorf("%w: %d removable chunks do not fit %d bytes at %d",
				ErrInvalidLayout, h.NumRemovableChunks, h.SizeOfRemovable, l.removableStart)
		}
	}
	return l, nil
}

// dataShift is how far the Data section moves when the header is copied
// directly in front of it in the bulk buffer: the offset table and string
// table that separate them on disk are not part of the bulk. A data-section
// file offset X lives at bulk offset X - dataShift.
func (l layout) dataShift() int64 {
	return l.stringEnd - l.headerSize
}

// bulkSize is the size of the header + data buffer.
func (l layout) bulkSize() int64 {
	return l.headerSize + (l.unremovableEnd - l.stringEnd)
}
