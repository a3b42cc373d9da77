package bres

import "fmt"

// removableStrideFactor is the chunk spacing, in header sizes, assumed by
// the direct index guess.
const removableStrideFactor = 4

// Chunk is one removable (streamable) chunk.
type Chunk struct {
	Size   uint32
	Offset uint32 // file offset
	Data   []byte
}

// contains reports whether file offset off lies inside the chunk.
func (c *Chunk) contains(off int64) bool {
	return off >= int64(c.Offset) && off < int64(c.Offset)+int64(c.Size)
}

// ChunkTable indexes the removable chunks of a container.
type ChunkTable struct {
	chunks    []Chunk
	separated bool
	payload   []byte // contiguous allocation, nil when separated

	headerSize      int64
	unremovableSize int64
}

// Len returns the number of chunks.
func (t *ChunkTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.chunks)
}

// Chunk returns chunk i.
func (t *ChunkTable) Chunk(i int) *Chunk {
	return &t.chunks[i]
}

// Separated reports the allocation mode.
func (t *ChunkTable) Separated() bool {
	return t.separated
}

// directIndex guesses the chunk holding off from the fixed stride the
// format normally uses. The guess may be out of range or wrong.
func (t *ChunkTable) directIndex(off int64) int {
	stride := t.headerSize * removableStrideFactor
	if stride <= 0 {
		return -1
	}
	rel := off - t.unremovableSize - t.headerSize
	if rel < 0 {
		return -1
	}
	return int(rel / stride)
}

// scanIndex walks chunk boundaries linearly.
func (t *ChunkTable) scanIndex(off int64) int {
	for i := range t.chunks {
		if t.chunks[i].contains(off) {
			return i
		}
	}
	return -1
}

// Find returns the chunk containing file offset off: the direct guess when
// it checks out, the linear scan otherwise.
func (t *ChunkTable) Find(off int64) (int, error) {
	if t.Len() == 0 {
		return -1, fmt.Errorf("%w: %d (no chunks)", ErrChunkNotFound, off)
	}
	if idx := t.directIndex(off); idx >= 0 && idx < len(t.chunks) && t.chunks[idx].contains(off) {
		return idx, nil
	}
	if idx := t.scanIndex(off); idx >= 0 {
		return idx, nil
	}
	return -1, fmt.Errorf("%w: %d", ErrChunkNotFound, off)
}
