package formats

import (
	"errors"
	"fmt"

	"github.com/Faultbox/bdae-viewer/pkg/bres"
	"github.com/Faultbox/bdae-viewer/pkg/encoding"
)

// ErrInvalidTRN is returned for malformed terrain tiles.
var ErrInvalidTRN = errors.New("invalid TRN data")

const (
	trnChunkSize   = 16
	maxTRNGridSize = 4096
)

// TRNChunk is the metadata of one terrain chunk.
type TRNChunk struct {
	MinHeight float32
	MaxHeight float32
	Texture   string
}

// TRN is a decoded terrain tile. Grid arrays are row-major, GridSize².
type TRN struct {
	TileX    int32
	TileZ    int32
	GridSize int
	Heights  []float32
	Colors   [][4]uint8
	Normals  [][3]float32
	Chunks   []TRNChunk
}

// Height returns the height at grid cell (x, z), clamped to the grid.
func (t *TRN) Height(x, z int) float32 {
	if t.GridSize == 0 {
		return 0
	}
	x = min(max(x, 0), t.GridSize-1)
	z = min(max(z, 0), t.GridSize-1)
	return t.Heights[z*t.GridSize+x]
}

// ParseTRN decodes a terrain tile from a resolved container.
func ParseTRN(c *bres.Container, dec *encoding.Decoder) (*TRN, error) {
	cur := c.Cursor(c.Data())
	t := &TRN{
		TileX:    cur.I32(),
		TileZ:    cur.I32(),
		GridSize: int(cur.U32()),
	}
	chunkN := int(cur.U32())
	heights := cur.Ptr()
	colors := cur.Ptr()
	normals := cur.Ptr()
	chunks := cur.Ptr()
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidTRN, err)
	}
	if t.GridSize > maxTRNGridSize || chunkN > maxCount {
		return nil, fmt.Errorf("%w: grid %d, %d chunks", ErrInvalidTRN, t.GridSize, chunkN)
	}

	cells := t.GridSize * t.GridSize
	t.Heights = heights.F32s(cells)
	if err := heights.Err(); err != nil {
		return nil, fmt.Errorf("%w: heights: %v", ErrInvalidTRN, err)
	}

	if !colors.IsNil() {
		t.Colors = make([][4]uint8, cells)
		for i := range t.Colors {
			t.Colors[i] = [4]uint8{colors.U8(), colors.U8(), colors.U8(), colors.U8()}
		}
		if err := colors.Err(); err != nil {
			return nil, fmt.Errorf("%w: colors: %v", ErrInvalidTRN, err)
		}
	}

	if !normals.IsNil() {
		t.Normals = make([][3]float32, cells)
		for i := range t.Normals {
			t.Normals[i] = [3]float32{
				max(float32(normals.I8())/127, -1),
				max(float32(normals.I8())/127, -1),
				max(float32(normals.I8())/127, -1),
			}
		}
		if err := normals.Err(); err != nil {
			return nil, fmt.Errorf("%w: normals: %v", ErrInvalidTRN, err)
		}
	}

	t.Chunks = make([]TRNChunk, chunkN)
	for i := range t.Chunks {
		cc := chunks.At(int64(i * trnChunkSize))
		t.Chunks[i] = TRNChunk{
			MinHeight: cc.F32(),
			MaxHeight: cc.F32(),
			Texture:   dec.String(cc.Str()),
		}
		if err := cc.Err(); err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrInvalidTRN, i, err)
		}
	}
	return t, nil
}
