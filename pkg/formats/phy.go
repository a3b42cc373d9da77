package formats

import (
	"errors"
	"fmt"

	"github.com/Faultbox/bdae-viewer/pkg/bres"
)

// ErrInvalidPHY is returned for malformed collision meshes.
var ErrInvalidPHY = errors.New("invalid PHY data")

// PHY is a collision triangle mesh.
type PHY struct {
	Vertices [][3]float32
	Indices  []uint16 // three per triangle
}

// TriangleCount returns the number of triangles.
func (p *PHY) TriangleCount() int { return len(p.Indices) / 3 }

// ParsePHY decodes a collision mesh from a resolved container.
func ParsePHY(c *bres.Container) (*PHY, error) {
	cur := c.Cursor(c.Data())
	vertN := int(cur.U32())
	cur.Skip(4)
	verts := cur.Ptr()
	triN := int(cur.U32())
	cur.Skip(4)
	idx := cur.Ptr()
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPHY, err)
	}
	if vertN > maxCount || triN > maxCount {
		return nil, fmt.Errorf("%w: %d vertices, %d triangles", ErrInvalidPHY, vertN, triN)
	}

	p := &PHY{
		Vertices: make([][3]float32, vertN),
		Indices:  make([]uint16, triN*3),
	}
	for i := range p.Vertices {
		p.Vertices[i] = [3]float32{verts.F32(), verts.F32(), verts.F32()}
	}
	for i := range p.Indices {
		p.Indices[i] = idx.U16()
	}
	if err := firstErr(verts.Err(), idx.Err()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPHY, err)
	}
	for i, v := range p.Indices {
		if int(v) >= vertN {
			return nil, fmt.Errorf("%w: index %d references vertex %d of %d", ErrInvalidPHY, i, v, vertN)
		}
	}
	return p, nil
}
