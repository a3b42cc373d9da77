// Package terrain assembles terrain tiles from TRN height grids, ITM entity
// placements and PHY collision meshes, and streams them around a viewer.
package terrain

import (
	"github.com/Faultbox/bdae-viewer/internal/engine/model"
	"github.com/Faultbox/bdae-viewer/pkg/math"
)

// Vertex represents a terrain mesh vertex with all attributes.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	TexCoord [2]float32
	Color    [4]float32
}

// TextureGroup groups triangles by chunk texture for batched rendering.
type TextureGroup struct {
	Texture    string
	StartIndex int32
	IndexCount int32
}

// Mesh holds the complete terrain mesh data ready for GPU upload.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
	Groups   []TextureGroup
	Bounds   Bounds
}

// Bounds holds the axis-aligned bounding box of the terrain.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Heightmap provides terrain height lookup for one tile.
type Heightmap struct {
	Heights  []float32 // row-major [z*GridSize+x]
	GridSize int
	CellSize float32 // world units between grid vertices
	Origin   [2]float32
}

// NavMesh is the walkable subset of a tile's collision mesh.
type NavMesh struct {
	Vertices [][3]float32
	Indices  []uint32
	Blocked  int // collision triangles rejected by slope
}

// TriangleCount returns the number of walkable triangles.
func (n *NavMesh) TriangleCount() int { return len(n.Indices) / 3 }

// Entity is a model placed on a tile.
type Entity struct {
	Name      string
	Model     *model.Model
	Transform math.Mat4
}

// Coord addresses a tile in the tile grid.
type Coord struct {
	X, Z int
}

// Tile is a fully assembled terrain tile. It holds CPU-side data only;
// GPU upload is left to the caller's render goroutine.
type Tile struct {
	Coord     Coord
	Mesh      *Mesh
	Heightmap *Heightmap
	Collision [][3]float32
	Nav       *NavMesh
	Entities  []Entity
}
