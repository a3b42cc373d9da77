// Package model owns loaded BDAE models: the resolved container, the scene
// graph, the animation player and pose-baked meshes for rendering.
package model

// Vertex represents a baked mesh vertex with position, normal, and texture coordinates.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	TexCoord [2]float32
}

// TextureGroup groups triangles by texture index for batched rendering.
// TextureIdx is -1 for untextured triangles.
type TextureGroup struct {
	TextureIdx int
	StartIndex int32
	IndexCount int32
}

// Mesh holds the complete baked mesh data ready for GPU upload.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
	Groups   []TextureGroup
	Bounds   Bounds
}

// Bounds holds the axis-aligned bounding box of the model.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Size returns the extent of the box on each axis.
func (b Bounds) Size() [3]float32 {
	return [3]float32{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// NodeInfo describes one scene node for inspection tools.
type NodeInfo struct {
	ID          string
	Parent      string
	Depth       int
	MeshName    string
	BoneName    string
	Translation [3]float32
	Rotation    [4]float32
	Scale       [3]float32
	WorldOrigin [3]float32
	IsPivot     bool
	HasPivot    bool
	LinkedMesh  int
}

// BuildOptions contains options for mesh baking.
type BuildOptions struct {
	// ReverseWinding reverses triangle winding order (for mirrored models).
	ReverseWinding bool
	// LocalSpace skips node and skin transforms and emits bind-space vertices.
	LocalSpace bool
}
