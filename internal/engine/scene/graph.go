// Package scene builds the node graph of a BDAE model: nodes with parent and
// child links, name lookup tables, pivot correction, mesh and bone links and
// the global vertex buffer handed to the renderer.
package scene

import (
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/bdae-viewer/internal/logger"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
	"github.com/Faultbox/bdae-viewer/pkg/math"
)

// PivotMarker identifies pivot nodes by ID.
const PivotMarker = "_PIVOT"

// Node is one scene node. Parent and Children are indices into Graph.Nodes.
type Node struct {
	ID       string
	MeshName string
	BoneName string
	Parent   int // -1 for roots
	Children []int

	// Default pose, restored by ResetPose.
	DefaultTranslation math.Vec3
	DefaultRotation    math.Quat
	DefaultScale       math.Vec3

	// Current local pose.
	Translation math.Vec3
	Rotation    math.Quat
	Scale       math.Vec3

	Pivot   math.Mat4 // identity when the node has no pivot
	IsPivot bool

	Hierarchy math.Mat4 // parent hierarchy x local, inherited by children
	World     math.Mat4 // Hierarchy x Pivot

	Mesh int // -1 when no mesh is linked
}

// Local returns the local transform of the current pose.
func (n *Node) Local() math.Mat4 {
	return math.FromTRS(n.Translation, n.Rotation, n.Scale)
}

// Submesh is a triangle list into the global vertex buffer.
type Submesh struct {
	Indices  []uint32
	Material int // -1 when unmatched
	Texture  int // -1 renders untextured
}

// Mesh is a slice of the global vertex buffer.
type Mesh struct {
	Name        string
	Node        int // -1 when no node links the mesh
	VertexBase  int
	VertexCount int
	Submeshes   []Submesh
}

// Bone binds a skin bone to a node.
type Bone struct {
	Name        string
	Node        int // -1 when unmapped
	InverseBind math.Mat4
	Skin        math.Mat4 // node world x inverse bind
}

// Graph is a built scene.
type Graph struct {
	Name      string
	Nodes     []Node
	Roots     []int
	Meshes    []Mesh
	Textures  []formats.BDAETexture
	Materials []formats.BDAEMaterial

	// Global vertex buffer.
	Positions [][3]float32
	Normals   [][3]float32
	UVs       [][2]float32
	Joints    [][4]uint16  // nil unless skinned
	Weights   [][4]float32 // nil unless skinned

	Bones    []Bone
	SkinMesh int // -1 when not skinned

	byID   map[string]int
	byMesh map[string]int
	byBone map[string]int
}

// Build creates the scene graph of a decoded model.
func Build(m *formats.BDAE) (*Graph, error) {
	g := &Graph{
		Name:      m.Name,
		Textures:  m.Textures,
		Materials: m.Materials,
		SkinMesh:  -1,
		byID:      make(map[string]int),
		byMesh:    make(map[string]int),
		byBone:    make(map[string]int),
	}

	for i := range m.Roots {
		g.Roots = append(g.Roots, g.addNode(&m.Roots[i], -1))
	}

	g.buildMeshes(m)
	g.linkMeshes()
	for i := range g.Nodes {
		if g.Nodes[i].Mesh >= 0 {
			g.findPivot(i)
		}
	}
	if m.Skin != nil {
		g.buildSkin(m.Skin)
	}

	g.UpdateWorld()
	return g, nil
}

// addNode registers src and its subtree, parents before children.
func (g *Graph) addNode(src *formats.BDAENode, parent int) int {
	idx := len(g.Nodes)
	t := math.Vec3FromSlice(src.Translation[:])
	r := math.QuatFromSlice(src.Rotation[:])
	s := math.Vec3FromSlice(src.Scale[:])
	g.Nodes = append(g.Nodes, Node{
		ID:                 src.ID,
		MeshName:           src.MeshName,
		BoneName:           src.BoneName,
		Parent:             parent,
		DefaultTranslation: t,
		DefaultRotation:    r,
		DefaultScale:       s,
		Translation:        t,
		Rotation:           r,
		Scale:              s,
		Pivot:              math.Identity(),
		IsPivot:            strings.Contains(src.ID, PivotMarker),
		Hierarchy:          math.Identity(),
		World:              math.Identity(),
		Mesh:               -1,
	})
	register(g.byID, src.ID, idx)
	register(g.byMesh, src.MeshName, idx)
	register(g.byBone, src.BoneName, idx)

	for i := range src.Children {
		child := g.addNode(&src.Children[i], idx)
		g.Nodes[idx].Children = append(g.Nodes[idx].Children, child)
	}
	return idx
}

func register(table map[string]int, name string, idx int) {
	if name == "" {
		return
	}
	if _, ok := table[name]; !ok {
		table[name] = idx
	}
}

// NodeByName resolves a name through the bone, ID and mesh tables in turn.
func (g *Graph) NodeByName(name string) (int, bool) {
	for _, table := range []map[string]int{g.byBone, g.byID, g.byMesh} {
		if idx, ok := table[name]; ok {
			return idx, true
		}
	}
	return -1, false
}

// NodeByID resolves a node by its generic ID only.
func (g *Graph) NodeByID(id string) (int, bool) {
	idx, ok := g.byID[id]
	return idx, ok
}

// buildMeshes fills the global vertex buffer and rebases submesh indices.
func (g *Graph) buildMeshes(m *formats.BDAE) {
	base := 0
	for i := range m.Meshes {
		src := &m.Meshes[i]
		mesh := Mesh{
			Name:        src.Name,
			Node:        -1,
			VertexBase:  base,
			VertexCount: src.VertexCount(),
		}
		g.Positions = append(g.Positions, src.Positions...)
		g.Normals = append(g.Normals, src.Normals...)
		g.UVs = append(g.UVs, src.UVs...)

		for s := range src.Submeshes {
			sub := &src.Submeshes[s]
			out := Submesh{
				Indices:  make([]uint32, len(sub.Indices)),
				Material: sub.Material,
				Texture:  sub.Texture,
			}
			for k, v := range sub.Indices {
				out.Indices[k] = uint32(v) + uint32(base)
			}
			if sub.Texture < 0 {
				logger.Warn("submesh has no texture",
					zap.String("model", m.Name),
					zap.String("mesh", src.Name),
					zap.Int("submesh", s),
					zap.Int("material", sub.Material))
			}
			mesh.Submeshes = append(mesh.Submeshes, out)
		}
		g.Meshes = append(g.Meshes, mesh)
		base += src.VertexCount()
	}
}

// linkMeshes maps each mesh to the first node whose mesh-linking name
// matches exactly.
func (g *Graph) linkMeshes() {
	if len(g.Meshes) == 0 {
		return
	}
	byName := make(map[string]int, len(g.Meshes))
	for i := len(g.Meshes) - 1; i >= 0; i-- {
		byName[g.Meshes[i].Name] = i
	}

	linked := 0
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.MeshName == "" {
			continue
		}
		mi, ok := byName[n.MeshName]
		if !ok || g.Meshes[mi].Node >= 0 {
			continue
		}
		g.Meshes[mi].Node = i
		n.Mesh = mi
		if linked++; linked == len(g.Meshes) {
			return
		}
	}
}

// findPivot folds the first pivot node below a mesh node into that node's
// pivot transform: the product of the locals on the path down to it.
func (g *Graph) findPivot(meshNode int) {
	var walk func(idx int, acc math.Mat4) bool
	walk = func(idx int, acc math.Mat4) bool {
		for _, c := range g.Nodes[idx].Children {
			child := &g.Nodes[c]
			m := acc.Mul(child.Local())
			if child.IsPivot {
				g.Nodes[meshNode].Pivot = m
				return true
			}
			if walk(c, m) {
				return true
			}
		}
		return false
	}
	walk(meshNode, math.Identity())
}

func (g *Graph) buildSkin(s *formats.BDAESkin) {
	g.SkinMesh = s.Mesh
	g.Bones = make([]Bone, len(s.BoneNames))
	for i, name := range s.BoneNames {
		b := &g.Bones[i]
		b.Name = name
		b.InverseBind = math.Mat4(s.InverseBind[i])
		b.Skin = math.Identity()
		idx, ok := g.NodeByName(name)
		if !ok {
			logger.Warn("bone not mapped to a node",
				zap.String("model", g.Name),
				zap.String("bone", name))
			idx = -1
		}
		b.Node = idx
	}

	g.Joints = make([][4]uint16, len(g.Positions))
	g.Weights = make([][4]float32, len(g.Positions))
	mesh := g.Meshes[s.Mesh]
	for v := 0; v < mesh.VertexCount; v++ {
		for k, in := range s.VertexInfluences(v) {
			g.Joints[mesh.VertexBase+v][k] = in.Bone
			g.Weights[mesh.VertexBase+v][k] = in.Weight
		}
	}
}

// Skinned reports whether the graph carries skin data.
func (g *Graph) Skinned() bool {
	return g.SkinMesh >= 0
}

// UpdateWorld recomputes every world transform from the roots down and
// refreshes the skinning matrices.
func (g *Graph) UpdateWorld() {
	for _, r := range g.Roots {
		g.updateNode(r, math.Identity())
	}
	g.updateSkin()
}

func (g *Graph) updateNode(idx int, parent math.Mat4) {
	n := &g.Nodes[idx]
	n.Hierarchy = parent.Mul(n.Local())
	n.World = n.Hierarchy.Mul(n.Pivot)
	for _, c := range n.Children {
		g.updateNode(c, n.Hierarchy)
	}
}

func (g *Graph) updateSkin() {
	for i := range g.Bones {
		b := &g.Bones[i]
		if b.Node < 0 {
			continue
		}
		b.Skin = g.Nodes[b.Node].World.Mul(b.InverseBind)
	}
}

// ResetPose restores every node's default TRS and recomputes transforms.
func (g *Graph) ResetPose() {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		n.Translation = n.DefaultTranslation
		n.Rotation = n.DefaultRotation
		n.Scale = n.DefaultScale
	}
	g.UpdateWorld()
}

// SkinMatrices returns the per-bone skinning matrices in bone order.
func (g *Graph) SkinMatrices() []math.Mat4 {
	out := make([]math.Mat4, len(g.Bones))
	for i := range g.Bones {
		out[i] = g.Bones[i].Skin
	}
	return out
}
