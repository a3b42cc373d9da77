package model

import (
	"sort"

	"github.com/Faultbox/bdae-viewer/internal/engine/scene"
	"github.com/Faultbox/bdae-viewer/pkg/math"
)

// BuildMesh bakes the current pose of g into a flat mesh grouped by
// texture. Skinned vertices are blended on the CPU with the bone skin
// matrices; other meshes are transformed by their node's world matrix.
// Meshes without a node are emitted untransformed.
func BuildMesh(g *scene.Graph, opts BuildOptions) *Mesh {
	if len(g.Positions) == 0 {
		return nil
	}

	vertices := make([]Vertex, len(g.Positions))
	bounds := Bounds{
		Min: [3]float32{1e10, 1e10, 1e10},
		Max: [3]float32{-1e10, -1e10, -1e10},
	}
	skins := g.SkinMatrices()
	texGroups := make(map[int][]uint32)

	for mi := range g.Meshes {
		mesh := &g.Meshes[mi]
		world := math.Identity()
		if mesh.Node >= 0 {
			world = g.Nodes[mesh.Node].World
		}
		skinned := mi == g.SkinMesh

		for v := mesh.VertexBase; v < mesh.VertexBase+mesh.VertexCount; v++ {
			pos := math.Vec3FromSlice(g.Positions[v][:])
			var nrm math.Vec3
			if v < len(g.Normals) {
				nrm = math.Vec3FromSlice(g.Normals[v][:])
			}

			switch {
			case opts.LocalSpace:
			case skinned:
				pos, nrm = skinVertex(g, skins, v, pos, nrm)
			default:
				pos = world.TransformPoint(pos)
				nrm = world.TransformDirection(nrm).Normalize()
			}

			var uv [2]float32
			if v < len(g.UVs) {
				uv = g.UVs[v]
			}
			p := pos.Array()
			updateBounds(&bounds, p)
			vertices[v] = Vertex{Position: p, Normal: nrm.Array(), TexCoord: uv}
		}

		for _, sub := range mesh.Submeshes {
			idx := sub.Indices
			for k := 0; k+2 < len(idx); k += 3 {
				a, b, c := idx[k], idx[k+1], idx[k+2]
				if opts.ReverseWinding {
					a, c = c, a
				}
				texGroups[sub.Texture] = append(texGroups[sub.Texture], a, b, c)
			}
		}
	}

	// Stable group order keeps draw batches deterministic.
	keys := make([]int, 0, len(texGroups))
	for k := range texGroups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var indices []uint32
	var groups []TextureGroup
	for _, texIdx := range keys {
		idxs := texGroups[texIdx]
		groups = append(groups, TextureGroup{
			TextureIdx: texIdx,
			StartIndex: int32(len(indices)),
			IndexCount: int32(len(idxs)),
		})
		indices = append(indices, idxs...)
	}

	return &Mesh{
		Vertices: vertices,
		Indices:  indices,
		Groups:   groups,
		Bounds:   bounds,
	}
}

func skinVertex(g *scene.Graph, skins []math.Mat4, v int, pos, nrm math.Vec3) (math.Vec3, math.Vec3) {
	var outPos, outNrm math.Vec3
	var total float32
	for k := 0; k < 4; k++ {
		w := g.Weights[v][k]
		j := int(g.Joints[v][k])
		if w == 0 || j >= len(skins) {
			continue
		}
		outPos = outPos.Add(skins[j].TransformPoint(pos).Scale(w))
		outNrm = outNrm.Add(skins[j].TransformDirection(nrm).Scale(w))
		total += w
	}
	if total == 0 {
		return pos, nrm
	}
	return outPos.Scale(1 / total), outNrm.Normalize()
}

// CenterMeshXZ centers the mesh horizontally (X/Z) but preserves Y offset.
// Returns the centering offset applied.
func CenterMeshXZ(mesh *Mesh) (centerX, centerZ float32) {
	centerX = (mesh.Bounds.Min[0] + mesh.Bounds.Max[0]) / 2
	centerZ = (mesh.Bounds.Min[2] + mesh.Bounds.Max[2]) / 2

	for i := range mesh.Vertices {
		mesh.Vertices[i].Position[0] -= centerX
		mesh.Vertices[i].Position[2] -= centerZ
	}

	mesh.Bounds.Min[0] -= centerX
	mesh.Bounds.Max[0] -= centerX
	mesh.Bounds.Min[2] -= centerZ
	mesh.Bounds.Max[2] -= centerZ

	return centerX, centerZ
}

// BuildNodeInfo lists the nodes of g in depth-first order.
func BuildNodeInfo(g *scene.Graph) []NodeInfo {
	info := make([]NodeInfo, 0, len(g.Nodes))
	var walk func(idx, depth int)
	walk = func(idx, depth int) {
		n := &g.Nodes[idx]
		ni := NodeInfo{
			ID:          n.ID,
			Depth:       depth,
			MeshName:    n.MeshName,
			BoneName:    n.BoneName,
			Translation: n.Translation.Array(),
			Rotation:    n.Rotation.Array(),
			Scale:       n.Scale.Array(),
			WorldOrigin: n.World.Translation().Array(),
			IsPivot:     n.IsPivot,
			HasPivot:    n.Pivot != math.Identity(),
			LinkedMesh:  n.Mesh,
		}
		if n.Parent >= 0 {
			ni.Parent = g.Nodes[n.Parent].ID
		}
		info = append(info, ni)
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	for _, r := range g.Roots {
		walk(r, 0)
	}
	return info
}

// CountTriangles returns total and untextured triangle counts.
func CountTriangles(g *scene.Graph) (total, untextured int) {
	for i := range g.Meshes {
		for _, sub := range g.Meshes[i].Submeshes {
			n := len(sub.Indices) / 3
			total += n
			if sub.Texture < 0 {
				untextured += n
			}
		}
	}
	return total, untextured
}

func updateBounds(b *Bounds, p [3]float32) {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}
