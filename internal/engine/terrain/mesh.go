package terrain

import (
	gomath "math"

	"github.com/Faultbox/bdae-viewer/pkg/formats"
)

// cellSize returns the world distance between grid vertices.
func cellSize(trn *formats.TRN, tileSize float32) float32 {
	if trn.GridSize < 2 {
		return tileSize
	}
	return tileSize / float32(trn.GridSize-1)
}

// tileOrigin returns the world X/Z of a tile's first grid vertex.
func tileOrigin(trn *formats.TRN, tileSize float32) [2]float32 {
	return [2]float32{float32(trn.TileX) * tileSize, float32(trn.TileZ) * tileSize}
}

// BuildMesh creates a terrain mesh from TRN data. Quads are grouped by the
// chunk that contains them; chunks tile the grid as a square.
func BuildMesh(trn *formats.TRN, tileSize float32) *Mesh {
	n := trn.GridSize
	if n < 2 {
		return nil
	}
	cell := cellSize(trn, tileSize)
	origin := tileOrigin(trn, tileSize)

	bounds := Bounds{
		Min: [3]float32{1e10, 1e10, 1e10},
		Max: [3]float32{-1e10, -1e10, -1e10},
	}

	vertices := make([]Vertex, 0, n*n)
	for z := range n {
		for x := range n {
			i := z*n + x
			pos := [3]float32{
				origin[0] + float32(x)*cell,
				trn.Heights[i],
				origin[1] + float32(z)*cell,
			}
			updateBounds(&bounds, pos)

			var normal [3]float32
			if i < len(trn.Normals) {
				normal = trn.Normals[i]
			} else {
				normal = gridNormal(trn, x, z, cell)
			}

			color := [4]float32{1, 1, 1, 1}
			if i < len(trn.Colors) {
				c := trn.Colors[i]
				color = [4]float32{
					float32(c[0]) / 255.0,
					float32(c[1]) / 255.0,
					float32(c[2]) / 255.0,
					float32(c[3]) / 255.0,
				}
			}

			vertices = append(vertices, Vertex{
				Position: pos,
				Normal:   normal,
				TexCoord: [2]float32{float32(x) / float32(n-1), float32(z) / float32(n-1)},
				Color:    color,
			})
		}
	}

	side := chunkSide(len(trn.Chunks))
	chunkIndices := make([][]uint32, max(side*side, 1))
	for z := range n - 1 {
		for x := range n - 1 {
			ch := 0
			if side > 0 {
				cx := x * side / (n - 1)
				cz := z * side / (n - 1)
				ch = cz*side + cx
			}
			tl := uint32(z*n + x)
			tr := tl + 1
			bl := tl + uint32(n)
			br := bl + 1
			chunkIndices[ch] = append(chunkIndices[ch],
				tl, bl, tr,
				tr, bl, br,
			)
		}
	}

	var indices []uint32
	var groups []TextureGroup
	for ch, idxs := range chunkIndices {
		if len(idxs) == 0 {
			continue
		}
		var tex string
		if side > 0 {
			tex = trn.Chunks[ch].Texture
		}
		groups = append(groups, TextureGroup{
			Texture:    tex,
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

// chunkSide returns k when count is k*k, else 0.
func chunkSide(count int) int {
	k := int(gomath.Sqrt(float64(count)))
	for k*k < count {
		k++
	}
	if k*k != count {
		return 0
	}
	return k
}

// gridNormal estimates a vertex normal from neighbouring heights.
func gridNormal(trn *formats.TRN, x, z int, cell float32) [3]float32 {
	dx := trn.Height(x+1, z) - trn.Height(x-1, z)
	dz := trn.Height(x, z+1) - trn.Height(x, z-1)
	return normalize([3]float32{-dx, 2 * cell, -dz})
}

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize(v [3]float32) [3]float32 {
	length := float32(gomath.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
	if length < 0.0001 {
		return [3]float32{0, 1, 0}
	}
	return [3]float32{v[0] / length, v[1] / length, v[2] / length}
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
