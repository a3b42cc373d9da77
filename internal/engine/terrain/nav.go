package terrain

import (
	gomath "math"

	"github.com/Faultbox/bdae-viewer/pkg/formats"
)

// BuildNavMesh keeps the collision triangles whose face normal is within
// maxSlope degrees of up. Triangles are tested with either winding.
func BuildNavMesh(phy *formats.PHY, maxSlope float32) *NavMesh {
	nav := &NavMesh{Vertices: phy.Vertices}
	minUp := float32(gomath.Cos(float64(maxSlope) * gomath.Pi / 180))

	for i := 0; i+2 < len(phy.Indices); i += 3 {
		a, b, c := phy.Indices[i], phy.Indices[i+1], phy.Indices[i+2]
		v0, v1, v2 := phy.Vertices[a], phy.Vertices[b], phy.Vertices[c]
		e1 := [3]float32{v1[0] - v0[0], v1[1] - v0[1], v1[2] - v0[2]}
		e2 := [3]float32{v2[0] - v0[0], v2[1] - v0[1], v2[2] - v0[2]}
		n := cross(e1, e2)
		length := float32(gomath.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])))
		if length < 1e-6 {
			nav.Blocked++
			continue
		}
		up := n[1] / length
		if up < 0 {
			up = -up
		}
		if up < minUp {
			nav.Blocked++
			continue
		}
		nav.Indices = append(nav.Indices, uint32(a), uint32(b), uint32(c))
	}
	return nav
}
