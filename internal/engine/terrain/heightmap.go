package terrain

import (
	"github.com/Faultbox/bdae-viewer/pkg/formats"
)

// BuildHeightmap creates a heightmap from TRN data for entity placement.
func BuildHeightmap(trn *formats.TRN, tileSize float32) *Heightmap {
	return &Heightmap{
		Heights:  trn.Heights,
		GridSize: trn.GridSize,
		CellSize: cellSize(trn, tileSize),
		Origin:   tileOrigin(trn, tileSize),
	}
}

// Contains reports whether a world X/Z position lies on the tile.
func (h *Heightmap) Contains(worldX, worldZ float32) bool {
	if h.GridSize < 2 {
		return false
	}
	extent := h.CellSize * float32(h.GridSize-1)
	return worldX >= h.Origin[0] && worldX <= h.Origin[0]+extent &&
		worldZ >= h.Origin[1] && worldZ <= h.Origin[1]+extent
}

func (h *Heightmap) at(x, z int) float32 {
	x = min(max(x, 0), h.GridSize-1)
	z = min(max(z, 0), h.GridSize-1)
	return h.Heights[z*h.GridSize+x]
}

// HeightAt returns the bilinearly interpolated height at a world position.
// Positions off the tile are clamped to its edge.
func (h *Heightmap) HeightAt(worldX, worldZ float32) float32 {
	if h.GridSize == 0 || len(h.Heights) == 0 {
		return 0
	}
	if h.GridSize == 1 {
		return h.Heights[0]
	}

	cellFX := (worldX - h.Origin[0]) / h.CellSize
	cellFZ := (worldZ - h.Origin[1]) / h.CellSize
	cellFX = clampf(cellFX, 0, float32(h.GridSize-1))
	cellFZ = clampf(cellFZ, 0, float32(h.GridSize-1))

	cellX := min(int(cellFX), h.GridSize-2)
	cellZ := min(int(cellFZ), h.GridSize-2)

	fracX := clampf(cellFX-float32(cellX), 0, 1)
	fracZ := clampf(cellFZ-float32(cellZ), 0, 1)

	// Near edge (lower Z) then far edge, blended on Z.
	near := h.at(cellX, cellZ)*(1-fracX) + h.at(cellX+1, cellZ)*fracX
	far := h.at(cellX, cellZ+1)*(1-fracX) + h.at(cellX+1, cellZ+1)*fracX
	return near*(1-fracZ) + far*fracZ
}

func clampf(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
