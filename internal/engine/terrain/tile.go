package terrain

import (
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/Faultbox/bdae-viewer/internal/engine/model"
	"github.com/Faultbox/bdae-viewer/internal/logger"
	"github.com/Faultbox/bdae-viewer/pkg/archive"
	"github.com/Faultbox/bdae-viewer/pkg/bres"
	"github.com/Faultbox/bdae-viewer/pkg/encoding"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
	"github.com/Faultbox/bdae-viewer/pkg/math"
)

// Options configures tile assembly.
type Options struct {
	TileSize     float32 // world units per tile side
	MaxWalkSlope float32 // degrees from up

	// File name patterns, formatted with the tile X and Z.
	TRNPattern string
	ITMPattern string
	PHYPattern string

	// ModelDir prefixes entity model names.
	ModelDir string

	Decoder *encoding.Decoder
}

// DefaultOptions returns the default tile layout.
func DefaultOptions() Options {
	return Options{
		TileSize:     64,
		MaxWalkSlope: 45,
		TRNPattern:   "terrain/tile_%d_%d.trn",
		ITMPattern:   "terrain/tile_%d_%d.itm",
		PHYPattern:   "terrain/tile_%d_%d.phy",
		ModelDir:     "",
	}
}

// Assembler builds tiles. It is safe for concurrent use when its model
// loader's cache is: each call works on its own containers.
type Assembler struct {
	files  archive.Opener
	models *model.Loader
	opts   Options
}

// NewAssembler creates an assembler. models may be nil to skip entities.
func NewAssembler(files archive.Opener, models *model.Loader, opts Options) *Assembler {
	return &Assembler{files: files, models: models, opts: opts}
}

// Assemble loads and builds the tile at c. The height grid is required;
// entities and collision are optional.
func (a *Assembler) Assemble(c Coord) (*Tile, error) {
	trnC, err := a.open(a.opts.TRNPattern, c)
	if err != nil {
		return nil, err
	}
	trn, err := formats.ParseTRN(trnC, a.opts.Decoder)
	if err != nil {
		return nil, fmt.Errorf("tile %d,%d: %w", c.X, c.Z, err)
	}

	tile := &Tile{
		Coord:     c,
		Mesh:      BuildMesh(trn, a.opts.TileSize),
		Heightmap: BuildHeightmap(trn, a.opts.TileSize),
	}

	if phyC, err := a.open(a.opts.PHYPattern, c); err == nil {
		phy, err := formats.ParsePHY(phyC)
		if err != nil {
			logger.Warn("tile collision skipped",
				zap.Int("x", c.X), zap.Int("z", c.Z), zap.Error(err))
		} else {
			tile.Collision = phy.Vertices
			tile.Nav = BuildNavMesh(phy, a.opts.MaxWalkSlope)
		}
	} else if !errors.Is(err, archive.ErrNotFound) {
		logger.Warn("tile collision unreadable",
			zap.Int("x", c.X), zap.Int("z", c.Z), zap.Error(err))
	}

	if a.models != nil {
		if itmC, err := a.open(a.opts.ITMPattern, c); err == nil {
			tile.Entities = a.entities(c, itmC)
		} else if !errors.Is(err, archive.ErrNotFound) {
			logger.Warn("tile entities unreadable",
				zap.Int("x", c.X), zap.Int("z", c.Z), zap.Error(err))
		}
	}

	logger.Debug("tile assembled",
		zap.Int("x", c.X),
		zap.Int("z", c.Z),
		zap.Int("vertices", len(tile.Mesh.Vertices)),
		zap.Int("entities", len(tile.Entities)))
	return tile, nil
}

func (a *Assembler) entities(c Coord, itm *bres.Container) []Entity {
	placed, err := formats.ParseITM(itm, a.opts.Decoder)
	if err != nil {
		logger.Warn("tile entities skipped",
			zap.Int("x", c.X), zap.Int("z", c.Z), zap.Error(err))
		return nil
	}

	out := make([]Entity, 0, len(placed))
	for _, e := range placed {
		name := e.Model
		if a.opts.ModelDir != "" {
			name = path.Join(a.opts.ModelDir, name)
		}
		m, err := a.models.Load(name)
		if err != nil {
			logger.Warn("entity model not loaded",
				zap.Int("x", c.X), zap.Int("z", c.Z),
				zap.String("model", name), zap.Error(err))
			continue
		}
		out = append(out, Entity{
			Name:  e.Model,
			Model: m,
			Transform: math.FromTRS(
				math.Vec3FromSlice(e.Position[:]),
				math.QuatFromSlice(e.Rotation[:]),
				math.Vec3FromSlice(e.Scale[:])),
		})
	}
	return out
}

func (a *Assembler) open(pattern string, c Coord) (*bres.Container, error) {
	name := fmt.Sprintf(pattern, c.X, c.Z)
	f, err := a.files.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cont, err := bres.Load(f)
	if err != nil {
		return nil, err
	}
	for _, e := range cont.EntryErrors() {
		logger.Warn("tile entry not resolved",
			zap.String("file", name), zap.Error(e))
	}
	return cont, nil
}
