package model

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/bdae-viewer/internal/engine/anim"
	"github.com/Faultbox/bdae-viewer/internal/logger"
	"github.com/Faultbox/bdae-viewer/pkg/archive"
	"github.com/Faultbox/bdae-viewer/pkg/bres"
	"github.com/Faultbox/bdae-viewer/pkg/encoding"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
)

// ErrNoArchive is returned when a loader has no file source.
var ErrNoArchive = errors.New("model loader has no archive")

// LoaderOptions configures container resolution and name decoding.
type LoaderOptions struct {
	ExtractStrings   bool
	MaxStringLen     int
	AnimMaxStringLen int
	Decoder          *encoding.Decoder
}

// DefaultLoaderOptions returns the resolver defaults.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ExtractStrings:   true,
		MaxStringLen:     bres.DefaultMaxStringLen,
		AnimMaxStringLen: bres.AnimationMaxStringLen,
	}
}

// Loader opens models and their animation companions from an archive
// stack, sharing decoded assets through its cache.
type Loader struct {
	files archive.Opener
	cache *Cache
	opts  LoaderOptions
}

// NewLoader creates a loader. A nil cache disables sharing.
func NewLoader(files archive.Opener, cache *Cache, opts LoaderOptions) *Loader {
	return &Loader{files: files, cache: cache, opts: opts}
}

// Cache returns the loader's asset cache, nil when disabled.
func (l *Loader) Cache() *Cache { return l.cache }

// Load returns a new model instance for name. A fatal container or model
// error aborts the load and nothing is cached.
func (l *Loader) Load(name string) (*Model, error) {
	a, err := l.asset(name)
	if err != nil {
		return nil, err
	}
	m, err := newModel(name, a)
	if err != nil {
		return nil, fmt.Errorf("building scene %s: %w", name, err)
	}
	return m, nil
}

func (l *Loader) asset(name string) (*Asset, error) {
	if l.cache != nil {
		if a, ok := l.cache.Get(name); ok {
			return a, nil
		}
	}
	if l.files == nil {
		return nil, ErrNoArchive
	}

	f, err := l.files.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := bres.Load(f,
		bres.WithStrings(l.opts.ExtractStrings),
		bres.WithMaxStringLen(l.opts.MaxStringLen))
	if err != nil {
		return nil, err
	}
	for _, e := range c.EntryErrors() {
		logger.Warn("model entry not resolved",
			zap.String("file", name),
			zap.Error(e))
	}

	data, err := formats.ParseBDAE(c, l.opts.Decoder)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	if data.Name == "" {
		data.Name = name
	}
	logger.Debug("model loaded",
		zap.String("file", name),
		zap.Int("meshes", len(data.Meshes)),
		zap.Int("materials", len(data.Materials)),
		zap.Bool("skinned", data.Skin != nil))

	a := &Asset{Container: c, Data: data}
	if l.cache != nil {
		a = l.cache.Put(name, a)
	}
	return a, nil
}

// LoadAnimations resolves each companion file against m's container and
// adds it to m's player. A file that fails is logged and skipped; the
// number of sets added is returned along with the combined error.
func (l *Loader) LoadAnimations(m *Model, names ...string) (int, error) {
	var errs []error
	added := 0
	for _, name := range names {
		if err := l.loadAnimation(m, name); err != nil {
			logger.Warn("animation file skipped",
				zap.String("model", m.Name),
				zap.String("file", name),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		added++
	}
	return added, multierr.Combine(errs...)
}

func (l *Loader) loadAnimation(m *Model, name string) error {
	if l.files == nil {
		return ErrNoArchive
	}
	f, err := l.files.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	af, err := anim.LoadFile(f, anim.LoadOptions{
		Base:         m.Container,
		MaxStringLen: l.opts.AnimMaxStringLen,
		Decoder:      l.opts.Decoder,
	})
	if err != nil {
		return err
	}
	m.Player.AddSet(af)
	m.Animations = append(m.Animations, af)
	return nil
}
