package anim

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/bdae-viewer/internal/logger"
	"github.com/Faultbox/bdae-viewer/pkg/archive"
	"github.com/Faultbox/bdae-viewer/pkg/bres"
	"github.com/Faultbox/bdae-viewer/pkg/encoding"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
)

// LoadOptions configures LoadFile.
type LoadOptions struct {
	// Base is the model container external references resolve against.
	Base         *bres.Container
	MaxStringLen int
	Decoder      *encoding.Decoder
}

// LoadFile resolves an animation companion container and decodes its
// library. Recoverable entry errors are logged.
func LoadFile(f archive.File, o LoadOptions) (*formats.AnimationFile, error) {
	maxLen := o.MaxStringLen
	if maxLen <= 0 {
		maxLen = bres.AnimationMaxStringLen
	}
	opts := []bres.Option{bres.WithMaxStringLen(maxLen)}
	if o.Base != nil {
		opts = append(opts, bres.WithContext(0, o.Base))
	}

	c, err := bres.Load(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("load animation %s: %w", f.Name(), err)
	}
	for _, e := range c.EntryErrors() {
		logger.Warn("animation entry not resolved",
			zap.String("file", f.Name()),
			zap.Error(e))
	}

	af, err := formats.ParseAnimations(c, o.Decoder)
	if err != nil {
		return nil, fmt.Errorf("parse animation %s: %w", f.Name(), err)
	}
	if af.Scanned {
		logger.Warn("animation library located by scan",
			zap.String("file", f.Name()),
			zap.Int("animations", len(af.Animations)))
	}
	logger.Debug("animation file loaded",
		zap.String("file", f.Name()),
		zap.Int("animations", len(af.Animations)))
	return af, nil
}
