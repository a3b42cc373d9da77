// Package anim plays decoded animation sets on a scene graph.
package anim

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/bdae-viewer/internal/engine/scene"
	"github.com/Faultbox/bdae-viewer/internal/logger"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
	"github.com/Faultbox/bdae-viewer/pkg/math"
)

// ErrNoSet is returned when selecting an animation set that is not loaded.
var ErrNoSet = errors.New("animation set not loaded")

// LoopMode is the policy applied when playback time leaves [0, duration].
type LoopMode int

const (
	Loop LoopMode = iota
	PingPong
)

// String returns the loop mode name used in configuration.
func (m LoopMode) String() string {
	switch m {
	case Loop:
		return "loop"
	case PingPong:
		return "pingpong"
	default:
		return fmt.Sprintf("LoopMode(%d)", int(m))
	}
}

// ParseLoopMode parses a configuration loop mode name.
func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(s) {
	case "", "loop":
		return Loop, nil
	case "pingpong", "ping-pong":
		return PingPong, nil
	default:
		return Loop, fmt.Errorf("unknown loop mode %q", s)
	}
}

// track is a channel bound to a node with validated keyframe sources.
type track struct {
	node     int
	property formats.ChannelProperty
	interp   formats.Interpolation
	times    []float32
	values   []float32
	comps    int
	count    int
}

type boundAnimation struct {
	name     string
	duration float32
	tracks   []track
}

type animSet struct {
	name       string
	animations []boundAnimation
}

// Player drives the node poses of one graph. It is not safe for concurrent
// use; the owning model mutates it from one goroutine.
type Player struct {
	graph    *scene.Graph
	sets     []animSet
	current  int
	time     float32
	speed    float32
	mode     LoopMode
	playing  bool
	reversed bool
	scratch  [4]float32
}

// NewPlayer creates a stopped player for g.
func NewPlayer(g *scene.Graph) *Player {
	return &Player{graph: g, speed: 1}
}

// AddSet binds an animation file to the graph and returns its set index.
// Channels whose target is not in the graph or whose sources are
// inconsistent are skipped with a warning.
func (p *Player) AddSet(f *formats.AnimationFile) int {
	set := animSet{name: f.Name}
	for i := range f.Animations {
		set.animations = append(set.animations, p.bind(f.Name, &f.Animations[i]))
	}
	p.sets = append(p.sets, set)
	return len(p.sets) - 1
}

func (p *Player) bind(file string, a *formats.Animation) boundAnimation {
	out := boundAnimation{name: a.Name, duration: a.Duration}
	for ci, ch := range a.Channels {
		warn := func(msg string, fields ...zap.Field) {
			logger.Warn(msg, append([]zap.Field{
				zap.String("file", file),
				zap.String("animation", a.Name),
				zap.Int("channel", ci),
				zap.String("target", ch.Target),
			}, fields...)...)
		}

		node, ok := p.graph.NodeByName(ch.Target)
		if !ok {
			warn("animation target not found")
			continue
		}
		times, values, comps, err := a.Keyframes(ch)
		if err != nil {
			warn("channel skipped", zap.Error(err))
			continue
		}
		if len(times) == 0 {
			continue
		}
		s := a.Samplers[ch.Sampler]

		out.tracks = append(out.tracks, track{
			node:     node,
			property: ch.Property,
			interp:   s.Interpolation,
			times:    times,
			values:   values,
			comps:    comps,
			count:    len(times),
		})
	}
	return out
}

// Sets returns the number of loaded animation sets.
func (p *Player) Sets() int { return len(p.sets) }

// SetName returns the name of set i.
func (p *Player) SetName(i int) string {
	if i < 0 || i >= len(p.sets) {
		return ""
	}
	return p.sets[i].name
}

// Select makes set i current and rewinds.
func (p *Player) Select(i int) error {
	if i < 0 || i >= len(p.sets) {
		return fmt.Errorf("%w: %d", ErrNoSet, i)
	}
	p.current = i
	p.Reset()
	return nil
}

// Current returns the selected set index.
func (p *Player) Current() int { return p.current }

// Play starts advancing time.
func (p *Player) Play() { p.playing = true }

// Pause stops advancing time without rewinding.
func (p *Player) Pause() { p.playing = false }

// Playing reports whether Advance moves time.
func (p *Player) Playing() bool { return p.playing }

// Time returns the current playback time in seconds.
func (p *Player) Time() float32 { return p.time }

// Reversed reports whether ping-pong playback is running backwards.
func (p *Player) Reversed() bool { return p.reversed }

// SetSpeed sets the playback rate multiplier.
func (p *Player) SetSpeed(s float32) { p.speed = s }

// Speed returns the playback rate multiplier.
func (p *Player) Speed() float32 { return p.speed }

// SetLoopMode sets the loop policy.
func (p *Player) SetLoopMode(m LoopMode) { p.mode = m }

// LoopMode returns the loop policy.
func (p *Player) LoopMode() LoopMode { return p.mode }

// Duration returns the longest animation duration of the current set.
func (p *Player) Duration() float32 {
	if len(p.sets) == 0 {
		return 0
	}
	var d float32
	for _, a := range p.sets[p.current].animations {
		d = max(d, a.duration)
	}
	return d
}

// Reset rewinds to zero and restores the default pose.
func (p *Player) Reset() {
	p.time = 0
	p.reversed = false
	p.graph.ResetPose()
}

// Advance moves playback time by dt seconds and poses the graph.
func (p *Player) Advance(dt float32) {
	if !p.playing || len(p.sets) == 0 {
		return
	}
	total := p.Duration()
	if total <= 0 {
		return
	}

	step := dt * p.speed

	switch p.mode {
	case Loop:
		p.time = mod(p.time+step, total)
	case PingPong:
		// Position on the unfolded forward-then-back cycle of length 2*total.
		u := p.time
		if p.reversed {
			u = 2*total - p.time
		}
		u = mod(u+step, 2*total)
		p.reversed = u > total
		if p.reversed {
			u = 2*total - u
		}
		p.time = u
	}
	p.time = max(0, min(p.time, total))

	p.apply()
}

// Seek poses the graph at time t without changing the play state.
func (p *Player) Seek(t float32) {
	if len(p.sets) == 0 {
		return
	}
	p.time = max(0, min(t, p.Duration()))
	p.apply()
}

func (p *Player) apply() {
	for i := range p.sets[p.current].animations {
		a := &p.sets[p.current].animations[i]
		if a.duration <= 0 {
			continue
		}
		at := min(p.time, a.duration)
		for k := range a.tracks {
			p.evaluate(&a.tracks[k], at)
		}
	}
	p.graph.UpdateWorld()
}

func (p *Player) evaluate(tr *track, at float32) {
	at = wrapWindow(at, tr.times[0], tr.times[tr.count-1])
	i, j, t := bracket(tr.times, tr.count, at)
	a := tr.values[i*tr.comps : i*tr.comps+tr.comps]
	b := tr.values[j*tr.comps : j*tr.comps+tr.comps]

	n := &p.graph.Nodes[tr.node]
	switch tr.property {
	case formats.PropRotation:
		n.Rotation = InterpolateQuat(tr.interp, keyQuat(a), keyQuat(b), t)
	case formats.PropTranslation:
		out := p.scratch[:3]
		Interpolate(tr.interp, a[:3], b[:3], t, out)
		n.Translation = math.Vec3FromSlice(out)
	case formats.PropScale:
		out := p.scratch[:3]
		Interpolate(tr.interp, a[:3], b[:3], t, out)
		n.Scale = math.Vec3FromSlice(out)
	}
}
