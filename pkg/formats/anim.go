package formats

import (
	"errors"
	"fmt"

	"github.com/Faultbox/bdae-viewer/pkg/bres"
	"github.com/Faultbox/bdae-viewer/pkg/encoding"
)

// Animation format errors.
var (
	ErrAnimLibraryNotFound = errors.New("animation library block not found")
	ErrInvalidAnimation    = errors.New("invalid animation data")
	ErrChannelMismatch     = errors.New("channel keyframe sources disagree")
)

// AnimationFPS is the frame rate timestamps are stored in.
const AnimationFPS = 30

const (
	animLibraryPtrOffset = 16
	animRecordSize       = 40
	animSamplerSize      = 28
	animChannelSize      = 24
	animSourceSize       = 16
)

// Interpolation selects how a sampler blends between keyframes.
type Interpolation uint32

const (
	InterpStep    Interpolation = 0
	InterpLinear  Interpolation = 1
	InterpHermite Interpolation = 2
)

// String returns the interpolation name.
func (i Interpolation) String() string {
	switch i {
	case InterpStep:
		return "Step"
	case InterpLinear:
		return "Linear"
	case InterpHermite:
		return "Hermite"
	default:
		return fmt.Sprintf("Unknown(%d)", i)
	}
}

// ChannelProperty is the node property a channel animates.
type ChannelProperty uint32

const (
	PropTranslation ChannelProperty = 0
	PropRotation    ChannelProperty = 1
	PropScale       ChannelProperty = 2
)

// String returns the property name.
func (p ChannelProperty) String() string {
	switch p {
	case PropTranslation:
		return "Translation"
	case PropRotation:
		return "Rotation"
	case PropScale:
		return "Scale"
	default:
		return fmt.Sprintf("Unknown(%d)", p)
	}
}

// Components returns the number of values per keyframe for p.
func (p ChannelProperty) Components() int {
	if p == PropRotation {
		return 4
	}
	return 3
}

// ElementType is the storage type of keyframe source values.
type ElementType uint32

const (
	ElemFloat32 ElementType = 0
	ElemInt8    ElementType = 1
	ElemUint8   ElementType = 2
	ElemInt16   ElementType = 3
	ElemUint16  ElementType = 4
)

// Size returns the element size in bytes, 0 if unknown.
func (e ElementType) Size() int {
	switch e {
	case ElemFloat32:
		return 4
	case ElemInt8, ElemUint8:
		return 1
	case ElemInt16, ElemUint16:
		return 2
	default:
		return 0
	}
}

// AnimSource is a flattened keyframe source. Input sources hold seconds,
// integer output sources are normalised.
type AnimSource struct {
	Type   ElementType
	Values []float32
}

// AnimSampler pairs an input (time) source with an output (value) source.
type AnimSampler struct {
	Interpolation    Interpolation
	Input            int
	Output           int
	InputComponents  int
	OutputComponents int
	InputType        ElementType
	OutputType       ElementType
}

// AnimChannel drives one property of a named node.
type AnimChannel struct {
	Target   string
	Property ChannelProperty
	Sampler  int
}

// Animation is one clip.
type Animation struct {
	Name     string
	Samplers []AnimSampler
	Channels []AnimChannel
	Sources  []AnimSource
	Duration float32 // seconds
}

// Keyframes returns the time and value arrays of ch, trimmed to the
// effective keyframe count len(values)/comps. A time source shorter than
// the values is tolerated; a longer one, or a dangling index, is an
// ErrChannelMismatch.
func (a *Animation) Keyframes(ch AnimChannel) (times, values []float32, comps int, err error) {
	if ch.Sampler < 0 || ch.Sampler >= len(a.Samplers) {
		return nil, nil, 0, fmt.Errorf("%w: sampler %d out of range", ErrChannelMismatch, ch.Sampler)
	}
	s := a.Samplers[ch.Sampler]
	if s.Input < 0 || s.Input >= len(a.Sources) || s.Output < 0 || s.Output >= len(a.Sources) {
		return nil, nil, 0, fmt.Errorf("%w: sources %d/%d out of range", ErrChannelMismatch, s.Input, s.Output)
	}

	comps = ch.Property.Components()
	if s.OutputComponents > 0 && s.OutputComponents < comps {
		return nil, nil, 0, fmt.Errorf("%w: %d components for %s", ErrChannelMismatch, s.OutputComponents, ch.Property)
	}
	comps = max(comps, s.OutputComponents)

	times = a.Sources[s.Input].Values
	values = a.Sources[s.Output].Values
	count := len(values) / comps
	if len(times) > count {
		return nil, nil, 0, fmt.Errorf("%w: %d times for %d values", ErrChannelMismatch, len(times), count)
	}
	count = len(times)
	return times[:count], values[:count*comps], comps, nil
}

// AnimationFile is a decoded animation companion container.
type AnimationFile struct {
	Name       string
	Animations []Animation
	Scanned    bool // library located by fingerprint scan
}

// ParseAnimations decodes the animation library of a companion container.
// dec may be nil.
func ParseAnimations(c *bres.Container, dec *encoding.Decoder) (*AnimationFile, error) {
	pre := c.Cursor(c.Data())
	f := &AnimationFile{Name: dec.String(pre.Str())}
	count := int(pre.U32())
	if err := pre.Err(); err != nil {
		return nil, fmt.Errorf("%w: preamble: %v", ErrInvalidAnimation, err)
	}
	if count == 0 {
		return f, nil
	}
	if count > maxCount {
		return nil, fmt.Errorf("%w: %d animations", ErrInvalidAnimation, count)
	}

	lib, scanned, err := findLibrary(c, count)
	if err != nil {
		return nil, err
	}
	f.Scanned = scanned

	lib.Skip(8) // entries, pad
	records := lib.Ptr()
	if err := lib.Err(); err != nil {
		return nil, fmt.Errorf("%w: library: %v", ErrInvalidAnimation, err)
	}

	f.Animations = make([]Animation, count)
	for i := range f.Animations {
		if err := parseAnimation(records.At(int64(i*animRecordSize)), dec, &f.Animations[i]); err != nil {
			return nil, fmt.Errorf("animation %d: %w", i, err)
		}
	}
	return f, nil
}

// findLibrary returns a cursor at the library block. The stored pointer is
// used when present and consistent; otherwise the data section is scanned
// for a u32 equal to twice the animation count followed by a pointer into
// the data section.
func findLibrary(c *bres.Container, count int) (*bres.Cursor, bool, error) {
	want := uint32(2 * count)

	lib := c.Cursor(c.Data().Add(animLibraryPtrOffset)).Ptr()
	if lib.Err() == nil && !lib.IsNil() && lib.At(0).U32() == want {
		return lib, false, nil
	}

	size := c.DataSize()
	for off := int64(animLibraryPtrOffset + bres.PointerSize); off+16 <= size; off += 4 {
		cur := c.Cursor(c.Data().Add(off))
		if cur.U32() != want {
			continue
		}
		cur.Skip(4)
		target := cur.Ptr()
		if cur.Err() != nil || target.IsNil() || target.Location().Section != bres.SectionData {
			continue
		}
		return c.Cursor(c.Data().Add(off)), true, nil
	}
	return nil, false, fmt.Errorf("%w: no block with %d entries", ErrAnimLibraryNotFound, want)
}

func parseAnimation(cur *bres.Cursor, dec *encoding.Decoder, a *Animation) error {
	a.Name = dec.String(cur.Str())
	samplers := cur.Ptr()
	channels := cur.Ptr()
	sources := cur.Ptr()
	samplerN := int(cur.U16())
	channelN := int(cur.U16())
	sourceN := int(cur.U16())
	if err := cur.Err(); err != nil {
		return err
	}

	a.Samplers = make([]AnimSampler, samplerN)
	for i := range a.Samplers {
		sc := samplers.At(int64(i * animSamplerSize))
		a.Samplers[i] = AnimSampler{
			Interpolation:    Interpolation(sc.U32()),
			Input:            int(sc.U32()),
			Output:           int(sc.U32()),
			InputComponents:  int(sc.U32()),
			OutputComponents: int(sc.U32()),
			InputType:        ElementType(sc.U32()),
			OutputType:       ElementType(sc.U32()),
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("sampler %d: %w", i, err)
		}
	}

	a.Channels = make([]AnimChannel, channelN)
	for i := range a.Channels {
		cc := channels.At(int64(i * animChannelSize))
		a.Channels[i] = AnimChannel{
			Target:   dec.String(cc.Str()),
			Property: ChannelProperty(cc.U32()),
			Sampler:  int(cc.U32()),
		}
		if err := cc.Err(); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
	}

	inputs := make(map[int]bool)
	for _, s := range a.Samplers {
		inputs[s.Input] = true
	}

	a.Sources = make([]AnimSource, sourceN)
	for i := range a.Sources {
		sc := sources.At(int64(i * animSourceSize))
		n := int(sc.U32())
		typ := ElementType(sc.U32())
		data := sc.Ptr()
		if err := sc.Err(); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
		if typ.Size() == 0 {
			return fmt.Errorf("%w: source %d has element type %d", ErrInvalidAnimation, i, typ)
		}
		if n > maxCount {
			return fmt.Errorf("%w: source %d has %d values", ErrInvalidAnimation, i, n)
		}
		values, err := readSource(data, typ, n, !inputs[i])
		if err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
		if inputs[i] {
			for k := range values {
				values[k] /= AnimationFPS
			}
		}
		a.Sources[i] = AnimSource{Type: typ, Values: values}
	}

	for _, s := range a.Samplers {
		if s.Input < 0 || s.Input >= len(a.Sources) {
			continue
		}
		for _, t := range a.Sources[s.Input].Values {
			if t > a.Duration {
				a.Duration = t
			}
		}
	}
	return nil
}

// readSource decodes n elements. Integer values are normalised to [-1,1]
// or [0,1] when normalize is set.
func readSource(cur *bres.Cursor, typ ElementType, n int, normalize bool) ([]float32, error) {
	out := make([]float32, n)
	for i := range out {
		switch typ {
		case ElemFloat32:
			out[i] = cur.F32()
		case ElemInt8:
			out[i] = float32(cur.I8())
			if normalize {
				out[i] = max(out[i]/127, -1)
			}
		case ElemUint8:
			out[i] = float32(cur.U8())
			if normalize {
				out[i] /= 255
			}
		case ElemInt16:
			out[i] = float32(cur.I16())
			if normalize {
				out[i] = max(out[i]/32767, -1)
			}
		case ElemUint16:
			out[i] = float32(cur.U16())
			if normalize {
				out[i] /= 65535
			}
		}
	}
	return out, cur.Err()
}
