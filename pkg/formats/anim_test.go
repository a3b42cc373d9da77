package formats_test

import (
	"errors"
	"math"
	"testing"

	"github.com/Faultbox/bdae-viewer/pkg/bres"
	"github.com/Faultbox/bdae-viewer/pkg/bres/brestest"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
	"github.com/Faultbox/bdae-viewer/pkg/formats/formatstest"
)

func walkFile(omitLibraryPtr bool) formatstest.AnimationFile {
	return formatstest.AnimationFile{
		Name:           "walk",
		OmitLibraryPtr: omitLibraryPtr,
		Animations: []formatstest.Animation{
			{
				Name: "walk_cycle",
				Samplers: []formats.AnimSampler{
					{Interpolation: formats.InterpLinear, Input: 0, Output: 1, InputComponents: 1, OutputComponents: 3},
					{Interpolation: formats.InterpStep, Input: 2, Output: 3, InputComponents: 1, OutputComponents: 4,
						InputType: formats.ElemUint8, OutputType: formats.ElemInt16},
				},
				Channels: []formatstest.Channel{
					{Target: "Bip01", Property: formats.PropTranslation, Sampler: 0},
					{Target: "Bip01_Head", Property: formats.PropRotation, Sampler: 1},
				},
				Sources: []formatstest.Source{
					{Type: formats.ElemFloat32, Values: []float32{0, 30, 60}},
					{Type: formats.ElemFloat32, Values: []float32{0, 0, 0, 1, 0, 0, 2, 0, 0}},
					{Type: formats.ElemUint8, Values: []float32{0, 15}},
					{Type: formats.ElemInt16, Values: []float32{0, 0, 0, 32767, 0, 0, -32767, 0}},
				},
			},
			{Name: "idle"},
		},
	}
}

func parseAnimations(t *testing.T, f formatstest.AnimationFile) (*formats.AnimationFile, error) {
	t.Helper()
	c, err := formatstest.BuildAnimations(f).Load("walk.anim", bres.WithMaxStringLen(bres.AnimationMaxStringLen))
	if err != nil {
		t.Fatalf("loading container: %v", err)
	}
	return formats.ParseAnimations(c, nil)
}

func TestParseAnimations(t *testing.T) {
	for _, scan := range []bool{false, true} {
		f, err := parseAnimations(t, walkFile(scan))
		if err != nil {
			t.Fatalf("scan=%v: %v", scan, err)
		}
		if f.Scanned != scan {
			t.Errorf("Scanned = %v, want %v", f.Scanned, scan)
		}
		if f.Name != "walk" || len(f.Animations) != 2 {
			t.Fatalf("file = %q with %d animations", f.Name, len(f.Animations))
		}

		a := f.Animations[0]
		if a.Name != "walk_cycle" || len(a.Samplers) != 2 || len(a.Channels) != 2 || len(a.Sources) != 4 {
			t.Fatalf("animation = %+v", a)
		}
		if a.Duration != 2 {
			t.Errorf("Duration = %v, want 2", a.Duration)
		}
		if got := a.Sources[0].Values; got[1] != 1 || got[2] != 2 {
			t.Errorf("input seconds = %v", got)
		}
		if got := a.Sources[2].Values[1]; got != 0.5 {
			t.Errorf("uint8 input = %v, want 0.5s", got)
		}
		rot := a.Sources[3].Values
		if rot[3] != 1 || math.Abs(float64(rot[6]+1)) > 1e-6 {
			t.Errorf("normalised int16 output = %v", rot)
		}
		if a.Channels[1].Target != "Bip01_Head" || a.Channels[1].Property != formats.PropRotation || a.Channels[1].Sampler != 1 {
			t.Errorf("channel = %+v", a.Channels[1])
		}
		if a.Samplers[1].Interpolation != formats.InterpStep || a.Samplers[1].OutputComponents != 4 {
			t.Errorf("sampler = %+v", a.Samplers[1])
		}
		if f.Animations[1].Name != "idle" || f.Animations[1].Duration != 0 {
			t.Errorf("idle = %+v", f.Animations[1])
		}
	}
}

func TestParseAnimationsEmpty(t *testing.T) {
	f := walkFile(true)
	f.Animations = nil
	got, err := parseAnimations(t, f)
	if err != nil || len(got.Animations) != 0 {
		t.Fatalf("empty file: %v, %+v", err, got)
	}
}

func TestParseAnimationsLibraryMissing(t *testing.T) {
	b := brestest.New()
	head := b.Alloc(24)
	b.PutPtr(head, b.AddString("broken"))
	b.PutU32(head.Add(8), 3)
	// Nothing in the data section holds the fingerprint 6.
	filler := b.Alloc(64)
	b.PutU32(filler, 5)
	b.PutU32(filler.Add(4), 7)

	c, err := b.Load("broken.anim")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := formats.ParseAnimations(c, nil); !errors.Is(err, formats.ErrAnimLibraryNotFound) {
		t.Errorf("got %v, want ErrAnimLibraryNotFound", err)
	}
}

func TestInterpolationString(t *testing.T) {
	tests := []struct {
		in   formats.Interpolation
		want string
	}{
		{formats.InterpStep, "Step"},
		{formats.InterpLinear, "Linear"},
		{formats.InterpHermite, "Hermite"},
		{formats.Interpolation(9), "Unknown(9)"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("%d: got %q, want %q", tt.in, got, tt.want)
		}
	}
	if formats.PropRotation.Components() != 4 || formats.PropScale.Components() != 3 {
		t.Error("property components")
	}
}

func TestKeyframes(t *testing.T) {
	a := &formats.Animation{
		Samplers: []formats.AnimSampler{
			{Input: 0, Output: 1},
			{Input: 0, Output: 1, OutputComponents: 2},
			{Input: 2, Output: 1},
			{Input: 0, Output: 7},
			{Input: 0, Output: 3, OutputComponents: 4},
		},
		Sources: []formats.AnimSource{
			{Values: []float32{0, 1}},
			{Values: []float32{0, 0, 0, 1, 1, 1, 2, 2, 2}},
			{Values: []float32{0, 1, 2, 3}},
			{Values: []float32{0, 0, 0, 9, 1, 1, 1, 9}},
		},
	}
	tests := []struct {
		name    string
		ch      formats.AnimChannel
		keys    int
		comps   int
		wantErr bool
	}{
		{"short time source truncates", formats.AnimChannel{Property: formats.PropScale, Sampler: 0}, 2, 3, false},
		{"too few components", formats.AnimChannel{Property: formats.PropScale, Sampler: 1}, 0, 0, true},
		{"long time source", formats.AnimChannel{Property: formats.PropScale, Sampler: 2}, 0, 0, true},
		{"dangling source", formats.AnimChannel{Property: formats.PropScale, Sampler: 3}, 0, 0, true},
		{"dangling sampler", formats.AnimChannel{Property: formats.PropScale, Sampler: 5}, 0, 0, true},
		{"padded components", formats.AnimChannel{Property: formats.PropTranslation, Sampler: 4}, 2, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			times, values, comps, err := a.Keyframes(tt.ch)
			if tt.wantErr {
				if !errors.Is(err, formats.ErrChannelMismatch) {
					t.Errorf("err = %v, want ErrChannelMismatch", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Keyframes: %v", err)
			}
			if len(times) != tt.keys || comps != tt.comps || len(values) != tt.keys*tt.comps {
				t.Errorf("got %d keys, %d comps, %d values", len(times), comps, len(values))
			}
		})
	}
}
