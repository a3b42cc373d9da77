package anim

import (
	"errors"
	"testing"

	"github.com/Faultbox/bdae-viewer/pkg/archive"
	"github.com/Faultbox/bdae-viewer/pkg/bres"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
	"github.com/Faultbox/bdae-viewer/pkg/formats/formatstest"
)

func TestLoadFile(t *testing.T) {
	data := formatstest.BuildAnimations(formatstest.AnimationFile{
		Name: "walk",
		Animations: []formatstest.Animation{{
			Name: "walk_cycle",
			Samplers: []formats.AnimSampler{
				{Interpolation: formats.InterpLinear, Input: 0, Output: 1, InputComponents: 1, OutputComponents: 3},
			},
			Channels: []formatstest.Channel{{Target: "Bip01", Property: formats.PropTranslation}},
			Sources: []formatstest.Source{
				{Type: formats.ElemFloat32, Values: []float32{0, 30}},
				{Type: formats.ElemFloat32, Values: []float32{0, 0, 0, 0, 4, 0}},
			},
		}},
	}).Bytes()

	af, err := LoadFile(archive.NewMemFile("walk.anim", data), LoadOptions{})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(af.Animations) != 1 || af.Animations[0].Duration != 1 {
		t.Fatalf("animations = %+v", af.Animations)
	}

	g := oneBoneGraph(t)
	p := NewPlayer(g)
	if idx := p.AddSet(af); idx != 0 || p.SetName(0) != "walk" {
		t.Fatalf("AddSet = %d, name %q", idx, p.SetName(0))
	}
	p.Seek(0.5)
	if y := g.Nodes[0].Translation.Y; abs(y-2) > eps {
		t.Errorf("translation y = %v, want 2", y)
	}
}

func TestLoadFileBadSignature(t *testing.T) {
	data := make([]byte, bres.HeaderSize)
	copy(data, "NOPE")
	_, err := LoadFile(archive.NewMemFile("bad.anim", data), LoadOptions{})
	if !errors.Is(err, bres.ErrInvalidSignature) {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}
