package model

import (
	"errors"
	"testing"

	"github.com/Faultbox/bdae-viewer/internal/engine/scene"
	"github.com/Faultbox/bdae-viewer/pkg/archive"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
	"github.com/Faultbox/bdae-viewer/pkg/formats/formatstest"
	"github.com/Faultbox/bdae-viewer/pkg/math"
)

func triangle(name, material string) formatstest.Mesh {
	return formatstest.Mesh{
		Name:      name,
		Positions: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Normals:   [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		UVs:       [][2]float32{{0, 0}, {1, 0}, {0, 1}},
		Submeshes: []formatstest.Submesh{{Material: material, Indices: []uint16{0, 1, 2}}},
	}
}

func testArchive() *archive.Mem {
	mem := archive.NewMem()
	mem.Add("models/box.bdae", formatstest.BuildModel(formatstest.Model{
		Name:      "box",
		Textures:  []formatstest.Texture{{Name: "wood", Path: "wood.tga"}},
		Materials: []formatstest.Material{{Name: "mat", Texture: 0}},
		Meshes:    []formatstest.Mesh{triangle("box_mesh", "mat")},
		Roots: []formatstest.Node{{
			ID:          "Bip01",
			Bone:        "Bip01",
			Mesh:        "box_mesh",
			Translation: [3]float32{1, 0, 0},
		}},
	}).Bytes())
	mem.Add("models/box_lift.anim", formatstest.BuildAnimations(formatstest.AnimationFile{
		Name: "lift",
		Animations: []formatstest.Animation{{
			Name: "lift",
			Samplers: []formats.AnimSampler{
				{Interpolation: formats.InterpLinear, Input: 0, Output: 1, InputComponents: 1, OutputComponents: 3},
			},
			Channels: []formatstest.Channel{{Target: "Bip01", Property: formats.PropTranslation}},
			Sources: []formatstest.Source{
				{Type: formats.ElemFloat32, Values: []float32{0, 30}},
				{Type: formats.ElemFloat32, Values: []float32{1, 0, 0, 1, 2, 0}},
			},
		}},
	}).Bytes())
	return mem
}

func TestLoaderCache(t *testing.T) {
	cache := NewCache()
	l := NewLoader(testArchive(), cache, DefaultLoaderOptions())

	a, err := l.Load("models/box.bdae")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := l.Load("MODELS\\Box.bdae")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if a.Data != b.Data {
		t.Error("decoded asset should be shared")
	}
	if a.Graph == b.Graph || a.Player == b.Player {
		t.Error("graph and player must be per instance")
	}
	if hits, misses := cache.Stats(); hits != 1 || misses != 1 || cache.Len() != 1 {
		t.Errorf("cache hits=%d misses=%d len=%d", hits, misses, cache.Len())
	}
}

func TestLoaderMissing(t *testing.T) {
	l := NewLoader(testArchive(), NewCache(), DefaultLoaderOptions())
	if _, err := l.Load("models/none.bdae"); !errors.Is(err, archive.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if l.Cache().Len() != 0 {
		t.Error("failed load must not be cached")
	}

	if _, err := NewLoader(nil, nil, DefaultLoaderOptions()).Load("x"); !errors.Is(err, ErrNoArchive) {
		t.Errorf("err = %v, want ErrNoArchive", err)
	}
}

func TestLoadAnimations(t *testing.T) {
	l := NewLoader(testArchive(), nil, DefaultLoaderOptions())
	m, err := l.Load("models/box.bdae")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	n, err := l.LoadAnimations(m, "models/box_lift.anim", "models/missing.anim")
	if n != 1 {
		t.Fatalf("added %d sets, want 1", n)
	}
	if !errors.Is(err, archive.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	m.Player.Play()
	m.Update(0.5)
	mesh := m.Mesh(BuildOptions{})
	if got := mesh.Vertices[0].Position; got != [3]float32{1, 1, 0} {
		t.Errorf("animated vertex 0 = %v, want [1 1 0]", got)
	}
}

func TestBuildMeshRigid(t *testing.T) {
	l := NewLoader(testArchive(), nil, DefaultLoaderOptions())
	m, err := l.Load("models/box.bdae")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	mesh := m.Mesh(BuildOptions{})
	if len(mesh.Vertices) != 3 || len(mesh.Indices) != 3 {
		t.Fatalf("vertices=%d indices=%d", len(mesh.Vertices), len(mesh.Indices))
	}
	if mesh.Bounds.Min != [3]float32{1, 0, 0} || mesh.Bounds.Max != [3]float32{2, 1, 0} {
		t.Errorf("bounds = %+v", mesh.Bounds)
	}
	if len(mesh.Groups) != 1 || mesh.Groups[0].TextureIdx != 0 {
		t.Errorf("groups = %+v", mesh.Groups)
	}

	local := m.Mesh(BuildOptions{LocalSpace: true, ReverseWinding: true})
	if local.Vertices[1].Position != [3]float32{1, 0, 0} {
		t.Errorf("local vertex = %v", local.Vertices[1].Position)
	}
	if local.Indices[0] != 2 || local.Indices[2] != 0 {
		t.Errorf("reversed indices = %v", local.Indices)
	}

	cx, cz := CenterMeshXZ(mesh)
	if cx != 1.5 || cz != 0 || mesh.Bounds.Min[0] != -0.5 {
		t.Errorf("center = %v, %v bounds %+v", cx, cz, mesh.Bounds)
	}

	total, untextured := CountTriangles(m.Graph)
	if total != 1 || untextured != 0 {
		t.Errorf("triangles = %d, %d", total, untextured)
	}
}

func TestBuildMeshSkinned(t *testing.T) {
	unitR, unitS := [4]float32{0, 0, 0, 1}, [3]float32{1, 1, 1}
	g, err := scene.Build(&formats.BDAE{
		Meshes: []formats.BDAEMesh{{
			Name:      "body",
			Positions: [][3]float32{{0, 0, 0}, {0, 1, 0}},
			Submeshes: []formats.BDAESubmesh{{Material: -1, Texture: -1, Indices: []uint16{0, 1, 0}}},
		}},
		Skin: &formats.BDAESkin{
			Mesh:         0,
			MaxInfluence: 2,
			BoneNames:    []string{"a", "b"},
			InverseBind:  [][16]float32{math.Identity(), math.Translate(0, -1, 0)},
			Influences: []formats.BDAEInfluence{
				{Bone: 0, Weight: 1}, {},
				{Bone: 0, Weight: 0.5}, {Bone: 1, Weight: 0.5},
			},
		},
		Roots: []formats.BDAENode{
			{ID: "a", BoneName: "a", Rotation: unitR, Scale: unitS},
			{ID: "b", BoneName: "b", Translation: [3]float32{0, 1, 0}, Rotation: unitR, Scale: unitS},
		},
	})
	if err != nil {
		t.Fatalf("scene.Build: %v", err)
	}

	// Move bone b up by 2; vertex 1 follows it by half.
	g.Nodes[1].Translation = math.Vec3{Y: 3}
	g.UpdateWorld()

	mesh := BuildMesh(g, BuildOptions{})
	if got := mesh.Vertices[0].Position; got != [3]float32{0, 0, 0} {
		t.Errorf("vertex 0 = %v", got)
	}
	if got := mesh.Vertices[1].Position; got != [3]float32{0, 2, 0} {
		t.Errorf("vertex 1 = %v, want [0 2 0]", got)
	}
	if mesh.Groups[0].TextureIdx != -1 {
		t.Errorf("group texture = %d, want -1", mesh.Groups[0].TextureIdx)
	}
}

func TestBuildNodeInfo(t *testing.T) {
	l := NewLoader(testArchive(), nil, DefaultLoaderOptions())
	m, err := l.Load("models/box.bdae")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	info := BuildNodeInfo(m.Graph)
	if len(info) != 1 {
		t.Fatalf("nodes = %d", len(info))
	}
	if info[0].ID != "Bip01" || info[0].LinkedMesh != 0 || info[0].WorldOrigin != [3]float32{1, 0, 0} {
		t.Errorf("info = %+v", info[0])
	}
}
