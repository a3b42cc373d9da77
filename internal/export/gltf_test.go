package export

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/bdae-viewer/internal/engine/model"
	"github.com/Faultbox/bdae-viewer/internal/engine/scene"
	"github.com/Faultbox/bdae-viewer/pkg/archive"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
	"github.com/Faultbox/bdae-viewer/pkg/math"
)

var (
	unitR = [4]float32{0, 0, 0, 1}
	unitS = [3]float32{1, 1, 1}
)

func buildModel(t *testing.T, data *formats.BDAE) *model.Model {
	t.Helper()
	g, err := scene.Build(data)
	if err != nil {
		t.Fatalf("scene.Build: %v", err)
	}
	return &model.Model{Name: data.Name, Data: data, Graph: g}
}

// twoMeshes has a textured rigid mesh on a pivoted node and a second mesh
// whose vertices follow it in the global buffer.
func twoMeshes() *formats.BDAE {
	return &formats.BDAE{
		Name:      "crate",
		Textures:  []formats.BDAETexture{{Name: "wood", Path: "textures/wood.tga"}},
		Materials: []formats.BDAEMaterial{{Name: "mat", Texture: 0}},
		Meshes: []formats.BDAEMesh{
			{
				Name:      "lid",
				Positions: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
				Normals:   [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
				UVs:       [][2]float32{{0, 0}, {1, 0}, {0, 1}},
				Submeshes: []formats.BDAESubmesh{{Material: 0, Texture: 0, Indices: []uint16{0, 1, 2}}},
			},
			{
				Name:      "box",
				Positions: [][3]float32{{0, 0, 0}, {0, 0, 1}, {1, 0, 1}},
				Normals:   [][3]float32{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}},
				UVs:       [][2]float32{{0, 0}, {0, 1}, {1, 1}},
				Submeshes: []formats.BDAESubmesh{
					{Material: 0, Texture: 0, Indices: []uint16{2, 1, 0}},
					{Material: -1, Texture: -1},
				},
			},
		},
		Roots: []formats.BDAENode{
			{
				ID: "lid", MeshName: "lid", Translation: [3]float32{0, 2, 0},
				Rotation: unitR, Scale: unitS,
				Children: []formats.BDAENode{
					{ID: "lid_PIVOT", Translation: [3]float32{0.5, 0, 0}, Rotation: unitR, Scale: unitS},
				},
			},
			{ID: "box", MeshName: "box", Rotation: unitR, Scale: unitS},
		},
	}
}

func TestDocument(t *testing.T) {
	doc, err := Document(buildModel(t, twoMeshes()), Options{})
	if err != nil {
		t.Fatalf("Document: %v", err)
	}

	// Three scene nodes plus the pivot carrier of "lid".
	if len(doc.Nodes) != 4 {
		t.Fatalf("nodes = %d, want 4", len(doc.Nodes))
	}
	if got := doc.Scenes[0].Nodes; len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("scene roots = %v, want [0 2]", got)
	}
	lid, carrier := doc.Nodes[0], doc.Nodes[3]
	if lid.Mesh != nil {
		t.Error("pivoted node must not carry its mesh directly")
	}
	if carrier.Mesh == nil || *carrier.Mesh != 0 {
		t.Errorf("carrier mesh = %v, want 0", carrier.Mesh)
	}
	if carrier.Matrix != [16]float32(math.Translate(0.5, 0, 0)) {
		t.Errorf("carrier matrix = %v", carrier.Matrix)
	}
	if lid.Translation != [3]float32{0, 2, 0} || lid.Rotation != unitR {
		t.Errorf("lid TRS = %v %v", lid.Translation, lid.Rotation)
	}
	if len(lid.Children) != 2 || lid.Children[1] != 3 {
		t.Errorf("lid children = %v", lid.Children)
	}

	if len(doc.Meshes) != 2 {
		t.Fatalf("meshes = %d, want 2", len(doc.Meshes))
	}
	box := doc.Meshes[1]
	if len(box.Primitives) != 1 {
		t.Fatalf("box primitives = %d, want 1 (empty submesh dropped)", len(box.Primitives))
	}
	for _, attr := range []string{"POSITION", "NORMAL", "TEXCOORD_0"} {
		if _, ok := box.Primitives[0].Attributes[attr]; !ok {
			t.Errorf("missing attribute %s", attr)
		}
	}
	if acc := doc.Accessors[box.Primitives[0].Attributes["POSITION"]]; acc.Count != 3 {
		t.Errorf("box positions = %d, want 3", acc.Count)
	}

	if len(doc.Materials) != 1 || doc.Materials[0].PBRMetallicRoughness.BaseColorTexture == nil {
		t.Fatal("material should reference the texture")
	}
	if len(doc.Images) != 1 || doc.Images[0].URI != "textures/wood.tga" {
		t.Errorf("images = %+v", doc.Images)
	}
}

func TestDocumentMissingTextureEmbedsPlaceholder(t *testing.T) {
	doc, err := Document(buildModel(t, twoMeshes()), Options{
		EmbedTextures: true,
		Textures:      archive.NewMem(),
	})
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if len(doc.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(doc.Images))
	}
	img := doc.Images[0]
	if img.URI != "" || img.BufferView == nil {
		t.Fatalf("image should be embedded, got URI %q", img.URI)
	}
	if img.MimeType != "image/png" || img.Name != "wood.png" {
		t.Errorf("image = %q %q", img.Name, img.MimeType)
	}
	if got := int(doc.Buffers[0].ByteLength); got != len(doc.Buffers[0].Data) {
		t.Errorf("buffer length %d, data %d", got, len(doc.Buffers[0].Data))
	}
}

func TestDocumentNoGraph(t *testing.T) {
	if _, err := Document(&model.Model{}, Options{}); !errors.Is(err, ErrNoGraph) {
		t.Errorf("err = %v, want ErrNoGraph", err)
	}
}

func TestDocumentSkin(t *testing.T) {
	data := &formats.BDAE{
		Name: "body",
		Meshes: []formats.BDAEMesh{{
			Name:      "body",
			Positions: [][3]float32{{0, 0, 0}, {0, 1, 0}, {1, 0, 0}},
			Submeshes: []formats.BDAESubmesh{{Material: -1, Texture: -1, Indices: []uint16{0, 1, 2}}},
		}},
		Skin: &formats.BDAESkin{
			Mesh:         0,
			MaxInfluence: 1,
			BoneNames:    []string{"root", "ghost"},
			InverseBind:  [][16]float32{math.Identity(), math.Translate(0, -1, 0)},
			Influences:   []formats.BDAEInfluence{{Bone: 0, Weight: 1}, {Bone: 0, Weight: 1}, {Bone: 0, Weight: 1}},
		},
		Roots: []formats.BDAENode{{ID: "root", BoneName: "root", MeshName: "body", Rotation: unitR, Scale: unitS}},
	}
	doc, err := Document(buildModel(t, data), Options{})
	if err != nil {
		t.Fatalf("Document: %v", err)
	}

	if len(doc.Skins) != 1 {
		t.Fatalf("skins = %d, want 1", len(doc.Skins))
	}
	skin := doc.Skins[0]
	if len(skin.Joints) != 2 || skin.Joints[0] != 0 || skin.Joints[1] != 1 {
		t.Errorf("joints = %v, want [0 1] with a placeholder for ghost", skin.Joints)
	}
	if doc.Nodes[1].Name != "ghost" {
		t.Errorf("placeholder node = %q", doc.Nodes[1].Name)
	}
	acc := doc.Accessors[*skin.InverseBindMatrices]
	if acc.Type != gltf.AccessorMat4 || acc.Count != 2 {
		t.Errorf("inverse binds = %v x %d", acc.Type, acc.Count)
	}
	if doc.Nodes[0].Skin == nil {
		t.Error("mesh node should reference the skin")
	}
	attrs := doc.Meshes[0].Primitives[0].Attributes
	if _, ok := attrs["JOINTS_0"]; !ok {
		t.Error("missing JOINTS_0")
	}
	if _, ok := attrs["WEIGHTS_0"]; !ok {
		t.Error("missing WEIGHTS_0")
	}
}

func TestDocumentAnimations(t *testing.T) {
	m := buildModel(t, twoMeshes())
	m.Animations = []*formats.AnimationFile{{
		Name: "open",
		Animations: []formats.Animation{{
			Name:     "open",
			Duration: 1,
			Samplers: []formats.AnimSampler{
				{Interpolation: formats.InterpStep, Input: 0, Output: 1},
				{Interpolation: formats.InterpHermite, Input: 0, Output: 2},
				{Interpolation: formats.InterpLinear, Input: 3, Output: 2},
			},
			Channels: []formats.AnimChannel{
				{Target: "lid", Property: formats.PropRotation, Sampler: 0},
				{Target: "box", Property: formats.PropTranslation, Sampler: 1},
				{Target: "nobody", Property: formats.PropScale, Sampler: 1},
				{Target: "box", Property: formats.PropScale, Sampler: 2},
			},
			Sources: []formats.AnimSource{
				{Values: []float32{0, 1}},
				{Values: []float32{0, 0, 0, -1, 0, 0, 0, -1}},
				{Values: []float32{0, 0, 0, 1, 1, 1}},
				{Values: []float32{0, 0.5, 1}},
			},
		}},
	}}

	doc, err := Document(m, Options{})
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if len(doc.Animations) != 0 {
		t.Fatal("animations exported without Options.Animations")
	}

	doc, err = Document(m, Options{Animations: true})
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if len(doc.Animations) != 1 {
		t.Fatalf("animations = %d, want 1", len(doc.Animations))
	}
	a := doc.Animations[0]
	// The unknown target and the over-long time source are skipped.
	if len(a.Channels) != 2 {
		t.Fatalf("channels = %d, want 2", len(a.Channels))
	}
	tests := []struct {
		node   uint32
		path   gltf.TRSProperty
		interp gltf.Interpolation
	}{
		{0, gltf.TRSRotation, gltf.InterpolationStep},
		{2, gltf.TRSTranslation, gltf.InterpolationLinear},
	}
	for i, tt := range tests {
		ch := a.Channels[i]
		if *ch.Target.Node != tt.node || ch.Target.Path != tt.path {
			t.Errorf("channel %d target = %d/%v", i, *ch.Target.Node, ch.Target.Path)
		}
		if s := a.Samplers[*ch.Sampler]; s.Interpolation != tt.interp {
			t.Errorf("channel %d interpolation = %v", i, s.Interpolation)
		}
	}
	if acc := doc.Accessors[*a.Samplers[0].Output]; acc.Count != 2 || acc.Type != gltf.AccessorVec4 {
		t.Errorf("rotation output = %v x %d", acc.Type, acc.Count)
	}
}

func TestSave(t *testing.T) {
	doc, err := Document(buildModel(t, twoMeshes()), Options{})
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	dir := t.TempDir()
	for _, tt := range []struct {
		name   string
		binary bool
	}{
		{"crate.glb", true},
		{"crate.gltf", false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := Save(doc, path, tt.binary); err != nil {
				t.Fatalf("Save: %v", err)
			}
			back, err := gltf.Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if len(back.Nodes) != len(doc.Nodes) || len(back.Meshes) != len(doc.Meshes) {
				t.Errorf("round trip nodes=%d meshes=%d", len(back.Nodes), len(back.Meshes))
			}
		})
	}
}
