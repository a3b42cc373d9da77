// Package export writes loaded models as glTF 2.0 documents.
//
// Scene nodes map one to one onto glTF nodes in the same order. Pivot
// corrections, which apply to a node's own geometry but not to its
// children, become an extra child node carrying the mesh. The global vertex
// buffer is split back into one glTF mesh per scene mesh with mesh-local
// indices, one primitive per submesh.
package export

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"path"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/bdae-viewer/internal/engine/model"
	"github.com/Faultbox/bdae-viewer/internal/engine/scene"
	"github.com/Faultbox/bdae-viewer/internal/engine/texture"
	"github.com/Faultbox/bdae-viewer/internal/logger"
	"github.com/Faultbox/bdae-viewer/pkg/archive"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
	"github.com/Faultbox/bdae-viewer/pkg/math"
)

// ErrNoGraph is returned for a model without a built scene graph.
var ErrNoGraph = errors.New("model has no scene graph")

var errNoTextures = errors.New("no texture source")

// Edge of the checkerboard embedded for textures that cannot be loaded.
const placeholderSize = 64

// Options controls what Document emits.
type Options struct {
	// Animations includes the model's loaded animation files.
	Animations bool

	// EmbedTextures decodes textures from Textures and stores them as PNG
	// in the binary buffer, substituting a checkerboard for any that cannot
	// be loaded. Otherwise images reference the texture path.
	EmbedTextures bool
	Textures      archive.Opener
}

type exporter struct {
	doc  *gltf.Document
	g    *scene.Graph
	opts Options
	log  *zap.Logger

	meshes   []int // glTF mesh per scene mesh, -1 when empty
	textures []int // glTF texture per graph texture
	carrier  []int // glTF node holding each scene node's mesh
}

// Document converts m in its default pose.
func Document(m *model.Model, opts Options) (*gltf.Document, error) {
	if m == nil || m.Graph == nil {
		return nil, ErrNoGraph
	}
	e := &exporter{
		doc:  gltf.NewDocument(),
		g:    m.Graph,
		opts: opts,
		log:  logger.Named("export"),
	}
	e.doc.Asset.Generator = "bdaetool"
	e.doc.Samplers = []*gltf.Sampler{{}}

	e.writeTextures()
	e.writeMaterials()
	e.writeMeshes()
	e.writeNodes()
	e.writeSkin()
	if opts.Animations {
		for _, f := range m.Animations {
			e.writeAnimations(f)
		}
	}
	e.doc.Buffers[0].ByteLength = uint32(len(e.doc.Buffers[0].Data))
	return e.doc, nil
}

// Save writes doc to the file name, as GLB when binary is set. A JSON
// document gets its unnamed buffer inlined as a data URI.
func Save(doc *gltf.Document, name string, binary bool) error {
	if binary {
		return gltf.SaveBinary(doc, name)
	}
	if len(doc.Buffers) > 0 && doc.Buffers[0].URI == "" {
		cp := *doc
		buf := *doc.Buffers[0]
		buf.EmbeddedResource()
		cp.Buffers = append([]*gltf.Buffer{&buf}, doc.Buffers[1:]...)
		doc = &cp
	}
	return gltf.Save(doc, name)
}

func (e *exporter) writeTextures() {
	e.textures = make([]int, len(e.g.Textures))
	for i, t := range e.g.Textures {
		img, ok := e.embedImage(t)
		if !ok {
			e.doc.Images = append(e.doc.Images, &gltf.Image{Name: t.Name, URI: t.Path})
			img = uint32(len(e.doc.Images) - 1)
		}
		e.doc.Textures = append(e.doc.Textures, &gltf.Texture{
			Sampler: gltf.Index(0),
			Source:  gltf.Index(img),
		})
		e.textures[i] = len(e.doc.Textures) - 1
	}
}

func (e *exporter) embedImage(t formats.BDAETexture) (uint32, bool) {
	if !e.opts.EmbedTextures {
		return 0, false
	}
	var (
		src image.Image
		err error
	)
	if e.opts.Textures != nil {
		src, _, err = texture.Load(e.opts.Textures, t.Path)
	} else {
		err = errNoTextures
	}
	if err != nil {
		e.log.Warn("texture replaced by placeholder", zap.String("texture", t.Path), zap.Error(err))
		src = texture.Placeholder(placeholderSize)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		e.log.Warn("texture not embedded", zap.String("texture", t.Path), zap.Error(err))
		return 0, false
	}
	base := path.Base(archive.NormalizePath(t.Path))
	name := strings.TrimSuffix(base, path.Ext(base)) + ".png"
	img, err := modeler.WriteImage(e.doc, name, "image/png", &buf)
	if err != nil {
		e.log.Warn("texture not embedded", zap.String("texture", t.Path), zap.Error(err))
		return 0, false
	}
	e.doc.Buffers[0].ByteLength = uint32(len(e.doc.Buffers[0].Data))
	return img, true
}

func (e *exporter) writeMaterials() {
	for _, m := range e.g.Materials {
		mat := &gltf.Material{
			Name:                 m.Name,
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{},
		}
		if m.Texture >= 0 && m.Texture < len(e.textures) {
			mat.PBRMetallicRoughness.BaseColorTexture = &gltf.TextureInfo{
				Index: uint32(e.textures[m.Texture]),
			}
		}
		e.doc.Materials = append(e.doc.Materials, mat)
	}
}

func (e *exporter) writeMeshes() {
	g := e.g
	e.meshes = make([]int, len(g.Meshes))
	for mi, m := range g.Meshes {
		e.meshes[mi] = -1
		lo, hi := m.VertexBase, m.VertexBase+m.VertexCount

		var prims []*gltf.Primitive
		var attrs map[string]uint32
		for _, sm := range m.Submeshes {
			if len(sm.Indices) == 0 {
				continue
			}
			if attrs == nil {
				attrs = e.writeAttributes(mi, lo, hi)
			}
			local := make([]uint32, len(sm.Indices))
			for i, idx := range sm.Indices {
				local[i] = idx - uint32(lo)
			}
			p := &gltf.Primitive{
				Indices:    gltf.Index(modeler.WriteIndices(e.doc, local)),
				Attributes: attrs,
			}
			if sm.Material >= 0 && sm.Material < len(e.doc.Materials) {
				p.Material = gltf.Index(uint32(sm.Material))
			}
			prims = append(prims, p)
		}
		if len(prims) == 0 {
			continue
		}
		e.doc.Meshes = append(e.doc.Meshes, &gltf.Mesh{Name: m.Name, Primitives: prims})
		e.meshes[mi] = len(e.doc.Meshes) - 1
	}
}

func (e *exporter) writeAttributes(mesh, lo, hi int) map[string]uint32 {
	g := e.g
	attrs := map[string]uint32{
		"POSITION": modeler.WritePosition(e.doc, g.Positions[lo:hi]),
	}
	if len(g.Normals) >= hi {
		attrs["NORMAL"] = modeler.WriteNormal(e.doc, g.Normals[lo:hi])
	}
	if len(g.UVs) >= hi {
		attrs["TEXCOORD_0"] = modeler.WriteTextureCoord(e.doc, g.UVs[lo:hi])
	}
	if mesh == g.SkinMesh && len(g.Joints) >= hi && len(g.Weights) >= hi {
		attrs["JOINTS_0"] = modeler.WriteJoints(e.doc, g.Joints[lo:hi])
		attrs["WEIGHTS_0"] = modeler.WriteWeights(e.doc, g.Weights[lo:hi])
	}
	return attrs
}

func (e *exporter) writeNodes() {
	g := e.g
	e.carrier = make([]int, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		e.doc.Nodes = append(e.doc.Nodes, &gltf.Node{
			Name:        n.ID,
			Translation: n.DefaultTranslation.Array(),
			Rotation:    n.DefaultRotation.Array(),
			Scale:       n.DefaultScale.Array(),
		})
		e.carrier[i] = i
	}
	for i := range g.Nodes {
		for _, c := range g.Nodes[i].Children {
			e.doc.Nodes[i].Children = append(e.doc.Nodes[i].Children, uint32(c))
		}
	}
	for _, r := range g.Roots {
		e.doc.Scenes[0].Nodes = append(e.doc.Scenes[0].Nodes, uint32(r))
	}

	for mi, m := range g.Meshes {
		gm := e.meshes[mi]
		if gm < 0 {
			continue
		}
		if m.Node < 0 {
			e.doc.Nodes = append(e.doc.Nodes, &gltf.Node{
				Name:     m.Name,
				Mesh:     gltf.Index(uint32(gm)),
				Rotation: [4]float32{0, 0, 0, 1},
				Scale:    [3]float32{1, 1, 1},
			})
			e.doc.Scenes[0].Nodes = append(e.doc.Scenes[0].Nodes, uint32(len(e.doc.Nodes)-1))
			continue
		}
		n := &g.Nodes[m.Node]
		if n.Pivot == math.Identity() {
			e.doc.Nodes[m.Node].Mesh = gltf.Index(uint32(gm))
			continue
		}
		e.doc.Nodes = append(e.doc.Nodes, &gltf.Node{
			Name:     n.ID + scene.PivotMarker,
			Mesh:     gltf.Index(uint32(gm)),
			Matrix:   n.Pivot,
			Rotation: [4]float32{0, 0, 0, 1},
			Scale:    [3]float32{1, 1, 1},
		})
		pivot := len(e.doc.Nodes) - 1
		e.doc.Nodes[m.Node].Children = append(e.doc.Nodes[m.Node].Children, uint32(pivot))
		e.carrier[m.Node] = pivot
	}
}

func (e *exporter) writeSkin() {
	g := e.g
	if !g.Skinned() || e.meshes[g.SkinMesh] < 0 {
		return
	}
	joints := make([]uint32, len(g.Bones))
	inverse := make([][4]float32, 0, 4*len(g.Bones))
	for i, b := range g.Bones {
		if b.Node >= 0 {
			joints[i] = uint32(b.Node)
		} else {
			// Joints must be unique, so unmapped bones get a placeholder.
			e.doc.Nodes = append(e.doc.Nodes, &gltf.Node{
				Name:     b.Name,
				Rotation: [4]float32{0, 0, 0, 1},
				Scale:    [3]float32{1, 1, 1},
			})
			joints[i] = uint32(len(e.doc.Nodes) - 1)
			e.doc.Scenes[0].Nodes = append(e.doc.Scenes[0].Nodes, joints[i])
		}
		m := b.InverseBind
		for c := 0; c < 4; c++ {
			inverse = append(inverse, [4]float32{m[c*4], m[c*4+1], m[c*4+2], m[c*4+3]})
		}
	}

	e.doc.Skins = append(e.doc.Skins, &gltf.Skin{
		Name:                g.Name,
		Joints:              joints,
		InverseBindMatrices: gltf.Index(e.writeMatrices(inverse)),
	})
	skin := gltf.Index(uint32(len(e.doc.Skins) - 1))

	if node := g.Meshes[g.SkinMesh].Node; node >= 0 {
		e.doc.Nodes[e.carrier[node]].Skin = skin
		return
	}
	for _, n := range e.doc.Nodes {
		if n.Mesh != nil && int(*n.Mesh) == e.meshes[g.SkinMesh] {
			n.Skin = skin
		}
	}
}

// writeMatrices stores column-major matrices given as four columns each.
func (e *exporter) writeMatrices(cols [][4]float32) uint32 {
	acc := modeler.WriteTangent(e.doc, cols)
	e.doc.Accessors[acc].Type = gltf.AccessorMat4
	e.doc.Accessors[acc].Count /= 4
	e.doc.Accessors[acc].Min = nil
	e.doc.Accessors[acc].Max = nil
	e.doc.BufferViews[*e.doc.Accessors[acc].BufferView].ByteStride *= 4
	return acc
}

func (e *exporter) writeAnimations(f *formats.AnimationFile) {
	for i := range f.Animations {
		a := &f.Animations[i]
		out := &gltf.Animation{Name: a.Name}
		if out.Name == "" {
			out.Name = f.Name
		}
		for ci, ch := range a.Channels {
			warn := func(msg string, fields ...zap.Field) {
				e.log.Warn(msg, append([]zap.Field{
					zap.String("file", f.Name),
					zap.String("animation", a.Name),
					zap.Int("channel", ci),
					zap.String("target", ch.Target),
				}, fields...)...)
			}
			node, ok := e.g.NodeByName(ch.Target)
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
			acc, prop := e.writeChannel(ch.Property, times, values, comps)
			out.Samplers = append(out.Samplers, &gltf.AnimationSampler{
				Input:         gltf.Index(acc[0]),
				Output:        gltf.Index(acc[1]),
				Interpolation: interpolation(a.Samplers[ch.Sampler].Interpolation),
			})
			out.Channels = append(out.Channels, &gltf.Channel{
				Sampler: gltf.Index(uint32(len(out.Samplers) - 1)),
				Target: gltf.ChannelTarget{
					Node: gltf.Index(uint32(node)),
					Path: prop,
				},
			})
		}
		if len(out.Channels) > 0 {
			e.doc.Animations = append(e.doc.Animations, out)
		}
	}
}

// writeChannel stores the keyframe times and values and returns their
// accessors with the animated path.
func (e *exporter) writeChannel(p formats.ChannelProperty, times, values []float32, comps int) ([2]uint32, gltf.TRSProperty) {
	input := modeler.WriteAccessor(e.doc, gltf.TargetArrayBuffer, times)
	n := len(times)
	switch p {
	case formats.PropRotation:
		rot := make([][4]float32, n)
		for k := range rot {
			v := values[k*comps:]
			rot[k] = [4]float32{v[0], v[1], v[2], -v[3]}
		}
		return [2]uint32{input, modeler.WriteTangent(e.doc, rot)}, gltf.TRSRotation
	case formats.PropScale:
		scale := make([][3]float32, n)
		for k := range scale {
			v := values[k*comps:]
			scale[k] = [3]float32{v[0], v[1], v[2]}
		}
		return [2]uint32{input, modeler.WriteAccessor(e.doc, gltf.TargetArrayBuffer, scale)}, gltf.TRSScale
	default:
		pos := make([][3]float32, n)
		for k := range pos {
			v := values[k*comps:]
			pos[k] = [3]float32{v[0], v[1], v[2]}
		}
		return [2]uint32{input, modeler.WritePosition(e.doc, pos)}, gltf.TRSTranslation
	}
}

// interpolation maps sampler modes onto glTF. Hermite keys carry no
// tangents, so they are emitted as linear.
func interpolation(i formats.Interpolation) gltf.Interpolation {
	if i == formats.InterpStep {
		return gltf.InterpolationStep
	}
	return gltf.InterpolationLinear
}
