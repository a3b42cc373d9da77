// Package formatstest writes synthetic model, animation and terrain
// containers for tests.
package formatstest

import (
	"github.com/Faultbox/bdae-viewer/pkg/bres/brestest"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
)

// Texture describes a texture record.
type Texture struct {
	Name string
	Path string
}

// Material describes a material; Texture < 0 writes no sampler2D param.
type Material struct {
	Name    string
	Texture int
}

// Submesh references its material by name.
type Submesh struct {
	Material string
	Indices  []uint16
}

// Mesh describes vertex data. BytesPerVertex defaults to 32.
type Mesh struct {
	Name           string
	BytesPerVertex int
	Positions      [][3]float32
	Normals        [][3]float32
	UVs            [][2]float32
	Submeshes      []Submesh
}

// Skin describes a skin record.
type Skin struct {
	Name         string
	Mesh         int
	MaxInfluence int
	Bones        []string
	InverseBind  [][16]float32
	Influences   []formats.BDAEInfluence
}

// Node describes a node. Rotation is the decoded quaternion; W is stored
// negated. Zero rotation and scale are written as identity.
type Node struct {
	ID          string
	Mesh        string
	Bone        string
	Translation [3]float32
	Rotation    [4]float32
	Scale       [3]float32
	Children    []Node
}

// Model describes a BDAE model. NodeTrees and SkinCount override the
// stored collection counts when non-zero.
type Model struct {
	Name      string
	Textures  []Texture
	Materials []Material
	Meshes    []Mesh
	Skin      *Skin
	Roots     []Node
	NodeTrees int
	SkinCount int
}

type writer struct {
	b    *brestest.Builder
	strs map[string]brestest.Ref
}

func newWriter() *writer {
	return &writer{b: brestest.New(), strs: make(map[string]brestest.Ref)}
}

// str writes a pointer to s at at, sharing one string per value.
// Empty strings are written as null pointers.
func (w *writer) str(at brestest.Ref, s string) {
	if s == "" {
		return
	}
	ref, ok := w.strs[s]
	if !ok {
		ref = w.b.AddString(s)
		w.strs[s] = ref
	}
	w.b.PutPtr(at, ref)
}

// collection writes {count, pad, ptr}.
func (w *writer) collection(at brestest.Ref, n int, target brestest.Ref) {
	w.b.PutU32(at, uint32(n))
	if n > 0 {
		w.b.PutPtr(at.Add(8), target)
	}
}

// BuildModel lays out m as a BDAE container.
func BuildModel(m Model) *brestest.Builder {
	w := newWriter()
	b := w.b
	head := b.Alloc(16 + 5*16)
	w.str(head, m.Name)
	anchor := head.Add(16)

	tex := b.Alloc(24 * len(m.Textures))
	for i, t := range m.Textures {
		r := tex.Add(int64(i * 24))
		w.str(r, t.Name)
		w.str(r.Add(8), t.Path)
	}
	w.collection(anchor, len(m.Textures), tex)

	mats := b.Alloc(32 * len(m.Materials))
	for i, mat := range m.Materials {
		r := mats.Add(int64(i * 32))
		w.str(r, mat.Name)
		w.str(r.Add(8), "default")
		if mat.Texture >= 0 {
			params := b.Alloc(48)
			w.str(params, "diffuseColor")
			b.PutU32(params.Add(8), 4)
			w.str(params.Add(24), "diffuseMap")
			b.PutU32(params.Add(32), formats.ParamSampler2D)
			b.PutU32(params.Add(40), uint32(mat.Texture))
			b.PutU32(r.Add(16), 2)
			b.PutPtr(r.Add(24), params)
		}
	}
	w.collection(anchor.Add(16), len(m.Materials), mats)

	meshes := b.Alloc(40 * len(m.Meshes))
	for i, mesh := range m.Meshes {
		r := meshes.Add(int64(i * 40))
		bpv := mesh.BytesPerVertex
		if bpv == 0 {
			bpv = formats.MinBytesPerVertex
		}
		w.str(r, mesh.Name)
		b.PutU32(r.Add(8), uint32(len(mesh.Positions)))
		b.PutU32(r.Add(12), uint32(bpv))
		if len(mesh.Positions) > 0 {
			verts := b.Alloc(bpv * len(mesh.Positions))
			for v, p := range mesh.Positions {
				at := verts.Add(int64(v * bpv))
				b.PutF32s(at, p[0], p[1], p[2])
				if v < len(mesh.Normals) {
					n := mesh.Normals[v]
					b.PutF32s(at.Add(12), n[0], n[1], n[2])
				}
				if v < len(mesh.UVs) {
					b.PutF32s(at.Add(24), mesh.UVs[v][0], mesh.UVs[v][1])
				}
			}
			b.PutPtr(r.Add(16), verts)
		}
		b.PutU32(r.Add(24), uint32(len(mesh.Submeshes)))
		if len(mesh.Submeshes) > 0 {
			subs := b.Alloc(24 * len(mesh.Submeshes))
			for s, sub := range mesh.Submeshes {
				sr := subs.Add(int64(s * 24))
				w.str(sr, sub.Material)
				b.PutU32(sr.Add(8), uint32(len(sub.Indices)/3))
				if len(sub.Indices) > 0 {
					idx := b.Alloc(2 * len(sub.Indices))
					for k, v := range sub.Indices {
						b.PutU16(idx.Add(int64(k*2)), v)
					}
					b.PutPtr(sr.Add(16), idx)
				}
			}
			b.PutPtr(r.Add(32), subs)
		}
	}
	w.collection(anchor.Add(32), len(m.Meshes), meshes)

	if m.Skin != nil {
		s := m.Skin
		r := b.Alloc(48)
		w.str(r, s.Name)
		b.PutU32(r.Add(8), uint32(s.Mesh))
		b.PutU32(r.Add(12), uint32(len(s.Bones)))
		b.PutU32(r.Add(16), uint32(s.MaxInfluence))
		if len(s.Bones) > 0 {
			names := b.Alloc(8 * len(s.Bones))
			binds := b.Alloc(64 * len(s.Bones))
			for i, bone := range s.Bones {
				w.str(names.Add(int64(i*8)), bone)
				if i < len(s.InverseBind) {
					b.PutF32s(binds.Add(int64(i*64)), s.InverseBind[i][:]...)
				}
			}
			b.PutPtr(r.Add(24), names)
			b.PutPtr(r.Add(32), binds)
		}
		if len(s.Influences) > 0 {
			infl := b.Alloc(8 * len(s.Influences))
			for i, in := range s.Influences {
				b.PutU16(infl.Add(int64(i*8)), in.Bone)
				b.PutF32(infl.Add(int64(i*8+4)), in.Weight)
			}
			b.PutPtr(r.Add(40), infl)
		}
		count := 1
		if m.SkinCount != 0 {
			count = m.SkinCount
		}
		w.collection(anchor.Add(48), count, r)
	}

	trees := m.NodeTrees
	if trees == 0 && len(m.Roots) > 0 {
		trees = 1
	}
	if trees > 0 {
		tree := b.Alloc(16)
		b.PutU32(tree, uint32(len(m.Roots)))
		if len(m.Roots) > 0 {
			b.PutPtr(tree.Add(8), w.nodes(m.Roots))
		}
		w.collection(anchor.Add(64), trees, tree)
	}
	return b
}

func (w *writer) nodes(nodes []Node) brestest.Ref {
	b := w.b
	base := b.Alloc(80 * len(nodes))
	for i, n := range nodes {
		r := base.Add(int64(i * 80))
		w.str(r, n.ID)
		w.str(r.Add(8), n.Mesh)
		w.str(r.Add(16), n.Bone)
		rot, scale := n.Rotation, n.Scale
		if rot == ([4]float32{}) {
			rot[3] = 1
		}
		if scale == ([3]float32{}) {
			scale = [3]float32{1, 1, 1}
		}
		b.PutF32s(r.Add(24), n.Translation[:]...)
		b.PutF32s(r.Add(36), rot[0], rot[1], rot[2], -rot[3])
		b.PutF32s(r.Add(52), scale[:]...)
		b.PutU32(r.Add(64), uint32(len(n.Children)))
		if len(n.Children) > 0 {
			b.PutPtr(r.Add(72), w.nodes(n.Children))
		}
	}
	return base
}

// Source is a keyframe source with values as stored (frames for inputs).
type Source struct {
	Type   formats.ElementType
	Values []float32
}

// Channel drives a node property.
type Channel struct {
	Target   string
	Property formats.ChannelProperty
	Sampler  int
}

// Animation describes one clip.
type Animation struct {
	Name     string
	Samplers []formats.AnimSampler
	Channels []Channel
	Sources  []Source
}

// AnimationFile describes a companion container. With OmitLibraryPtr the
// library pointer is left null so readers must scan for the block.
type AnimationFile struct {
	Name           string
	Animations     []Animation
	OmitLibraryPtr bool
}

// BuildAnimations lays out f as an animation container.
func BuildAnimations(f AnimationFile) *brestest.Builder {
	w := newWriter()
	b := w.b
	head := b.Alloc(24)
	w.str(head, f.Name)
	b.PutU32(head.Add(8), uint32(len(f.Animations)))

	lib := b.Alloc(16)
	b.PutU32(lib, uint32(2*len(f.Animations)))
	if !f.OmitLibraryPtr {
		b.PutPtr(head.Add(16), lib)
	}
	if len(f.Animations) == 0 {
		return b
	}
	records := b.Alloc(40 * len(f.Animations))
	b.PutPtr(lib.Add(8), records)

	for i, a := range f.Animations {
		r := records.Add(int64(i * 40))
		w.str(r, a.Name)
		if len(a.Samplers) > 0 {
			s := b.Alloc(28 * len(a.Samplers))
			for k, sm := range a.Samplers {
				at := s.Add(int64(k * 28))
				for j, v := range []uint32{
					uint32(sm.Interpolation), uint32(sm.Input), uint32(sm.Output),
					uint32(sm.InputComponents), uint32(sm.OutputComponents),
					uint32(sm.InputType), uint32(sm.OutputType),
				} {
					b.PutU32(at.Add(int64(j*4)), v)
				}
			}
			b.PutPtr(r.Add(8), s)
		}
		if len(a.Channels) > 0 {
			c := b.Alloc(24 * len(a.Channels))
			for k, ch := range a.Channels {
				at := c.Add(int64(k * 24))
				w.str(at, ch.Target)
				b.PutU32(at.Add(8), uint32(ch.Property))
				b.PutU32(at.Add(12), uint32(ch.Sampler))
			}
			b.PutPtr(r.Add(16), c)
		}
		if len(a.Sources) > 0 {
			src := b.Alloc(16 * len(a.Sources))
			for k, s := range a.Sources {
				at := src.Add(int64(k * 16))
				b.PutU32(at, uint32(len(s.Values)))
				b.PutU32(at.Add(4), uint32(s.Type))
				if len(s.Values) > 0 {
					b.PutPtr(at.Add(8), w.values(s))
				}
			}
			b.PutPtr(r.Add(24), src)
		}
		b.PutU16(r.Add(32), uint16(len(a.Samplers)))
		b.PutU16(r.Add(34), uint16(len(a.Channels)))
		b.PutU16(r.Add(36), uint16(len(a.Sources)))
	}
	return b
}

func (w *writer) values(s Source) brestest.Ref {
	b := w.b
	size := s.Type.Size()
	data := b.Alloc(size * len(s.Values))
	for i, v := range s.Values {
		at := data.Add(int64(i * size))
		switch s.Type {
		case formats.ElemFloat32:
			b.PutF32(at, v)
		case formats.ElemInt8:
			b.PutBytes(at, []byte{byte(int8(v))})
		case formats.ElemUint8:
			b.PutBytes(at, []byte{uint8(v)})
		case formats.ElemInt16:
			b.PutU16(at, uint16(int16(v)))
		case formats.ElemUint16:
			b.PutU16(at, uint16(v))
		}
	}
	return data
}

// BuildTRN lays out a terrain tile. Normals are written as int8 * 127.
func BuildTRN(t formats.TRN) *brestest.Builder {
	w := newWriter()
	b := w.b
	head := b.Alloc(48)
	b.PutI32(head, t.TileX)
	b.PutI32(head.Add(4), t.TileZ)
	b.PutU32(head.Add(8), uint32(t.GridSize))
	b.PutU32(head.Add(12), uint32(len(t.Chunks)))

	if len(t.Heights) > 0 {
		h := b.Alloc(4 * len(t.Heights))
		b.PutF32s(h, t.Heights...)
		b.PutPtr(head.Add(16), h)
	}
	if len(t.Colors) > 0 {
		c := b.Alloc(4 * len(t.Colors))
		for i, col := range t.Colors {
			b.PutBytes(c.Add(int64(i*4)), col[:])
		}
		b.PutPtr(head.Add(24), c)
	}
	if len(t.Normals) > 0 {
		n := b.Alloc(3 * len(t.Normals))
		for i, nv := range t.Normals {
			b.PutBytes(n.Add(int64(i*3)), []byte{byte(int8(nv[0] * 127)), byte(int8(nv[1] * 127)), byte(int8(nv[2] * 127))})
		}
		b.PutPtr(head.Add(32), n)
	}
	if len(t.Chunks) > 0 {
		c := b.Alloc(16 * len(t.Chunks))
		for i, ch := range t.Chunks {
			at := c.Add(int64(i * 16))
			b.PutF32(at, ch.MinHeight)
			b.PutF32(at.Add(4), ch.MaxHeight)
			w.str(at.Add(8), ch.Texture)
		}
		b.PutPtr(head.Add(40), c)
	}
	return b
}

// BuildITM lays out entity placements. Rotation W is stored negated.
func BuildITM(entities []formats.ITMEntity) *brestest.Builder {
	w := newWriter()
	b := w.b
	head := b.Alloc(16)
	b.PutU32(head, uint32(len(entities)))
	if len(entities) == 0 {
		return b
	}
	recs := b.Alloc(48 * len(entities))
	for i, e := range entities {
		at := recs.Add(int64(i * 48))
		w.str(at, e.Model)
		b.PutF32s(at.Add(8), e.Position[:]...)
		b.PutF32s(at.Add(20), e.Rotation[0], e.Rotation[1], e.Rotation[2], -e.Rotation[3])
		b.PutF32s(at.Add(36), e.Scale[:]...)
	}
	b.PutPtr(head.Add(8), recs)
	return b
}

// BuildPHY lays out a collision mesh.
func BuildPHY(p formats.PHY) *brestest.Builder {
	b := brestest.New()
	head := b.Alloc(32)
	b.PutU32(head, uint32(len(p.Vertices)))
	b.PutU32(head.Add(16), uint32(len(p.Indices)/3))
	if len(p.Vertices) > 0 {
		v := b.Alloc(12 * len(p.Vertices))
		for i, vert := range p.Vertices {
			b.PutF32s(v.Add(int64(i*12)), vert[:]...)
		}
		b.PutPtr(head.Add(8), v)
	}
	if len(p.Indices) > 0 {
		idx := b.Alloc(2 * len(p.Indices))
		for i, x := range p.Indices {
			b.PutU16(idx.Add(int64(i*2)), x)
		}
		b.PutPtr(head.Add(24), idx)
	}
	return b
}
