// Package formats decodes the records stored in resolved BRES containers:
// BDAE models and animations, TRN terrain tiles, ITM entity placements and
// PHY collision meshes.
package formats

import (
	"errors"
	"fmt"

	"github.com/Faultbox/bdae-viewer/pkg/bres"
	"github.com/Faultbox/bdae-viewer/pkg/encoding"
)

// BDAE format errors.
var (
	ErrMultipleNodeTrees   = errors.New("more than one node tree collection")
	ErrMultipleSkins       = errors.New("more than one skin")
	ErrInvalidMaxInfluence = errors.New("skin max influence outside [1,4]")
	ErrInvalidBDAE         = errors.New("invalid BDAE data")
	ErrNodeDepth           = errors.New("node tree too deep")
)

// Record layout of BDAE model data.
const (
	bdaeAnchorOffset = 16 // collections start after the name/flags preamble

	bdaeTextureSize  = 24
	bdaeMaterialSize = 32
	bdaeParamSize    = 24
	bdaeMeshSize     = 40
	bdaeSubmeshSize  = 24
	bdaeSkinSize     = 48
	bdaeNodeSize     = 80

	// MinBytesPerVertex covers position, normal and UV.
	MinBytesPerVertex = 32

	// ParamSampler2D is the material parameter type that binds a texture.
	ParamSampler2D = 0x0B

	// MaxInfluences is the largest supported influences-per-vertex.
	MaxInfluences = 4

	maxNodeDepth = 256
	maxCount     = 1 << 20
)

// BDAETexture is a texture reference.
type BDAETexture struct {
	Name string
	Path string
	Type uint32
}

// BDAEMaterialParam is one entry of a material's property list.
type BDAEMaterialParam struct {
	Name  string
	Type  uint32
	Value uint32 // texture index for sampler2D
}

// BDAEMaterial is a material with its texture binding.
type BDAEMaterial struct {
	Name      string
	Technique string
	NameRef   int64 // raw stored name pointer, used for submesh matching
	Texture   int   // -1 when no sampler2D binds a texture
	Params    []BDAEMaterialParam
}

// BDAESubmesh is a triangle list drawn with one material.
type BDAESubmesh struct {
	MaterialRef int64 // raw stored material-name pointer
	Material    int   // -1 when no material matches
	Texture     int   // -1 when the material has no texture
	Indices     []uint16
}

// BDAEMesh is vertex data plus its submeshes.
type BDAEMesh struct {
	Name           string
	BytesPerVertex int
	Positions      [][3]float32
	Normals        [][3]float32
	UVs            [][2]float32
	Submeshes      []BDAESubmesh
}

// VertexCount returns the number of vertices.
func (m *BDAEMesh) VertexCount() int { return len(m.Positions) }

// BDAEInfluence is one bone weight of a vertex.
type BDAEInfluence struct {
	Bone   uint16
	Weight float32
}

// BDAESkin binds one mesh to a list of bones.
type BDAESkin struct {
	Name         string
	Mesh         int
	MaxInfluence int
	BoneNames    []string
	InverseBind  [][16]float32 // column-major, one per bone
	Influences   []BDAEInfluence // MaxInfluence per vertex
}

// VertexInfluences returns the influences of vertex v.
func (s *BDAESkin) VertexInfluences(v int) []BDAEInfluence {
	start := v * s.MaxInfluence
	if start < 0 || start+s.MaxInfluence > len(s.Influences) {
		return nil
	}
	return s.Influences[start : start+s.MaxInfluence]
}

// BDAENode is one node of the node tree.
type BDAENode struct {
	ID          string
	MeshName    string // mesh-linking name
	BoneName    string // bone-linking name
	Translation [3]float32
	Rotation    [4]float32 // x, y, z, w with the stored W negated
	Scale       [3]float32
	Children    []BDAENode
}

// BDAE is a decoded model.
type BDAE struct {
	Name      string
	Flags     uint32
	Textures  []BDAETexture
	Materials []BDAEMaterial
	Meshes    []BDAEMesh
	Skin      *BDAESkin // nil when the model is not skinned
	Roots     []BDAENode
}

// ParseBDAE decodes model records from a resolved container. dec may be nil.
func ParseBDAE(c *bres.Container, dec *encoding.Decoder) (*BDAE, error) {
	p := &bdaeParser{dec: dec}
	m := &BDAE{}

	pre := c.Cursor(c.Data())
	m.Name = p.str(pre)
	m.Flags = pre.U32()
	if err := pre.Err(); err != nil {
		return nil, fmt.Errorf("%w: preamble: %v", ErrInvalidBDAE, err)
	}

	cur := c.Cursor(c.Data().Add(bdaeAnchorOffset))
	texN, texP := collection(cur)
	matN, matP := collection(cur)
	meshN, meshP := collection(cur)
	skinN, skinP := collection(cur)
	treeN, treeP := collection(cur)
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: collections: %v", ErrInvalidBDAE, err)
	}
	if treeN > 1 {
		return nil, fmt.Errorf("%w: %d", ErrMultipleNodeTrees, treeN)
	}
	if skinN > 1 {
		return nil, fmt.Errorf("%w: %d", ErrMultipleSkins, skinN)
	}
	for _, n := range []int{texN, matN, meshN} {
		if n > maxCount {
			return nil, fmt.Errorf("%w: collection count %d", ErrInvalidBDAE, n)
		}
	}

	var err error
	if m.Textures, err = p.textures(texP, texN); err != nil {
		return nil, err
	}
	if m.Materials, err = p.materials(matP, matN); err != nil {
		return nil, err
	}
	if m.Meshes, err = p.meshes(meshP, meshN); err != nil {
		return nil, err
	}
	linkSubmeshes(m)

	if skinN == 1 {
		if m.Skin, err = p.skin(skinP, m.Meshes); err != nil {
			return nil, err
		}
	}
	if treeN == 1 {
		if m.Roots, err = p.nodeTree(treeP); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// collection reads a {count, pad, ptr} block.
func collection(cur *bres.Cursor) (int, *bres.Cursor) {
	n := int(cur.U32())
	cur.Skip(4)
	return n, cur.Ptr()
}

type bdaeParser struct {
	dec *encoding.Decoder
}

func (p *bdaeParser) str(cur *bres.Cursor) string {
	return p.dec.String(cur.Str())
}

func (p *bdaeParser) textures(base *bres.Cursor, n int) ([]BDAETexture, error) {
	out := make([]BDAETexture, n)
	for i := range out {
		cur := base.At(int64(i * bdaeTextureSize))
		out[i].Name = p.str(cur)
		out[i].Path = p.str(cur)
		out[i].Type = cur.U32()
		if err := cur.Err(); err != nil {
			return nil, fmt.Errorf("texture %d: %w", i, err)
		}
	}
	return out, nil
}

func (p *bdaeParser) materials(base *bres.Cursor, n int) ([]BDAEMaterial, error) {
	out := make([]BDAEMaterial, n)
	for i := range out {
		cur := base.At(int64(i * bdaeMaterialSize))
		mat := &out[i]
		mat.Texture = -1
		mat.NameRef = cur.At(0).RawPtr()
		mat.Name = p.str(cur)
		mat.Technique = p.str(cur)
		paramN := int(cur.U32())
		cur.Skip(4)
		params := cur.Ptr()
		if paramN > maxCount {
			return nil, fmt.Errorf("%w: material %d has %d params", ErrInvalidBDAE, i, paramN)
		}

		// Variable-length property list; the first sampler2D binds the texture.
		mat.Params = make([]BDAEMaterialParam, paramN)
		for j := range mat.Params {
			pc := params.At(int64(j * bdaeParamSize))
			prm := &mat.Params[j]
			prm.Name = p.str(pc)
			prm.Type = pc.U32()
			pc.Skip(4)
			prm.Value = pc.U32()
			if err := pc.Err(); err != nil {
				return nil, fmt.Errorf("material %d param %d: %w", i, j, err)
			}
			if prm.Type == ParamSampler2D && mat.Texture < 0 {
				mat.Texture = int(prm.Value)
			}
		}
		if err := cur.Err(); err != nil {
			return nil, fmt.Errorf("material %d: %w", i, err)
		}
	}
	return out, nil
}

func (p *bdaeParser) meshes(base *bres.Cursor, n int) ([]BDAEMesh, error) {
	out := make([]BDAEMesh, n)
	for i := range out {
		cur := base.At(int64(i * bdaeMeshSize))
		mesh := &out[i]
		mesh.Name = p.str(cur)
		vertN := int(cur.U32())
		mesh.BytesPerVertex = int(cur.U32())
		verts := cur.Ptr()
		subN := int(cur.U32())
		cur.Skip(4)
		subs := cur.Ptr()
		if err := cur.Err(); err != nil {
			return nil, fmt.Errorf("mesh %d: %w", i, err)
		}
		if vertN > maxCount || subN > maxCount {
			return nil, fmt.Errorf("%w: mesh %d counts %d/%d", ErrInvalidBDAE, i, vertN, subN)
		}
		if vertN > 0 && mesh.BytesPerVertex < MinBytesPerVertex {
			return nil, fmt.Errorf("%w: mesh %d has %d bytes per vertex", ErrInvalidBDAE, i, mesh.BytesPerVertex)
		}

		mesh.Positions = make([][3]float32, vertN)
		mesh.Normals = make([][3]float32, vertN)
		mesh.UVs = make([][2]float32, vertN)
		for v := 0; v < vertN; v++ {
			vc := verts.At(int64(v * mesh.BytesPerVertex))
			mesh.Positions[v] = [3]float32{vc.F32(), vc.F32(), vc.F32()}
			mesh.Normals[v] = [3]float32{vc.F32(), vc.F32(), vc.F32()}
			mesh.UVs[v] = [2]float32{vc.F32(), vc.F32()}
			if err := vc.Err(); err != nil {
				return nil, fmt.Errorf("mesh %d vertex %d: %w", i, v, err)
			}
		}

		mesh.Submeshes = make([]BDAESubmesh, subN)
		for s := range mesh.Submeshes {
			sc := subs.At(int64(s * bdaeSubmeshSize))
			sub := &mesh.Submeshes[s]
			sub.Material, sub.Texture = -1, -1
			sub.MaterialRef = sc.RawPtr()
			triN := int(sc.U32())
			sc.Skip(4)
			idx := sc.Ptr()
			if triN > maxCount {
				return nil, fmt.Errorf("%w: mesh %d submesh %d has %d triangles", ErrInvalidBDAE, i, s, triN)
			}
			sub.Indices = make([]uint16, triN*3)
			for k := range sub.Indices {
				sub.Indices[k] = idx.U16()
			}
			if err := firstErr(sc.Err(), idx.Err()); err != nil {
				return nil, fmt.Errorf("mesh %d submesh %d: %w", i, s, err)
			}
		}
	}
	return out, nil
}

// linkSubmeshes matches submeshes to materials by raw name pointer.
// Resolved files never store a material name twice, so pointer equality is
// name equality.
func linkSubmeshes(m *BDAE) {
	for i := range m.Meshes {
		for s := range m.Meshes[i].Submeshes {
			sub := &m.Meshes[i].Submeshes[s]
			for j := range m.Materials {
				if m.Materials[j].NameRef != 0 && m.Materials[j].NameRef == sub.MaterialRef {
					sub.Material = j
					sub.Texture = m.Materials[j].Texture
					break
				}
			}
			if sub.Texture >= len(m.Textures) {
				sub.Texture = -1
			}
		}
	}
}

func (p *bdaeParser) skin(cur *bres.Cursor, meshes []BDAEMesh) (*BDAESkin, error) {
	s := &BDAESkin{}
	s.Name = p.str(cur)
	s.Mesh = int(cur.U32())
	boneN := int(cur.U32())
	s.MaxInfluence = int(cur.U32())
	cur.Skip(4)
	names := cur.Ptr()
	binds := cur.Ptr()
	infl := cur.Ptr()
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("skin: %w", err)
	}
	if s.MaxInfluence < 1 || s.MaxInfluence > MaxInfluences {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxInfluence, s.MaxInfluence)
	}
	if s.Mesh < 0 || s.Mesh >= len(meshes) {
		return nil, fmt.Errorf("%w: skin references mesh %d of %d", ErrInvalidBDAE, s.Mesh, len(meshes))
	}
	if boneN > maxCount {
		return nil, fmt.Errorf("%w: %d bones", ErrInvalidBDAE, boneN)
	}

	s.BoneNames = make([]string, boneN)
	s.InverseBind = make([][16]float32, boneN)
	for b := 0; b < boneN; b++ {
		s.BoneNames[b] = p.str(names)
		for k := 0; k < 16; k++ {
			s.InverseBind[b][k] = binds.F32()
		}
	}

	vertN := meshes[s.Mesh].VertexCount()
	s.Influences = make([]BDAEInfluence, vertN*s.MaxInfluence)
	for k := range s.Influences {
		s.Influences[k].Bone = infl.U16()
		infl.Skip(2)
		s.Influences[k].Weight = infl.F32()
	}
	if err := firstErr(names.Err(), binds.Err(), infl.Err()); err != nil {
		return nil, fmt.Errorf("skin: %w", err)
	}
	return s, nil
}

func (p *bdaeParser) nodeTree(cur *bres.Cursor) ([]BDAENode, error) {
	rootN := int(cur.U32())
	cur.Skip(4)
	roots := cur.Ptr()
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("node tree: %w", err)
	}
	return p.nodes(roots, rootN, 0)
}

func (p *bdaeParser) nodes(base *bres.Cursor, n, depth int) ([]BDAENode, error) {
	if depth > maxNodeDepth {
		return nil, ErrNodeDepth
	}
	if n > maxCount {
		return nil, fmt.Errorf("%w: %d child nodes", ErrInvalidBDAE, n)
	}
	out := make([]BDAENode, n)
	for i := range out {
		cur := base.At(int64(i * bdaeNodeSize))
		node := &out[i]
		node.ID = p.str(cur)
		node.MeshName = p.str(cur)
		node.BoneName = p.str(cur)
		node.Translation = [3]float32{cur.F32(), cur.F32(), cur.F32()}
		node.Rotation = [4]float32{cur.F32(), cur.F32(), cur.F32(), -cur.F32()}
		node.Scale = [3]float32{cur.F32(), cur.F32(), cur.F32()}
		childN := int(cur.U32())
		cur.Skip(4)
		children := cur.Ptr()
		if err := cur.Err(); err != nil {
			return nil, fmt.Errorf("node %q: %w", node.ID, err)
		}
		if childN > 0 {
			var err error
			if node.Children, err = p.nodes(children, childN, depth+1); err != nil {
				return nil, fmt.Errorf("node %q: %w", node.ID, err)
			}
		}
	}
	return out, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
