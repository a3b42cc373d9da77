package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/bdae-viewer/internal/engine/anim"
	"github.com/Faultbox/bdae-viewer/internal/engine/model"
	"github.com/Faultbox/bdae-viewer/internal/engine/terrain"
	"github.com/Faultbox/bdae-viewer/internal/export"
	"github.com/Faultbox/bdae-viewer/internal/logger"
	"github.com/Faultbox/bdae-viewer/pkg/bres"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
)

var errUsage = errors.New("bad arguments")

func usage(line string) error {
	fmt.Fprintln(os.Stderr, "Usage: bdaetool "+line)
	return errUsage
}

func (e *env) loadContainer(name string) (*bres.Container, error) {
	f, err := e.files.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return bres.Load(f,
		bres.WithStrings(e.cfg.Resolver.ExtractStrings),
		bres.WithMaxStringLen(e.cfg.Resolver.MaxStringLen))
}

func (e *env) cmdInfo(args []string) error {
	if len(args) < 1 {
		return usage("info <file>")
	}
	c, err := e.loadContainer(args[0])
	if err != nil {
		return err
	}

	h := c.Header()
	fmt.Printf("File:        %s\n", args[0])
	fmt.Printf("Version:     %d (format %d)\n", h.Version, h.FormatVersion())
	fmt.Printf("Size:        %d bytes\n", h.SizeOfFile)
	fmt.Printf("Entries:     %d (%d relocations)\n", len(c.Entries()), c.Relocations())
	fmt.Printf("Strings:     %d\n", c.Strings().Len())
	fmt.Printf("Chunks:      %d (separated: %v)\n", c.Chunks().Len(), h.Separated())
	if errs := c.EntryErrors(); len(errs) > 0 {
		fmt.Printf("Unresolved:  %d entries\n", len(errs))
	}

	m, err := formats.ParseBDAE(c, e.decoder)
	if err != nil {
		fmt.Printf("\nNot a model: %v\n", err)
		return nil
	}
	verts := 0
	for i := range m.Meshes {
		verts += m.Meshes[i].VertexCount()
	}
	fmt.Println()
	fmt.Printf("Model:       %s\n", m.Name)
	fmt.Printf("Meshes:      %d (%d vertices)\n", len(m.Meshes), verts)
	fmt.Printf("Materials:   %d\n", len(m.Materials))
	for _, t := range m.Textures {
		fmt.Printf("  texture    %s\n", t.Path)
	}
	if m.Skin != nil {
		fmt.Printf("Skin:        %d bones, %d influences per vertex\n", len(m.Skin.BoneNames), m.Skin.MaxInfluence)
	}
	return nil
}

func (e *env) cmdStrings(args []string) error {
	fs := flag.NewFlagSet("strings", flag.ExitOnError)
	filter := fs.String("grep", "", "Only strings containing this text")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return usage("strings [-grep text] <file>")
	}
	c, err := e.loadContainer(fs.Arg(0))
	if err != nil {
		return err
	}
	for _, s := range c.Strings().All() {
		s = e.decoder.String(s)
		if *filter != "" && !strings.Contains(strings.ToLower(s), strings.ToLower(*filter)) {
			continue
		}
		fmt.Println(s)
	}
	return nil
}

func (e *env) cmdNodes(args []string) error {
	if len(args) < 1 {
		return usage("nodes <model>")
	}
	m, err := e.models.Load(args[0])
	if err != nil {
		return err
	}

	for _, n := range model.BuildNodeInfo(m.Graph) {
		var tags []string
		if n.MeshName != "" {
			tags = append(tags, "mesh="+n.MeshName)
		}
		if n.BoneName != "" {
			tags = append(tags, "bone="+n.BoneName)
		}
		if n.IsPivot {
			tags = append(tags, "pivot")
		}
		if n.HasPivot {
			tags = append(tags, "pivoted")
		}
		fmt.Printf("%s%s  t=%.3v origin=%.3v %s\n",
			strings.Repeat("  ", n.Depth), n.ID, n.Translation, n.WorldOrigin, strings.Join(tags, " "))
	}

	total, untextured := model.CountTriangles(m.Graph)
	fmt.Fprintf(os.Stderr, "\n(%d nodes, %d triangles, %d untextured)\n", len(m.Graph.Nodes), total, untextured)
	if mesh := m.Mesh(model.BuildOptions{}); mesh != nil {
		cx, cz := model.CenterMeshXZ(mesh)
		fmt.Fprintf(os.Stderr, "(size %.3v, centre x=%.3f z=%.3f, base y=%.3f)\n",
			mesh.Bounds.Size(), cx, cz, mesh.Bounds.Min[1])
	}
	return nil
}

func (e *env) cmdAnim(args []string) error {
	fs := flag.NewFlagSet("anim", flag.ExitOnError)
	node := fs.String("node", "", "Sample this node's world origin")
	set := fs.Int("set", 0, "Animation set to sample")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return usage("anim [-node id] [-set n] <model> <anim...>")
	}
	m, err := e.models.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	n, err := e.models.LoadAnimations(m, fs.Args()[1:]...)
	if n == 0 {
		return err
	}

	p := m.Player
	mode, err := anim.ParseLoopMode(e.cfg.Animation.LoopMode)
	if err != nil {
		return err
	}
	p.SetLoopMode(mode)
	p.SetSpeed(e.cfg.Animation.Speed)

	for i := 0; i < p.Sets(); i++ {
		if err := p.Select(i); err != nil {
			return err
		}
		fmt.Printf("[%d] %-24s %.3fs\n", i, p.SetName(i), p.Duration())
	}
	if *node == "" {
		return nil
	}

	idx, ok := m.Graph.NodeByName(*node)
	if !ok {
		return fmt.Errorf("node %q not found", *node)
	}
	if err := p.Select(*set); err != nil {
		return err
	}
	dt := 1 / float32(e.cfg.Animation.FPS)
	frames := int(p.Duration()/dt) + 1
	p.Reset()
	p.Seek(0)
	p.Play()
	for f := 0; f < frames; f++ {
		fmt.Printf("%4d %7.3f %.4v\n", f, p.Time(), m.Graph.Nodes[idx].World.Translation().Array())
		p.Advance(dt)
	}
	return nil
}

func (e *env) cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default: model name)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return usage("export [-o out] <model> [anim...]")
	}
	m, err := e.models.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	if fs.NArg() > 1 {
		if _, err := e.models.LoadAnimations(m, fs.Args()[1:]...); err != nil {
			logger.Warn("exporting without some animations", zap.Error(err))
		}
	}

	doc, err := export.Document(m, export.Options{
		Animations:    e.cfg.Export.Animations,
		EmbedTextures: e.cfg.Export.EmbedTextures,
		Textures:      e.files,
	})
	if err != nil {
		return err
	}

	name := *out
	if name == "" {
		base := path.Base(fs.Arg(0))
		name = strings.TrimSuffix(base, path.Ext(base)) + ".gltf"
		if e.cfg.Export.Binary {
			name = strings.TrimSuffix(name, ".gltf") + ".glb"
		}
	}
	if err := export.Save(doc, name, e.cfg.Export.Binary); err != nil {
		return err
	}
	fmt.Printf("Exported: %s (%d nodes, %d meshes, %d animations)\n",
		name, len(doc.Nodes), len(doc.Meshes), len(doc.Animations))
	return nil
}

func (e *env) cmdTerrain(args []string) error {
	fs := flag.NewFlagSet("terrain", flag.ExitOnError)
	stream := fs.Bool("stream", false, "Stream the tiles around x, z")
	timeout := fs.Duration("timeout", 10*time.Second, "Streaming time limit")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return usage("terrain [-stream] <x> <z>")
	}
	x, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return err
	}
	z, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		return err
	}
	center := terrain.Coord{X: x, Z: z}

	opts := terrain.DefaultOptions()
	opts.TileSize = e.cfg.Terrain.TileSize
	opts.MaxWalkSlope = e.cfg.Terrain.MaxWalkSlope
	opts.Decoder = e.decoder
	a := terrain.NewAssembler(e.files, e.models, opts)

	if !*stream {
		t, err := a.Assemble(center)
		if err != nil {
			return err
		}
		printTile(t)
		return nil
	}

	s := terrain.NewStreamer(a, terrain.StreamOptions{
		Radius:       e.cfg.Terrain.LoadRadius,
		Workers:      e.cfg.Terrain.Workers,
		LoadBudget:   e.cfg.Terrain.LoadBudget,
		UnloadBudget: e.cfg.Terrain.UnloadBudget,
	})
	defer s.Close()

	tick := time.NewTicker(time.Second / time.Duration(e.cfg.Animation.FPS))
	defer tick.Stop()
	deadline := time.After(*timeout)
	for {
		s.Update(center)
		for _, t := range s.Poll() {
			printTile(t)
		}
		if s.Pending() == 0 {
			break
		}
		select {
		case <-tick.C:
		case <-deadline:
			fmt.Fprintf(os.Stderr, "timed out with %d tiles pending\n", s.Pending())
			return nil
		}
	}
	fmt.Fprintf(os.Stderr, "\n(%d tiles loaded)\n", s.Loaded())
	return nil
}

func printTile(t *terrain.Tile) {
	fmt.Printf("Tile %d,%d: %d vertices, %d triangles, %d texture groups\n",
		t.Coord.X, t.Coord.Z, len(t.Mesh.Vertices), len(t.Mesh.Indices)/3, len(t.Mesh.Groups))
	if t.Heightmap != nil {
		fmt.Printf("  heightmap  %dx%d, cell %.2f\n", t.Heightmap.GridSize, t.Heightmap.GridSize, t.Heightmap.CellSize)
	}
	if t.Nav != nil {
		fmt.Printf("  nav        %d walkable, %d blocked\n", t.Nav.TriangleCount(), t.Nav.Blocked)
	}
	for _, ent := range t.Entities {
		fmt.Printf("  entity     %s at %.2v\n", ent.Name, ent.Transform.Translation().Array())
	}
}
