package model

import (
	"github.com/Faultbox/bdae-viewer/internal/engine/anim"
	"github.com/Faultbox/bdae-viewer/internal/engine/scene"
	"github.com/Faultbox/bdae-viewer/pkg/bres"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
)

// Model is one loaded model instance. The decoded asset may be shared with
// other instances through the cache; the graph and player are private.
type Model struct {
	Name      string
	Container *bres.Container
	Data      *formats.BDAE
	Graph     *scene.Graph
	Player    *anim.Player

	// Animations holds the decoded companion files in player set order.
	Animations []*formats.AnimationFile
}

func newModel(name string, a *Asset) (*Model, error) {
	g, err := scene.Build(a.Data)
	if err != nil {
		return nil, err
	}
	return &Model{
		Name:      name,
		Container: a.Container,
		Data:      a.Data,
		Graph:     g,
		Player:    anim.NewPlayer(g),
	}, nil
}

// Update advances animation playback by dt seconds.
func (m *Model) Update(dt float32) {
	m.Player.Advance(dt)
}

// Mesh bakes the current pose.
func (m *Model) Mesh(opts BuildOptions) *Mesh {
	return BuildMesh(m.Graph, opts)
}
