package terrain

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// pump polls until cond holds or the deadline passes, checking the
// per-poll budget.
func pump(t *testing.T, s *Streamer, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out: loaded=%d pending=%d", s.Loaded(), s.Pending())
		}
		if got := len(s.Poll()); got > s.opts.LoadBudget {
			t.Fatalf("Poll returned %d tiles, budget %d", got, s.opts.LoadBudget)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStreamerLoadsRadius(t *testing.T) {
	s := newStreamer(func(c Coord) (*Tile, error) {
		return &Tile{Coord: c}, nil
	}, StreamOptions{Radius: 1, Workers: 3, LoadBudget: 2, UnloadBudget: 4})
	defer s.Close()

	s.Update(Coord{})
	pump(t, s, func() bool { return s.Loaded() == 9 })

	for z := -1; z <= 1; z++ {
		for x := -1; x <= 1; x++ {
			if tile, ok := s.Tile(Coord{X: x, Z: z}); !ok || tile.Coord != (Coord{X: x, Z: z}) {
				t.Errorf("tile %d,%d missing", x, z)
			}
		}
	}

	// Move far away; unloads are capped per update.
	dropped := s.Update(Coord{X: 10, Z: 10})
	if len(dropped) != 4 {
		t.Errorf("dropped %d tiles, want 4", len(dropped))
	}
	s.Update(Coord{X: 10, Z: 10})
	s.Update(Coord{X: 10, Z: 10})
	pump(t, s, func() bool { return s.Loaded() == 9 && s.Pending() == 0 })
	if _, ok := s.Tile(Coord{}); ok {
		t.Error("old centre tile still loaded")
	}
}

func TestStreamerRetriesFailedTile(t *testing.T) {
	var mu sync.Mutex
	failures := 0
	s := newStreamer(func(c Coord) (*Tile, error) {
		mu.Lock()
		defer mu.Unlock()
		if failures == 0 {
			failures++
			return nil, errors.New("archive entry missing")
		}
		return &Tile{Coord: c}, nil
	}, StreamOptions{Radius: 0, Workers: 1, LoadBudget: 1, UnloadBudget: 1})
	defer s.Close()

	s.Update(Coord{X: 3, Z: 4})
	pump(t, s, func() bool { return s.Pending() == 0 })
	if s.Loaded() != 0 {
		t.Fatal("failed tile must not be loaded")
	}

	s.Update(Coord{X: 3, Z: 4})
	pump(t, s, func() bool { return s.Loaded() == 1 })
}

func TestStreamerCloseIdempotent(t *testing.T) {
	s := newStreamer(func(c Coord) (*Tile, error) { return &Tile{Coord: c}, nil }, DefaultStreamOptions())
	s.Update(Coord{})
	s.Close()
	s.Close()
	if s.Update(Coord{X: 1}) != nil {
		t.Error("Update after Close should do nothing")
	}
}

func TestStreamerPollAfterClose(t *testing.T) {
	s := newStreamer(func(c Coord) (*Tile, error) { return &Tile{Coord: c}, nil },
		StreamOptions{Radius: 0, Workers: 1, LoadBudget: 3, UnloadBudget: 1})
	s.Close()

	if got := s.Poll(); len(got) != 0 {
		t.Errorf("Poll after Close returned %d tiles", len(got))
	}
	if s.Loaded() != 0 {
		t.Errorf("Loaded() = %d after Close, want 0", s.Loaded())
	}
	if _, ok := s.Tile(Coord{}); ok {
		t.Error("zero tile recorded after Close")
	}
}
