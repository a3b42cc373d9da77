package terrain

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/bdae-viewer/internal/logger"
)

// StreamOptions bounds the streamer's work per frame.
type StreamOptions struct {
	Radius       int // tiles kept around the centre, Chebyshev distance
	Workers      int
	LoadBudget   int // ready tiles integrated per Poll
	UnloadBudget int // tiles dropped per Update
}

// DefaultStreamOptions returns the default streaming limits.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{Radius: 1, Workers: 2, LoadBudget: 2, UnloadBudget: 4}
}

type result struct {
	coord Coord
	tile  *Tile
	err   error
}

type tileState int

const (
	statePending tileState = iota + 1
	stateLoaded
)

// Streamer loads tiles around a moving centre on a worker pool. Update and
// Poll are called from one goroutine; workers only assemble tiles and never
// touch the loaded set.
type Streamer struct {
	assemble func(Coord) (*Tile, error)
	opts     StreamOptions

	jobs    chan Coord
	results chan result
	wg      sync.WaitGroup

	state  map[Coord]tileState
	loaded map[Coord]*Tile
	center Coord
	closed bool
}

// NewStreamer starts opts.Workers goroutines assembling tiles with a.
func NewStreamer(a *Assembler, opts StreamOptions) *Streamer {
	return newStreamer(a.Assemble, opts)
}

func newStreamer(assemble func(Coord) (*Tile, error), opts StreamOptions) *Streamer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.LoadBudget < 1 {
		opts.LoadBudget = 1
	}
	if opts.UnloadBudget < 1 {
		opts.UnloadBudget = 1
	}
	side := 2*opts.Radius + 1
	s := &Streamer{
		assemble: assemble,
		opts:     opts,
		jobs:     make(chan Coord, side*side),
		results:  make(chan result, side*side),
		state:    make(map[Coord]tileState),
		loaded:   make(map[Coord]*Tile),
	}
	s.wg.Add(opts.Workers)
	for range opts.Workers {
		go s.worker()
	}
	return s
}

func (s *Streamer) worker() {
	defer s.wg.Done()
	for c := range s.jobs {
		t, err := s.assemble(c)
		s.results <- result{coord: c, tile: t, err: err}
	}
}

func (s *Streamer) inRange(c Coord) bool {
	dx, dz := c.X-s.center.X, c.Z-s.center.Z
	return max(dx, -dx) <= s.opts.Radius && max(dz, -dz) <= s.opts.Radius
}

// Update moves the centre, queues missing tiles in range and drops at
// most UnloadBudget loaded tiles out of range. It returns the dropped
// coordinates so the caller can release GPU resources.
func (s *Streamer) Update(center Coord) []Coord {
	if s.closed {
		return nil
	}
	s.center = center

	var dropped []Coord
	for c, t := range s.loaded {
		if len(dropped) >= s.opts.UnloadBudget {
			break
		}
		if !s.inRange(c) && t != nil {
			delete(s.loaded, c)
			delete(s.state, c)
			dropped = append(dropped, c)
		}
	}

	r := s.opts.Radius
	for dz := -r; dz <= r; dz++ {
		for dx := -r; dx <= r; dx++ {
			c := Coord{X: center.X + dx, Z: center.Z + dz}
			if s.state[c] != 0 {
				continue
			}
			select {
			case s.jobs <- c:
				s.state[c] = statePending
			default:
				// Queue full; the next Update retries.
				return dropped
			}
		}
	}
	return dropped
}

// Poll integrates at most LoadBudget finished tiles without blocking.
// It returns nothing once the streamer is closed.
// Failed tiles are forgotten so the next Update requests them again;
// tiles that left the range while loading are discarded.
func (s *Streamer) Poll() []*Tile {
	if s.closed {
		return nil
	}
	var ready []*Tile
	for len(ready) < s.opts.LoadBudget {
		select {
		case r, ok := <-s.results:
			if !ok {
				return ready
			}
			if r.err != nil {
				logger.Warn("tile load failed",
					zap.Int("x", r.coord.X), zap.Int("z", r.coord.Z), zap.Error(r.err))
				delete(s.state, r.coord)
				continue
			}
			if !s.inRange(r.coord) {
				delete(s.state, r.coord)
				continue
			}
			s.state[r.coord] = stateLoaded
			s.loaded[r.coord] = r.tile
			ready = append(ready, r.tile)
		default:
			return ready
		}
	}
	return ready
}

// Tile returns a loaded tile.
func (s *Streamer) Tile(c Coord) (*Tile, bool) {
	t, ok := s.loaded[c]
	return t, ok
}

// Loaded returns the number of loaded tiles.
func (s *Streamer) Loaded() int { return len(s.loaded) }

// Pending returns the number of requested tiles not yet integrated.
func (s *Streamer) Pending() int {
	n := 0
	for _, st := range s.state {
		if st == statePending {
			n++
		}
	}
	return n
}

// Close stops the workers after the queued tiles finish.
func (s *Streamer) Close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.jobs)
	go func() {
		// Drain so workers blocked on a full results channel can exit.
		for range s.results {
		}
	}()
	s.wg.Wait()
	close(s.results)
}
