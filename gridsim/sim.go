// Package gridsim simulates a falling block board. A Simulation owns the
// occupancy grid and the falling piece; drivers send it commands from any
// goroutine and render the Observation each command returns.
package gridsim

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/ghthor/gridfall/piece"
)

const (
	DefaultRows    = 17
	DefaultColumns = 10
)

// State is where the board is in the spawn, fall, lock cycle.
type State int

const (
	Spawning State = iota
	Falling
	GameOver
)

func (s State) String() string {
	switch s {
	case Spawning:
		return "spawning"
	case Falling:
		return "falling"
	case GameOver:
		return "game over"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Direction is a horizontal step for Move.
type Direction int

const (
	Left  Direction = -1
	Right Direction = 1
)

// Chooser supplies the next piece to spawn. *piece.Factory is the usual one.
type Chooser interface {
	Choose() piece.Piece
}

// Option configures a Simulation in New.
type Option func(*Simulation)

// WithSize sets the board size. The default is DefaultRows x DefaultColumns.
func WithSize(rows, columns int) Option {
	return func(s *Simulation) {
		s.rows, s.cols = rows, columns
	}
}

func WithChooser(c Chooser) Option {
	return func(s *Simulation) {
		s.chooser = c
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Simulation) {
		s.log = l
	}
}

type activePiece struct {
	live     bool
	kind     piece.Kind
	cells    [4]CellID
	pivot    piece.Point
	hasPivot bool
}

func (p *activePiece) has(id CellID) bool {
	if !p.live {
		return false
	}
	for _, c := range p.cells {
		if c == id {
			return true
		}
	}
	return false
}

// Simulation is safe for concurrent use. Every command runs under a single
// mutex for its whole duration.
type Simulation struct {
	mu sync.Mutex

	rows, cols int

	grid   *grid
	cells  *arena
	active activePiece
	state  State

	lastCleared int

	chooser Chooser
	log     *log.Logger
}

// New builds an empty board in the Spawning state. The first Spawn or Tick
// places a piece.
func New(opts ...Option) (*Simulation, error) {
	s := &Simulation{
		rows: DefaultRows,
		cols: DefaultColumns,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.rows <= 0 || s.cols <= 0 {
		return nil, fmt.Errorf("%w: grid must have positive dimensions, got %dx%d",
			ErrInvalidConfig, s.rows, s.cols)
	}
	if s.rows < piece.Bounds.Height || s.cols < piece.Bounds.Width {
		return nil, fmt.Errorf("%w: %dx%d grid cannot hold a %dx%d piece",
			ErrInvalidConfig, s.rows, s.cols, piece.Bounds.Height, piece.Bounds.Width)
	}

	if s.chooser == nil {
		s.chooser = piece.NewFactory(nil)
	}
	if s.log == nil {
		s.log = log.Default().With("component", "gridsim")
	}

	s.grid = newGrid(s.rows, s.cols)
	s.cells = newArena(s.rows * s.cols)
	return s, nil
}

func (s *Simulation) Rows() int    { return s.rows }
func (s *Simulation) Columns() int { return s.cols }

// step reports what a single command did to the board.
type step struct {
	changed bool
	locked  bool
}

// do runs f with the mutex held. f and everything it calls must not take the
// mutex again.
func (s *Simulation) do(f func() step) (Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == GameOver {
		return s.observe(step{}), ErrGameOver
	}
	return s.observe(f()), nil
}

// Spawn places a new piece at the top of the board. It does nothing while a
// piece is still falling.
func (s *Simulation) Spawn() (Observation, error) {
	return s.do(func() step {
		if s.active.live {
			return step{}
		}
		return step{changed: s.spawn()}
	})
}

// Tick is one gravity step: drop the piece a row, or lock it when it cannot
// drop. With no piece in play it spawns one.
func (s *Simulation) Tick() (Observation, error) {
	return s.do(s.gravity)
}

// ForceDown runs exactly one gravity step now, independent of the driver's
// timer.
func (s *Simulation) ForceDown() (Observation, error) {
	return s.do(s.gravity)
}

// HardDrop drops the piece until it locks.
func (s *Simulation) HardDrop() (Observation, error) {
	return s.do(func() step {
		if !s.active.live {
			return s.gravity()
		}
		for s.canShift(down) {
			s.shift(down)
		}
		s.lock()
		return step{changed: true, locked: true}
	})
}

// Move shifts the piece one column. A blocked move leaves the board untouched.
func (s *Simulation) Move(dir Direction) (Observation, error) {
	return s.do(func() step {
		if !s.active.live {
			return step{}
		}
		d := piece.Point{Col: int(dir)}
		if !s.canShift(d) {
			return step{}
		}
		s.shift(d)
		return step{changed: true}
	})
}

// Rotate turns the piece 90 degrees clockwise about its pivot, or not at all.
func (s *Simulation) Rotate() (Observation, error) {
	return s.do(func() step { return s.rotate(true) })
}

// RotateCounter turns the piece 90 degrees counter clockwise about its pivot.
func (s *Simulation) RotateCounter() (Observation, error) {
	return s.do(func() step { return s.rotate(false) })
}

// Reset empties the board and leaves GameOver.
func (s *Simulation) Reset() Observation {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grid.reset()
	s.cells.reset()
	s.active = activePiece{}
	s.state = Spawning
	s.lastCleared = 0
	return s.observe(step{changed: true})
}

func (s *Simulation) Observe() Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observe(step{})
}

var down = piece.Point{Row: 1}

func (s *Simulation) gravity() step {
	if !s.active.live {
		return step{changed: s.spawn()}
	}
	if s.canShift(down) {
		s.shift(down)
		return step{changed: true}
	}
	s.lock()
	return step{changed: true, locked: true}
}

func (s *Simulation) spawn() bool {
	p := s.chooser.Choose()
	origin := piece.Point{Col: (s.cols - p.Width) / 2}

	for _, off := range p.Cells {
		at := origin.Add(off)
		if !s.grid.inBounds(at) || s.grid.at(at) != NoCell {
			s.state = GameOver
			s.log.Debug("game over", "kind", p.Kind, "at", at)
			return false
		}
	}

	s.active = activePiece{
		live:     true,
		kind:     p.Kind,
		pivot:    origin.Add(p.Pivot),
		hasPivot: p.HasPivot,
	}
	for i, off := range p.Cells {
		at := origin.Add(off)
		id := s.cells.alloc(p.Color, at)
		s.grid.set(at, id)
		s.active.cells[i] = id
	}
	s.state = Falling
	return true
}

// passable reports whether an active cell may move onto p. Cells of the
// active piece never block it.
func (s *Simulation) passable(p piece.Point) bool {
	if !s.grid.inBounds(p) {
		return false
	}
	id := s.grid.at(p)
	return id == NoCell || s.active.has(id)
}

func (s *Simulation) canShift(d piece.Point) bool {
	for _, id := range s.active.cells {
		if !s.passable(s.cells.get(id).At().Add(d)) {
			return false
		}
	}
	return true
}

func (s *Simulation) shift(d piece.Point) {
	var targets [4]piece.Point
	for i, id := range s.active.cells {
		targets[i] = s.cells.get(id).At().Add(d)
	}
	s.place(targets)
	s.active.pivot = s.active.pivot.Add(d)
}

func (s *Simulation) rotate(clockwise bool) step {
	if !s.active.live || !s.active.hasPivot {
		return step{}
	}

	pv := s.active.pivot
	var targets [4]piece.Point
	for i, id := range s.active.cells {
		d := s.cells.get(id).At().Sub(pv)
		to := piece.Point{Row: pv.Row + d.Col, Col: pv.Col - d.Row}
		if !clockwise {
			to = piece.Point{Row: pv.Row - d.Col, Col: pv.Col + d.Row}
		}
		if !s.passable(to) {
			return step{}
		}
		targets[i] = to
	}

	s.place(targets)
	return step{changed: true}
}

// place moves every active cell to its target. All old positions are cleared
// before any new one is written since targets overlap the old footprint.
func (s *Simulation) place(targets [4]piece.Point) {
	for _, id := range s.active.cells {
		s.grid.set(s.cells.get(id).At(), NoCell)
	}
	for i, id := range s.active.cells {
		c := s.cells.get(id)
		c.Row, c.Col = targets[i].Row, targets[i].Col
		s.grid.set(targets[i], id)
	}
}

func (s *Simulation) lock() {
	kind := s.active.kind
	s.active = activePiece{}
	s.state = Spawning

	s.lastCleared = s.checkLines()
	s.log.Debug("lock", "kind", kind, "lines", s.lastCleared)

	s.spawn()
}

// checkLines removes every full row, top to bottom, and returns how many it
// removed. After a removal the same row index is scanned again since the rows
// above have shifted into it.
func (s *Simulation) checkLines() int {
	n := 0
	for r := 0; r < s.rows; {
		if !s.grid.full(r) {
			r++
			continue
		}
		s.clearRow(r)
		n++
	}
	return n
}

func (s *Simulation) clearRow(r int) {
	for _, id := range s.grid.row(r) {
		s.cells.free(id)
	}
	for row := r; row > 0; row-- {
		copy(s.grid.row(row), s.grid.row(row-1))
		for _, id := range s.grid.row(row) {
			if id != NoCell {
				s.cells.get(id).Row = row
			}
		}
	}
	clear(s.grid.row(0))
}
