package gridsim

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/ghthor/gridfall/piece"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// sequence hands out the same kinds in order, forever.
type sequence struct {
	kinds []piece.Kind
	i     int
}

func (s *sequence) Choose() piece.Piece {
	k := s.kinds[s.i%len(s.kinds)]
	s.i++
	return piece.New(k, piece.Teal)
}

func newSim(t *testing.T, rows, cols int, kinds ...piece.Kind) *Simulation {
	t.Helper()
	s, err := New(WithSize(rows, cols), WithChooser(&sequence{kinds: kinds}))
	require.NoError(t, err)
	return s
}

func placeStatic(s *Simulation, r, c int) CellID {
	at := piece.Point{Row: r, Col: c}
	id := s.cells.alloc(piece.Red, at)
	s.grid.set(at, id)
	return id
}

func fillRow(s *Simulation, r int, skip ...int) {
	for c := range s.cols {
		if slices.Contains(skip, c) {
			continue
		}
		placeStatic(s, r, c)
	}
}

func points(pts ...[2]int) []piece.Point {
	out := make([]piece.Point, 0, len(pts))
	for _, p := range pts {
		out = append(out, piece.Point{Row: p[0], Col: p[1]})
	}
	return out
}

// requireConsistent checks that the grid and the arena describe the same
// board and that every active cell is in the grid under its own id.
func requireConsistent(t *testing.T, s *Simulation) {
	t.Helper()

	occupied := 0
	for i, id := range s.grid.ids {
		if id == NoCell {
			continue
		}
		occupied++
		c := s.cells.get(id)
		require.NotNil(t, c, "grid index %d holds freed cell %d", i, id)
		require.Equal(t, i, c.Row*s.cols+c.Col, "cell %d stored at the wrong index", id)
	}
	require.Equal(t, occupied, s.cells.len(), "arena holds cells missing from the grid")

	if !s.active.live {
		return
	}
	seen := make(map[piece.Point]bool, 4)
	for _, id := range s.active.cells {
		c := s.cells.get(id)
		require.NotNil(t, c)
		require.Equal(t, id, s.grid.at(c.At()))
		require.False(t, seen[c.At()], "two active cells share %v", c.At())
		seen[c.At()] = true
	}
}

func TestNew(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	assert.Equal(t, DefaultRows, s.Rows())
	assert.Equal(t, DefaultColumns, s.Columns())

	o := s.Observe()
	assert.Equal(t, Spawning, o.State)
	assert.Equal(t, DefaultRows, o.Rows())
	assert.Equal(t, DefaultColumns, o.Columns())
	assert.Empty(t, o.Active)

	for _, size := range [][2]int{{0, 10}, {17, 0}, {-1, 10}, {1, 10}, {17, 3}} {
		_, err := New(WithSize(size[0], size[1]))
		require.ErrorIs(t, err, ErrInvalidConfig, "%v", size)
	}
}

func TestSpawn(t *testing.T) {
	s := newSim(t, 10, 10, piece.Line)

	o, err := s.Spawn()
	require.NoError(t, err)
	assert.True(t, o.Changed)
	assert.Equal(t, Falling, o.State)
	assert.Equal(t, piece.Line, o.Kind)
	assert.Equal(t, points([2]int{0, 3}, [2]int{0, 4}, [2]int{0, 5}, [2]int{0, 6}), o.Active)
	assert.Equal(t, piece.Point{Row: 0, Col: 4}, s.active.pivot)
	assert.Equal(t, "...@@@@...", o.String()[:10])
	requireConsistent(t, s)

	t.Run("is a no-op while a piece is falling", func(t *testing.T) {
		before := slices.Clone(s.grid.ids)
		o, err := s.Spawn()
		require.NoError(t, err)
		assert.False(t, o.Changed)
		assert.Equal(t, before, s.grid.ids)
	})
}

func TestTickSpawnsWhenEmpty(t *testing.T) {
	s := newSim(t, 10, 10, piece.T)

	o, err := s.Tick()
	require.NoError(t, err)
	assert.True(t, o.Changed)
	assert.Equal(t, points([2]int{0, 3}, [2]int{0, 4}, [2]int{0, 5}, [2]int{1, 4}), o.Active)
}

func TestMoveHorizontal(t *testing.T) {
	s := newSim(t, 10, 10, piece.Line)
	_, err := s.Spawn()
	require.NoError(t, err)

	for range 3 {
		o, err := s.Move(Right)
		require.NoError(t, err)
		require.True(t, o.Changed)
	}

	o := s.Observe()
	assert.Equal(t, points([2]int{0, 6}, [2]int{0, 7}, [2]int{0, 8}, [2]int{0, 9}), o.Active)

	before := slices.Clone(s.grid.ids)
	o, err = s.Move(Right)
	require.NoError(t, err)
	assert.False(t, o.Changed)
	assert.Equal(t, before, s.grid.ids)
	assert.Equal(t, points([2]int{0, 6}, [2]int{0, 7}, [2]int{0, 8}, [2]int{0, 9}), o.Active)
	assert.Equal(t, piece.Point{Row: 0, Col: 7}, s.active.pivot)
	requireConsistent(t, s)

	for range 6 {
		_, err = s.Move(Left)
		require.NoError(t, err)
	}
	o, err = s.Move(Left)
	require.NoError(t, err)
	assert.False(t, o.Changed)
	assert.Equal(t, points([2]int{0, 0}, [2]int{0, 1}, [2]int{0, 2}, [2]int{0, 3}), o.Active)
	requireConsistent(t, s)
}

func TestMoveBlockedByForeignCell(t *testing.T) {
	s := newSim(t, 10, 10, piece.T)
	_, err := s.Spawn()
	require.NoError(t, err)

	// T occupies (0,3) (0,4) (0,5) (1,4); block the stem's left side only.
	placeStatic(s, 1, 3)

	before := slices.Clone(s.grid.ids)
	o, err := s.Move(Left)
	require.NoError(t, err)
	assert.False(t, o.Changed)
	assert.Equal(t, before, s.grid.ids)
	requireConsistent(t, s)

	o, err = s.Move(Right)
	require.NoError(t, err)
	assert.True(t, o.Changed)
	requireConsistent(t, s)
}

func TestGravity(t *testing.T) {
	t.Run("drops one row above the floor", func(t *testing.T) {
		s := newSim(t, 6, 10, piece.Line)
		_, err := s.Spawn()
		require.NoError(t, err)
		for range 4 {
			_, err = s.Tick()
			require.NoError(t, err)
		}
		require.Equal(t, points([2]int{4, 3}, [2]int{4, 4}, [2]int{4, 5}, [2]int{4, 6}), s.Observe().Active)

		o, err := s.Tick()
		require.NoError(t, err)
		assert.False(t, o.Locked)
		assert.Equal(t, points([2]int{5, 3}, [2]int{5, 4}, [2]int{5, 5}, [2]int{5, 6}), o.Active)
		requireConsistent(t, s)

		o, err = s.Tick()
		require.NoError(t, err)
		assert.True(t, o.Locked)
		assert.Equal(t, 0, o.LinesCleared)
		assert.Equal(t, points([2]int{0, 3}, [2]int{0, 4}, [2]int{0, 5}, [2]int{0, 6}), o.Active)
		assert.Equal(t, "####", string(colorsAsMarks(o.Grid[5][3:7])))
		requireConsistent(t, s)
	})

	t.Run("locks on a foreign cell below", func(t *testing.T) {
		s := newSim(t, 6, 10, piece.Line)
		_, err := s.Spawn()
		require.NoError(t, err)
		for range 3 {
			_, err = s.Tick()
			require.NoError(t, err)
		}
		placeStatic(s, 4, 6)
		old := s.active.cells

		o, err := s.Tick()
		require.NoError(t, err)
		assert.True(t, o.Locked)
		for _, id := range old {
			assert.False(t, s.active.has(id))
			assert.Equal(t, 3, s.cells.get(id).Row)
		}
		assert.Equal(t, points([2]int{0, 3}, [2]int{0, 4}, [2]int{0, 5}, [2]int{0, 6}), o.Active)
		requireConsistent(t, s)
	})

	t.Run("own cells do not block", func(t *testing.T) {
		s := newSim(t, 6, 10, piece.Line)
		_, err := s.Spawn()
		require.NoError(t, err)
		_, err = s.Tick()
		require.NoError(t, err)
		_, err = s.Rotate()
		require.NoError(t, err)
		// vertical line: every cell but the lowest has an active cell below it
		o, err := s.Tick()
		require.NoError(t, err)
		assert.True(t, o.Changed)
		assert.False(t, o.Locked)
		requireConsistent(t, s)
	})
}

func colorsAsMarks(row []piece.Color) []byte {
	b := make([]byte, 0, len(row))
	for _, c := range row {
		if c == piece.ColorNone {
			b = append(b, '.')
		} else {
			b = append(b, '#')
		}
	}
	return b
}

func TestForceDownMatchesTick(t *testing.T) {
	a := newSim(t, 8, 10, piece.S, piece.Z)
	b := newSim(t, 8, 10, piece.S, piece.Z)

	for range 20 {
		oa, errA := a.Tick()
		ob, errB := b.ForceDown()
		require.Equal(t, errA, errB)
		require.Equal(t, oa, ob)
	}
}

func TestHardDrop(t *testing.T) {
	s := newSim(t, 6, 10, piece.Line, piece.T)
	_, err := s.Spawn()
	require.NoError(t, err)
	landed := s.active.cells

	o, err := s.HardDrop()
	require.NoError(t, err)
	assert.True(t, o.Locked)
	assert.Equal(t, piece.T, o.Kind)
	for _, id := range landed {
		assert.Equal(t, 5, s.cells.get(id).Row)
	}
	requireConsistent(t, s)
}

func TestRotate(t *testing.T) {
	s := newSim(t, 10, 10, piece.Line)
	_, err := s.Spawn()
	require.NoError(t, err)

	t.Run("rejected above the top row", func(t *testing.T) {
		before := slices.Clone(s.grid.ids)
		o, err := s.Rotate()
		require.NoError(t, err)
		assert.False(t, o.Changed)
		assert.Equal(t, before, s.grid.ids)
	})

	for range 2 {
		_, err = s.Tick()
		require.NoError(t, err)
	}

	t.Run("clockwise about the pivot", func(t *testing.T) {
		o, err := s.Rotate()
		require.NoError(t, err)
		assert.True(t, o.Changed)
		assert.Equal(t, points([2]int{1, 4}, [2]int{2, 4}, [2]int{3, 4}, [2]int{4, 4}), o.Active)
		requireConsistent(t, s)
	})

	t.Run("counter clockwise undoes clockwise", func(t *testing.T) {
		o, err := s.RotateCounter()
		require.NoError(t, err)
		assert.True(t, o.Changed)
		assert.Equal(t, points([2]int{2, 3}, [2]int{2, 4}, [2]int{2, 5}, [2]int{2, 6}), o.Active)
		requireConsistent(t, s)
	})

	t.Run("rejected by a foreign cell", func(t *testing.T) {
		placeStatic(s, 4, 4)
		before := slices.Clone(s.grid.ids)
		o, err := s.Rotate()
		require.NoError(t, err)
		assert.False(t, o.Changed)
		assert.Equal(t, before, s.grid.ids)
		assert.Equal(t, points([2]int{2, 3}, [2]int{2, 4}, [2]int{2, 5}, [2]int{2, 6}), o.Active)
		requireConsistent(t, s)
	})
}

func TestRotateSquareIsNoop(t *testing.T) {
	s := newSim(t, 10, 10, piece.Square)
	for range 3 {
		_, err := s.Tick()
		require.NoError(t, err)
	}

	before := slices.Clone(s.grid.ids)
	o, err := s.Rotate()
	require.NoError(t, err)
	assert.False(t, o.Changed)
	assert.Equal(t, before, s.grid.ids)
}

func TestRotateFourTimesIsIdentity(t *testing.T) {
	for _, k := range piece.Kinds() {
		t.Run(k.String(), func(t *testing.T) {
			s := newSim(t, 17, 10, k)
			for range 3 {
				_, err := s.Tick()
				require.NoError(t, err)
			}
			start := s.Observe().Active

			for range 4 {
				o, err := s.Rotate()
				require.NoError(t, err)
				require.Equal(t, k != piece.Square, o.Changed)
				requireConsistent(t, s)
			}
			assert.Equal(t, start, s.Observe().Active)

			for range 4 {
				_, err := s.RotateCounter()
				require.NoError(t, err)
			}
			assert.Equal(t, start, s.Observe().Active)
		})
	}
}

func TestCheckLines(t *testing.T) {
	t.Run("single row", func(t *testing.T) {
		s := newSim(t, 6, 4, piece.Line)
		above := placeStatic(s, 2, 1)
		justAbove := placeStatic(s, 3, 0)
		fillRow(s, 4)
		below := placeStatic(s, 5, 2)
		formerRow3 := slices.Clone(s.grid.row(3))

		require.Equal(t, 1, s.checkLines())
		assert.Equal(t, formerRow3, s.grid.row(4))
		assert.Equal(t, 3, s.cells.get(above).Row)
		assert.Equal(t, 4, s.cells.get(justAbove).Row)
		assert.Equal(t, 5, s.cells.get(below).Row)
		assert.Equal(t, make([]CellID, 4), s.grid.row(0))
		requireConsistent(t, s)
	})

	t.Run("adjacent rows", func(t *testing.T) {
		s := newSim(t, 6, 4, piece.Line)
		marker := placeStatic(s, 2, 3)
		fillRow(s, 3)
		fillRow(s, 4)

		require.Equal(t, 2, s.checkLines())
		assert.Equal(t, 4, s.cells.get(marker).Row)
		assert.Equal(t, 1, s.cells.len())
		requireConsistent(t, s)
	})

	t.Run("separated rows", func(t *testing.T) {
		s := newSim(t, 6, 4, piece.Line)
		fillRow(s, 1)
		marker := placeStatic(s, 2, 0)
		fillRow(s, 4)
		floor := placeStatic(s, 5, 1)

		require.Equal(t, 2, s.checkLines())
		assert.Equal(t, 3, s.cells.get(marker).Row)
		assert.Equal(t, 5, s.cells.get(floor).Row)
		assert.Equal(t, 2, s.cells.len())
		requireConsistent(t, s)
	})

	t.Run("nothing full", func(t *testing.T) {
		s := newSim(t, 6, 4, piece.Line)
		fillRow(s, 5, 0)
		before := slices.Clone(s.grid.ids)
		require.Equal(t, 0, s.checkLines())
		assert.Equal(t, before, s.grid.ids)
	})
}

func TestLockClearsCompletedRow(t *testing.T) {
	s := newSim(t, 6, 10, piece.Line)
	fillRow(s, 5, 2)
	marker := placeStatic(s, 3, 7)

	_, err := s.Spawn()
	require.NoError(t, err)
	_, err = s.Tick()
	require.NoError(t, err)
	o, err := s.Rotate()
	require.NoError(t, err)
	require.Equal(t, points([2]int{0, 4}, [2]int{1, 4}, [2]int{2, 4}, [2]int{3, 4}), o.Active)

	for range 2 {
		o, err = s.Move(Left)
		require.NoError(t, err)
		require.True(t, o.Changed)
	}
	for range 2 {
		o, err = s.Tick()
		require.NoError(t, err)
		require.False(t, o.Locked)
	}
	require.Equal(t, points([2]int{2, 2}, [2]int{3, 2}, [2]int{4, 2}, [2]int{5, 2}), o.Active)

	o, err = s.Tick()
	require.NoError(t, err)
	assert.True(t, o.Locked)
	assert.Equal(t, 1, o.LinesCleared)
	assert.Equal(t, 4, s.cells.get(marker).Row)

	want := []string{
		"...@@@@...",
		"..........",
		"..........",
		"..#.......",
		"..#....#..",
		"..#.......",
	}
	assert.Equal(t, want, splitLines(o.String()))
	requireConsistent(t, s)

	o, err = s.Tick()
	require.NoError(t, err)
	assert.Equal(t, 1, o.LinesCleared, "lines cleared sticks until the next lock")
	assert.False(t, o.Locked)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := range len(s) {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func TestGameOver(t *testing.T) {
	s := newSim(t, 2, 5, piece.Line)

	o, err := s.HardDrop()
	require.NoError(t, err)
	require.Equal(t, Falling, o.State)

	o, err = s.HardDrop()
	require.NoError(t, err)
	assert.True(t, o.Locked)
	require.Equal(t, 0, o.LinesCleared)
	require.False(t, o.GameOver)

	// the second line lands on the first and the third has nowhere to spawn
	o, err = s.HardDrop()
	require.NoError(t, err)
	assert.True(t, o.Locked)
	assert.True(t, o.GameOver)
	assert.Equal(t, GameOver, o.State)
	assert.Empty(t, o.Active)
	requireConsistent(t, s)

	before := slices.Clone(s.grid.ids)
	for _, cmd := range []func() (Observation, error){
		s.Spawn, s.Tick, s.ForceDown, s.HardDrop, s.Rotate, s.RotateCounter,
		func() (Observation, error) { return s.Move(Left) },
	} {
		o, err := cmd()
		require.ErrorIs(t, err, ErrGameOver)
		assert.True(t, o.GameOver)
		assert.False(t, o.Changed)
	}
	assert.Equal(t, before, s.grid.ids)
	assert.True(t, s.Observe().GameOver)

	o = s.Reset()
	assert.Equal(t, Spawning, o.State)
	assert.False(t, o.GameOver)
	assert.Equal(t, 0, s.cells.len())
	assert.Equal(t, make([]CellID, 10), s.grid.ids)

	_, err = s.Tick()
	require.NoError(t, err)
	requireConsistent(t, s)
}

func TestObservationIsACopy(t *testing.T) {
	s := newSim(t, 10, 10, piece.Line)
	o, err := s.Spawn()
	require.NoError(t, err)

	o.Grid[0][3] = piece.ColorNone
	o.Active[0] = piece.Point{Row: 9, Col: 9}

	again := s.Observe()
	assert.Equal(t, piece.Teal, again.Grid[0][3])
	assert.Equal(t, piece.Point{Row: 0, Col: 3}, again.Active[0])
}

func TestConcurrentCommands(t *testing.T) {
	s, err := New(WithChooser(piece.NewFactory(rand.NewPCG(3, 4))))
	require.NoError(t, err)

	grp, _ := errgroup.WithContext(t.Context())
	cmds := []func() (Observation, error){
		s.Tick,
		s.ForceDown,
		s.Rotate,
		s.RotateCounter,
		func() (Observation, error) { return s.Move(Left) },
		func() (Observation, error) { return s.Move(Right) },
	}
	for _, cmd := range cmds {
		grp.Go(func() error {
			for range 500 {
				if _, err := cmd(); err != nil && !errors.Is(err, ErrGameOver) {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, grp.Wait())

	s.mu.Lock()
	defer s.mu.Unlock()
	requireConsistent(t, s)
}
