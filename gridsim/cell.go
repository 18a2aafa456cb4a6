package gridsim

import (
	"github.com/ghthor/gridfall/piece"
	"github.com/kamstrup/intmap"
)

// CellID is a stable handle to a Cell. The zero value marks an empty grid
// position, so live ids start at 1.
type CellID uint32

// NoCell marks an empty grid position.
const NoCell CellID = 0

// Cell is one occupied square of the board.
type Cell struct {
	Color    piece.Color
	Row, Col int
}

func (c *Cell) At() piece.Point {
	return piece.Point{Row: c.Row, Col: c.Col}
}

// arena owns every Cell on the board. Two cells with the same color and
// position are still different cells; callers compare ids, never values.
type arena struct {
	next  CellID
	cells *intmap.Map[CellID, *Cell]
}

func newArena(capacity int) *arena {
	return &arena{
		cells: intmap.New[CellID, *Cell](capacity),
	}
}

func (a *arena) alloc(c piece.Color, at piece.Point) CellID {
	a.next++
	a.cells.Put(a.next, &Cell{Color: c, Row: at.Row, Col: at.Col})
	return a.next
}

func (a *arena) get(id CellID) *Cell {
	c, ok := a.cells.Get(id)
	if !ok {
		return nil
	}
	return c
}

func (a *arena) free(id CellID) {
	a.cells.Del(id)
}

func (a *arena) len() int {
	return a.cells.Len()
}

func (a *arena) reset() {
	a.cells.Clear()
	a.next = NoCell
}
