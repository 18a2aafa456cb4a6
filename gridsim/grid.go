package gridsim

import "github.com/ghthor/gridfall/piece"

// grid stores cell ids in row-major order: index = row*cols + col.
type grid struct {
	rows, cols int
	ids        []CellID
}

func newGrid(rows, cols int) *grid {
	return &grid{
		rows: rows,
		cols: cols,
		ids:  make([]CellID, rows*cols),
	}
}

func (g *grid) inBounds(p piece.Point) bool {
	return p.Row >= 0 && p.Row < g.rows && p.Col >= 0 && p.Col < g.cols
}

func (g *grid) at(p piece.Point) CellID {
	return g.ids[p.Row*g.cols+p.Col]
}

func (g *grid) set(p piece.Point, id CellID) {
	g.ids[p.Row*g.cols+p.Col] = id
}

func (g *grid) row(r int) []CellID {
	return g.ids[r*g.cols : (r+1)*g.cols]
}

func (g *grid) full(r int) bool {
	for _, id := range g.row(r) {
		if id == NoCell {
			return false
		}
	}
	return true
}

func (g *grid) reset() {
	clear(g.ids)
}
