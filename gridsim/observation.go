package gridsim

import (
	"strings"

	"github.com/ghthor/gridfall/piece"
)

// Observation is a copy of the board taken at the end of a command. It shares
// nothing with the Simulation.
type Observation struct {
	Grid   [][]piece.Color
	Active []piece.Point
	Kind   piece.Kind

	State    State
	GameOver bool

	// LinesCleared is the result of the most recent lock, 0 if none.
	LinesCleared int

	// Locked is set when this command locked a piece.
	Locked bool
	// Changed is set when this command changed the board.
	Changed bool
}

func (s *Simulation) observe(st step) Observation {
	o := Observation{
		Grid:         make([][]piece.Color, s.rows),
		State:        s.state,
		GameOver:     s.state == GameOver,
		LinesCleared: s.lastCleared,
		Locked:       st.locked,
		Changed:      st.changed,
	}

	colors := make([]piece.Color, s.rows*s.cols)
	for i, id := range s.grid.ids {
		if id != NoCell {
			colors[i] = s.cells.get(id).Color
		}
	}
	for r := range o.Grid {
		o.Grid[r] = colors[r*s.cols : (r+1)*s.cols : (r+1)*s.cols]
	}

	if s.active.live {
		o.Kind = s.active.kind
		o.Active = make([]piece.Point, 0, len(s.active.cells))
		for _, id := range s.active.cells {
			o.Active = append(o.Active, s.cells.get(id).At())
		}
	}
	return o
}

func (o Observation) Rows() int { return len(o.Grid) }

func (o Observation) Columns() int {
	if len(o.Grid) == 0 {
		return 0
	}
	return len(o.Grid[0])
}

func (o Observation) IsActive(p piece.Point) bool {
	for _, a := range o.Active {
		if a == p {
			return true
		}
	}
	return false
}

// String draws the board one line per row: '.' empty, '#' settled, '@' falling.
func (o Observation) String() string {
	var b strings.Builder
	for r, row := range o.Grid {
		for c, color := range row {
			switch {
			case color == piece.ColorNone:
				b.WriteByte('.')
			case o.IsActive(piece.Point{Row: r, Col: c}):
				b.WriteByte('@')
			default:
				b.WriteByte('#')
			}
		}
		if r+1 != len(o.Grid) {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
