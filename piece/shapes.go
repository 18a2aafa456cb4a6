package piece

import (
	"fmt"
	"strings"
)

// MaxPivotReach is the furthest any cell of a kind may sit from its pivot, in
// rows or columns. Rotation bounds checks rely on it.
const MaxPivotReach = 2

type Point struct {
	Row, Col int
}

func (p Point) Add(o Point) Point {
	return Point{Row: p.Row + o.Row, Col: p.Col + o.Col}
}

func (p Point) Sub(o Point) Point {
	return Point{Row: p.Row - o.Row, Col: p.Col - o.Col}
}

type Kind int

const (
	Square Kind = iota
	T
	Line
	L
	J
	S
	Z
	kindCount
)

var kindNames = [kindCount]string{
	Square: "square",
	T:      "t",
	Line:   "line",
	L:      "l",
	J:      "j",
	S:      "s",
	Z:      "z",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds returns every piece kind in enumeration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount)
	for k := range kindCount {
		kinds = append(kinds, k)
	}
	return kinds
}

// Shape is the spawn layout of a kind. Offsets are relative to the top left
// corner of the shape's bounding box.
type Shape struct {
	Kind     Kind
	Cells    [4]Point
	Pivot    Point
	HasPivot bool

	Width, Height int
}

var shapes [kindCount]Shape

// Bounds is the largest bounding box over all kinds. A board must be at least
// this big to spawn every kind.
var Bounds struct {
	Width, Height int
}

// ShapeOf returns the spawn layout for k. Asking for a kind without a
// definition is a programming error.
func ShapeOf(k Kind) Shape {
	if k < 0 || k >= kindCount {
		panic(fmt.Sprintf("piece: no shape defined for %v", k))
	}
	return shapes[k]
}

func init() {
	// 'O' is a block, 'X' a block that is also the rotation pivot.
	visualDefs := [kindCount]string{
		Square: `
|OO
|OO
`,
		Line: `
|OXOO
`,
		T: `
|OXO
| O
`,
		L: `
|OXO
|O
`,
		J: `
|OXO
|  O
`,
		S: `
| OO
|OX
`,
		Z: `
|OO
| XO
`,
	}

	for k, v := range visualDefs {
		s, err := parseVisual(Kind(k), v)
		if err != nil {
			panic(fmt.Sprintf("failed to parse visual for %v: %v", Kind(k), err))
		}
		if err := s.checkReach(); err != nil {
			panic(fmt.Sprintf("invalid shape %v: %v", Kind(k), err))
		}
		shapes[k] = s
		Bounds.Width = max(Bounds.Width, s.Width)
		Bounds.Height = max(Bounds.Height, s.Height)
	}
}

// parseVisual converts a visual raw string into a Shape. Only lines starting
// with '|' are read; the characters after it are grid columns.
func parseVisual(k Kind, v string) (Shape, error) {
	s := Shape{Kind: k}

	n := 0
	row := 0
	for ln := range strings.SplitSeq(strings.TrimSpace(v), "\n") {
		if !strings.HasPrefix(ln, "|") {
			continue
		}
		for col, ch := range ln[1:] {
			switch ch {
			case 'X':
				if s.HasPivot {
					return s, fmt.Errorf("more than one pivot")
				}
				s.Pivot = Point{Row: row, Col: col}
				s.HasPivot = true
				fallthrough
			case 'O':
				if n == len(s.Cells) {
					return s, fmt.Errorf("more than %d blocks", len(s.Cells))
				}
				s.Cells[n] = Point{Row: row, Col: col}
				s.Width = max(s.Width, col+1)
				n++
			case ' ':
			default:
				return s, fmt.Errorf("unexpected character %q", ch)
			}
		}
		row++
	}
	s.Height = row

	if n != len(s.Cells) {
		return s, fmt.Errorf("expected %d blocks, found %d", len(s.Cells), n)
	}
	return s, nil
}

func (s Shape) checkReach() error {
	if !s.HasPivot {
		return nil
	}
	for _, c := range s.Cells {
		d := c.Sub(s.Pivot)
		if abs(d.Row) > MaxPivotReach || abs(d.Col) > MaxPivotReach {
			return fmt.Errorf("cell %v is beyond %d of pivot %v", c, MaxPivotReach, s.Pivot)
		}
	}
	return nil
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
