// Package piece defines the seven tetromino kinds, their colors and a factory
// that picks them at random.
package piece

import (
	"fmt"
	"math/rand/v2"
	"time"
)

type Color uint8

const (
	ColorNone Color = iota
	Blue
	Orange
	Purple
	Red
	Teal
	Yellow
	colorEnd
)

const colorCount = int(colorEnd - Blue)

var colorNames = [colorEnd]string{
	ColorNone: "none",
	Blue:      "blue",
	Orange:    "orange",
	Purple:    "purple",
	Red:       "red",
	Teal:      "teal",
	Yellow:    "yellow",
}

func (c Color) String() string {
	if c >= colorEnd {
		return fmt.Sprintf("Color(%d)", uint8(c))
	}
	return colorNames[c]
}

// Colors returns every block color, excluding ColorNone.
func Colors() []Color {
	colors := make([]Color, 0, colorCount)
	for c := Blue; c < colorEnd; c++ {
		colors = append(colors, c)
	}
	return colors
}

// Piece is a freshly chosen piece, not yet placed on a board.
type Piece struct {
	Shape
	Color Color
}

type Factory struct {
	rng *rand.Rand
}

// NewFactory returns a Factory drawing from src. A nil src seeds from the
// clock.
func NewFactory(src rand.Source) *Factory {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>32|1)
	}
	return &Factory{rng: rand.New(src)}
}

// Choose picks a kind and, independently, a color, both uniformly.
func (f *Factory) Choose() Piece {
	k := Kind(f.rng.IntN(int(kindCount)))
	c := Blue + Color(f.rng.IntN(colorCount))
	return Piece{Shape: ShapeOf(k), Color: c}
}

// New builds a Piece of a fixed kind and color.
func New(k Kind, c Color) Piece {
	if c == ColorNone || c >= colorEnd {
		panic(fmt.Sprintf("piece: invalid color %v", c))
	}
	return Piece{Shape: ShapeOf(k), Color: c}
}
