package marker

import (
	"fmt"
	"sync"
)

// Cell addresses a grid cell in bitmap orientation: Col grows to the right,
// Row grows downwards.
type Cell struct {
	Col, Row int
}

// Layout maps identity bit i to the grid cell that stores it. Cells are
// indexed row-major starting from the bottom-left corner; the four corners
// are skipped, which shifts the running index by +1, +2 and +3 across the
// bottom row, the middle rows and the top row.
type Layout struct {
	width int
	cells []Cell
}

var layouts sync.Map // grid width -> *Layout

// LayoutFor returns the shared layout for a grid width, building it on first
// use.
func LayoutFor(width int) (*Layout, error) {
	if width < MinGridWidth || width > MaxGridWidth {
		return nil, fmt.Errorf("%w: %d", ErrGridWidth, width)
	}
	if l, ok := layouts.Load(width); ok {
		return l.(*Layout), nil
	}
	l, _ := layouts.LoadOrStore(width, newLayout(width))
	return l.(*Layout), nil
}

func newLayout(g int) *Layout {
	n := g*g - 4
	l := &Layout{width: g, cells: make([]Cell, n)}
	for bit := range n {
		where := cellIndex(bit, g)
		l.cells[bit] = Cell{Col: where % g, Row: g - 1 - where/g}
	}
	return l
}

// cellIndex converts a bit index to the bottom-up row-major cell index.
func cellIndex(bit, g int) int {
	transition0 := g - 3
	transition1 := transition0 + g*(g-2)
	transition2 := transition1 + g - 2

	switch {
	case bit <= transition0:
		return bit + 1
	case bit <= transition1:
		return bit + 2
	case bit <= transition2:
		return bit + 3
	default:
		panic(fmt.Sprintf("marker: bit %d out of range for grid %d", bit, g))
	}
}

// Width returns the grid width.
func (l *Layout) Width() int { return l.width }

// Bits returns the number of data bits.
func (l *Layout) Bits() int { return len(l.cells) }

// Cell returns the canonical cell holding bit i.
func (l *Layout) Cell(i int) Cell { return l.cells[i] }

// Orientation corners in canonical orientation. The anchor is black, the
// other three are white.
func (l *Layout) anchor() Cell { return Cell{Col: 0, Row: l.width - 1} }

func (l *Layout) whiteCorners() [3]Cell {
	g := l.width
	return [3]Cell{{Col: 0, Row: 0}, {Col: g - 1, Row: 0}, {Col: g - 1, Row: g - 1}}
}

// rotate returns where canonical cell c appears after the marker has been
// turned k quarter turns counter-clockwise.
func rotate(c Cell, g, k int) Cell {
	for range k & 3 {
		c = Cell{Col: c.Row, Row: g - 1 - c.Col}
	}
	return c
}
