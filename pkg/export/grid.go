// Package export renders timetable grids as CSV, PDF and XLSX documents.
package export

import "fmt"

// Grid is a timetable laid out as a table: one column per day and one row per
// period. A cell may cover several consecutive periods.
type Grid struct {
	Title   string
	Columns []string
	Rows    []string
	Cells   []Cell
}

// Cell is a block of the grid starting at (Column, Row) and covering Span rows.
type Cell struct {
	Column int
	Row    int
	Span   int
	Text   string
	// Hue tints the cell in formats that support colour.
	Hue *int
}

func (g Grid) validate() error {
	if len(g.Columns) == 0 || len(g.Rows) == 0 {
		return fmt.Errorf("grid requires at least one column and one row")
	}
	for _, c := range g.Cells {
		if c.Column < 0 || c.Column >= len(g.Columns) {
			return fmt.Errorf("cell column %d outside grid", c.Column)
		}
		if c.Span < 1 || c.Row < 0 || c.Row+c.Span > len(g.Rows) {
			return fmt.Errorf("cell rows %d+%d outside grid", c.Row, c.Span)
		}
	}
	return nil
}

// matrix spreads every cell's text over the rows it covers.
func (g Grid) matrix() [][]string {
	out := make([][]string, len(g.Rows))
	for i := range out {
		out[i] = make([]string, len(g.Columns))
	}
	for _, c := range g.Cells {
		for r := c.Row; r < c.Row+c.Span; r++ {
			out[r][c.Column] = c.Text
		}
	}
	return out
}

// hueRGB converts a hue to a pastel RGB colour.
func hueRGB(hue int) (int, int, int) {
	const s, l = 0.55, 0.8
	h := float64(((hue % 360) + 360) % 360)
	c := (1 - abs(2*l-1)) * s
	x := c * (1 - abs(mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return int((r + m) * 255), int((g + m) * 255), int((b + m) * 255)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func mod(a, b float64) float64 {
	for a >= b {
		a -= b
	}
	return a
}
