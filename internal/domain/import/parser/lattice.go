package parser

import (
	"math"
	"sort"

	"rsc.io/pdf"
)

const (
	// rulingThickness is the widest a rectangle can be and still count as a
	// ruling line rather than a box.
	rulingThickness = 2.0
	// rulingMinLength filters out bullets and dots.
	rulingMinLength = 5.0
	// snapTolerance merges ruling positions that differ by less than this.
	snapTolerance = 2.0
	// backgroundCoverage is the page-area fraction above which a box is
	// treated as page background.
	backgroundCoverage = 0.9
)

// ruling is an axis-aligned line: at is the fixed coordinate, from..to the
// extent along the other axis.
type ruling struct {
	at, from, to float64
}

// latticeTables detects tables drawn with ruling lines. Rows are the bands
// between horizontal rulings, columns the bands between vertical rulings,
// and a table ends where no vertical ruling crosses the next band.
func latticeTables(page pageLayout) []RawTable {
	horizontals, verticals := collectRulings(page.rects, page.box)
	if len(horizontals) < 2 || len(verticals) < 2 {
		return nil
	}

	rowEdges := snap(positions(horizontals))
	// Top of the page first.
	sort.Sort(sort.Reverse(sort.Float64Slice(rowEdges)))

	var tables []RawTable
	var bands []band
	flush := func() {
		if table := buildLatticeTable(bands, page.glyphs); table != nil {
			tables = append(tables, table)
		}
		bands = nil
	}

	for i := 0; i+1 < len(rowEdges); i++ {
		top, bottom := rowEdges[i], rowEdges[i+1]
		cols := crossingVerticals(verticals, top, bottom)
		if len(cols) < 2 {
			flush()
			continue
		}
		bands = append(bands, band{top: top, bottom: bottom, cols: cols})
	}
	flush()

	return tables
}

type band struct {
	top, bottom float64
	cols        []float64
}

func collectRulings(rects []pdf.Rect, pageBox pdf.Rect) (horizontals, verticals []ruling) {
	pageArea := (pageBox.Max.X - pageBox.Min.X) * (pageBox.Max.Y - pageBox.Min.Y)

	for _, r := range rects {
		r = normalizeRect(r)
		w := r.Max.X - r.Min.X
		h := r.Max.Y - r.Min.Y

		switch {
		case w < rulingMinLength && h < rulingMinLength:
			continue
		case h <= rulingThickness:
			horizontals = append(horizontals, ruling{at: (r.Min.Y + r.Max.Y) / 2, from: r.Min.X, to: r.Max.X})
		case w <= rulingThickness:
			verticals = append(verticals, ruling{at: (r.Min.X + r.Max.X) / 2, from: r.Min.Y, to: r.Max.Y})
		default:
			if pageArea > 0 && w*h >= pageArea*backgroundCoverage {
				continue
			}
			// A stroked or filled box contributes its four edges.
			horizontals = append(horizontals,
				ruling{at: r.Min.Y, from: r.Min.X, to: r.Max.X},
				ruling{at: r.Max.Y, from: r.Min.X, to: r.Max.X},
			)
			verticals = append(verticals,
				ruling{at: r.Min.X, from: r.Min.Y, to: r.Max.Y},
				ruling{at: r.Max.X, from: r.Min.Y, to: r.Max.Y},
			)
		}
	}
	return horizontals, verticals
}

func positions(rulings []ruling) []float64 {
	out := make([]float64, len(rulings))
	for i, r := range rulings {
		out[i] = r.at
	}
	return out
}

// snap sorts values ascending and merges those within snapTolerance of the
// previous kept value.
func snap(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	out := []float64{sorted[0]}
	for _, v := range sorted[1:] {
		if v-out[len(out)-1] > snapTolerance {
			out = append(out, v)
		}
	}
	return out
}

// crossingVerticals returns the snapped x positions of vertical rulings that
// span the band between top and bottom.
func crossingVerticals(verticals []ruling, top, bottom float64) []float64 {
	var xs []float64
	for _, v := range verticals {
		if v.from <= bottom+snapTolerance && v.to >= top-snapTolerance {
			xs = append(xs, v.at)
		}
	}
	return snap(xs)
}

// buildLatticeTable places each glyph into the cell containing its centre.
// Column boundaries are the union of the bands' vertical rulings so merged
// cells still land in a column.
func buildLatticeTable(bands []band, glyphs []glyph) RawTable {
	if len(bands) < 2 {
		return nil
	}

	var allCols []float64
	for _, b := range bands {
		allCols = append(allCols, b.cols...)
	}
	colEdges := snap(allCols)
	if len(colEdges) < 3 {
		return nil
	}

	nCols := len(colEdges) - 1
	cells := make([][][]glyph, len(bands))
	for i := range cells {
		cells[i] = make([][]glyph, nCols)
	}

	left, right := colEdges[0], colEdges[len(colEdges)-1]
	top, bottom := bands[0].top, bands[len(bands)-1].bottom

	for _, g := range glyphs {
		cx, cy := g.centerX(), g.centerY()
		if cx < left || cx > right || cy > top || cy < bottom {
			continue
		}
		row := bandIndex(bands, cy)
		col := edgeIndex(colEdges, cx)
		if row < 0 || col < 0 {
			continue
		}
		cells[row][col] = append(cells[row][col], g)
	}

	var table RawTable
	for _, rowCells := range cells {
		row := make([]string, nCols)
		empty := true
		for j, cellGlyphs := range rowCells {
			row[j] = joinLines(cellGlyphs)
			if row[j] != "" {
				empty = false
			}
		}
		if !empty {
			table = append(table, row)
		}
	}
	if len(table) == 0 {
		return nil
	}
	return table
}

func bandIndex(bands []band, y float64) int {
	for i, b := range bands {
		if y <= b.top && y >= b.bottom {
			return i
		}
	}
	return -1
}

// edgeIndex returns the column whose [edge[i], edge[i+1]] interval holds x.
func edgeIndex(edges []float64, x float64) int {
	i := sort.SearchFloat64s(edges, x)
	switch {
	case i == 0:
		if math.Abs(edges[0]-x) < 1e-9 {
			return 0
		}
		return -1
	case i >= len(edges):
		return -1
	default:
		return i - 1
	}
}
