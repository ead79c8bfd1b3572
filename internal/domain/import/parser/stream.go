package parser

import (
	"sort"
	"strings"
)

const (
	// streamColumnGap is the horizontal gap, in ems, that separates two
	// columns on a line.
	streamColumnGap = 1.5
	// streamLineGap is the vertical gap, in line heights, that ends a table.
	streamLineGap = 2.5
)

// streamTables detects tables from whitespace alignment alone: runs of
// consecutive lines that each split into two or more segments form a table,
// and the table's columns are the merged x-extents of those segments.
func streamTables(page pageLayout) []RawTable {
	lines := groupLines(page.glyphs)

	var tables []RawTable
	var block [][]segment
	var lastLine *textLine
	flush := func() {
		if table := buildStreamTable(block); table != nil {
			tables = append(tables, table)
		}
		block = nil
	}

	for i := range lines {
		line := &lines[i]
		segs := line.segments(streamColumnGap)

		if len(segs) < 2 {
			flush()
			lastLine = line
			continue
		}
		if lastLine != nil && len(block) > 0 && lastLine.y-line.y > streamLineGap*line.size {
			flush()
		}
		block = append(block, segs)
		lastLine = line
	}
	flush()

	return tables
}

type interval struct {
	x0, x1 float64
}

func buildStreamTable(block [][]segment) RawTable {
	if len(block) < 2 {
		return nil
	}

	var spans []interval
	for _, segs := range block {
		for _, s := range segs {
			spans = append(spans, interval{x0: s.x0, x1: s.x1})
		}
	}
	columns := mergeIntervals(spans)
	if len(columns) < 2 {
		return nil
	}

	table := make(RawTable, 0, len(block))
	for _, segs := range block {
		row := make([]string, len(columns))
		for _, s := range segs {
			col := columnFor(columns, s.center())
			if col < 0 {
				continue
			}
			if row[col] == "" {
				row[col] = s.text
			} else {
				row[col] = row[col] + " " + s.text
			}
		}
		for j := range row {
			row[j] = strings.TrimSpace(row[j])
		}
		table = append(table, row)
	}
	return table
}

// mergeIntervals unions overlapping intervals and returns them left to right.
func mergeIntervals(spans []interval) []interval {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].x0 < spans[j].x0 })

	merged := []interval{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.x0 <= last.x1 {
			if s.x1 > last.x1 {
				last.x1 = s.x1
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func columnFor(columns []interval, x float64) int {
	for i, c := range columns {
		if x >= c.x0 && x <= c.x1 {
			return i
		}
	}
	return -1
}
