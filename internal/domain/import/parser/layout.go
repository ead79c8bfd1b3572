package parser

import (
	"math"
	"sort"
	"strings"

	"rsc.io/pdf"
)

// glyph is one positioned character from a page's text layer.
type glyph struct {
	x, y, w, size float64
	s             string
}

func (g glyph) centerX() float64 { return g.x + g.w/2 }

// centerY approximates the vertical middle of the glyph from its baseline.
func (g glyph) centerY() float64 { return g.y + g.size*0.3 }

// pageLayout is the text and ruling content of one page.
type pageLayout struct {
	number int
	glyphs []glyph
	rects  []pdf.Rect
	box    pdf.Rect
}

func newPageLayout(number int, page pdf.Page) pageLayout {
	content := page.Content()

	glyphs := make([]glyph, 0, len(content.Text))
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		size := t.FontSize
		if size <= 0 {
			size = 10
		}
		glyphs = append(glyphs, glyph{x: t.X, y: t.Y, w: t.W, size: size, s: t.S})
	}

	return pageLayout{
		number: number,
		glyphs: glyphs,
		rects:  content.Rect,
		box:    mediaBox(page),
	}
}

// mediaBox reads the page's MediaBox, walking up the page tree when the page
// inherits it. A US Letter box is assumed when none is declared.
func mediaBox(page pdf.Page) pdf.Rect {
	for v := page.V; !v.IsNull(); v = v.Key("Parent") {
		box := v.Key("MediaBox")
		if box.Len() == 4 {
			return normalizeRect(pdf.Rect{
				Min: pdf.Point{X: box.Index(0).Float64(), Y: box.Index(1).Float64()},
				Max: pdf.Point{X: box.Index(2).Float64(), Y: box.Index(3).Float64()},
			})
		}
	}
	return pdf.Rect{Max: pdf.Point{X: 612, Y: 792}}
}

func normalizeRect(r pdf.Rect) pdf.Rect {
	return pdf.Rect{
		Min: pdf.Point{X: math.Min(r.Min.X, r.Max.X), Y: math.Min(r.Min.Y, r.Max.Y)},
		Max: pdf.Point{X: math.Max(r.Min.X, r.Max.X), Y: math.Max(r.Min.Y, r.Max.Y)},
	}
}

// textLine is a run of glyphs sharing a baseline, ordered left to right.
type textLine struct {
	y      float64
	size   float64
	glyphs []glyph
}

// groupLines clusters glyphs into lines, top of the page first.
func groupLines(glyphs []glyph) []textLine {
	if len(glyphs) == 0 {
		return nil
	}

	sorted := make([]glyph, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].y > sorted[j].y })

	var lines []textLine
	for _, g := range sorted {
		if n := len(lines); n > 0 {
			last := &lines[n-1]
			if math.Abs(last.y-g.y) <= math.Max(last.size, g.size)*0.4 {
				last.glyphs = append(last.glyphs, g)
				last.size = math.Max(last.size, g.size)
				continue
			}
		}
		lines = append(lines, textLine{y: g.y, size: g.size, glyphs: []glyph{g}})
	}

	for i := range lines {
		sort.SliceStable(lines[i].glyphs, func(a, b int) bool {
			return lines[i].glyphs[a].x < lines[i].glyphs[b].x
		})
	}
	return lines
}

// segment is a horizontally contiguous piece of a line.
type segment struct {
	x0, x1 float64
	text   string
}

func (s segment) center() float64 { return (s.x0 + s.x1) / 2 }

// segments splits the line wherever the gap between glyphs exceeds
// gapEm times the font size.
func (l textLine) segments(gapEm float64) []segment {
	var out []segment
	start := 0
	for i := 1; i <= len(l.glyphs); i++ {
		if i < len(l.glyphs) {
			prev, cur := l.glyphs[i-1], l.glyphs[i]
			if cur.x-(prev.x+prev.w) <= gapEm*math.Max(prev.size, cur.size) {
				continue
			}
		}
		run := l.glyphs[start:i]
		last := run[len(run)-1]
		out = append(out, segment{
			x0:   run[0].x,
			x1:   last.x + last.w,
			text: joinGlyphs(run),
		})
		start = i
	}
	return out
}

// joinGlyphs concatenates glyphs already ordered left to right, inserting a
// single space where the advance gap looks like a word break.
func joinGlyphs(glyphs []glyph) string {
	var b strings.Builder
	for i, g := range glyphs {
		if i > 0 {
			prev := glyphs[i-1]
			if g.x-(prev.x+prev.w) > 0.2*math.Max(prev.size, g.size) {
				b.WriteByte(' ')
			}
		}
		b.WriteString(g.s)
	}
	return strings.TrimSpace(b.String())
}

// joinLines flattens multi-line cell content into one line of text.
func joinLines(glyphs []glyph) string {
	lines := groupLines(glyphs)
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if s := joinGlyphs(l.glyphs); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
