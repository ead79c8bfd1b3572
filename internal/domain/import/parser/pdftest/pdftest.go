// Package pdftest builds small uncompressed PDF documents for tests. Text is
// set in Courier with explicit glyph widths so positions survive extraction.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	PageWidth  = 612.0
	PageHeight = 792.0

	// courierAdvance is the advance width of every Courier glyph in
	// thousandths of an em.
	courierAdvance = 600
)

// Text is a string drawn with its baseline starting at X, Y.
type Text struct {
	X, Y, Size float64
	S          string
}

// Rect is a filled rectangle. Thin rectangles act as ruling lines.
type Rect struct {
	X, Y, W, H float64
}

// Page is the drawable content of one page.
type Page struct {
	Texts []Text
	Rects []Rect
}

// TextWidth returns the rendered width of s at size.
func TextWidth(s string, size float64) float64 {
	return float64(len(s)) * courierAdvance / 1000 * size
}

// Build serialises pages into a complete PDF file.
func Build(pages ...Page) []byte {
	var objects []string

	// Object numbers: 1 catalog, 2 page tree, 3 font, then a page and a
	// content stream per page.
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+i*2)
	}

	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 %g %g] >>",
			strings.Join(kids, " "), len(pages), PageWidth, PageHeight),
		fontObject(),
	)

	for i, page := range pages {
		content := page.content()
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+i*2),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	return buf.Bytes()
}

func fontObject() string {
	widths := make([]string, 0, 126-32+1)
	for c := 32; c <= 126; c++ {
		widths = append(widths, fmt.Sprint(courierAdvance))
	}
	return fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Courier /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>",
		strings.Join(widths, " "))
}

func (p Page) content() string {
	var b strings.Builder
	for _, r := range p.Rects {
		fmt.Fprintf(&b, "%g %g %g %g re f\n", r.X, r.Y, r.W, r.H)
	}
	for _, t := range p.Texts {
		fmt.Fprintf(&b, "BT /F1 %g Tf %g %g Td (%s) Tj ET\n", t.Size, t.X, t.Y, escape(t.S))
	}
	return strings.TrimRight(b.String(), "\n")
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

// TableLayout positions a grid of cells on a page.
type TableLayout struct {
	Left, Top  float64
	ColWidths  []float64
	RowHeight  float64
	FontSize   float64
	CellMargin float64
}

// DefaultLayout fits four columns on a letter page.
func DefaultLayout() TableLayout {
	return TableLayout{
		Left:       40,
		Top:        720,
		ColWidths:  []float64{90, 220, 100, 100},
		RowHeight:  20,
		FontSize:   9,
		CellMargin: 4,
	}
}

// RuledTable draws rows inside a grid of thin ruling rectangles, the shape
// statement generators produce for bordered tables.
func RuledTable(layout TableLayout, rows [][]string) Page {
	page := Page{Texts: layout.cellTexts(rows)}

	width := 0.0
	for _, w := range layout.ColWidths {
		width += w
	}
	height := layout.RowHeight * float64(len(rows))
	bottom := layout.Top - height

	for i := 0; i <= len(rows); i++ {
		y := layout.Top - float64(i)*layout.RowHeight
		page.Rects = append(page.Rects, Rect{X: layout.Left, Y: y - 0.25, W: width, H: 0.5})
	}
	x := layout.Left
	for i := 0; i <= len(layout.ColWidths); i++ {
		page.Rects = append(page.Rects, Rect{X: x - 0.25, Y: bottom, W: 0.5, H: height})
		if i < len(layout.ColWidths) {
			x += layout.ColWidths[i]
		}
	}
	return page
}

// AlignedTable draws rows as whitespace-aligned text with no rulings.
func AlignedTable(layout TableLayout, rows [][]string) Page {
	return Page{Texts: layout.cellTexts(rows)}
}

func (l TableLayout) cellTexts(rows [][]string) []Text {
	var texts []Text
	for i, row := range rows {
		baseline := l.Top - float64(i+1)*l.RowHeight + (l.RowHeight-l.FontSize)/2
		x := l.Left
		for j, cell := range row {
			if j >= len(l.ColWidths) {
				break
			}
			if cell != "" {
				texts = append(texts, Text{X: x + l.CellMargin, Y: baseline, Size: l.FontSize, S: cell})
			}
			x += l.ColWidths[j]
		}
	}
	return texts
}

// TextLines draws lines of text top-down starting at left, top.
func TextLines(left, top, size float64, lines ...string) Page {
	page := Page{}
	for i, line := range lines {
		if line == "" {
			continue
		}
		page.Texts = append(page.Texts, Text{X: left, Y: top - float64(i)*size*1.4, Size: size, S: line})
	}
	return page
}

// Merge overlays the content of several pages onto one.
func Merge(pages ...Page) Page {
	var out Page
	for _, p := range pages {
		out.Texts = append(out.Texts, p.Texts...)
		out.Rects = append(out.Rects, p.Rects...)
	}
	return out
}
