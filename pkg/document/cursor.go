package document

import "github.com/go-pdf/fpdf"

// cursor tracks the vertical write position measured from the bottom of the
// page, so it decreases as content is placed.
type cursor struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	height float64
	y      float64
	minY   float64

	family string
	style  string
	size   float64
}

func newCursor(pdf *fpdf.Fpdf, minY float64) *cursor {
	c := &cursor{
		pdf:    pdf,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		minY:   minY,
		family: "Helvetica",
		size:   10,
	}
	c.newPage()
	return c
}

// newPage starts a page, resets the cursor and keeps the current font.
func (c *cursor) newPage() {
	c.pdf.AddPage()
	_, c.height = c.pdf.GetPageSize()
	c.y = c.height - topOffset
	c.pdf.SetFont(c.family, c.style, c.size)
}

func (c *cursor) setFont(style string, size float64) {
	c.style = style
	c.size = size
	c.pdf.SetFont(c.family, style, size)
}

// text draws one truncated line with its baseline at the cursor, starting a
// new page first when the cursor has fallen below the margin.
func (c *cursor) text(x float64, s string) {
	c.breakBelow(c.minY)
	c.pdf.Text(x, c.height-c.y, c.tr(truncate(s)))
}

// advance moves the cursor down. The page break happens on the next write so
// a document never ends with an empty page.
func (c *cursor) advance(dy float64) {
	c.y -= dy
}

// breakBelow starts a new page when the cursor is under threshold.
func (c *cursor) breakBelow(threshold float64) {
	if c.y < threshold {
		c.newPage()
	}
}
