package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Page-break thresholds per stage
const (
	exceptionsItemBreak = 220.0
	exceptionsMinY      = 40.0
	surveyMinY          = 80.0

	itemImageWidth  = 200.0
	itemImageHeight = 150.0
)

// TermoInput is the signed acceptance capture.
type TermoInput struct {
	Image string
}

// ExceptionsInput is the ressalvas report.
type ExceptionsInput struct {
	ProcessCode string
	Responsible string
	Notes       string
	Items       []ExceptionEntry
}

// ExceptionEntry is one reported item. Image is an optional transport string.
type ExceptionEntry struct {
	Label       string
	Description string
	DueDate     *time.Time
	Approved    bool
	Image       string
}

// Field is a label/value pair printed in order.
type Field struct {
	Label string
	Value string
}

// SurveyInput is the satisfaction survey closing the process.
type SurveyInput struct {
	ProcessCode string
	Score       int
	Ratings     []Field
	Feedback    []Field
}

// RenderTermo draws the captured image full-bleed over the background colour.
func (r *Renderer) RenderTermo(in TermoInput) ([]byte, error) {
	pdf := r.newPDF(r.now())
	pdf.AddPage()
	width, height := pdf.GetPageSize()

	pdf.SetFillColor(r.background.r, r.background.g, r.background.b)
	pdf.Rect(0, 0, width, height, "F")

	name, _, err := registerImage(pdf, "termo", in.Image)
	if err != nil {
		return nil, err
	}
	pdf.ImageOptions(name, 0, 0, width, height, false, fpdf.ImageOptions{}, 0, "")

	return output(pdf)
}

// RenderExceptions draws the ressalvas report, one block per item.
func (r *Renderer) RenderExceptions(in ExceptionsInput) ([]byte, error) {
	now := r.now()
	pdf := r.newPDF(now)
	c := newCursor(pdf, exceptionsMinY)

	c.setFont("B", 14)
	c.text(marginX, "RELATÓRIO DE RESSALVAS")
	c.advance(30)

	c.setFont("", 10)
	c.text(marginX, "Processo: "+in.ProcessCode)
	c.advance(15)
	c.text(marginX, "Responsável: "+in.Responsible)
	c.advance(15)
	c.text(marginX, "Data: "+now.Format(StampLayout))
	c.advance(25)

	if notes := strings.TrimSpace(in.Notes); notes != "" {
		c.setFont("B", 10)
		c.text(marginX, "Observações:")
		c.advance(15)
		c.setFont("", 10)
		for _, line := range strings.Split(notes, "\n") {
			c.text(marginX, line)
			c.advance(15)
		}
		c.advance(10)
	}

	for idx, item := range in.Items {
		c.breakBelow(exceptionsItemBreak)

		c.setFont("B", 11)
		c.text(marginX, fmt.Sprintf("Item %d: %s", idx+1, item.Label))
		c.advance(15)

		c.setFont("", 10)
		c.text(marginX, "Descrição: "+item.Description)
		c.advance(15)

		if item.DueDate != nil {
			c.text(marginX, "Prazo: "+item.DueDate.Format("02/01/2006"))
			c.advance(15)
		}

		approval := "Não"
		if item.Approved {
			approval = "Sim"
		}
		c.text(marginX, "Aprovação: "+approval)
		c.advance(15)

		if item.Image == "" {
			c.advance(20)
			continue
		}

		name, info, err := registerImage(pdf, item.Label, item.Image)
		if err != nil {
			return nil, err
		}
		c.breakBelow(c.minY + itemImageHeight)
		w, h := fitBox(info.Width(), info.Height(), itemImageWidth, itemImageHeight)
		pdf.ImageOptions(name, marginX, c.height-c.y, w, h, false, fpdf.ImageOptions{}, 0, "")
		c.advance(itemImageHeight + 20)
	}

	return output(pdf)
}

// RenderSurvey draws the NPS score, ratings and feedback.
func (r *Renderer) RenderSurvey(in SurveyInput) ([]byte, error) {
	now := r.now()
	pdf := r.newPDF(now)
	c := newCursor(pdf, surveyMinY)

	c.setFont("B", 16)
	c.text(marginX, "Pesquisa de Satisfação (NPS)")
	c.advance(25)

	c.setFont("", 10)
	if in.ProcessCode != "" {
		c.text(marginX, "Processo: "+in.ProcessCode)
		c.advance(15)
	}
	c.text(marginX, "Data: "+now.Format(StampLayout))
	c.advance(25)

	c.setFont("", 12)
	c.text(marginX, fmt.Sprintf("NPS informado: %d", in.Score))
	c.advance(30)

	c.setFont("B", 12)
	c.text(marginX, "Avaliações")
	c.advance(20)

	c.setFont("", 10)
	for _, f := range in.Ratings {
		c.text(marginX, f.Label+": "+f.Value)
		c.advance(15)
	}

	c.advance(20)
	c.setFont("B", 12)
	c.text(marginX, "Feedback")
	c.advance(20)

	c.setFont("", 10)
	for _, f := range in.Feedback {
		c.text(marginX, f.Label+":")
		c.advance(14)
		for _, line := range strings.Split(f.Value, "\n") {
			c.text(marginX+10, line)
			c.advance(14)
		}
		c.advance(10)
	}

	return output(pdf)
}

// fitBox scales w x h to fit inside maxW x maxH keeping the aspect ratio.
func fitBox(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := maxW / w
	if s := maxH / h; s < scale {
		scale = s
	}
	return w * scale, h * scale
}
