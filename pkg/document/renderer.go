// Package document renders workflow stage data into PDF documents and merges
// finished documents into the final delivery record.
package document

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Lunnius/Npstest/pkg/codec"
	"github.com/go-pdf/fpdf"
)

// Layout constants, in points on an A4 page
const (
	topOffset    = 50.0
	marginX      = 40.0
	MaxLineChars = 110
)

// DefaultBackground is the termo page colour.
const DefaultBackground = "#5b2fa6"

// StampLayout is the format of the render timestamp printed in headers.
const StampLayout = "02/01/2006 15:04"

// InvalidImagePayloadError is returned when an embedded image cannot be
// decoded or placed. The whole render is aborted.
type InvalidImagePayloadError struct {
	Item string
	Err  error
}

func (e *InvalidImagePayloadError) Error() string {
	return fmt.Sprintf("invalid image payload for item %q: %v", e.Item, e.Err)
}

func (e *InvalidImagePayloadError) Unwrap() error {
	return e.Err
}

type rgb struct {
	r, g, b int
}

// Renderer produces stage documents. It is safe for concurrent use; every
// call builds its own PDF.
type Renderer struct {
	clock      func() time.Time
	location   *time.Location
	background rgb
}

// Option configures a Renderer
type Option func(*Renderer) error

// WithClock replaces the time source used for header stamps.
func WithClock(clock func() time.Time) Option {
	return func(r *Renderer) error {
		r.clock = clock
		return nil
	}
}

// WithLocation sets the timezone the header stamp is printed in.
func WithLocation(loc *time.Location) Option {
	return func(r *Renderer) error {
		if loc != nil {
			r.location = loc
		}
		return nil
	}
}

// WithBackground sets the termo background from a "#rrggbb" string.
func WithBackground(hex string) Option {
	return func(r *Renderer) error {
		c, err := parseHexColor(hex)
		if err != nil {
			return err
		}
		r.background = c
		return nil
	}
}

// NewRenderer creates a renderer with the given options applied.
func NewRenderer(opts ...Option) (*Renderer, error) {
	bg, _ := parseHexColor(DefaultBackground)
	r := &Renderer{
		clock:      time.Now,
		location:   time.Local,
		background: bg,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Renderer) newPDF(now time.Time) *fpdf.Fpdf {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(true)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	return pdf
}

func (r *Renderer) now() time.Time {
	return r.clock().In(r.location)
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// registerImage decodes a transport image and registers it with the PDF
// under its content digest.
func registerImage(pdf *fpdf.Fpdf, item, transport string) (string, *fpdf.ImageInfoType, error) {
	data, err := codec.Decode(transport)
	if err != nil {
		return "", nil, &InvalidImagePayloadError{Item: item, Err: err}
	}

	imageType, err := detectImageType(data)
	if err != nil {
		return "", nil, &InvalidImagePayloadError{Item: item, Err: err}
	}

	name := codec.Digest(data)
	info := pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: imageType}, bytes.NewReader(data))
	if !pdf.Ok() || info == nil {
		err := pdf.Error()
		if err == nil {
			err = fmt.Errorf("unreadable %s image", imageType)
		}
		return "", nil, &InvalidImagePayloadError{Item: item, Err: err}
	}
	return name, info, nil
}

func detectImageType(data []byte) (string, error) {
	switch ct := http.DetectContentType(data); ct {
	case "image/png":
		return "PNG", nil
	case "image/jpeg":
		return "JPG", nil
	case "image/gif":
		return "GIF", nil
	default:
		return "", fmt.Errorf("unsupported image content type %s", ct)
	}
}

// truncate cuts text to the per-line character budget. No wrapping.
func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxLineChars {
		return s
	}
	return string(runes[:MaxLineChars])
}

func parseHexColor(s string) (rgb, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return rgb{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return rgb{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return rgb{r: int(v >> 16 & 0xff), g: int(v >> 8 & 0xff), b: int(v & 0xff)}, nil
}
