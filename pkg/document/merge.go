package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNoSources is returned when Merge is called without documents.
var ErrNoSources = errors.New("no documents to merge")

// SourceUnreadableError reports a merge input that is not a valid PDF.
type SourceUnreadableError struct {
	Index int
	Name  string
	Err   error
}

func (e *SourceUnreadableError) Error() string {
	return fmt.Sprintf("source %d (%s) unreadable: %v", e.Index, e.Name, e.Err)
}

func (e *SourceUnreadableError) Unwrap() error {
	return e.Err
}

// Source is a named document handed to Merge.
type Source struct {
	Name string
	Data []byte
}

var configOnce sync.Once

func configuration() *model.Configuration {
	// pdfcpu writes a config dir under the user's home unless told otherwise
	configOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages of a PDF.
func PageCount(doc []byte) (int, error) {
	return api.PageCount(bytes.NewReader(doc), configuration())
}

// Merge concatenates the pages of sources in the given order. Every source
// is checked before anything is written, so a bad input never yields a
// partial document.
func Merge(sources ...Source) ([]byte, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	readers := make([]io.ReadSeeker, len(sources))
	expected := 0
	for i, src := range sources {
		n, err := PageCount(src.Data)
		if err != nil {
			return nil, &SourceUnreadableError{Index: i, Name: src.Name, Err: err}
		}
		if n == 0 {
			return nil, &SourceUnreadableError{Index: i, Name: src.Name, Err: errors.New("document has no pages")}
		}
		expected += n
		readers[i] = bytes.NewReader(src.Data)
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, configuration()); err != nil {
		return nil, fmt.Errorf("merge documents: %w", err)
	}

	got, err := PageCount(out.Bytes())
	if err != nil {
		return nil, fmt.Errorf("read merged document: %w", err)
	}
	if got != expected {
		return nil, fmt.Errorf("merged document has %d pages, expected %d", got, expected)
	}
	return out.Bytes(), nil
}
