// Package extract turns an uploaded procurement document into a structured
// model.ExtractedDocument using a vision-capable LLM, with a fixed mock
// record as the fallback when the provider cannot be reached.
package extract

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spendshield/internal/model"
	"github.com/sells-group/spendshield/internal/ocr"
)

// Mock reasons reported on Result.MockReason.
const (
	ReasonConfigured   = "mock provider configured"
	ReasonNoCredential = "no credential configured"
	ReasonCircuitOpen  = "provider circuit open"
	ReasonUnavailable  = "provider unavailable"
)

// Document is the extraction input: a stored upload plus the optional
// metadata supplied at intake.
type Document struct {
	Path       string
	MIMEType   string
	Department string
	FiscalYear *int
}

// IsPDF reports whether the document must go through OCR first.
func (d Document) IsPDF() bool {
	return d.MIMEType == "application/pdf" || strings.EqualFold(extOf(d.Path), ".pdf")
}

// Result is the output of one extraction.
type Result struct {
	Doc        *model.ExtractedDocument
	Provider   string
	MockMode   bool
	MockReason string
}

// Extractor produces an ExtractedDocument for a stored upload.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, doc Document) (*Result, error)
}

// ExtractionFailure is a non-recoverable extraction error: the document
// could not be read or the model output could not be parsed.
type ExtractionFailure struct {
	Provider string
	Err      error
}

func (e *ExtractionFailure) Error() string {
	return "extraction failed (" + e.Provider + "): " + e.Err.Error()
}

func (e *ExtractionFailure) Unwrap() error { return e.Err }

// IsFailure reports whether err is (or wraps) an ExtractionFailure.
func IsFailure(err error) bool {
	var f *ExtractionFailure
	return errors.As(err, &f)
}

func failure(provider string, err error) error {
	if IsFailure(err) {
		return err
	}
	return &ExtractionFailure{Provider: provider, Err: err}
}

// content is what a provider sends to the model: either OCR text for a PDF
// or the raw image bytes.
type content struct {
	Text      string
	Image     []byte
	MediaType string
}

// loadContent reads the upload. Transient OCR errors are returned as-is so
// the caller can fall back; everything else is an ExtractionFailure.
func loadContent(ctx context.Context, provider string, reader ocr.Reader, doc Document) (content, error) {
	if doc.IsPDF() {
		if reader == nil {
			return content{}, failure(provider, eris.New("no OCR reader configured for PDF input"))
		}
		text, err := ocr.ReadText(ctx, reader, doc.Path)
		if err != nil {
			if errors.Is(err, ocr.ErrNoText) {
				return content{}, failure(provider, err)
			}
			return content{}, err
		}
		return content{Text: text}, nil
	}

	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return content{}, failure(provider, eris.Wrapf(err, "read %s", doc.Path))
	}
	if len(data) == 0 {
		return content{}, failure(provider, eris.Errorf("empty document %s", doc.Path))
	}
	mediaType := doc.MIMEType
	if mediaType == "" || mediaType == "image/jpg" {
		mediaType = "image/jpeg"
	}
	return content{Image: data, MediaType: mediaType}, nil
}

// applyIntake fills department and fiscal year from intake when the model
// left them empty.
func applyIntake(d *model.ExtractedDocument, doc Document) {
	if d.Department == "" {
		d.Department = doc.Department
	}
	if d.FiscalYear == nil && doc.FiscalYear != nil {
		fy := *doc.FiscalYear
		d.FiscalYear = &fy
	}
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i:]
}
