// Package ocr turns PDF uploads into plain text for the extraction prompt.
package ocr

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spendshield/internal/config"
)

// ErrNoText is returned when a PDF yields no extractable text, typically a
// scanned document with no text layer.
var ErrNoText = eris.New("ocr: no extractable text")

// Reader extracts text content from PDF files.
type Reader interface {
	Text(ctx context.Context, pdfPath string) (string, error)
}

// NewReader creates a Reader based on config.
func NewReader(cfg config.OCRConfig) (Reader, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires ocr.mistral_api_key")
		}
		return NewMistral(cfg.MistralKey, cfg.MistralModel, cfg.MistralURL), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// ReadText runs r and rejects whitespace-only output with ErrNoText.
func ReadText(ctx context.Context, r Reader, pdfPath string) (string, error) {
	text, err := r.Text(ctx, pdfPath)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", eris.Wrapf(ErrNoText, "ocr: %s", pdfPath)
	}
	return text, nil
}
