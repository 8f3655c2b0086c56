package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spendshield/internal/config"
	"github.com/sells-group/spendshield/internal/model"
	"github.com/sells-group/spendshield/internal/ocr"
	"github.com/sells-group/spendshield/internal/resilience"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func writeUpload(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

type stubOCR struct {
	text string
	err  error
}

func (s stubOCR) Text(context.Context, string) (string, error) { return s.text, s.err }

func TestDocument_IsPDF(t *testing.T) {
	assert.True(t, Document{MIMEType: "application/pdf"}.IsPDF())
	assert.True(t, Document{Path: "uploads/abc.PDF"}.IsPDF())
	assert.False(t, Document{Path: "uploads/abc.png", MIMEType: "image/png"}.IsPDF())
}

func TestLoadContent_Image(t *testing.T) {
	path := writeUpload(t, "scan.jpg", pngBytes)
	c, err := loadContent(context.Background(), "anthropic", nil, Document{Path: path, MIMEType: "image/jpg"})
	require.NoError(t, err)
	assert.Equal(t, pngBytes, c.Image)
	assert.Equal(t, "image/jpeg", c.MediaType)
	assert.Empty(t, c.Text)
}

func TestLoadContent_MissingFile(t *testing.T) {
	_, err := loadContent(context.Background(), "anthropic", nil, Document{Path: "/nonexistent.png", MIMEType: "image/png"})
	require.Error(t, err)
	assert.True(t, IsFailure(err))
}

func TestLoadContent_PDF(t *testing.T) {
	doc := Document{Path: "invoice.pdf", MIMEType: "application/pdf"}

	c, err := loadContent(context.Background(), "anthropic", stubOCR{text: "INVOICE INV-7\n"}, doc)
	require.NoError(t, err)
	assert.Equal(t, "INVOICE INV-7", c.Text)
	assert.Nil(t, c.Image)

	_, err = loadContent(context.Background(), "anthropic", stubOCR{text: "   "}, doc)
	require.Error(t, err)
	assert.True(t, IsFailure(err))
	assert.ErrorIs(t, err, ocr.ErrNoText)

	_, err = loadContent(context.Background(), "anthropic", nil, doc)
	assert.True(t, IsFailure(err))

	transient := resilience.NewTransientError(assert.AnError, 503)
	_, err = loadContent(context.Background(), "anthropic", stubOCR{err: transient}, doc)
	require.Error(t, err)
	assert.False(t, IsFailure(err))
	assert.True(t, resilience.IsTransient(err))
}

func TestApplyIntake(t *testing.T) {
	fy := 2025
	d := &model.ExtractedDocument{}
	applyIntake(d, Document{Department: "Health", FiscalYear: &fy})
	assert.Equal(t, "Health", d.Department)
	require.NotNil(t, d.FiscalYear)
	assert.Equal(t, 2025, *d.FiscalYear)

	fy = 2030
	assert.Equal(t, 2025, *d.FiscalYear, "fiscal year is copied")

	extracted := 2023
	d = &model.ExtractedDocument{Department: "Education", FiscalYear: &extracted}
	applyIntake(d, Document{Department: "Health", FiscalYear: &fy})
	assert.Equal(t, "Education", d.Department)
	assert.Equal(t, 2023, *d.FiscalYear)
}

func TestMock(t *testing.T) {
	res, err := Mock{}.Extract(context.Background(), Document{Department: "Works"})
	require.NoError(t, err)
	assert.True(t, res.MockMode)
	assert.Equal(t, ReasonConfigured, res.MockReason)
	assert.Equal(t, "Mock Vendor Inc", res.Doc.VendorName)
	assert.Equal(t, "MOCK-001", res.Doc.InvoiceNumber)
	assert.Equal(t, 50000.0, res.Doc.TotalAmount)
	assert.Equal(t, "USD", res.Doc.Currency)
	assert.Empty(t, res.Doc.VendorID)
	assert.Equal(t, "Works", res.Doc.Department)

	res.Doc.VendorName = "changed"
	assert.Equal(t, "Mock Vendor Inc", MockDocument().VendorName)
}

func testConfig(provider string) *config.Config {
	return &config.Config{
		Extraction: config.ExtractionConfig{Provider: provider, MaxTokens: 1024, TimeoutSecs: 5},
		Anthropic:  config.AnthropicConfig{Model: "claude-sonnet-4-5-20250929"},
		OpenAI:     config.OpenAIConfig{Model: "gpt-4o"},
		Circuit:    config.CircuitConfig{FailureThreshold: 2, ResetTimeoutSecs: 30},
	}
}

func TestNew(t *testing.T) {
	ext, err := New(testConfig("mock"), nil)
	require.NoError(t, err)
	assert.IsType(t, Mock{}, ext)

	ext, err = New(testConfig("anthropic"), nil)
	require.NoError(t, err)
	fb, ok := ext.(*Fallback)
	require.True(t, ok)
	assert.True(t, fb.MockOnly())
	assert.Equal(t, "anthropic", fb.Name())

	cfg := testConfig("anthropic")
	cfg.Anthropic.Key = "sk-test"
	ext, err = New(cfg, nil)
	require.NoError(t, err)
	fb = ext.(*Fallback)
	assert.False(t, fb.MockOnly())
	assert.IsType(t, &Claude{}, fb.primary)

	cfg = testConfig("openai")
	cfg.OpenAI.Key = "sk-test"
	ext, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, ext.(*Fallback).primary)

	_, err = New(testConfig("gemini"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "gemini"`)
}
