package extract

import (
	"context"

	"github.com/sells-group/spendshield/internal/model"
)

// Mock serves a fixed record. It never fails.
type Mock struct{}

// Name implements Extractor.
func (Mock) Name() string { return "mock" }

// Extract implements Extractor.
func (m Mock) Extract(_ context.Context, doc Document) (*Result, error) {
	d := MockDocument()
	applyIntake(d, doc)
	return &Result{Doc: d, Provider: m.Name(), MockMode: true, MockReason: ReasonConfigured}, nil
}

// MockDocument returns a fresh copy of the canned extraction record.
func MockDocument() *model.ExtractedDocument {
	return &model.ExtractedDocument{
		VendorName:    "Mock Vendor Inc",
		InvoiceNumber: "MOCK-001",
		TotalAmount:   50000.00,
		Items:         []model.LineItem{},
		Currency:      "USD",
		DocumentType:  "invoice",
	}
}
