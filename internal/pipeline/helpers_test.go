package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/spendshield/internal/extract"
	"github.com/sells-group/spendshield/internal/model"
	"github.com/sells-group/spendshield/internal/reference"
)

// testNow is the fixed clock for rules that depend on the current date.
var testNow = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func seedRefs(t *testing.T) *reference.Static {
	t.Helper()
	seed, err := reference.LoadSeed("")
	require.NoError(t, err)
	return reference.NewStatic(seed)
}

// errRefs fails every lookup.
type errRefs struct{}

func (errRefs) VendorByID(context.Context, string) (model.Vendor, bool, error) {
	return model.Vendor{}, false, assertErr
}

func (errRefs) VendorByName(context.Context, string) (model.Vendor, bool, error) {
	return model.Vendor{}, false, assertErr
}

func (errRefs) Expenditures(context.Context, string) ([]model.Expenditure, error) {
	return nil, assertErr
}

func (errRefs) Counts(context.Context) (reference.Counts, error) { return reference.Counts{}, assertErr }

func (errRefs) Ping(context.Context) error { return assertErr }

type fixedExtractor struct {
	doc *model.ExtractedDocument
	err error
}

func (f fixedExtractor) Name() string { return "fixed" }

func (f fixedExtractor) Extract(_ context.Context, doc extract.Document) (*extract.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := *f.doc
	if d.Department == "" {
		d.Department = doc.Department
	}
	return &extract.Result{Doc: &d, Provider: "fixed"}, nil
}

func cleanInvoice() *model.ExtractedDocument {
	return &model.ExtractedDocument{
		VendorName:    "Reliable Office Supplies Inc",
		VendorID:      "VND001",
		InvoiceNumber: "INV-2024-100",
		TotalAmount:   4100,
		Items:         []model.LineItem{{Description: "Office supplies - paper, pens, folders", Quantity: 100, UnitPrice: 41}},
		Date:          "2024-05-02",
		Currency:      "USD",
	}
}
