package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spendshield/internal/model"
)

var assertErr = errors.New("reference store unavailable")

func TestVerify_KnownVendorByID(t *testing.T) {
	ver := Verify(context.Background(), seedRefs(t), cleanInvoice())

	assert.True(t, ver.VendorExists)
	assert.Equal(t, "VND001", ver.VendorID)
	assert.Equal(t, "Reliable Office Supplies Inc", ver.VendorName)
	assert.Equal(t, "2020-01-15", ver.VendorRegistrationDate)
	assert.InDelta(t, 0.1, ver.VendorRiskScore, 0.0001)
	assert.InDelta(t, 40.0, ver.HistoricalAvgUnitPrice, 0.0001)
	assert.InDelta(t, 40.0, ver.ItemAverages["Office supplies - paper, pens, folders"], 0.0001)
	assert.Len(t, ver.SimilarTransactions, 3)
	assert.Nil(t, ver.DuplicateOf)
}

func TestVerify_ByNormalizedName(t *testing.T) {
	doc := cleanInvoice()
	doc.VendorID = ""
	doc.VendorName = "  Reliable   Office Supplies Inc "

	ver := Verify(context.Background(), seedRefs(t), doc)
	assert.True(t, ver.VendorExists)
	assert.Equal(t, "VND001", ver.VendorID)
}

func TestVerify_UnknownIDFallsBackToName(t *testing.T) {
	doc := cleanInvoice()
	doc.VendorID = "VND999"

	ver := Verify(context.Background(), seedRefs(t), doc)
	assert.True(t, ver.VendorExists)
}

func TestVerify_UnknownVendor(t *testing.T) {
	doc := cleanInvoice()
	doc.VendorID = "VND005"
	doc.VendorName = "QuickFix Solutions Ltd"

	ver := Verify(context.Background(), seedRefs(t), doc)
	assert.False(t, ver.VendorExists)
	assert.Zero(t, ver.VendorRiskScore)
	assert.Zero(t, ver.HistoricalAvgUnitPrice)
	assert.NotNil(t, ver.ItemAverages)
	assert.NotNil(t, ver.SimilarTransactions)
}

func TestVerify_PartialDescriptionMatches(t *testing.T) {
	doc := cleanInvoice()
	doc.Items = []model.LineItem{
		{Description: "office supplies", Quantity: 10, UnitPrice: 45},
		{Description: "Toner cartridges", Quantity: 5, UnitPrice: 80},
	}

	ver := Verify(context.Background(), seedRefs(t), doc)
	assert.InDelta(t, 40.0, ver.HistoricalAvgUnitPrice, 0.0001)
	_, ok := ver.ItemAverages["Toner cartridges"]
	assert.False(t, ok)
}

func TestVerify_NoItems(t *testing.T) {
	doc := cleanInvoice()
	doc.Items = nil

	ver := Verify(context.Background(), seedRefs(t), doc)
	assert.True(t, ver.VendorExists)
	assert.Zero(t, ver.HistoricalAvgUnitPrice)
}

func TestVerify_Duplicate(t *testing.T) {
	doc := cleanInvoice()
	doc.InvoiceNumber = "inv-2023-045"

	ver := Verify(context.Background(), seedRefs(t), doc)
	require.NotNil(t, ver.DuplicateOf)
	assert.Equal(t, "INV-2023-045", ver.DuplicateOf.ReferenceNumber)
	assert.Equal(t, "2023-06-20", ver.DuplicateOf.TransactionDate)
	assert.InDelta(t, 38000.0, ver.DuplicateOf.Amount, 0.001)
}

func TestVerify_LookupErrorIsMiss(t *testing.T) {
	ver := Verify(context.Background(), errRefs{}, cleanInvoice())
	assert.False(t, ver.VendorExists)
}

func TestVerify_NilInputs(t *testing.T) {
	assert.False(t, Verify(context.Background(), nil, cleanInvoice()).VendorExists)
	assert.False(t, Verify(context.Background(), seedRefs(t), nil).VendorExists)
}
