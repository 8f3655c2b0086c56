package pipeline

import (
	"time"

	"github.com/sells-group/spendshield/internal/model"
)

// DemoRunID identifies the pre-baked demo run.
const DemoRunID = "demo-quickfix-2024-500"

// DemoRun returns a fixed, completed run showing a ghost vendor invoice
// with inflated pricing. Each call returns a fresh copy.
func DemoRun() *model.Run {
	created := time.Date(2024, time.January, 15, 9, 30, 0, 0, time.UTC)
	fy := 2024

	input := model.RunInput{
		Filename:   "quickfix_invoice_INV-2024-500.pdf",
		MIMEType:   "application/pdf",
		SizeBytes:  48213,
		Department: "Administration",
		FiscalYear: &fy,
	}
	doc := &model.ExtractedDocument{
		VendorName:    "QuickFix Solutions Ltd",
		VendorID:      "VND005",
		InvoiceNumber: "INV-2024-500",
		TotalAmount:   50000,
		Items: []model.LineItem{
			{Description: "Office supplies - paper, pens, folders", Quantity: 1000, UnitPrice: 50},
		},
		Date:              "2024-01-15",
		Currency:          "USD",
		DocumentType:      "invoice",
		ApprovalAuthority: "J. Mwangi",
		Department:        "Administration",
		FiscalYear:        &fy,
	}
	ver := &model.VerificationResult{
		VendorExists:           false,
		VendorRiskScore:        0,
		HistoricalAvgUnitPrice: 40,
		ItemAverages:           map[string]float64{},
		SimilarTransactions:    []model.PriorTransaction{},
	}
	anomalies := []model.Anomaly{
		{
			FlagType:    model.FlagGhostVendor,
			Severity:    model.SeverityCritical,
			Description: "Vendor 'QuickFix Solutions Ltd' not found in vendor registry",
			Evidence: map[string]any{
				"vendor_name":  doc.VendorName,
				"vendor_id":    doc.VendorID,
				"total_amount": doc.TotalAmount,
			},
		},
		{
			FlagType:    model.FlagPriceInflation,
			Severity:    model.SeverityHigh,
			Description: "Price inflation detected: 25.0% above historical average for 'Office supplies - paper, pens, folders'",
			Evidence: map[string]any{
				"item":                 doc.Items[0].Description,
				"current_price":        50.0,
				"historical_avg_price": 40.0,
				"inflation_percentage": 25.0,
			},
		},
	}
	report := BuildReport(doc, ver, anomalies, DefaultRules())

	run := model.NewRun(DemoRunID, input, created)
	outputs := []model.StageOutput{
		{Stage: model.StageExtraction, DurationMs: 2140, Extraction: doc},
		{Stage: model.StageVerification, DurationMs: 35, Verification: ver},
		{Stage: model.StageDetection, DurationMs: 2, Anomalies: anomalies},
		{Stage: model.StageReporting, DurationMs: 1, Report: report},
	}
	at := created
	for _, out := range outputs {
		at = at.Add(time.Duration(out.DurationMs) * time.Millisecond)
		out.CompletedAt = at
		if err := run.Apply(out); err != nil {
			panic("pipeline: demo run: " + err.Error())
		}
	}
	return run
}
