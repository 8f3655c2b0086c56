package pipeline

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/spendshield/internal/config"
	"github.com/sells-group/spendshield/internal/model"
)

var money = message.NewPrinter(language.English)

// DefaultRules returns the built-in detection and scoring thresholds.
func DefaultRules() config.RulesConfig {
	return config.RulesConfig{
		PriceInflationThreshold: 0.20,
		HighValueThreshold:      25000,
		NewVendorDays:           180,
		NewVendorAmount:         50000,
		VendorRiskThreshold:     0.7,
		VendorRiskMultiplier:    1.0,
	}
}

// Detect applies the rule set in a fixed order: ghost vendor, price
// inflation, high value, missing data, duplicate invoice. Rules are
// independent. now dates the vendor registration check. The result is
// never nil.
func Detect(doc *model.ExtractedDocument, ver *model.VerificationResult, rules config.RulesConfig, now time.Time) []model.Anomaly {
	anomalies := []model.Anomaly{}
	if doc == nil {
		return anomalies
	}
	if ver == nil {
		ver = &model.VerificationResult{}
	}

	if !ver.VendorExists {
		anomalies = append(anomalies, model.Anomaly{
			FlagType:    model.FlagGhostVendor,
			Severity:    model.SeverityCritical,
			Description: money.Sprintf("Vendor '%s' not found in vendor registry", doc.VendorName),
			Evidence: map[string]any{
				"vendor_name":  doc.VendorName,
				"vendor_id":    doc.VendorID,
				"total_amount": doc.TotalAmount,
			},
		})
	} else if days, ok := daysSince(ver.VendorRegistrationDate, now); ok &&
		rules.NewVendorDays > 0 && days < rules.NewVendorDays && doc.TotalAmount > rules.NewVendorAmount {
		anomalies = append(anomalies, model.Anomaly{
			FlagType:    model.FlagGhostVendor,
			Severity:    model.SeverityHigh,
			Description: money.Sprintf("Recently registered vendor (%s) with large contract", ver.VendorRegistrationDate),
			Evidence: map[string]any{
				"registration_date":       ver.VendorRegistrationDate,
				"contract_amount":         doc.TotalAmount,
				"days_since_registration": days,
			},
		})
	}

	for _, it := range doc.Items {
		ref, ok := ver.ItemAverages[it.Description]
		if !ok {
			// Items the vendor has never supplied have no price history.
			if len(ver.ItemAverages) > 0 {
				continue
			}
			ref = ver.HistoricalAvgUnitPrice
		}
		if ref <= 0 || it.UnitPrice <= (1+rules.PriceInflationThreshold)*ref {
			continue
		}
		pct := (it.UnitPrice - ref) * 100 / ref
		anomalies = append(anomalies, model.Anomaly{
			FlagType:    model.FlagPriceInflation,
			Severity:    inflationSeverity(pct, rules.PriceInflationGradation),
			Description: money.Sprintf("Price inflation detected: %.1f%% above historical average for '%s'", pct, it.Description),
			Evidence: map[string]any{
				"item":                 it.Description,
				"current_price":        it.UnitPrice,
				"historical_avg_price": ref,
				"inflation_percentage": pct,
			},
		})
	}

	if doc.TotalAmount > rules.HighValueThreshold {
		anomalies = append(anomalies, model.Anomaly{
			FlagType:    model.FlagHighValue,
			Severity:    model.SeverityMedium,
			Description: money.Sprintf("High value transaction: $%.2f exceeds $%.2f threshold", doc.TotalAmount, rules.HighValueThreshold),
			Evidence: map[string]any{
				"amount":    doc.TotalAmount,
				"threshold": rules.HighValueThreshold,
			},
		})
	}

	if doc.VendorID == "" {
		anomalies = append(anomalies, model.Anomaly{
			FlagType:    model.FlagMissingData,
			Severity:    model.SeverityHigh,
			Description: "Vendor ID not found in document",
			Evidence:    map[string]any{"field": "vendor_id", "vendor_name": doc.VendorName},
		})
	}
	if doc.InvoiceNumber == "" {
		anomalies = append(anomalies, model.Anomaly{
			FlagType:    model.FlagMissingData,
			Severity:    model.SeverityHigh,
			Description: "Invoice number not found in document",
			Evidence:    map[string]any{"field": "invoice_number"},
		})
	}

	if d := ver.DuplicateOf; d != nil {
		anomalies = append(anomalies, model.Anomaly{
			FlagType:    model.FlagDuplicateInvoice,
			Severity:    model.SeverityCritical,
			Description: money.Sprintf("Duplicate invoice number %s already paid on %s", d.ReferenceNumber, d.TransactionDate),
			Evidence: map[string]any{
				"reference_number": d.ReferenceNumber,
				"original_date":    d.TransactionDate,
				"original_amount":  d.Amount,
			},
		})
	}

	return anomalies
}

// daysSince returns whole days from a registration date to now. Dates
// that do not parse report ok=false.
func daysSince(date string, now time.Time) (int, bool) {
	if date == "" {
		return 0, false
	}
	reg, err := time.Parse(time.DateOnly, date)
	if err != nil {
		if reg, err = time.Parse(time.RFC3339, date); err != nil {
			return 0, false
		}
	}
	return int(now.Sub(reg).Hours() / 24), true
}

func inflationSeverity(pct float64, graded bool) model.Severity {
	if !graded {
		return model.SeverityHigh
	}
	switch {
	case pct > 50:
		return model.SeverityCritical
	case pct > 30:
		return model.SeverityHigh
	default:
		return model.SeverityMedium
	}
}
