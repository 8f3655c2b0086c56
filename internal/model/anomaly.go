package model

// FlagType identifies the rule that produced an anomaly.
type FlagType string

const (
	FlagGhostVendor      FlagType = "ghost_vendor"
	FlagPriceInflation   FlagType = "price_inflation"
	FlagHighValue        FlagType = "high_value"
	FlagMissingData      FlagType = "missing_data"
	FlagDuplicateInvoice FlagType = "duplicate_invoice"
)

// Severity grades an anomaly.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Weight returns the score contribution of the severity.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 40
	case SeverityHigh:
		return 25
	case SeverityMedium:
		return 10
	case SeverityLow:
		return 5
	default:
		return 0
	}
}

// Anomaly is a single rule violation. Anomalies are never modified after
// detection.
type Anomaly struct {
	FlagType    FlagType       `json:"flag_type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Evidence    map[string]any `json:"evidence,omitempty"`
}
