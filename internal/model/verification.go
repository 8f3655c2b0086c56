package model

// PriorTransaction is a past expenditure record surfaced during verification.
type PriorTransaction struct {
	ReferenceNumber string  `json:"reference_number"`
	TransactionDate string  `json:"transaction_date"`
	Amount          float64 `json:"amount"`
	ItemDescription string  `json:"item_description"`
	UnitPrice       float64 `json:"unit_price"`
}

// VerificationResult is the outcome of checking the extracted vendor
// against the reference store.
type VerificationResult struct {
	VendorExists           bool    `json:"vendor_exists"`
	VendorRiskScore        float64 `json:"vendor_risk_score"`
	HistoricalAvgUnitPrice float64 `json:"historical_avg_unit_price"`

	VendorID               string             `json:"vendor_id,omitempty"`
	VendorName             string             `json:"vendor_name,omitempty"`
	VendorRegistrationDate string             `json:"vendor_registration_date,omitempty"`
	ItemAverages           map[string]float64 `json:"item_averages,omitempty"`
	SimilarTransactions    []PriorTransaction `json:"similar_transactions,omitempty"`
	DuplicateOf            *PriorTransaction  `json:"duplicate_of,omitempty"`
}
