package model

// Vendor is a registered supplier in the reference store.
type Vendor struct {
	ID               string  `json:"vendor_id" yaml:"vendor_id"`
	Name             string  `json:"vendor_name" yaml:"vendor_name"`
	RegistrationDate string  `json:"registration_date" yaml:"registration_date"`
	BusinessType     string  `json:"business_type" yaml:"business_type"`
	RiskScore        float64 `json:"risk_score" yaml:"risk_score"`
	Blacklisted      bool    `json:"blacklisted" yaml:"blacklisted"`
}

// Expenditure is a past transaction with a vendor.
type Expenditure struct {
	VendorID        string  `json:"vendor_id" yaml:"vendor_id"`
	ReferenceNumber string  `json:"reference_number" yaml:"reference_number"`
	TransactionDate string  `json:"transaction_date" yaml:"transaction_date"`
	Amount          float64 `json:"amount" yaml:"amount"`
	ItemDescription string  `json:"item_description" yaml:"item_description"`
	Quantity        float64 `json:"quantity" yaml:"quantity"`
	UnitPrice       float64 `json:"unit_price" yaml:"unit_price"`
	Department      string  `json:"department" yaml:"department"`
	FiscalYear      int     `json:"fiscal_year" yaml:"fiscal_year"`
}

// Prior converts the expenditure into the verification view.
func (e Expenditure) Prior() PriorTransaction {
	return PriorTransaction{
		ReferenceNumber: e.ReferenceNumber,
		TransactionDate: e.TransactionDate,
		Amount:          e.Amount,
		ItemDescription: e.ItemDescription,
		UnitPrice:       e.UnitPrice,
	}
}
