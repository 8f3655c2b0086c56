package model

// LineItem is a single line of an extracted invoice.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// ExtractedDocument is the structured record produced by extraction.
// It is written once per run and read-only afterwards.
type ExtractedDocument struct {
	VendorName        string     `json:"vendor_name"`
	VendorID          string     `json:"vendor_id,omitempty"`
	InvoiceNumber     string     `json:"invoice_number"`
	TotalAmount       float64    `json:"total_amount"`
	Items             []LineItem `json:"items"`
	Date              string     `json:"date"`
	Currency          string     `json:"currency,omitempty"`
	DocumentType      string     `json:"document_type,omitempty"`
	ApprovalAuthority string     `json:"approval_authority,omitempty"`
	Department        string     `json:"department,omitempty"`
	FiscalYear        *int       `json:"fiscal_year,omitempty"`
}

// FirstItem returns the first line item, if any.
func (d *ExtractedDocument) FirstItem() (LineItem, bool) {
	if d == nil || len(d.Items) == 0 {
		return LineItem{}, false
	}
	return d.Items[0], true
}
