package extract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spendshield/internal/model"
)

const systemPrompt = `You are an expert document analyst for a government procurement fraud detection system. ` +
	`You read invoices, tenders and approvals and return their contents as strict JSON. ` +
	`Never invent values: use null for anything not present in the document.`

const extractionPrompt = `Extract the following fields from this procurement document and return ONLY a JSON object:
{
  "document_type": "invoice | tender | approval",
  "vendor_name": "company name",
  "vendor_id": "vendor identification number, or null",
  "invoice_number": "invoice, tender or approval reference, or null",
  "date": "transaction date as YYYY-MM-DD",
  "total_amount": 0.00,
  "currency": "ISO 4217 code",
  "approval_authority": "approving official, or null",
  "department": "purchasing department, or null",
  "fiscal_year": 2024,
  "items": [
    {"description": "item description", "quantity": 0, "unit_price": 0.00}
  ]
}
Amounts are plain numbers without currency symbols or thousands separators.`

// userPrompt returns the instruction text, with OCR text appended for PDFs.
func userPrompt(c content) string {
	if c.Text == "" {
		return extractionPrompt
	}
	return extractionPrompt + "\n\nDocument text:\n" + c.Text
}

// ParseDocument decodes model output into an ExtractedDocument. It accepts
// fenced code blocks, leading prose, and the legacy field names
// (amount, line_items, reference_number, item).
func ParseDocument(text string) (*model.ExtractedDocument, error) {
	body := cleanJSON(text)
	if body == "" {
		return nil, eris.New("extract: no JSON object in model output")
	}

	var raw rawDocument
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, eris.Wrap(err, "extract: parse model output")
	}

	doc := raw.normalize()
	if doc.VendorName == "" && doc.TotalAmount == 0 && len(doc.Items) == 0 {
		return nil, eris.New("extract: model output has no invoice fields")
	}
	return doc, nil
}

// cleanJSON strips markdown fences and surrounding prose, returning the
// outermost JSON object or "".
func cleanJSON(text string) string {
	if i := strings.Index(text, "EXTRACTED_DATA:"); i >= 0 {
		text = text[i+len("EXTRACTED_DATA:"):]
	}
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

type rawDocument struct {
	DocumentType      flexString `json:"document_type"`
	VendorName        flexString `json:"vendor_name"`
	VendorID          flexString `json:"vendor_id"`
	InvoiceNumber     flexString `json:"invoice_number"`
	ReferenceNumber   flexString `json:"reference_number"`
	Date              flexString `json:"date"`
	TotalAmount       flexNumber `json:"total_amount"`
	Amount            flexNumber `json:"amount"`
	Currency          flexString `json:"currency"`
	ApprovalAuthority flexString `json:"approval_authority"`
	Department        flexString `json:"department"`
	FiscalYear        flexNumber `json:"fiscal_year"`
	Items             []rawItem  `json:"items"`
	LineItems         []rawItem  `json:"line_items"`
}

type rawItem struct {
	Description flexString `json:"description"`
	Item        flexString `json:"item"`
	Quantity    flexNumber `json:"quantity"`
	UnitPrice   flexNumber `json:"unit_price"`
	Total       flexNumber `json:"total"`
}

func (r rawDocument) normalize() *model.ExtractedDocument {
	doc := &model.ExtractedDocument{
		VendorName:        string(r.VendorName),
		VendorID:          string(r.VendorID),
		InvoiceNumber:     firstNonEmpty(string(r.InvoiceNumber), string(r.ReferenceNumber)),
		TotalAmount:       float64(r.TotalAmount),
		Date:              string(r.Date),
		Currency:          strings.ToUpper(string(r.Currency)),
		DocumentType:      strings.ToLower(string(r.DocumentType)),
		ApprovalAuthority: string(r.ApprovalAuthority),
		Department:        string(r.Department),
		Items:             []model.LineItem{},
	}
	if doc.TotalAmount == 0 {
		doc.TotalAmount = float64(r.Amount)
	}
	if fy := int(r.FiscalYear); fy > 0 && float64(fy) == float64(r.FiscalYear) {
		doc.FiscalYear = &fy
	}

	items := r.Items
	if len(items) == 0 {
		items = r.LineItems
	}
	for _, it := range items {
		li := model.LineItem{
			Description: firstNonEmpty(string(it.Description), string(it.Item)),
			Quantity:    float64(it.Quantity),
			UnitPrice:   float64(it.UnitPrice),
		}
		if li.UnitPrice == 0 && it.Total > 0 && li.Quantity > 0 {
			li.UnitPrice = math.Round(float64(it.Total)/li.Quantity*100) / 100
		}
		if li.Description == "" && li.UnitPrice == 0 {
			continue
		}
		doc.Items = append(doc.Items, li)
	}

	if doc.TotalAmount == 0 {
		for _, li := range doc.Items {
			doc.TotalAmount += li.Quantity * li.UnitPrice
		}
	}
	return doc
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// flexString accepts a JSON string, number or null. Placeholder values the
// model uses for "absent" decode to "".
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*s = ""
		return nil
	}
	var v string
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
	} else {
		v = raw
	}
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "null", "none", "n/a", "na", "unknown", "-":
		v = ""
	}
	*s = flexString(v)
	return nil
}

// flexNumber accepts a JSON number, a numeric string with currency symbols
// or thousands separators, or null.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*n = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		raw = strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				return r
			}
			return -1
		}, v)
		if raw == "" {
			*n = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return eris.Wrapf(err, "extract: invalid number %s", string(b))
	}
	*n = flexNumber(f)
	return nil
}
