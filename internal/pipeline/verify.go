package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/spendshield/internal/model"
	"github.com/sells-group/spendshield/internal/reference"
)

// Verify checks the extracted vendor against the reference store. It never
// fails: lookup errors are logged and treated as a miss.
func Verify(ctx context.Context, refs reference.Store, doc *model.ExtractedDocument) *model.VerificationResult {
	res := &model.VerificationResult{
		ItemAverages:        map[string]float64{},
		SimilarTransactions: []model.PriorTransaction{},
	}
	if refs == nil || doc == nil {
		return res
	}
	log := zap.L().With(zap.String("vendor_name", doc.VendorName), zap.String("vendor_id", doc.VendorID))

	vendor, ok := lookupVendor(ctx, refs, doc, log)
	if !ok {
		return res
	}
	res.VendorExists = true
	res.VendorID = vendor.ID
	res.VendorName = vendor.Name
	res.VendorRiskScore = vendor.RiskScore
	res.VendorRegistrationDate = vendor.RegistrationDate

	exps, err := refs.Expenditures(ctx, vendor.ID)
	if err != nil {
		log.Warn("pipeline: expenditure lookup failed", zap.Error(err))
		return res
	}

	for _, e := range exps {
		res.SimilarTransactions = append(res.SimilarTransactions, e.Prior())
	}
	for _, it := range doc.Items {
		if _, seen := res.ItemAverages[it.Description]; seen {
			continue
		}
		if avg, ok := meanUnitPrice(exps, it.Description); ok {
			res.ItemAverages[it.Description] = avg
		}
	}
	if first, ok := doc.FirstItem(); ok {
		res.HistoricalAvgUnitPrice = res.ItemAverages[first.Description]
	}

	if inv := strings.TrimSpace(doc.InvoiceNumber); inv != "" {
		for _, e := range exps {
			if strings.EqualFold(strings.TrimSpace(e.ReferenceNumber), inv) {
				prior := e.Prior()
				res.DuplicateOf = &prior
				break
			}
		}
	}
	return res
}

// lookupVendor tries the exact vendor id first, then the normalized name.
func lookupVendor(ctx context.Context, refs reference.Store, doc *model.ExtractedDocument, log *zap.Logger) (model.Vendor, bool) {
	if doc.VendorID != "" {
		v, ok, err := refs.VendorByID(ctx, doc.VendorID)
		if err != nil {
			log.Warn("pipeline: vendor id lookup failed", zap.Error(err))
		} else if ok {
			return v, true
		}
	}
	if doc.VendorName != "" {
		v, ok, err := refs.VendorByName(ctx, doc.VendorName)
		if err != nil {
			log.Warn("pipeline: vendor name lookup failed", zap.Error(err))
		} else if ok {
			return v, true
		}
	}
	return model.Vendor{}, false
}

// meanUnitPrice averages the unit price of prior records whose description
// contains desc, case-insensitively.
func meanUnitPrice(exps []model.Expenditure, desc string) (float64, bool) {
	needle := strings.ToLower(reference.NormalizeName(desc))
	if needle == "" {
		return 0, false
	}
	var sum float64
	var n int
	for _, e := range exps {
		if strings.Contains(strings.ToLower(reference.NormalizeName(e.ItemDescription)), needle) {
			sum += e.UnitPrice
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
