package pipeline

import (
	"math"
	"strings"

	"github.com/sells-group/spendshield/internal/config"
	"github.com/sells-group/spendshield/internal/model"
)

// recommendationOrder lists flag types in rule order with their fixed
// recommendation text.
var recommendationOrder = []struct {
	flag model.FlagType
	text string
}{
	{model.FlagGhostVendor, "Verify vendor registration and credentials before releasing payment"},
	{model.FlagPriceInflation, "Investigate pricing against historical procurement records and market rates"},
	{model.FlagHighValue, "Require additional approval from senior management"},
	{model.FlagMissingData, "Request a complete invoice including vendor ID and invoice number"},
	{model.FlagDuplicateInvoice, "Check for duplicate payment against the original invoice"},
}

// Score sums severity weights, applies the vendor-risk multiplier when the
// vendor's risk score exceeds the threshold, and caps the result at 100.
func Score(anomalies []model.Anomaly, ver *model.VerificationResult, rules config.RulesConfig) float64 {
	var score float64
	for _, a := range anomalies {
		score += a.Severity.Weight()
	}
	if ver != nil && rules.VendorRiskMultiplier > 1 && ver.VendorRiskScore > rules.VendorRiskThreshold {
		score *= rules.VendorRiskMultiplier
	}
	score = math.Round(score*10) / 10
	return math.Min(score, 100)
}

// Recommendations returns one fixed recommendation per fired flag type, in
// rule order. The result is empty, not nil, when nothing fired.
func Recommendations(anomalies []model.Anomaly) []string {
	fired := make(map[model.FlagType]bool, len(anomalies))
	for _, a := range anomalies {
		fired[a.FlagType] = true
	}
	out := []string{}
	for _, r := range recommendationOrder {
		if fired[r.flag] {
			out = append(out, r.text)
		}
	}
	return out
}

// BuildReport produces the final report. It never fails.
func BuildReport(doc *model.ExtractedDocument, ver *model.VerificationResult, anomalies []model.Anomaly, rules config.RulesConfig) *model.Report {
	score := Score(anomalies, ver, rules)
	level := model.RiskLevelFor(score)
	r := &model.Report{
		FraudRiskScore:  score,
		RiskLevel:       level,
		Recommendations: Recommendations(anomalies),
		Disposition:     level.Disposition(),
	}
	r.Summary = renderSummary(doc, ver, anomalies, r)
	return r
}

func renderSummary(doc *model.ExtractedDocument, ver *model.VerificationResult, anomalies []model.Anomaly, r *model.Report) string {
	if doc == nil {
		doc = &model.ExtractedDocument{}
	}
	if ver == nil {
		ver = &model.VerificationResult{}
	}

	var b strings.Builder
	b.WriteString("# SpendShield Fraud Risk Assessment\n\n")
	b.WriteString("## Executive Summary\n\n")
	money.Fprintf(&b, "**Risk Level**: %s  \n", r.RiskLevel)
	money.Fprintf(&b, "**Fraud Risk Score**: %.1f/100  \n", r.FraudRiskScore)
	money.Fprintf(&b, "**Disposition**: %s  \n", r.Disposition)
	money.Fprintf(&b, "**Document Reference**: %s\n\n", orNA(doc.InvoiceNumber))

	b.WriteString("## Document Details\n\n| Field | Value |\n|-------|-------|\n")
	money.Fprintf(&b, "| Document Type | %s |\n", orNA(doc.DocumentType))
	money.Fprintf(&b, "| Vendor Name | %s |\n", orNA(doc.VendorName))
	money.Fprintf(&b, "| Vendor ID | %s |\n", orNA(doc.VendorID))
	money.Fprintf(&b, "| Total Amount | %.2f %s |\n", doc.TotalAmount, doc.Currency)
	money.Fprintf(&b, "| Transaction Date | %s |\n", orNA(doc.Date))
	money.Fprintf(&b, "| Approval Authority | %s |\n", orNA(doc.ApprovalAuthority))
	money.Fprintf(&b, "| Department | %s |\n\n", orNA(doc.Department))

	b.WriteString("## Verification Results\n\n| Metric | Result |\n|--------|--------|\n")
	money.Fprintf(&b, "| Vendor in Registry | %s |\n", yesNo(ver.VendorExists))
	money.Fprintf(&b, "| Vendor Registration Date | %s |\n", orNA(ver.VendorRegistrationDate))
	money.Fprintf(&b, "| Vendor Risk Score | %.2f |\n", ver.VendorRiskScore)
	if ver.HistoricalAvgUnitPrice > 0 {
		money.Fprintf(&b, "| Historical Avg Unit Price | %.2f |\n", ver.HistoricalAvgUnitPrice)
	} else {
		b.WriteString("| Historical Avg Unit Price | N/A |\n")
	}
	money.Fprintf(&b, "| Similar Transactions | %d |\n\n", len(ver.SimilarTransactions))

	money.Fprintf(&b, "## Anomalies Detected (%d)\n\n", len(anomalies))
	if len(anomalies) == 0 {
		b.WriteString("No anomalies detected. Document appears legitimate.\n\n")
	}
	for i, a := range anomalies {
		money.Fprintf(&b, "### %d. %s\n\n", i+1, flagTitle(a.FlagType))
		money.Fprintf(&b, "**Severity**: %s  \n", a.Severity)
		money.Fprintf(&b, "**Description**: %s\n\n", a.Description)
	}

	b.WriteString("## Recommendations\n\n")
	if len(r.Recommendations) == 0 {
		b.WriteString("Proceed with standard approval.\n")
	}
	for i, rec := range r.Recommendations {
		money.Fprintf(&b, "%d. %s\n", i+1, rec)
	}
	return b.String()
}

func flagTitle(f model.FlagType) string {
	words := strings.Split(string(f), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
