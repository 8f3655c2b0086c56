package model

// RiskLevel is the four-bucket classification of a fraud risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskLevelFor buckets a score. Upper bounds are inclusive:
// 0-20 LOW, 21-40 MEDIUM, 41-70 HIGH, 71-100 CRITICAL.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score > 70:
		return RiskCritical
	case score > 40:
		return RiskHigh
	case score > 20:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Disposition returns the payment action associated with the level.
func (l RiskLevel) Disposition() string {
	switch l {
	case RiskCritical:
		return "REJECT & INVESTIGATE"
	case RiskHigh:
		return "HOLD PAYMENT PENDING REVIEW"
	case RiskMedium:
		return "REQUEST ADDITIONAL DOCUMENTATION"
	default:
		return "PROCEED WITH STANDARD APPROVAL"
	}
}

// Report is the final artifact of a run.
type Report struct {
	FraudRiskScore  float64   `json:"fraud_risk_score"`
	RiskLevel       RiskLevel `json:"risk_level"`
	Recommendations []string  `json:"recommendations"`
	Disposition     string    `json:"disposition"`
	Summary         string    `json:"summary"`
}
