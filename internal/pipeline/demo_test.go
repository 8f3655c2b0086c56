package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spendshield/internal/model"
)

func TestDemoRun(t *testing.T) {
	run := DemoRun()

	assert.Equal(t, DemoRunID, run.ID)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, model.StageReporting, run.CurrentStage)
	require.Len(t, run.Stages, 4)
	for i, st := range run.Stages {
		assert.Equal(t, model.StageOrder[i], st.Name)
		assert.Equal(t, model.StageStatusComplete, st.Status)
	}

	assert.Equal(t, "QuickFix Solutions Ltd", run.Extraction.VendorName)
	assert.False(t, run.Verification.VendorExists)
	require.Len(t, run.Anomalies, 2)
	assert.Equal(t, model.FlagGhostVendor, run.Anomalies[0].FlagType)
	assert.Equal(t, model.FlagPriceInflation, run.Anomalies[1].FlagType)

	require.NotNil(t, run.Report)
	assert.Equal(t, 65.0, run.Report.FraudRiskScore)
	assert.Equal(t, model.RiskHigh, run.Report.RiskLevel)
	assert.Equal(t, "HOLD PAYMENT PENDING REVIEW", run.Report.Disposition)
	assert.Len(t, run.Report.Recommendations, 2)
}

func TestDemoRun_Stable(t *testing.T) {
	a, err := json.Marshal(DemoRun())
	require.NoError(t, err)
	b, err := json.Marshal(DemoRun())
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	r := DemoRun()
	r.Anomalies[0].Description = "mutated"
	assert.NotEqual(t, "mutated", DemoRun().Anomalies[0].Description)
}
