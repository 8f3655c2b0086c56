package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRun() *Run {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Run{
		ID:        "run-1",
		Status:    RunStatusPending,
		Input:     RunInput{Filename: "invoice.png", MIMEType: "image/png", SizeBytes: 10},
		Errors:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func allOutputs() []StageOutput {
	return []StageOutput{
		{Stage: StageExtraction, Extraction: &ExtractedDocument{VendorName: "Acme", InvoiceNumber: "INV-1"}, MockMode: true, MockReason: "no credential"},
		{Stage: StageVerification, Verification: &VerificationResult{VendorExists: true}},
		{Stage: StageDetection},
		{Stage: StageReporting, Report: &Report{RiskLevel: RiskLow, Recommendations: []string{}}},
	}
}

func TestRunStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   RunStatus
		want     string
		terminal bool
	}{
		{RunStatusPending, "pending", false},
		{RunStatusRunning, "running", false},
		{RunStatusCompleted, "completed", true},
		{RunStatusFailed, "failed", true},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestRunApply_InOrder(t *testing.T) {
	t.Parallel()

	r := newTestRun()
	for i, out := range allOutputs() {
		require.NoError(t, r.Apply(out))
		assert.Equal(t, out.Stage, r.CurrentStage)
		assert.Len(t, r.Stages, i+1)
	}

	assert.Equal(t, RunStatusCompleted, r.Status)
	assert.True(t, r.MockMode)
	assert.Equal(t, "no credential", r.MockReason)
	assert.NotNil(t, r.Anomalies)
	assert.Empty(t, r.Anomalies)
	assert.Equal(t, Stage(""), r.NextStage())
	for i, s := range r.Stages {
		assert.Equal(t, StageOrder[i], s.Name)
		assert.Equal(t, StageStatusComplete, s.Status)
	}
}

func TestRunApply_RejectsSkip(t *testing.T) {
	t.Parallel()

	r := newTestRun()
	err := r.Apply(StageOutput{Stage: StageVerification, Verification: &VerificationResult{}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStageOrder))
	assert.Empty(t, r.Stages)
	assert.Equal(t, RunStatusPending, r.Status)
}

func TestRunApply_RejectsRepeat(t *testing.T) {
	t.Parallel()

	r := newTestRun()
	outs := allOutputs()
	require.NoError(t, r.Apply(outs[0]))

	err := r.Apply(outs[0])
	assert.ErrorIs(t, err, ErrStageOrder)
	assert.Len(t, r.Stages, 1)
}

func TestRunApply_RejectsAfterCompletion(t *testing.T) {
	t.Parallel()

	r := newTestRun()
	for _, out := range allOutputs() {
		require.NoError(t, r.Apply(out))
	}
	assert.ErrorIs(t, r.Apply(allOutputs()[3]), ErrStageOrder)
}

func TestRunApply_EmptyOutput(t *testing.T) {
	t.Parallel()

	r := newTestRun()
	err := r.Apply(StageOutput{Stage: StageExtraction})
	require.Error(t, err)
	assert.Empty(t, r.Stages)
}

func TestRunFail(t *testing.T) {
	t.Parallel()

	r := newTestRun()
	require.NoError(t, r.Fail(StageExtraction, "extract: unparseable output"))

	assert.Equal(t, RunStatusFailed, r.Status)
	assert.Equal(t, []string{"extract: unparseable output"}, r.Errors)
	require.Len(t, r.Stages, 1)
	assert.Equal(t, StageStatusFailed, r.Stages[0].Status)

	// Terminal runs accept nothing further.
	assert.ErrorIs(t, r.Apply(allOutputs()[0]), ErrStageOrder)
	assert.ErrorIs(t, r.Fail(StageVerification, "again"), ErrStageOrder)
}

func TestRunSummary(t *testing.T) {
	t.Parallel()

	r := newTestRun()
	for _, out := range allOutputs() {
		require.NoError(t, r.Apply(out))
	}
	r.Report.FraudRiskScore = 35
	r.Report.RiskLevel = RiskMedium

	s := r.Summary()
	assert.Equal(t, "run-1", s.ID)
	assert.Equal(t, "Acme", s.VendorName)
	assert.Equal(t, "invoice.png", s.Filename)
	assert.Equal(t, 35.0, s.FraudRiskScore)
	assert.Equal(t, RiskMedium, s.RiskLevel)
	assert.Equal(t, 0, s.AnomalyCount)
}

func TestRunJSONRoundTrip(t *testing.T) {
	t.Parallel()

	r := newTestRun()
	for _, out := range allOutputs() {
		require.NoError(t, r.Apply(out))
	}

	first, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded Run
	require.NoError(t, json.Unmarshal(first, &decoded))
	second, err := json.Marshal(&decoded)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
}

func TestRunJSON_EmptyAnomalies(t *testing.T) {
	t.Parallel()

	r := newTestRun()
	for _, out := range allOutputs() {
		require.NoError(t, r.Apply(out))
	}

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"anomalies":[]`)

	var decoded Run
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotNil(t, decoded.Anomalies)
	assert.Empty(t, decoded.Anomalies)
}
