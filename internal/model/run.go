package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether no further stage can change the run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Stage names a pipeline stage.
type Stage string

const (
	StageExtraction   Stage = "extraction"
	StageVerification Stage = "verification"
	StageDetection    Stage = "anomaly_detection"
	StageReporting    Stage = "reporting"
)

// StageOrder is the fixed execution order of the pipeline.
var StageOrder = []Stage{StageExtraction, StageVerification, StageDetection, StageReporting}

// StageStatus represents the outcome of a single stage.
type StageStatus string

const (
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
)

// ErrStageOrder is returned when a stage output would repeat or skip a stage.
var ErrStageOrder = eris.New("stage out of order")

// RunInput describes the uploaded document a run was created for.
type RunInput struct {
	Filename   string `json:"filename"`
	MIMEType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
	StoredPath string `json:"stored_path,omitempty"`
	Department string `json:"department,omitempty"`
	FiscalYear *int   `json:"fiscal_year,omitempty"`
}

// StageRecord is the bookkeeping entry for a completed (or failed) stage.
type StageRecord struct {
	Name        Stage       `json:"name"`
	Status      StageStatus `json:"status"`
	DurationMs  int64       `json:"duration_ms"`
	CompletedAt time.Time   `json:"completed_at"`
	Error       string      `json:"error,omitempty"`
}

// Run is one end-to-end execution of the pipeline for a single document.
type Run struct {
	ID           string    `json:"id"`
	Status       RunStatus `json:"status"`
	CurrentStage Stage     `json:"current_stage,omitempty"`
	Input        RunInput  `json:"input"`
	MockMode     bool      `json:"mock_mode"`
	MockReason   string    `json:"mock_reason,omitempty"`
	Errors       []string  `json:"errors"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Stages       []StageRecord       `json:"stages"`
	Extraction   *ExtractedDocument  `json:"extraction,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty"`
	Anomalies    []Anomaly           `json:"anomalies"`
	Report       *Report             `json:"report,omitempty"`
}

// NewRun returns a pending run for the given input.
func NewRun(id string, input RunInput, now time.Time) *Run {
	return &Run{
		ID:        id,
		Status:    RunStatusPending,
		Input:     input,
		Errors:    []string{},
		Stages:    []StageRecord{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StageOutput carries the result of one stage. Exactly one of the output
// fields is set, matching Stage.
type StageOutput struct {
	Stage        Stage
	DurationMs   int64
	CompletedAt  time.Time
	Extraction   *ExtractedDocument
	MockMode     bool
	MockReason   string
	Verification *VerificationResult
	Anomalies    []Anomaly
	Report       *Report
}

// NextStage returns the stage that must complete next, or "" once all
// stages are done.
func (r *Run) NextStage() Stage {
	n := len(r.Stages)
	if n >= len(StageOrder) {
		return ""
	}
	return StageOrder[n]
}

// Apply appends a stage output to the run. Outputs must arrive in
// StageOrder; a repeated or skipped stage returns ErrStageOrder.
func (r *Run) Apply(out StageOutput) error {
	if r.Status.Terminal() {
		return eris.Wrapf(ErrStageOrder, "run %s is %s", r.ID, r.Status)
	}
	want := r.NextStage()
	if want == "" || out.Stage != want {
		return eris.Wrapf(ErrStageOrder, "got %s, want %s", out.Stage, want)
	}

	switch out.Stage {
	case StageExtraction:
		if out.Extraction == nil {
			return eris.New("extraction output is empty")
		}
		r.Extraction = out.Extraction
		r.MockMode = out.MockMode
		r.MockReason = out.MockReason
	case StageVerification:
		if out.Verification == nil {
			return eris.New("verification output is empty")
		}
		r.Verification = out.Verification
	case StageDetection:
		r.Anomalies = out.Anomalies
		if r.Anomalies == nil {
			r.Anomalies = []Anomaly{}
		}
	case StageReporting:
		if out.Report == nil {
			return eris.New("report output is empty")
		}
		r.Report = out.Report
	}

	completed := out.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}
	r.Stages = append(r.Stages, StageRecord{
		Name:        out.Stage,
		Status:      StageStatusComplete,
		DurationMs:  out.DurationMs,
		CompletedAt: completed,
	})
	r.CurrentStage = out.Stage
	r.Status = RunStatusRunning
	if r.NextStage() == "" {
		r.Status = RunStatusCompleted
	}
	r.UpdatedAt = completed
	return nil
}

// Fail marks the run failed at the given stage and records the error.
func (r *Run) Fail(stage Stage, msg string) error {
	if r.Status.Terminal() {
		return eris.Wrapf(ErrStageOrder, "run %s is %s", r.ID, r.Status)
	}
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.CurrentStage = stage
	r.Errors = append(r.Errors, msg)
	r.Stages = append(r.Stages, StageRecord{
		Name:        stage,
		Status:      StageStatusFailed,
		CompletedAt: now,
		Error:       msg,
	})
	r.UpdatedAt = now
	return nil
}

// RunSummary is the compact listing view of a run.
type RunSummary struct {
	ID             string    `json:"run_id"`
	Status         RunStatus `json:"status"`
	CurrentStage   Stage     `json:"current_stage,omitempty"`
	Filename       string    `json:"filename"`
	VendorName     string    `json:"vendor_name,omitempty"`
	FraudRiskScore float64   `json:"fraud_risk_score"`
	RiskLevel      RiskLevel `json:"risk_level,omitempty"`
	AnomalyCount   int       `json:"anomaly_count"`
	MockMode       bool      `json:"mock_mode"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary builds the listing view of the run.
func (r *Run) Summary() RunSummary {
	s := RunSummary{
		ID:           r.ID,
		Status:       r.Status,
		CurrentStage: r.CurrentStage,
		Filename:     r.Input.Filename,
		AnomalyCount: len(r.Anomalies),
		MockMode:     r.MockMode,
		CreatedAt:    r.CreatedAt,
	}
	if r.Extraction != nil {
		s.VendorName = r.Extraction.VendorName
	}
	if r.Report != nil {
		s.FraudRiskScore = r.Report.FraudRiskScore
		s.RiskLevel = r.Report.RiskLevel
	}
	return s
}
