// Package pipeline runs the four analysis stages (extraction, verification,
// anomaly detection, reporting) for a run and records each stage output in
// the run store as it completes.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/spendshield/internal/config"
	"github.com/sells-group/spendshield/internal/extract"
	"github.com/sells-group/spendshield/internal/model"
	"github.com/sells-group/spendshield/internal/reference"
	"github.com/sells-group/spendshield/internal/store"
)

// Pipeline executes runs against a store, reference data and an extractor.
type Pipeline struct {
	store     store.Store
	refs      reference.Store
	extractor extract.Extractor
	rules     config.RulesConfig
	async     bool
	now       func() time.Time

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New creates a Pipeline.
func New(st store.Store, refs reference.Store, ext extract.Extractor, rules config.RulesConfig, pcfg config.PipelineConfig) *Pipeline {
	n := pcfg.MaxConcurrentRuns
	if n <= 0 {
		n = 4
	}
	return &Pipeline{
		store:     st,
		refs:      refs,
		extractor: ext,
		rules:     rules,
		async:     pcfg.Async,
		now:       time.Now,
		sem:       semaphore.NewWeighted(n),
	}
}

// Async reports whether Submit returns before the run finishes.
func (p *Pipeline) Async() bool { return p.async }

// Extractor returns the configured extractor.
func (p *Pipeline) Extractor() extract.Extractor { return p.extractor }

// Submit creates a run for input and executes it. In async mode the run is
// returned pending and executes in the background on a context detached
// from ctx; otherwise Submit returns the terminal run.
func (p *Pipeline) Submit(ctx context.Context, input model.RunInput) (*model.Run, error) {
	run, err := p.store.CreateRun(ctx, input)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	if !p.async {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.abandon(run.ID, model.StageExtraction, err, zap.L())
			return run, eris.Wrap(err, "pipeline: acquire run slot")
		}
		defer p.sem.Release(1)
		return p.Execute(ctx, run)
	}

	bg := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(bg, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		if _, err := p.Execute(bg, run); err != nil {
			zap.L().Error("pipeline: background run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()
	return run, nil
}

// Wait blocks until background runs finish or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "pipeline: wait for runs")
	}
}

// Execute runs every stage in order for an existing run. A stage failure
// marks the run failed and is not returned as an error; the returned error
// is reserved for store failures.
func (p *Pipeline) Execute(ctx context.Context, run *model.Run) (*model.Run, error) {
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("filename", run.Input.Filename))
	log.Info("pipeline: starting analysis")
	start := time.Now()

	if err := p.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		err = eris.Wrap(err, "pipeline: mark running")
		p.abandon(run.ID, model.StageExtraction, err, log)
		return run, err
	}

	var failed bool
	trackStage := func(stage model.Stage, fn func() (model.StageOutput, error)) error {
		if failed {
			return nil
		}
		stageStart := time.Now()
		out, fnErr := fn()
		duration := time.Since(stageStart).Milliseconds()

		if fnErr != nil {
			failed = true
			log.Error("pipeline: stage failed",
				zap.String("stage", string(stage)),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
			r, err := p.store.FailRun(ctx, run.ID, stage, fnErr.Error())
			if err != nil {
				return eris.Wrapf(err, "pipeline: fail run at %s", stage)
			}
			run = r
			return nil
		}

		out.Stage = stage
		out.DurationMs = duration
		out.CompletedAt = time.Now().UTC()
		r, err := p.store.AppendStage(ctx, run.ID, out)
		if err != nil {
			return eris.Wrapf(err, "pipeline: record %s", stage)
		}
		run = r
		log.Info("pipeline: stage complete",
			zap.String("stage", string(stage)),
			zap.Int64("duration_ms", duration),
		)
		return nil
	}

	var (
		doc       *model.ExtractedDocument
		ver       *model.VerificationResult
		anomalies []model.Anomaly
	)

	steps := []struct {
		stage model.Stage
		fn    func() (model.StageOutput, error)
	}{
		{model.StageExtraction, func() (model.StageOutput, error) {
			res, err := p.extract(ctx, run)
			if err != nil {
				return model.StageOutput{}, err
			}
			doc = res.Doc
			return model.StageOutput{Extraction: res.Doc, MockMode: res.MockMode, MockReason: res.MockReason}, nil
		}},
		{model.StageVerification, func() (model.StageOutput, error) {
			ver = Verify(ctx, p.refs, doc)
			return model.StageOutput{Verification: ver}, nil
		}},
		{model.StageDetection, func() (model.StageOutput, error) {
			anomalies = Detect(doc, ver, p.rules, p.now())
			return model.StageOutput{Anomalies: anomalies}, nil
		}},
		{model.StageReporting, func() (model.StageOutput, error) {
			return model.StageOutput{Report: BuildReport(doc, ver, anomalies, p.rules)}, nil
		}},
	}

	for _, s := range steps {
		if err := trackStage(s.stage, s.fn); err != nil {
			p.abandon(run.ID, s.stage, err, log)
			return run, err
		}
	}

	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Bool("mock_mode", run.MockMode),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if run.Report != nil {
		fields = append(fields,
			zap.Float64("fraud_risk_score", run.Report.FraudRiskScore),
			zap.String("risk_level", string(run.Report.RiskLevel)),
			zap.Int("anomalies", len(run.Anomalies)),
		)
	}
	log.Info("pipeline: analysis finished", fields...)
	return run, nil
}

func (p *Pipeline) extract(ctx context.Context, run *model.Run) (*extract.Result, error) {
	if p.extractor == nil {
		return nil, &extract.ExtractionFailure{Provider: "none", Err: eris.New("no extractor configured")}
	}
	res, err := p.extractor.Extract(ctx, extract.Document{
		Path:       run.Input.StoredPath,
		MIMEType:   run.Input.MIMEType,
		Department: run.Input.Department,
		FiscalYear: run.Input.FiscalYear,
	})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Doc == nil {
		return nil, &extract.ExtractionFailure{Provider: p.extractor.Name(), Err: eris.New("empty extraction result")}
	}
	return res, nil
}

// abandon makes a best-effort attempt to leave a run terminal after a
// store write failed mid-run.
func (p *Pipeline) abandon(runID string, stage model.Stage, cause error, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := p.store.FailRun(ctx, runID, stage, cause.Error()); err != nil {
		log.Warn("pipeline: could not mark run failed", zap.Error(err))
	}
}
