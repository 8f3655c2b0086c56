// Package store persists analysis runs and their stage outputs.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spendshield/internal/model"
)

// DefaultListLimit applies when RunFilter.Limit is unset.
const DefaultListLimit = 10

// ErrNotFound is returned (wrapped) when a run id is unknown.
var ErrNotFound = eris.New("not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for analysis runs. Every
// implementation funnels stage writes through model.Run.Apply, so stage
// outputs stay append-only and ordered.
type Store interface {
	CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	CountRuns(ctx context.Context, filter RunFilter) (int, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	AppendStage(ctx context.Context, runID string, out model.StageOutput) (*model.Run, error)
	FailRun(ctx context.Context, runID string, stage model.Stage, msg string) (*model.Run, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

func notFound(runID string) error {
	return eris.Wrapf(ErrNotFound, "run %s", runID)
}

func encodeRun(r *model.Run) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal run")
	}
	return b, nil
}

func decodeRun(b []byte) (*model.Run, error) {
	var r model.Run
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal run")
	}
	if r.Errors == nil {
		r.Errors = []string{}
	}
	return &r, nil
}

// lastStage returns the bookkeeping entry written by the most recent
// Apply or Fail call.
func lastStage(r *model.Run) model.StageRecord {
	return r.Stages[len(r.Stages)-1]
}
