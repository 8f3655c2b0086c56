package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/spendshield/internal/db"
	"github.com/sells-group/spendshield/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller keeps ownership
// of the pool; Close is a no-op.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool so the reference store can share it.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL DEFAULT 'pending',
	current_stage TEXT NOT NULL DEFAULT '',
	data          JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_stages (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	name         TEXT NOT NULL,
	status       TEXT NOT NULL,
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	completed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error) {
	run := model.NewRun(uuid.New().String(), input, time.Now().UTC())

	data, err := encodeRun(run)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, current_stage, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, string(run.Status), "", data, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM runs WHERE id = $1`, runID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return decodeRun(data)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT data FROM runs`
	args := []any{}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` WHERE status = $1`
	}
	args = append(args, filter.limit(), filter.Offset)
	if filter.Status != "" {
		query += ` ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	} else {
		query += ` ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CountRuns(ctx context.Context, filter RunFilter) (int, error) {
	query := `SELECT COUNT(*) FROM runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}

	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count runs")
	}
	return n, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	_, err := s.mutate(ctx, runID, func(r *model.Run) error {
		if r.Status.Terminal() {
			return eris.Wrapf(model.ErrStageOrder, "run %s is %s", r.ID, r.Status)
		}
		r.Status = status
		r.UpdatedAt = time.Now().UTC()
		return nil
	})
	return err
}

func (s *PostgresStore) AppendStage(ctx context.Context, runID string, out model.StageOutput) (*model.Run, error) {
	return s.mutate(ctx, runID, func(r *model.Run) error { return r.Apply(out) })
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, stage model.Stage, msg string) (*model.Run, error) {
	return s.mutate(ctx, runID, func(r *model.Run) error { return r.Fail(stage, msg) })
}

// mutate locks the run row, applies fn, and writes the run back with any
// newly appended stage record.
func (s *PostgresStore) mutate(ctx context.Context, runID string, fn func(r *model.Run) error) (*model.Run, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var data []byte
	err = tx.QueryRow(ctx, `SELECT data FROM runs WHERE id = $1 FOR UPDATE`, runID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load run %s", runID)
	}
	r, err := decodeRun(data)
	if err != nil {
		return nil, err
	}

	before := len(r.Stages)
	if err := fn(r); err != nil {
		return nil, eris.Wrapf(err, "postgres: update run %s", runID)
	}

	if len(r.Stages) > before {
		st := lastStage(r)
		_, err = tx.Exec(ctx,
			`INSERT INTO run_stages (run_id, seq, name, status, duration_ms, error, completed_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			runID, len(r.Stages), string(st.Name), string(st.Status), st.DurationMs, st.Error, st.CompletedAt,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: insert stage for run %s", runID)
		}
	}

	data, err = encodeRun(r)
	if err != nil {
		return nil, err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE runs SET status = $1, current_stage = $2, data = $3, updated_at = $4 WHERE id = $5`,
		string(r.Status), string(r.CurrentStage), data, r.UpdatedAt, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: write run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return nil, notFound(runID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrapf(err, "postgres: commit run %s", runID)
	}
	return r, nil
}
