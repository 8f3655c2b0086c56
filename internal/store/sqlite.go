package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/spendshield/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// One writer at a time keeps AppendStage transactions from racing on
	// the database lock.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying handle so the reference store can share it.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL DEFAULT 'pending',
	current_stage TEXT NOT NULL DEFAULT '',
	data          TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_stages (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	seq          INTEGER NOT NULL,
	name         TEXT NOT NULL,
	status       TEXT NOT NULL,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	completed_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error) {
	run := model.NewRun(uuid.New().String(), input, time.Now().UTC())

	data, err := encodeRun(run)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, current_stage, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), "", string(data), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT data FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	runs := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CountRuns(ctx context.Context, filter RunFilter) (int, error) {
	query := `SELECT COUNT(*) FROM runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count runs")
	}
	return n, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
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

func (s *SQLiteStore) AppendStage(ctx context.Context, runID string, out model.StageOutput) (*model.Run, error) {
	return s.mutate(ctx, runID, func(r *model.Run) error { return r.Apply(out) })
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, stage model.Stage, msg string) (*model.Run, error) {
	return s.mutate(ctx, runID, func(r *model.Run) error { return r.Fail(stage, msg) })
}

// mutate loads the run, applies fn, and writes the run back together with
// any newly appended stage record, all in one transaction.
func (s *SQLiteStore) mutate(ctx context.Context, runID string, fn func(r *model.Run) error) (*model.Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	r, err := scanRun(tx.QueryRowContext(ctx, `SELECT data FROM runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load run %s", runID)
	}

	before := len(r.Stages)
	if err := fn(r); err != nil {
		return nil, eris.Wrapf(err, "sqlite: update run %s", runID)
	}

	if len(r.Stages) > before {
		st := lastStage(r)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_stages (run_id, seq, name, status, duration_ms, error, completed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, len(r.Stages), string(st.Name), string(st.Status), st.DurationMs, st.Error, st.CompletedAt,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert stage for run %s", runID)
		}
	}

	data, err := encodeRun(r)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, current_stage = ?, data = ?, updated_at = ? WHERE id = ?`,
		string(r.Status), string(r.CurrentStage), string(data), r.UpdatedAt, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: write run %s", runID)
	}
	if err := checkRowsAffected(res, runID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: commit run %s", runID)
	}
	return r, nil
}

// helpers

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return notFound(runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		return nil, err
	}
	return decodeRun([]byte(data))
}
