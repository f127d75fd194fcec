package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/veridata/crosscheck-cli/internal/model"
)

// PoolConfig tunes the postgres connection pool.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies
// it, which keeps the tests free of a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres connects to postgres using the given DSN.
func NewPostgres(ctx context.Context, dsn string, cfg PoolConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse dsn")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	counts       JSONB,
	config       JSONB
);

CREATE TABLE IF NOT EXISTS run_rows (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	row_index INTEGER NOT NULL,
	status    TEXT NOT NULL,
	result    JSONB NOT NULL,
	PRIMARY KEY (run_id, row_index)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_rows_run_id ON run_rows(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.ValidationRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, started_at, config) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Status), run.StartedAt.UTC(), []byte(run.ConfigSnapshot),
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) SaveRow(ctx context.Context, runID string, row model.RowResult) error {
	rowJSON, err := json.Marshal(row)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal row")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO run_rows (run_id, row_index, status, result) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id, row_index) DO UPDATE SET status = EXCLUDED.status, result = EXCLUDED.result`,
		runID, row.Index, string(row.Status), rowJSON,
	)
	return eris.Wrapf(err, "postgres: save row %d of run %s", row.Index, runID)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run *model.ValidationRun) error {
	countsJSON, err := json.Marshal(run.Counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counts")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, completed_at = $2, counts = $3 WHERE id = $4`,
		string(run.Status), run.CompletedAt.UTC(), countsJSON, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.ValidationRun, error) {
	var (
		run         model.ValidationRun
		status      string
		completedAt sql.NullTime
		counts      []byte
		config      []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, started_at, completed_at, counts, config FROM runs WHERE id = $1`, runID,
	).Scan(&run.ID, &status, &run.StartedAt, &completedAt, &counts, &config)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: run %s not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	run.Status = model.RunStatus(status)
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time
	}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &run.Counts); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal counts")
		}
	}
	if len(config) > 0 {
		run.ConfigSnapshot = json.RawMessage(config)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT result FROM run_rows WHERE run_id = $1 ORDER BY row_index`, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get rows of run %s", runID)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		var rr model.RowResult
		if err := json.Unmarshal(raw, &rr); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal row")
		}
		run.Rows = append(run.Rows, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate rows")
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ValidationRun, error) {
	query := `SELECT id, status, started_at, completed_at, counts FROM runs`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` WHERE status = $1`
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.ValidationRun
	for rows.Next() {
		var (
			run         model.ValidationRun
			status      string
			completedAt sql.NullTime
			counts      []byte
		)
		if err := rows.Scan(&run.ID, &status, &run.StartedAt, &completedAt, &counts); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		run.Status = model.RunStatus(status)
		if completedAt.Valid {
			run.CompletedAt = completedAt.Time
		}
		if len(counts) > 0 {
			if err := json.Unmarshal(counts, &run.Counts); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal counts")
			}
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}
