package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/veridata/crosscheck-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	counts       TEXT,
	config       TEXT
);

CREATE TABLE IF NOT EXISTS run_rows (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	row_index INTEGER NOT NULL,
	status    TEXT NOT NULL,
	result    TEXT NOT NULL,
	PRIMARY KEY (run_id, row_index)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_rows_run_id ON run_rows(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.ValidationRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at, config) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), run.StartedAt.UTC(), string(run.ConfigSnapshot),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) SaveRow(ctx context.Context, runID string, row model.RowResult) error {
	rowJSON, err := json.Marshal(row)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal row")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_rows (run_id, row_index, status, result) VALUES (?, ?, ?, ?)
		 ON CONFLICT (run_id, row_index) DO UPDATE SET status = excluded.status, result = excluded.result`,
		runID, row.Index, string(row.Status), string(rowJSON),
	)
	return eris.Wrapf(err, "sqlite: save row %d of run %s", row.Index, runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run *model.ValidationRun) error {
	countsJSON, err := json.Marshal(run.Counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, counts = ? WHERE id = ?`,
		string(run.Status), run.CompletedAt.UTC(), string(countsJSON), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", run.ID)
	}
	return checkRowsAffected(res, run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.ValidationRun, error) {
	var (
		run         model.ValidationRun
		status      string
		completedAt sql.NullTime
		counts      sql.NullString
		config      sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, started_at, completed_at, counts, config FROM runs WHERE id = ?`, runID,
	).Scan(&run.ID, &status, &run.StartedAt, &completedAt, &counts, &config)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: run %s not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}

	run.Status = model.RunStatus(status)
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time
	}
	if counts.Valid && counts.String != "" {
		if err := json.Unmarshal([]byte(counts.String), &run.Counts); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal counts")
		}
	}
	if config.Valid {
		run.ConfigSnapshot = json.RawMessage(config.String)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT result FROM run_rows WHERE run_id = ? ORDER BY row_index`, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get rows of run %s", runID)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		var rr model.RowResult
		if err := json.Unmarshal([]byte(raw), &rr); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal row")
		}
		run.Rows = append(run.Rows, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate rows")
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ValidationRun, error) {
	query := `SELECT id, status, started_at, completed_at, counts FROM runs`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		// SQLite requires a LIMIT clause before OFFSET.
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.ValidationRun
	for rows.Next() {
		var (
			run         model.ValidationRun
			status      string
			completedAt sql.NullTime
			counts      sql.NullString
		)
		if err := rows.Scan(&run.ID, &status, &run.StartedAt, &completedAt, &counts); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		run.Status = model.RunStatus(status)
		if completedAt.Valid {
			run.CompletedAt = completedAt.Time
		}
		if counts.Valid && counts.String != "" {
			if err := json.Unmarshal([]byte(counts.String), &run.Counts); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal counts")
			}
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run %s not found", runID)
	}
	return nil
}
