package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/thread-annotator/internal/model"
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
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	sample_path   TEXT NOT NULL DEFAULT '',
	template_path TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'queued',
	result        TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS post_analyses (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	post_id  TEXT NOT NULL,
	position INTEGER NOT NULL,
	analysis TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS exhausted_fields (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	post_id    TEXT NOT NULL,
	field      TEXT NOT NULL,
	attempts   INTEGER NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_post_analyses_post_id ON post_analyses(run_id, post_id);
CREATE INDEX IF NOT EXISTS idx_exhausted_fields_run_id ON exhausted_fields(run_id);
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

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	run.ID = uuid.New().String()
	run.Status = model.RunStatusQueued
	run.CreatedAt = time.Now().UTC()
	run.UpdatedAt = run.CreatedAt
	run.Result = nil

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, sample_path, template_path, provider, model, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SamplePath, run.TemplatePath, run.Provider, run.Model,
		string(run.Status), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(finalStatus(result)), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, runID)
}

const sqliteRunColumns = `id, sample_path, template_path, provider, model, status, result, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, filter.Provider)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

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
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveAnalyses(ctx context.Context, runID string, analyses []model.PostAnalysis) error {
	if len(analyses) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save analyses")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO post_analyses (run_id, post_id, position, analysis) VALUES (?, ?, ?, ?)
		 ON CONFLICT (run_id, position) DO UPDATE SET post_id = excluded.post_id, analysis = excluded.analysis`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save analyses")
	}
	defer stmt.Close() //nolint:errcheck

	for i, a := range analyses {
		data, err := json.Marshal(a)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal analysis %s", a.PostID)
		}
		if _, err := stmt.ExecContext(ctx, runID, a.PostID, i, string(data)); err != nil {
			return eris.Wrapf(err, "sqlite: insert analysis %s", a.PostID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save analyses")
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, runID string) ([]model.PostAnalysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT analysis FROM post_analyses WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.PostAnalysis{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis")
		}
		var a model.PostAnalysis
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal analysis")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}

func (s *SQLiteStore) SaveExhausted(ctx context.Context, recs []model.ExhaustedField) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save exhausted")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, rec := range recs {
		rec = withID(rec)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO exhausted_fields (id, run_id, post_id, field, attempts, error_kind, error, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.RunID, rec.PostID, rec.Field, rec.Attempts, rec.ErrorKind, rec.Error, rec.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert exhausted field %s/%s", rec.PostID, rec.Field)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save exhausted")
}

func (s *SQLiteStore) ListExhausted(ctx context.Context, runID string) ([]model.ExhaustedField, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, post_id, field, attempts, error_kind, error, created_at
		 FROM exhausted_fields WHERE run_id = ? ORDER BY created_at, post_id, field`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list exhausted")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.ExhaustedField{}
	for rows.Next() {
		var e model.ExhaustedField
		if err := rows.Scan(&e.ID, &e.RunID, &e.PostID, &e.Field, &e.Attempts, &e.ErrorKind, &e.Error, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan exhausted")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list exhausted iterate")
}

// helpers

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &r.SamplePath, &r.TemplatePath, &r.Provider, &r.Model,
		&r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}

// withID fills a missing id and timestamp.
func withID(rec model.ExhaustedField) model.ExhaustedField {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return rec
}
