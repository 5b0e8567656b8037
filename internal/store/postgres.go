package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/thread-annotator/internal/db"
	"github.com/sells-group/thread-annotator/internal/model"
)

// PostgresStore implements Store using pgx connection pool.
type PostgresStore struct {
	pool  db.Pool
	close func()
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
	minConns := int32(2)
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
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, close: pool.Close}, nil
}

// Pool returns the underlying connection pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            UUID PRIMARY KEY,
	sample_path   TEXT NOT NULL DEFAULT '',
	template_path TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'queued',
	result        JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS post_analyses (
	run_id   UUID NOT NULL REFERENCES runs(id),
	post_id  TEXT NOT NULL,
	position INTEGER NOT NULL,
	analysis TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS exhausted_fields (
	id         UUID PRIMARY KEY,
	run_id     UUID NOT NULL REFERENCES runs(id),
	post_id    TEXT NOT NULL,
	field      TEXT NOT NULL,
	attempts   INTEGER NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_post_analyses_post_id ON post_analyses(run_id, post_id);
CREATE INDEX IF NOT EXISTS idx_exhausted_fields_run_id ON exhausted_fields(run_id);
`

// analysis text keeps template key order, which JSONB would not.
var analysesUpsert = db.UpsertConfig{
	Table:        "post_analyses",
	Columns:      []string{"run_id", "post_id", "position", "analysis"},
	ConflictKeys: []string{"run_id", "position"},
}

var exhaustedColumns = []string{"id", "run_id", "post_id", "field", "attempts", "error_kind", "error", "created_at"}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	return eris.Wrap(s.pool.QueryRow(ctx, `SELECT 1`).Scan(&one), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	run.ID = uuid.New().String()
	run.Status = model.RunStatusQueued
	run.CreatedAt = time.Now().UTC()
	run.UpdatedAt = run.CreatedAt
	run.Result = nil

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, sample_path, template_path, provider, model, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.SamplePath, run.TemplatePath, run.Provider, run.Model,
		string(run.Status), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(finalStatus(result)), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

const postgresRunColumns = `id, sample_path, template_path, provider, model, status, result, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return r, err
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE 1=1`
	var args []any
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Provider != "" {
		query += fmt.Sprintf(` AND provider = $%d`, argIdx)
		args = append(args, filter.Provider)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveAnalyses(ctx context.Context, runID string, analyses []model.PostAnalysis) error {
	rows := make([][]any, 0, len(analyses))
	for i, a := range analyses {
		data, err := json.Marshal(a)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal analysis %s", a.PostID)
		}
		rows = append(rows, []any{runID, a.PostID, i, string(data)})
	}
	if _, err := db.BulkUpsert(ctx, s.pool, analysesUpsert, rows); err != nil {
		return eris.Wrapf(err, "postgres: save analyses for run %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, runID string) ([]model.PostAnalysis, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT analysis FROM post_analyses WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	out := []model.PostAnalysis{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		var a model.PostAnalysis
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal analysis")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}

func (s *PostgresStore) SaveExhausted(ctx context.Context, recs []model.ExhaustedField) error {
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		rec = withID(rec)
		rows = append(rows, []any{
			rec.ID, rec.RunID, rec.PostID, rec.Field, rec.Attempts, rec.ErrorKind, rec.Error, rec.CreatedAt,
		})
	}
	if _, err := db.CopyFrom(ctx, s.pool, "exhausted_fields", exhaustedColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: save exhausted")
	}
	return nil
}

func (s *PostgresStore) ListExhausted(ctx context.Context, runID string) ([]model.ExhaustedField, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, post_id, field, attempts, error_kind, error, created_at
		 FROM exhausted_fields WHERE run_id = $1 ORDER BY created_at, post_id, field`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list exhausted")
	}
	defer rows.Close()

	out := []model.ExhaustedField{}
	for rows.Next() {
		var e model.ExhaustedField
		if err := rows.Scan(&e.ID, &e.RunID, &e.PostID, &e.Field, &e.Attempts, &e.ErrorKind, &e.Error, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan exhausted")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list exhausted iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var resultJSON []byte

	err := row.Scan(&r.ID, &r.SamplePath, &r.TemplatePath, &r.Provider, &r.Model,
		&r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}

	if resultJSON != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}
