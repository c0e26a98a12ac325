package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/klpod221/kode-judge/internal/domain"
)

// Postgres is the production Store implementation.
type Postgres struct {
	db *sql.DB
}

// Open connects to Postgres at dsn and verifies the connection.
func Open(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Schema is the DDL applied at startup (see cmd/judgesrv/main.go); kept
// alongside the store it backs rather than a separate migrations tool.
const Schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id                  UUID PRIMARY KEY,
	language_id         INTEGER NOT NULL,
	source_code         BYTEA NOT NULL,
	stdin               BYTEA,
	expected_output     BYTEA,
	additional_files    JSONB,
	cpu_time_limit      DOUBLE PRECISION NOT NULL,
	cpu_extra_time      DOUBLE PRECISION NOT NULL,
	wall_time_limit     DOUBLE PRECISION NOT NULL,
	memory_limit        BIGINT NOT NULL,
	max_processes       INTEGER NOT NULL,
	max_file_size       BIGINT NOT NULL,
	number_of_runs      INTEGER NOT NULL,
	per_process_time    BOOLEAN NOT NULL,
	per_process_memory  BOOLEAN NOT NULL,
	redirect_stderr     BOOLEAN NOT NULL,
	enable_network      BOOLEAN NOT NULL,
	status              TEXT NOT NULL,
	stdout              BYTEA,
	stderr              BYTEA,
	compile_output      BYTEA,
	meta                JSONB,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at          TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS submissions_created_at_idx ON submissions (created_at DESC);
`

func (p *Postgres) Close() error { return p.db.Close() }

// PingContext is used by the /health/database endpoint.
func (p *Postgres) PingContext(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Migrate applies Schema. Exposed separately from Open so callers (and
// tests against a throwaway database) can control when DDL runs.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, Schema)
	return err
}

func (p *Postgres) Create(ctx context.Context, sub domain.Submission) (string, error) {
	id := uuid.NewString()

	files, err := json.Marshal(sub.AdditionalFiles)
	if err != nil {
		return "", fmt.Errorf("marshal additional_files: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO submissions (
			id, language_id, source_code, stdin, expected_output, additional_files,
			cpu_time_limit, cpu_extra_time, wall_time_limit, memory_limit,
			max_processes, max_file_size, number_of_runs,
			per_process_time, per_process_memory, redirect_stderr, enable_network,
			status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		id, sub.LanguageID, sub.SourceCode, nullableBytes(sub.Stdin), nullableBytes(sub.ExpectedOutput), files,
		sub.Limits.CPUTimeLimit, sub.Limits.CPUExtraTime, sub.Limits.WallTimeLimit, sub.Limits.MemoryLimitKB,
		sub.Limits.MaxProcessesAndOrThreads, sub.Limits.MaxFileSizeKB, sub.Limits.NumberOfRuns,
		sub.Limits.EnablePerProcessTimeLimit, sub.Limits.EnablePerProcessMemoryLimit,
		sub.Limits.RedirectStderrToStdout, sub.Limits.EnableNetwork,
		string(domain.StatusPending),
	)
	if err != nil {
		return "", fmt.Errorf("insert submission: %w", err)
	}
	return id, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (domain.Submission, error) {
	row := p.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1 AND deleted_at IS NULL`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, ErrNotFound
	}
	if err != nil {
		return domain.Submission{}, err
	}
	return sub, nil
}

func (p *Postgres) GetMany(ctx context.Context, ids []string) ([]domain.Submission, error) {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if len(unique) == 0 {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx, selectColumns+` WHERE id = ANY($1) AND deleted_at IS NULL`, pq.Array(unique))
	if err != nil {
		return nil, fmt.Errorf("get many: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Submission, len(unique))
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		byID[sub.ID] = sub
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Submission, 0, len(unique))
	for _, id := range unique {
		if sub, ok := byID[id]; ok {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (p *Postgres) List(ctx context.Context, page, pageSize int) (domain.Page, error) {
	offset := (page - 1) * pageSize

	rows, err := p.db.QueryContext(ctx, `SELECT t.*, COUNT(*) OVER() AS total
		FROM (`+selectColumns+` WHERE deleted_at IS NULL) t
		ORDER BY t.created_at DESC
		LIMIT $1 OFFSET $2`, pageSize, offset)
	if err != nil {
		return domain.Page{}, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var total int
	items := make([]domain.Submission, 0, pageSize)
	for rows.Next() {
		sub, totalItems, err := scanSubmissionWithTotal(rows)
		if err != nil {
			return domain.Page{}, err
		}
		total = totalItems
		items = append(items, sub)
	}
	if err := rows.Err(); err != nil {
		return domain.Page{}, err
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	return domain.Page{
		Items:       items,
		TotalItems:  total,
		TotalPages:  totalPages,
		CurrentPage: page,
		PageSize:    pageSize,
	}, nil
}

func (p *Postgres) MarkProcessing(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE submissions SET status = $1
		WHERE id = $2 AND status = $3 AND deleted_at IS NULL`,
		string(domain.StatusProcessing), id, string(domain.StatusPending))
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return requireOneRow(res)
}

func (p *Postgres) UpdateResult(ctx context.Context, id string, upd Update) error {
	metaJSON, err := json.Marshal(upd.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	res, err := p.db.ExecContext(ctx, `
		UPDATE submissions SET
			status = $1, stdout = $2, stderr = $3, compile_output = $4, meta = $5
		WHERE id = $6 AND status = $7 AND deleted_at IS NULL`,
		string(upd.Status), nullableBytes(upd.Stdout), nullableBytes(upd.Stderr),
		nullableBytes(upd.CompileOutput), metaJSON, id, string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	return requireOneRow(res)
}

// Delete has no illegal-transition case to distinguish: a row is
// either deleted or it was never there (or already gone), so zero
// rows affected maps straight to ErrNotFound rather than sharing
// requireOneRow's PROCESSING-vs-PENDING semantics.
func (p *Postgres) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE submissions SET deleted_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrIllegalTransition
	}
	return nil
}

func nullableBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}
