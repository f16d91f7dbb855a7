// File: internal/registry/postgres.go
// PostgreSQL job registry for deployments where job history must survive the
// process.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts the pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a schemas.JobStore backed by PostgreSQL.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.JobStore = (*PostgresStore)(nil)

// NewPostgresStore verifies the connection and returns the store.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("registry")}, nil
}

const sqlCreateJobsTable = `
	CREATE TABLE IF NOT EXISTS automation_jobs (
		id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL,
		parameters JSONB NOT NULL DEFAULT '{}',
		results JSONB NOT NULL DEFAULT '{}',
		logs JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	);`

// EnsureSchema creates the jobs table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateJobsTable); err != nil {
		return fmt.Errorf("failed to create automation_jobs table: %w", err)
	}
	return nil
}

const sqlInsertJob = `
	INSERT INTO automation_jobs (id, job_type, status, parameters, results, logs, created_at, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

func (s *PostgresStore) Create(ctx context.Context, job *schemas.Job) error {
	params, results, logs, err := encodePayloads(job)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, sqlInsertJob,
		job.ID, string(job.Type), string(job.Status),
		params, results, logs,
		job.CreatedAt.UTC(), completedAtUTC(job))
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

const sqlUpdateJob = `
	UPDATE automation_jobs
	SET status = $2, parameters = $3, results = $4, logs = $5, completed_at = $6
	WHERE id = $1;`

func (s *PostgresStore) Update(ctx context.Context, job *schemas.Job) error {
	params, results, logs, err := encodePayloads(job)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, sqlUpdateJob,
		job.ID, string(job.Status), params, results, logs, completedAtUTC(job))
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return schemas.ErrJobNotFound
	}
	return nil
}

const sqlSelectJob = `
	SELECT id, job_type, status, parameters, results, logs, created_at, completed_at
	FROM automation_jobs WHERE id = $1;`

func (s *PostgresStore) Get(ctx context.Context, id string) (*schemas.Job, error) {
	row := s.pool.QueryRow(ctx, sqlSelectJob, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, schemas.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, filter schemas.JobFilter) ([]*schemas.Job, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		clauses = append(clauses, fmt.Sprintf("job_type = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = schemas.DefaultListLimit
	}
	args = append(args, limit)

	query := "SELECT id, job_type, status, parameters, results, logs, created_at, completed_at FROM automation_jobs"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d;", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*schemas.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading job rows: %w", err)
	}
	return jobs, nil
}

// -- row plumbing --

func encodePayloads(job *schemas.Job) (params, results, logs []byte, err error) {
	if params, err = json.Marshal(job.Parameters); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal job parameters: %w", err)
	}
	if results, err = json.Marshal(job.Results); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal job results: %w", err)
	}
	if logs, err = json.Marshal(job.Logs); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal job logs: %w", err)
	}
	return params, results, logs, nil
}

func completedAtUTC(job *schemas.Job) any {
	if job.CompletedAt == nil {
		return nil
	}
	return job.CompletedAt.UTC()
}

func scanJob(row pgx.Row) (*schemas.Job, error) {
	var (
		job         schemas.Job
		jobType     string
		status      string
		params      []byte
		results     []byte
		logs        []byte
		completedAt *time.Time
	)
	if err := row.Scan(&job.ID, &jobType, &status, &params, &results, &logs, &job.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	job.Type = schemas.JobType(jobType)
	job.Status = schemas.JobStatus(status)
	job.CompletedAt = completedAt

	if err := json.Unmarshal(params, &job.Parameters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job parameters: %w", err)
	}
	if err := json.Unmarshal(results, &job.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job results: %w", err)
	}
	if err := json.Unmarshal(logs, &job.Logs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job logs: %w", err)
	}
	return &job, nil
}
