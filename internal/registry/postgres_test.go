// File: internal/registry/postgres_test.go
package registry

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// flexibleSQLMatcher builds a whitespace-insensitive regex for SQL
// expectations, so formatting changes in the queries do not break tests.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	store, err := NewPostgresStore(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return store, mockPool
}

func sampleJob() *schemas.Job {
	return &schemas.Job{
		ID:         "9f2d7c1a-aaaa-bbbb-cccc-000000000001",
		Type:       schemas.JobScrapeUsers,
		Status:     schemas.JobQueued,
		Parameters: map[string]any{"username": "admin"},
		CreatedAt:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Logs:       []string{},
		Results:    map[string]any{},
	}
}

func TestNewPostgresStore_PingFailure(t *testing.T) {
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = NewPostgresStore(context.Background(), mockPool, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher("CREATE TABLE IF NOT EXISTS automation_jobs")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_Create(t *testing.T) {
	store, mockPool := newMockStore(t)
	job := sampleJob()

	mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertJob)).
		WithArgs(job.ID, "scrape_users", "queued",
			[]byte(`{"username":"admin"}`), []byte(`{}`), []byte(`[]`),
			job.CreatedAt, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), job))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_UpdateUnknownJob(t *testing.T) {
	store, mockPool := newMockStore(t)
	job := sampleJob()
	job.Status = schemas.JobRunning

	mockPool.ExpectExec(flexibleSQLMatcher(sqlUpdateJob)).
		WithArgs(job.ID, "running",
			[]byte(`{"username":"admin"}`), []byte(`{}`), []byte(`[]`), nil).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.Update(context.Background(), job)
	assert.ErrorIs(t, err, schemas.ErrJobNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_GetRoundTrip(t *testing.T) {
	store, mockPool := newMockStore(t)
	completed := time.Date(2026, 3, 14, 9, 45, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"id", "job_type", "status", "parameters", "results", "logs", "created_at", "completed_at",
	}).AddRow(
		"job-1", "provision_user", "completed",
		[]byte(`{"email":"kara@example.com"}`),
		[]byte(`{"step_8_wait_for_confirmation":null}`),
		[]byte(`["job started"]`),
		time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		&completed,
	)
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectJob)).
		WithArgs("job-1").WillReturnRows(rows)

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.JobProvisionUser, job.Type)
	assert.Equal(t, schemas.JobCompleted, job.Status)
	assert.Equal(t, "kara@example.com", job.Parameters["email"])
	assert.Equal(t, []string{"job started"}, job.Logs)
	require.NotNil(t, job.CompletedAt)
	assert.True(t, job.CompletedAt.Equal(completed))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_GetUnknownJob(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectJob)).
		WithArgs("missing").WillReturnError(errors.New("no rows in result set"))

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_ListWithFilters(t *testing.T) {
	store, mockPool := newMockStore(t)

	rows := pgxmock.NewRows([]string{
		"id", "job_type", "status", "parameters", "results", "logs", "created_at", "completed_at",
	}).AddRow(
		"job-2", "scrape_users", "failed",
		[]byte(`{}`), []byte(`{}`), []byte(`[]`),
		time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		(*time.Time)(nil),
	)
	mockPool.ExpectQuery(flexibleSQLMatcher(
		"SELECT id, job_type, status, parameters, results, logs, created_at, completed_at FROM automation_jobs WHERE status = $1 AND job_type = $2 ORDER BY created_at DESC LIMIT $3;")).
		WithArgs("failed", "scrape_users", 5).
		WillReturnRows(rows)

	jobs, err := store.List(context.Background(), schemas.JobFilter{
		Status: schemas.JobFailed,
		Type:   schemas.JobScrapeUsers,
		Limit:  5,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-2", jobs[0].ID)
	assert.Nil(t, jobs[0].CompletedAt)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_ListAppliesDefaultLimit(t *testing.T) {
	store, mockPool := newMockStore(t)

	rows := pgxmock.NewRows([]string{
		"id", "job_type", "status", "parameters", "results", "logs", "created_at", "completed_at",
	})
	mockPool.ExpectQuery(flexibleSQLMatcher(
		"SELECT id, job_type, status, parameters, results, logs, created_at, completed_at FROM automation_jobs ORDER BY created_at DESC LIMIT $1;")).
		WithArgs(schemas.DefaultListLimit).
		WillReturnRows(rows)

	jobs, err := store.List(context.Background(), schemas.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
