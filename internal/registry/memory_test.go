// File: internal/registry/memory_test.go
package registry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

func memJob(id string, jobType schemas.JobType, status schemas.JobStatus, created time.Time) *schemas.Job {
	return &schemas.Job{
		ID:         id,
		Type:       jobType,
		Status:     status,
		CreatedAt:  created,
		Parameters: map[string]any{},
		Logs:       []string{},
		Results:    map[string]any{},
	}
}

func TestMemoryStore_CreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	job := memJob("a", schemas.JobScrapeUsers, schemas.JobQueued, time.Now())
	job.Parameters["username"] = "admin"
	job.Results["users"] = []map[string]string{{"name": "alice"}}
	require.NoError(t, store.Create(ctx, job))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(job, got), "retrieved record differs from the stored one")

	// Stored record is isolated from later caller mutations.
	job.Logs = append(job.Logs, "mutated after create")
	got2, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got2.Logs)
}

func TestMemoryStore_GetUnknownID(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, schemas.ErrJobNotFound)
}

func TestMemoryStore_UpdateUnknownID(t *testing.T) {
	store := NewMemoryStore()
	err := store.Update(context.Background(), memJob("nope", schemas.JobWorkflow, schemas.JobRunning, time.Now()))
	assert.ErrorIs(t, err, schemas.ErrJobNotFound)
}

func TestMemoryStore_ListNewestFirstWithFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now()

	require.NoError(t, store.Create(ctx, memJob("old", schemas.JobScrapeUsers, schemas.JobCompleted, base.Add(-2*time.Hour))))
	require.NoError(t, store.Create(ctx, memJob("mid", schemas.JobProvisionUser, schemas.JobFailed, base.Add(-time.Hour))))
	require.NoError(t, store.Create(ctx, memJob("new", schemas.JobScrapeUsers, schemas.JobCompleted, base)))

	all, err := store.List(ctx, schemas.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[2].ID)

	scrapes, err := store.List(ctx, schemas.JobFilter{Type: schemas.JobScrapeUsers})
	require.NoError(t, err)
	require.Len(t, scrapes, 2)

	failed, err := store.List(ctx, schemas.JobFilter{Status: schemas.JobFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "mid", failed[0].ID)
}

func TestMemoryStore_ListAppliesDefaultLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now()

	for i := 0; i < schemas.DefaultListLimit+5; i++ {
		job := memJob(fmt.Sprintf("job-%02d", i), schemas.JobScrapeUsers, schemas.JobQueued, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.Create(ctx, job))
	}

	listed, err := store.List(ctx, schemas.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, schemas.DefaultListLimit)
	assert.Equal(t, fmt.Sprintf("job-%02d", schemas.DefaultListLimit+4), listed[0].ID)

	limited, err := store.List(ctx, schemas.JobFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}
