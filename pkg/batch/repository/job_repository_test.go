package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/autobatch/pkg/batch/config"
	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	"github.com/tigerroll/autobatch/pkg/batch/repository"
)

func newSQLiteRepository(t *testing.T) repository.JobRepository {
	t.Helper()
	repo, err := repository.NewJobRepository(context.Background(), config.DatabaseConfig{Type: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func repositories(t *testing.T) map[string]repository.JobRepository {
	return map[string]repository.JobRepository{
		"memory": repository.NewMemoryJobRepository(),
		"sqlite": newSQLiteRepository(t),
	}
}

func TestJobRepository_InstanceLookupByParameters(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			params := core.NewJobParameters()
			params.Put("date", "2024-01-01")

			found, err := repo.FindJobInstanceByJobNameAndParameters(ctx, "importJob", params)
			require.NoError(t, err)
			assert.Nil(t, found)

			ji := core.NewJobInstance("importJob", params)
			require.NoError(t, repo.SaveJobInstance(ctx, ji))

			found, err = repo.FindJobInstanceByJobNameAndParameters(ctx, "importJob", params)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, ji.ID, found.ID)
			v, _ := found.Parameters.GetString("date")
			assert.Equal(t, "2024-01-01", v)

			other := core.NewJobParameters()
			other.Put("date", "2024-01-02")
			found, err = repo.FindJobInstanceByJobNameAndParameters(ctx, "importJob", other)
			require.NoError(t, err)
			assert.Nil(t, found)
		})
	}
}

func TestJobRepository_StepCheckpointRoundTrip(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ji := core.NewJobInstance("importJob", core.NewJobParameters())
			require.NoError(t, repo.SaveJobInstance(ctx, ji))

			je := core.NewJobExecution(ji.ID, ji.JobName, ji.Parameters)
			require.NoError(t, repo.SaveJobExecution(ctx, je))
			je.MarkAsStarted()
			require.NoError(t, repo.UpdateJobExecution(ctx, je))

			se := core.NewStepExecution("importJob.step", je)
			require.NoError(t, repo.SaveStepExecution(ctx, se))
			se.MarkAsStarted()
			se.ReadCount = 4
			se.WriteCount = 4
			se.CommitCount = 2
			se.ExecutionContext.Put("fooReader.read.count", 4)
			se.MarkAsFailed(errors.New("disk full"))
			require.NoError(t, repo.UpdateStepExecution(ctx, se))

			je.MarkAsFailed(errors.New("disk full"))
			require.NoError(t, repo.UpdateJobExecution(ctx, je))

			latestJob, err := repo.FindLatestJobExecution(ctx, ji.ID)
			require.NoError(t, err)
			require.NotNil(t, latestJob)
			assert.Equal(t, je.ID, latestJob.ID)
			assert.Equal(t, core.BatchStatusFailed, latestJob.Status)
			require.Len(t, latestJob.Failures, 1)
			assert.EqualError(t, latestJob.Failures[0], "disk full")

			latest, err := repo.FindLatestStepExecution(ctx, ji.ID, "importJob.step")
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, se.ID, latest.ID)
			assert.Equal(t, core.BatchStatusFailed, latest.Status)
			assert.Equal(t, 4, latest.ReadCount)
			assert.Equal(t, 2, latest.CommitCount)
			n, ok := latest.ExecutionContext.GetInt("fooReader.read.count")
			assert.True(t, ok)
			assert.Equal(t, 4, n)
			assert.False(t, latest.StartTime.IsZero())

			missing, err := repo.FindLatestStepExecution(ctx, ji.ID, "other")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestJobRepository_UpdateUnknownExecutionFails(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			je := core.NewJobExecution("nope", "job", core.NewJobParameters())
			assert.Error(t, repo.UpdateJobExecution(context.Background(), je))
		})
	}
}

func TestMemoryJobRepository_StoresCopies(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryJobRepository()
	ji := core.NewJobInstance("job", core.NewJobParameters())
	require.NoError(t, repo.SaveJobInstance(ctx, ji))
	je := core.NewJobExecution(ji.ID, "job", ji.Parameters)
	require.NoError(t, repo.SaveJobExecution(ctx, je))
	se := core.NewStepExecution("job.step", je)
	require.NoError(t, repo.SaveStepExecution(ctx, se))

	se.ExecutionContext.Put("k", 1)
	latest, err := repo.FindLatestStepExecution(ctx, ji.ID, "job.step")
	require.NoError(t, err)
	_, ok := latest.ExecutionContext.GetInt("k")
	assert.False(t, ok)
}
