package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/jdholdren/selvedge/internal/database"
	"github.com/jdholdren/selvedge/internal/enrich"
	"github.com/jdholdren/selvedge/internal/migrations"
	"github.com/jdholdren/selvedge/internal/selvedge"
	"github.com/jdholdren/selvedge/internal/source"
	"github.com/jdholdren/selvedge/internal/sqlite"
	"github.com/jdholdren/selvedge/internal/trend"
)

type stubSource struct {
	items []source.RawItem
	err   error
}

func (stubSource) Platform() selvedge.Platform { return selvedge.PlatformEtsy }

func (s stubSource) Fetch(context.Context, source.Query) ([]source.RawItem, error) {
	return s.items, s.err
}

func (stubSource) Normalize(item source.RawItem) (selvedge.Listing, error) {
	var it struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(item, &it); err != nil {
		return selvedge.Listing{}, err
	}
	return selvedge.Listing{Platform: selvedge.PlatformEtsy, ExternalID: it.ID, Title: "Lee Riders " + it.ID}, nil
}

func newActivities(t *testing.T, src source.Source) (activities, sqlite.Repo) {
	t.Helper()

	dbx, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })
	require.NoError(t, migrations.Run(dbx))
	repo := sqlite.New(dbx)

	return activities{
		repo:     repo,
		sources:  source.NewRegistry(src),
		trends:   trend.New(repo),
		enricher: enrich.New(repo, nil, false),
	}, repo
}

func TestRunSync_UpsertsListings(t *testing.T) {
	a, repo := newActivities(t, stubSource{items: []source.RawItem{
		json.RawMessage(`{"id":"1"}`),
		json.RawMessage(`{"id":"2"}`),
	}})

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(&a)

	val, err := env.ExecuteActivity(a.RunSync, SyncRequest{Platform: selvedge.PlatformEtsy})
	require.NoError(t, err)

	var stats selvedge.SyncStats
	require.NoError(t, val.Get(&stats))
	assert.Equal(t, selvedge.SyncStats{Fetched: 2, Added: 2}, stats)

	l, err := repo.ListingByExternalID(context.Background(), selvedge.PlatformEtsy, "2")
	require.NoError(t, err)
	assert.Equal(t, "Lee Riders 2", l.Title)
}

func TestRunSync_AdapterFailureIsNotRetryable(t *testing.T) {
	a, _ := newActivities(t, stubSource{err: &source.AdapterError{
		Platform: selvedge.PlatformEtsy,
		Op:       "search",
		Err:      errors.New("status 503"),
	}})

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(&a)

	_, err := env.ExecuteActivity(a.RunSync, SyncRequest{Platform: selvedge.PlatformEtsy})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errTypeAdapter, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestRunSync_UnknownPlatform(t *testing.T) {
	a, _ := newActivities(t, stubSource{})

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(&a)

	_, err := env.ExecuteActivity(a.RunSync, SyncRequest{Platform: selvedge.PlatformReddit})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no adapter configured for reddit")

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errTypeNotConfigured, appErr.Type())
}

func TestConfiguredPlatforms(t *testing.T) {
	a, _ := newActivities(t, stubSource{})

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(&a)

	val, err := env.ExecuteActivity(a.ConfiguredPlatforms)
	require.NoError(t, err)
	var got []selvedge.Platform
	require.NoError(t, val.Get(&got))
	assert.Equal(t, []selvedge.Platform{selvedge.PlatformEtsy}, got)
}

func TestSyncJobLifecycle(t *testing.T) {
	a, repo := newActivities(t, stubSource{})

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(&a)

	val, err := env.ExecuteActivity(a.StartSyncJob, StartSyncJobArgs{
		Platform:   selvedge.PlatformEtsy,
		JobType:    selvedge.SyncJobTypeIncremental,
		WorkflowID: "sync-etsy-1",
	})
	require.NoError(t, err)
	var job selvedge.SyncJob
	require.NoError(t, val.Get(&job))
	assert.Equal(t, selvedge.SyncJobStatusRunning, job.Status)

	finish := FinishSyncJobArgs{
		JobID:  job.ID,
		Status: selvedge.SyncJobStatusCompleted,
		Stats:  selvedge.SyncStats{Fetched: 5, Added: 5},
	}
	_, err = env.ExecuteActivity(a.FinishSyncJob, finish)
	require.NoError(t, err)

	// A retried finish is absorbed
	_, err = env.ExecuteActivity(a.FinishSyncJob, finish)
	require.NoError(t, err)

	got, err := repo.SyncJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, selvedge.SyncJobStatusCompleted, got.Status)
	assert.Equal(t, 5, got.ListingsAdded)
}

func TestDeleteOldSyncJobs(t *testing.T) {
	a, repo := newActivities(t, stubSource{})
	ctx := context.Background()

	_, err := repo.InsertSyncJob(ctx, selvedge.SyncJob{Platform: selvedge.PlatformEbay})
	require.NoError(t, err)

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(&a)

	// Nothing is older than a day yet
	val, err := env.ExecuteActivity(a.DeleteOldSyncJobs, CleanupRequest{OlderThan: 24 * time.Hour})
	require.NoError(t, err)
	var n int64
	require.NoError(t, val.Get(&n))
	assert.Zero(t, n)

	// A negative retention puts the cutoff in the future
	val, err = env.ExecuteActivity(a.DeleteOldSyncJobs, CleanupRequest{OlderThan: -time.Hour})
	require.NoError(t, err)
	require.NoError(t, val.Get(&n))
	assert.Equal(t, int64(1), n)
}

func TestAnalyzeListing(t *testing.T) {
	a, repo := newActivities(t, stubSource{})
	ctx := context.Background()

	_, err := repo.UpsertListing(ctx, selvedge.Listing{Platform: selvedge.PlatformEtsy, ExternalID: "9", Title: "Big E"})
	require.NoError(t, err)
	l, err := repo.ListingByExternalID(ctx, selvedge.PlatformEtsy, "9")
	require.NoError(t, err)

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(&a)

	val, err := env.ExecuteActivity(a.AnalyzeListing, l.ID)
	require.NoError(t, err)
	var res enrich.Result
	require.NoError(t, val.Get(&res))
	assert.Equal(t, enrich.StatusDisabled, res.Status)

	_, err = env.ExecuteActivity(a.AnalyzeListing, "nope-lst")
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errTypeNotFound, appErr.Type())
}
