package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/selvedge/internal/database"
	"github.com/jdholdren/selvedge/internal/migrations"
	"github.com/jdholdren/selvedge/internal/selvedge"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()

	dbx, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })
	require.NoError(t, migrations.Run(dbx))

	return New(dbx)
}

// Pins the repo clock; returns a func to move it.
func fixedClock(r *Repo, at time.Time) func(time.Time) {
	now := at
	r.now = func() time.Time { return now }
	return func(t time.Time) { now = t }
}

func ptr[T any](v T) *T { return &v }

func TestUpsertListing_SecondIngestionUpdates(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	first := selvedge.Listing{
		Platform:   selvedge.PlatformEbay,
		ExternalID: "v1|123|0",
		Title:      "Levi's 501 31x32",
		Price:      ptr(45.0),
		ImageURLs:  selvedge.StringList{"https://img/1.jpg"},
		RawData:    selvedge.RawJSON(`{"itemId":"v1|123|0"}`),
	}
	res, err := repo.UpsertListing(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, selvedge.UpsertCreated, res)

	second := first
	second.Title = "Levi's 501 31x32 - price drop"
	second.Price = ptr(39.5)
	res, err = repo.UpsertListing(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, selvedge.UpsertUpdated, res)

	all, total, err := repo.Listings(ctx, selvedge.ListingFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, all, 1)

	got := all[0]
	assert.Equal(t, "Levi's 501 31x32 - price drop", got.Title)
	assert.Equal(t, 39.5, *got.Price)
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, selvedge.ListingStatusActive, got.Status)
	assert.Equal(t, selvedge.StringList{"https://img/1.jpg"}, got.ImageURLs)
	assert.JSONEq(t, `{"itemId":"v1|123|0"}`, string(got.RawData))
	assert.NotNil(t, got.LastSyncedAt)
}

func TestUpsertListing_SecondIngestionClearsMissingFields(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
		l    = selvedge.Listing{
			Platform:   selvedge.PlatformEbay,
			ExternalID: "1",
			Title:      "Wrangler 13MWZ",
			Brand:      ptr("Wrangler"),
			Condition:  ptr("Pre-owned"),
		}
	)

	_, err := repo.UpsertListing(ctx, l)
	require.NoError(t, err)
	stored, err := repo.ListingByExternalID(ctx, selvedge.PlatformEbay, "1")
	require.NoError(t, err)
	require.NoError(t, repo.PatchEnrichment(ctx, stored.ID, selvedge.EnrichmentPatch{Era: ptr("1980s")}))

	l.Brand = nil
	l.Condition = nil
	_, err = repo.UpsertListing(ctx, l)
	require.NoError(t, err)

	got, err := repo.Listing(ctx, stored.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Brand)
	assert.Nil(t, got.Condition)
	// Model-only fields are not part of an ingestion
	require.NotNil(t, got.Era)
	assert.Equal(t, "1980s", *got.Era)
}

func TestInsertListing_LostRaceUpdatesTheWinner(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
		now  = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		l    = selvedge.Listing{
			Platform:   selvedge.PlatformReddit,
			ExternalID: "t3_abc",
			Title:      "WTS LVC 1947 501",
			Currency:   "USD",
			Status:     selvedge.ListingStatusActive,
		}
	)

	_, err := repo.UpsertListing(ctx, l)
	require.NoError(t, err)
	winner, err := repo.ListingByExternalID(ctx, selvedge.PlatformReddit, "t3_abc")
	require.NoError(t, err)

	// The lookup missed, but the key was written in the meantime
	tx, err := repo.db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	l.Title = "WTS LVC 1947 501 - sold"
	l.UpdatedAt = now
	res, err := insertListingTx(ctx, tx, l, now)
	require.NoError(t, err)
	assert.Equal(t, selvedge.UpsertUpdated, res)
	require.NoError(t, tx.Commit())

	all, total, err := repo.Listings(ctx, selvedge.ListingFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, winner.ID, all[0].ID)
	assert.Equal(t, "WTS LVC 1947 501 - sold", all[0].Title)
}

func TestListings_FiltersAndPaginates(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	seed := []selvedge.Listing{
		{Platform: selvedge.PlatformEbay, ExternalID: "a", Title: "a", Brand: ptr("Levi's"), Price: ptr(20.0)},
		{Platform: selvedge.PlatformEbay, ExternalID: "b", Title: "b", Brand: ptr("Lee"), Price: ptr(80.0)},
		{Platform: selvedge.PlatformEtsy, ExternalID: "c", Title: "c", Brand: ptr("levi's"), Price: ptr(50.0)},
		{Platform: selvedge.PlatformReddit, ExternalID: "d", Title: "d"},
	}
	for _, l := range seed {
		_, err := repo.UpsertListing(ctx, l)
		require.NoError(t, err)
	}

	got, total, err := repo.Listings(ctx, selvedge.ListingFilter{Brand: "LEVI"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, got, 2)

	got, total, err = repo.Listings(ctx, selvedge.ListingFilter{
		MinPrice:  ptr(30.0),
		SortBy:    "price",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ExternalID)
	assert.Equal(t, "b", got[1].ExternalID)

	got, total, err = repo.Listings(ctx, selvedge.ListingFilter{Limit: 1, Offset: 1, SortBy: "price", SortOrder: "desc", Platform: selvedge.PlatformEbay})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ExternalID)

	counts, err := repo.CountListingsByPlatform(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[selvedge.Platform]int{
		selvedge.PlatformEbay:   2,
		selvedge.PlatformEtsy:   1,
		selvedge.PlatformReddit: 1,
	}, counts)
}

func TestSearchListings(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	for _, l := range []selvedge.Listing{
		{Platform: selvedge.PlatformEtsy, ExternalID: "1", Title: "Selvedge denim jacket"},
		{Platform: selvedge.PlatformEtsy, ExternalID: "2", Title: "Jeans", Description: ptr("raw SELVEDGE, unwashed")},
		{Platform: selvedge.PlatformEtsy, ExternalID: "3", Title: "Corduroy pants"},
	} {
		_, err := repo.UpsertListing(ctx, l)
		require.NoError(t, err)
	}

	got, err := repo.SearchListings(ctx, "selvedge", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestListingSearch_WildcardsAreLiteral(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	for _, l := range []selvedge.Listing{
		{Platform: selvedge.PlatformEtsy, ExternalID: "1", Title: "100% cotton selvedge", Brand: ptr("Big_E")},
		{Platform: selvedge.PlatformEtsy, ExternalID: "2", Title: "Cotton blend", Brand: ptr("BigXE")},
	} {
		_, err := repo.UpsertListing(ctx, l)
		require.NoError(t, err)
	}

	got, err := repo.SearchListings(ctx, "%", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ExternalID)

	got, err = repo.SearchListings(ctx, "0% c", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	listings, total, err := repo.Listings(ctx, selvedge.ListingFilter{Brand: "big_e"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, listings, 1)
	assert.Equal(t, "1", listings[0].ExternalID)

	_, total, err = repo.Listings(ctx, selvedge.ListingFilter{Brand: `\`})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestListingsCreatedBetween(t *testing.T) {
	var (
		ctx     = context.Background()
		repo    = newTestRepo(t)
		day     = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
		setTime = fixedClock(&repo, day.Add(-time.Hour))
	)

	_, err := repo.UpsertListing(ctx, selvedge.Listing{Platform: selvedge.PlatformEbay, ExternalID: "before"})
	require.NoError(t, err)
	setTime(day.Add(6 * time.Hour))
	_, err = repo.UpsertListing(ctx, selvedge.Listing{Platform: selvedge.PlatformEbay, ExternalID: "inside"})
	require.NoError(t, err)
	setTime(day.Add(24 * time.Hour))
	_, err = repo.UpsertListing(ctx, selvedge.Listing{Platform: selvedge.PlatformEbay, ExternalID: "edge"})
	require.NoError(t, err)

	got, err := repo.ListingsCreatedBetween(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "inside", got[0].ExternalID)
	assert.Equal(t, "edge", got[1].ExternalID)
}

func TestPatchEnrichment_Missing(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.PatchEnrichment(context.Background(), "nope", selvedge.EnrichmentPatch{Era: ptr("90s")})
	assert.ErrorIs(t, err, selvedge.ErrNotFound)
}

func TestSyncJob_TransitionsOnce(t *testing.T) {
	var (
		ctx     = context.Background()
		repo    = newTestRepo(t)
		start   = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		setTime = fixedClock(&repo, start)
	)

	job, err := repo.InsertSyncJob(ctx, selvedge.SyncJob{Platform: selvedge.PlatformEtsy, WorkflowID: "wf-1"})
	require.NoError(t, err)
	assert.Equal(t, selvedge.SyncJobStatusRunning, job.Status)
	assert.Equal(t, selvedge.SyncJobTypeIncremental, job.JobType)

	setTime(start.Add(42 * time.Second))
	done, err := repo.FinishSyncJob(ctx, job.ID, selvedge.FinishSyncJobArgs{
		Status: selvedge.SyncJobStatusCompleted,
		Stats:  selvedge.SyncStats{Fetched: 10, Added: 7, Updated: 2, Failed: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, selvedge.SyncJobStatusCompleted, done.Status)
	require.NotNil(t, done.DurationSeconds)
	assert.Equal(t, 42, *done.DurationSeconds)
	assert.Equal(t, 7, done.ListingsAdded)
	assert.Nil(t, done.ErrorMessage)

	_, err = repo.FinishSyncJob(ctx, job.ID, selvedge.FinishSyncJobArgs{
		Status:       selvedge.SyncJobStatusFailed,
		ErrorMessage: "late failure",
	})
	assert.ErrorIs(t, err, selvedge.ErrConflict)

	_, err = repo.FinishSyncJob(ctx, job.ID, selvedge.FinishSyncJobArgs{Status: selvedge.SyncJobStatusRunning})
	assert.Error(t, err)
}

func TestSyncJobs_FilterAndCleanup(t *testing.T) {
	var (
		ctx     = context.Background()
		repo    = newTestRepo(t)
		now     = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		setTime = fixedClock(&repo, now.Add(-40*24*time.Hour))
	)

	old, err := repo.InsertSyncJob(ctx, selvedge.SyncJob{Platform: selvedge.PlatformEbay})
	require.NoError(t, err)
	setTime(now)
	recent, err := repo.InsertSyncJob(ctx, selvedge.SyncJob{Platform: selvedge.PlatformReddit})
	require.NoError(t, err)
	_, err = repo.FinishSyncJob(ctx, recent.ID, selvedge.FinishSyncJobArgs{Status: selvedge.SyncJobStatusFailed, ErrorMessage: "boom"})
	require.NoError(t, err)

	failed, err := repo.SyncJobs(ctx, selvedge.SyncJobFilter{Status: selvedge.SyncJobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", *failed[0].ErrorMessage)

	n, err := repo.DeleteSyncJobsBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.SyncJob(ctx, old.ID)
	assert.ErrorIs(t, err, selvedge.ErrNotFound)
}

func TestUpsertTrend_IdempotentPerScope(t *testing.T) {
	var (
		ctx   = context.Background()
		repo  = newTestRepo(t)
		start = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
		end   = start.Add(24 * time.Hour)
	)

	rec := selvedge.TrendRecord{
		Category:      selvedge.CategoryOverall,
		Platform:      selvedge.PlatformAll,
		TotalListings: 3,
		AvgPrice:      40,
		PeriodStart:   start,
		PeriodEnd:     end,
	}
	first, err := repo.UpsertTrend(ctx, rec)
	require.NoError(t, err)

	rec.TotalListings = 5
	second, err := repo.UpsertTrend(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.TotalListings)

	_, err = repo.UpsertTrend(ctx, selvedge.TrendRecord{
		Category: "Levi's", Platform: selvedge.PlatformAll, PeriodStart: start, PeriodEnd: end,
	})
	require.NoError(t, err)
	_, err = repo.UpsertTrend(ctx, selvedge.TrendRecord{
		Category: "ebay", Platform: selvedge.PlatformEbay, PeriodStart: start, PeriodEnd: end,
	})
	require.NoError(t, err)

	all, err := repo.Trends(ctx, selvedge.TrendFilter{Since: start})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	brands, err := repo.Trends(ctx, selvedge.TrendFilter{BrandsOnly: true})
	require.NoError(t, err)
	require.Len(t, brands, 1)
	assert.Equal(t, "Levi's", brands[0].Category)
}
