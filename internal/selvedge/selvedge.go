// Package selvedge holds the domain types shared by ingestion, trend aggregation,
// enrichment and the api.
package selvedge

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConflict = errors.New("resource already exists")
	ErrNotFound = errors.New("resource not found")
)

// Platform is the marketplace a listing or job belongs to.
type Platform string

const (
	PlatformEbay   Platform = "ebay"
	PlatformEtsy   Platform = "etsy"
	PlatformReddit Platform = "reddit"
	PlatformManual Platform = "manual"

	// PlatformAll scopes cross-platform trend records and fan-out jobs.
	PlatformAll Platform = "all"
)

// SyncablePlatforms are the platforms backed by a source adapter, in fan-out order.
var SyncablePlatforms = []Platform{PlatformEbay, PlatformEtsy, PlatformReddit}

// ParsePlatform validates a platform name coming from the outside world.
func ParsePlatform(s string) (Platform, bool) {
	switch p := Platform(s); p {
	case PlatformEbay, PlatformEtsy, PlatformReddit, PlatformManual, PlatformAll:
		return p, true
	}
	return "", false
}

type Repository interface {
	ListingRepo
	SyncJobRepo
	TrendRepo
}

type ListingRepo interface {
	UpsertListing(ctx context.Context, l Listing) (UpsertResult, error)
	Listing(ctx context.Context, id string) (Listing, error)
	ListingByExternalID(ctx context.Context, platform Platform, externalID string) (Listing, error)
	Listings(ctx context.Context, f ListingFilter) ([]Listing, int, error)
	SearchListings(ctx context.Context, keywords string, limit int) ([]Listing, error)
	ListingsCreatedBetween(ctx context.Context, start, end time.Time) ([]Listing, error)
	PatchEnrichment(ctx context.Context, id string, p EnrichmentPatch) error
	CountListingsByPlatform(ctx context.Context) (map[Platform]int, error)
}

type SyncJobRepo interface {
	InsertSyncJob(ctx context.Context, job SyncJob) (SyncJob, error)
	SyncJob(ctx context.Context, id string) (SyncJob, error)
	FinishSyncJob(ctx context.Context, id string, args FinishSyncJobArgs) (SyncJob, error)
	SyncJobs(ctx context.Context, f SyncJobFilter) ([]SyncJob, error)
	DeleteSyncJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type TrendRepo interface {
	UpsertTrend(ctx context.Context, rec TrendRecord) (TrendRecord, error)
	Trends(ctx context.Context, f TrendFilter) ([]TrendRecord, error)
}

// UpsertResult tells whether an upsert created a new row or updated an existing one.
type UpsertResult string

const (
	UpsertCreated UpsertResult = "created"
	UpsertUpdated UpsertResult = "updated"
)

// SyncStats are the counters one sync run produces.
type SyncStats struct {
	Fetched int `json:"fetched"`
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Add merges other into s.
func (s *SyncStats) Add(other SyncStats) {
	s.Fetched += other.Fetched
	s.Added += other.Added
	s.Updated += other.Updated
	s.Failed += other.Failed
}
