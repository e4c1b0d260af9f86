package selvedge

import "time"

type SyncJobStatus string

const (
	SyncJobStatusRunning   SyncJobStatus = "running"
	SyncJobStatusCompleted SyncJobStatus = "completed"
	SyncJobStatusFailed    SyncJobStatus = "failed"
)

type SyncJobType string

const (
	SyncJobTypeIncremental SyncJobType = "incremental_sync"
	SyncJobTypeFull        SyncJobType = "full_sync"
)

// SyncJob records one orchestrator invocation.
//
// It is inserted as running and moves to completed or failed exactly once.
type SyncJob struct {
	ID              string        `db:"id" json:"id"`
	Platform        Platform      `db:"platform" json:"platform"`
	JobType         SyncJobType   `db:"job_type" json:"job_type"`
	Status          SyncJobStatus `db:"status" json:"status"`
	WorkflowID      string        `db:"workflow_id" json:"workflow_id"`
	StartedAt       time.Time     `db:"started_at" json:"started_at"`
	CompletedAt     *time.Time    `db:"completed_at" json:"completed_at"`
	DurationSeconds *int          `db:"duration_seconds" json:"duration_seconds"`
	ListingsFetched int           `db:"listings_fetched" json:"listings_fetched"`
	ListingsAdded   int           `db:"listings_added" json:"listings_added"`
	ListingsUpdated int           `db:"listings_updated" json:"listings_updated"`
	ListingsFailed  int           `db:"listings_failed" json:"listings_failed"`
	ErrorMessage    *string       `db:"error_message" json:"error_message"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
}

// FinishSyncJobArgs moves a running job to a terminal state.
type FinishSyncJobArgs struct {
	Status       SyncJobStatus
	Stats        SyncStats
	ErrorMessage string
}

type SyncJobFilter struct {
	Platform Platform
	Status   SyncJobStatus
	Limit    int
}
