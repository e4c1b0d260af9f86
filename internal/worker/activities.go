package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/jdholdren/selvedge/internal/enrich"
	selerrs "github.com/jdholdren/selvedge/internal/errors"
	"github.com/jdholdren/selvedge/internal/ingest"
	"github.com/jdholdren/selvedge/internal/logger"
	"github.com/jdholdren/selvedge/internal/selvedge"
	"github.com/jdholdren/selvedge/internal/source"
	"github.com/jdholdren/selvedge/internal/trend"
)

type activities struct {
	repo     selvedge.Repository
	sources  source.Registry
	trends   trend.Aggregator
	enricher enrich.Enricher
}

// Instance to make the workflow a bit more readable
var acts = activities{}

type StartSyncJobArgs struct {
	Platform   selvedge.Platform    `json:"platform"`
	JobType    selvedge.SyncJobType `json:"job_type"`
	WorkflowID string               `json:"workflow_id"`
}

// Records a running sync job.
func (a activities) StartSyncJob(ctx context.Context, args StartSyncJobArgs) (selvedge.SyncJob, error) {
	job, err := a.repo.InsertSyncJob(ctx, selvedge.SyncJob{
		Platform:   args.Platform,
		JobType:    args.JobType,
		WorkflowID: args.WorkflowID,
	})
	if err != nil {
		return selvedge.SyncJob{}, temporal.NewApplicationErrorWithCause("error starting sync job", errTypeInternal, err)
	}

	return job, nil
}

// RunSync fetches from one platform and upserts everything it normalized.
//
// A failing adapter is not retried here, the sync workflow owns the retry loop.
func (a activities) RunSync(ctx context.Context, req SyncRequest) (selvedge.SyncStats, error) {
	ctx = logger.Ctx(ctx, slog.String("query", req.Query.Keywords))

	src, ok := a.sources.Get(req.Platform)
	if !ok {
		return selvedge.SyncStats{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("no adapter configured for %s", req.Platform),
			errTypeNotConfigured,
			nil,
			selerrs.E(fmt.Sprintf("%s is not configured", req.Platform), selerrs.CodeAdapter, http.StatusBadRequest),
		)
	}

	stats, err := ingest.Run(ctx, src, a.repo, req.Query)
	if source.IsAdapterError(err) {
		return stats, temporal.NewNonRetryableApplicationError(err.Error(), errTypeAdapter, err,
			selerrs.E(err, selerrs.CodeAdapter, http.StatusBadGateway))
	}
	if err != nil {
		return stats, temporal.NewApplicationErrorWithCause(err.Error(), errTypeInternal, err)
	}

	return stats, nil
}

// Lists the platforms this worker has credentials for.
func (a activities) ConfiguredPlatforms(context.Context) ([]selvedge.Platform, error) {
	return a.sources.Platforms(), nil
}

type FinishSyncJobArgs struct {
	JobID        string                 `json:"job_id"`
	Status       selvedge.SyncJobStatus `json:"status"`
	Stats        selvedge.SyncStats     `json:"stats"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// Moves the job to its terminal state. Finishing twice is a no-op so the activity can be retried.
func (a activities) FinishSyncJob(ctx context.Context, args FinishSyncJobArgs) error {
	_, err := a.repo.FinishSyncJob(ctx, args.JobID, selvedge.FinishSyncJobArgs{
		Status:       args.Status,
		Stats:        args.Stats,
		ErrorMessage: args.ErrorMessage,
	})
	if errors.Is(err, selvedge.ErrConflict) {
		activity.GetLogger(ctx).Warn("sync job already finished", "job_id", args.JobID)
		return nil
	}
	if err != nil {
		return temporal.NewApplicationErrorWithCause("error finishing sync job", errTypeInternal, err)
	}

	return nil
}

// Rolls up listings of the window into trend records.
func (a activities) AggregateTrends(ctx context.Context, window TrendWindow) (trend.Result, error) {
	res, err := a.trends.Aggregate(ctx, window.Start, window.End)
	if err != nil {
		return trend.Result{}, temporal.NewApplicationErrorWithCause("error aggregating trends", errTypeInternal, err)
	}

	return res, nil
}

// Deletes sync job history older than the retention.
func (a activities) DeleteOldSyncJobs(ctx context.Context, req CleanupRequest) (int64, error) {
	cutoff := time.Now().Add(-req.OlderThan)
	n, err := a.repo.DeleteSyncJobsBefore(ctx, cutoff)
	if err != nil {
		return 0, temporal.NewApplicationErrorWithCause("error deleting sync jobs", errTypeInternal, err)
	}

	activity.GetLogger(ctx).Info("deleted old sync jobs", "count", n, "cutoff", cutoff)
	return n, nil
}

// Asks the model about one listing.
func (a activities) AnalyzeListing(ctx context.Context, listingID string) (enrich.Result, error) {
	ctx = logger.Ctx(ctx, slog.String("listing_id", listingID))

	res, err := a.enricher.Enrich(ctx, listingID)
	switch {
	case errors.Is(err, selvedge.ErrNotFound):
		return res, a.notFoundErr()
	case errors.Is(err, enrich.ErrRateLimited):
		return res, a.rateLimitErr(err)
	case err != nil:
		return res, temporal.NewApplicationErrorWithCause(err.Error(), errTypeInternal, err)
	}

	return res, nil
}

func (activities) notFoundErr() error {
	return temporal.NewNonRetryableApplicationError("listing not found", errTypeNotFound, selvedge.ErrNotFound,
		selerrs.E("listing not found", selerrs.CodeNotFound, http.StatusNotFound))
}

// Rate limits stay retryable so the activity retry policy backs off.
func (activities) rateLimitErr(err error) error {
	return temporal.NewApplicationErrorWithCause("rate limited by claude", errTypeRateLimit, err)
}
