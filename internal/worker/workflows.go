package worker

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/jdholdren/selvedge/internal/enrich"
	"github.com/jdholdren/selvedge/internal/selvedge"
	"github.com/jdholdren/selvedge/internal/source"
	"github.com/jdholdren/selvedge/internal/trend"
)

const (
	DefaultKeywords = "vintage jeans"
	DefaultLimit    = 100

	defaultSyncAttempts   = 4
	defaultSyncRetryDelay = 60 * time.Second

	// Each platform of a fan-out gets this long before it counts as failed.
	fanOutTimeout = 600 * time.Second
)

type workflows struct{}

// SyncRequest asks for one platform to be synced.
type SyncRequest struct {
	Platform   selvedge.Platform `json:"platform"`
	Query      source.Query      `json:"query"`
	Attempts   int               `json:"attempts"`
	RetryDelay time.Duration     `json:"retry_delay"`
}

func (r SyncRequest) withDefaults() SyncRequest {
	if r.Query.Keywords == "" {
		r.Query.Keywords = DefaultKeywords
	}
	if r.Query.Limit <= 0 {
		r.Query.Limit = DefaultLimit
	}
	if r.Attempts <= 0 {
		r.Attempts = defaultSyncAttempts
	}
	if r.RetryDelay <= 0 {
		r.RetryDelay = defaultSyncRetryDelay
	}
	return r
}

// Bookkeeping activities only touch the database.
var bookkeepingOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 10 * time.Second,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumAttempts:    3,
	},
}

// SyncPlatform syncs one platform. Every attempt gets its own sync job, failed
// attempts are retried after a fixed delay until the attempts run out.
//
// A platform without an adapter is not retried, and a canceled sync stops right away
// after its running job is marked failed.
func (workflows) SyncPlatform(ctx workflow.Context, req SyncRequest) (selvedge.SyncStats, error) {
	req = req.withDefaults()
	ctx = workflow.WithActivityOptions(ctx, bookkeepingOptions)
	log := workflow.GetLogger(ctx)

	var (
		lastErr error
		tried   int
	)
	for tried < req.Attempts {
		tried++
		stats, err := syncAttempt(ctx, req)
		if err == nil {
			return stats, nil
		}
		if temporal.IsCanceledError(err) {
			return selvedge.SyncStats{}, err
		}
		lastErr = err
		log.Warn("sync attempt failed", "platform", req.Platform, "attempt", tried, "error", err)

		if hasErrType(err, errTypeNotConfigured) || tried == req.Attempts {
			break
		}
		if err := workflow.Sleep(ctx, req.RetryDelay); err != nil {
			return selvedge.SyncStats{}, err
		}
	}

	return selvedge.SyncStats{}, temporal.NewNonRetryableApplicationError(
		fmt.Sprintf("sync of %s failed after %d attempts: %s", req.Platform, tried, errMessage(lastErr)),
		errTypeJobFailure,
		lastErr,
	)
}

// syncAttempt runs one sync between a started and a finished job.
//
// The job activities run on a disconnected context: once a job is written as
// running it has to reach a terminal state, even when ctx is canceled mid sync.
func syncAttempt(ctx workflow.Context, req SyncRequest) (selvedge.SyncStats, error) {
	jobCtx, _ := workflow.NewDisconnectedContext(ctx)

	var job selvedge.SyncJob
	if err := workflow.ExecuteActivity(jobCtx, acts.StartSyncJob, StartSyncJobArgs{
		Platform:   req.Platform,
		JobType:    selvedge.SyncJobTypeIncremental,
		WorkflowID: workflow.GetInfo(ctx).WorkflowExecution.ID,
	}).Get(jobCtx, &job); err != nil {
		return selvedge.SyncStats{}, err
	}

	var (
		stats   selvedge.SyncStats
		syncErr error
	)
	if ctx.Err() != nil {
		syncErr = temporal.NewCanceledError()
	} else {
		syncCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: fanOutTimeout,
			RetryPolicy: &temporal.RetryPolicy{
				MaximumAttempts: 1,
			},
		})
		syncErr = workflow.ExecuteActivity(syncCtx, acts.RunSync, req).Get(syncCtx, &stats)
	}

	finish := FinishSyncJobArgs{
		JobID:  job.ID,
		Status: selvedge.SyncJobStatusCompleted,
		Stats:  stats,
	}
	switch {
	case temporal.IsCanceledError(syncErr):
		finish.Status = selvedge.SyncJobStatusFailed
		finish.ErrorMessage = "sync canceled before it finished"
	case syncErr != nil:
		finish.Status = selvedge.SyncJobStatusFailed
		finish.ErrorMessage = errMessage(syncErr)
	}
	if err := workflow.ExecuteActivity(jobCtx, acts.FinishSyncJob, finish).Get(jobCtx, nil); err != nil {
		return stats, err
	}

	return stats, syncErr
}

// SyncAllRequest fans a sync out to several platforms.
type SyncAllRequest struct {
	Platforms  []selvedge.Platform `json:"platforms"`
	Query      source.Query        `json:"query"`
	Attempts   int                 `json:"attempts"`
	RetryDelay time.Duration       `json:"retry_delay"`
}

type PlatformResult struct {
	Status selvedge.SyncJobStatus `json:"status"`
	Stats  selvedge.SyncStats     `json:"stats"`
	Error  string                 `json:"error,omitempty"`
}

// FanOutResult is what a sync of all platforms reports back.
type FanOutResult struct {
	Status    selvedge.SyncJobStatus               `json:"status"`
	Total     selvedge.SyncStats                   `json:"total"`
	Platforms map[selvedge.Platform]PlatformResult `json:"platforms"`
}

// SyncAll runs one child sync per configured platform and joins all of them.
//
// The parent job completes when at least one platform succeeded, and fails only
// when every platform did.
func (workflows) SyncAll(ctx workflow.Context, req SyncAllRequest) (FanOutResult, error) {
	ctx = workflow.WithActivityOptions(ctx, bookkeepingOptions)
	wfID := workflow.GetInfo(ctx).WorkflowExecution.ID

	platforms := req.Platforms
	if len(platforms) == 0 {
		if err := workflow.ExecuteActivity(ctx, acts.ConfiguredPlatforms).Get(ctx, &platforms); err != nil {
			return FanOutResult{}, err
		}
	}

	var job selvedge.SyncJob
	if err := workflow.ExecuteActivity(ctx, acts.StartSyncJob, StartSyncJobArgs{
		Platform:   selvedge.PlatformAll,
		JobType:    selvedge.SyncJobTypeFull,
		WorkflowID: wfID,
	}).Get(ctx, &job); err != nil {
		return FanOutResult{}, err
	}

	results := make([]PlatformResult, len(platforms))
	wg := workflow.NewWaitGroup(ctx)
	wg.Add(len(platforms))
	for i, p := range platforms {
		workflow.Go(ctx, func(ctx workflow.Context) {
			defer wg.Done()
			results[i] = syncChild(ctx, SyncRequest{
				Platform:   p,
				Query:      req.Query,
				Attempts:   req.Attempts,
				RetryDelay: req.RetryDelay,
			})
		})
	}
	wg.Wait(ctx)

	out := FanOutResult{
		Status:    selvedge.SyncJobStatusFailed,
		Platforms: make(map[selvedge.Platform]PlatformResult, len(platforms)),
	}
	var failed []string
	for i, p := range platforms {
		res := results[i]
		out.Platforms[p] = res
		out.Total.Add(res.Stats)
		if res.Status == selvedge.SyncJobStatusFailed {
			failed = append(failed, string(p))
			continue
		}
		out.Status = selvedge.SyncJobStatusCompleted
	}

	finish := FinishSyncJobArgs{
		JobID:  job.ID,
		Status: out.Status,
		Stats:  out.Total,
	}
	if len(failed) > 0 {
		finish.ErrorMessage = "failed platforms: " + strings.Join(failed, ", ")
	}
	if err := workflow.ExecuteActivity(ctx, acts.FinishSyncJob, finish).Get(ctx, nil); err != nil {
		return out, err
	}

	if out.Status == selvedge.SyncJobStatusFailed {
		return out, temporal.NewNonRetryableApplicationError(finish.ErrorMessage, errTypeJobFailure, nil, out)
	}
	return out, nil
}

// syncChild runs the sync of one platform as a child workflow and cancels it once
// fanOutTimeout has passed. The child is waited on after the cancel so it can mark
// its running job as failed.
func syncChild(ctx workflow.Context, req SyncRequest) PlatformResult {
	log := workflow.GetLogger(ctx)

	childCtx, cancelChild := workflow.WithCancel(ctx)
	childCtx = workflow.WithChildOptions(childCtx, workflow.ChildWorkflowOptions{
		WorkflowID:          fmt.Sprintf("%s-%s", workflow.GetInfo(ctx).WorkflowExecution.ID, req.Platform),
		WaitForCancellation: true,
	})
	child := workflow.ExecuteChildWorkflow(childCtx, workflows{}.SyncPlatform, req)

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	timedOut := false
	workflow.NewSelector(ctx).
		AddFuture(child, func(workflow.Future) { cancelTimer() }).
		AddFuture(workflow.NewTimer(timerCtx, fanOutTimeout), func(f workflow.Future) {
			if f.Get(ctx, nil) == nil {
				timedOut = true
				cancelChild()
			}
		}).
		Select(ctx)

	var stats selvedge.SyncStats
	err := child.Get(ctx, &stats)
	switch {
	case err == nil:
		return PlatformResult{Status: selvedge.SyncJobStatusCompleted, Stats: stats}
	case timedOut:
		log.Error("platform sync timed out", "platform", req.Platform, "timeout", fanOutTimeout)
		return PlatformResult{
			Status: selvedge.SyncJobStatusFailed,
			Error:  fmt.Sprintf("sync of %s timed out after %s", req.Platform, fanOutTimeout),
		}
	default:
		log.Error("platform sync failed", "platform", req.Platform, "error", err)
		return PlatformResult{Status: selvedge.SyncJobStatusFailed, Error: errMessage(err)}
	}
}

// TrendWindow bounds an aggregation. The zero value means the previous UTC day.
type TrendWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (workflows) GenerateTrends(ctx workflow.Context, window TrendWindow) (trend.Result, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})

	if window.Start.IsZero() || window.End.IsZero() {
		window.Start, window.End = trend.DailyWindow(workflow.Now(ctx))
	}

	var res trend.Result
	if err := workflow.ExecuteActivity(ctx, acts.AggregateTrends, window).Get(ctx, &res); err != nil {
		return trend.Result{}, err
	}

	return res, nil
}

type CleanupRequest struct {
	OlderThan time.Duration `json:"older_than"`
}

func (workflows) CleanupSyncJobs(ctx workflow.Context, req CleanupRequest) (int64, error) {
	ctx = workflow.WithActivityOptions(ctx, bookkeepingOptions)

	var deleted int64
	if err := workflow.ExecuteActivity(ctx, acts.DeleteOldSyncJobs, req).Get(ctx, &deleted); err != nil {
		return 0, err
	}

	return deleted, nil
}

// EnrichListing analyzes a listing with the model, backing off on rate limits.
func (workflows) EnrichListing(ctx workflow.Context, listingID string) (enrich.Result, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        10 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{errTypeNotFound},
		},
	})

	var res enrich.Result
	if err := workflow.ExecuteActivity(ctx, acts.AnalyzeListing, listingID).Get(ctx, &res); err != nil {
		return enrich.Result{}, err
	}

	return res, nil
}
