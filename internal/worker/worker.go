package worker

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/jdholdren/selvedge/internal/enrich"
	"github.com/jdholdren/selvedge/internal/selvedge"
	"github.com/jdholdren/selvedge/internal/source"
	"github.com/jdholdren/selvedge/internal/trend"
)

const TaskQueue = "selvedge"

// Config drives the schedules and the retry behavior of syncs.
type Config struct {
	SyncInterval    time.Duration // How often each platform syncs
	SyncAttempts    int           // Attempts per sync, the first one included
	SyncRetryDelay  time.Duration
	JobRetention    time.Duration // Sync job history older than this is deleted
	DefaultKeywords string
	DefaultLimit    int
}

func (c Config) withDefaults() Config {
	if c.SyncInterval <= 0 {
		c.SyncInterval = 6 * time.Hour
	}
	if c.SyncAttempts <= 0 {
		c.SyncAttempts = defaultSyncAttempts
	}
	if c.SyncRetryDelay <= 0 {
		c.SyncRetryDelay = defaultSyncRetryDelay
	}
	if c.JobRetention <= 0 {
		c.JobRetention = 30 * 24 * time.Hour
	}
	if c.DefaultKeywords == "" {
		c.DefaultKeywords = DefaultKeywords
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = DefaultLimit
	}
	return c
}

// NewWorker sets up the worker with registration of workflows, activities, and schedules.
func NewWorker(
	ctx context.Context,
	cli client.Client,
	cfg Config,
	repo selvedge.Repository,
	sources source.Registry,
	enricher enrich.Enricher,
) (worker.Worker, error) {
	a := activities{
		repo:     repo,
		sources:  sources,
		trends:   trend.New(repo),
		enricher: enricher,
	}

	w := worker.New(cli, TaskQueue, worker.Options{})

	if err := registerEverything(ctx, w, a, cli, cfg.withDefaults(), sources.Platforms()); err != nil {
		return nil, fmt.Errorf("error registering workflows and activities: %T, %v", err, err)
	}

	return w, nil
}

func registerEverything(ctx context.Context, w worker.Worker, a activities, cli client.Client, cfg Config, platforms []selvedge.Platform) error {
	// Workflows
	wfs := workflows{}
	w.RegisterWorkflow(wfs.SyncPlatform)
	w.RegisterWorkflow(wfs.SyncAll)
	w.RegisterWorkflow(wfs.GenerateTrends)
	w.RegisterWorkflow(wfs.CleanupSyncJobs)
	w.RegisterWorkflow(wfs.EnrichListing)

	// Activities
	w.RegisterActivity(&a)

	for _, opts := range schedules(cfg, platforms) {
		if err := ensureSchedule(ctx, cli, opts); err != nil {
			return fmt.Errorf("error ensuring schedule %s: %w", opts.ID, err)
		}
	}

	return nil
}

// schedules is the periodic table: one staggered sync per platform, the daily
// trend rollup and the job history cleanup.
func schedules(cfg Config, platforms []selvedge.Platform) []client.ScheduleOptions {
	wfs := workflows{}

	var out []client.ScheduleOptions
	for i, p := range platforms {
		id := "sync-" + string(p)
		out = append(out, client.ScheduleOptions{
			ID: id,
			Spec: client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{
					Every:  cfg.SyncInterval,
					Offset: cfg.SyncInterval * time.Duration(i) / time.Duration(len(platforms)),
				}},
			},
			Action: &client.ScheduleWorkflowAction{
				ID:       id,
				Workflow: wfs.SyncPlatform,
				Args: []any{SyncRequest{
					Platform:   p,
					Query:      source.Query{Keywords: cfg.DefaultKeywords, Limit: cfg.DefaultLimit},
					Attempts:   cfg.SyncAttempts,
					RetryDelay: cfg.SyncRetryDelay,
				}},
				TaskQueue: TaskQueue,
			},
		})
	}

	out = append(out,
		client.ScheduleOptions{
			ID:   "daily-trends",
			Spec: client.ScheduleSpec{CronExpressions: []string{"0 1 * * *"}},
			Action: &client.ScheduleWorkflowAction{
				ID:        "daily-trends",
				Workflow:  wfs.GenerateTrends,
				Args:      []any{TrendWindow{}},
				TaskQueue: TaskQueue,
			},
		},
		client.ScheduleOptions{
			ID:   "cleanup-sync-jobs",
			Spec: client.ScheduleSpec{CronExpressions: []string{"0 3 * * *"}},
			Action: &client.ScheduleWorkflowAction{
				ID:        "cleanup-sync-jobs",
				Workflow:  wfs.CleanupSyncJobs,
				Args:      []any{CleanupRequest{OlderThan: cfg.JobRetention}},
				TaskQueue: TaskQueue,
			},
		},
	)

	return out
}

// Creates the schedule, or brings an existing one in line with opts.
func ensureSchedule(ctx context.Context, cli client.Client, opts client.ScheduleOptions) error {
	handle := cli.ScheduleClient().GetHandle(ctx, opts.ID)
	if _, err := handle.Describe(ctx); err != nil {
		_, err = cli.ScheduleClient().Create(ctx, opts)
		return err
	}

	return handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			s := input.Description.Schedule
			spec := opts.Spec
			s.Spec = &spec
			s.Action = opts.Action
			return &client.ScheduleUpdate{Schedule: &s}, nil
		},
	})
}

// Error types
//
// These are error types in the temporal sense, not the general "go" error types sense.
// They are used since between activities error types are marshaled and type information is lost.
const (
	errTypeInternal      = "internal"
	errTypeRateLimit     = "rateLimit"
	errTypeAdapter       = "adapter"
	errTypeNotConfigured = "notConfigured"
	errTypeNotFound      = "notFound"
	errTypeJobFailure    = "jobFailure"
)
