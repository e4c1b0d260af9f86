package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	selerrs "github.com/jdholdren/selvedge/internal/errors"
	"github.com/jdholdren/selvedge/internal/selvedge"
	"github.com/jdholdren/selvedge/internal/source"
)

// Task states as reported to callers of the api.
const (
	TaskPending = "PENDING"
	TaskRunning = "RUNNING"
	TaskSuccess = "SUCCESS"
	TaskFailure = "FAILURE"
)

// TaskHandle identifies a started workflow.
type TaskHandle struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskStatus is a point in time view of a workflow.
type TaskStatus struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Terminal reports whether the status can no longer change.
func (s TaskStatus) Terminal() bool {
	return s.Status == TaskSuccess || s.Status == TaskFailure
}

// Dispatcher starts workflows on behalf of the api and reports on them.
type Dispatcher struct {
	cli        client.Client
	attempts   int
	retryDelay time.Duration
}

func NewDispatcher(cli client.Client, cfg Config) Dispatcher {
	cfg = cfg.withDefaults()
	return Dispatcher{
		cli:        cli,
		attempts:   cfg.SyncAttempts,
		retryDelay: cfg.SyncRetryDelay,
	}
}

// TriggerSync starts a sync of one platform, or a fan-out over all of them for [selvedge.PlatformAll].
func (d Dispatcher) TriggerSync(ctx context.Context, platform selvedge.Platform, q source.Query) (TaskHandle, error) {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("sync-%s-%s", platform, uuid.NewString()),
		TaskQueue: TaskQueue,
	}

	var (
		run client.WorkflowRun
		err error
	)
	switch platform {
	case selvedge.PlatformAll:
		// Platforms are left to the worker, which knows which ones have credentials.
		run, err = d.cli.ExecuteWorkflow(ctx, opts, workflows{}.SyncAll, SyncAllRequest{
			Query:      q,
			Attempts:   d.attempts,
			RetryDelay: d.retryDelay,
		})
	case selvedge.PlatformEbay, selvedge.PlatformEtsy, selvedge.PlatformReddit:
		run, err = d.cli.ExecuteWorkflow(ctx, opts, workflows{}.SyncPlatform, SyncRequest{
			Platform:   platform,
			Query:      q,
			Attempts:   d.attempts,
			RetryDelay: d.retryDelay,
		})
	default:
		return TaskHandle{}, selerrs.E(
			fmt.Sprintf("cannot sync platform %q", platform),
			selerrs.CodeInvalidPlatform,
			http.StatusBadRequest,
		)
	}
	if err != nil {
		return TaskHandle{}, fmt.Errorf("unable to execute workflow: %s", err)
	}

	return TaskHandle{TaskID: run.GetID(), Status: TaskPending}, nil
}

// TriggerEnrichment starts the analysis of one listing.
func (d Dispatcher) TriggerEnrichment(ctx context.Context, listingID string) (TaskHandle, error) {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("enrich-%s-%s", listingID, uuid.NewString()),
		TaskQueue: TaskQueue,
	}
	run, err := d.cli.ExecuteWorkflow(ctx, opts, workflows{}.EnrichListing, listingID)
	if err != nil {
		return TaskHandle{}, fmt.Errorf("unable to execute workflow: %s", err)
	}

	return TaskHandle{TaskID: run.GetID(), Status: TaskPending}, nil
}

// TaskStatus maps the execution state of a workflow onto a task state.
//
// Returns [selvedge.ErrNotFound] for ids temporal does not know.
func (d Dispatcher) TaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	desc, err := d.cli.DescribeWorkflowExecution(ctx, taskID, "")
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return TaskStatus{}, selvedge.ErrNotFound
	}
	if err != nil {
		return TaskStatus{}, fmt.Errorf("error describing workflow: %s", err)
	}

	status := TaskStatus{TaskID: taskID}
	switch desc.GetWorkflowExecutionInfo().GetStatus() {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		status.Status = TaskRunning
		return status, nil
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		status.Status = TaskSuccess
	case enumspb.WORKFLOW_EXECUTION_STATUS_UNSPECIFIED:
		status.Status = TaskPending
		return status, nil
	default:
		// Failed, canceled, terminated, timed out and continued as new
		status.Status = TaskFailure
	}

	var result any
	err = d.cli.GetWorkflow(ctx, taskID, "").Get(ctx, &result)
	if err != nil {
		status.Status = TaskFailure
		status.Error = errMessage(err)

		selErr := &selerrs.Error{}
		if asSelerr(err, &selErr) {
			status.Error = selErr.Err.Error()
		}
		return status, nil
	}
	status.Result = result

	return status, nil
}
