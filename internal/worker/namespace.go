package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Workflow histories are kept long enough to answer status polls for a few days.
const namespaceRetention = 72 * time.Hour

// EnsureNamespace registers the namespace the worker runs in, tolerating one that already exists.
func EnsureNamespace(ctx context.Context, cli workflowservice.WorkflowServiceClient, name string) error {
	if name == "" {
		name = "default"
	}

	_, err := cli.RegisterNamespace(ctx, &workflowservice.RegisterNamespaceRequest{
		Namespace:                        name,
		Description:                      "selvedge listing syncs, trend rollups and enrichment",
		WorkflowExecutionRetentionPeriod: durationpb.New(namespaceRetention),
	})
	var alreadyErr *serviceerror.NamespaceAlreadyExists
	if errors.As(err, &alreadyErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error registering namespace %s: %s", name, err)
	}

	return nil
}
