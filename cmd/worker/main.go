// The worker runs syncs, trend rollups and enrichment on temporal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"syscall"

	"github.com/oklog/run"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/selvedge/internal/config"
	"github.com/jdholdren/selvedge/internal/database"
	"github.com/jdholdren/selvedge/internal/migrations"
	selsqlite "github.com/jdholdren/selvedge/internal/sqlite"
	"github.com/jdholdren/selvedge/internal/worker"
)

type cfg struct {
	config.Database
	config.Temporal
	config.Log
	config.Sync
	config.Vendors
	config.Enrichment
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Parse the config
	var c cfg
	if err := config.Load(ctx, &c); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}
	c.Log.SetDefault()

	if err := start(ctx, c); err != nil {
		slog.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func start(ctx context.Context, c cfg) error {
	dbx, err := database.Open(c.Path)
	if err != nil {
		return err
	}
	defer dbx.Close()
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error running migrations: %s", err)
	}
	repo := selsqlite.New(dbx)

	sources, err := c.Vendors.Registry()
	if err != nil {
		return fmt.Errorf("error building adapters: %s", err)
	}

	temporalCli, err := c.Temporal.Dial(ctx)
	if err != nil {
		return err
	}
	defer temporalCli.Close()

	if err := worker.EnsureNamespace(ctx, temporalCli.WorkflowService(), c.Namespace); err != nil {
		return err
	}

	w, err := worker.NewWorker(ctx, temporalCli, c.Sync.Worker(), repo, sources, c.Enrichment.Enricher(repo))
	if err != nil {
		return err
	}

	slog.Info("starting worker",
		"task_queue", worker.TaskQueue,
		"platforms", sources.Platforms(),
		"enrichment", c.EnrichmentEnabled && c.AnthropicAPIKey != "",
	)

	var g run.Group
	{
		workerCtx, stop := context.WithCancel(ctx)
		g.Add(func() error {
			if err := w.Start(); err != nil {
				return fmt.Errorf("error starting worker: %s", err)
			}
			<-workerCtx.Done()
			return nil
		}, func(error) {
			stop()
			w.Stop()
		})
	}
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	var sigErr run.SignalError
	if err := g.Run(); err != nil && !errors.As(err, &sigErr) {
		return err
	}

	return nil
}
