// The api serves the listing index and hands syncs and enrichments to the worker.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/fx"

	"github.com/jdholdren/selvedge/internal/api"
	"github.com/jdholdren/selvedge/internal/config"
	"github.com/jdholdren/selvedge/internal/database"
	"github.com/jdholdren/selvedge/internal/migrations"
	"github.com/jdholdren/selvedge/internal/selvedge"
	selsqlite "github.com/jdholdren/selvedge/internal/sqlite"
	"github.com/jdholdren/selvedge/internal/worker"
)

type cfg struct {
	config.Database
	config.Temporal
	config.Log
	config.Sync

	Port       int    `env:"PORT, default=8000"`
	CorsOrigin string `env:"CORS_ORIGIN, default=http://localhost:3000"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Parse the config
	var c cfg
	if err := config.Load(ctx, &c); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}
	c.Log.SetDefault()

	// Connect to the sqlite db
	dbx, err := database.Open(c.Path)
	if err != nil {
		log.Fatalf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Run all migrations
	if err := migrations.Run(dbx); err != nil {
		log.Fatalf("error running migrations: %s", err)
	}

	repo := selsqlite.New(dbx)

	// Retry until temporal is ready
	temporalCli, err := c.Temporal.Dial(ctx)
	if err != nil {
		log.Fatalln(err)
	}
	defer temporalCli.Close()

	slog.Info("starting api", "port", c.Port)

	// Start the application
	fx.New(
		fx.Supply(
			api.ServerConfig{
				Port:       c.Port,
				CorsOrigin: c.CorsOrigin,
			},
			fx.Annotate(repo, fx.As(new(selvedge.Repository))),
			fx.Annotate(worker.NewDispatcher(temporalCli, c.Sync.Worker()), fx.As(new(api.Dispatcher))),
		),
		api.Module,
	).Run()
}
