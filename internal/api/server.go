// Package api serves the HTTP surface: sync triggers and their status, the
// listing index, trends and sync job history.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jdholdren/selvedge/internal/selvedge"
	"github.com/jdholdren/selvedge/internal/serverutil"
	"github.com/jdholdren/selvedge/internal/source"
	"github.com/jdholdren/selvedge/internal/worker"
)

// Dispatcher hands long running work to the worker.
type Dispatcher interface {
	TriggerSync(ctx context.Context, platform selvedge.Platform, q source.Query) (worker.TaskHandle, error)
	TriggerEnrichment(ctx context.Context, listingID string) (worker.TaskHandle, error)
	TaskStatus(ctx context.Context, taskID string) (worker.TaskStatus, error)
}

type (
	// Server answers queries over the listing index and starts syncs and
	// enrichments on the worker.
	Server struct {
		*http.Server

		repo  selvedge.Repository
		tasks Dispatcher

		// Finished tasks never change, so their status is kept around
		statusCache *lru.Cache[string, worker.TaskStatus]
		now         func() time.Time
	}

	ServerConfig struct {
		Port       int
		CorsOrigin string
	}
)

func NewServer(config ServerConfig, repo selvedge.Repository, tasks Dispatcher) *Server {
	var (
		r        = serverutil.NewErrRouter()
		cache, _ = lru.New[string, worker.TaskStatus](1024)
	)

	srvr := Server{
		repo:        repo,
		tasks:       tasks,
		statusCache: cache,
		now:         time.Now,
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{config.CorsOrigin}),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type", serverutil.RequestIDHeader}),
				handlers.ExposedHeaders([]string{serverutil.RequestIDHeader}),
			)(r),
		},
	}

	r.HandleFuncE("/healthz", srvr.getHealth).Methods(http.MethodGet)

	// Syncs
	r.HandleFuncE("/api/sync/trigger", srvr.postSyncTrigger).Methods(http.MethodPost)
	r.HandleFuncE("/api/sync/status/{taskID}", srvr.getSyncStatus).Methods(http.MethodGet)
	r.HandleFuncE("/api/sync-jobs", srvr.getSyncJobs).Methods(http.MethodGet)

	// Listings
	r.HandleFuncE("/api/listings", srvr.getListings).Methods(http.MethodGet)
	r.HandleFuncE("/api/listings/search/{keywords}", srvr.getListingSearch).Methods(http.MethodGet)
	r.HandleFuncE("/api/listings/{listingID}", srvr.getListing).Methods(http.MethodGet)
	r.HandleFuncE("/api/analyze/{listingID}", srvr.postAnalyze).Methods(http.MethodPost)

	// Trends
	r.HandleFuncE("/api/trends", srvr.getTrends).Methods(http.MethodGet)
	r.HandleFuncE("/api/trends/brands", srvr.getBrandTrends).Methods(http.MethodGet)
	r.HandleFuncE("/api/trends/summary", srvr.getTrendSummary).Methods(http.MethodGet)

	r.HandleFuncE("/api/stats", srvr.getStats).Methods(http.MethodGet)

	slog.Debug("configured api server", "port", config.Port)

	return &srvr
}

func (s Server) getHealth(w http.ResponseWriter, r *http.Request) error {
	return serverutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
