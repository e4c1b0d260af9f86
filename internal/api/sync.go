package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goaway "github.com/TwiN/go-away"
	"github.com/gorilla/mux"

	selerrs "github.com/jdholdren/selvedge/internal/errors"
	"github.com/jdholdren/selvedge/internal/selvedge"
	"github.com/jdholdren/selvedge/internal/serverutil"
	"github.com/jdholdren/selvedge/internal/source"
	"github.com/jdholdren/selvedge/internal/worker"
)

const maxSyncLimit = 200

type SyncTriggerReq struct {
	Platform string `json:"platform"`
	Keywords string `json:"keywords"`
	Limit    int    `json:"limit"`
}

func (req SyncTriggerReq) Validate() error {
	p, ok := selvedge.ParsePlatform(req.Platform)
	if !ok || (p != selvedge.PlatformAll && !isSyncable(p)) {
		return selerrs.E(
			"platform must be one of ebay, etsy, reddit, all",
			selerrs.CodeInvalidPlatform,
			selerrs.Detail{Field: "platform", Error: fmt.Sprintf("unknown platform %q", req.Platform)},
			http.StatusBadRequest,
		)
	}
	if req.Limit < 0 || req.Limit > maxSyncLimit {
		return selerrs.E(
			fmt.Sprintf("limit must be between 1 and %d", maxSyncLimit),
			selerrs.Detail{Field: "limit", Error: "out of range"},
			http.StatusBadRequest,
		)
	}

	// Keywords go out to the marketplaces verbatim, keep them clean.
	const maxKeywords = 200
	if len(req.Keywords) > maxKeywords {
		return selerrs.E("keywords too long", http.StatusUnprocessableEntity)
	}
	if goaway.IsProfane(req.Keywords) {
		return selerrs.E("profanity detected in keywords", http.StatusUnprocessableEntity)
	}

	return nil
}

func isSyncable(p selvedge.Platform) bool {
	for _, sp := range selvedge.SyncablePlatforms {
		if sp == p {
			return true
		}
	}
	return false
}

type SyncTriggerResp struct {
	worker.TaskHandle
	Platform selvedge.Platform `json:"platform"`
	Message  string            `json:"message"`
}

func (s Server) postSyncTrigger(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	body, err := serverutil.DecodeValid[SyncTriggerReq](r.Body)
	if err != nil {
		return err
	}

	q := source.Query{
		Keywords: strings.TrimSpace(body.Keywords),
		Limit:    body.Limit,
	}
	if q.Keywords == "" {
		q.Keywords = worker.DefaultKeywords
	}
	if q.Limit == 0 {
		q.Limit = worker.DefaultLimit
	}

	platform, _ := selvedge.ParsePlatform(body.Platform)
	handle, err := s.tasks.TriggerSync(ctx, platform, q)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusAccepted, SyncTriggerResp{
		TaskHandle: handle,
		Platform:   platform,
		Message:    fmt.Sprintf("sync of %s started", platform),
	})
}

func (s Server) getSyncStatus(w http.ResponseWriter, r *http.Request) error {
	taskID := mux.Vars(r)["taskID"]

	if status, ok := s.statusCache.Get(taskID); ok {
		return serverutil.WriteJSON(w, http.StatusOK, status)
	}

	status, err := s.tasks.TaskStatus(r.Context(), taskID)
	if errors.Is(err, selvedge.ErrNotFound) {
		return selerrs.E("task not found", selerrs.CodeNotFound, http.StatusNotFound)
	}
	if err != nil {
		return err
	}
	if status.Terminal() {
		s.statusCache.Add(taskID, status)
	}

	return serverutil.WriteJSON(w, http.StatusOK, status)
}

type SyncJobListResp struct {
	SyncJobs []selvedge.SyncJob `json:"sync_jobs"`
	Count    int                `json:"count"`
}

func (s Server) getSyncJobs(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()

	f := selvedge.SyncJobFilter{
		Status: selvedge.SyncJobStatus(query.Get("status")),
	}
	f.Limit, _ = parsePaginationParams(r, 20, 100)
	if p := query.Get("platform"); p != "" {
		platform, ok := selvedge.ParsePlatform(p)
		if !ok {
			return invalidPlatform(p)
		}
		f.Platform = platform
	}

	jobs, err := s.repo.SyncJobs(r.Context(), f)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, SyncJobListResp{
		SyncJobs: jobs,
		Count:    len(jobs),
	})
}

type StatsResp struct {
	Listings       map[selvedge.Platform]int `json:"listings_by_platform"`
	TotalListings  int                       `json:"total_listings"`
	RecentSyncJobs []selvedge.SyncJob        `json:"recent_sync_jobs"`
}

func (s Server) getStats(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	counts, err := s.repo.CountListingsByPlatform(ctx)
	if err != nil {
		return err
	}
	jobs, err := s.repo.SyncJobs(ctx, selvedge.SyncJobFilter{Limit: 3})
	if err != nil {
		return err
	}

	resp := StatsResp{
		Listings:       counts,
		RecentSyncJobs: jobs,
	}
	for _, n := range counts {
		resp.TotalListings += n
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func invalidPlatform(p string) error {
	return selerrs.E(
		fmt.Sprintf("unknown platform %q", p),
		selerrs.CodeInvalidPlatform,
		selerrs.Detail{Field: "platform", Error: "unknown value"},
		http.StatusBadRequest,
	)
}
