package api

import (
	"net/http"
	"time"

	"github.com/jdholdren/selvedge/internal/selvedge"
	"github.com/jdholdren/selvedge/internal/serverutil"
	"github.com/jdholdren/selvedge/internal/trend"
)

const maxTrendDays = 90

type TrendListResp struct {
	Trends []selvedge.TrendRecord `json:"trends"`
	Days   int                    `json:"days"`
}

func (s Server) since(days int) time.Time {
	return s.now().UTC().AddDate(0, 0, -days)
}

func (s Server) getTrends(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()
	days := parseDays(r, 7, maxTrendDays)

	f := selvedge.TrendFilter{
		Category: query.Get("category"),
		Since:    s.since(days),
	}
	if p := query.Get("platform"); p != "" {
		platform, ok := selvedge.ParsePlatform(p)
		if !ok {
			return invalidPlatform(p)
		}
		f.Platform = platform
	}

	trends, err := s.repo.Trends(r.Context(), f)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, TrendListResp{Trends: trends, Days: days})
}

func (s Server) getBrandTrends(w http.ResponseWriter, r *http.Request) error {
	days := parseDays(r, 30, maxTrendDays)
	limit, _ := parsePaginationParams(r, 20, 100)

	trends, err := s.repo.Trends(r.Context(), selvedge.TrendFilter{
		BrandsOnly: true,
		Since:      s.since(days),
		Limit:      limit,
	})
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, TrendListResp{Trends: trends, Days: days})
}

type TrendSummaryResp struct {
	trend.Summary
	Days int `json:"days"`
}

func (s Server) getTrendSummary(w http.ResponseWriter, r *http.Request) error {
	days := parseDays(r, 7, maxTrendDays)

	listings, err := s.repo.ListingsCreatedBetween(r.Context(), s.since(days), s.now().UTC())
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, TrendSummaryResp{
		Summary: trend.Summarize(listings),
		Days:    days,
	})
}
