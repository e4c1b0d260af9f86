// Package trend turns a window of listings into per-platform, per-brand and
// overall statistics.
package trend

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/jdholdren/selvedge/internal/selvedge"
)

const (
	StatusCompleted = "completed"
	StatusNoData    = "no_data"
)

// Store is what aggregation reads from and writes to.
type Store interface {
	ListingsCreatedBetween(ctx context.Context, start, end time.Time) ([]selvedge.Listing, error)
	UpsertTrend(ctx context.Context, rec selvedge.TrendRecord) (selvedge.TrendRecord, error)
}

type Aggregator struct {
	store Store
}

func New(store Store) Aggregator {
	return Aggregator{store: store}
}

// Result describes one aggregation run.
type Result struct {
	Status            string                 `json:"status"`
	PeriodStart       time.Time              `json:"period_start"`
	PeriodEnd         time.Time              `json:"period_end"`
	ListingsAnalyzed  int                    `json:"listings_analyzed"`
	PlatformsAnalyzed int                    `json:"platforms_analyzed"`
	BrandsIdentified  int                    `json:"brands_identified"`
	Records           []selvedge.TrendRecord `json:"records,omitempty"`
}

// Aggregate computes the records of listings created in [start, end] and
// upserts each by its scope key. Running it again for the same window
// overwrites the earlier values.
func (a Aggregator) Aggregate(ctx context.Context, start, end time.Time) (Result, error) {
	listings, err := a.store.ListingsCreatedBetween(ctx, start, end)
	if err != nil {
		return Result{}, fmt.Errorf("error reading window: %w", err)
	}

	res := Result{
		Status:           StatusCompleted,
		PeriodStart:      start,
		PeriodEnd:        end,
		ListingsAnalyzed: len(listings),
	}
	if len(listings) == 0 {
		res.Status = StatusNoData
	}

	for _, rec := range Compute(listings, start, end) {
		stored, err := a.store.UpsertTrend(ctx, rec)
		if err != nil {
			return Result{}, fmt.Errorf("error storing %s/%s: %w", rec.Platform, rec.Category, err)
		}
		res.Records = append(res.Records, stored)

		switch {
		case rec.Category == selvedge.CategoryOverall:
		case rec.Platform == selvedge.PlatformAll:
			res.BrandsIdentified++
		default:
			res.PlatformsAnalyzed++
		}
	}

	slog.InfoContext(ctx, "aggregated trends",
		"start", start,
		"end", end,
		"listings", res.ListingsAnalyzed,
		"records", len(res.Records),
	)
	return res, nil
}

// Compute groups the listings and returns one record per platform (sorted),
// one per brand (sorted, platform "all") and the overall record, in that order.
// The overall record is always present, zeroed for an empty window.
func Compute(listings []selvedge.Listing, start, end time.Time) []selvedge.TrendRecord {
	var (
		byPlatform = make(map[selvedge.Platform][]selvedge.Listing)
		byBrand    = make(map[string][]selvedge.Listing)
	)
	for _, l := range listings {
		byPlatform[l.Platform] = append(byPlatform[l.Platform], l)
		if l.Brand != nil && *l.Brand != "" {
			byBrand[*l.Brand] = append(byBrand[*l.Brand], l)
		}
	}

	platforms := make([]selvedge.Platform, 0, len(byPlatform))
	for p := range byPlatform {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

	brands := make([]string, 0, len(byBrand))
	for b := range byBrand {
		brands = append(brands, b)
	}
	sort.Strings(brands)

	records := make([]selvedge.TrendRecord, 0, len(platforms)+len(brands)+1)
	for _, p := range platforms {
		records = append(records, stats(string(p), p, byPlatform[p], start, end))
	}
	for _, b := range brands {
		records = append(records, stats(b, selvedge.PlatformAll, byBrand[b], start, end))
	}
	records = append(records, stats(selvedge.CategoryOverall, selvedge.PlatformAll, listings, start, end))

	return records
}

func stats(category string, platform selvedge.Platform, listings []selvedge.Listing, start, end time.Time) selvedge.TrendRecord {
	rec := selvedge.TrendRecord{
		Category:      category,
		Platform:      platform,
		TotalListings: len(listings),
		PeriodStart:   start,
		PeriodEnd:     end,
	}

	var (
		priced     int
		sum        float64
		lo, hi     = math.Inf(1), math.Inf(-1)
		scored     int
		scoreTotal float64
	)
	for _, l := range listings {
		if l.Price != nil {
			priced++
			sum += *l.Price
			lo = math.Min(lo, *l.Price)
			hi = math.Max(hi, *l.Price)
		}
		if l.TrendScore != nil {
			scored++
			scoreTotal += *l.TrendScore
		}
	}

	// Empty sets report 0 rather than NaN or an infinity.
	if priced > 0 {
		rec.AvgPrice = round2(sum / float64(priced))
		rec.MinPrice = round2(lo)
		rec.MaxPrice = round2(hi)
	}
	if scored > 0 {
		rec.EngagementScore = round2(scoreTotal / float64(scored))
	}

	return rec
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DailyWindow is the previous full UTC day relative to now.
func DailyWindow(now time.Time) (time.Time, time.Time) {
	end := now.UTC().Truncate(24 * time.Hour)
	return end.Add(-24 * time.Hour), end
}
