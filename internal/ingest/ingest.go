// Package ingest runs one sync: fetch from a source, normalize every item and
// upsert the results, counting what happened to each.
package ingest

import (
	"context"
	"log/slog"

	"github.com/jdholdren/selvedge/internal/logger"
	"github.com/jdholdren/selvedge/internal/selvedge"
	"github.com/jdholdren/selvedge/internal/source"
)

// Store is the slice of the repository a sync writes to.
type Store interface {
	UpsertListing(ctx context.Context, l selvedge.Listing) (selvedge.UpsertResult, error)
}

// Run fetches from src and stores everything it can.
//
// Only a failed fetch is returned as an error. Items that fail to normalize or
// to upsert are logged and counted in Failed.
func Run(ctx context.Context, src source.Source, store Store, q source.Query) (selvedge.SyncStats, error) {
	ctx = logger.Ctx(ctx, slog.String("platform", string(src.Platform())))

	items, err := src.Fetch(ctx, q)
	if err != nil {
		return selvedge.SyncStats{}, err
	}
	slog.InfoContext(ctx, "fetched items", "count", len(items), "keywords", q.Keywords)

	var (
		listings = make([]selvedge.Listing, 0, len(items))
		skipped  int
	)
	for _, item := range items {
		l, err := src.Normalize(item)
		if err != nil {
			slog.WarnContext(ctx, "skipping item", "error", err)
			skipped++
			continue
		}
		listings = append(listings, l)
	}

	stats := UpsertBatch(ctx, store, listings)
	stats.Fetched = len(items)
	stats.Failed += skipped

	slog.InfoContext(ctx, "sync finished",
		"fetched", stats.Fetched,
		"added", stats.Added,
		"updated", stats.Updated,
		"failed", stats.Failed,
	)
	return stats, nil
}

// UpsertBatch upserts every listing independently. One failure never stops
// the rest of the batch.
func UpsertBatch(ctx context.Context, store Store, listings []selvedge.Listing) selvedge.SyncStats {
	var stats selvedge.SyncStats
	for _, l := range listings {
		res, err := store.UpsertListing(ctx, l)
		if err != nil {
			slog.ErrorContext(ctx, "error upserting listing", "external_id", l.ExternalID, "error", err)
			stats.Failed++
			continue
		}

		switch res {
		case selvedge.UpsertCreated:
			stats.Added++
		case selvedge.UpsertUpdated:
			stats.Updated++
		}
	}

	return stats
}
