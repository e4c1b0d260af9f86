package sqlite

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jdholdren/selvedge/internal/selvedge"
)

// UpsertTrend writes the record keyed on (category, platform, period_start, period_end),
// overwriting the statistics of an earlier run over the same window.
func (r Repo) UpsertTrend(ctx context.Context, rec selvedge.TrendRecord) (selvedge.TrendRecord, error) {
	const q = `INSERT INTO trend_records (
		id, category, platform, total_listings, avg_price, min_price, max_price,
		total_sales, engagement_score, period_start, period_end, created_at, updated_at
	) VALUES (
		:id, :category, :platform, :total_listings, :avg_price, :min_price, :max_price,
		:total_sales, :engagement_score, :period_start, :period_end, :created_at, :updated_at
	)
	ON CONFLICT(category, platform, period_start, period_end) DO UPDATE SET
		total_listings = excluded.total_listings,
		avg_price = excluded.avg_price,
		min_price = excluded.min_price,
		max_price = excluded.max_price,
		total_sales = excluded.total_sales,
		engagement_score = excluded.engagement_score,
		updated_at = excluded.updated_at;`

	now := r.clock()
	rec.ID = fmt.Sprintf("%s%s", uuid.NewString(), trendNamespace)
	rec.PeriodStart = rec.PeriodStart.UTC()
	rec.PeriodEnd = rec.PeriodEnd.UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if _, err := r.db.NamedExecContext(ctx, q, rec); err != nil {
		return selvedge.TrendRecord{}, fmt.Errorf("error upserting trend record: %s", err)
	}

	const sel = `SELECT * FROM trend_records
	WHERE category = ? AND platform = ? AND period_start = ? AND period_end = ?;`
	var stored selvedge.TrendRecord
	if err := r.db.GetContext(ctx, &stored, sel, rec.Category, string(rec.Platform), rec.PeriodStart, rec.PeriodEnd); err != nil {
		return selvedge.TrendRecord{}, fmt.Errorf("error fetching trend record: %s", err)
	}

	return stored, nil
}

// Trends lists trend records, newest window first.
func (r Repo) Trends(ctx context.Context, f selvedge.TrendFilter) ([]selvedge.TrendRecord, error) {
	q := sq.Select("*").From("trend_records").OrderBy("period_start DESC", "total_listings DESC")
	if f.Platform != "" {
		q = q.Where(sq.Eq{"platform": string(f.Platform)})
	}
	if f.Category != "" {
		q = q.Where(sq.Eq{"category": f.Category})
	}
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"period_start": f.Since.UTC()})
	}
	if f.BrandsOnly {
		notBrands := []string{selvedge.CategoryOverall}
		for _, p := range selvedge.SyncablePlatforms {
			notBrands = append(notBrands, string(p))
		}
		q = q.Where(sq.Eq{"platform": string(selvedge.PlatformAll)}).
			Where(sq.NotEq{"category": notBrands})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	records := []selvedge.TrendRecord{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching trend records: %s", err)
	}

	return records, nil
}
