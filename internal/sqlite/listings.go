package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/selvedge/internal/selvedge"
)

const insertListingQuery = `INSERT INTO listings (
	id, platform, external_id, url, title, description, price, currency, condition,
	brand, size, waist_size, inseam_length, style, wash, era, image_urls, thumbnail_url,
	seller_username, seller_rating, seller_location, status, listed_at,
	view_count, watch_count, favorite_count, trend_score, ai_tags, ai_summary, raw_data,
	created_at, updated_at, last_synced_at
) VALUES (
	:id, :platform, :external_id, :url, :title, :description, :price, :currency, :condition,
	:brand, :size, :waist_size, :inseam_length, :style, :wash, :era, :image_urls, :thumbnail_url,
	:seller_username, :seller_rating, :seller_location, :status, :listed_at,
	:view_count, :watch_count, :favorite_count, :trend_score, :ai_tags, :ai_summary, :raw_data,
	:created_at, :updated_at, :last_synced_at
);`

// Every field an adapter produces is overwritten on re-ingestion, nulls included.
// The model-only fields (sizes, style, wash, era, ai_*) are left alone.
const selectListingIDQuery = `SELECT id FROM listings WHERE platform = ? AND external_id = ?;`

const updateListingQuery = `UPDATE listings SET
	url = :url,
	title = :title,
	description = :description,
	price = :price,
	currency = :currency,
	condition = :condition,
	brand = :brand,
	image_urls = :image_urls,
	thumbnail_url = :thumbnail_url,
	seller_username = :seller_username,
	seller_rating = :seller_rating,
	seller_location = :seller_location,
	status = :status,
	listed_at = :listed_at,
	view_count = :view_count,
	watch_count = :watch_count,
	favorite_count = :favorite_count,
	trend_score = :trend_score,
	raw_data = :raw_data,
	updated_at = :updated_at,
	last_synced_at = :last_synced_at
WHERE id = :id;`

// UpsertListing inserts the listing or, when (platform, external_id) already
// exists, overwrites it in place.
//
// Connections open with _txlock=immediate, so the lookup and the write below
// happen under the same write lock and concurrent upserts of one key serialize.
func (r Repo) UpsertListing(ctx context.Context, l selvedge.Listing) (selvedge.UpsertResult, error) {
	now := r.clock()
	l.UpdatedAt = now
	l.LastSyncedAt = &now
	if l.Currency == "" {
		l.Currency = "USD"
	}
	if l.Status == "" {
		l.Status = selvedge.ListingStatusActive
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("error starting upsert: %s", err)
	}
	defer tx.Rollback()

	result, err := upsertListingTx(ctx, tx, l, now)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("error committing upsert: %s", err)
	}

	return result, nil
}

func upsertListingTx(ctx context.Context, tx *sqlx.Tx, l selvedge.Listing, now time.Time) (selvedge.UpsertResult, error) {
	var existingID string
	err := tx.GetContext(ctx, &existingID, selectListingIDQuery, string(l.Platform), l.ExternalID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return insertListingTx(ctx, tx, l, now)
	case err != nil:
		return "", fmt.Errorf("error looking up listing: %s", err)
	}

	l.ID = existingID
	return updateListingTx(ctx, tx, l)
}

// insertListingTx inserts l as a new listing. When another writer inserted the
// same key first, their row is updated instead: last writer wins.
func insertListingTx(ctx context.Context, tx *sqlx.Tx, l selvedge.Listing, now time.Time) (selvedge.UpsertResult, error) {
	l.ID = fmt.Sprintf("%s%s", uuid.NewString(), listingNamespace)
	l.CreatedAt = now
	_, err := tx.NamedExecContext(ctx, insertListingQuery, l)
	if err == nil {
		return selvedge.UpsertCreated, nil
	}
	if !isUniqueViolation(err) {
		return "", fmt.Errorf("error inserting listing: %s", err)
	}

	if err := tx.GetContext(ctx, &l.ID, selectListingIDQuery, string(l.Platform), l.ExternalID); err != nil {
		return "", fmt.Errorf("error looking up listing after conflict: %s", err)
	}
	return updateListingTx(ctx, tx, l)
}

func updateListingTx(ctx context.Context, tx *sqlx.Tx, l selvedge.Listing) (selvedge.UpsertResult, error) {
	if _, err := tx.NamedExecContext(ctx, updateListingQuery, l); err != nil {
		return "", fmt.Errorf("error updating listing: %s", err)
	}
	return selvedge.UpsertUpdated, nil
}

func (r Repo) Listing(ctx context.Context, id string) (selvedge.Listing, error) {
	const q = `SELECT * FROM listings WHERE id = ?;`

	var l selvedge.Listing
	err := r.db.GetContext(ctx, &l, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return selvedge.Listing{}, selvedge.ErrNotFound
	}
	if err != nil {
		return selvedge.Listing{}, fmt.Errorf("error fetching listing: %s", err)
	}

	return l, nil
}

func (r Repo) ListingByExternalID(ctx context.Context, platform selvedge.Platform, externalID string) (selvedge.Listing, error) {
	const q = `SELECT * FROM listings WHERE platform = ? AND external_id = ?;`

	var l selvedge.Listing
	err := r.db.GetContext(ctx, &l, q, string(platform), externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return selvedge.Listing{}, selvedge.ErrNotFound
	}
	if err != nil {
		return selvedge.Listing{}, fmt.Errorf("error fetching listing: %s", err)
	}

	return l, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// contains matches s anywhere in col, treating LIKE wildcards in s literally.
// sqlite LIKE is case-insensitive for ASCII.
func contains(col, s string) sq.Sqlizer {
	return sq.Expr(col+` LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(s)+"%")
}

var listingSortColumns = map[string]string{
	"created_at":  "created_at",
	"price":       "price",
	"trend_score": "trend_score",
}

// Listings returns one page of listings matching the filter, and the total
// number of matches across all pages.
func (r Repo) Listings(ctx context.Context, f selvedge.ListingFilter) ([]selvedge.Listing, int, error) {
	where := sq.And{}
	if f.Platform != "" {
		where = append(where, sq.Eq{"platform": string(f.Platform)})
	}
	if f.Brand != "" {
		where = append(where, contains("brand", f.Brand))
	}
	if f.Condition != "" {
		where = append(where, contains("condition", f.Condition))
	}
	if f.Size != "" {
		where = append(where, sq.Eq{"size": f.Size})
	}
	if f.MinPrice != nil {
		where = append(where, sq.GtOrEq{"price": *f.MinPrice})
	}
	if f.MaxPrice != nil {
		where = append(where, sq.LtOrEq{"price": *f.MaxPrice})
	}

	countQuery, countArgs, err := sq.Select("COUNT(*)").From("listings").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("error constructing sql: %s", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("error counting listings: %s", err)
	}

	col, ok := listingSortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if f.SortOrder == "asc" {
		dir = "ASC"
	}

	q := sq.Select("*").From("listings").Where(where).OrderBy(col + " " + dir)
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit)).Offset(uint64(f.Offset))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("error constructing sql: %s", err)
	}

	listings := []selvedge.Listing{}
	if err := r.db.SelectContext(ctx, &listings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("error fetching listings: %s", err)
	}

	return listings, total, nil
}

// SearchListings matches keywords against title, description or brand.
func (r Repo) SearchListings(ctx context.Context, keywords string, limit int) ([]selvedge.Listing, error) {
	q := sq.Select("*").From("listings").
		Where(sq.Or{
			contains("title", keywords),
			contains("description", keywords),
			contains("brand", keywords),
		}).
		OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	listings := []selvedge.Listing{}
	if err := r.db.SelectContext(ctx, &listings, query, args...); err != nil {
		return nil, fmt.Errorf("error searching listings: %s", err)
	}

	return listings, nil
}

// ListingsCreatedBetween returns listings with created_at in [start, end].
func (r Repo) ListingsCreatedBetween(ctx context.Context, start, end time.Time) ([]selvedge.Listing, error) {
	const q = `SELECT * FROM listings WHERE created_at >= ? AND created_at <= ? ORDER BY created_at;`

	listings := []selvedge.Listing{}
	if err := r.db.SelectContext(ctx, &listings, q, start.UTC(), end.UTC()); err != nil {
		return nil, fmt.Errorf("error fetching listings in window: %s", err)
	}

	return listings, nil
}

// PatchEnrichment writes the non-nil fields of p onto the listing.
func (r Repo) PatchEnrichment(ctx context.Context, id string, p selvedge.EnrichmentPatch) error {
	q := sq.Update("listings").Set("updated_at", r.clock())
	set := func(col string, v any) {
		q = q.Set(col, v)
	}
	if p.Brand != nil {
		set("brand", *p.Brand)
	}
	if p.Size != nil {
		set("size", *p.Size)
	}
	if p.WaistSize != nil {
		set("waist_size", *p.WaistSize)
	}
	if p.InseamLength != nil {
		set("inseam_length", *p.InseamLength)
	}
	if p.Style != nil {
		set("style", *p.Style)
	}
	if p.Wash != nil {
		set("wash", *p.Wash)
	}
	if p.Era != nil {
		set("era", *p.Era)
	}
	if p.Condition != nil {
		set("condition", *p.Condition)
	}
	if p.Tags != nil {
		set("ai_tags", p.Tags)
	}
	if p.Summary != nil {
		set("ai_summary", *p.Summary)
	}

	query, args, err := q.Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error patching listing: %s", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return selvedge.ErrNotFound
	}

	return nil
}

func (r Repo) CountListingsByPlatform(ctx context.Context) (map[selvedge.Platform]int, error) {
	const q = `SELECT platform, COUNT(*) AS count FROM listings GROUP BY platform;`

	var rows []struct {
		Platform selvedge.Platform `db:"platform"`
		Count    int               `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("error counting listings: %s", err)
	}

	counts := make(map[selvedge.Platform]int, len(rows))
	for _, row := range rows {
		counts[row.Platform] = row.Count
	}

	return counts, nil
}
