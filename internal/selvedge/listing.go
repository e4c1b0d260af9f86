package selvedge

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ListingStatus string

const (
	ListingStatusActive  ListingStatus = "active"
	ListingStatusRemoved ListingStatus = "removed"
	ListingStatusSold    ListingStatus = "sold"
)

// Listing is one normalized marketplace item.
//
// (Platform, ExternalID) is unique; re-ingesting the same pair updates the row.
type Listing struct {
	ID         string   `db:"id" json:"id"`
	Platform   Platform `db:"platform" json:"platform"`
	ExternalID string   `db:"external_id" json:"external_id"`
	URL        string   `db:"url" json:"url"`

	Title       string   `db:"title" json:"title"`
	Description *string  `db:"description" json:"description"`
	Price       *float64 `db:"price" json:"price"`
	Currency    string   `db:"currency" json:"currency"`
	Condition   *string  `db:"condition" json:"condition"`

	Brand        *string `db:"brand" json:"brand"`
	Size         *string `db:"size" json:"size"`
	WaistSize    *int    `db:"waist_size" json:"waist_size"`
	InseamLength *int    `db:"inseam_length" json:"inseam_length"`
	Style        *string `db:"style" json:"style"`
	Wash         *string `db:"wash" json:"wash"`
	Era          *string `db:"era" json:"era"`

	ImageURLs    StringList `db:"image_urls" json:"image_urls"`
	ThumbnailURL *string    `db:"thumbnail_url" json:"thumbnail_url"`

	SellerUsername *string  `db:"seller_username" json:"seller_username"`
	SellerRating   *float64 `db:"seller_rating" json:"seller_rating"`
	SellerLocation *string  `db:"seller_location" json:"seller_location"`

	Status   ListingStatus `db:"status" json:"status"`
	ListedAt *time.Time    `db:"listed_at" json:"listed_at"`

	ViewCount     int      `db:"view_count" json:"view_count"`
	WatchCount    int      `db:"watch_count" json:"watch_count"`
	FavoriteCount int      `db:"favorite_count" json:"favorite_count"`
	TrendScore    *float64 `db:"trend_score" json:"trend_score"`

	AITags    StringList `db:"ai_tags" json:"ai_tags"`
	AISummary *string    `db:"ai_summary" json:"ai_summary"`

	RawData RawJSON `db:"raw_data" json:"-"`

	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	LastSyncedAt *time.Time `db:"last_synced_at" json:"last_synced_at"`
}

// ListingFilter narrows the listing index. Zero values mean "no filter".
type ListingFilter struct {
	Platform  Platform
	Brand     string // case-insensitive substring
	Condition string // case-insensitive substring
	Size      string
	MinPrice  *float64
	MaxPrice  *float64

	SortBy    string // created_at, price or trend_score
	SortOrder string // asc or desc
	Limit     int
	Offset    int
}

// EnrichmentPatch holds the fields AI enrichment is allowed to write.
// Nil pointers leave the stored value untouched.
type EnrichmentPatch struct {
	Brand        *string
	Size         *string
	WaistSize    *int
	InseamLength *int
	Style        *string
	Wash         *string
	Era          *string
	Condition    *string
	Tags         StringList
	Summary      *string
}

// StringList is an ordered list of strings kept as a JSON array column.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	byts, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(byts), nil
}

func (s *StringList) Scan(src any) error {
	var byts []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case string:
		byts = []byte(v)
	case []byte:
		byts = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	if len(byts) == 0 {
		*s = nil
		return nil
	}

	return json.Unmarshal(byts, (*[]string)(s))
}

// RawJSON is an opaque JSON document, used for vendor payloads.
type RawJSON json.RawMessage

func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	return string(r), nil
}

func (r *RawJSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = nil
	case string:
		*r = RawJSON(v)
	case []byte:
		*r = append(RawJSON(nil), v...)
	default:
		return fmt.Errorf("cannot scan %T into RawJSON", src)
	}
	return nil
}

func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *RawJSON) UnmarshalJSON(byts []byte) error {
	*r = append((*r)[0:0], byts...)
	return nil
}
