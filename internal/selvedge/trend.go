package selvedge

import "time"

// CategoryOverall is the category of the one record spanning every listing in a window.
const CategoryOverall = "overall"

// TrendRecord holds the statistics of one scope over one window.
//
// (Category, Platform, PeriodStart, PeriodEnd) is the scope key.
type TrendRecord struct {
	ID              string    `db:"id" json:"id"`
	Category        string    `db:"category" json:"category"`
	Platform        Platform  `db:"platform" json:"platform"`
	TotalListings   int       `db:"total_listings" json:"total_listings"`
	AvgPrice        float64   `db:"avg_price" json:"avg_price"`
	MinPrice        float64   `db:"min_price" json:"min_price"`
	MaxPrice        float64   `db:"max_price" json:"max_price"`
	TotalSales      int       `db:"total_sales" json:"total_sales"`
	EngagementScore float64   `db:"engagement_score" json:"engagement_score"`
	PeriodStart     time.Time `db:"period_start" json:"period_start"`
	PeriodEnd       time.Time `db:"period_end" json:"period_end"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type TrendFilter struct {
	Platform Platform
	Category string
	Since    time.Time // period_start at or after
	// BrandsOnly restricts to brand records: platform all, category neither
	// overall nor a platform name.
	BrandsOnly bool
	Limit      int
}
