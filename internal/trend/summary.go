package trend

import (
	"sort"

	"github.com/jdholdren/selvedge/internal/selvedge"
)

type BrandCount struct {
	Brand string `json:"brand"`
	Count int    `json:"count"`
}

// Summary is the dashboard view of a set of listings.
type Summary struct {
	TotalListings  int                       `json:"total_listings"`
	AvgPrice       float64                   `json:"avg_price"`
	PlatformCounts map[selvedge.Platform]int `json:"platform_counts"`
	TopBrands      []BrandCount              `json:"top_brands"`
}

const topBrands = 5

func Summarize(listings []selvedge.Listing) Summary {
	s := Summary{
		TotalListings:  len(listings),
		PlatformCounts: make(map[selvedge.Platform]int),
		TopBrands:      []BrandCount{},
	}

	var (
		priced int
		sum    float64
		brands = make(map[string]int)
	)
	for _, l := range listings {
		s.PlatformCounts[l.Platform]++
		if l.Price != nil {
			priced++
			sum += *l.Price
		}
		if l.Brand != nil && *l.Brand != "" {
			brands[*l.Brand]++
		}
	}
	if priced > 0 {
		s.AvgPrice = round2(sum / float64(priced))
	}

	for b, n := range brands {
		s.TopBrands = append(s.TopBrands, BrandCount{Brand: b, Count: n})
	}
	sort.Slice(s.TopBrands, func(i, j int) bool {
		if s.TopBrands[i].Count != s.TopBrands[j].Count {
			return s.TopBrands[i].Count > s.TopBrands[j].Count
		}
		return s.TopBrands[i].Brand < s.TopBrands[j].Brand
	})
	if len(s.TopBrands) > topBrands {
		s.TopBrands = s.TopBrands[:topBrands]
	}

	return s
}
