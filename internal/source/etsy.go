package source

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jdholdren/selvedge/internal/catalog"
	"github.com/jdholdren/selvedge/internal/selvedge"
)

const (
	etsyDefaultBaseURL = "https://openapi.etsy.com"
	etsyMaxLimit       = 100
)

type EtsyConfig struct {
	APIKey  string
	BaseURL string // Defaults to the production api
}

// Etsy searches active listings of the Etsy Open API v3.
type Etsy struct {
	apiKey  string
	baseURL string
	client  *http.Client
	brands  []string
}

func NewEtsy(cfg EtsyConfig, cat catalog.Catalog, client *http.Client) *Etsy {
	if cfg.BaseURL == "" {
		cfg.BaseURL = etsyDefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Etsy{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		brands:  cat.Brands,
	}
}

func (e *Etsy) Platform() selvedge.Platform { return selvedge.PlatformEtsy }

type etsySearchResp struct {
	Count   int               `json:"count"`
	Results []json.RawMessage `json:"results"`
}

func (e *Etsy) Fetch(ctx context.Context, q Query) ([]RawItem, error) {
	if e.apiKey == "" {
		return nil, &AdapterError{Platform: selvedge.PlatformEtsy, Op: "fetch", Err: errors.New("missing api key")}
	}

	limit := q.Limit
	if limit <= 0 || limit > etsyMaxLimit {
		limit = etsyMaxLimit
	}
	params := url.Values{}
	params.Set("keywords", q.Keywords)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort_on", "score")
	params.Set("includes", "Images,Shop")
	if q.MinPrice != nil {
		params.Set("min_price", strconv.FormatFloat(*q.MinPrice, 'f', 2, 64))
	}
	if q.MaxPrice != nil {
		params.Set("max_price", strconv.FormatFloat(*q.MaxPrice, 'f', 2, 64))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v3/application/listings/active?"+params.Encode(), nil)
	if err != nil {
		return nil, &AdapterError{Platform: selvedge.PlatformEtsy, Op: "build request", Err: err}
	}
	req.Header.Set("x-api-key", e.apiKey)

	var resp etsySearchResp
	if err := getJSON(e.client, req, &resp); err != nil {
		return nil, &AdapterError{Platform: selvedge.PlatformEtsy, Op: "search", Err: err}
	}

	return resp.Results, nil
}

type etsyItem struct {
	ListingID   int64  `json:"listing_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	State       string `json:"state"`
	URL         string `json:"url"`
	Price       *struct {
		Amount       int64  `json:"amount"`
		Divisor      int64  `json:"divisor"`
		CurrencyCode string `json:"currency_code"`
	} `json:"price"`
	Views            int   `json:"views"`
	NumFavorers      int   `json:"num_favorers"`
	CreatedTimestamp int64 `json:"created_timestamp"`
	Images           []struct {
		URLFullxFull string `json:"url_fullxfull"`
		URL570xN     string `json:"url_570xN"`
	} `json:"images"`
	Shop *struct {
		ShopName string `json:"shop_name"`
		City     string `json:"city"`
	} `json:"shop"`
}

func (e *Etsy) Normalize(item RawItem) (selvedge.Listing, error) {
	var it etsyItem
	if err := json.Unmarshal(item, &it); err != nil {
		return selvedge.Listing{}, &NormalizationSkip{Platform: selvedge.PlatformEtsy, Reason: err.Error()}
	}
	if it.ListingID == 0 {
		return selvedge.Listing{}, &NormalizationSkip{Platform: selvedge.PlatformEtsy, Reason: "missing listing_id"}
	}

	id := strconv.FormatInt(it.ListingID, 10)
	title := html.UnescapeString(it.Title)
	l := selvedge.Listing{
		Platform:      selvedge.PlatformEtsy,
		ExternalID:    id,
		URL:           it.URL,
		Title:         title,
		Description:   sanitize(it.Description, 2048),
		Currency:      "USD",
		Condition:     strPtr("vintage"),
		Brand:         ExtractBrand(title, e.brands),
		Status:        selvedge.ListingStatusActive,
		ViewCount:     it.Views,
		WatchCount:    it.NumFavorers,
		FavoriteCount: it.NumFavorers,
		RawData:       selvedge.RawJSON(item),
	}
	if l.URL == "" {
		l.URL = "https://www.etsy.com/listing/" + id
	}
	if it.State == "sold_out" {
		l.Status = selvedge.ListingStatusSold
	}

	// Etsy quotes money in minor units.
	if it.Price != nil {
		divisor := it.Price.Divisor
		if divisor <= 0 {
			divisor = 100
		}
		v := round2(float64(it.Price.Amount) / float64(divisor))
		l.Price = &v
		if it.Price.CurrencyCode != "" {
			l.Currency = it.Price.CurrencyCode
		}
	}

	images := selvedge.StringList{}
	for _, img := range it.Images {
		if img.URLFullxFull != "" {
			images = append(images, img.URLFullxFull)
		}
	}
	l.ImageURLs = images
	if len(it.Images) > 0 {
		thumb := it.Images[0].URL570xN
		if thumb == "" {
			thumb = it.Images[0].URLFullxFull
		}
		l.ThumbnailURL = strPtr(thumb)
	}

	if it.Shop != nil {
		l.SellerUsername = strPtr(it.Shop.ShopName)
		l.SellerLocation = strPtr(it.Shop.City)
	}
	if it.CreatedTimestamp > 0 {
		t := time.Unix(it.CreatedTimestamp, 0).UTC()
		l.ListedAt = &t
	}

	return l, nil
}
