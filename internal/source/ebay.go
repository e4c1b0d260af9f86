package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jdholdren/selvedge/internal/catalog"
	"github.com/jdholdren/selvedge/internal/selvedge"
)

const (
	ebayDefaultBaseURL = "https://api.ebay.com"
	ebayScope          = "https://api.ebay.com/oauth/api_scope"
	ebayMaxLimit       = 200
)

type EbayConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string // Defaults to the production api
}

// Ebay searches the eBay Browse api.
type Ebay struct {
	baseURL    string
	configured bool
	client     *http.Client
	brands     []string
}

// NewEbay builds the adapter. The application token is fetched lazily and
// cached by the client until it expires.
func NewEbay(cfg EbayConfig, cat catalog.Catalog, base *http.Client) *Ebay {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ebayDefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Ebay{
		baseURL:    cfg.BaseURL,
		configured: cfg.ClientID != "" && cfg.ClientSecret != "",
		client: tokenClient(base, clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.BaseURL + "/identity/v1/oauth2/token",
			Scopes:       []string{ebayScope},
			AuthStyle:    oauth2.AuthStyleInHeader,
		}),
		brands: cat.Brands,
	}
}

// Wraps base with a client-credentials token source. The token source is
// reused by every request of this adapter only.
func tokenClient(base *http.Client, cc clientcredentials.Config) *http.Client {
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	c := oauth2.NewClient(ctx, cc.TokenSource(ctx))
	c.Timeout = base.Timeout
	return c
}

func (e *Ebay) Platform() selvedge.Platform { return selvedge.PlatformEbay }

type ebaySearchResp struct {
	Total         int               `json:"total"`
	ItemSummaries []json.RawMessage `json:"itemSummaries"`
}

func (e *Ebay) Fetch(ctx context.Context, q Query) ([]RawItem, error) {
	if !e.configured {
		return nil, &AdapterError{Platform: selvedge.PlatformEbay, Op: "fetch", Err: errors.New("missing client credentials")}
	}

	limit := q.Limit
	if limit <= 0 || limit > ebayMaxLimit {
		limit = ebayMaxLimit
	}
	params := url.Values{}
	params.Set("q", q.Keywords)
	params.Set("limit", strconv.Itoa(limit))
	if f := ebayFilter(q); f != "" {
		params.Set("filter", f)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/buy/browse/v1/item_summary/search?"+params.Encode(), nil)
	if err != nil {
		return nil, &AdapterError{Platform: selvedge.PlatformEbay, Op: "build request", Err: err}
	}
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", "EBAY_US")

	var resp ebaySearchResp
	if err := getJSON(e.client, req, &resp); err != nil {
		return nil, &AdapterError{Platform: selvedge.PlatformEbay, Op: "search", Err: err}
	}

	return resp.ItemSummaries, nil
}

func ebayFilter(q Query) string {
	var filters []string
	if q.MinPrice != nil || q.MaxPrice != nil {
		var lo, hi string
		if q.MinPrice != nil {
			lo = strconv.FormatFloat(*q.MinPrice, 'f', -1, 64)
		}
		if q.MaxPrice != nil {
			hi = strconv.FormatFloat(*q.MaxPrice, 'f', -1, 64)
		}
		filters = append(filters, fmt.Sprintf("price:[%s..%s]", lo, hi), "priceCurrency:USD")
	}
	if q.Condition != "" {
		filters = append(filters, fmt.Sprintf("conditions:{%s}", strings.ToUpper(q.Condition)))
	}
	return strings.Join(filters, ",")
}

type ebayImage struct {
	ImageURL string `json:"imageUrl"`
}

type ebayItem struct {
	ItemID           string      `json:"itemId"`
	Title            string      `json:"title"`
	ShortDescription string      `json:"shortDescription"`
	Image            *ebayImage  `json:"image"`
	ThumbnailImages  []ebayImage `json:"thumbnailImages"`
	AdditionalImages []ebayImage `json:"additionalImages"`
	Price            *struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"price"`
	Seller *struct {
		Username           string `json:"username"`
		FeedbackPercentage string `json:"feedbackPercentage"`
	} `json:"seller"`
	Condition    string `json:"condition"`
	ItemLocation *struct {
		City    string `json:"city"`
		Country string `json:"country"`
	} `json:"itemLocation"`
	ItemWebURL       string `json:"itemWebUrl"`
	ItemCreationDate string `json:"itemCreationDate"`
}

func (e *Ebay) Normalize(item RawItem) (selvedge.Listing, error) {
	var it ebayItem
	if err := json.Unmarshal(item, &it); err != nil {
		return selvedge.Listing{}, &NormalizationSkip{Platform: selvedge.PlatformEbay, Reason: err.Error()}
	}
	if it.ItemID == "" {
		return selvedge.Listing{}, &NormalizationSkip{Platform: selvedge.PlatformEbay, Reason: "missing itemId"}
	}

	l := selvedge.Listing{
		Platform:    selvedge.PlatformEbay,
		ExternalID:  it.ItemID,
		URL:         it.ItemWebURL,
		Title:       it.Title,
		Description: sanitize(it.ShortDescription, 2048),
		Currency:    "USD",
		Condition:   strPtr(it.Condition),
		Brand:       ExtractBrand(it.Title, e.brands),
		Status:      selvedge.ListingStatusActive,
		RawData:     selvedge.RawJSON(item),
	}
	if l.URL == "" {
		l.URL = "https://www.ebay.com/itm/" + it.ItemID
	}

	if it.Price != nil {
		if v, err := strconv.ParseFloat(it.Price.Value, 64); err == nil {
			l.Price = &v
		}
		if it.Price.Currency != "" {
			l.Currency = it.Price.Currency
		}
	}

	// Main picture first, then the rest in the order eBay lists them.
	images := selvedge.StringList{}
	if it.Image != nil && it.Image.ImageURL != "" {
		images = append(images, it.Image.ImageURL)
	}
	for _, img := range it.AdditionalImages {
		if img.ImageURL != "" {
			images = append(images, img.ImageURL)
		}
	}
	l.ImageURLs = images
	switch {
	case len(it.ThumbnailImages) > 0 && it.ThumbnailImages[0].ImageURL != "":
		l.ThumbnailURL = &it.ThumbnailImages[0].ImageURL
	case len(images) > 0:
		l.ThumbnailURL = &images[0]
	}

	if it.Seller != nil {
		l.SellerUsername = strPtr(it.Seller.Username)
		if pct, err := strconv.ParseFloat(it.Seller.FeedbackPercentage, 64); err == nil {
			rating := round2(pct) / 100
			l.SellerRating = &rating
		}
	}
	if it.ItemLocation != nil {
		l.SellerLocation = strPtr(it.ItemLocation.Country)
	}
	if t, err := time.Parse(time.RFC3339, it.ItemCreationDate); err == nil {
		l.ListedAt = &t
	}

	return l, nil
}
