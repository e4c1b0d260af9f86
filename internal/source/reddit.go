package source

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jdholdren/selvedge/internal/catalog"
	"github.com/jdholdren/selvedge/internal/selvedge"
)

const (
	redditDefaultBaseURL  = "https://oauth.reddit.com"
	redditDefaultTokenURL = "https://www.reddit.com/api/v1/access_token"
	redditMaxLimit        = 100
	redditDescriptionMax  = 500
)

type RedditConfig struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	BaseURL      string
	TokenURL     string
}

// Reddit searches a fixed set of subreddits for posts about denim.
type Reddit struct {
	baseURL    string
	userAgent  string
	configured bool
	client     *http.Client

	brands     []string
	subreddits []string
	saleWords  []string
}

func NewReddit(cfg RedditConfig, cat catalog.Catalog, base *http.Client) *Reddit {
	if cfg.BaseURL == "" {
		cfg.BaseURL = redditDefaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = redditDefaultTokenURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "selvedge/1.0"
	}

	return &Reddit{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		configured: cfg.ClientID != "" && cfg.ClientSecret != "",
		client: tokenClient(base, clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}),
		brands:     cat.Brands,
		subreddits: cat.Subreddits,
		saleWords:  cat.MarketplaceKeywords,
	}
}

func (r *Reddit) Platform() selvedge.Platform { return selvedge.PlatformReddit }

type redditListing struct {
	Data struct {
		Children []struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch splits the limit evenly across subreddits. A subreddit that fails is
// logged and skipped; the fetch fails only when every subreddit did.
func (r *Reddit) Fetch(ctx context.Context, q Query) ([]RawItem, error) {
	if !r.configured {
		return nil, &AdapterError{Platform: selvedge.PlatformReddit, Op: "fetch", Err: errors.New("missing client credentials")}
	}
	if len(r.subreddits) == 0 {
		return nil, &AdapterError{Platform: selvedge.PlatformReddit, Op: "fetch", Err: errors.New("no subreddits configured")}
	}

	perSub := q.Limit / len(r.subreddits)
	if perSub < 1 {
		perSub = 1
	}
	if perSub > redditMaxLimit {
		perSub = redditMaxLimit
	}

	var (
		items   []RawItem
		seen    = make(map[string]struct{})
		lastErr error
		okCount int
	)
	for _, sub := range r.subreddits {
		posts, err := r.search(ctx, sub, q.Keywords, perSub)
		if err != nil {
			slog.WarnContext(ctx, "subreddit search failed", "subreddit", sub, "error", err)
			lastErr = err
			continue
		}
		okCount++

		for _, p := range posts {
			var id struct {
				ID string `json:"id"`
			}
			// Subreddit names are case-insensitive, the same post can come back twice.
			if json.Unmarshal(p, &id) == nil && id.ID != "" {
				if _, dup := seen[id.ID]; dup {
					continue
				}
				seen[id.ID] = struct{}{}
			}
			items = append(items, p)
		}
	}
	if okCount == 0 {
		return nil, &AdapterError{Platform: selvedge.PlatformReddit, Op: "search", Err: lastErr}
	}

	return items, nil
}

func (r *Reddit) search(ctx context.Context, subreddit, keywords string, limit int) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("q", keywords)
	params.Set("restrict_sr", "1")
	params.Set("sort", "new")
	params.Set("t", "week")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("raw_json", "1")

	u := r.baseURL + path.Join("/r", url.PathEscape(subreddit), "search") + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.userAgent)

	var listing redditListing
	if err := getJSON(r.client, req, &listing); err != nil {
		return nil, err
	}

	posts := make([]json.RawMessage, 0, len(listing.Data.Children))
	for _, c := range listing.Data.Children {
		if c.Kind == "t3" {
			posts = append(posts, c.Data)
		}
	}
	return posts, nil
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
	Preview     *struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

func (r *Reddit) Normalize(item RawItem) (selvedge.Listing, error) {
	var p redditPost
	if err := json.Unmarshal(item, &p); err != nil {
		return selvedge.Listing{}, &NormalizationSkip{Platform: selvedge.PlatformReddit, Reason: err.Error()}
	}
	if p.ID == "" {
		return selvedge.Listing{}, &NormalizationSkip{Platform: selvedge.PlatformReddit, Reason: "missing id"}
	}

	text := p.Title + " " + p.Selftext
	score := EngagementScore(p.Score, p.NumComments)
	author := p.Author
	if author == "" {
		author = "[deleted]"
	}

	l := selvedge.Listing{
		Platform:       selvedge.PlatformReddit,
		ExternalID:     p.ID,
		URL:            "https://reddit.com" + p.Permalink,
		Title:          p.Title,
		Description:    sanitize(p.Selftext, redditDescriptionMax),
		Price:          ExtractPrice(text),
		Currency:       "USD",
		Brand:          ExtractBrand(text, r.brands),
		SellerUsername: &author,
		SellerLocation: strPtr("r/" + p.Subreddit),
		Status:         selvedge.ListingStatusRemoved,
		WatchCount:     p.NumComments,
		FavoriteCount:  p.Score,
		TrendScore:     &score,
		ImageURLs:      selvedge.StringList{},
		RawData:        selvedge.RawJSON(item),
	}
	if p.Subreddit == "" {
		l.SellerLocation = nil
	}
	if p.Permalink == "" {
		l.URL = "https://reddit.com/comments/" + p.ID
	}
	if r.isForSale(p.Title) {
		l.Status = selvedge.ListingStatusActive
	}
	if img := redditImage(p); img != "" {
		l.ImageURLs = selvedge.StringList{img}
		l.ThumbnailURL = &img
	}
	if p.CreatedUTC > 0 {
		t := time.Unix(int64(p.CreatedUTC), 0).UTC()
		l.ListedAt = &t
	}

	return l, nil
}

func (r *Reddit) isForSale(title string) bool {
	lower := strings.ToLower(title)
	for _, w := range r.saleWords {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif"}

func redditImage(p redditPost) string {
	lower := strings.ToLower(p.URL)
	for _, ext := range imageExts {
		if strings.HasSuffix(lower, ext) {
			return p.URL
		}
	}
	if p.Preview != nil && len(p.Preview.Images) > 0 {
		return strings.ReplaceAll(p.Preview.Images[0].Source.URL, "&amp;", "&")
	}
	return ""
}
