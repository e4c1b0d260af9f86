package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/selvedge/internal/catalog"
	"github.com/jdholdren/selvedge/internal/selvedge"
)

const testEtsySearch = `{
  "count": 2,
  "results": [
    {
      "listing_id": 987654,
      "title": "90s Wrangler &quot;Cowboy Cut&quot; jeans",
      "description": "<p>Faded <i>indigo</i>, W32 L34</p>",
      "state": "active",
      "price": {"amount": 6500, "divisor": 100, "currency_code": "EUR"},
      "views": 120,
      "num_favorers": 14,
      "created_timestamp": 1767225600,
      "images": [
        {"url_fullxfull": "https://i.etsystatic.com/full1.jpg", "url_570xN": "https://i.etsystatic.com/570.jpg"},
        {"url_fullxfull": "https://i.etsystatic.com/full2.jpg"}
      ],
      "shop": {"shop_name": "DustyDenim", "city": "Austin"}
    },
    {
      "listing_id": 5,
      "title": "odd price",
      "price": {"amount": 1999, "divisor": 0}
    }
  ]
}`

func TestEtsy_FetchAndNormalize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/application/listings/active", r.URL.Path)
		assert.Equal(t, "etsy-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "vintage jeans", r.URL.Query().Get("keywords"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "Images,Shop", r.URL.Query().Get("includes"))
		assert.Equal(t, "score", r.URL.Query().Get("sort_on"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(testEtsySearch))
	}))
	defer srv.Close()

	e := NewEtsy(EtsyConfig{APIKey: "etsy-key", BaseURL: srv.URL}, catalog.Default(), nil)
	items, err := e.Fetch(context.Background(), Query{Keywords: "vintage jeans", Limit: 1000})
	require.NoError(t, err)
	require.Len(t, items, 2)

	l, err := e.Normalize(items[0])
	require.NoError(t, err)
	assert.Equal(t, selvedge.PlatformEtsy, l.Platform)
	assert.Equal(t, "987654", l.ExternalID)
	assert.Equal(t, `90s Wrangler "Cowboy Cut" jeans`, l.Title)
	assert.Equal(t, "Faded indigo, W32 L34", *l.Description)
	assert.Equal(t, 65.0, *l.Price)
	assert.Equal(t, "EUR", l.Currency)
	assert.Equal(t, "Wrangler", *l.Brand)
	assert.Equal(t, "vintage", *l.Condition)
	assert.Equal(t, selvedge.StringList{"https://i.etsystatic.com/full1.jpg", "https://i.etsystatic.com/full2.jpg"}, l.ImageURLs)
	assert.Equal(t, "https://i.etsystatic.com/570.jpg", *l.ThumbnailURL)
	assert.Equal(t, "DustyDenim", *l.SellerUsername)
	assert.Equal(t, "Austin", *l.SellerLocation)
	assert.Equal(t, "https://www.etsy.com/listing/987654", l.URL)
	assert.Equal(t, 120, l.ViewCount)
	assert.Equal(t, 14, l.WatchCount)
	assert.Equal(t, 14, l.FavoriteCount)
	require.NotNil(t, l.ListedAt)
	assert.Equal(t, int64(1767225600), l.ListedAt.Unix())

	odd, err := e.Normalize(items[1])
	require.NoError(t, err)
	assert.Equal(t, 19.99, *odd.Price)
	assert.Equal(t, "USD", odd.Currency)
}

func TestEtsy_AdapterErrors(t *testing.T) {
	e := NewEtsy(EtsyConfig{}, catalog.Default(), nil)
	_, err := e.Fetch(context.Background(), Query{Keywords: "jeans"})
	assert.True(t, IsAdapterError(err))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	e = NewEtsy(EtsyConfig{APIKey: "revoked", BaseURL: srv.URL}, catalog.Default(), nil)
	_, err = e.Fetch(context.Background(), Query{Keywords: "jeans"})
	require.True(t, IsAdapterError(err))
	assert.Contains(t, err.Error(), "unauthenticated")
}

func TestEtsy_NormalizeSkipsMissingID(t *testing.T) {
	e := NewEtsy(EtsyConfig{APIKey: "k"}, catalog.Default(), nil)

	_, err := e.Normalize(RawItem(`{"title":"no id"}`))
	var skip *NormalizationSkip
	assert.ErrorAs(t, err, &skip)
}
