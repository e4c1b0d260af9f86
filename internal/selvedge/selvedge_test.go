package selvedge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	for _, s := range []string{"ebay", "etsy", "reddit", "manual", "all"} {
		p, ok := ParsePlatform(s)
		assert.True(t, ok, s)
		assert.Equal(t, Platform(s), p)
	}

	for _, s := range []string{"", "EBAY", "poshmark"} {
		_, ok := ParsePlatform(s)
		assert.False(t, ok, s)
	}
}

func TestSyncStatsAdd(t *testing.T) {
	s := SyncStats{Fetched: 3, Added: 1, Updated: 1, Failed: 1}
	s.Add(SyncStats{Fetched: 2, Added: 2})

	assert.Equal(t, SyncStats{Fetched: 5, Added: 3, Updated: 1, Failed: 1}, s)
}

func TestStringList(t *testing.T) {
	v, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	v, err = StringList{"selvedge", "big e"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["selvedge","big e"]`, v)

	var got StringList
	require.NoError(t, got.Scan([]byte(`["raw","rigid"]`)))
	assert.Equal(t, StringList{"raw", "rigid"}, got)

	require.NoError(t, got.Scan(nil))
	assert.Nil(t, got)

	assert.Error(t, got.Scan(42))
}

func TestRawJSON(t *testing.T) {
	var r RawJSON
	require.NoError(t, r.Scan(`{"itemId":"v1|1|0"}`))

	byts, err := json.Marshal(struct {
		Raw RawJSON `json:"raw"`
	}{Raw: r})
	require.NoError(t, err)
	assert.JSONEq(t, `{"raw":{"itemId":"v1|1|0"}}`, string(byts))

	v, err := RawJSON(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
