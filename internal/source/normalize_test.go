package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *float64
	}{
		{name: "thousands and cents", input: "WTS Big E 501 $1,234.56 shipped", want: ptr(1234.56)},
		{name: "plain", input: "asking $45", want: ptr(45.0)},
		{name: "space after sign", input: "$ 80.00 obo", want: ptr(80.0)},
		{name: "no separator", input: "$1234 firm", want: ptr(1234.0)},
		{name: "first match wins", input: "$60 or $55 local", want: ptr(60.0)},
		{name: "no dollar sign", input: "selling for 45 bucks", want: nil},
		{name: "empty", input: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractPrice(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 0.0001)
		})
	}
}

func TestExtractBrand(t *testing.T) {
	brands := []string{"Levi's", "Lee", "Wrangler"}

	assert.Equal(t, "Levi's", *ExtractBrand("vintage LEVI'S 505 orange tab", brands))
	assert.Equal(t, "Wrangler", *ExtractBrand("wrangler cowboy cut", brands))
	// list order decides, not position in the text
	assert.Equal(t, "Levi's", *ExtractBrand("Lee or Levi's?", brands))
	assert.Nil(t, ExtractBrand("unbranded work pants", brands))
	assert.Nil(t, ExtractBrand("anything", nil))
}

func TestEngagementScore(t *testing.T) {
	assert.Equal(t, 0.0, EngagementScore(0, 0))
	assert.Equal(t, 100.0, EngagementScore(100, 50))
	assert.Equal(t, 100.0, EngagementScore(5000, 900))
	assert.Equal(t, 0.0, EngagementScore(-20, -1))
	assert.Equal(t, 41.0, EngagementScore(50, 10))
	assert.Equal(t, 0.6, EngagementScore(0, 1))
}

func TestEngagementScore_MonotonicAndBounded(t *testing.T) {
	for up := -10; up <= 150; up += 7 {
		for c := -5; c <= 80; c += 3 {
			s := EngagementScore(up, c)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 100.0)
			assert.GreaterOrEqual(t, EngagementScore(up+1, c), s)
			assert.GreaterOrEqual(t, EngagementScore(up, c+1), s)
		}
	}
}

func TestSanitize(t *testing.T) {
	got := sanitize("  <p>Raw <b>selvedge</b> &amp; chain stitch</p> ", 100)
	require.NotNil(t, got)
	assert.Equal(t, "Raw selvedge & chain stitch", *got)

	assert.Nil(t, sanitize("   ", 100))
	assert.Equal(t, "abc", *sanitize("abcdef", 3))

	// Entity encoded markup is stripped, not revived
	for _, in := range []string{
		"&lt;script&gt;alert(1)&lt;/script&gt; <b>501s</b>",
		"&amp;lt;img src=x onerror=alert(1)&amp;gt;501s",
		"<<b>script>alert(1)<</b>/script> 501s",
	} {
		got := sanitize(in, 500)
		require.NotNil(t, got, in)
		assert.NotContains(t, *got, "<", in)
		assert.Contains(t, *got, "501s", in)
	}

	// Plain text comparisons survive
	assert.Equal(t, "W32 < W34", *sanitize("W32 &lt; W34", 100))
}

func ptr[T any](v T) *T { return &v }
