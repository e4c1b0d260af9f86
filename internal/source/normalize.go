package source

import (
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// A dollar sign, then either comma grouped thousands or a plain run of digits,
// then an optional two digit decimal part.
var priceRe = regexp.MustCompile(`\$\s*((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?)`)

// ExtractPrice returns the first dollar amount in free text, or nil.
func ExtractPrice(text string) *float64 {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

// ExtractBrand returns the first brand of the list that appears in text,
// ignoring case, or nil.
func ExtractBrand(text string, brands []string) *string {
	lower := strings.ToLower(text)
	for _, b := range brands {
		if b == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(b)) {
			brand := b
			return &brand
		}
	}
	return nil
}

// EngagementScore weighs upvotes (70) and comments (30), each saturating at
// 100 upvotes and 50 comments. The result is in [0, 100] with two decimals.
func EngagementScore(upvotes, comments int) float64 {
	up := math.Min(math.Max(float64(upvotes), 0)/100, 1)
	cm := math.Min(math.Max(float64(comments), 0)/50, 1)

	return round2(up*70 + cm*30)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var stripPolicy = bluemonday.StrictPolicy()

// Removes all html from a description and caps its length in runes.
// A blank result is nil.
func sanitize(s string, max int) *string {
	s = strings.TrimSpace(stripHTML(s))
	if s == "" {
		return nil
	}

	s = truncate(s, max)
	return &s
}

// stripHTML returns plain text. Markup can hide behind entities, so stripping and
// decoding repeat until the text stops changing. Text that never settles stays escaped.
func stripHTML(s string) string {
	for range 4 {
		next := html.UnescapeString(stripPolicy.Sanitize(s))
		if next == s {
			return s
		}
		s = next
	}
	return stripPolicy.Sanitize(s)
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func strPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
