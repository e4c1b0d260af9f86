// Package source fetches listings from third-party marketplaces and maps
// each vendor's payload onto [selvedge.Listing].
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/jdholdren/selvedge/internal/selvedge"
)

// Source is one marketplace.
//
// Fetch fails with an [*AdapterError] when the vendor is unreachable,
// unauthenticated or answers with something unreadable. Normalize never does
// I/O and fails with a [*NormalizationSkip] for a single unusable item.
type Source interface {
	Platform() selvedge.Platform
	Fetch(ctx context.Context, q Query) ([]RawItem, error)
	Normalize(item RawItem) (selvedge.Listing, error)
}

// Query is what a sync asks a marketplace for.
type Query struct {
	Keywords  string   `json:"keywords"`
	Limit     int      `json:"limit"`
	MinPrice  *float64 `json:"min_price,omitempty"`
	MaxPrice  *float64 `json:"max_price,omitempty"`
	Condition string   `json:"condition,omitempty"`
}

// RawItem is one item exactly as the vendor returned it.
type RawItem = json.RawMessage

// AdapterError means a whole fetch failed. It aborts the batch for that
// adapter only.
type AdapterError struct {
	Platform selvedge.Platform
	Op       string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter: %s: %s", e.Platform, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// NormalizationSkip means one item could not be mapped. It is counted, the
// batch continues.
type NormalizationSkip struct {
	Platform selvedge.Platform
	Reason   string
}

func (e *NormalizationSkip) Error() string {
	return fmt.Sprintf("%s item skipped: %s", e.Platform, e.Reason)
}

// IsAdapterError reports whether err came from a failed fetch.
func IsAdapterError(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae)
}

// Registry looks up the source for a platform.
type Registry map[selvedge.Platform]Source

func NewRegistry(sources ...Source) Registry {
	r := make(Registry, len(sources))
	for _, s := range sources {
		r[s.Platform()] = s
	}
	return r
}

func (r Registry) Get(p selvedge.Platform) (Source, bool) {
	s, ok := r[p]
	return s, ok
}

// Platforms lists the registered platforms in a stable order.
func (r Registry) Platforms() []selvedge.Platform {
	ps := make([]selvedge.Platform, 0, len(r))
	for p := range r {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
	return ps
}

// Largest error body we keep around for messages.
const maxErrBody = 512

// getJSON performs the request and decodes a 2xx JSON answer into dst.
func getJSON(client *http.Client, req *http.Request, dst any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error requesting %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return &statusError{Code: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}

	return nil
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("unauthenticated (%d): %s", e.Code, e.Body)
	}
	return fmt.Sprintf("unexpected status code %d: %s", e.Code, e.Body)
}
