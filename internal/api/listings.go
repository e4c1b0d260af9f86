package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	selerrs "github.com/jdholdren/selvedge/internal/errors"
	"github.com/jdholdren/selvedge/internal/selvedge"
	"github.com/jdholdren/selvedge/internal/serverutil"
)

var sortFields = map[string]bool{
	"created_at":  true,
	"price":       true,
	"trend_score": true,
}

type ListingListResp struct {
	Listings   []selvedge.Listing `json:"listings"`
	Pagination paginationMeta     `json:"pagination"`
}

func (s Server) getListings(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()

	f := selvedge.ListingFilter{
		Brand:     query.Get("brand"),
		Condition: query.Get("condition"),
		Size:      query.Get("size"),
		SortBy:    query.Get("sort_by"),
		SortOrder: query.Get("sort_order"),
	}
	f.Limit, f.Offset = parsePaginationParams(r, 50, 200)

	if p := query.Get("platform"); p != "" {
		platform, ok := selvedge.ParsePlatform(p)
		if !ok {
			return invalidPlatform(p)
		}
		f.Platform = platform
	}
	if f.SortBy == "" {
		f.SortBy = "created_at"
	}
	if !sortFields[f.SortBy] {
		return selerrs.E("sort_by must be one of created_at, price, trend_score", http.StatusBadRequest)
	}
	if f.SortOrder == "" {
		f.SortOrder = "desc"
	}
	if f.SortOrder != "asc" && f.SortOrder != "desc" {
		return selerrs.E("sort_order must be asc or desc", http.StatusBadRequest)
	}

	var err error
	if f.MinPrice, err = parsePrice(query.Get("min_price"), "min_price"); err != nil {
		return err
	}
	if f.MaxPrice, err = parsePrice(query.Get("max_price"), "max_price"); err != nil {
		return err
	}

	listings, total, err := s.repo.Listings(r.Context(), f)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, ListingListResp{
		Listings:   listings,
		Pagination: calculatePaginationMeta(f.Limit, f.Offset, total),
	})
}

func parsePrice(raw, field string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return nil, selerrs.E(
			fmt.Sprintf("%s must be a non-negative number", field),
			selerrs.Detail{Field: field, Error: "invalid number"},
			http.StatusBadRequest,
		)
	}
	return &v, nil
}

type ListingSearchResp struct {
	Query    string             `json:"query"`
	Listings []selvedge.Listing `json:"listings"`
	Count    int                `json:"count"`
}

func (s Server) getListingSearch(w http.ResponseWriter, r *http.Request) error {
	keywords := mux.Vars(r)["keywords"]
	limit, _ := parsePaginationParams(r, 50, 100)

	listings, err := s.repo.SearchListings(r.Context(), keywords, limit)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, ListingSearchResp{
		Query:    keywords,
		Listings: listings,
		Count:    len(listings),
	})
}

func (s Server) getListing(w http.ResponseWriter, r *http.Request) error {
	listing, err := s.repo.Listing(r.Context(), mux.Vars(r)["listingID"])
	if errors.Is(err, selvedge.ErrNotFound) {
		return selerrs.E("listing not found", selerrs.CodeNotFound, http.StatusNotFound)
	}
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, listing)
}

// Kicks off enrichment of a single listing on the worker.
func (s Server) postAnalyze(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	listingID := mux.Vars(r)["listingID"]

	if _, err := s.repo.Listing(ctx, listingID); errors.Is(err, selvedge.ErrNotFound) {
		return selerrs.E("listing not found", selerrs.CodeNotFound, http.StatusNotFound)
	} else if err != nil {
		return err
	}

	handle, err := s.tasks.TriggerEnrichment(ctx, listingID)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusAccepted, handle)
}
