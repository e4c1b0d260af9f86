package errors_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	selerrs "github.com/jdholdren/selvedge/internal/errors"
)

func TestEConstructor(t *testing.T) {
	got := selerrs.E(
		"platform must be one of ebay, etsy, reddit, all",
		selerrs.CodeInvalidPlatform,
		selerrs.Detail{Field: "platform", Error: "unknown value"},
		http.StatusBadRequest,
	)
	want := &selerrs.Error{
		Err:  errors.New("platform must be one of ebay, etsy, reddit, all"),
		Code: selerrs.CodeInvalidPlatform,
		Details: []selerrs.Detail{
			{Field: "platform", Error: "unknown value"},
		},
		Status: http.StatusBadRequest,
	}

	assert.Equal(t, want, got)
}

func TestERoundTripsThroughJSON(t *testing.T) {
	orig := selerrs.E("listing not found", selerrs.CodeNotFound, http.StatusNotFound)

	byts, err := json.Marshal(orig)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"listing not found","code":"not_found","status":404}`, string(byts))

	var got selerrs.Error
	require.NoError(t, json.Unmarshal(byts, &got))
	assert.Equal(t, http.StatusNotFound, got.Status)
	assert.Equal(t, selerrs.CodeNotFound, got.Code)
	assert.EqualError(t, got.Err, "listing not found")
}

func TestStatusOf(t *testing.T) {
	wrapped := fmt.Errorf("handling trigger: %w", selerrs.E("bad", http.StatusBadRequest))

	assert.Equal(t, http.StatusBadRequest, selerrs.StatusOf(wrapped))
	assert.Equal(t, http.StatusInternalServerError, selerrs.StatusOf(errors.New("boom")))
}
