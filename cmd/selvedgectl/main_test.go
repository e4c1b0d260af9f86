package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/selvedge/internal/trend"
)

// runCLI executes the root command in-process against a scratch database.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	t.Setenv("DATABASE", filepath.Join(t.TempDir(), "selvedge.db"))
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	_, err := runCLI(t, "migrate")
	assert.NoError(t, err)
}

func TestTrends_EmptyDay(t *testing.T) {
	out, err := runCLI(t, "trends", "--day", "2024-03-14")
	require.NoError(t, err)

	var res trend.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, trend.StatusNoData, res.Status)
	assert.Zero(t, res.ListingsAnalyzed)
	assert.Equal(t, "2024-03-14", res.PeriodStart.Format("2006-01-02"))
}

func TestTrends_BadDay(t *testing.T) {
	_, err := runCLI(t, "trends", "--day", "yesterday")
	assert.ErrorContains(t, err, "--day")
}

func TestSync_Validation(t *testing.T) {
	_, err := runCLI(t, "sync", "poshmark")
	assert.ErrorContains(t, err, "unknown platform")

	// No credentials configured for any marketplace
	t.Setenv("ETSY_API_KEY", "")
	_, err = runCLI(t, "sync", "etsy")
	assert.ErrorContains(t, err, "no credentials configured")

	for _, k := range []string{"EBAY_CLIENT_ID", "EBAY_CLIENT_SECRET", "REDDIT_CLIENT_ID", "REDDIT_CLIENT_SECRET"} {
		t.Setenv(k, "")
	}
	_, err = runCLI(t, "sync", "all")
	assert.ErrorContains(t, err, "no platform has credentials configured")
}

func TestEnrich_MissingListing(t *testing.T) {
	_, err := runCLI(t, "enrich", "nope-lst")
	assert.ErrorContains(t, err, "not found")
}
