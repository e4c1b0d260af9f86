// Package enrich asks Claude for the structured attributes of a listing and
// writes them back onto it.
package enrich

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jdholdren/selvedge/internal/selvedge"
)

//go:embed system_prompt.txt
var systemPrompt string

//go:embed user_prompt.txt
var userPrompt string

const (
	StatusCompleted = "completed"
	StatusDisabled  = "disabled"
	StatusFailed    = "failed"
)

// ErrRateLimited is returned when the model api asks us to back off.
// It is the only error worth retrying.
var ErrRateLimited = errors.New("model rate limit hit")

// Result is the outcome of enriching one listing.
type Result struct {
	ListingID string    `json:"listing_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Analysis  *Analysis `json:"analysis,omitempty"`
}

// Analysis is the structured answer of the model.
type Analysis struct {
	Brand        string   `json:"brand"`
	Size         string   `json:"size"`
	InseamLength string   `json:"inseam_length"`
	Style        string   `json:"style"`
	Wash         string   `json:"wash"`
	Era          string   `json:"era"`
	Condition    string   `json:"condition"`
	Tags         []string `json:"tags"`
	Summary      string   `json:"summary"`
}

// Use a schema to constrain the output
var (
	outputSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"brand":         map[string]any{"type": "string"},
			"size":          map[string]any{"type": "string"},
			"inseam_length": map[string]any{"type": "string"},
			"style":         map[string]any{"type": "string"},
			"wash":          map[string]any{"type": "string"},
			"era":           map[string]any{"type": "string"},
			"condition":     map[string]any{"type": "string"},
			"tags":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"summary":       map[string]any{"type": "string"},
		},
		"required": []string{
			"brand", "size", "inseam_length", "style", "wash", "era", "condition", "tags", "summary",
		},
		"additionalProperties": false,
	}
	outputFormat = anthropic.BetaJSONSchemaOutputFormat(outputSchema)
)

// Messenger is the part of the anthropic client used here;
// *anthropic.BetaMessageService satisfies it.
type Messenger interface {
	New(ctx context.Context, params anthropic.BetaMessageNewParams, opts ...option.RequestOption) (*anthropic.BetaMessage, error)
}

// Store is the slice of the repository enrichment needs.
type Store interface {
	Listing(ctx context.Context, id string) (selvedge.Listing, error)
	PatchEnrichment(ctx context.Context, id string, p selvedge.EnrichmentPatch) error
}

type Enricher struct {
	store     Store
	claude    Messenger
	enabled   bool
	maxTokens int64
}

// New builds an enricher. A nil messenger or enabled=false makes every call
// report [StatusDisabled].
func New(store Store, claude Messenger, enabled bool) Enricher {
	return Enricher{
		store:     store,
		claude:    claude,
		enabled:   enabled && claude != nil,
		maxTokens: 1024,
	}
}

// Enrich analyzes one listing and patches it.
//
// Configuration and model problems come back as a Result with status disabled
// or failed. Errors are returned only for a missing listing
// ([selvedge.ErrNotFound]), a rate limit ([ErrRateLimited]) or a store failure.
func (e Enricher) Enrich(ctx context.Context, listingID string) (Result, error) {
	res := Result{ListingID: listingID}

	listing, err := e.store.Listing(ctx, listingID)
	if err != nil {
		return res, err
	}
	if !e.enabled {
		res.Status = StatusDisabled
		return res, nil
	}

	resp, err := e.claude.New(ctx, anthropic.BetaMessageNewParams{
		Model: anthropic.ModelClaudeHaiku4_5,
		Betas: []anthropic.AnthropicBeta{
			"structured-outputs-2025-11-13",
		},
		MaxTokens:    e.maxTokens,
		OutputFormat: outputFormat,
		System: []anthropic.BetaTextBlockParam{{
			Text: systemPrompt,
		}},
		Messages: []anthropic.BetaMessageParam{
			anthropic.NewBetaUserMessage(anthropic.NewBetaTextBlock(buildPrompt(listing))),
		},
	})
	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) && claudeErr.StatusCode == http.StatusTooManyRequests {
		return res, ErrRateLimited
	}
	if err != nil {
		slog.ErrorContext(ctx, "claude call failed", "listing_id", listingID, "error", err)
		res.Status = StatusFailed
		res.Error = err.Error()
		return res, nil
	}

	var text strings.Builder
	for _, content := range resp.Content {
		text.WriteString(content.Text)
	}
	var analysis Analysis
	if err := json.Unmarshal([]byte(text.String()), &analysis); err != nil {
		res.Status = StatusFailed
		res.Error = fmt.Sprintf("error unmarshaling claude json: %s", err)
		return res, nil
	}

	if err := e.store.PatchEnrichment(ctx, listingID, Patch(analysis, listing)); err != nil {
		return res, fmt.Errorf("error saving enrichment: %w", err)
	}

	res.Status = StatusCompleted
	res.Analysis = &analysis
	return res, nil
}

const promptDescriptionMax = 500

func buildPrompt(l selvedge.Listing) string {
	desc := ""
	if l.Description != nil {
		desc = *l.Description
		if r := []rune(desc); len(r) > promptDescriptionMax {
			desc = string(r[:promptDescriptionMax])
		}
	}
	price := "unknown"
	if l.Price != nil {
		price = fmt.Sprintf("%.2f %s", *l.Price, l.Currency)
	}

	return fmt.Sprintf(userPrompt, l.Title, desc, price)
}

// Patch maps the model's answer onto the listing's fields.
//
// Sizes that are not plain numbers are dropped. An empty condition keeps the
// listing's current one.
func Patch(a Analysis, current selvedge.Listing) selvedge.EnrichmentPatch {
	p := selvedge.EnrichmentPatch{
		Brand:        nonEmpty(a.Brand),
		Size:         nonEmpty(a.Size),
		WaistSize:    digits(a.Size),
		InseamLength: digits(a.InseamLength),
		Style:        nonEmpty(a.Style),
		Wash:         nonEmpty(a.Wash),
		Era:          nonEmpty(a.Era),
		Condition:    nonEmpty(a.Condition),
		Summary:      nonEmpty(a.Summary),
		Tags:         selvedge.StringList(a.Tags),
	}
	if p.Condition == nil {
		p.Condition = current.Condition
	}
	if p.Tags == nil {
		p.Tags = selvedge.StringList{}
	}

	return p
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// digits parses s only when it is made of ascii digits.
func digits(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
