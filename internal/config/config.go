// Package config holds the environment configuration shared by the binaries.
//
// Each binary embeds the groups it needs in its own struct and calls [Load].
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-retry"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"github.com/jdholdren/selvedge/internal/catalog"
	"github.com/jdholdren/selvedge/internal/enrich"
	"github.com/jdholdren/selvedge/internal/logger"
	"github.com/jdholdren/selvedge/internal/source"
	"github.com/jdholdren/selvedge/internal/worker"
)

// Load reads an optional .env file into the environment, then processes v.
func Load(ctx context.Context, v any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading .env: %s", err)
	}

	return envconfig.Process(ctx, v)
}

type Database struct {
	Path string `env:"DATABASE, default=selvedge.db"`
}

type Temporal struct {
	HostPort  string `env:"TEMPORAL_HOST_PORT, default=localhost:7233"`
	Namespace string `env:"TEMPORAL_NAMESPACE, default=default"`
}

// Dial connects to temporal, retrying until it is reachable or ctx is done.
func (t Temporal) Dial(ctx context.Context) (client.Client, error) {
	var cli client.Client
	err := retry.Fibonacci(ctx, time.Second, func(ctx context.Context) error {
		c, err := client.Dial(client.Options{
			HostPort:  t.HostPort,
			Namespace: t.Namespace,
			Logger:    tlog.NewStructuredLogger(slog.Default()),
		})
		if err != nil {
			slog.WarnContext(ctx, "temporal not reachable yet", "host_port", t.HostPort, "error", err)
			return retry.RetryableError(err)
		}
		cli = c

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create temporal client: %s", err)
	}

	return cli, nil
}

type Log struct {
	// Which format to use for logging: either text or json
	Format string `env:"LOG_FORMAT, default=text"`
	Level  string `env:"LOG_LEVEL, default=info"`
}

// SetDefault installs the process logger and returns it.
func (l Log) SetDefault() *slog.Logger {
	lg := logger.New(os.Stderr, l.Format, l.Level)
	slog.SetDefault(lg)
	return lg
}

type Sync struct {
	SyncInterval     time.Duration `env:"SYNC_INTERVAL, default=6h"`
	SyncMaxRetries   int           `env:"SYNC_MAX_RETRIES, default=3"`
	SyncRetryDelay   time.Duration `env:"SYNC_RETRY_DELAY, default=60s"`
	SyncJobRetention time.Duration `env:"SYNC_JOB_RETENTION, default=720h"`
	DefaultKeywords  string        `env:"SYNC_DEFAULT_KEYWORDS, default=vintage jeans"`
	DefaultLimit     int           `env:"SYNC_DEFAULT_LIMIT, default=100"`
}

func (s Sync) Worker() worker.Config {
	return worker.Config{
		SyncInterval:    s.SyncInterval,
		SyncAttempts:    s.SyncMaxRetries + 1,
		SyncRetryDelay:  s.SyncRetryDelay,
		JobRetention:    s.SyncJobRetention,
		DefaultKeywords: s.DefaultKeywords,
		DefaultLimit:    s.DefaultLimit,
	}
}

// Vendors are the marketplace credentials. A marketplace without
// credentials gets no adapter.
type Vendors struct {
	EbayClientID     string `env:"EBAY_CLIENT_ID"`
	EbayClientSecret string `env:"EBAY_CLIENT_SECRET"`
	EbayBaseURL      string `env:"EBAY_BASE_URL"`

	EtsyAPIKey  string `env:"ETSY_API_KEY"`
	EtsyBaseURL string `env:"ETSY_BASE_URL"`

	RedditClientID     string `env:"REDDIT_CLIENT_ID"`
	RedditClientSecret string `env:"REDDIT_CLIENT_SECRET"`
	RedditUserAgent    string `env:"REDDIT_USER_AGENT, default=selvedge/1.0"`

	CatalogFile string `env:"CATALOG_FILE"`
}

// Registry builds an adapter for every marketplace that has credentials.
func (v Vendors) Registry() (source.Registry, error) {
	cat := catalog.Default()
	if v.CatalogFile != "" {
		var err error
		if cat, err = catalog.Load(v.CatalogFile); err != nil {
			return nil, err
		}
	}

	client := &http.Client{Timeout: 30 * time.Second}

	var sources []source.Source
	if v.EbayClientID != "" && v.EbayClientSecret != "" {
		sources = append(sources, source.NewEbay(source.EbayConfig{
			ClientID:     v.EbayClientID,
			ClientSecret: v.EbayClientSecret,
			BaseURL:      v.EbayBaseURL,
		}, cat, client))
	}
	if v.EtsyAPIKey != "" {
		sources = append(sources, source.NewEtsy(source.EtsyConfig{
			APIKey:  v.EtsyAPIKey,
			BaseURL: v.EtsyBaseURL,
		}, cat, client))
	}
	if v.RedditClientID != "" && v.RedditClientSecret != "" {
		sources = append(sources, source.NewReddit(source.RedditConfig{
			ClientID:     v.RedditClientID,
			ClientSecret: v.RedditClientSecret,
			UserAgent:    v.RedditUserAgent,
		}, cat, client))
	}
	if len(sources) == 0 {
		slog.Warn("no marketplace credentials configured, syncs will fail")
	}

	return source.NewRegistry(sources...), nil
}

type Enrichment struct {
	AnthropicAPIKey   string `env:"ANTHROPIC_API_KEY"`
	EnrichmentEnabled bool   `env:"ENRICHMENT_ENABLED, default=true"`
}

// Enricher builds the enricher. Without a key every enrichment reports disabled.
func (e Enrichment) Enricher(store enrich.Store) enrich.Enricher {
	if e.AnthropicAPIKey == "" {
		return enrich.New(store, nil, false)
	}

	client := anthropic.NewClient(option.WithAPIKey(e.AnthropicAPIKey))
	return enrich.New(store, &client.Beta.Messages, e.EnrichmentEnabled)
}
