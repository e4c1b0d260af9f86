package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdholdren/selvedge/internal/ingest"
	"github.com/jdholdren/selvedge/internal/selvedge"
	"github.com/jdholdren/selvedge/internal/source"
	"github.com/jdholdren/selvedge/internal/trend"
	"github.com/jdholdren/selvedge/internal/worker"
)

func migrateCmd(c *cfg) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply all database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, dbx, err := openRepo(c)
			if err != nil {
				return err
			}
			return dbx.Close()
		},
	}
}

func syncCmd(c *cfg) *cobra.Command {
	q := source.Query{}
	cmd := &cobra.Command{
		Use:   "sync <ebay|etsy|reddit|all>",
		Short: "Fetch listings from a marketplace and upsert them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			platform, ok := selvedge.ParsePlatform(args[0])
			if !ok || platform == selvedge.PlatformManual {
				return fmt.Errorf("unknown platform %q", args[0])
			}
			repo, dbx, err := openRepo(c)
			if err != nil {
				return err
			}
			defer dbx.Close()

			sources, err := c.Vendors.Registry()
			if err != nil {
				return err
			}

			platforms := []selvedge.Platform{platform}
			if platform == selvedge.PlatformAll {
				platforms = sources.Platforms()
				if len(platforms) == 0 {
					return errors.New("no platform has credentials configured")
				}
			}

			results := map[selvedge.Platform]worker.PlatformResult{}
			var failed []error
			for _, p := range platforms {
				src, ok := sources.Get(p)
				if !ok {
					failed = append(failed, fmt.Errorf("%s: no credentials configured", p))
					continue
				}

				job, err := repo.InsertSyncJob(ctx, selvedge.SyncJob{Platform: p, WorkflowID: "selvedgectl"})
				if err != nil {
					return err
				}
				stats, syncErr := ingest.Run(ctx, src, repo, q)

				finish := selvedge.FinishSyncJobArgs{Status: selvedge.SyncJobStatusCompleted, Stats: stats}
				res := worker.PlatformResult{Status: selvedge.SyncJobStatusCompleted, Stats: stats}
				if syncErr != nil {
					finish.Status = selvedge.SyncJobStatusFailed
					finish.ErrorMessage = syncErr.Error()
					res = worker.PlatformResult{Status: selvedge.SyncJobStatusFailed, Error: syncErr.Error()}
					failed = append(failed, syncErr)
				}
				if _, err := repo.FinishSyncJob(ctx, job.ID, finish); err != nil {
					return err
				}
				results[p] = res
			}

			if err := printJSON(cmd, results); err != nil {
				return err
			}
			if len(failed) == len(platforms) {
				return errors.Join(failed...)
			}
			for _, err := range failed {
				slog.Warn("platform sync failed", "error", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&q.Keywords, "keywords", worker.DefaultKeywords, "search keywords")
	cmd.Flags().IntVar(&q.Limit, "limit", worker.DefaultLimit, "maximum listings to fetch per platform")
	cmd.Flags().StringVar(&q.Condition, "condition", "", "condition filter passed to the marketplace")

	return cmd
}

func trendsCmd(c *cfg) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Aggregate trend records for one UTC day, yesterday by default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end := trend.DailyWindow(time.Now())
			if day != "" {
				d, err := time.Parse(time.DateOnly, day)
				if err != nil {
					return fmt.Errorf("--day must look like 2006-01-02: %s", err)
				}
				start, end = d, d.Add(24*time.Hour)
			}

			repo, dbx, err := openRepo(c)
			if err != nil {
				return err
			}
			defer dbx.Close()

			res, err := trend.New(repo).Aggregate(cmd.Context(), start, end)
			if err != nil {
				return err
			}

			// Records are in the store, the counts are enough here
			res.Records = nil
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day to aggregate (YYYY-MM-DD)")

	return cmd
}

func enrichCmd(c *cfg) *cobra.Command {
	return &cobra.Command{
		Use:   "enrich <listing-id>",
		Short: "Analyze a listing with the model and store the extracted fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, dbx, err := openRepo(c)
			if err != nil {
				return err
			}
			defer dbx.Close()

			res, err := c.Enrichment.Enricher(repo).Enrich(cmd.Context(), args[0])
			if errors.Is(err, selvedge.ErrNotFound) {
				return fmt.Errorf("listing %s not found", args[0])
			}
			if err != nil {
				return err
			}

			return printJSON(cmd, res)
		},
	}
}
