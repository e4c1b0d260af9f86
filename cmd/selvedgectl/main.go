// selvedgectl runs syncs, trend rollups and enrichment in-process, without temporal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/jdholdren/selvedge/internal/config"
	"github.com/jdholdren/selvedge/internal/database"
	"github.com/jdholdren/selvedge/internal/migrations"
	selsqlite "github.com/jdholdren/selvedge/internal/sqlite"
)

type cfg struct {
	config.Database
	config.Log
	config.Vendors
	config.Enrichment
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command with every subcommand attached.
func newRootCmd() *cobra.Command {
	var c cfg
	root := &cobra.Command{
		Use:           "selvedgectl",
		Short:         "Operate the selvedge listing index",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(cmd.Context(), &c); err != nil {
				return fmt.Errorf("error parsing config: %s", err)
			}
			c.Log.SetDefault()
			return nil
		},
	}
	root.AddCommand(
		migrateCmd(&c),
		syncCmd(&c),
		trendsCmd(&c),
		enrichCmd(&c),
	)

	return root
}

// Opens and migrates the store.
func openRepo(c *cfg) (selsqlite.Repo, *sqlx.DB, error) {
	dbx, err := database.Open(c.Path)
	if err != nil {
		return selsqlite.Repo{}, nil, err
	}
	if err := migrations.Run(dbx); err != nil {
		dbx.Close()
		return selsqlite.Repo{}, nil, fmt.Errorf("error running migrations: %s", err)
	}

	return selsqlite.New(dbx), dbx, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
