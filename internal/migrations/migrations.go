// Package migrations embeds the schema of the listings store.
package migrations

import (
	"embed"

	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/selvedge/internal/database"
)

//go:embed *.sql
var FS embed.FS

// Run brings the database up to the latest schema.
func Run(dbx *sqlx.DB) error {
	return database.RunMigrations(dbx, FS, ".")
}
