// Package sqlite implements the selvedge repository on top of sqlite.
package sqlite

import (
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"github.com/jdholdren/selvedge/internal/selvedge"
)

// Ensure Repo implements the Repository interface
var _ selvedge.Repository = (*Repo)(nil)

const (
	listingNamespace = "-lst"
	jobNamespace     = "-job"
	trendNamespace   = "-trd"
)

// Repo is the single gateway to the listings, sync_jobs and trend_records tables.
type Repo struct {
	db  *sqlx.DB
	now func() time.Time
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db, now: time.Now}
}

func (r Repo) clock() time.Time {
	return r.now().UTC()
}

// Code for SQLITE_CONSTRAINT_UNIQUE.
const sqliteConstraintUnique = 2067

func isUniqueViolation(err error) bool {
	sqliteErr := &sqlite.Error{}
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqliteConstraintUnique
}
