package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jdholdren/selvedge/internal/selvedge"
)

// InsertSyncJob records the start of a job. The status is always running.
func (r Repo) InsertSyncJob(ctx context.Context, job selvedge.SyncJob) (selvedge.SyncJob, error) {
	const q = `INSERT INTO sync_jobs (id, platform, job_type, status, workflow_id, started_at, created_at)
	VALUES (:id, :platform, :job_type, :status, :workflow_id, :started_at, :created_at);`

	now := r.clock()
	job.ID = fmt.Sprintf("%s%s", uuid.NewString(), jobNamespace)
	job.Status = selvedge.SyncJobStatusRunning
	job.StartedAt = now
	job.CreatedAt = now
	if job.JobType == "" {
		job.JobType = selvedge.SyncJobTypeIncremental
	}

	if _, err := r.db.NamedExecContext(ctx, q, job); err != nil {
		return selvedge.SyncJob{}, fmt.Errorf("error inserting sync job: %s", err)
	}

	return r.SyncJob(ctx, job.ID)
}

func (r Repo) SyncJob(ctx context.Context, id string) (selvedge.SyncJob, error) {
	const q = `SELECT * FROM sync_jobs WHERE id = ?;`

	var job selvedge.SyncJob
	err := r.db.GetContext(ctx, &job, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return selvedge.SyncJob{}, selvedge.ErrNotFound
	}
	if err != nil {
		return selvedge.SyncJob{}, fmt.Errorf("error fetching sync job: %s", err)
	}

	return job, nil
}

// FinishSyncJob moves a running job to its terminal state.
//
// A job that already left running is never revisited: ErrConflict is returned.
func (r Repo) FinishSyncJob(ctx context.Context, id string, args selvedge.FinishSyncJobArgs) (selvedge.SyncJob, error) {
	if args.Status != selvedge.SyncJobStatusCompleted && args.Status != selvedge.SyncJobStatusFailed {
		return selvedge.SyncJob{}, fmt.Errorf("%q is not a terminal status", args.Status)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return selvedge.SyncJob{}, fmt.Errorf("error starting transaction: %s", err)
	}
	defer tx.Rollback()

	var job selvedge.SyncJob
	err = tx.GetContext(ctx, &job, `SELECT * FROM sync_jobs WHERE id = ?;`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return selvedge.SyncJob{}, selvedge.ErrNotFound
	}
	if err != nil {
		return selvedge.SyncJob{}, fmt.Errorf("error fetching sync job: %s", err)
	}
	if job.Status != selvedge.SyncJobStatusRunning {
		return selvedge.SyncJob{}, fmt.Errorf("sync job %s is already %s: %w", id, job.Status, selvedge.ErrConflict)
	}

	now := r.clock()
	duration := int(now.Sub(job.StartedAt) / time.Second)
	q := sq.Update("sync_jobs").
		Set("status", string(args.Status)).
		Set("completed_at", now).
		Set("duration_seconds", duration).
		Set("listings_fetched", args.Stats.Fetched).
		Set("listings_added", args.Stats.Added).
		Set("listings_updated", args.Stats.Updated).
		Set("listings_failed", args.Stats.Failed)
	if args.ErrorMessage != "" {
		q = q.Set("error_message", args.ErrorMessage)
	}
	query, qArgs, err := q.Where(sq.Eq{"id": id, "status": string(selvedge.SyncJobStatusRunning)}).ToSql()
	if err != nil {
		return selvedge.SyncJob{}, fmt.Errorf("error constructing sql: %s", err)
	}
	if _, err := tx.ExecContext(ctx, query, qArgs...); err != nil {
		return selvedge.SyncJob{}, fmt.Errorf("error finishing sync job: %s", err)
	}
	if err := tx.Commit(); err != nil {
		return selvedge.SyncJob{}, fmt.Errorf("error committing sync job: %s", err)
	}

	return r.SyncJob(ctx, id)
}

// SyncJobs lists jobs, newest first.
func (r Repo) SyncJobs(ctx context.Context, f selvedge.SyncJobFilter) ([]selvedge.SyncJob, error) {
	q := sq.Select("*").From("sync_jobs").OrderBy("created_at DESC")
	if f.Platform != "" {
		q = q.Where(sq.Eq{"platform": string(f.Platform)})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	jobs := []selvedge.SyncJob{}
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching sync jobs: %s", err)
	}

	return jobs, nil
}

// DeleteSyncJobsBefore drops job history created before the cutoff.
func (r Repo) DeleteSyncJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM sync_jobs WHERE created_at < ?;`

	res, err := r.db.ExecContext(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("error deleting sync jobs: %s", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading deleted count: %s", err)
	}

	return n, nil
}
