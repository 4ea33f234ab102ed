package repo

import (
	"context"
	"database/sql"

	"arremate/internal/domain"
)

func (r Repo) EnqueueJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO jobs(id,tenant_id,event_type,payload_json,actor_id,status,attempts,run_after,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.TenantID, j.EventType, j.PayloadJSON, j.ActorID, j.Status, j.Attempts, j.RunAfter, j.CreatedAt, j.UpdatedAt)
	return err
}

const jobColumns = `id,tenant_id,event_type,payload_json,actor_id,status,attempts,run_after,last_error,created_at,updated_at`

func scanJob(scan func(dest ...any) error) (domain.Job, error) {
	var j domain.Job
	var lastErr sql.NullString
	err := scan(&j.ID, &j.TenantID, &j.EventType, &j.PayloadJSON, &j.ActorID,
		&j.Status, &j.Attempts, &j.RunAfter, &lastErr, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	if lastErr.Valid {
		j.LastError = &lastErr.String
	}
	return j, nil
}

// ClaimDueJob takes the oldest pending job whose run_after has passed
// and marks it running. It returns ErrNotFound when nothing is due.
func (r Repo) ClaimDueJob(ctx context.Context, now string) (domain.Job, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status='pending' AND run_after<=? ORDER BY run_after ASC, id ASC LIMIT 1`, now)
	j, err := scanJob(row.Scan)
	if err != nil {
		return domain.Job{}, err
	}
	j.Status = "running"
	j.Attempts++
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status='running', attempts=?, updated_at=? WHERE id=?`, j.Attempts, now, j.ID); err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	return j, nil
}

func (r Repo) CompleteJob(ctx context.Context, id, now string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE jobs SET status='done', last_error=NULL, updated_at=? WHERE id=?`, now, id)
	return err
}

// RetryJob puts a running job back in the queue with a later run_after.
func (r Repo) RetryJob(ctx context.Context, id, runAfter, lastError, now string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE jobs SET status='pending', run_after=?, last_error=?, updated_at=? WHERE id=?`,
		runAfter, lastError, now, id)
	return err
}

// FailJob parks a job permanently. Failed jobs stay in the table for
// inspection and are never deleted by the worker.
func (r Repo) FailJob(ctx context.Context, id, lastError, now string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE jobs SET status='failed', last_error=?, updated_at=? WHERE id=?`, lastError, now, id)
	return err
}

func (r Repo) GetJob(ctx context.Context, id string) (domain.Job, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)
	return scanJob(row.Scan)
}

func (r Repo) ListJobs(ctx context.Context, tenantID, status string, limit int) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE tenant_id=?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}
