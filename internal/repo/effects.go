package repo

import (
	"context"
	"database/sql"

	"arremate/internal/domain"
)

// ClaimEffect records an idempotency key for a trigger firing. It
// returns false when the key already exists, meaning the effect was
// produced by an earlier delivery of the same event.
func (r Repo) ClaimEffect(ctx context.Context, tx *sql.Tx, key, tenantID, triggerID, eventID, effectKind, effectID, createdAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO workflow_effects(idempotency_key,tenant_id,trigger_id,event_id,effect_kind,effect_id,created_at)
VALUES (?,?,?,?,?,?,?)`,
		key, tenantID, triggerID, eventID, effectKind, effectID, createdAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,tenant_id,trigger_id,event_id,type,title,description,related_kind,related_id,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TenantID, t.TriggerID, t.EventID, t.Type, t.Title, nullable(t.Description),
		nullableStringPtr(t.RelatedKind), nullableStringPtr(t.RelatedID), t.CreatedAt)
	return err
}

func (r Repo) ListTasks(ctx context.Context, tenantID string, limit int) ([]domain.Task, error) {
	query := `SELECT id,tenant_id,trigger_id,event_id,type,title,COALESCE(description,''),related_kind,related_id,created_at FROM tasks WHERE tenant_id=? ORDER BY created_at DESC, id DESC`
	args := []any{tenantID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var relKind, relID sql.NullString
		if err := rows.Scan(&t.ID, &t.TenantID, &t.TriggerID, &t.EventID, &t.Type, &t.Title, &t.Description, &relKind, &relID, &t.CreatedAt); err != nil {
			return nil, err
		}
		if relKind.Valid {
			t.RelatedKind = &relKind.String
		}
		if relID.Valid {
			t.RelatedID = &relID.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasksByTrigger(ctx context.Context, tenantID, triggerID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE tenant_id=? AND trigger_id=?`, tenantID, triggerID).Scan(&n)
	return n, err
}

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(id,tenant_id,trigger_id,event_id,channel,message,created_at)
VALUES (?,?,?,?,?,?,?)`,
		n.ID, n.TenantID, n.TriggerID, n.EventID, n.Channel, n.Message, n.CreatedAt)
	return err
}

func (r Repo) ListNotifications(ctx context.Context, tenantID string, limit int) ([]domain.Notification, error) {
	query := `SELECT id,tenant_id,trigger_id,event_id,channel,message,created_at FROM notifications WHERE tenant_id=? ORDER BY created_at DESC, id DESC`
	args := []any{tenantID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.TenantID, &n.TriggerID, &n.EventID, &n.Channel, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
