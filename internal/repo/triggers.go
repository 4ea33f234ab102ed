package repo

import (
	"context"
	"database/sql"

	"arremate/internal/domain"
)

const triggerColumns = `id,tenant_id,name,event_type,condition_json,action_type,action_json,enabled,created_at,updated_at`

func scanTrigger(scan func(dest ...any) error) (domain.Trigger, error) {
	var t domain.Trigger
	var enabled int
	err := scan(&t.ID, &t.TenantID, &t.Name, &t.EventType, &t.ConditionJSON,
		&t.ActionType, &t.ActionJSON, &enabled, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Enabled = enabled != 0
	return t, nil
}

func (r Repo) InsertTrigger(ctx context.Context, tx *sql.Tx, t domain.Trigger) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO triggers(id,tenant_id,name,event_type,condition_json,action_type,action_json,enabled,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TenantID, t.Name, t.EventType, t.ConditionJSON, t.ActionType, t.ActionJSON,
		boolToInt(t.Enabled), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTrigger(ctx context.Context, tenantID, id string) (domain.Trigger, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+triggerColumns+` FROM triggers WHERE id=? AND tenant_id=?`, id, tenantID)
	return scanTrigger(row.Scan)
}

func (r Repo) UpdateTrigger(ctx context.Context, tx *sql.Tx, t domain.Trigger) error {
	res, err := tx.ExecContext(ctx, `UPDATE triggers SET name=?, event_type=?, condition_json=?, action_type=?, action_json=?, enabled=?, updated_at=? WHERE id=? AND tenant_id=?`,
		t.Name, t.EventType, t.ConditionJSON, t.ActionType, t.ActionJSON, boolToInt(t.Enabled), t.UpdatedAt, t.ID, t.TenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetTriggerEnabled(ctx context.Context, tx *sql.Tx, tenantID, id string, enabled bool, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE triggers SET enabled=?, updated_at=? WHERE id=? AND tenant_id=?`,
		boolToInt(enabled), updatedAt, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTrigger(ctx context.Context, tx *sql.Tx, tenantID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM triggers WHERE id=? AND tenant_id=?`, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListTriggers(ctx context.Context, tenantID string) ([]domain.Trigger, error) {
	return r.listTriggers(ctx, `SELECT `+triggerColumns+` FROM triggers WHERE tenant_id=? ORDER BY created_at ASC, id ASC`, tenantID)
}

// EnabledTriggers returns the triggers a dispatch must evaluate, in the
// stable order effects are recorded in.
func (r Repo) EnabledTriggers(ctx context.Context, tx *sql.Tx, tenantID, eventType string) ([]domain.Trigger, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+triggerColumns+` FROM triggers WHERE tenant_id=? AND event_type=? AND enabled=1 ORDER BY created_at ASC, id ASC`, tenantID, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTriggers(rows)
}

func (r Repo) listTriggers(ctx context.Context, query string, args ...any) ([]domain.Trigger, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTriggers(rows)
}

func collectTriggers(rows *sql.Rows) ([]domain.Trigger, error) {
	var res []domain.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
