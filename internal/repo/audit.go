package repo

import (
	"context"
	"database/sql"

	"arremate/internal/domain"
)

const auditColumns = `id,ts,tenant_id,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json`

type AuditFilters struct {
	TenantID   string
	Type       string
	EntityKind string
	EntityID   string
	AfterID    int64
	Limit      int
}

func (r Repo) ListAudit(ctx context.Context, f AuditFilters) ([]domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_log WHERE tenant_id=?`
	args := []any{f.TenantID}
	if f.Type != "" {
		query += ` AND type=?`
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		query += ` AND entity_kind=?`
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		query += ` AND entity_id=?`
		args = append(args, f.EntityID)
	}
	if f.AfterID > 0 {
		query += ` AND id>?`
		args = append(args, f.AfterID)
	}
	query += ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.TS, &e.TenantID, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// AuditAfter feeds the webhook forwarder cursor. It spans all tenants.
func (r Repo) AuditAfter(ctx context.Context, afterID int64, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_log WHERE id>? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.TS, &e.TenantID, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) MaxAuditID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM audit_log`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}
