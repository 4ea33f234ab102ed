package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"arremate/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertTenant(ctx context.Context, t domain.Tenant) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tenants(id,name,status,created_at) VALUES (?,?,?,?)`,
		t.ID, t.Name, t.Status, t.CreatedAt)
	return err
}

func (r Repo) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	var t domain.Tenant
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,created_at FROM tenants WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

const assetColumns = `id,tenant_id,title,COALESCE(description,''),current_stage,checklist_json,risk_score,risk_level,bidding_disabled,created_at,updated_at`

func scanAsset(scan func(dest ...any) error) (domain.Asset, error) {
	var a domain.Asset
	var checklistJSON string
	var disabled int
	err := scan(&a.ID, &a.TenantID, &a.Title, &a.Description, &a.CurrentStage, &checklistJSON,
		&a.RiskScore, &a.RiskLevel, &disabled, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(checklistJSON), &a.Checklist); err != nil {
		return a, fmt.Errorf("decode checklist for asset %s: %w", a.ID, err)
	}
	a.BiddingDisabled = disabled != 0
	return a, nil
}

func (r Repo) InsertAsset(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	checklist, err := json.Marshal(a.Checklist)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO assets(id,tenant_id,title,description,current_stage,checklist_json,risk_score,risk_level,bidding_disabled,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.TenantID, a.Title, nullable(a.Description), a.CurrentStage, string(checklist),
		a.RiskScore, a.RiskLevel, boolToInt(a.BiddingDisabled), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAsset(ctx context.Context, tenantID, id string) (domain.Asset, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=? AND tenant_id=?`, id, tenantID)
	return scanAsset(row.Scan)
}

func (r Repo) GetAssetTx(ctx context.Context, tx *sql.Tx, tenantID, id string) (domain.Asset, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=? AND tenant_id=?`, id, tenantID)
	return scanAsset(row.Scan)
}

type AssetFilters struct {
	TenantID        string
	Stage           string
	RiskLevel       string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListAssets(ctx context.Context, f AssetFilters) ([]domain.Asset, error) {
	clauses := []string{"tenant_id=?"}
	args := []any{f.TenantID}
	if f.Stage != "" {
		clauses = append(clauses, "current_stage=?")
		args = append(args, f.Stage)
	}
	if f.RiskLevel != "" {
		clauses = append(clauses, "risk_level=?")
		args = append(args, f.RiskLevel)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + assetColumns + ` FROM assets WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// UpdateAssetStage advances the stored stage only when it still matches
// the stage the caller read. The affected-row count is the optimistic
// check; zero rows means a concurrent transition won.
func (r Repo) UpdateAssetStage(ctx context.Context, tx *sql.Tx, tenantID, id, fromStage, toStage, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE assets SET current_stage=?, updated_at=? WHERE id=? AND tenant_id=? AND current_stage=?`,
		toStage, updatedAt, id, tenantID, fromStage)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateAssetChecklist writes the checklist together with its derived
// risk fields; they never change separately.
func (r Repo) UpdateAssetChecklist(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	checklist, err := json.Marshal(a.Checklist)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE assets SET checklist_json=?, risk_score=?, risk_level=?, bidding_disabled=?, updated_at=? WHERE id=? AND tenant_id=?`,
		string(checklist), a.RiskScore, a.RiskLevel, boolToInt(a.BiddingDisabled), a.UpdatedAt, a.ID, a.TenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertDocument(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO documents(id,tenant_id,asset_id,name,cpo_status,review_required,processed_at,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.TenantID, d.AssetID, d.Name, nullable(d.CPOStatus), boolToInt(d.ReviewRequired), nullableStringPtr(d.ProcessedAt), d.CreatedAt)
	return err
}

func (r Repo) GetDocument(ctx context.Context, tenantID, id string) (domain.Document, error) {
	var d domain.Document
	var cpo, processedAt sql.NullString
	var review int
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,asset_id,name,cpo_status,review_required,processed_at,created_at FROM documents WHERE id=? AND tenant_id=?`, id, tenantID).
		Scan(&d.ID, &d.TenantID, &d.AssetID, &d.Name, &cpo, &review, &processedAt, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if cpo.Valid {
		d.CPOStatus = cpo.String
	}
	if processedAt.Valid {
		d.ProcessedAt = &processedAt.String
	}
	d.ReviewRequired = review != 0
	return d, nil
}

func (r Repo) MarkDocumentProcessed(ctx context.Context, tx *sql.Tx, tenantID, id, cpoStatus string, reviewRequired bool, processedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE documents SET cpo_status=?, review_required=?, processed_at=? WHERE id=? AND tenant_id=?`,
		cpoStatus, boolToInt(reviewRequired), processedAt, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListDocumentsByAsset(ctx context.Context, tenantID, assetID string) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,asset_id,name,cpo_status,review_required,processed_at,created_at FROM documents WHERE tenant_id=? AND asset_id=? ORDER BY created_at ASC, id ASC`, tenantID, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Document
	for rows.Next() {
		var d domain.Document
		var cpo, processedAt sql.NullString
		var review int
		if err := rows.Scan(&d.ID, &d.TenantID, &d.AssetID, &d.Name, &cpo, &review, &processedAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		if cpo.Valid {
			d.CPOStatus = cpo.String
		}
		if processedAt.Valid {
			d.ProcessedAt = &processedAt.String
		}
		d.ReviewRequired = review != 0
		res = append(res, d)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
