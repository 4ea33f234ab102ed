package repo

import (
	"context"
	"database/sql"

	"arremate/internal/domain"
)

func (r Repo) InsertROIRecord(ctx context.Context, tx *sql.Tx, rec domain.ROIRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO roi_records(id,tenant_id,asset_id,version_number,acquisition_price,taxes,legal_costs,renovation_estimate,expected_resale_value,expected_resale_date,total_cost,net_profit,roi_basis_points,break_even_date,created_by,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.TenantID, rec.AssetID, rec.VersionNumber,
		rec.AcquisitionPrice, rec.Taxes, rec.LegalCosts, rec.RenovationEstimate,
		rec.ExpectedResale, nullableStringPtr(rec.ExpectedResaleDate),
		rec.TotalCost, rec.NetProfit, rec.ROIBasisPoints, nullableStringPtr(rec.BreakEvenDate),
		rec.CreatedBy, rec.CreatedAt)
	return err
}

const roiColumns = `id,tenant_id,asset_id,version_number,acquisition_price,taxes,legal_costs,renovation_estimate,expected_resale_value,expected_resale_date,total_cost,net_profit,roi_basis_points,break_even_date,created_by,created_at`

func scanROI(scan func(dest ...any) error) (domain.ROIRecord, error) {
	var rec domain.ROIRecord
	var resaleDate, breakEven sql.NullString
	err := scan(&rec.ID, &rec.TenantID, &rec.AssetID, &rec.VersionNumber,
		&rec.AcquisitionPrice, &rec.Taxes, &rec.LegalCosts, &rec.RenovationEstimate,
		&rec.ExpectedResale, &resaleDate,
		&rec.TotalCost, &rec.NetProfit, &rec.ROIBasisPoints, &breakEven,
		&rec.CreatedBy, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	if resaleDate.Valid {
		rec.ExpectedResaleDate = &resaleDate.String
	}
	if breakEven.Valid {
		rec.BreakEvenDate = &breakEven.String
	}
	return rec, nil
}

func (r Repo) LatestROIVersionTx(ctx context.Context, tx *sql.Tx, tenantID, assetID string) (int, error) {
	var v int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version_number),0) FROM roi_records WHERE tenant_id=? AND asset_id=?`, tenantID, assetID).Scan(&v)
	return v, err
}

func (r Repo) LatestROIRecord(ctx context.Context, tenantID, assetID string) (domain.ROIRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+roiColumns+` FROM roi_records WHERE tenant_id=? AND asset_id=? ORDER BY version_number DESC LIMIT 1`, tenantID, assetID)
	return scanROI(row.Scan)
}

func (r Repo) ListROIRecords(ctx context.Context, tenantID, assetID string) ([]domain.ROIRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+roiColumns+` FROM roi_records WHERE tenant_id=? AND asset_id=? ORDER BY version_number ASC`, tenantID, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ROIRecord
	for rows.Next() {
		rec, err := scanROI(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
