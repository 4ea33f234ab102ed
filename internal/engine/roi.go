package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"arremate/internal/audit"
	"arremate/internal/domain"
	"arremate/internal/roi"
)

// ROIRecomputeOptions are parameters for one projection recompute.
// BaseVersion is the version the caller last saw; 0 for a first
// projection.
type ROIRecomputeOptions struct {
	TenantID    string
	AssetID     string
	BaseVersion int
	Inputs      roi.Inputs
	ActorID     string
}

// RecomputeROI appends a new projection version. Versions are never
// overwritten; a stale BaseVersion yields a VersionConflictError and
// no write.
func (e Engine) RecomputeROI(ctx context.Context, opts ROIRecomputeOptions) (domain.ROIRecord, error) {
	if opts.TenantID == "" {
		return domain.ROIRecord{}, ErrTenantRequired
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ROIRecord{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAssetTx(ctx, tx, opts.TenantID, opts.AssetID)
	if err != nil {
		return domain.ROIRecord{}, err
	}
	latest, err := e.Repo.LatestROIVersionTx(ctx, tx, opts.TenantID, opts.AssetID)
	if err != nil {
		return domain.ROIRecord{}, err
	}
	if opts.BaseVersion != latest {
		return domain.ROIRecord{}, &VersionConflictError{Latest: latest, Base: opts.BaseVersion}
	}
	out, err := roi.Calculate(opts.Inputs)
	if err != nil {
		return domain.ROIRecord{}, err
	}
	rec := domain.ROIRecord{
		ID:                 uuid.NewString(),
		TenantID:           opts.TenantID,
		AssetID:            a.ID,
		VersionNumber:      latest + 1,
		AcquisitionPrice:   opts.Inputs.AcquisitionPrice,
		Taxes:              opts.Inputs.Taxes,
		LegalCosts:         opts.Inputs.LegalCosts,
		RenovationEstimate: opts.Inputs.RenovationEstimate,
		ExpectedResale:     opts.Inputs.ExpectedResale,
		ExpectedResaleDate: opts.Inputs.ExpectedResaleDate,
		TotalCost:          out.TotalCost,
		NetProfit:          out.NetProfit,
		ROIBasisPoints:     out.ROIBasisPoints,
		BreakEvenDate:      out.BreakEvenDate,
		CreatedBy:          opts.ActorID,
		CreatedAt:          e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertROIRecord(ctx, tx, rec); err != nil {
		return domain.ROIRecord{}, err
	}
	err = e.Audit.Append(ctx, tx, "asset.roi.recomputed", opts.TenantID, "asset", a.ID, opts.ActorID, audit.Payload{
		"version_number":   rec.VersionNumber,
		"total_cost":       rec.TotalCost,
		"net_profit":       rec.NetProfit,
		"roi_basis_points": rec.ROIBasisPoints,
	})
	if err != nil {
		return domain.ROIRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ROIRecord{}, err
	}
	return rec, nil
}

// LatestROI returns the current projection for an asset.
func (e Engine) LatestROI(ctx context.Context, tenantID, assetID string) (domain.ROIRecord, error) {
	if tenantID == "" {
		return domain.ROIRecord{}, ErrTenantRequired
	}
	return e.Repo.LatestROIRecord(ctx, tenantID, assetID)
}

// ROIHistory returns every projection version, oldest first.
func (e Engine) ROIHistory(ctx context.Context, tenantID, assetID string) ([]domain.ROIRecord, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	return e.Repo.ListROIRecords(ctx, tenantID, assetID)
}
