package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"arremate/internal/audit"
	"arremate/internal/docqa"
	"arremate/internal/domain"
	"arremate/internal/workflow"
)

// AttachDocument registers a document against an asset. Quality
// assessment happens later, when the extraction pipeline reports its
// metrics.
func (e Engine) AttachDocument(ctx context.Context, tenantID, assetID, name, actorID string) (domain.Document, error) {
	if tenantID == "" {
		return domain.Document{}, ErrTenantRequired
	}
	if name == "" {
		return domain.Document{}, fmt.Errorf("document name is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Document{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAssetTx(ctx, tx, tenantID, assetID)
	if err != nil {
		return domain.Document{}, err
	}
	d := domain.Document{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		AssetID:   a.ID,
		Name:      name,
		CreatedAt: e.ts(),
	}
	if err := e.Repo.InsertDocument(ctx, tx, d); err != nil {
		return domain.Document{}, fmt.Errorf("insert document: %w", err)
	}
	err = e.Audit.Append(ctx, tx, "document.attached", tenantID, "document", d.ID, actorID, audit.Payload{
		"asset_id": a.ID,
		"name":     name,
	})
	if err != nil {
		return domain.Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Document{}, err
	}
	return d, nil
}

// ProcessDocument records the extraction metrics for a document and
// derives its quality verdict. The document.processed event is queued
// for asynchronous trigger dispatch.
func (e Engine) ProcessDocument(ctx context.Context, tenantID, documentID string, m docqa.Metrics, actorID string) (domain.Document, docqa.Result, error) {
	if tenantID == "" {
		return domain.Document{}, docqa.Result{}, ErrTenantRequired
	}
	d, err := e.Repo.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		return domain.Document{}, docqa.Result{}, err
	}
	verdict := docqa.Assess(m)
	ts := e.ts()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Document{}, docqa.Result{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.MarkDocumentProcessed(ctx, tx, tenantID, d.ID, verdict.Status, verdict.ReviewRequired, ts); err != nil {
		return domain.Document{}, docqa.Result{}, err
	}
	err = e.Audit.Append(ctx, tx, "document.processed", tenantID, "document", d.ID, actorID, audit.Payload{
		"asset_id":        d.AssetID,
		"cpo_status":      verdict.Status,
		"dpi_approved":    verdict.DPIApproved,
		"ocr_approved":    verdict.OCRApproved,
		"review_required": verdict.ReviewRequired,
	})
	if err != nil {
		return domain.Document{}, docqa.Result{}, err
	}
	_, err = e.enqueueEvent(ctx, tx, tenantID, workflow.EventDocumentProcessed, map[string]any{
		"document_id":     d.ID,
		"asset_id":        d.AssetID,
		"cpo_status":      verdict.Status,
		"review_required": verdict.ReviewRequired,
	}, actorID)
	if err != nil {
		return domain.Document{}, docqa.Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Document{}, docqa.Result{}, err
	}
	d.CPOStatus = verdict.Status
	d.ReviewRequired = verdict.ReviewRequired
	d.ProcessedAt = &ts
	return d, verdict, nil
}

func (e Engine) ListDocuments(ctx context.Context, tenantID, assetID string) ([]domain.Document, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	return e.Repo.ListDocumentsByAsset(ctx, tenantID, assetID)
}
