// Package engine hosts the governance operations: asset lifecycle,
// due-diligence risk, financial projections, trigger administration and
// event dispatch. Every mutation runs in one transaction together with
// its audit entries and workflow effects.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"arremate/internal/audit"
	"arremate/internal/config"
	"arremate/internal/domain"
	"arremate/internal/repo"
	"arremate/internal/risk"
	"arremate/internal/stage"
	"arremate/internal/workflow"
)

var (
	ErrTenantRequired = errors.New("tenant id is required")

	// ErrStageConflict means another transition won the optimistic
	// stage check; the caller should re-read and retry.
	ErrStageConflict = errors.New("asset stage changed concurrently")
)

// VersionConflictError is returned when a projection recompute was
// based on a version that is no longer the latest.
type VersionConflictError struct {
	Latest int
	Base   int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("projection version conflict: base %d, latest %d", e.Base, e.Latest)
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) ts() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) dispatcher() workflow.Dispatcher {
	return workflow.Dispatcher{Repo: e.Repo, Audit: e.Audit, Now: e.Now}
}

// enqueueEvent schedules an event for asynchronous dispatch by the
// queue worker, in the caller's transaction.
func (e Engine) enqueueEvent(ctx context.Context, tx *sql.Tx, tenantID, eventType string, payload map[string]any, actorID string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	ts := e.ts()
	j := domain.Job{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		EventType:   eventType,
		PayloadJSON: string(data),
		ActorID:     actorID,
		Status:      "pending",
		RunAfter:    ts,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if err := e.Repo.EnqueueJob(ctx, tx, j); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return j.ID, nil
}

// CreateTenant registers a tenant. Tenants partition every other row in
// the system.
func (e Engine) CreateTenant(ctx context.Context, id, name, actorID string) (domain.Tenant, error) {
	if id == "" {
		id = uuid.NewString()
	}
	t := domain.Tenant{ID: id, Name: name, Status: "active", CreatedAt: e.ts()}
	if t.Name == "" {
		return domain.Tenant{}, fmt.Errorf("tenant name is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO tenants(id,name,status,created_at) VALUES (?,?,?,?)`,
		t.ID, t.Name, t.Status, t.CreatedAt); err != nil {
		return domain.Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "tenant.created", t.ID, "tenant", t.ID, actorID, audit.Payload{"name": t.Name}); err != nil {
		return domain.Tenant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Tenant{}, err
	}
	return t, nil
}

// AssetCreateOptions are parameters for registering an auction asset.
type AssetCreateOptions struct {
	TenantID    string
	Title       string
	Description string
	Checklist   *domain.Checklist
	ActorID     string
}

// CreateAsset registers an asset at the initial stage. Without an
// explicit checklist every category starts pending, which scores as
// maximum risk until due diligence fills it in.
func (e Engine) CreateAsset(ctx context.Context, opts AssetCreateOptions) (domain.Asset, error) {
	if opts.TenantID == "" {
		return domain.Asset{}, ErrTenantRequired
	}
	if opts.Title == "" {
		return domain.Asset{}, fmt.Errorf("asset title is required")
	}
	if _, err := e.Repo.GetTenant(ctx, opts.TenantID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Asset{}, fmt.Errorf("tenant %s: %w", opts.TenantID, err)
		}
		return domain.Asset{}, err
	}
	ts := e.ts()
	a := domain.Asset{
		ID:           uuid.NewString(),
		TenantID:     opts.TenantID,
		Title:        opts.Title,
		Description:  opts.Description,
		CurrentStage: stage.Initial,
		Checklist:    pendingChecklist(),
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if opts.Checklist != nil {
		a.Checklist = *opts.Checklist
	}
	risk.Apply(&a)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAsset(ctx, tx, a); err != nil {
		return domain.Asset{}, fmt.Errorf("insert asset: %w", err)
	}
	err = e.Audit.Append(ctx, tx, "asset.created", a.TenantID, "asset", a.ID, opts.ActorID, audit.Payload{
		"title":      a.Title,
		"stage":      a.CurrentStage,
		"risk_score": a.RiskScore,
		"risk_level": a.RiskLevel,
	})
	if err != nil {
		return domain.Asset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, err
	}
	return a, nil
}

func pendingChecklist() domain.Checklist {
	item := domain.ChecklistItem{Status: domain.ChecklistPending}
	return domain.Checklist{Occupancy: item, Debts: item, LegalRisks: item, Zoning: item}
}

func (e Engine) GetAsset(ctx context.Context, tenantID, assetID string) (domain.Asset, error) {
	if tenantID == "" {
		return domain.Asset{}, ErrTenantRequired
	}
	return e.Repo.GetAsset(ctx, tenantID, assetID)
}

func (e Engine) ListAssets(ctx context.Context, f repo.AssetFilters) ([]domain.Asset, error) {
	if f.TenantID == "" {
		return nil, ErrTenantRequired
	}
	return e.Repo.ListAssets(ctx, f)
}

// TransitionStage advances an asset to the named stage. The request is
// gated by the workflow dispatcher before anything changes: a matched
// block_transition trigger vetoes the move, but the effects and audit
// rows of the dispatch are still committed.
func (e Engine) TransitionStage(ctx context.Context, tenantID, assetID, to, actorID string) (domain.Asset, workflow.Result, error) {
	if tenantID == "" {
		return domain.Asset{}, workflow.Result{}, ErrTenantRequired
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, workflow.Result{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAssetTx(ctx, tx, tenantID, assetID)
	if err != nil {
		return domain.Asset{}, workflow.Result{}, err
	}
	from, to, err := stage.Transition(a.CurrentStage, to)
	if err != nil {
		return domain.Asset{}, workflow.Result{}, err
	}

	evt := workflow.Event{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Type:     workflow.EventTransitionRequested,
		ActorID:  actorID,
		Payload: map[string]any{
			"asset_id":         a.ID,
			"from_stage":       from,
			"to_stage":         to,
			"risk_score":       a.RiskScore,
			"risk_level":       a.RiskLevel,
			"bidding_disabled": a.BiddingDisabled,
		},
	}
	res, err := e.dispatcher().Dispatch(ctx, tx, evt)
	if err != nil {
		return domain.Asset{}, workflow.Result{}, err
	}
	if !res.Allowed {
		err = e.Audit.Append(ctx, tx, "asset.stage.transition_blocked", tenantID, "asset", a.ID, actorID, audit.Payload{
			"from_stage": from,
			"to_stage":   to,
			"message":    res.BlockMessage,
		})
		if err != nil {
			return domain.Asset{}, workflow.Result{}, err
		}
		// Keep the dispatch effects even though the move is refused.
		if err := tx.Commit(); err != nil {
			return domain.Asset{}, workflow.Result{}, err
		}
		return a, res, &workflow.BlockedError{TriggerID: blockingTrigger(res), Message: res.BlockMessage}
	}

	ts := e.ts()
	ok, err := e.Repo.UpdateAssetStage(ctx, tx, tenantID, a.ID, from, to, ts)
	if err != nil {
		return domain.Asset{}, workflow.Result{}, err
	}
	if !ok {
		return domain.Asset{}, workflow.Result{}, ErrStageConflict
	}
	err = e.Audit.Append(ctx, tx, "asset.stage.changed", tenantID, "asset", a.ID, actorID, audit.Payload{
		"from_stage": from,
		"to_stage":   to,
	})
	if err != nil {
		return domain.Asset{}, workflow.Result{}, err
	}
	_, err = e.enqueueEvent(ctx, tx, tenantID, workflow.EventStageChanged, map[string]any{
		"asset_id":   a.ID,
		"from_stage": from,
		"to_stage":   to,
		"risk_level": a.RiskLevel,
	}, actorID)
	if err != nil {
		return domain.Asset{}, workflow.Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, workflow.Result{}, err
	}
	a.CurrentStage = to
	a.UpdatedAt = ts
	return a, res, nil
}

func blockingTrigger(res workflow.Result) string {
	for _, f := range res.Fired {
		if f.EffectKind == "block" {
			return f.TriggerID
		}
	}
	return ""
}

// UpdateChecklist replaces the due-diligence checklist and rederives
// risk score, level and the bidding flag in the same write. A level
// change is published for asynchronous trigger dispatch.
func (e Engine) UpdateChecklist(ctx context.Context, tenantID, assetID string, checklist domain.Checklist, actorID string) (domain.Asset, error) {
	if tenantID == "" {
		return domain.Asset{}, ErrTenantRequired
	}
	if err := validateChecklist(checklist); err != nil {
		return domain.Asset{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAssetTx(ctx, tx, tenantID, assetID)
	if err != nil {
		return domain.Asset{}, err
	}
	prevLevel := a.RiskLevel
	a.Checklist = checklist
	risk.Apply(&a)
	a.UpdatedAt = e.ts()
	if err := e.Repo.UpdateAssetChecklist(ctx, tx, a); err != nil {
		return domain.Asset{}, err
	}
	err = e.Audit.Append(ctx, tx, "asset.checklist.updated", tenantID, "asset", a.ID, actorID, audit.Payload{
		"risk_score":       a.RiskScore,
		"risk_level":       a.RiskLevel,
		"bidding_disabled": a.BiddingDisabled,
	})
	if err != nil {
		return domain.Asset{}, err
	}
	if a.RiskLevel != prevLevel {
		err = e.Audit.Append(ctx, tx, "asset.risk.changed", tenantID, "asset", a.ID, actorID, audit.Payload{
			"previous_level": prevLevel,
			"risk_level":     a.RiskLevel,
			"risk_score":     a.RiskScore,
		})
		if err != nil {
			return domain.Asset{}, err
		}
		_, err = e.enqueueEvent(ctx, tx, tenantID, workflow.EventRiskChanged, map[string]any{
			"asset_id":         a.ID,
			"previous_level":   prevLevel,
			"risk_level":       a.RiskLevel,
			"risk_score":       a.RiskScore,
			"bidding_disabled": a.BiddingDisabled,
		}, actorID)
		if err != nil {
			return domain.Asset{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, err
	}
	return a, nil
}

func validateChecklist(c domain.Checklist) error {
	for _, item := range []domain.ChecklistItem{c.Occupancy, c.Debts, c.LegalRisks, c.Zoning} {
		switch item.Status {
		case domain.ChecklistOK, domain.ChecklistPending, domain.ChecklistRisk:
		default:
			return fmt.Errorf("unknown checklist status %q", item.Status)
		}
	}
	return nil
}

// EmitEvent dispatches a domain event synchronously and reports the
// aggregate outcome, including whether a block trigger matched.
func (e Engine) EmitEvent(ctx context.Context, tenantID, eventType string, payload map[string]any, actorID string) (workflow.Result, string, error) {
	if tenantID == "" {
		return workflow.Result{}, "", ErrTenantRequired
	}
	if eventType == "" {
		return workflow.Result{}, "", fmt.Errorf("event type is required")
	}
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return workflow.Result{}, "", fmt.Errorf("tenant %s: %w", tenantID, err)
		}
		return workflow.Result{}, "", err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return workflow.Result{}, "", err
	}
	defer tx.Rollback()

	evt := workflow.Event{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Type:     eventType,
		ActorID:  actorID,
		Payload:  payload,
	}
	res, err := e.dispatcher().Dispatch(ctx, tx, evt)
	if err != nil {
		return workflow.Result{}, "", err
	}
	err = e.Audit.Append(ctx, tx, "event.emitted", tenantID, "event", evt.ID, actorID, audit.Payload{
		"event_type": eventType,
		"allowed":    res.Allowed,
		"fired":      len(res.Fired),
	})
	if err != nil {
		return workflow.Result{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return workflow.Result{}, "", err
	}
	return res, evt.ID, nil
}
