package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"arremate/internal/audit"
	"arremate/internal/domain"
	"arremate/internal/rules"
)

// TriggerOptions are parameters for defining or redefining a trigger.
type TriggerOptions struct {
	TenantID      string
	Name          string
	EventType     string
	ConditionJSON string
	ActionType    string
	ActionJSON    string
	ActorID       string
}

// validateTrigger rejects bad definitions up front so the dispatcher
// only ever loads configs that parse.
func validateTrigger(opts TriggerOptions) error {
	if opts.Name == "" {
		return fmt.Errorf("trigger name is required")
	}
	if opts.EventType == "" {
		return fmt.Errorf("trigger event type is required")
	}
	if _, err := rules.ParseCondition(opts.ConditionJSON); err != nil {
		return err
	}
	if _, err := rules.ParseAction(opts.ActionType, opts.ActionJSON); err != nil {
		return err
	}
	return nil
}

// CreateTrigger registers a trigger, enabled by default.
func (e Engine) CreateTrigger(ctx context.Context, opts TriggerOptions) (domain.Trigger, error) {
	if opts.TenantID == "" {
		return domain.Trigger{}, ErrTenantRequired
	}
	if err := validateTrigger(opts); err != nil {
		return domain.Trigger{}, err
	}
	ts := e.ts()
	t := domain.Trigger{
		ID:            uuid.NewString(),
		TenantID:      opts.TenantID,
		Name:          opts.Name,
		EventType:     opts.EventType,
		ConditionJSON: opts.ConditionJSON,
		ActionType:    opts.ActionType,
		ActionJSON:    opts.ActionJSON,
		Enabled:       true,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Trigger{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTrigger(ctx, tx, t); err != nil {
		return domain.Trigger{}, fmt.Errorf("insert trigger: %w", err)
	}
	err = e.Audit.Append(ctx, tx, "trigger.created", t.TenantID, "trigger", t.ID, opts.ActorID, audit.Payload{
		"name":        t.Name,
		"event_type":  t.EventType,
		"action_type": t.ActionType,
	})
	if err != nil {
		return domain.Trigger{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Trigger{}, err
	}
	return t, nil
}

// UpdateTrigger redefines an existing trigger. The same definition-time
// validation applies as on create.
func (e Engine) UpdateTrigger(ctx context.Context, triggerID string, opts TriggerOptions) (domain.Trigger, error) {
	if opts.TenantID == "" {
		return domain.Trigger{}, ErrTenantRequired
	}
	if err := validateTrigger(opts); err != nil {
		return domain.Trigger{}, err
	}
	t, err := e.Repo.GetTrigger(ctx, opts.TenantID, triggerID)
	if err != nil {
		return domain.Trigger{}, err
	}
	t.Name = opts.Name
	t.EventType = opts.EventType
	t.ConditionJSON = opts.ConditionJSON
	t.ActionType = opts.ActionType
	t.ActionJSON = opts.ActionJSON
	t.UpdatedAt = e.ts()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Trigger{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTrigger(ctx, tx, t); err != nil {
		return domain.Trigger{}, err
	}
	err = e.Audit.Append(ctx, tx, "trigger.updated", t.TenantID, "trigger", t.ID, opts.ActorID, audit.Payload{
		"name":        t.Name,
		"event_type":  t.EventType,
		"action_type": t.ActionType,
	})
	if err != nil {
		return domain.Trigger{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Trigger{}, err
	}
	return t, nil
}

// SetTriggerEnabled flips a trigger on or off without touching its
// definition.
func (e Engine) SetTriggerEnabled(ctx context.Context, tenantID, triggerID string, enabled bool, actorID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetTriggerEnabled(ctx, tx, tenantID, triggerID, enabled, e.ts()); err != nil {
		return err
	}
	evtType := "trigger.disabled"
	if enabled {
		evtType = "trigger.enabled"
	}
	if err := e.Audit.Append(ctx, tx, evtType, tenantID, "trigger", triggerID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteTrigger removes a trigger. Effects it already produced stay.
func (e Engine) DeleteTrigger(ctx context.Context, tenantID, triggerID, actorID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTrigger(ctx, tx, tenantID, triggerID); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, "trigger.deleted", tenantID, "trigger", triggerID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GetTrigger(ctx context.Context, tenantID, triggerID string) (domain.Trigger, error) {
	if tenantID == "" {
		return domain.Trigger{}, ErrTenantRequired
	}
	return e.Repo.GetTrigger(ctx, tenantID, triggerID)
}

func (e Engine) ListTriggers(ctx context.Context, tenantID string) ([]domain.Trigger, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	return e.Repo.ListTriggers(ctx, tenantID)
}
