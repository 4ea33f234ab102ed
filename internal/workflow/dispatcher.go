// Package workflow evaluates the triggers registered for an event and
// records their effects. Dispatch happens inside the caller's
// transaction: either the event, its audit rows and its effects all
// land, or none of them do.
package workflow

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"arremate/internal/audit"
	"arremate/internal/domain"
	"arremate/internal/repo"
	"arremate/internal/rules"
)

// Governance event types. Triggers may also register for free-form
// domain events (itbi.paid and the like) emitted through the API.
const (
	EventTransitionRequested = "asset.stage.transition_requested"
	EventStageChanged        = "asset.stage.changed"
	EventRiskChanged         = "asset.risk.changed"
	EventDocumentProcessed   = "document.processed"
)

// Event is one governance event flowing through the dispatcher.
type Event struct {
	ID       string
	TenantID string
	Type     string
	ActorID  string
	Payload  map[string]any
}

// Firing records one trigger whose condition matched.
type Firing struct {
	TriggerID   string `json:"trigger_id"`
	TriggerName string `json:"trigger_name"`
	ActionType  string `json:"action_type"`
	EffectKind  string `json:"effect_kind"`
	EffectID    string `json:"effect_id,omitempty"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

// Result is the aggregate outcome of one dispatch. Allowed is false
// when any matched trigger carried a block_transition action.
type Result struct {
	Allowed      bool     `json:"allowed"`
	BlockMessage string   `json:"block_message,omitempty"`
	Fired        []Firing `json:"fired,omitempty"`
}

// BlockedError is returned by gated operations when a dispatch vetoed
// them.
type BlockedError struct {
	TriggerID string
	Message   string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked by trigger %s: %s", e.TriggerID, e.Message)
}

type Dispatcher struct {
	Repo  repo.Repo
	Audit audit.Writer
	Now   func() time.Time
}

func (d Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// IdempotencyKey identifies one (trigger, event) effect. Two deliveries
// of the same event with the same payload collapse to one key.
func IdempotencyKey(triggerID, eventID string, payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	payloadSum := sha256.Sum256(data)
	sum := sha256.Sum256([]byte(triggerID + "|" + eventID + "|" + hex.EncodeToString(payloadSum[:])))
	return hex.EncodeToString(sum[:])
}

// Dispatch evaluates every enabled trigger registered for the event
// type. All triggers are evaluated even after a block is found, so
// every task and notification whose condition matched is still
// produced. A trigger with unparseable stored config is skipped and
// logged; it never fails the dispatch.
func (d Dispatcher) Dispatch(ctx context.Context, tx *sql.Tx, evt Event) (Result, error) {
	res := Result{Allowed: true}
	triggers, err := d.Repo.EnabledTriggers(ctx, tx, evt.TenantID, evt.Type)
	if err != nil {
		return res, fmt.Errorf("load triggers for %s: %w", evt.Type, err)
	}
	now := d.now().UTC()
	for _, t := range triggers {
		cond, err := rules.ParseCondition(t.ConditionJSON)
		if err != nil {
			log.Printf("workflow: skipping trigger %s: %v", t.ID, err)
			continue
		}
		action, err := rules.ParseAction(t.ActionType, t.ActionJSON)
		if err != nil {
			log.Printf("workflow: skipping trigger %s: %v", t.ID, err)
			continue
		}
		if !cond.Evaluate(evt.Payload, now) {
			continue
		}
		firing, err := d.execute(ctx, tx, evt, t, action, now)
		if err != nil {
			return res, err
		}
		if action.Type == rules.ActionBlockTransition {
			res.Allowed = false
			if res.BlockMessage == "" {
				res.BlockMessage = action.Block.Message
			}
		}
		res.Fired = append(res.Fired, firing)
	}
	return res, nil
}

func (d Dispatcher) execute(ctx context.Context, tx *sql.Tx, evt Event, t domain.Trigger, action rules.Action, now time.Time) (Firing, error) {
	firing := Firing{
		TriggerID:   t.ID,
		TriggerName: t.Name,
		ActionType:  string(action.Type),
	}
	ts := now.Format(time.RFC3339)
	key := IdempotencyKey(t.ID, evt.ID, evt.Payload)

	switch action.Type {
	case rules.ActionCreateTask:
		firing.EffectKind = "task"
		firing.EffectID = uuid.NewString()
	case rules.ActionSendNotification:
		firing.EffectKind = "notification"
		firing.EffectID = uuid.NewString()
	case rules.ActionBlockTransition:
		// Blocks leave no standalone row; the claim itself is the effect.
		firing.EffectKind = "block"
		firing.EffectID = t.ID
	}

	claimed, err := d.Repo.ClaimEffect(ctx, tx, key, evt.TenantID, t.ID, evt.ID, firing.EffectKind, firing.EffectID, ts)
	if err != nil {
		return firing, fmt.Errorf("claim effect for trigger %s: %w", t.ID, err)
	}
	if !claimed {
		firing.Duplicate = true
		firing.EffectID = ""
		return firing, nil
	}

	switch action.Type {
	case rules.ActionCreateTask:
		cfg := action.CreateTask
		task := domain.Task{
			ID:          firing.EffectID,
			TenantID:    evt.TenantID,
			TriggerID:   t.ID,
			EventID:     evt.ID,
			Type:        cfg.TaskType,
			Title:       cfg.Title,
			Description: cfg.Description,
			CreatedAt:   ts,
		}
		if cfg.RelatedKind != "" {
			task.RelatedKind = &cfg.RelatedKind
		}
		if rel := relatedID(cfg, evt.Payload); rel != "" {
			task.RelatedID = &rel
		}
		if err := d.Repo.InsertTask(ctx, tx, task); err != nil {
			return firing, fmt.Errorf("create task for trigger %s: %w", t.ID, err)
		}
	case rules.ActionSendNotification:
		cfg := action.Notification
		n := domain.Notification{
			ID:        firing.EffectID,
			TenantID:  evt.TenantID,
			TriggerID: t.ID,
			EventID:   evt.ID,
			Channel:   cfg.Channel,
			Message:   cfg.Message,
			CreatedAt: ts,
		}
		if err := d.Repo.InsertNotification(ctx, tx, n); err != nil {
			return firing, fmt.Errorf("create notification for trigger %s: %w", t.ID, err)
		}
	}

	err = d.Audit.Append(ctx, tx, "workflow.trigger.fired", evt.TenantID, "trigger", t.ID, evt.ActorID, audit.Payload{
		"event_id":    evt.ID,
		"event_type":  evt.Type,
		"action_type": string(action.Type),
		"effect_kind": firing.EffectKind,
		"effect_id":   firing.EffectID,
	})
	if err != nil {
		return firing, err
	}
	return firing, nil
}

// relatedID binds a task to the entity the event was about when the
// trigger config names one, falling back to the payload's asset_id.
func relatedID(cfg *rules.CreateTaskConfig, payload map[string]any) string {
	if cfg.RelatedID != "" {
		return cfg.RelatedID
	}
	if v, ok := payload["asset_id"].(string); ok {
		return v
	}
	return ""
}
