package rules

import (
	"encoding/json"
	"fmt"
)

// ActionType is the closed set of trigger effects.
type ActionType string

const (
	ActionCreateTask       ActionType = "create_task"
	ActionSendNotification ActionType = "send_notification"
	ActionBlockTransition  ActionType = "block_transition"
)

// Action is the decoded, typed form of a stored action configuration.
// Exactly one variant field is set, matching Type.
type Action struct {
	Type         ActionType
	CreateTask   *CreateTaskConfig
	Notification *NotificationConfig
	Block        *BlockConfig
}

type CreateTaskConfig struct {
	TaskType    string `json:"task_type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	RelatedKind string `json:"related_kind,omitempty"`
	RelatedID   string `json:"related_id,omitempty"`
}

type NotificationConfig struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
}

type BlockConfig struct {
	Message string `json:"message"`
}

// ParseAction decodes a stored action configuration into its typed
// variant. Unknown types and incomplete configs are rejected here, at
// definition/load time, so the executor only ever sees valid actions.
func ParseAction(actionType, raw string) (Action, error) {
	switch ActionType(actionType) {
	case ActionCreateTask:
		var cfg CreateTaskConfig
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return Action{}, fmt.Errorf("invalid create_task config: %w", err)
		}
		if cfg.Title == "" {
			return Action{}, fmt.Errorf("create_task config requires title")
		}
		if cfg.TaskType == "" {
			cfg.TaskType = "general"
		}
		return Action{Type: ActionCreateTask, CreateTask: &cfg}, nil
	case ActionSendNotification:
		var cfg NotificationConfig
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return Action{}, fmt.Errorf("invalid send_notification config: %w", err)
		}
		if cfg.Message == "" {
			return Action{}, fmt.Errorf("send_notification config requires message")
		}
		if cfg.Channel == "" {
			cfg.Channel = "default"
		}
		return Action{Type: ActionSendNotification, Notification: &cfg}, nil
	case ActionBlockTransition:
		var cfg BlockConfig
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return Action{}, fmt.Errorf("invalid block_transition config: %w", err)
		}
		if cfg.Message == "" {
			cfg.Message = "operation blocked by workflow rule"
		}
		return Action{Type: ActionBlockTransition, Block: &cfg}, nil
	default:
		return Action{}, fmt.Errorf("unknown action type %q", actionType)
	}
}
