package server

import (
	"arremate/internal/docqa"
	"arremate/internal/domain"
	"arremate/internal/workflow"
)

// Request payloads

type CreateTenantRequest struct {
	ID   *string `json:"id,omitempty"`
	Name string  `json:"name"`
}

type ChecklistItemRequest struct {
	Status string  `json:"status" enum:"ok,pending,risk"`
	Notes  *string `json:"notes,omitempty"`
}

type ChecklistRequest struct {
	Occupancy  ChecklistItemRequest `json:"occupancy"`
	Debts      ChecklistItemRequest `json:"debts"`
	LegalRisks ChecklistItemRequest `json:"legal_risks"`
	Zoning     ChecklistItemRequest `json:"zoning"`
}

type CreateAssetRequest struct {
	Title       string            `json:"title"`
	Description *string           `json:"description,omitempty"`
	Checklist   *ChecklistRequest `json:"due_diligence_checklist,omitempty"`
}

type TransitionRequest struct {
	ToStage string `json:"to_stage"`
}

type RecomputeROIRequest struct {
	BaseVersion        int     `json:"base_version"`
	AcquisitionPrice   int64   `json:"acquisition_price"`
	Taxes              int64   `json:"taxes"`
	LegalCosts         int64   `json:"legal_costs"`
	RenovationEstimate int64   `json:"renovation_estimate"`
	ExpectedResale     int64   `json:"expected_resale_value"`
	ExpectedResaleDate *string `json:"expected_resale_date,omitempty" format:"date"`
}

type TriggerRequest struct {
	Name       string         `json:"name"`
	EventType  string         `json:"event_type"`
	Condition  map[string]any `json:"condition"`
	ActionType string         `json:"action_type" enum:"create_task,send_notification,block_transition"`
	Action     map[string]any `json:"action"`
}

type EmitEventRequest struct {
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type AttachDocumentRequest struct {
	Name string `json:"name"`
}

type ProcessDocumentRequest struct {
	DPI           int     `json:"dpi"`
	OCRConfidence float64 `json:"ocr_confidence"`
}

// Response payloads

type TransitionResponse struct {
	Asset         domain.Asset    `json:"asset"`
	PreviousStage string          `json:"previous_stage"`
	ToStage       string          `json:"to_stage"`
	Result        workflow.Result `json:"result"`
}

// RiskResponse exposes the derived risk fields only; they are never
// settable through the API.
type RiskResponse struct {
	AssetID         string `json:"asset_id"`
	RiskScore       int    `json:"risk_score"`
	RiskLevel       string `json:"risk_level"`
	BiddingDisabled bool   `json:"bidding_disabled"`
}

type EmitEventResponse struct {
	EventID string          `json:"event_id"`
	Result  workflow.Result `json:"result"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func (r ChecklistRequest) toDomain() domain.Checklist {
	item := func(in ChecklistItemRequest) domain.ChecklistItem {
		out := domain.ChecklistItem{Status: domain.ChecklistStatus(in.Status)}
		if in.Notes != nil {
			out.Notes = *in.Notes
		}
		return out
	}
	return domain.Checklist{
		Occupancy:  item(r.Occupancy),
		Debts:      item(r.Debts),
		LegalRisks: item(r.LegalRisks),
		Zoning:     item(r.Zoning),
	}
}

func docqaMetrics(r ProcessDocumentRequest) docqa.Metrics {
	return docqa.Metrics{DPI: r.DPI, OCRConfidence: r.OCRConfidence}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
