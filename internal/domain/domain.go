package domain

type Tenant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status" enum:"active,suspended"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ChecklistStatus is the tri-state of one due-diligence category.
type ChecklistStatus string

const (
	ChecklistOK      ChecklistStatus = "ok"
	ChecklistPending ChecklistStatus = "pending"
	ChecklistRisk    ChecklistStatus = "risk"
)

// ChecklistItem holds the status and optional notes for one category.
type ChecklistItem struct {
	Status ChecklistStatus `json:"status" enum:"ok,pending,risk"`
	Notes  string          `json:"notes,omitempty"`
}

// Checklist is the four-category due-diligence assessment behind the
// derived risk score.
type Checklist struct {
	Occupancy  ChecklistItem `json:"occupancy"`
	Debts      ChecklistItem `json:"debts"`
	LegalRisks ChecklistItem `json:"legal_risks"`
	Zoning     ChecklistItem `json:"zoning"`
}

type Asset struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	CurrentStage    string    `json:"current_stage"`
	Checklist       Checklist `json:"due_diligence_checklist"`
	RiskScore       int       `json:"risk_score"`
	RiskLevel       string    `json:"risk_level" enum:"LOW,MEDIUM,HIGH"`
	BiddingDisabled bool      `json:"bidding_disabled"`
	CreatedAt       string    `json:"created_at" format:"date-time"`
	UpdatedAt       string    `json:"updated_at" format:"date-time"`
}

// ROIRecord is one append-only projection version for an asset. All
// monetary fields are integer minor-currency units.
type ROIRecord struct {
	ID                 string  `json:"id"`
	TenantID           string  `json:"tenant_id"`
	AssetID            string  `json:"asset_id"`
	VersionNumber      int     `json:"version_number"`
	AcquisitionPrice   int64   `json:"acquisition_price"`
	Taxes              int64   `json:"taxes"`
	LegalCosts         int64   `json:"legal_costs"`
	RenovationEstimate int64   `json:"renovation_estimate"`
	ExpectedResale     int64   `json:"expected_resale_value"`
	ExpectedResaleDate *string `json:"expected_resale_date,omitempty" format:"date"`
	TotalCost          int64   `json:"total_cost"`
	NetProfit          int64   `json:"net_profit"`
	ROIBasisPoints     int64   `json:"roi_basis_points"`
	BreakEvenDate      *string `json:"break_even_date,omitempty" format:"date"`
	CreatedBy          string  `json:"created_by"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
}

type Document struct {
	ID             string  `json:"id"`
	TenantID       string  `json:"tenant_id"`
	AssetID        string  `json:"asset_id"`
	Name           string  `json:"name"`
	CPOStatus      string  `json:"cpo_status,omitempty" enum:"green,yellow,red"`
	ReviewRequired bool    `json:"review_required"`
	ProcessedAt    *string `json:"processed_at,omitempty" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type Trigger struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	Name          string `json:"name"`
	EventType     string `json:"event_type"`
	ConditionJSON string `json:"condition_json"`
	ActionType    string `json:"action_type" enum:"create_task,send_notification,block_transition"`
	ActionJSON    string `json:"action_json"`
	Enabled       bool   `json:"enabled"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

// Task is a side effect created by a matched create_task trigger. It is
// written once and never mutated by the governance core.
type Task struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenant_id"`
	TriggerID   string  `json:"trigger_id"`
	EventID     string  `json:"event_id"`
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	RelatedKind *string `json:"related_kind,omitempty"`
	RelatedID   *string `json:"related_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

// Notification mirrors Task for send_notification actions.
type Notification struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	TriggerID string `json:"trigger_id"`
	EventID   string `json:"event_id"`
	Channel   string `json:"channel"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// AuditEntry is one row of the append-only audit trail.
type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	TenantID   string `json:"tenant_id"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Job is one unit of asynchronous work delivered at least once.
type Job struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenant_id"`
	EventType   string  `json:"event_type"`
	PayloadJSON string  `json:"payload_json"`
	ActorID     string  `json:"actor_id"`
	Status      string  `json:"status" enum:"pending,running,done,failed"`
	Attempts    int     `json:"attempts"`
	RunAfter    string  `json:"run_after" format:"date-time"`
	LastError   *string `json:"last_error,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
