package arrematesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Arremate HTTP API client. The tenant is implied
// by the credential, never passed in requests.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ChecklistItem is one due-diligence entry.
type ChecklistItem struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// Checklist covers the four fixed due-diligence categories.
type Checklist struct {
	Occupancy  ChecklistItem `json:"occupancy"`
	Debts      ChecklistItem `json:"debts"`
	LegalRisks ChecklistItem `json:"legal_risks"`
	Zoning     ChecklistItem `json:"zoning"`
}

// Asset represents the API asset model (partial).
type Asset struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	CurrentStage    string    `json:"current_stage"`
	Checklist       Checklist `json:"checklist"`
	RiskScore       int       `json:"risk_score"`
	RiskLevel       string    `json:"risk_level"`
	BiddingDisabled bool      `json:"bidding_disabled"`
	CreatedAt       string    `json:"created_at"`
	UpdatedAt       string    `json:"updated_at"`
}

// ROIRecord is one immutable projection version.
type ROIRecord struct {
	ID             string  `json:"id"`
	AssetID        string  `json:"asset_id"`
	VersionNumber  int     `json:"version_number"`
	TotalCost      int64   `json:"total_cost"`
	NetProfit      int64   `json:"net_profit"`
	ROIBasisPoints int64   `json:"roi_basis_points"`
	BreakEvenDate  *string `json:"break_even_date,omitempty"`
	CreatedBy      string  `json:"created_by"`
	CreatedAt      string  `json:"created_at"`
}

// ROIInputs are the fields RecomputeROI sends. Money is in minor units.
type ROIInputs struct {
	BaseVersion        int     `json:"base_version"`
	AcquisitionPrice   int64   `json:"acquisition_price"`
	Taxes              int64   `json:"taxes"`
	LegalCosts         int64   `json:"legal_costs"`
	RenovationEstimate int64   `json:"renovation_estimate"`
	ExpectedResale     int64   `json:"expected_resale_value"`
	ExpectedResaleDate *string `json:"expected_resale_date,omitempty"`
}

// Trigger represents a workflow trigger definition.
type Trigger struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EventType  string `json:"event_type"`
	ActionType string `json:"action_type"`
	Enabled    bool   `json:"enabled"`
	CreatedAt  string `json:"created_at"`
}

// TriggerDefinition is the payload for CreateTrigger.
type TriggerDefinition struct {
	Name       string         `json:"name"`
	EventType  string         `json:"event_type"`
	Condition  map[string]any `json:"condition"`
	ActionType string         `json:"action_type"`
	Action     map[string]any `json:"action,omitempty"`
}

// Firing describes one trigger that matched during a dispatch.
type Firing struct {
	TriggerID   string `json:"trigger_id"`
	TriggerName string `json:"trigger_name"`
	ActionType  string `json:"action_type"`
	EffectKind  string `json:"effect_kind"`
	EffectID    string `json:"effect_id,omitempty"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

// DispatchResult is the outcome of evaluating triggers against an event.
type DispatchResult struct {
	Allowed      bool     `json:"allowed"`
	BlockMessage string   `json:"block_message,omitempty"`
	Fired        []Firing `json:"fired,omitempty"`
}

// Task represents a workflow-created task.
type Task struct {
	ID        string  `json:"id"`
	TriggerID string  `json:"trigger_id"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	RelatedID *string `json:"related_id,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateAsset creates an asset at stage F0.
func (c *Client) CreateAsset(ctx context.Context, title, description string, checklist *Checklist) (Asset, error) {
	body := map[string]any{"title": title}
	if description != "" {
		body["description"] = description
	}
	if checklist != nil {
		body["due_diligence_checklist"] = checklist
	}
	var resp Asset
	err := c.do(ctx, http.MethodPost, "auctions/assets", body, &resp)
	return resp, err
}

// GetAsset fetches an asset by id.
func (c *Client) GetAsset(ctx context.Context, assetID string) (Asset, error) {
	var resp Asset
	err := c.do(ctx, http.MethodGet, "auctions/assets/"+url.PathEscape(assetID), nil, &resp)
	return resp, err
}

// ListAssets returns assets, optionally filtered by stage.
func (c *Client) ListAssets(ctx context.Context, stage string) ([]Asset, error) {
	endpoint := "auctions/assets"
	if stage != "" {
		endpoint += "?stage=" + url.QueryEscape(stage)
	}
	var resp struct {
		Items []Asset `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// TransitionStage moves an asset to the next stage. Blocked and invalid
// transitions surface as *APIError with the server's error envelope.
func (c *Client) TransitionStage(ctx context.Context, assetID, toStage string) (Asset, DispatchResult, error) {
	var resp struct {
		Asset  Asset          `json:"asset"`
		Result DispatchResult `json:"result"`
	}
	endpoint := "auctions/assets/" + url.PathEscape(assetID) + "/transition"
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"to_stage": toStage}, &resp)
	return resp.Asset, resp.Result, err
}

// UpdateChecklist replaces the due-diligence checklist and returns the
// asset with its recomputed risk fields.
func (c *Client) UpdateChecklist(ctx context.Context, assetID string, checklist Checklist) (Asset, error) {
	var resp Asset
	endpoint := "auctions/assets/" + url.PathEscape(assetID) + "/checklist"
	err := c.do(ctx, http.MethodPatch, endpoint, checklist, &resp)
	return resp, err
}

// RecomputeROI appends a projection version. A stale BaseVersion yields
// a 409 *APIError.
func (c *Client) RecomputeROI(ctx context.Context, assetID string, in ROIInputs) (ROIRecord, error) {
	var resp ROIRecord
	endpoint := "auctions/assets/" + url.PathEscape(assetID) + "/roi"
	err := c.do(ctx, http.MethodPost, endpoint, in, &resp)
	return resp, err
}

// LatestROI fetches the newest projection version.
func (c *Client) LatestROI(ctx context.Context, assetID string) (ROIRecord, error) {
	var resp ROIRecord
	err := c.do(ctx, http.MethodGet, "auctions/assets/"+url.PathEscape(assetID)+"/roi", nil, &resp)
	return resp, err
}

// ROIHistory lists all projection versions, oldest first.
func (c *Client) ROIHistory(ctx context.Context, assetID string) ([]ROIRecord, error) {
	var resp struct {
		Items []ROIRecord `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "auctions/assets/"+url.PathEscape(assetID)+"/roi/history", nil, &resp)
	return resp.Items, err
}

// CreateTrigger registers a workflow trigger.
func (c *Client) CreateTrigger(ctx context.Context, def TriggerDefinition) (Trigger, error) {
	var resp Trigger
	err := c.do(ctx, http.MethodPost, "workflow/triggers", def, &resp)
	return resp, err
}

// EmitEvent dispatches a domain event through the trigger engine.
func (c *Client) EmitEvent(ctx context.Context, eventType string, payload map[string]any) (string, DispatchResult, error) {
	body := map[string]any{"event_type": eventType, "payload": payload}
	var resp struct {
		EventID string         `json:"event_id"`
		Result  DispatchResult `json:"result"`
	}
	err := c.do(ctx, http.MethodPost, "workflow/emit", body, &resp)
	return resp.EventID, resp.Result, err
}

// ListTasks returns workflow tasks, newest first.
func (c *Client) ListTasks(ctx context.Context, limit int) ([]Task, error) {
	endpoint := "workflow/tasks"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
