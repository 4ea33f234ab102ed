// Package server exposes the governance engine over HTTP. Routing is
// chi, the operation layer is huma, and every error leaves through one
// envelope.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"arremate/internal/domain"
	"arremate/internal/engine"
	"arremate/internal/queue"
	"arremate/internal/repo"
	"arremate/internal/roi"
	"arremate/internal/stage"
	"arremate/internal/workflow"
)

const (
	permRead   = "workflow:read"
	permUpdate = "workflow:update"
	permEmit   = "workflow:emit"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// StartWorker runs the queue worker inside the server process.
	StartWorker bool
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid stage transition F2 -> F5"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the governance API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Arremate Governance API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTenants(group, cfg.Engine)
	registerAssets(group, cfg.Engine)
	registerROI(group, cfg.Engine)
	registerDocuments(group, cfg.Engine)
	registerTriggers(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerEffects(group, cfg.Engine)
	registerAudit(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	if cfg.StartWorker {
		go queue.NewWorker(cfg.Engine).Run(context.Background())
	}
	startWebhookForwarder(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine errors onto the envelope. Typed errors carry
// their context into the details object.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ite stage.InvalidTransitionError
	if errors.As(err, &ite) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), map[string]any{
			"from": ite.From,
			"to":   ite.To,
		})
	}
	var blocked *workflow.BlockedError
	if errors.As(err, &blocked) {
		return newAPIError(http.StatusForbidden, "transition_blocked", blocked.Message, map[string]any{
			"trigger_id": blocked.TriggerID,
		})
	}
	var vce *engine.VersionConflictError
	if errors.As(err, &vce) {
		return newAPIError(http.StatusConflict, "version_conflict", err.Error(), map[string]any{
			"latest": vce.Latest,
			"base":   vce.Base,
		})
	}
	switch {
	case errors.Is(err, engine.ErrTenantRequired):
		return newAPIError(http.StatusBadRequest, "tenant_required", err.Error(), nil)
	case errors.Is(err, engine.ErrStageConflict):
		return newAPIError(http.StatusConflict, "stage_conflict", err.Error(), nil)
	case errors.Is(err, roi.ErrZeroTotalCost):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Status string `json:"status"`
		}
	}, error) {
		resp := &struct {
			Body struct {
				Status string `json:"status"`
			}
		}{}
		resp.Body.Status = "ok"
		return resp, nil
	})
}

func registerTenants(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-tenant",
		Method:        http.MethodPost,
		Path:          "/tenants",
		Summary:       "Create tenant",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateTenantRequest `json:"body"`
	}) (*struct {
		Body domain.Tenant `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permUpdate)
		if authErr != nil {
			return nil, authErr
		}
		id := stringOrEmpty(input.Body.ID)
		t, err := e.CreateTenant(ctx, id, input.Body.Name, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Tenant `json:"body"`
		}{Body: t}, nil
	})
}

func registerAssets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-asset",
		Method:        http.MethodPost,
		Path:          "/auctions/assets",
		Summary:       "Create asset",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAssetRequest `json:"body"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permUpdate)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.AssetCreateOptions{
			TenantID:    p.TenantID,
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			ActorID:     p.ActorID,
		}
		if input.Body.Checklist != nil {
			cl := input.Body.Checklist.toDomain()
			opts.Checklist = &cl
		}
		a, err := e.CreateAsset(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assets",
		Method:      http.MethodGet,
		Path:        "/auctions/assets",
		Summary:     "List assets",
	}, func(ctx context.Context, input *struct {
		Stage     string `query:"stage"`
		RiskLevel string `query:"risk_level"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body listResponse[domain.Asset] `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permRead)
		if authErr != nil {
			return nil, authErr
		}
		assets, err := e.ListAssets(ctx, repo.AssetFilters{
			TenantID:  p.TenantID,
			Stage:     input.Stage,
			RiskLevel: input.RiskLevel,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listResponse[domain.Asset] `json:"body"`
		}{Body: listResponse[domain.Asset]{Items: assets}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-asset",
		Method:      http.MethodGet,
		Path:        "/auctions/assets/{asset_id}",
		Summary:     "Get asset",
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permRead)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.GetAsset(ctx, p.TenantID, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-asset",
		Method:      http.MethodPost,
		Path:        "/auctions/assets/{asset_id}/transition",
		Summary:     "Advance asset stage",
	}, func(ctx context.Context, input *struct {
		AssetID string            `path:"asset_id"`
		Body    TransitionRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permUpdate)
		if authErr != nil {
			return nil, authErr
		}
		a, res, err := e.TransitionStage(ctx, p.TenantID, input.AssetID, input.Body.ToStage, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		prev, _ := stage.Prev(a.CurrentStage)
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: TransitionResponse{
			Asset:         a,
			PreviousStage: prev,
			ToStage:       a.CurrentStage,
			Result:        res,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-checklist",
		Method:      http.MethodPatch,
		Path:        "/auctions/assets/{asset_id}/checklist",
		Summary:     "Replace due-diligence checklist",
	}, func(ctx context.Context, input *struct {
		AssetID string           `path:"asset_id"`
		Body    ChecklistRequest `json:"body"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permUpdate)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateChecklist(ctx, p.TenantID, input.AssetID, input.Body.toDomain(), p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-asset-risk",
		Method:      http.MethodGet,
		Path:        "/auctions/assets/{asset_id}/risk",
		Summary:     "Get derived risk profile",
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body RiskResponse `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permRead)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.GetAsset(ctx, p.TenantID, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RiskResponse `json:"body"`
		}{Body: RiskResponse{
			AssetID:         a.ID,
			RiskScore:       a.RiskScore,
			RiskLevel:       a.RiskLevel,
			BiddingDisabled: a.BiddingDisabled,
		}}, nil
	})
}

func registerROI(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "recompute-roi",
		Method:        http.MethodPost,
		Path:          "/auctions/assets/{asset_id}/roi",
		Summary:       "Recompute ROI projection",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		AssetID string              `path:"asset_id"`
		Body    RecomputeROIRequest `json:"body"`
	}) (*struct {
		Body domain.ROIRecord `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permUpdate)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.RecomputeROI(ctx, engine.ROIRecomputeOptions{
			TenantID:    p.TenantID,
			AssetID:     input.AssetID,
			BaseVersion: input.Body.BaseVersion,
			Inputs: roi.Inputs{
				AcquisitionPrice:   input.Body.AcquisitionPrice,
				Taxes:              input.Body.Taxes,
				LegalCosts:         input.Body.LegalCosts,
				RenovationEstimate: input.Body.RenovationEstimate,
				ExpectedResale:     input.Body.ExpectedResale,
				ExpectedResaleDate: input.Body.ExpectedResaleDate,
			},
			ActorID: p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ROIRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-roi",
		Method:      http.MethodGet,
		Path:        "/auctions/assets/{asset_id}/roi",
		Summary:     "Get latest ROI projection",
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body domain.ROIRecord `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permRead)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.LatestROI(ctx, p.TenantID, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ROIRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "roi-history",
		Method:      http.MethodGet,
		Path:        "/auctions/assets/{asset_id}/roi/history",
		Summary:     "List ROI projection versions",
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body listResponse[domain.ROIRecord] `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permRead)
		if authErr != nil {
			return nil, authErr
		}
		recs, err := e.ROIHistory(ctx, p.TenantID, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listResponse[domain.ROIRecord] `json:"body"`
		}{Body: listResponse[domain.ROIRecord]{Items: recs}}, nil
	})
}

func registerDocuments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "attach-document",
		Method:        http.MethodPost,
		Path:          "/auctions/assets/{asset_id}/documents",
		Summary:       "Attach document",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		AssetID string                `path:"asset_id"`
		Body    AttachDocumentRequest `json:"body"`
	}) (*struct {
		Body domain.Document `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permUpdate)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.AttachDocument(ctx, p.TenantID, input.AssetID, input.Body.Name, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Document `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/auctions/assets/{asset_id}/documents",
		Summary:     "List documents",
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body listResponse[domain.Document] `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permRead)
		if authErr != nil {
			return nil, authErr
		}
		docs, err := e.ListDocuments(ctx, p.TenantID, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listResponse[domain.Document] `json:"body"`
		}{Body: listResponse[domain.Document]{Items: docs}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "process-document",
		Method:      http.MethodPost,
		Path:        "/documents/{document_id}/process",
		Summary:     "Record document quality metrics",
	}, func(ctx context.Context, input *struct {
		DocumentID string                 `path:"document_id"`
		Body       ProcessDocumentRequest `json:"body"`
	}) (*struct {
		Body domain.Document `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permUpdate)
		if authErr != nil {
			return nil, authErr
		}
		d, _, err := e.ProcessDocument(ctx, p.TenantID, input.DocumentID, docqaMetrics(input.Body), p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Document `json:"body"`
		}{Body: d}, nil
	})
}

func registerTriggers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-trigger",
		Method:        http.MethodPost,
		Path:          "/workflow/triggers",
		Summary:       "Create trigger",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body TriggerRequest `json:"body"`
	}) (*struct {
		Body domain.Trigger `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permUpdate)
		if authErr != nil {
			return nil, authErr
		}
		opts, err := triggerOptions(p, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.CreateTrigger(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Trigger `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-triggers",
		Method:      http.MethodGet,
		Path:        "/workflow/triggers",
		Summary:     "List triggers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body listResponse[domain.Trigger] `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permRead)
		if authErr != nil {
			return nil, authErr
		}
		triggers, err := e.ListTriggers(ctx, p.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listResponse[domain.Trigger] `json:"body"`
		}{Body: listResponse[domain.Trigger]{Items: triggers}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-trigger",
		Method:      http.MethodGet,
		Path:        "/workflow/triggers/{trigger_id}",
		Summary:     "Get trigger",
	}, func(ctx context.Context, input *struct {
		TriggerID string `path:"trigger_id"`
	}) (*struct {
		Body domain.Trigger `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permRead)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTrigger(ctx, p.TenantID, input.TriggerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Trigger `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-trigger",
		Method:      http.MethodPut,
		Path:        "/workflow/triggers/{trigger_id}",
		Summary:     "Update trigger",
	}, func(ctx context.Context, input *struct {
		TriggerID string         `path:"trigger_id"`
		Body      TriggerRequest `json:"body"`
	}) (*struct {
		Body domain.Trigger `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permUpdate)
		if authErr != nil {
			return nil, authErr
		}
		opts, err := triggerOptions(p, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.UpdateTrigger(ctx, input.TriggerID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Trigger `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "enable-trigger",
		Method:      http.MethodPost,
		Path:        "/workflow/triggers/{trigger_id}/enable",
		Summary:     "Enable trigger",
	}, setEnabledHandler(e, true))

	huma.Register(api, huma.Operation{
		OperationID: "disable-trigger",
		Method:      http.MethodPost,
		Path:        "/workflow/triggers/{trigger_id}/disable",
		Summary:     "Disable trigger",
	}, setEnabledHandler(e, false))

	huma.Register(api, huma.Operation{
		OperationID:   "delete-trigger",
		Method:        http.MethodDelete,
		Path:          "/workflow/triggers/{trigger_id}",
		Summary:       "Delete trigger",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		TriggerID string `path:"trigger_id"`
	}) (*struct{}, error) {
		p, authErr := requirePermission(ctx, permUpdate)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTrigger(ctx, p.TenantID, input.TriggerID, p.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func setEnabledHandler(e engine.Engine, enabled bool) func(ctx context.Context, input *struct {
	TriggerID string `path:"trigger_id"`
}) (*struct {
	Body domain.Trigger `json:"body"`
}, error) {
	return func(ctx context.Context, input *struct {
		TriggerID string `path:"trigger_id"`
	}) (*struct {
		Body domain.Trigger `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permUpdate)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetTriggerEnabled(ctx, p.TenantID, input.TriggerID, enabled, p.ActorID); err != nil {
			return nil, handleError(err)
		}
		t, err := e.GetTrigger(ctx, p.TenantID, input.TriggerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Trigger `json:"body"`
		}{Body: t}, nil
	}
}

func triggerOptions(p Principal, body TriggerRequest) (engine.TriggerOptions, error) {
	condJSON, err := json.Marshal(body.Condition)
	if err != nil {
		return engine.TriggerOptions{}, err
	}
	actionJSON, err := json.Marshal(body.Action)
	if err != nil {
		return engine.TriggerOptions{}, err
	}
	return engine.TriggerOptions{
		TenantID:      p.TenantID,
		Name:          body.Name,
		EventType:     body.EventType,
		ConditionJSON: string(condJSON),
		ActionType:    body.ActionType,
		ActionJSON:    string(actionJSON),
		ActorID:       p.ActorID,
	}, nil
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "emit-event",
		Method:      http.MethodPost,
		Path:        "/workflow/emit",
		Summary:     "Emit event",
	}, func(ctx context.Context, input *struct {
		Body EmitEventRequest `json:"body"`
	}) (*struct {
		Body EmitEventResponse `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permEmit)
		if authErr != nil {
			return nil, authErr
		}
		res, eventID, err := e.EmitEvent(ctx, p.TenantID, input.Body.EventType, input.Body.Payload, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmitEventResponse `json:"body"`
		}{Body: EmitEventResponse{EventID: eventID, Result: res}}, nil
	})
}

func registerEffects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/workflow/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body listResponse[domain.Task] `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permRead)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := e.Repo.ListTasks(ctx, p.TenantID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listResponse[domain.Task] `json:"body"`
		}{Body: listResponse[domain.Task]{Items: tasks}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/workflow/notifications",
		Summary:     "List notifications",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body listResponse[domain.Notification] `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permRead)
		if authErr != nil {
			return nil, authErr
		}
		notes, err := e.Repo.ListNotifications(ctx, p.TenantID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listResponse[domain.Notification] `json:"body"`
		}{Body: listResponse[domain.Notification]{Items: notes}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List queue jobs",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"pending,running,done,failed"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body listResponse[domain.Job] `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permRead)
		if authErr != nil {
			return nil, authErr
		}
		jobs, err := e.Repo.ListJobs(ctx, p.TenantID, input.Status, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listResponse[domain.Job] `json:"body"`
		}{Body: listResponse[domain.Job]{Items: jobs}}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List audit trail",
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		AfterID    int64  `query:"after_id"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body listResponse[domain.AuditEntry] `json:"body"`
	}, error) {
		p, authErr := requirePermission(ctx, permRead)
		if authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		entries, err := e.Repo.ListAudit(ctx, repo.AuditFilters{
			TenantID:   p.TenantID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			AfterID:    input.AfterID,
			Limit:      limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listResponse[domain.AuditEntry] `json:"body"`
		}{Body: listResponse[domain.AuditEntry]{Items: entries}}, nil
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, _ *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Arremate API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
