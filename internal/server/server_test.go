package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"arremate/internal/config"
	"arremate/internal/db"
	"arremate/internal/domain"
	"arremate/internal/engine"
	"arremate/internal/migrate"
	"arremate/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("arremate-test"))
	e.Now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	if _, err := e.CreateTenant(context.Background(), "t1", "Tenant One", "tester"); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func signToken(t *testing.T, tenantID string, perms []string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": "user1", "tenant_id": tenantID}
	if perms != nil {
		claims["permissions"] = perms
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (s *testServer) doJSON(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeBody[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %s: %v", string(data), err)
	}
	return out
}

func TestHealthNeedsNoAuth(t *testing.T) {
	s := newTestServer(t)
	res, _ := s.doJSON(t, http.MethodGet, "/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	s := newTestServer(t)
	res, data := s.doJSON(t, http.MethodGet, "/v1/auctions/assets", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, data)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	s := newTestServer(t)
	rawKey := "ak_" + uuid.NewString()
	err := s.Engine.Repo.InsertAPIKey(context.Background(), domain.APIKey{
		ID:        uuid.NewString(),
		TenantID:  "t1",
		ActorID:   "service-1",
		Name:      "ci",
		KeyHash:   repo.HashAPIKey(rawKey),
		CreatedAt: "2026-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("insert key: %v", err)
	}
	res, data := s.doJSON(t, http.MethodGet, "/v1/auctions/assets", nil, map[string]string{"X-Api-Key": rawKey})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.StatusCode, data)
	}
	res, _ = s.doJSON(t, http.MethodGet, "/v1/auctions/assets", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d", res.StatusCode)
	}
}

func TestPermissionEnforced(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "t1", []string{"workflow:read"})
	res, data := s.doJSON(t, http.MethodPost, "/v1/auctions/assets", CreateAssetRequest{Title: "Lot 7"}, authHeaders(token))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, data)
	}
	res, _ = s.doJSON(t, http.MethodGet, "/v1/auctions/assets", nil, authHeaders(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("read should pass, got %d", res.StatusCode)
	}
}

func okChecklistRequest() *ChecklistRequest {
	item := ChecklistItemRequest{Status: "ok"}
	return &ChecklistRequest{Occupancy: item, Debts: item, LegalRisks: item, Zoning: item}
}

func createAsset(t *testing.T, s *testServer, token string) domain.Asset {
	t.Helper()
	res, data := s.doJSON(t, http.MethodPost, "/v1/auctions/assets", CreateAssetRequest{
		Title:     "Apartment 42, Centro",
		Checklist: okChecklistRequest(),
	}, authHeaders(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create asset: %d %s", res.StatusCode, data)
	}
	return decodeBody[domain.Asset](t, data)
}

func TestEmitEventCreatesExactlyOneTask(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "t1", nil)
	a := createAsset(t, s, token)

	res, data := s.doJSON(t, http.MethodPost, "/v1/workflow/triggers", TriggerRequest{
		Name:       "itbi follow-up",
		EventType:  "itbi.paid",
		Condition:  map[string]any{"op": "eq", "field": "itbi_paid", "value": true},
		ActionType: "create_task",
		Action:     map[string]any{"task_type": "registration", "title": "Start deed registration"},
	}, authHeaders(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create trigger: %d %s", res.StatusCode, data)
	}

	res, data = s.doJSON(t, http.MethodPost, "/v1/workflow/emit", EmitEventRequest{
		EventType: "itbi.paid",
		Payload:   map[string]any{"itbi_paid": true, "asset_id": a.ID},
	}, authHeaders(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("emit event: %d %s", res.StatusCode, data)
	}
	out := decodeBody[EmitEventResponse](t, data)
	if !out.Result.Allowed || len(out.Result.Fired) != 1 {
		t.Fatalf("unexpected result: %+v", out.Result)
	}

	res, data = s.doJSON(t, http.MethodGet, "/v1/workflow/tasks", nil, authHeaders(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks: %d %s", res.StatusCode, data)
	}
	tasks := decodeBody[listResponse[domain.Task]](t, data)
	if len(tasks.Items) != 1 || tasks.Items[0].Title != "Start deed registration" {
		t.Fatalf("expected exactly one task, got %+v", tasks.Items)
	}
}

func TestBlockedTransitionReturns403(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "t1", nil)
	a := createAsset(t, s, token)

	res, data := s.doJSON(t, http.MethodPost, "/v1/workflow/triggers", TriggerRequest{
		Name:       "require admin approval",
		EventType:  "asset.stage.transition_requested",
		Condition:  map[string]any{"op": "not_present", "field": "admin_approval_received"},
		ActionType: "block_transition",
		Action:     map[string]any{"message": "admin approval required before auction"},
	}, authHeaders(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create trigger: %d %s", res.StatusCode, data)
	}

	res, data = s.doJSON(t, http.MethodPost, "/v1/auctions/assets/"+a.ID+"/transition",
		TransitionRequest{ToStage: "F1"}, authHeaders(token))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "transition_blocked" {
		t.Fatalf("unexpected code %q", envelope.Error.Code)
	}
	if envelope.Error.Message != "admin approval required before auction" {
		t.Fatalf("unexpected message %q", envelope.Error.Message)
	}

	res, data = s.doJSON(t, http.MethodGet, "/v1/auctions/assets/"+a.ID, nil, authHeaders(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get asset: %d", res.StatusCode)
	}
	got := decodeBody[domain.Asset](t, data)
	if got.CurrentStage != "F0" {
		t.Fatalf("blocked transition must not move the asset, got %s", got.CurrentStage)
	}
}

func TestTransitionResponseCarriesStages(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "t1", nil)
	a := createAsset(t, s, token)

	res, data := s.doJSON(t, http.MethodPost, "/v1/auctions/assets/"+a.ID+"/transition",
		TransitionRequest{ToStage: "F1"}, authHeaders(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("transition: %d %s", res.StatusCode, data)
	}
	out := decodeBody[TransitionResponse](t, data)
	if out.PreviousStage != "F0" || out.ToStage != "F1" {
		t.Fatalf("stages %s -> %s, want F0 -> F1", out.PreviousStage, out.ToStage)
	}
	if out.Asset.CurrentStage != "F1" {
		t.Fatalf("asset stage %s, want F1", out.Asset.CurrentStage)
	}
}

func TestRiskEndpointIsDerivedOnly(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "t1", nil)
	a := createAsset(t, s, token)

	res, data := s.doJSON(t, http.MethodGet, "/v1/auctions/assets/"+a.ID+"/risk", nil, authHeaders(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get risk: %d %s", res.StatusCode, data)
	}
	got := decodeBody[RiskResponse](t, data)
	if got.AssetID != a.ID || got.RiskScore != 0 || got.RiskLevel != "LOW" || got.BiddingDisabled {
		t.Fatalf("unexpected risk profile %+v", got)
	}
	res, _ = s.doJSON(t, http.MethodPost, "/v1/auctions/assets/"+a.ID+"/risk",
		map[string]any{"risk_score": 5}, authHeaders(token))
	if res.StatusCode == http.StatusOK {
		t.Fatalf("risk must not be settable")
	}
}

func TestDocsAndOpenAPI(t *testing.T) {
	s := newTestServer(t)
	res, data := s.doJSON(t, http.MethodGet, "/docs", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("docs: %d", res.StatusCode)
	}
	if !bytes.Contains(data, []byte("swagger-ui")) {
		t.Fatalf("docs page should embed swagger ui")
	}
	token := signToken(t, "t1", nil)
	res, data = s.doJSON(t, http.MethodGet, "/v1/openapi.json", nil, authHeaders(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi: %d", res.StatusCode)
	}
	if !bytes.Contains(data, []byte("/v1/auctions/assets")) {
		t.Fatalf("openapi should document the auctions routes")
	}
}

func TestInvalidTransitionReturns422(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "t1", nil)
	a := createAsset(t, s, token)

	res, data := s.doJSON(t, http.MethodPost, "/v1/auctions/assets/"+a.ID+"/transition",
		TransitionRequest{ToStage: "F5"}, authHeaders(token))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("unexpected code %q", envelope.Error.Code)
	}
	if envelope.Error.Details["from"] != "F0" || envelope.Error.Details["to"] != "F5" {
		t.Fatalf("unexpected details %+v", envelope.Error.Details)
	}
}

func TestROIVersionConflictReturns409(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "t1", nil)
	a := createAsset(t, s, token)

	body := RecomputeROIRequest{
		BaseVersion:        0,
		AcquisitionPrice:   10_000_000,
		Taxes:              800_000,
		LegalCosts:         500_000,
		RenovationEstimate: 1_400_000,
		ExpectedResale:     15_000_000,
	}
	res, data := s.doJSON(t, http.MethodPost, "/v1/auctions/assets/"+a.ID+"/roi", body, authHeaders(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("recompute: %d %s", res.StatusCode, data)
	}
	rec := decodeBody[domain.ROIRecord](t, data)
	if rec.VersionNumber != 1 || rec.TotalCost != 12_700_000 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	res, data = s.doJSON(t, http.MethodPost, "/v1/auctions/assets/"+a.ID+"/roi", body, authHeaders(token))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, data)
	}
}

func TestTenantScopedVisibility(t *testing.T) {
	s := newTestServer(t)
	if _, err := s.Engine.CreateTenant(context.Background(), "t2", "Tenant Two", "tester"); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	tokenA := signToken(t, "t1", nil)
	tokenB := signToken(t, "t2", nil)
	a := createAsset(t, s, tokenA)

	res, _ := s.doJSON(t, http.MethodGet, "/v1/auctions/assets/"+a.ID, nil, authHeaders(tokenB))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("asset must not be visible across tenants, got %d", res.StatusCode)
	}
	res, data := s.doJSON(t, http.MethodGet, "/v1/auctions/assets", nil, authHeaders(tokenB))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", res.StatusCode)
	}
	assets := decodeBody[listResponse[domain.Asset]](t, data)
	if len(assets.Items) != 0 {
		t.Fatalf("expected empty list for other tenant, got %d", len(assets.Items))
	}
}
