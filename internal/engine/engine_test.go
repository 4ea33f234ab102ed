package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"arremate/internal/config"
	"arremate/internal/db"
	"arremate/internal/docqa"
	"arremate/internal/domain"
	"arremate/internal/engine"
	"arremate/internal/migrate"
	"arremate/internal/roi"
	"arremate/internal/stage"
	"arremate/internal/workflow"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("arremate-test"))
	eng.Now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.CreateTenant(ctx, "t1", "Tenant One", "tester"); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func okChecklist() domain.Checklist {
	item := domain.ChecklistItem{Status: domain.ChecklistOK}
	return domain.Checklist{Occupancy: item, Debts: item, LegalRisks: item, Zoning: item}
}

func (env testEnv) mustCreateAsset(t *testing.T) domain.Asset {
	t.Helper()
	cl := okChecklist()
	a, err := env.Engine.CreateAsset(env.Ctx, engine.AssetCreateOptions{
		TenantID:  "t1",
		Title:     "Apartment 42, Centro",
		Checklist: &cl,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	return a
}

func TestCreateAssetDefaults(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateAsset(env.Ctx, engine.AssetCreateOptions{
		TenantID: "t1", Title: "Lot 7", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	if a.CurrentStage != stage.Initial {
		t.Fatalf("expected initial stage, got %s", a.CurrentStage)
	}
	// All-pending checklist scores as maximum risk.
	if a.RiskScore != 100 || a.RiskLevel != "HIGH" || !a.BiddingDisabled {
		t.Fatalf("unexpected derived risk: %+v", a)
	}
	if a.Checklist.Zoning.Status != domain.ChecklistPending {
		t.Fatalf("expected pending checklist, got %+v", a.Checklist)
	}
}

func TestCreateAssetRequiresTenant(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateAsset(env.Ctx, engine.AssetCreateOptions{Title: "x", ActorID: "tester"})
	if !errors.Is(err, engine.ErrTenantRequired) {
		t.Fatalf("expected ErrTenantRequired, got %v", err)
	}
}

func TestTransitionStageHappyPath(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreateAsset(t)
	a, res, err := env.Engine.TransitionStage(env.Ctx, "t1", a.ID, "F1", "tester")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !res.Allowed || a.CurrentStage != "F1" {
		t.Fatalf("expected move to F1, got %+v", a)
	}
	got, err := env.Engine.GetAsset(env.Ctx, "t1", a.ID)
	if err != nil || got.CurrentStage != "F1" {
		t.Fatalf("reload: %v %+v", err, got)
	}
}

func TestTransitionStageRejectsSkip(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreateAsset(t)
	_, _, err := env.Engine.TransitionStage(env.Ctx, "t1", a.ID, "F3", "tester")
	var ite stage.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if ite.From != "F0" || ite.To != "F3" {
		t.Fatalf("unexpected error fields: %+v", ite)
	}
	got, _ := env.Engine.GetAsset(env.Ctx, "t1", a.ID)
	if got.CurrentStage != "F0" {
		t.Fatalf("stage must not move on rejection, got %s", got.CurrentStage)
	}
}

func TestTransitionStageBlockedByTrigger(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreateAsset(t)
	_, err := env.Engine.CreateTrigger(env.Ctx, engine.TriggerOptions{
		TenantID:      "t1",
		Name:          "require admin approval",
		EventType:     workflow.EventTransitionRequested,
		ConditionJSON: `{"op":"not_present","field":"admin_approval_received"}`,
		ActionType:    "block_transition",
		ActionJSON:    `{"message":"admin approval required before auction"}`,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	_, _, err = env.Engine.TransitionStage(env.Ctx, "t1", a.ID, "F1", "tester")
	var blocked *workflow.BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockedError, got %v", err)
	}
	if blocked.Message != "admin approval required before auction" {
		t.Fatalf("unexpected message %q", blocked.Message)
	}
	got, _ := env.Engine.GetAsset(env.Ctx, "t1", a.ID)
	if got.CurrentStage != "F0" {
		t.Fatalf("blocked transition must not move the asset, got %s", got.CurrentStage)
	}
}

func TestUpdateChecklistDerivesRisk(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreateAsset(t)
	cl := okChecklist()
	cl.Debts = domain.ChecklistItem{Status: domain.ChecklistRisk, Notes: "condo arrears"}
	cl.LegalRisks = domain.ChecklistItem{Status: domain.ChecklistRisk}
	cl.Occupancy = domain.ChecklistItem{Status: domain.ChecklistPending}
	a, err := env.Engine.UpdateChecklist(env.Ctx, "t1", a.ID, cl, "tester")
	if err != nil {
		t.Fatalf("update checklist: %v", err)
	}
	if a.RiskScore != 95 || a.RiskLevel != "HIGH" || !a.BiddingDisabled {
		t.Fatalf("unexpected risk derivation: score=%d level=%s disabled=%v", a.RiskScore, a.RiskLevel, a.BiddingDisabled)
	}

	// Clearing the checklist re-enables bidding in the same write.
	a, err = env.Engine.UpdateChecklist(env.Ctx, "t1", a.ID, okChecklist(), "tester")
	if err != nil {
		t.Fatalf("clear checklist: %v", err)
	}
	if a.RiskScore != 0 || a.RiskLevel != "LOW" || a.BiddingDisabled {
		t.Fatalf("expected low risk, got %+v", a)
	}
}

func TestUpdateChecklistRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreateAsset(t)
	cl := okChecklist()
	cl.Zoning.Status = "maybe"
	if _, err := env.Engine.UpdateChecklist(env.Ctx, "t1", a.ID, cl, "tester"); err == nil {
		t.Fatalf("expected rejection of unknown status")
	}
}

func TestRecomputeROIVersioning(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreateAsset(t)
	in := roi.Inputs{
		AcquisitionPrice:   10_000_000,
		Taxes:              800_000,
		LegalCosts:         500_000,
		RenovationEstimate: 1_400_000,
		ExpectedResale:     15_000_000,
	}
	rec, err := env.Engine.RecomputeROI(env.Ctx, engine.ROIRecomputeOptions{
		TenantID: "t1", AssetID: a.ID, BaseVersion: 0, Inputs: in, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if rec.VersionNumber != 1 {
		t.Fatalf("expected version 1, got %d", rec.VersionNumber)
	}
	if rec.TotalCost != 12_700_000 || rec.NetProfit != 2_300_000 {
		t.Fatalf("unexpected totals: %+v", rec)
	}
	if rec.ROIBasisPoints <= 0 {
		t.Fatalf("expected positive roi, got %d", rec.ROIBasisPoints)
	}

	// A recompute from a stale base must conflict and write nothing.
	_, err = env.Engine.RecomputeROI(env.Ctx, engine.ROIRecomputeOptions{
		TenantID: "t1", AssetID: a.ID, BaseVersion: 0, Inputs: in, ActorID: "tester",
	})
	var conflict *engine.VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected VersionConflictError, got %v", err)
	}
	if conflict.Latest != 1 || conflict.Base != 0 {
		t.Fatalf("unexpected conflict fields: %+v", conflict)
	}

	rec2, err := env.Engine.RecomputeROI(env.Ctx, engine.ROIRecomputeOptions{
		TenantID: "t1", AssetID: a.ID, BaseVersion: 1, Inputs: in, ActorID: "tester",
	})
	if err != nil || rec2.VersionNumber != 2 {
		t.Fatalf("expected version 2, got %+v (%v)", rec2, err)
	}
	history, err := env.Engine.ROIHistory(env.Ctx, "t1", a.ID)
	if err != nil || len(history) != 2 {
		t.Fatalf("expected two versions, got %d (%v)", len(history), err)
	}
}

func TestRecomputeROIZeroCost(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreateAsset(t)
	_, err := env.Engine.RecomputeROI(env.Ctx, engine.ROIRecomputeOptions{
		TenantID: "t1", AssetID: a.ID, BaseVersion: 0, ActorID: "tester",
	})
	if !errors.Is(err, roi.ErrZeroTotalCost) {
		t.Fatalf("expected ErrZeroTotalCost, got %v", err)
	}
}

func TestEmitEventCreatesTask(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreateAsset(t)
	_, err := env.Engine.CreateTrigger(env.Ctx, engine.TriggerOptions{
		TenantID:      "t1",
		Name:          "itbi follow-up",
		EventType:     "itbi.paid",
		ConditionJSON: `{"op":"eq","field":"itbi_paid","value":true}`,
		ActionType:    "create_task",
		ActionJSON:    `{"task_type":"registration","title":"Start deed registration"}`,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	res, _, err := env.Engine.EmitEvent(env.Ctx, "t1", "itbi.paid",
		map[string]any{"itbi_paid": true, "asset_id": a.ID}, "tester")
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if !res.Allowed || len(res.Fired) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, "t1", 0)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("expected one task, got %d (%v)", len(tasks), err)
	}
	if tasks[0].Title != "Start deed registration" {
		t.Fatalf("unexpected task: %+v", tasks[0])
	}
}

func TestCreateTriggerRejectsBadDefinition(t *testing.T) {
	env := newTestEnv(t)
	cases := []engine.TriggerOptions{
		{TenantID: "t1", Name: "x", EventType: "e", ConditionJSON: `{"op":"soundex","field":"f"}`, ActionType: "create_task", ActionJSON: `{"title":"t"}`},
		{TenantID: "t1", Name: "x", EventType: "e", ConditionJSON: `{"op":"eq","field":"f","value":1}`, ActionType: "create_task", ActionJSON: `{}`},
		{TenantID: "t1", Name: "x", EventType: "e", ConditionJSON: `{"op":"eq","field":"f","value":1}`, ActionType: "explode", ActionJSON: `{}`},
		{TenantID: "t1", Name: "x", EventType: "", ConditionJSON: `{"op":"eq","field":"f","value":1}`, ActionType: "create_task", ActionJSON: `{"title":"t"}`},
	}
	for i, opts := range cases {
		opts.ActorID = "tester"
		if _, err := env.Engine.CreateTrigger(env.Ctx, opts); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	triggers, err := env.Engine.ListTriggers(env.Ctx, "t1")
	if err != nil || len(triggers) != 0 {
		t.Fatalf("no trigger should be stored, got %d (%v)", len(triggers), err)
	}
}

func TestDisabledTriggerDoesNotFire(t *testing.T) {
	env := newTestEnv(t)
	tr, err := env.Engine.CreateTrigger(env.Ctx, engine.TriggerOptions{
		TenantID:      "t1",
		Name:          "itbi follow-up",
		EventType:     "itbi.paid",
		ConditionJSON: `{"op":"present","field":"itbi_paid"}`,
		ActionType:    "create_task",
		ActionJSON:    `{"title":"Start deed registration"}`,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	if err := env.Engine.SetTriggerEnabled(env.Ctx, "t1", tr.ID, false, "tester"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	res, _, err := env.Engine.EmitEvent(env.Ctx, "t1", "itbi.paid", map[string]any{"itbi_paid": true}, "tester")
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(res.Fired) != 0 {
		t.Fatalf("disabled trigger fired: %+v", res)
	}
}

func TestTenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateTenant(env.Ctx, "t2", "Tenant Two", "tester"); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	a := env.mustCreateAsset(t)
	if _, err := env.Engine.GetAsset(env.Ctx, "t2", a.ID); err == nil {
		t.Fatalf("asset must not be visible across tenants")
	}
	if _, _, err := env.Engine.TransitionStage(env.Ctx, "t2", a.ID, "F1", "tester"); err == nil {
		t.Fatalf("transition must not cross tenants")
	}
}

func TestProcessDocumentVerdicts(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreateAsset(t)
	cases := []struct {
		metrics docqa.Metrics
		status  string
		review  bool
	}{
		{docqa.Metrics{DPI: 400, OCRConfidence: 97.5}, "green", false},
		{docqa.Metrics{DPI: 400, OCRConfidence: 80}, "yellow", true},
		{docqa.Metrics{DPI: 150, OCRConfidence: 60}, "red", true},
	}
	for _, tc := range cases {
		d, err := env.Engine.AttachDocument(env.Ctx, "t1", a.ID, "matricula.pdf", "tester")
		if err != nil {
			t.Fatalf("attach: %v", err)
		}
		d, verdict, err := env.Engine.ProcessDocument(env.Ctx, "t1", d.ID, tc.metrics, "tester")
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		if verdict.Status != tc.status || d.CPOStatus != tc.status {
			t.Fatalf("metrics %+v: expected %s, got %s", tc.metrics, tc.status, verdict.Status)
		}
		if d.ReviewRequired != tc.review {
			t.Fatalf("metrics %+v: expected review=%v", tc.metrics, tc.review)
		}
		if d.ProcessedAt == nil {
			t.Fatalf("expected processed_at set")
		}
	}
}
