package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"trackfit/internal/config"
	"trackfit/internal/db"
	"trackfit/internal/domain"
	"trackfit/internal/engine"
	"trackfit/internal/migrate"
	"trackfit/internal/tag"
)

var (
	admin = domain.Identity{EmployerID: "1001", Username: "admin1", Role: domain.RoleAdmin}
	je    = domain.Identity{EmployerID: "1002", Username: "je01", Role: domain.RoleJE}
	tech  = domain.Identity{EmployerID: "1003", Username: "tech01", Role: domain.RoleTechnical}
	sre   = domain.Identity{EmployerID: "1005", Username: "sre01", Role: domain.RoleSRE}
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Renderer = tag.NopRenderer{}
	eng.Now = func() time.Time { return time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func generateOne(t *testing.T, env testEnv, m domain.MaterialType) domain.Unit {
	t.Helper()
	units, err := env.Engine.GenerateUnits(env.Ctx, engine.GenerateOptions{
		Materials: []domain.MaterialType{m},
		VendorLot: "LOT-7",
		BatchNo:   12,
		Quantity:  1,
		Actor:     admin,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return units[0]
}

func TestGenerateUnitsIDShape(t *testing.T) {
	env := newTestEnv(t)
	u := generateOne(t, env, domain.MaterialElasticClip)
	if len(u.ID) != 13 {
		t.Fatalf("id %q: want 13 chars", u.ID)
	}
	if !strings.HasPrefix(u.ID, "EC25A1012") {
		t.Fatalf("id %q: want prefix EC25A1012", u.ID)
	}
	if u.Status != domain.UnitPending {
		t.Fatalf("status %q: want Pending", u.Status)
	}
	if u.ExpiryDate != "2029-12-31" {
		t.Fatalf("expiry %q: want 2029-12-31", u.ExpiryDate)
	}
}

func TestGenerateUnitsUniqueIDs(t *testing.T) {
	env := newTestEnv(t)
	units, err := env.Engine.GenerateUnits(env.Ctx, engine.GenerateOptions{
		Materials: []domain.MaterialType{domain.MaterialRailPad, domain.MaterialLiner},
		VendorLot: "LOT-1",
		BatchNo:   3,
		Quantity:  25,
		Actor:     admin,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(units) != 50 {
		t.Fatalf("got %d units, want 50", len(units))
	}
	seen := map[string]bool{}
	for _, u := range units {
		if seen[u.ID] {
			t.Fatalf("duplicate id %s", u.ID)
		}
		seen[u.ID] = true
	}
}

func TestGenerateUnitsForbiddenForFieldRole(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GenerateUnits(env.Ctx, engine.GenerateOptions{
		Materials: []domain.MaterialType{domain.MaterialLiner},
		Quantity:  1,
		Actor:     je,
	})
	if err == nil {
		t.Fatal("expected forbidden error")
	}
}

func TestIssueExhaustsRetryBudget(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Serial = func() (string, error) { return "0001", nil }
	generateOne(t, env, domain.MaterialSleeper)
	_, err := env.Engine.GenerateUnits(env.Ctx, engine.GenerateOptions{
		Materials: []domain.MaterialType{domain.MaterialSleeper},
		VendorLot: "LOT-7",
		BatchNo:   12,
		Quantity:  1,
		Actor:     admin,
	})
	if !errors.Is(err, engine.ErrExhaustedIdentifierSpace) {
		t.Fatalf("err %v: want ErrExhaustedIdentifierSpace", err)
	}
}

func TestTagPayloadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	u := generateOne(t, env, domain.MaterialRailPad)
	text := tag.RenderUnit(u)
	got, err := env.Engine.ResolvePayload(env.Ctx, text)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != u.ID || got.MaterialType != u.MaterialType || got.ExpiryDate != u.ExpiryDate {
		t.Fatalf("resolved %+v, want %+v", got, u)
	}
}

func TestResolvePayloadMalformed(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ResolvePayload(env.Ctx, "not a payload"); !errors.Is(err, tag.ErrMalformedPayload) {
		t.Fatalf("err %v: want ErrMalformedPayload", err)
	}
	if _, err := env.Engine.ResolvePayload(env.Ctx, "Type:liner;VendorLot:x"); !errors.Is(err, tag.ErrMalformedPayload) {
		t.Fatalf("missing UID: err %v: want ErrMalformedPayload", err)
	}
}

func TestResolveScanUnknownUnit(t *testing.T) {
	env := newTestEnv(t)
	frame := strings.NewReader("UID:EC25A10120042;Type:elastic_clip")
	_, err := env.Engine.ResolveScan(env.Ctx, tag.TextDecoder{}, frame)
	if !errors.Is(err, engine.ErrUnitNotFound) {
		t.Fatalf("err %v: want ErrUnitNotFound", err)
	}
}

func TestAssignTaskRaisesEscalationAlert(t *testing.T) {
	env := newTestEnv(t)
	u := generateOne(t, env, domain.MaterialElasticClip)
	res, err := env.Engine.AssignTask(env.Ctx, admin, u.ID, je.Username, je.Role, "fit at km 12")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if res.AlertErr != nil {
		t.Fatalf("alert err: %v", res.AlertErr)
	}
	if res.Task.Status != domain.TaskPending {
		t.Fatalf("task status %q", res.Task.Status)
	}
	alert, err := env.Engine.Repo.GetAlert(env.Ctx, res.AlertID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if alert.Type != domain.AlertTaskAssigned || alert.AssignedToRole != domain.RoleSRE {
		t.Fatalf("alert %+v: want Task Assigned to SRE", alert)
	}
	if alert.AssignedTo != je.Username {
		t.Fatalf("alert assigned to %q, want %q", alert.AssignedTo, je.Username)
	}
	if alert.EscalatedTo != "" {
		t.Fatalf("escalated_to %q set at creation, want empty", alert.EscalatedTo)
	}
	want := fmt.Sprintf("Task %d assigned to %s", res.Task.ID, je.Username)
	if alert.Notes != want {
		t.Fatalf("notes %q, want %q", alert.Notes, want)
	}
}

func TestAssignTaskEscalationMapping(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		role domain.Role
		want domain.Role
	}{
		{domain.RoleJE, domain.RoleSRE},
		{domain.RoleTechnical, domain.RoleSRE},
		{domain.RolePWI, domain.RoleSRE},
		{domain.RoleSRE, domain.RoleDRE},
		{domain.RoleDRE, domain.RoleZonal},
		{domain.RoleZonal, domain.RoleZonal},
	}
	for _, tc := range cases {
		u := generateOne(t, env, domain.MaterialLiner)
		res, err := env.Engine.AssignTask(env.Ctx, admin, u.ID, "worker", tc.role, "")
		if err != nil || res.AlertErr != nil {
			t.Fatalf("%s: assign: %v / %v", tc.role, err, res.AlertErr)
		}
		alert, err := env.Engine.Repo.GetAlert(env.Ctx, res.AlertID)
		if err != nil {
			t.Fatalf("%s: get alert: %v", tc.role, err)
		}
		if alert.AssignedToRole != tc.want {
			t.Fatalf("%s escalates to %s, want %s", tc.role, alert.AssignedToRole, tc.want)
		}
	}
}

func TestAssignTaskDedupesActiveAlert(t *testing.T) {
	env := newTestEnv(t)
	u := generateOne(t, env, domain.MaterialRailPad)
	first, err := env.Engine.AssignTask(env.Ctx, admin, u.ID, je.Username, je.Role, "")
	if err != nil {
		t.Fatalf("first assign: %v", err)
	}
	second, err := env.Engine.AssignTask(env.Ctx, admin, u.ID, tech.Username, tech.Role, "")
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if second.AlertErr != nil {
		t.Fatalf("suppression is not an error: %v", second.AlertErr)
	}
	if second.AlertID != 0 {
		t.Fatalf("second alert id %d: want suppressed", second.AlertID)
	}
	// acknowledging the first alert reopens the slot
	if ok, err := env.Engine.Acknowledge(env.Ctx, sre, first.AlertID); err != nil || !ok {
		t.Fatalf("ack: %v %v", ok, err)
	}
	third, err := env.Engine.AssignTask(env.Ctx, admin, u.ID, je.Username, je.Role, "")
	if err != nil {
		t.Fatalf("third assign: %v", err)
	}
	if third.AlertID == 0 || third.AlertErr != nil {
		t.Fatalf("expected fresh alert after ack, got id=%d err=%v", third.AlertID, third.AlertErr)
	}
}

func TestAssignTaskUnknownUnit(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AssignTask(env.Ctx, admin, "EC25A10120001", je.Username, je.Role, "")
	if !errors.Is(err, engine.ErrUnitNotFound) {
		t.Fatalf("err %v: want ErrUnitNotFound", err)
	}
}

func TestRecordWorkCompletesOwnTasksOnce(t *testing.T) {
	env := newTestEnv(t)
	u := generateOne(t, env, domain.MaterialElasticClip)
	if _, err := env.Engine.AssignTask(env.Ctx, admin, u.ID, je.Username, je.Role, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	res, err := env.Engine.RecordWork(env.Ctx, je, u.ID, engine.UnitUpdate{
		FittedDate: "2025-01-02",
		Status:     domain.UnitFitted,
	})
	if err != nil || !res.Completed {
		t.Fatalf("first completion: done=%v err=%v", res.Completed, err)
	}
	if res.SweepErr != nil {
		t.Fatalf("chained sweep: %v", res.SweepErr)
	}
	if len(res.Sweep.Raised) != 0 {
		t.Fatalf("sweep raised %d alerts years before expiry", len(res.Sweep.Raised))
	}
	res, err = env.Engine.CompleteTask(env.Ctx, je, u.ID)
	if err != nil {
		t.Fatalf("second completion: %v", err)
	}
	if res.Completed {
		t.Fatal("second completion reported work, want false")
	}
	got, err := env.Engine.Repo.GetUnit(env.Ctx, u.ID)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if got.Status != domain.UnitFitted || got.FittedDate != "2025-01-02" {
		t.Fatalf("unit after work: %+v", got)
	}
}

func TestRecordWorkMatchesRoleAssignment(t *testing.T) {
	env := newTestEnv(t)
	u := generateOne(t, env, domain.MaterialSleeper)
	// assigned to the role, not the person
	if _, err := env.Engine.AssignTask(env.Ctx, admin, u.ID, string(domain.RoleJE), domain.RoleJE, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	res, err := env.Engine.CompleteTask(env.Ctx, je, u.ID)
	if err != nil || !res.Completed {
		t.Fatalf("role-addressed completion: done=%v err=%v", res.Completed, err)
	}
}

func TestRecordWorkNeverClearsFields(t *testing.T) {
	env := newTestEnv(t)
	u := generateOne(t, env, domain.MaterialLiner)
	if _, err := env.Engine.AssignTask(env.Ctx, admin, u.ID, je.Username, je.Role, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.Engine.RecordWork(env.Ctx, je, u.ID, engine.UnitUpdate{FittedDate: "2025-01-02", Status: domain.UnitFitted}); err != nil {
		t.Fatalf("record: %v", err)
	}
	// later update without FittedDate must not blank it
	got, err := env.Engine.UpdateUnit(env.Ctx, admin, u.ID, engine.UnitUpdate{InspectionDate: "2025-02-01", Status: domain.UnitInspected})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.FittedDate != "2025-01-02" || got.InspectionDate != "2025-02-01" || got.Status != domain.UnitInspected {
		t.Fatalf("unit after partial update: %+v", got)
	}
}

func TestRecordWorkForbiddenForAuthorityRole(t *testing.T) {
	env := newTestEnv(t)
	u := generateOne(t, env, domain.MaterialRailPad)
	if _, err := env.Engine.RecordWork(env.Ctx, sre, u.ID, engine.UnitUpdate{}); err == nil {
		t.Fatal("expected forbidden error for SRE")
	}
}

func TestSweepExpiryThreshold(t *testing.T) {
	env := newTestEnv(t)
	near := generateOne(t, env, domain.MaterialElasticClip) // expiry 2029-12-31
	far := generateOne(t, env, domain.MaterialRailPad)
	for _, u := range []domain.Unit{near, far} {
		if _, err := env.Engine.AssignTask(env.Ctx, admin, u.ID, je.Username, je.Role, ""); err != nil {
			t.Fatalf("assign: %v", err)
		}
		if _, err := env.Engine.CompleteTask(env.Ctx, je, u.ID); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
	// push far's expiry outside the window
	if _, err := env.Engine.DB.Exec(`UPDATE units SET expiry_date='2030-06-01' WHERE id=?`, far.ID); err != nil {
		t.Fatalf("adjust expiry: %v", err)
	}

	// 2029-12-01: exactly 30 days to 2029-12-31, inside the window
	env.Engine.Now = func() time.Time { return time.Date(2029, 12, 1, 9, 0, 0, 0, time.UTC) }
	res, err := env.Engine.SweepExpiry(env.Ctx, admin)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Raised) != 1 {
		t.Fatalf("raised %d alerts, want 1", len(res.Raised))
	}
	alert, err := env.Engine.Repo.GetAlert(env.Ctx, res.Raised[0])
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if alert.UnitID != near.ID || alert.Type != domain.AlertNearExpiry || alert.AssignedToRole != domain.RoleSRE {
		t.Fatalf("alert %+v", alert)
	}
	if alert.Notes != "30 days to expiry" {
		t.Fatalf("notes %q, want %q", alert.Notes, "30 days to expiry")
	}

	// rerun suppresses, does not duplicate
	res, err = env.Engine.SweepExpiry(env.Ctx, admin)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(res.Raised) != 0 || res.Suppressed != 1 {
		t.Fatalf("second sweep raised=%d suppressed=%d", len(res.Raised), res.Suppressed)
	}
}

func TestSweepExpiryOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	u := generateOne(t, env, domain.MaterialElasticClip) // expiry 2029-12-31
	if _, err := env.Engine.AssignTask(env.Ctx, admin, u.ID, je.Username, je.Role, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, je, u.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// 2029-11-30: 31 days out, no alert
	env.Engine.Now = func() time.Time { return time.Date(2029, 11, 30, 9, 0, 0, 0, time.UTC) }
	res, err := env.Engine.SweepExpiry(env.Ctx, admin)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Raised) != 0 {
		t.Fatalf("raised %d alerts, want 0", len(res.Raised))
	}
}

func TestSweepIgnoresPendingTasks(t *testing.T) {
	env := newTestEnv(t)
	u := generateOne(t, env, domain.MaterialLiner)
	if _, err := env.Engine.AssignTask(env.Ctx, admin, u.ID, je.Username, je.Role, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2029, 12, 20, 9, 0, 0, 0, time.UTC) }
	res, err := env.Engine.SweepExpiry(env.Ctx, admin)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Scanned != 0 || len(res.Raised) != 0 {
		t.Fatalf("sweep saw pending task: %+v", res)
	}
}

func TestInboxAndAcknowledge(t *testing.T) {
	env := newTestEnv(t)
	u := generateOne(t, env, domain.MaterialElasticClip)
	res, err := env.Engine.AssignTask(env.Ctx, admin, u.ID, je.Username, je.Role, "")
	if err != nil || res.AlertErr != nil {
		t.Fatalf("assign: %v / %v", err, res.AlertErr)
	}

	inbox, err := env.Engine.Inbox(env.Ctx, sre)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].ID != res.AlertID {
		t.Fatalf("sre inbox %+v", inbox)
	}
	// the assignee sees the assignment alert too, by name
	assignee, err := env.Engine.Inbox(env.Ctx, je)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(assignee) != 1 || assignee[0].ID != res.AlertID {
		t.Fatalf("je inbox %+v, want the assignment alert", assignee)
	}
	other, err := env.Engine.Inbox(env.Ctx, tech)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("tech inbox should be empty, got %+v", other)
	}

	// wrong recipient may not acknowledge
	if ok, err := env.Engine.Acknowledge(env.Ctx, tech, res.AlertID); err != nil || ok {
		t.Fatalf("foreign ack: ok=%v err=%v", ok, err)
	}
	if ok, err := env.Engine.Acknowledge(env.Ctx, sre, res.AlertID); err != nil || !ok {
		t.Fatalf("ack: ok=%v err=%v", ok, err)
	}
	// second ack is a silent no-op
	if ok, err := env.Engine.Acknowledge(env.Ctx, sre, res.AlertID); err != nil || ok {
		t.Fatalf("repeat ack: ok=%v err=%v", ok, err)
	}
	// absent alert likewise
	if ok, err := env.Engine.Acknowledge(env.Ctx, sre, 9999); err != nil || ok {
		t.Fatalf("absent ack: ok=%v err=%v", ok, err)
	}

	inbox, err = env.Engine.Inbox(env.Ctx, sre)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Status != domain.AlertRead {
		t.Fatalf("inbox after ack %+v", inbox)
	}
}

func TestLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	u := generateOne(t, env, domain.MaterialElasticClip)
	if u.MfgDate != "2025-01-01" || u.ExpiryDate != "2029-12-31" {
		t.Fatalf("dates %s / %s", u.MfgDate, u.ExpiryDate)
	}
	scanned, err := env.Engine.ResolveScan(env.Ctx, tag.TextDecoder{}, strings.NewReader(tag.RenderUnit(u)))
	if err != nil || scanned.ID != u.ID {
		t.Fatalf("scan: %+v %v", scanned, err)
	}
	res, err := env.Engine.AssignTask(env.Ctx, admin, u.ID, je.Username, je.Role, "install")
	if err != nil || res.AlertErr != nil {
		t.Fatalf("assign: %v / %v", err, res.AlertErr)
	}
	if wr, err := env.Engine.RecordWork(env.Ctx, je, u.ID, engine.UnitUpdate{FittedDate: "2025-01-03", Status: domain.UnitFitted}); err != nil || !wr.Completed {
		t.Fatalf("record: done=%v err=%v", wr.Completed, err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2029, 12, 1, 8, 0, 0, 0, time.UTC) }
	sweep, err := env.Engine.SweepExpiry(env.Ctx, admin)
	if err != nil || len(sweep.Raised) != 1 {
		t.Fatalf("sweep: %+v %v", sweep, err)
	}
	inbox, err := env.Engine.Inbox(env.Ctx, sre)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(inbox) != 2 {
		t.Fatalf("sre inbox has %d alerts, want task + expiry", len(inbox))
	}
	for _, a := range inbox {
		if ok, err := env.Engine.Acknowledge(env.Ctx, sre, a.ID); err != nil || !ok {
			t.Fatalf("ack %d: ok=%v err=%v", a.ID, ok, err)
		}
	}
}
