package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"trackfit/internal/app"
	"trackfit/internal/config"
	"trackfit/internal/db"
	"trackfit/internal/domain"
	"trackfit/internal/engine"
	"trackfit/internal/engine/auth"
	"trackfit/internal/migrate"
	"trackfit/internal/repo"
	"trackfit/internal/tag"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := app.SeedUsers(context.Background(), conn); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Renderer = tag.NopRenderer{}
	handler, err := New(Config{
		Engine:  e,
		Auth:    auth.Service{DB: conn},
		AuthCfg: AuthConfig{JWTSecret: testSecret},
	})
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

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
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
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
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

func login(t *testing.T, srv *testServer, username, password string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", LoginRequest{
		Username: username,
		Password: password,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, res.StatusCode, data)
	}
	var out LoginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + out.Token}
}

func TestHealthIsOpen(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, data)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/units", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", res.StatusCode)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", LoginRequest{
		Username: "admin1",
		Password: "wrong",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", res.StatusCode)
	}
}

func TestMeReportsPrincipal(t *testing.T) {
	srv := newTestServer(t)
	hdr := login(t, srv, "sre01", "SREpass01")
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, hdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, data)
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if who.Username != "sre01" || who.Role != "SRE" || who.Source != "jwt" {
		t.Fatalf("whoami %+v", who)
	}
}

func TestGenerateRequiresAdmin(t *testing.T) {
	srv := newTestServer(t)
	body := GenerateUnitsRequest{
		Materials: []string{"elastic_clip"},
		VendorLot: "LOT-9",
		BatchNo:   4,
		Quantity:  2,
	}
	jeHdr := login(t, srv, "je01", "JEpass01")
	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/units/generate", body, jeHdr)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("je generate status %d, want 403", res.StatusCode)
	}
	adminHdr := login(t, srv, "admin1", "Admin@123")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/units/generate", body, adminHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin generate status %d: %s", res.StatusCode, data)
	}
	var out GenerateUnitsResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Count != 2 || len(out.Units) != 2 {
		t.Fatalf("generated %+v", out)
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	adminHdr := login(t, srv, "admin1", "Admin@123")
	jeHdr := login(t, srv, "je01", "JEpass01")
	sreHdr := login(t, srv, "sre01", "SREpass01")

	// generate one unit
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/units/generate", GenerateUnitsRequest{
		Materials: []string{"rail_pad"},
		VendorLot: "LOT-1",
		BatchNo:   1,
		Quantity:  1,
	}, adminHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("generate status %d: %s", res.StatusCode, data)
	}
	var gen GenerateUnitsResponse
	if err := json.Unmarshal(data, &gen); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	unitID := gen.Units[0].ID

	// scan resolves the payload back to the unit
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/scan", ScanRequest{
		Payload: tag.RenderUnit(gen.Units[0]),
	}, jeHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("scan status %d: %s", res.StatusCode, data)
	}
	var scanned domain.Unit
	if err := json.Unmarshal(data, &scanned); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if scanned.ID != unitID {
		t.Fatalf("scan resolved %s, want %s", scanned.ID, unitID)
	}

	// assign to je01
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/units/"+unitID+"/tasks", AssignTaskRequest{
		AssignedTo:   "je01",
		AssigneeRole: "JE",
	}, adminHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign status %d: %s", res.StatusCode, data)
	}
	var assigned AssignTaskResponse
	if err := json.Unmarshal(data, &assigned); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if assigned.AlertID == 0 || assigned.AlertError != "" {
		t.Fatalf("assign alert %+v", assigned)
	}

	// je records work
	status := "Fitted"
	fitted := "2025-02-01"
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/units/"+unitID+"/work", RecordWorkRequest{
		FittedDate: &fitted,
		Status:     &status,
	}, jeHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("work status %d: %s", res.StatusCode, data)
	}
	var worked RecordWorkResponse
	if err := json.Unmarshal(data, &worked); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !worked.Completed || worked.Unit.Status != domain.UnitFitted {
		t.Fatalf("work %+v", worked)
	}

	// sre sees the escalation alert and acknowledges it
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/inbox", nil, sreHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("inbox status %d: %s", res.StatusCode, data)
	}
	var inbox []domain.Alert
	if err := json.Unmarshal(data, &inbox); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(inbox) != 1 || inbox[0].ID != assigned.AlertID {
		t.Fatalf("inbox %+v", inbox)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, fmt.Sprintf("%s/v1/alerts/%d/ack", srv.URL, assigned.AlertID), nil, sreHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ack status %d: %s", res.StatusCode, data)
	}
	var ack AckResponse
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ack.Acknowledged {
		t.Fatalf("ack %+v", ack)
	}

	// product view ties it together
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/units/"+unitID+"/product", nil, adminHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("product status %d: %s", res.StatusCode, data)
	}
	var view ProductViewResponse
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(view.Tasks) != 1 || view.Tasks[0].Status != domain.TaskCompleted {
		t.Fatalf("product tasks %+v", view.Tasks)
	}
	if len(view.Alerts) != 1 || view.Alerts[0].Status != domain.AlertRead {
		t.Fatalf("product alerts %+v", view.Alerts)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	key := "tfk_local_test_key"
	err := srv.Engine.Repo.InsertAPIKey(context.Background(), nil, domain.APIKey{
		ID:       "key-1",
		Username: "admin1",
		Name:     "ci",
		KeyHash:  repo.HashAPIKey(key),
	})
	if err != nil {
		t.Fatalf("insert key: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via key status %d: %s", res.StatusCode, data)
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if who.Username != "admin1" || who.Source != "api_key" {
		t.Fatalf("whoami %+v", who)
	}
}

func TestScanMalformedPayload(t *testing.T) {
	srv := newTestServer(t)
	hdr := login(t, srv, "admin1", "Admin@123")
	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/scan", ScanRequest{Payload: "garbage"}, hdr)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", res.StatusCode)
	}
}
