package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"leadbridge/internal/archive"
	"leadbridge/internal/audit"
	"leadbridge/internal/auth"
	"leadbridge/internal/callstore"
	"leadbridge/internal/config"
	"leadbridge/internal/leads"
	"leadbridge/internal/rbac"
	"leadbridge/internal/reporting"
	"leadbridge/internal/telephony"
)

type fakeLeadService struct {
	startErr error
	res      leads.StartResult
	recs     map[string]callstore.Record
}

func (f *fakeLeadService) Start(ctx context.Context, req leads.StartRequest) (leads.StartResult, error) {
	if f.startErr != nil {
		return leads.StartResult{}, f.startErr
	}
	return f.res, nil
}

func (f *fakeLeadService) Get(callID string) (callstore.Record, bool) {
	rec, ok := f.recs[callID]
	return rec, ok
}

type fakeReporter struct{ sum reporting.Summary }

func (f *fakeReporter) Summarize(context.Context) (reporting.Summary, error) { return f.sum, nil }

type fakeAuditTrail struct{ events []audit.Event }

func (f *fakeAuditTrail) Trail(context.Context, string) ([]audit.Event, error) {
	return f.events, nil
}

type nopSink struct{}

func (nopSink) HandleEvent(context.Context, telephony.Event) error { return nil }

func testRouter(t *testing.T, svc *fakeLeadService) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mgr, err := auth.NewManager(config.AuthConfig{
		JWTSecret:      "test-secret",
		AccessTokenTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	h := &Handlers{
		Leads:          svc,
		Snapshots:      archive.NewMemoryRepo(),
		Reports:        &fakeReporter{},
		Audit:          &fakeAuditTrail{},
		AgentStreamURL: "wss://api.example.com/agent/stream",
	}
	r := NewRouter(RouterDeps{
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Auth:        mgr,
		Handlers:    h,
		Webhooks:    telephony.WebhookHandler{Sink: nopSink{}},
		AgentStream: func(c *gin.Context) { c.Status(http.StatusOK) },
	})
	return r, mgr
}

func bearer(t *testing.T, mgr *auth.Manager, role string) string {
	t.Helper()
	tok, err := mgr.IssueAccess(time.Now(), "user-1", role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + tok
}

func TestStartLead(t *testing.T) {
	svc := &fakeLeadService{res: leads.StartResult{
		LeadID: "lead-1", ContactCallID: "CAc", SalesCallID: "CAs",
	}}
	r, mgr := testRouter(t, svc)

	body := `{"contact_name":"Dana Reyes","contact_phone":"+15550100"}`
	req := httptest.NewRequest("POST", "/v1/leads", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, mgr, rbac.RoleOperator))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "lead-1") {
		t.Fatalf("missing lead id: %s", w.Body.String())
	}
}

func TestStartLead_RequiresToken(t *testing.T) {
	r, _ := testRouter(t, &fakeLeadService{})

	req := httptest.NewRequest("POST", "/v1/leads", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestStartLead_CapacityMapsTo429(t *testing.T) {
	r, mgr := testRouter(t, &fakeLeadService{startErr: leads.ErrTooManyActiveLeads})

	req := httptest.NewRequest("POST", "/v1/leads",
		strings.NewReader(`{"contact_name":"x","contact_phone":"y"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, mgr, rbac.RoleOperator))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetCall(t *testing.T) {
	svc := &fakeLeadService{recs: map[string]callstore.Record{
		"CAc": {CallID: "CAc", Role: callstore.RoleContact},
	}}
	r, mgr := testRouter(t, svc)

	req := httptest.NewRequest("GET", "/v1/calls/CAc", nil)
	req.Header.Set("Authorization", bearer(t, mgr, rbac.RoleOperator))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/v1/calls/CAnope", nil)
	req.Header.Set("Authorization", bearer(t, mgr, rbac.RoleOperator))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSnapshotNotFound(t *testing.T) {
	r, mgr := testRouter(t, &fakeLeadService{})

	req := httptest.NewRequest("GET", "/v1/leads/lead-9/snapshot", nil)
	req.Header.Set("Authorization", bearer(t, mgr, rbac.RoleOperator))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAuditTrail_AdminOnly(t *testing.T) {
	r, mgr := testRouter(t, &fakeLeadService{})

	req := httptest.NewRequest("GET", "/v1/leads/lead-1/audit", nil)
	req.Header.Set("Authorization", bearer(t, mgr, rbac.RoleOperator))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("operator should be forbidden, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/v1/leads/lead-1/audit", nil)
	req.Header.Set("Authorization", bearer(t, mgr, rbac.RoleAdmin))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("admin should pass, got %d", w.Code)
	}
}

func TestContactTwiML(t *testing.T) {
	r, _ := testRouter(t, &fakeLeadService{})

	req := httptest.NewRequest("POST", "/twiml/contact", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "wss://api.example.com/agent/stream") {
		t.Fatalf("twiml missing stream url: %s", w.Body.String())
	}
}

func TestStatusWebhookAccepted(t *testing.T) {
	r, _ := testRouter(t, &fakeLeadService{})

	form := "CallSid=CA1&CallStatus=ringing"
	req := httptest.NewRequest("POST", "/webhooks/voice/status", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
