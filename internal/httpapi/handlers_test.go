package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dating-platform/internal/audit"
	"dating-platform/internal/auth"
	"dating-platform/internal/calls"
	"dating-platform/internal/reporting"
	"dating-platform/internal/wallet"

	"github.com/gin-gonic/gin"
)

type fakeCalls struct {
	sessions map[string]calls.CallSession
	rep      calls.ReconcileReport
	err      error
}

func (f *fakeCalls) GetActiveCallForUser(_ context.Context, userID string) (calls.CallSession, bool, error) {
	if f.err != nil {
		return calls.CallSession{}, false, f.err
	}
	for _, s := range f.sessions {
		if s.IsParticipant(userID) && !s.Ended() {
			return s, true, nil
		}
	}
	return calls.CallSession{}, false, nil
}

func (f *fakeCalls) GetCall(_ context.Context, id string) (calls.CallSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return calls.CallSession{}, calls.ErrNotFound
	}
	return s, nil
}

func (f *fakeCalls) Reconcile(context.Context) (calls.ReconcileReport, error) {
	return f.rep, f.err
}

// newRouter mounts h behind a test identity taken from X-Test-User / X-Test-Role.
func newRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.Health)
	r.GET("/readyz", h.Readiness)
	v1 := r.Group("/v1")
	v1.Use(func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), uid, c.GetHeader("X-Test-Role")))
		}
		c.Next()
	})
	v1.GET("/calls/active", h.GetActiveCall)
	v1.GET("/calls/:call_id", h.GetCall)
	v1.GET("/wallet/balance", h.GetWalletBalance)
	admin := v1.Group("/admin", AdminOnly()...)
	admin.POST("/calls/reconcile", h.AdminReconcile)
	admin.GET("/calls/summary", h.AdminCallsSummary)
	admin.GET("/calls/:call_id/ledger", h.AdminCallLedger)
	admin.GET("/users/:user_id/coins", h.AdminUserCoins)
	return r
}

func do(r *gin.Engine, method, path, user, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
		req.Header.Set("X-Test-Role", role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func liveSession() calls.CallSession {
	return calls.CallSession{
		ID: "c1", CallerID: "alice", ReceiverID: "bob",
		Status: calls.StatusRinging, BillingStatus: calls.BillingLocked,
		CoinAmount: 50, CallDurationSeconds: 300, RingTimeoutSeconds: 30,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestHealth_ReportsOnlineUsers(t *testing.T) {
	r := newRouter(Handlers{Online: func() int { return 3 }})
	w := do(r, http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["online_users"] != float64(3) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestReadiness_Unavailable(t *testing.T) {
	r := newRouter(Handlers{Ready: func(context.Context) error { return errors.New("db down") }})
	if w := do(r, http.MethodGet, "/readyz", "", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestGetActiveCall(t *testing.T) {
	r := newRouter(Handlers{Calls: &fakeCalls{sessions: map[string]calls.CallSession{"c1": liveSession()}}})

	w := do(r, http.MethodGet, "/v1/calls/active", "bob", "user")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Call *calls.CallSession `json:"call"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Call == nil || body.Call.ID != "c1" {
		t.Fatalf("expected active call c1, got %s", w.Body.String())
	}

	w = do(r, http.MethodGet, "/v1/calls/active", "carol", "user")
	if w.Code != http.StatusOK || w.Body.String() != `{"call":null}` {
		t.Fatalf("expected null call, got %d %s", w.Code, w.Body.String())
	}

	if w := do(r, http.MethodGet, "/v1/calls/active", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", w.Code)
	}
}

func TestGetCall_OnlyParticipantsOrAdmin(t *testing.T) {
	r := newRouter(Handlers{Calls: &fakeCalls{sessions: map[string]calls.CallSession{"c1": liveSession()}}})

	if w := do(r, http.MethodGet, "/v1/calls/c1", "alice", "user"); w.Code != http.StatusOK {
		t.Fatalf("participant: expected 200, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/v1/calls/c1", "carol", "user"); w.Code != http.StatusNotFound {
		t.Fatalf("outsider: expected 404, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/v1/calls/c1", "root", "admin"); w.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/v1/calls/missing", "alice", "user"); w.Code != http.StatusNotFound {
		t.Fatalf("missing: expected 404, got %d", w.Code)
	}
}

func TestGetWalletBalance(t *testing.T) {
	store := wallet.NewMemoryStore()
	store.SetBalance("alice", 75)
	r := newRouter(Handlers{Wallet: store})

	w := do(r, http.MethodGet, "/v1/wallet/balance", "alice", "user")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var bal wallet.Balance
	_ = json.Unmarshal(w.Body.Bytes(), &bal)
	if bal.Coins != 75 {
		t.Fatalf("expected 75 coins, got %d", bal.Coins)
	}

	if w := do(r, http.MethodGet, "/v1/wallet/balance", "ghost", "user"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", w.Code)
	}
}

func TestAdminReconcile_AuditsRun(t *testing.T) {
	auditRepo := audit.NewMemoryRepo()
	fc := &fakeCalls{rep: calls.ReconcileReport{Scanned: 4, Missed: 1, Expired: 1}}
	r := newRouter(Handlers{Calls: fc, Audit: audit.NewService(auditRepo, nil)})

	if w := do(r, http.MethodPost, "/v1/admin/calls/reconcile", "alice", "user"); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", w.Code)
	}

	w := do(r, http.MethodPost, "/v1/admin/calls/reconcile", "root", "admin")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var rep calls.ReconcileReport
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if rep.Scanned != 4 || rep.Ended() != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	events := auditRepo.Events()
	if len(events) != 1 || events[0].Type != audit.EventTypeAdminReconcile || events[0].ActorUserID != "root" {
		t.Fatalf("expected one admin_reconcile event, got %+v", events)
	}
}

func TestAdminReconcile_Failure(t *testing.T) {
	r := newRouter(Handlers{Calls: &fakeCalls{err: errors.New("db down")}})
	if w := do(r, http.MethodPost, "/v1/admin/calls/reconcile", "root", "admin"); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestAdminCallsSummary(t *testing.T) {
	repo := calls.NewMemoryRepo()
	now := time.Now().UTC()
	ended := now.Add(time.Minute)
	if err := repo.Create(context.Background(), calls.CallSession{
		ID: "c1", CallerID: "a", ReceiverID: "b", Status: calls.StatusEnded, BillingStatus: calls.BillingRefunded,
		CoinAmount: 50, CreatedAt: now.Add(-time.Hour), EndedAt: &ended, EndReason: calls.EndReasonRejected,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := newRouter(Handlers{Reports: reporting.NewService(repo)})

	w := do(r, http.MethodGet, "/v1/admin/calls/summary", "root", "admin")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	var out reporting.CallsSummary
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.TotalCalls != 1 || out.RefundedCoins != 50 || out.ByEndReason["rejected"] != 1 {
		t.Fatalf("unexpected summary: %+v", out)
	}

	if w := do(r, http.MethodGet, "/v1/admin/calls/summary?from=yesterday", "root", "admin"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad from: expected 400, got %d", w.Code)
	}
	inverted := "/v1/admin/calls/summary?from=" + now.Format(time.RFC3339) + "&to=" + now.Add(-time.Hour).Format(time.RFC3339)
	if w := do(r, http.MethodGet, inverted, "root", "admin"); w.Code != http.StatusBadRequest {
		t.Fatalf("inverted range: expected 400, got %d", w.Code)
	}
}

func TestAdminCallLedger(t *testing.T) {
	store := wallet.NewMemoryStore()
	store.SetBalance("alice", 100)
	ctx := context.Background()
	if _, err := store.Debit(ctx, wallet.Posting{UserID: "alice", Amount: 50, Type: wallet.LedgerEntryTypeCallLock, ExternalRef: "c1", IdempotencyKey: wallet.CallLockKey("c1")}); err != nil {
		t.Fatalf("debit: %v", err)
	}
	r := newRouter(Handlers{Ledger: store})

	w := do(r, http.MethodGet, "/v1/admin/calls/c1/ledger", "root", "admin")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Entries []wallet.LedgerEntry `json:"entries"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Entries) != 1 || body.Entries[0].Amount != -50 {
		t.Fatalf("unexpected ledger: %s", w.Body.String())
	}
}
