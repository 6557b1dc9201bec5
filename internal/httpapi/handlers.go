package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dating-platform/internal/audit"
	"dating-platform/internal/auth"
	"dating-platform/internal/calls"
	"dating-platform/internal/rbac"
	"dating-platform/internal/reporting"
	"dating-platform/internal/wallet"
	"dating-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallReader is the read and maintenance side of calls.Service used over HTTP.
// Call lifecycle changes happen over the socket only.
type CallReader interface {
	GetActiveCallForUser(ctx context.Context, userID string) (calls.CallSession, bool, error)
	GetCall(ctx context.Context, callID string) (calls.CallSession, error)
	Reconcile(ctx context.Context) (calls.ReconcileReport, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, userID string) (wallet.Balance, error)
}

type LedgerReader interface {
	LedgerForCall(ctx context.Context, callID string) ([]wallet.LedgerEntry, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Calls   CallReader
	Wallet  BalanceReader
	Ledger  LedgerReader
	Reports *reporting.Service
	Audit   *audit.Service

	// Ready reports dependency health for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
	// Online reports connected users, if a presence registry is wired.
	Online func() int
}

func (h Handlers) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.Online != nil {
		body["online_users"] = h.Online()
	}
	c.JSON(http.StatusOK, body)
}

func (h Handlers) Readiness(c *gin.Context) {
	if h.Ready != nil {
		if err := h.Ready(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("readiness check failed", "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// --- Auth ---

type devLoginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// DevLogin issues a token pair without credentials. Only routed outside production.
func (h Handlers) DevLogin(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req devLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	if req.Role == "" {
		req.Role = rbac.RoleUser
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

func (h Handlers) GetActiveCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	sess, found, err := h.Calls.GetActiveCallForUser(c.Request.Context(), userID)
	if err != nil {
		logger.FromGin(c).Error("active call lookup failed", "user_id", userID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "active call lookup failed"})
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"call": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": sess})
}

// GetCall returns one session to its participants. Admins may read any call.
// Everyone else gets 404 so call ids cannot be enumerated.
func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	role, _ := auth.Role(c.Request.Context())

	sess, err := h.Calls.GetCall(c.Request.Context(), c.Param("call_id"))
	switch {
	case errors.Is(err, calls.ErrNotFound), errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	case err != nil:
		logger.FromGin(c).Error("call lookup failed", "call_id", c.Param("call_id"), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	if !sess.IsParticipant(userID) && !rbac.IsAdmin(role) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// --- Wallet ---

func (h Handlers) GetWalletBalance(c *gin.Context) {
	if h.Wallet == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "wallet not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	bal, err := h.Wallet.Balance(c.Request.Context(), userID)
	if errors.Is(err, wallet.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
		return
	}
	c.JSON(http.StatusOK, bal)
}

// --- Admin ---

// AdminReconcile runs one reconciliation sweep on demand and audits it.
func (h Handlers) AdminReconcile(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	adminUserID, _ := auth.UserID(c.Request.Context())
	adminRole, _ := auth.Role(c.Request.Context())

	rep, err := h.Calls.Reconcile(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("manual reconcile failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconcile failed"})
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogAdminReconcile(c.Request.Context(), adminUserID, adminRole, rep.Ended()); err != nil {
			logger.FromGin(c).Warn("audit admin reconcile failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, rep)
}

// AdminCallsSummary aggregates calls created in [from, to). Defaults to the last 24h.
func (h Handlers) AdminCallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		Range:  rng,
		UserID: c.Query("user_id"),
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) AdminUserCoins(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.UserCoins(c.Request.Context(), reporting.UserCoinsRequest{
		UserID: c.Param("user_id"),
		Range:  rng,
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and a valid range required"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// AdminCallLedger lists the coin postings recorded against one call.
func (h Handlers) AdminCallLedger(c *gin.Context) {
	if h.Ledger == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ledger not configured"})
		return
	}
	entries, err := h.Ledger.LedgerForCall(c.Request.Context(), c.Param("call_id"))
	if errors.Is(err, wallet.ErrInvalidArgument) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ledger lookup failed"})
		return
	}
	if entries == nil {
		entries = []wallet.LedgerEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"call_id": c.Param("call_id"), "entries": entries})
}

// parseRange reads RFC3339 from/to query params. It writes the 400 itself.
func parseRange(c *gin.Context) (reporting.TimeRange, bool) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return reporting.TimeRange{}, false
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return reporting.TimeRange{}, false
		}
		to = t
	}
	return reporting.TimeRange{From: from, To: to}, true
}

// AdminOnly bundles the middleware guarding /v1/admin.
func AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireAnyRole(rbac.RoleAdmin)}
}
