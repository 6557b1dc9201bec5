package main

import (
	"dating-platform/internal/httpapi"
	"dating-platform/internal/realtime"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	handlers httpapi.Handlers
	authMW   gin.HandlerFunc
	ws       *realtime.Handler
	// devRoutes mounts the credential-less login used by local clients.
	devRoutes bool
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.handlers

	// public
	r.GET("/healthz", h.Health)
	r.GET("/readyz", h.Readiness)

	if d.devRoutes {
		r.POST("/dev/login", h.DevLogin)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(d.authMW)
	{
		// Call signaling runs over this socket; identity comes from the access token.
		v1.GET("/ws", d.ws.Serve)

		calls := v1.Group("/calls")
		{
			calls.GET("/active", h.GetActiveCall)
			calls.GET("/:call_id", h.GetCall)
		}

		v1.GET("/wallet/balance", h.GetWalletBalance)

		// ADMIN routes
		admin := v1.Group("/admin")
		admin.Use(httpapi.AdminOnly()...)
		{
			admin.POST("/calls/reconcile", h.AdminReconcile)
			admin.GET("/calls/summary", h.AdminCallsSummary)
			admin.GET("/calls/:call_id/ledger", h.AdminCallLedger)
			admin.GET("/users/:user_id/coins", h.AdminUserCoins)
		}
	}
}
