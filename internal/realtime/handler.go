package realtime

import (
	"context"
	"net/http"

	"dating-platform/internal/auth"
	"dating-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin is not checked; the access token in the query is the credential.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated requests to sockets.
// It must sit behind auth.RequireAccessToken.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) Serve(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.FromGin(c).Warn("ws upgrade failed", "user_id", userID, "err", err)
		return
	}

	client := newClient(h.hub, conn, userID)
	h.hub.register(client)

	go client.WritePump()
	// Keep request-scoped values (logger, identity) but not the request's cancellation.
	client.ReadPump(context.WithoutCancel(c.Request.Context()))
}
