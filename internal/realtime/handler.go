package realtime

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/common/middleware"
	"github.com/codeowl/platform/internal/session"
)

// Handler upgrades signed-in requests to websocket connections.
type Handler struct {
	hub      *Hub
	sessions *session.Manager
	upgrader websocket.Upgrader
}

// NewHandler accepts upgrades from the given origins. An empty list
// accepts any origin.
func NewHandler(hub *Hub, sessions *session.Manager, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		hub:      hub,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/realtime", h.Connect)
}

// Connect resolves the session from the X-Session-ID header or the
// session_id query parameter, since browsers cannot set headers on a
// websocket handshake.
func (h *Handler) Connect(c *gin.Context) {
	id := c.GetHeader(middleware.SessionHeader)
	if id == "" {
		id = c.Query("session_id")
	}
	if id == "" {
		middleware.JSONErrorResponse(c, errors.Unauthorized("missing session"))
		return
	}
	s, err := h.sessions.Get(id)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.hub.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	client := h.hub.Attach(conn, s.UserID)
	h.hub.log.Info("realtime client connected",
		zap.String("client_id", client.ID),
		zap.String("user_id", s.UserID))
}
