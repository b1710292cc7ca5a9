package websocket

import (
	"log/slog"
	"net/http"
	"time"

	"socialhub/internal/microservices/http-api/middleware"
	"socialhub/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// HTTP upgrade handler to push-channel connections

type WSHandler struct {
	registry *Registry
	verifier service.IdentityVerifier
	upgrader websocket.Upgrader
	opts     ConnOptions
	logger   *slog.Logger
}

// NewWSHandler builds the upgrade handler. allowedOrigins may contain "*".
// Requests without an Origin header (non-browser clients) are always accepted.
func NewWSHandler(registry *Registry, verifier service.IdentityVerifier, opts ConnOptions, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &WSHandler{
		registry: registry,
		verifier: verifier,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Handle upgrades the request, verifies the credential and joins the
// connection to its user's room. A rejected credential is reported with
// close code CloseAuthFailed so clients can tell it apart from network loss.
func (h *WSHandler) Handle(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader already wrote the HTTP error
		h.logger.Warn("websocket_upgrade_failed", "error", err)
		return
	}

	identity, err := h.verifier.Verify(handshakeToken(c))
	if err != nil {
		h.logger.Warn("websocket_auth_failed", "remote_addr", c.ClientIP(), "error", err)
		msg := websocket.FormatCloseMessage(CloseAuthFailed, "authentication failed")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.opts.WriteWait))
		_ = ws.Close()
		return
	}

	conn := NewConn(ws, identity.UserID, identity.DisplayName, h.registry, h.opts, h.logger)
	// ack is queued ahead of any event the room receives
	if frame, err := NewConnected(identity.UserID).ToJSON(); err == nil {
		conn.Enqueue(frame)
	}
	h.registry.Register(conn)

	// start goroutines for read and write pumps
	go conn.WritePump()
	go conn.ReadPump()
}

// handshakeToken reads the credential from ?token=, ?auth= or a bearer header
func handshakeToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	if token := c.Query("auth"); token != "" {
		return token
	}
	token, _ := middleware.BearerToken(c.GetHeader("Authorization"))
	return token
}

// Health reports registry size
func (h *WSHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.registry.ConnectionCount(),
		"users":       h.registry.UserCount(),
	})
}
