package handler

import (
	"log/slog"
	"net/http"

	"modchat/backend/internal/chathub"
	"modchat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// ServeWebSocket upgrades the request and attaches the connection to the hub.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	var principal *models.Principal
	if h.Tokens != nil {
		p, err := h.Tokens.Principal(c.Request)
		if err != nil {
			slog.Warn("security.auth_failed", "remote", c.ClientIP(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		principal = p
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		slog.Debug("ws.upgrade_failed", "remote", c.ClientIP(), "error", err)
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, chathub.ClientOptions{
		Principal:      principal,
		Gate:           h.Gate,
		Localizer:      h.Localizer,
		MaxMessageSize: h.ws.MaxMessageSize,
		SendBuffer:     h.ws.SendBuffer,
		RatePerSecond:  h.ws.RatePerSecond,
		RateBurst:      h.ws.RateBurst,
	})

	if !h.Hub.Attach(client) {
		conn.Close()
		return
	}
	client.Run()
}
