package handler

import (
	"context"
	"net/http"
	"time"

	"modchat/backend/internal/config"
	"modchat/backend/internal/metrics"

	"github.com/gin-gonic/gin"
)

const statsTimeout = 2 * time.Second

// NewRouter registers every HTTP endpoint of the server.
func NewRouter(h *Handler, cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", h.ServeWebSocket)
	r.GET("/healthz", h.Health)
	r.GET("/stats", h.Stats)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}
	return r
}

// Health reports whether the hub loop is still running.
func (h *Handler) Health(c *gin.Context) {
	select {
	case <-h.Hub.Done():
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stopped"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Stats returns a snapshot of the hub's counters.
func (h *Handler) Stats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), statsTimeout)
	defer cancel()

	s, err := h.Hub.Snapshot(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}
