package handler

import (
	"modchat/backend/internal/chathub"
	"modchat/backend/internal/config"
	"modchat/backend/internal/localization"

	"github.com/gorilla/websocket"
)

// Handler holds what the HTTP endpoints need to hand connections to the hub.
type Handler struct {
	Hub       *chathub.ManagerService
	Gate      *chathub.Gate
	Tokens    *TokenValidator
	Localizer *localization.Localizer

	ws       config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewHandler wires the handler. tokens may be nil, in which case clients
// identify themselves (development only). gate may be nil.
func NewHandler(hub *chathub.ManagerService, gate *chathub.Gate, tokens *TokenValidator, cfg *config.Config) *Handler {
	origins := newOriginPolicy(cfg.Server.AllowedOrigins)
	return &Handler{
		Hub:       hub,
		Gate:      gate,
		Tokens:    tokens,
		Localizer: localization.Default(),
		ws:        cfg.WebSocket,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}
