package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"modchat/backend/internal/localization"
	"modchat/backend/internal/metrics"
	"modchat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultMaxMessageSize = 4096
	defaultSendBuffer     = 256
	localBuffer           = 8
)

// ClientOptions configures NewWebSocketClient.
type ClientOptions struct {
	// Principal is the verified actor from the upgrade request. When set,
	// identify signals must match its role and carry its id.
	Principal *models.Principal

	Gate      *Gate
	Localizer *localization.Localizer

	MaxMessageSize int64
	SendBuffer     int

	// RatePerSecond <= 0 disables inbound rate limiting.
	RatePerSecond float64
	RateBurst     int
}

// WebSocketClient implements Client over a gorilla websocket connection.
type WebSocketClient struct {
	handle string
	conn   *websocket.Conn
	hub    *ManagerService
	opts   ClientOptions

	// send is written by the hub only; local carries gate denials from
	// readPump.
	send  chan models.ChatEvent
	local chan models.ChatEvent

	limiter   *rate.Limiter
	closeOnce sync.Once

	// Owned by readPump.
	role       models.Role
	identityID string
	lang       string
}

func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, opts ClientOptions) *WebSocketClient {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.Localizer == nil {
		opts.Localizer = localization.Default()
	}

	c := &WebSocketClient{
		handle: uuid.NewString(),
		conn:   conn,
		hub:    hub,
		opts:   opts,
		send:   make(chan models.ChatEvent, opts.SendBuffer),
		local:  make(chan models.ChatEvent, localBuffer),
	}
	if opts.RatePerSecond > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(opts.RatePerSecond) + 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return c
}

func (c *WebSocketClient) GetHandle() string                       { return c.handle }
func (c *WebSocketClient) GetSendChannel() chan<- models.ChatEvent { return c.send }

// Run starts the pumps. Call it after the hub accepted the client.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the send channel, which makes writePump close the socket.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *WebSocketClient) readPump() {
	// writePump owns closing the socket so queued denials still go out.
	defer c.hub.Detach(c)

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("ws.read_failed", "handle", c.handle, "error", err)
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			metrics.RateLimited.Inc()
			slog.Warn("security.rate_limited", "handle", c.handle)
			continue
		}

		var sig models.Signal
		if err := json.Unmarshal(data, &sig); err != nil {
			slog.Debug("ws.bad_frame", "handle", c.handle, "error", err)
			continue
		}

		forward, err := c.admit(&sig)
		if err != nil {
			return
		}
		if !forward {
			continue
		}
		if !c.hub.Submit(models.Inbound{Handle: c.handle, Signal: sig}) {
			return
		}
	}
}

// admit applies the principal and the entitlement gate to sig. A non-nil
// error means the connection must be closed.
func (c *WebSocketClient) admit(sig *models.Signal) (bool, error) {
	ctx := context.Background()

	switch sig.Event {
	case models.EventIdentifyUser, models.EventIdentifyModerator:
		role := models.RoleUser
		if sig.Event == models.EventIdentifyModerator {
			role = models.RoleModerator
		}
		if p := c.opts.Principal; p != nil {
			if p.Role != role {
				metrics.ProtocolViolations.WithLabelValues("wrong_role").Inc()
				slog.Warn("security.role_mismatch", "handle", c.handle, "claimed", p.Role, "signal", sig.Event)
				return false, ErrWrongRole
			}
			sig.ID = p.ID
			if sig.Name == "" {
				sig.Name = p.Name
			}
		}

		id := sig.ID
		if id == "" {
			id = c.handle
		}
		if err := c.opts.Gate.Admit(ctx, id); err != nil {
			c.lang = sig.Lang
			c.deny(ReasonBanned)
			slog.Warn("security.banned_identity", "handle", c.handle, "id", id)
			return false, err
		}
		c.role, c.identityID, c.lang = role, id, sig.Lang
		return true, nil

	case models.EventFindNext, models.EventSendMessage:
		if reason := c.opts.Gate.Check(ctx, c.identityID, c.role, *sig); reason != "" {
			c.deny(reason)
			return false, nil
		}
	}
	return true, nil
}

func (c *WebSocketClient) deny(reason string) {
	evt := models.ChatEvent{
		Event:  models.EventLimitReached,
		Reason: reason,
		Text:   c.opts.Localizer.GetString(c.lang, models.EventLimitReached),
	}
	select {
	case c.local <- evt:
	default:
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				c.drainLocal()
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(evt); err != nil {
				return
			}

		case evt := <-c.local:
			if err := c.write(evt); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainLocal flushes pending gate denials before the socket is closed.
func (c *WebSocketClient) drainLocal() {
	for {
		select {
		case evt := <-c.local:
			if err := c.write(evt); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *WebSocketClient) write(evt models.ChatEvent) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(evt); err != nil {
		if !errors.Is(err, websocket.ErrCloseSent) {
			slog.Debug("ws.write_failed", "handle", c.handle, "error", err)
		}
		return err
	}
	return nil
}
