package models

import "fmt"

// Role is decided once per connection at handshake and never changes.
type Role string

const (
	RoleUnknown   Role = ""
	RoleUser      Role = "user"
	RoleModerator Role = "mod"
)

// ParseRole maps a role claim to one of the known roles.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleModerator:
		return Role(s), nil
	default:
		return RoleUnknown, fmt.Errorf("unrecognized role %q", s)
	}
}

// Inbound event names (client -> server).
const (
	EventIdentifyUser      = "user:identify"
	EventIdentifyModerator = "mod:online"
	EventFindNext          = "user:next"
	EventSendMessage       = "chat:message"
	EventTyping            = "typing"
	EventStopTyping        = "stop:typing"
	EventEndChat           = "chat:next"
)

// Outbound event names (server -> client).
const (
	EventSearching      = "match:searching"
	EventMatched        = "chat:connected"
	EventPartnerProfile = "partner:profile"
	EventMessage        = "chat:message"
	EventChatEnded      = "chat:ended"
	EventNoModerator    = "no-mod-available"
	EventLimitReached   = "limit:reached"
)

// Message types accepted on chat:message.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageGift  = "gift"
)

// IsMessageType reports whether t is a relayable chat:message type.
func IsMessageType(t string) bool {
	switch t {
	case MessageText, MessageImage, MessageGift:
		return true
	}
	return false
}

// Signal is one inbound frame.
type Signal struct {
	Event   string `json:"event"`
	RoomID  string `json:"room_id,omitempty"`
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`

	// Identify payload. ID is only honoured when auth is disabled.
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Lang string `json:"lang,omitempty"`

	// Gender is the partner profile preference sent with user:next.
	Gender string `json:"gender,omitempty"`
}

// ChatEvent is one outbound frame.
type ChatEvent struct {
	Event      string          `json:"event"`
	RoomID     string          `json:"room_id,omitempty"`
	SenderRole Role            `json:"sender_role,omitempty"`
	Type       string          `json:"type,omitempty"`
	Content    string          `json:"content,omitempty"`
	DelayMS    int64           `json:"delay_ms,omitempty"`
	Partner    *PartnerProfile `json:"partner,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Text       string          `json:"text,omitempty"`
}

// Inbound is a Signal tagged with the connection it arrived on.
type Inbound struct {
	Handle string
	Signal Signal
}

// Identity is the display identity a connection declares at handshake.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Lang        string `json:"lang,omitempty"`
}

// Principal is the verified actor handed over by the auth collaborator.
type Principal struct {
	ID   string
	Role Role
	Name string
}
