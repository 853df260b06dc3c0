package chathub

import (
	"fmt"

	"modchat/backend/internal/models"

	lru "github.com/hashicorp/golang-lru/v2"
)

// recentRoomsSize bounds how many ended rooms a connection remembers for
// telling stale room tags apart from foreign ones. Once a connection has
// left more rooms than that, no tag of it can be proven foreign.
const recentRoomsSize = 16

// Connection is a registered connection: its handle, immutable role and
// display identity.
type Connection struct {
	Handle   string
	Role     models.Role
	Identity models.Identity

	recentRooms *lru.Cache[string, struct{}]
	forgotRooms bool

	// tagsTyping is set once the client sends a typing signal with a room
	// tag; untagged typing from it is then dropped.
	tagsTyping bool
}

// RememberRoom records that this connection was part of roomID.
func (c *Connection) RememberRoom(roomID string) {
	c.recentRooms.Add(roomID, struct{}{})
}

// WasInRoom reports whether roomID may be a room c has left. It is true for
// every remembered room and, after older rooms were evicted, for any room.
func (c *Connection) WasInRoom(roomID string) bool {
	return c.forgotRooms || c.recentRooms.Contains(roomID)
}

// Registry is the authoritative map from handle to role and identity.
// It is owned by the hub loop and not safe for concurrent use.
type Registry struct {
	conns map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Register records handle with role. Re-registering with the same role
// updates the identity and returns created=false; a different role is
// rejected with ErrRoleChange.
func (r *Registry) Register(handle string, role models.Role, identity models.Identity) (conn *Connection, created bool, err error) {
	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnknownRole, err)
	}

	if existing, ok := r.conns[handle]; ok {
		if existing.Role != role {
			return nil, false, fmt.Errorf("%w: %s -> %s", ErrRoleChange, existing.Role, role)
		}
		existing.Identity = identity
		return existing, false, nil
	}

	conn = &Connection{
		Handle:   handle,
		Role:     role,
		Identity: identity,
	}
	recent, err := lru.NewWithEvict(recentRoomsSize, func(string, struct{}) {
		conn.forgotRooms = true
	})
	if err != nil {
		return nil, false, err
	}
	conn.recentRooms = recent
	r.conns[handle] = conn
	return conn, true, nil
}

// Unregister removes handle. Safe to call repeatedly.
func (r *Registry) Unregister(handle string) bool {
	if _, ok := r.conns[handle]; !ok {
		return false
	}
	delete(r.conns, handle)
	return true
}

// RoleOf returns RoleUnknown for handles that are not (or no longer) registered.
func (r *Registry) RoleOf(handle string) models.Role {
	if c, ok := r.conns[handle]; ok {
		return c.Role
	}
	return models.RoleUnknown
}

func (r *Registry) Get(handle string) (*Connection, bool) {
	c, ok := r.conns[handle]
	return c, ok
}

// Count returns the number of registered users and moderators.
func (r *Registry) Count() (users, moderators int) {
	for _, c := range r.conns {
		switch c.Role {
		case models.RoleUser:
			users++
		case models.RoleModerator:
			moderators++
		}
	}
	return users, moderators
}
