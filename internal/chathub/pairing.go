package chathub

import (
	"fmt"
	"time"
)

// Pairing is one live room between two distinct connections.
type Pairing struct {
	RoomID    string
	User      string
	Moderator string
	StartedAt time.Time
}

// Other returns the handle on the opposite side of handle.
func (p *Pairing) Other(handle string) string {
	if p.User == handle {
		return p.Moderator
	}
	return p.User
}

// PairingTable maps every paired handle to its pairing; both directed
// entries point at the same *Pairing, so lookups work from either side.
// It is owned by the hub loop and not safe for concurrent use.
type PairingTable struct {
	byHandle map[string]*Pairing
	count    int
}

func NewPairingTable() *PairingTable {
	return &PairingTable{byHandle: make(map[string]*Pairing)}
}

// Commit pairs user and moderator under roomID. It fails without changing
// anything if either side already has a partner or both are the same handle.
func (t *PairingTable) Commit(user, moderator, roomID string, now time.Time) (*Pairing, error) {
	if user == moderator {
		return nil, ErrSelfMatch
	}
	if _, ok := t.byHandle[user]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPaired, user)
	}
	if _, ok := t.byHandle[moderator]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPaired, moderator)
	}

	p := &Pairing{
		RoomID:    roomID,
		User:      user,
		Moderator: moderator,
		StartedAt: now,
	}
	t.byHandle[user] = p
	t.byHandle[moderator] = p
	t.count++
	return p, nil
}

// PartnerOf returns the partner of handle, or false when handle is unpaired.
func (t *PairingTable) PartnerOf(handle string) (string, bool) {
	p, ok := t.byHandle[handle]
	if !ok {
		return "", false
	}
	return p.Other(handle), true
}

// Lookup returns the pairing containing handle.
func (t *PairingTable) Lookup(handle string) (*Pairing, bool) {
	p, ok := t.byHandle[handle]
	return p, ok
}

// Remove deletes both directed entries of the pairing containing handle and
// returns it. The ex-partner is p.Other(handle).
func (t *PairingTable) Remove(handle string) (*Pairing, bool) {
	p, ok := t.byHandle[handle]
	if !ok {
		return nil, false
	}
	delete(t.byHandle, p.User)
	delete(t.byHandle, p.Moderator)
	t.count--
	return p, true
}

// Len returns the number of pairings (not directed entries).
func (t *PairingTable) Len() int { return t.count }
