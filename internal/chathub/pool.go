package chathub

import (
	"math/rand/v2"

	"modchat/backend/internal/models"
)

// Pool is the set of moderators that are online, unpaired and not mid-match.
// It is owned by the hub loop and not safe for concurrent use.
type Pool struct {
	members []string
	index   map[string]int
	rnd     *rand.Rand
}

func NewPool(rnd *rand.Rand) *Pool {
	return &Pool{
		index: make(map[string]int),
		rnd:   rnd,
	}
}

// Add puts a moderator into the pool. It is a no-op for other roles and for
// handles already present.
func (p *Pool) Add(handle string, role models.Role) bool {
	if role != models.RoleModerator {
		return false
	}
	if _, ok := p.index[handle]; ok {
		return false
	}
	p.index[handle] = len(p.members)
	p.members = append(p.members, handle)
	return true
}

// Remove is a no-op for handles not in the pool.
func (p *Pool) Remove(handle string) bool {
	i, ok := p.index[handle]
	if !ok {
		return false
	}
	last := len(p.members) - 1
	if i != last {
		moved := p.members[last]
		p.members[i] = moved
		p.index[moved] = i
	}
	p.members = p.members[:last]
	delete(p.index, handle)
	return true
}

func (p *Pool) Contains(handle string) bool {
	_, ok := p.index[handle]
	return ok
}

func (p *Pool) Len() int { return len(p.members) }

// PickRandom returns a uniformly chosen member other than excluding, or
// false when no other member exists. The pool is not modified.
func (p *Pool) PickRandom(excluding string) (string, bool) {
	n := len(p.members)
	ex, excluded := p.index[excluding]
	if excluded {
		n--
	}
	if n <= 0 {
		return "", false
	}

	// Draw over the members with the excluded slot skipped.
	i := p.rnd.IntN(n)
	if excluded && i >= ex {
		i++
	}
	return p.members[i], true
}
