// Package roomstate holds the in-memory projections of a room's
// members and messages. Both projections are idempotent under repeated
// delivery: the same join or message can arrive once via the local
// optimistic write and again via the event bus, and the second apply
// is a no-op. All operations are safe for concurrent use.
package roomstate

import (
	"sync"

	"github.com/google/uuid"

	"github.com/kalimahplay/kalimah/go/internal/models"
)

// Roster is the insertion-ordered set of room members, keyed by user id
// for upserts and by the surrogate row id for delete correlation.
type Roster struct {
	mu      sync.RWMutex
	order   []uuid.UUID // user ids in join order
	byUser  map[uuid.UUID]models.Member
	userFor map[uuid.UUID]uuid.UUID // surrogate id -> user id
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{
		byUser:  make(map[uuid.UUID]models.Member),
		userFor: make(map[uuid.UUID]uuid.UUID),
	}
}

// Upsert adds a member to the roster. If a member with the same user id
// is already present the roster is unchanged and the existing entry is
// returned; added reports whether the roster grew.
func (r *Roster) Upsert(m models.Member) (member models.Member, added bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byUser[m.UserID]; ok {
		return existing, false
	}

	r.byUser[m.UserID] = m
	r.userFor[m.ID] = m.UserID
	r.order = append(r.order, m.UserID)
	return m, true
}

// Remove deletes a member by surrogate id or by user id, whichever
// matches. Removing an absent member is a no-op.
func (r *Roster) Remove(id uuid.UUID) (member models.Member, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := id
	if mapped, ok := r.userFor[id]; ok {
		userID = mapped
	}

	m, ok := r.byUser[userID]
	if !ok {
		return models.Member{}, false
	}

	delete(r.byUser, userID)
	delete(r.userFor, m.ID)
	for i, uid := range r.order {
		if uid == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return m, true
}

// Get returns the member for a user id, if present.
func (r *Roster) Get(userID uuid.UUID) (models.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byUser[userID]
	return m, ok
}

// Members returns the members in join order.
func (r *Roster) Members() []models.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Member, 0, len(r.order))
	for _, uid := range r.order {
		out = append(out, r.byUser[uid])
	}
	return out
}

// Len returns the number of members.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
