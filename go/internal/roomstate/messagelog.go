package roomstate

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kalimahplay/kalimah/go/internal/models"
)

// MessageLog is the append-only, deduplicated chat transcript for one
// room. Messages render in non-decreasing SentAt order with ties broken
// by id, so an optimistic local insert and a racing remote echo settle
// into the same order on every observer.
type MessageLog struct {
	mu   sync.RWMutex
	msgs []models.Message
	seen map[uuid.UUID]struct{}
}

// NewMessageLog creates an empty message log.
func NewMessageLog() *MessageLog {
	return &MessageLog{
		seen: make(map[uuid.UUID]struct{}),
	}
}

// Append inserts a message at its ordered position. Appending an id
// already present does not grow the log; if the duplicate carries a
// different SentAt, the held copy moves to the position the new stamp
// dictates. The store assigns the authoritative stamp, so an optimistic
// local insert settles into store order once its echo arrives.
func (l *MessageLog) Append(m models.Message) (added bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[m.ID]; ok {
		l.restamp(m)
		return false
	}
	l.seen[m.ID] = struct{}{}
	l.insert(m)
	return true
}

// insert places a message at its ordered position. Most inserts land at
// the tail; only a stale echo needs the binary search.
func (l *MessageLog) insert(m models.Message) {
	if n := len(l.msgs); n == 0 || !messageBefore(m, l.msgs[n-1]) {
		l.msgs = append(l.msgs, m)
		return
	}

	i := sort.Search(len(l.msgs), func(i int) bool {
		return messageBefore(m, l.msgs[i])
	})
	l.msgs = append(l.msgs, models.Message{})
	copy(l.msgs[i+1:], l.msgs[i:])
	l.msgs[i] = m
}

// restamp replaces an already-held message with its authoritative copy
// and reorders it when the timestamp moved.
func (l *MessageLog) restamp(m models.Message) {
	for i := range l.msgs {
		if l.msgs[i].ID != m.ID {
			continue
		}
		if l.msgs[i].SentAt.Equal(m.SentAt) {
			return
		}
		l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
		l.insert(m)
		return
	}
}

// Contains reports whether a message id is already in the log.
func (l *MessageLog) Contains(id uuid.UUID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[id]
	return ok
}

// Messages returns the transcript in render order.
func (l *MessageLog) Messages() []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Len returns the number of messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}

func messageBefore(a, b models.Message) bool {
	if !a.SentAt.Equal(b.SentAt) {
		return a.SentAt.Before(b.SentAt)
	}
	return strings.Compare(a.ID.String(), b.ID.String()) < 0
}
