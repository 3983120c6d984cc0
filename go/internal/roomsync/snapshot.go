package roomsync

import (
	"github.com/google/uuid"

	"github.com/kalimahplay/kalimah/go/internal/models"
	"github.com/kalimahplay/kalimah/go/internal/round"
)

// Snapshot is the read-only view the presentation layer consumes. The
// secret word of an open round is blanked unless the viewer is the
// setter; an ended round is not part of the snapshot (its word is
// revealed in the closing announcement instead).
type Snapshot struct {
	Room           models.Room      `json:"room"`
	Members        []models.Member  `json:"members"`
	Messages       []models.Message `json:"messages"`
	Round          *models.Round    `json:"round,omitempty"`
	State          round.State      `json:"state"`
	TimerSeconds   int              `json:"timer_seconds"`
	HintsRemaining int              `json:"hints_remaining"`
}

// Snapshot renders the current session view for this user.
func (s *Synchronizer) Snapshot() *Snapshot {
	s.mu.Lock()
	roomRow := s.roomRow
	current := s.current
	s.mu.Unlock()

	snap := &Snapshot{
		Members:        s.roster.Members(),
		Messages:       s.messages.Messages(),
		State:          round.StateOf(current),
		HintsRemaining: s.quota.Remaining(s.userID, currentID(current)),
	}
	if roomRow != nil {
		snap.Room = *roomRow
	}

	if current != nil {
		view := *current
		if view.SetterID != s.userID {
			view.Word = ""
		}
		snap.Round = &view
		if current.WordSet() {
			snap.TimerSeconds = int(s.timer.Remaining(*current).Seconds())
		}
	}
	return snap
}

func currentID(r *models.Round) uuid.UUID {
	if r == nil {
		return uuid.Nil
	}
	return r.ID
}
