package round

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/kalimahplay/kalimah/go/internal/models"
)

// Remaining derives the countdown for a round from its start time.
// Remaining time is never a locally incremented counter: a client that
// joins mid-round or reconnects recomputes the same value any other
// observer would.
func Remaining(r models.Round, now time.Time, duration time.Duration) time.Duration {
	left := duration - now.Sub(r.StartTime)
	if left < 0 {
		return 0
	}
	return left
}

// ExpireFunc handles a round's deadline passing. Implementations must
// tolerate being told about a round that already ended.
type ExpireFunc func(roundID uuid.UUID)

// Timer schedules the single authoritative expiry per round. The
// deadline is start_time + duration; rescheduling with the same base
// time is a no-op so rapid re-renders and reconnects cannot arm two
// timers for the same round.
type Timer struct {
	clock    clockwork.Clock
	duration time.Duration

	mu        sync.Mutex
	active    map[uuid.UUID]armed
	scheduled map[uuid.UUID]time.Time // round id -> base time of the armed timer
}

// armed pairs a ticking timer with the channel that releases its
// scheduling goroutine on Cancel or replacement.
type armed struct {
	timer clockwork.Timer
	done  chan struct{}
}

// NewTimer creates a round timer with the configured round duration.
func NewTimer(clock clockwork.Clock, duration time.Duration) *Timer {
	return &Timer{
		clock:     clock,
		duration:  duration,
		active:    make(map[uuid.UUID]armed),
		scheduled: make(map[uuid.UUID]time.Time),
	}
}

// Duration returns the configured round length.
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Remaining derives the countdown for a round at this moment.
func (t *Timer) Remaining(r models.Round) time.Duration {
	return Remaining(r, t.clock.Now(), t.duration)
}

// Schedule arms the expiry for a round. A deadline already in the past
// fires immediately. Expire runs at most once per (round, start_time);
// cancellation via ctx stops the timer without firing.
func (t *Timer) Schedule(ctx context.Context, r models.Round, expire ExpireFunc) {
	t.mu.Lock()
	if base, ok := t.scheduled[r.ID]; ok && base.Equal(r.StartTime) {
		t.mu.Unlock()
		log.Debug().
			Str("round_id", r.ID.String()).
			Time("base_time", r.StartTime).
			Msg("skipping duplicate schedule for same base time")
		return
	}
	t.scheduled[r.ID] = r.StartTime

	// Replace any timer armed for an older base time and release its
	// scheduling goroutine.
	if existing, ok := t.active[r.ID]; ok {
		stopAndDrainTimer(existing.timer)
		close(existing.done)
	}

	left := Remaining(r, t.clock.Now(), t.duration)
	timer := t.clock.NewTimer(left)
	done := make(chan struct{})
	t.active[r.ID] = armed{timer: timer, done: done}
	t.mu.Unlock()

	go func() {
		select {
		case <-timer.Chan():
			t.forget(r.ID, done)
			log.Debug().Str("round_id", r.ID.String()).Msg("round timer fired")
			expire(r.ID)
		case <-done:
			// Cancelled or replaced; the canceller cleaned up.
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			t.forget(r.ID, done)
			log.Debug().Str("round_id", r.ID.String()).Msg("round timer cancelled")
		}
	}()
}

// Cancel disarms the timer for a round, if one is active, and releases
// its scheduling goroutine.
func (t *Timer) Cancel(roundID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok := t.active[roundID]; ok {
		stopAndDrainTimer(a.timer)
		close(a.done)
		delete(t.active, roundID)
		delete(t.scheduled, roundID)
	}
}

// forget drops the entry only if it still belongs to the calling
// goroutine; Cancel or a replacement may already have cleaned it up.
func (t *Timer) forget(roundID uuid.UUID, done chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok := t.active[roundID]; ok && a.done == done {
		close(a.done)
		delete(t.active, roundID)
		delete(t.scheduled, roundID)
	}
}

// stopAndDrainTimer stops a timer and drains its channel so a fired
// timer cannot leak a goroutine, per the time.Timer.Stop contract.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
