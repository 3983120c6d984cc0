package roomsync

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalimahplay/kalimah/go/internal/eventbus"
	"github.com/kalimahplay/kalimah/go/internal/hints"
	"github.com/kalimahplay/kalimah/go/internal/models"
	"github.com/kalimahplay/kalimah/go/internal/room"
	"github.com/kalimahplay/kalimah/go/internal/round"
)

type fakeLedger struct {
	credits map[uuid.UUID]int
}

func (f *fakeLedger) Credit(ctx context.Context, userID uuid.UUID, amount int, txType models.TransactionType, description string) (int, error) {
	if f.credits == nil {
		f.credits = make(map[uuid.UUID]int)
	}
	f.credits[userID] += amount
	return f.credits[userID], nil
}

type world struct {
	store  *memStore
	bus    *memBus
	clock  *clockwork.FakeClock
	ledger *fakeLedger
	roomID uuid.UUID
	host   models.Member
	guests []models.Member
}

// newWorld seeds a room with a host and guestCount other members.
func newWorld(t *testing.T, guestCount int) *world {
	t.Helper()
	ctx := context.Background()

	clock := clockwork.NewFakeClock()
	store := newMemStore(clock)

	hostID := uuid.New()
	created, err := store.CreateRoom(ctx, room.CreateRoomRequest{ID: uuid.New(), Code: "WXYZ23", OwnerID: hostID})
	require.NoError(t, err)

	w := &world{
		store:  store,
		bus:    newMemBus(),
		clock:  clock,
		ledger: &fakeLedger{},
		roomID: created.ID,
	}

	host := models.Member{ID: uuid.New(), RoomID: w.roomID, UserID: hostID, Username: "المضيف", JoinedAt: clock.Now()}
	_, err = store.InsertMember(ctx, host)
	require.NoError(t, err)
	w.host = host

	names := []string{"سارة", "عمر", "ليلى"}
	for i := range guestCount {
		g := models.Member{ID: uuid.New(), RoomID: w.roomID, UserID: uuid.New(), Username: names[i%len(names)], JoinedAt: clock.Now()}
		_, err = store.InsertMember(ctx, g)
		require.NoError(t, err)
		w.guests = append(w.guests, g)
	}
	return w
}

func (w *world) config() Config {
	return Config{RoundDuration: 60 * time.Second, WinBonus: 50, HintsPerRound: 3, HintCost: 10}
}

// session loads and attaches one user's synchronizer.
func (w *world) session(t *testing.T, m models.Member) *Synchronizer {
	t.Helper()
	s := New(w.roomID, m.UserID, m.Username, w.store, w.bus, w.ledger, w.clock, w.config())
	_, err := s.Load(context.Background())
	require.NoError(t, err)
	sub, err := s.Attach(context.Background())
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	return s
}

// memberFor resolves the seeded member for a user id.
func (w *world) memberFor(t *testing.T, userID uuid.UUID) models.Member {
	t.Helper()
	if w.host.UserID == userID {
		return w.host
	}
	for _, g := range w.guests {
		if g.UserID == userID {
			return g
		}
	}
	t.Fatalf("no seeded member for user %s", userID)
	return models.Member{}
}

// activeRound drives a room to an active round and returns the setter's
// session plus the round.
func (w *world) activeRound(t *testing.T, host *Synchronizer, word string) (*Synchronizer, models.Round) {
	t.Helper()
	ctx := context.Background()

	opened, err := host.StartGame(ctx)
	require.NoError(t, err)

	setter := w.session(t, w.memberFor(t, opened.SetterID))
	confirmed, err := setter.ConfirmWord(ctx, word)
	require.NoError(t, err)
	return setter, *confirmed
}

// findMessage returns the first transcript message containing substr.
func findMessage(t *testing.T, s *Synchronizer, substr string) models.Message {
	t.Helper()
	for _, m := range s.Snapshot().Messages {
		if strings.Contains(m.Body, substr) {
			return m
		}
	}
	t.Fatalf("no message containing %q", substr)
	return models.Message{}
}

func bodies(s *Synchronizer) []string {
	msgs := s.Snapshot().Messages
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body
	}
	return out
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds roster transcript and countdown from the store", func(t *testing.T) {
		w := newWorld(t, 1)
		for _, body := range []string{"مرحبا", "أهلا"} {
			_, err := w.store.InsertMessage(ctx, models.Message{ID: uuid.New(), RoomID: w.roomID, UserID: w.host.UserID.String(), Body: body})
			require.NoError(t, err)
		}
		opened, err := w.store.CreateRound(ctx, round.CreateRoundRequest{
			ID: uuid.New(), RoomID: w.roomID, SetterID: w.guests[0].UserID, StartTime: w.clock.Now(),
		})
		require.NoError(t, err)
		_, err = w.store.SetWord(ctx, opened.ID, "قطة", w.clock.Now())
		require.NoError(t, err)
		require.NoError(t, w.store.InsertHintUse(ctx, models.HintUse{ID: uuid.New(), RoundID: opened.ID, UserID: w.host.UserID}, 3, 10))

		w.clock.Advance(20 * time.Second)

		s := New(w.roomID, w.host.UserID, w.host.Username, w.store, w.bus, w.ledger, w.clock, w.config())
		snap, err := s.Load(ctx)
		require.NoError(t, err)

		assert.Len(t, snap.Members, 2)
		assert.Len(t, snap.Messages, 2)
		assert.Equal(t, round.StateActive, snap.State)
		assert.Equal(t, 40, snap.TimerSeconds, "countdown derived from the stored start time")
		assert.Equal(t, 2, snap.HintsRemaining, "quota primed from the store")
	})

	t.Run("no open round loads idle", func(t *testing.T) {
		w := newWorld(t, 1)
		snap, err := New(w.roomID, w.host.UserID, w.host.Username, w.store, w.bus, w.ledger, w.clock, w.config()).Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, round.StateIdle, snap.State)
		assert.Nil(t, snap.Round)
		assert.Zero(t, snap.TimerSeconds)
	})
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("own echo is absorbed", func(t *testing.T) {
		w := newWorld(t, 1)
		s := w.session(t, w.host)

		require.NoError(t, s.SendMessage(ctx, "مرحبا"))

		// The bus delivered the publish back to this session; the
		// transcript still grew by exactly one.
		assert.Equal(t, 1, len(s.Snapshot().Messages))
	})

	t.Run("other sessions receive the message", func(t *testing.T) {
		w := newWorld(t, 1)
		sender := w.session(t, w.host)
		observer := w.session(t, w.guests[0])

		require.NoError(t, sender.SendMessage(ctx, "مرحبا"))

		msgs := observer.Snapshot().Messages
		require.Len(t, msgs, 1)
		assert.Equal(t, "مرحبا", msgs[0].Body)
		assert.Equal(t, w.host.UserID.String(), msgs[0].UserID)
	})

	t.Run("local copy adopts the store-assigned timestamp", func(t *testing.T) {
		w := newWorld(t, 1)
		// The store's clock runs ten seconds behind this client.
		w.store.stampSkew = -10 * time.Second
		s := w.session(t, w.host)

		require.NoError(t, s.SendMessage(ctx, "مرحبا"))

		msgs := s.Snapshot().Messages
		require.Len(t, msgs, 1)
		assert.True(t, msgs[0].SentAt.Equal(w.clock.Now().Add(-10*time.Second)),
			"transcript carries the store stamp, not the client clock")
	})
}

func TestMemberEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("join and leave reconcile the roster", func(t *testing.T) {
		w := newWorld(t, 1)
		s := w.session(t, w.host)
		rooms := room.NewApp(w.store, w.bus, w.clock)

		joined, err := rooms.JoinRoom(ctx, room.JoinRoomRequest{RoomID: w.roomID, UserID: uuid.New(), Username: "خالد"})
		require.NoError(t, err)
		assert.Len(t, s.Snapshot().Members, 3)

		// Duplicate join event delivers again, roster unchanged.
		require.NoError(t, w.bus.PublishMemberJoined(*joined))
		assert.Len(t, s.Snapshot().Members, 3)

		require.NoError(t, rooms.LeaveRoom(ctx, joined.ID))
		assert.Len(t, s.Snapshot().Members, 2)
	})

	t.Run("events for other rooms are ignored", func(t *testing.T) {
		w := newWorld(t, 1)
		s := w.session(t, w.host)

		foreign := models.Member{ID: uuid.New(), RoomID: uuid.New(), UserID: uuid.New()}
		s.onMemberEvent(eventbus.MemberEvent{Kind: eventbus.MemberJoined, Member: foreign})

		assert.Len(t, s.Snapshot().Members, 2)
	})
}

func TestGameFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("start awaits the word and announces the setter", func(t *testing.T) {
		w := newWorld(t, 2)
		host := w.session(t, w.host)

		opened, err := host.StartGame(ctx)
		require.NoError(t, err)

		snap := host.Snapshot()
		assert.Equal(t, round.StateAwaitingWord, snap.State)
		assert.NotEqual(t, w.host.UserID, opened.SetterID)
		announcement := findMessage(t, host, "بدأت جولة جديدة")
		assert.True(t, announcement.IsSystem())
	})

	t.Run("correct guess ends the round and credits the guesser", func(t *testing.T) {
		w := newWorld(t, 2)
		host := w.session(t, w.host)
		setter, r := w.activeRound(t, host, "قطة")

		// A player who joins after the word is set still gets the
		// active round from the store.
		var guesser *Synchronizer
		for _, g := range w.guests {
			if g.UserID != r.SetterID {
				guesser = w.session(t, g)
				break
			}
		}
		require.NotNil(t, guesser)

		require.NoError(t, guesser.SendMessage(ctx, " قطة "))

		_, err := w.store.GetOpenRound(ctx, w.roomID)
		assert.ErrorIs(t, err, round.ErrNoRound, "round closed at the store")
		assert.Equal(t, round.StateIdle, guesser.Snapshot().State)

		assert.Equal(t, 50, w.ledger.credits[guesser.userID])
		closing := findMessage(t, guesser, "الفائز")
		assert.Contains(t, closing.Body, "قطة", "word revealed in the announcement")

		// Every attached session settled on the same transcript.
		assert.Equal(t, bodies(guesser), bodies(setter))
	})

	t.Run("wrong guess leaves the round open", func(t *testing.T) {
		w := newWorld(t, 2)
		host := w.session(t, w.host)
		_, r := w.activeRound(t, host, "قطة")

		var guesser *Synchronizer
		for _, g := range w.guests {
			if g.UserID != r.SetterID {
				guesser = w.session(t, g)
				break
			}
		}
		require.NoError(t, guesser.SendMessage(ctx, "كلب"))

		open, err := w.store.GetOpenRound(ctx, w.roomID)
		require.NoError(t, err)
		assert.Nil(t, open.WinnerID)
		assert.Empty(t, w.ledger.credits)
	})

	t.Run("guess from a session attached before the round ends it", func(t *testing.T) {
		w := newWorld(t, 2)
		host := w.session(t, w.host)

		// Both guests were already chatting in the room before the host
		// started the game; no reload happens in between.
		sessions := map[uuid.UUID]*Synchronizer{
			w.guests[0].UserID: w.session(t, w.guests[0]),
			w.guests[1].UserID: w.session(t, w.guests[1]),
		}

		_, r := w.activeRound(t, host, "قطة")

		var guesser *Synchronizer
		var guesserID uuid.UUID
		for _, g := range w.guests {
			if g.UserID != r.SetterID {
				guesser = sessions[g.UserID]
				guesserID = g.UserID
				break
			}
		}
		require.NotNil(t, guesser)

		require.NoError(t, guesser.SendMessage(ctx, "قطة"))

		_, err := w.store.GetOpenRound(ctx, w.roomID)
		assert.ErrorIs(t, err, round.ErrNoRound, "round closed at the store")
		assert.Equal(t, 50, w.ledger.credits[guesserID])
		closing := findMessage(t, guesser, "الفائز")
		assert.Contains(t, closing.Body, "قطة")
	})

	t.Run("setter guessing their own word does not end the round", func(t *testing.T) {
		w := newWorld(t, 2)
		host := w.session(t, w.host)
		setter, _ := w.activeRound(t, host, "قطة")

		require.NoError(t, setter.SendMessage(ctx, "قطة"))

		_, err := w.store.GetOpenRound(ctx, w.roomID)
		require.NoError(t, err)
	})

	t.Run("host can end the round early with no winner", func(t *testing.T) {
		w := newWorld(t, 2)
		host := w.session(t, w.host)

		_, err := host.StartGame(ctx)
		require.NoError(t, err)
		require.NoError(t, host.EndRound(ctx))

		assert.Equal(t, round.StateIdle, host.Snapshot().State)
		assert.Empty(t, w.ledger.credits)
	})

	t.Run("ending with no round reports no round", func(t *testing.T) {
		w := newWorld(t, 2)
		host := w.session(t, w.host)

		assert.ErrorIs(t, host.EndRound(ctx), round.ErrNoRound)
	})
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()

	t.Run("deadline closes the round with no winner", func(t *testing.T) {
		w := newWorld(t, 2)
		host := w.session(t, w.host)
		setter, _ := w.activeRound(t, host, "قطة")

		w.clock.BlockUntil(1)
		w.clock.Advance(60 * time.Second)

		require.Eventually(t, func() bool {
			_, err := w.store.GetOpenRound(ctx, w.roomID)
			return err != nil
		}, 2*time.Second, 5*time.Millisecond, "expiry closes the round")

		require.Eventually(t, func() bool {
			for _, b := range bodies(setter) {
				if strings.Contains(b, "لم يتمكن أحد") {
					return true
				}
			}
			return false
		}, 2*time.Second, 5*time.Millisecond)

		closing := findMessage(t, setter, "لم يتمكن أحد")
		assert.Contains(t, closing.Body, "قطة")
		assert.Empty(t, w.ledger.credits)
		assert.Equal(t, round.StateIdle, setter.Snapshot().State)
	})

	t.Run("round ended by a guess ignores the late expiry", func(t *testing.T) {
		w := newWorld(t, 2)
		host := w.session(t, w.host)
		_, r := w.activeRound(t, host, "قطة")

		var guesser *Synchronizer
		for _, g := range w.guests {
			if g.UserID != r.SetterID {
				guesser = w.session(t, g)
				break
			}
		}
		require.NoError(t, guesser.SendMessage(ctx, "قطة"))
		transcript := len(guesser.Snapshot().Messages)

		// The armed timers fire into an already closed round.
		w.clock.Advance(2 * time.Minute)
		time.Sleep(50 * time.Millisecond)

		assert.Equal(t, transcript, len(guesser.Snapshot().Messages), "no second closing announcement")
	})
}

func TestUseHintSession(t *testing.T) {
	ctx := context.Background()

	t.Run("requires an active round", func(t *testing.T) {
		w := newWorld(t, 2)
		host := w.session(t, w.host)

		_, err := host.UseHint(ctx)
		assert.ErrorIs(t, err, round.ErrNoRound)

		_, err = host.StartGame(ctx)
		require.NoError(t, err)
		_, err = host.UseHint(ctx)
		assert.ErrorIs(t, err, round.ErrNoRound, "no hints before the word is set")
	})

	t.Run("grants until the quota then refuses", func(t *testing.T) {
		w := newWorld(t, 2)
		host := w.session(t, w.host)
		_, r := w.activeRound(t, host, "قطة")

		var guesser *Synchronizer
		for _, g := range w.guests {
			if g.UserID != r.SetterID {
				guesser = w.session(t, g)
				break
			}
		}

		for want := 2; want >= 0; want-- {
			grant, err := guesser.UseHint(ctx)
			require.NoError(t, err)
			assert.NotEmpty(t, grant.Hint)
			assert.Equal(t, want, grant.Remaining)
		}
		assert.Zero(t, guesser.Snapshot().HintsRemaining)

		_, err := guesser.UseHint(ctx)
		assert.ErrorIs(t, err, hints.ErrQuotaExceeded)
	})

	t.Run("host's stale round copy still grants once the word is set", func(t *testing.T) {
		w := newWorld(t, 1)
		host := w.session(t, w.host)

		// The host's local copy predates the setter's confirmation;
		// the store knows the round went active.
		w.activeRound(t, host, "قطة")

		grant, err := host.UseHint(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, grant.Remaining)
	})
}

func TestSnapshotWordVisibility(t *testing.T) {
	w := newWorld(t, 2)
	host := w.session(t, w.host)
	setter, r := w.activeRound(t, host, "قطة")

	setterSnap := setter.Snapshot()
	require.NotNil(t, setterSnap.Round)
	assert.Equal(t, "قطة", setterSnap.Round.Word, "setter sees the word")

	var guesser *Synchronizer
	for _, g := range w.guests {
		if g.UserID != r.SetterID {
			guesser = w.session(t, g)
			break
		}
	}
	guesserSnap := guesser.Snapshot()
	require.NotNil(t, guesserSnap.Round)
	assert.Empty(t, guesserSnap.Round.Word, "word blanked for everyone else")
	assert.Equal(t, round.StateActive, guesserSnap.State)
}
