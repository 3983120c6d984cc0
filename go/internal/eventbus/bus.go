package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/kalimahplay/kalimah/go/internal/models"
)

// Status describes the health of the bus connection as observed by
// transport callbacks.
type Status string

const (
	StatusConnected Status = "connected"
	// StatusDegraded means the transport dropped and the client is
	// retrying; deliveries may be missed until StatusConnected recurs.
	StatusDegraded Status = "degraded"
)

// StatusFunc receives connection status changes. It must not block.
type StatusFunc func(Status)

// Unsubscribe releases one subscription. It is safe to call more than
// once; only the first call touches the underlying transport.
type Unsubscribe func()

// Config holds NATS connection settings for the bus client.
type Config struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the default bus client configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // retry forever
		ReconnectWait: 2 * time.Second,
	}
}

// Bus is a NATS-backed publish/subscribe client for room events.
type Bus struct {
	nc       *nats.Conn
	mu       sync.RWMutex
	onStatus StatusFunc
}

// Connect dials NATS and installs reconnect handling. Transport drops
// are surfaced through the status callback and retried automatically;
// they are never fatal.
func Connect(cfg Config) (*Bus, error) {
	b := &Bus{}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("event bus disconnected")
			b.notify(StatusDegraded)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("event bus reconnected")
			b.notify(StatusConnected)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("event bus error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	b.nc = nc
	return b, nil
}

// OnStatus registers the status callback. Only one callback is held;
// registering replaces any previous one.
func (b *Bus) OnStatus(fn StatusFunc) {
	b.mu.Lock()
	b.onStatus = fn
	b.mu.Unlock()
}

func (b *Bus) notify(s Status) {
	b.mu.RLock()
	fn := b.onStatus
	b.mu.RUnlock()
	if fn != nil {
		fn(s)
	}
}

// Close drains and closes the underlying connection.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

// SubscribeMessages delivers every message event for a room to fn.
// Payloads that fail to decode are logged and dropped; the handler
// never propagates a failure past the bus boundary.
func (b *Bus) SubscribeMessages(roomID uuid.UUID, fn func(MessageEvent)) (Unsubscribe, error) {
	sub, err := b.nc.Subscribe(messagesSubject(roomID), func(m *nats.Msg) {
		var ev MessageEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			log.Error().Err(err).Str("subject", m.Subject).Msg("dropping undecodable message event")
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe messages for room %s: %w", roomID, err)
	}
	return once(sub), nil
}

// SubscribeMembers delivers every membership event for a room to fn.
func (b *Bus) SubscribeMembers(roomID uuid.UUID, fn func(MemberEvent)) (Unsubscribe, error) {
	sub, err := b.nc.Subscribe(membersSubject(roomID), func(m *nats.Msg) {
		var ev MemberEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			log.Error().Err(err).Str("subject", m.Subject).Msg("dropping undecodable member event")
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe members for room %s: %w", roomID, err)
	}
	return once(sub), nil
}

// PublishMessage announces an appended chat message to all observers
// of the room.
func (b *Bus) PublishMessage(msg models.Message) error {
	return b.publish(messagesSubject(msg.RoomID), MessageEvent{Message: msg})
}

// PublishMemberJoined announces a roster addition.
func (b *Bus) PublishMemberJoined(m models.Member) error {
	return b.publish(membersSubject(m.RoomID), MemberEvent{Kind: MemberJoined, Member: m})
}

// PublishMemberLeft announces a roster removal.
func (b *Bus) PublishMemberLeft(m models.Member) error {
	return b.publish(membersSubject(m.RoomID), MemberEvent{Kind: MemberLeft, Member: m})
}

func (b *Bus) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", subject, err)
	}
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// once wraps a subscription so repeated releases do not touch the
// transport twice. An unsubscribe error is advisory only: the
// subscription may already be gone because the connection dropped.
func once(sub *nats.Subscription) Unsubscribe {
	var o sync.Once
	return func() {
		o.Do(func() {
			if err := sub.Unsubscribe(); err != nil {
				log.Debug().Err(err).Msg("unsubscribe after connection loss")
			}
		})
	}
}
