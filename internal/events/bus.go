// Package events fans asynchronous status notifications out to subscribers.
package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

// ErrClosed is returned by Publish after Shutdown.
var ErrClosed = errors.New("event bus is shut down")

// Event is the envelope delivered to subscribers.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      schemas.EventType `json:"type"`
	Payload   interface{}       `json:"payload"`
}

// Publisher is the narrow interface producers depend on.
type Publisher interface {
	Publish(t schemas.EventType, payload interface{}) error
}

type subscriber struct {
	ch    chan Event
	types map[schemas.EventType]struct{}
}

func (s *subscriber) wants(t schemas.EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus is a pub/sub hub. Publishing never blocks: automation loops must not
// stall behind a slow consumer, so an event that does not fit in a
// subscriber's buffer is dropped for that subscriber and counted.
type Bus struct {
	logger     *zap.Logger
	bufferSize int

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool

	dropped      atomic.Uint64
	shutdownOnce sync.Once
}

// NewBus creates a Bus whose subscriber channels hold bufferSize events.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Bus{
		logger:     logger.Named("event_bus"),
		bufferSize: bufferSize,
		subs:       make(map[*subscriber]struct{}),
	}
}

// Publish wraps payload in an Event and offers it to every interested subscriber.
func (b *Bus) Publish(t schemas.EventType, payload interface{}) error {
	ev := Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      t,
		Payload:   payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for s := range b.subs {
		if !s.wants(t) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			n := b.dropped.Add(1)
			b.logger.Debug("Subscriber buffer full, event dropped.", zap.String("type", string(t)), zap.Uint64("dropped_total", n))
		}
	}
	return nil
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given. The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(types ...schemas.EventType) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	s := &subscriber{ch: make(chan Event, b.bufferSize), types: make(map[schemas.EventType]struct{}, len(types))}
	for _, t := range types {
		s.types[t] = struct{}{}
	}
	b.subs[s] = struct{}{}

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[s]; ok {
				delete(b.subs, s)
				close(s.ch)
			}
		})
	}
}

// Dropped reports how many deliveries were discarded because a subscriber
// was not keeping up.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Shutdown closes every subscriber channel. Later publishes fail with ErrClosed.
func (b *Bus) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.closed = true
		for s := range b.subs {
			close(s.ch)
		}
		b.subs = make(map[*subscriber]struct{})
		b.logger.Debug("Event bus shut down.", zap.Uint64("dropped_total", b.dropped.Load()))
	})
}
