package events

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrBusClosed = errors.New("event bus closed")

const subscriberBuffer = 64

// MemoryBus fans events out in-process. Slow subscribers lose events instead of
// blocking the publisher.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
	log    *logrus.Logger
}

func NewMemoryBus(log *logrus.Logger) *MemoryBus {
	if log == nil {
		log = logrus.New()
	}
	return &MemoryBus{subs: make(map[string]map[*memorySub]struct{}), log: log}
}

type memorySub struct {
	bus       *MemoryBus
	sessionID string
	ch        chan Event
	once      sync.Once
}

func (s *memorySub) Events() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if set, ok := s.bus.subs[s.sessionID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.bus.subs, s.sessionID)
			}
		}
		s.bus.mu.Unlock()
		close(s.ch)
	})
	return nil
}

func (b *MemoryBus) Publish(_ context.Context, e Event) error {
	e = stamp(e)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	for s := range b.subs[e.SessionID] {
		select {
		case s.ch <- e:
		default:
			b.log.WithFields(logrus.Fields{"session_id": e.SessionID, "type": e.Type}).Warn("subscriber is slow, event dropped")
		}
	}
	return nil
}

// Subscribe registers a subscriber that is closed when ctx ends.
func (b *MemoryBus) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	s := &memorySub{bus: b, sessionID: sessionID, ch: make(chan Event, subscriberBuffer)}
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*memorySub]struct{})
	}
	b.subs[sessionID][s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	var all []*memorySub
	for _, set := range b.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	b.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
	return nil
}
