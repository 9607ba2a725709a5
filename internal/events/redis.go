package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/utils"
)

// RedisBus publishes events on redis pub/sub so any API replica can serve the socket.
type RedisBus struct {
	rdb *redis.Client
	log *logrus.Logger
}

func NewRedisBus(rdb *redis.Client, log *logrus.Logger) *RedisBus {
	if log == nil {
		log = logrus.New()
	}
	return &RedisBus{rdb: rdb, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	const op = "RedisBus.Publish"
	payload, err := json.Marshal(stamp(e))
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode event", err)
	}
	if err := b.rdb.Publish(ctx, Channel(e.SessionID), payload).Err(); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to publish event", err)
	}
	return nil
}

type redisSub struct {
	pubsub *redis.PubSub
	ch     chan Event
	once   sync.Once
}

func (s *redisSub) Events() <-chan Event { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() { err = s.pubsub.Close() })
	return err
}

// Subscribe returns once redis confirmed the subscription.
func (b *RedisBus) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	const op = "RedisBus.Subscribe"
	pubsub := b.rdb.Subscribe(ctx, Channel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, utils.E(utils.CodeUnavailable, op, "failed to subscribe", err)
	}

	s := &redisSub{pubsub: pubsub, ch: make(chan Event, subscriberBuffer)}
	go func() {
		defer close(s.ch)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = s.Close()
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
					b.log.WithError(err).WithField("channel", m.Channel).Warn("dropping undecodable event")
					continue
				}
				select {
				case s.ch <- e:
				case <-ctx.Done():
					_ = s.Close()
					return
				}
			}
		}
	}()
	return s, nil
}

func (b *RedisBus) Close() error { return b.rdb.Close() }
