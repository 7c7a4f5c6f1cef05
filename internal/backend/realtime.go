package backend

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wamda.app/notifier/internal/entity"
)

type redisRealtime struct {
	redisClient *redis.Client
	log         *zap.Logger
}

// NewRealtime builds the Redis pub/sub implementation of Realtime.
func NewRealtime(redisClient *redis.Client, log *zap.Logger) Realtime {
	return &redisRealtime{redisClient: redisClient, log: log}
}

func (r *redisRealtime) SubscribeInserts(ctx context.Context, recipientID int64, onInsert InsertHandler, onStatus StatusHandler) (Subscription, error) {
	channel := channelFor(recipientID)
	pubsub := r.redisClient.Subscribe(ctx, channel)

	// Wait for confirmation that the subscription is created.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{pubsub: pubsub}
	go r.pump(pubsub, channel, onInsert, onStatus)
	return sub, nil
}

// pump forwards messages until the subscription is closed. One goroutine per
// subscription keeps insert events strictly in delivery order.
func (r *redisRealtime) pump(pubsub *redis.PubSub, channel string, onInsert InsertHandler, onStatus StatusHandler) {
	onStatus(StatusSubscribed, nil)

	for msg := range pubsub.Channel() {
		var n entity.Notification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			r.log.Warn("dropping malformed realtime payload",
				zap.String("channel", channel),
				zap.Error(err))
			onStatus(StatusError, err)
			continue
		}
		onInsert(n)
	}

	onStatus(StatusClosed, nil)
}

type redisSubscription struct {
	once   sync.Once
	pubsub *redis.PubSub
	err    error
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		s.err = s.pubsub.Close()
	})
	return s.err
}
