package realtime

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "examtrack:"

// RedisBroker relays payloads through Redis pub/sub so that every API instance sees every event.
type RedisBroker struct {
	client *redis.Client
}

var _ Broker = (*RedisBroker)(nil)

func NewRedisBroker(ctx context.Context, addr, password string, db int) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return &RedisBroker{client: client}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return errors.Wrap(b.client.Publish(ctx, redisChannelPrefix+topic, payload).Err(), "publishing to redis")
}

func (b *RedisBroker) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	channels := make([]string, 0, len(topics))
	for _, topic := range topics {
		channels = append(channels, redisChannelPrefix+topic)
	}

	ps := b.client.Subscribe(ctx, channels...)
	// wait for the subscription to be confirmed so that no payload published afterwards is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "subscribing to redis")
	}

	ch := make(chan []byte, subscriberBuffer)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		defer close(ch)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				deliver(ch, []byte(msg.Payload), BrokerRedis)
			}
		}
	}()

	return newSubscription(ctx, ch, func() {
		close(done)
		_ = ps.Close()
		<-stopped
	}), nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
