// Package realtime fans out core events to subscribers, in memory or through Redis or MQTT.
package realtime

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/services/metrics"
)

// Brokers
const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
	BrokerMQTT   = "mqtt"
)

// subscriberBuffer is the number of payloads buffered per subscriber. Further payloads are dropped.
const subscriberBuffer = 64

var ErrClosed = errors.New("broker closed")

type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe streams the payloads published to topics until ctx is done or the subscription is closed.
	Subscribe(ctx context.Context, topics ...string) (*Subscription, error)
	Close() error
}

// Subscription delivers payloads on C. C is closed when the subscription ends.
type Subscription struct {
	C <-chan []byte

	once sync.Once
	stop func()
}

func newSubscription(ctx context.Context, c <-chan []byte, stop func()) *Subscription {
	sub := &Subscription{C: c}
	unwatch := context.AfterFunc(ctx, sub.Close)
	sub.stop = func() {
		unwatch()
		stop()
	}
	return sub
}

func (s *Subscription) Close() {
	s.once.Do(func() { s.stop() })
}

// deliver sends payload to ch without blocking. It reports whether the payload was delivered.
func deliver(ch chan<- []byte, payload []byte, broker string) bool {
	select {
	case ch <- payload:
		return true
	default:
		metrics.EventsDropped.WithLabelValues(broker).Inc()
		return false
	}
}

// Publisher publishes JSON encoded core events through a Broker.
type Publisher struct {
	broker Broker
}

var _ core.EventPublisher = (*Publisher)(nil)

func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker}
}

func (p *Publisher) Publish(ctx context.Context, topic string, evt core.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	return p.broker.Publish(ctx, topic, payload)
}

// NewBroker returns the broker selected by conf.Realtime.Broker.
func NewBroker(ctx context.Context, conf *core.Config, logger core.Logger) (Broker, error) {
	switch conf.Realtime.Broker {
	case BrokerMemory, "":
		return NewHub(), nil
	case BrokerRedis:
		return NewRedisBroker(ctx, conf.Realtime.RedisAddr, conf.Realtime.RedisPassword, conf.Realtime.RedisDB)
	case BrokerMQTT:
		return NewMQTTBroker(conf.Realtime.MQTTBroker, conf.Realtime.MQTTClientID, logger)
	default:
		return nil, errors.Errorf("unknown realtime broker %q", conf.Realtime.Broker)
	}
}
