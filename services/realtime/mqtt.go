package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
)

const (
	mqttTopicPrefix = "examtrack/"
	mqttQoS         = 1
	mqttTimeout     = 5 * time.Second
)

// MQTTBroker relays payloads through an MQTT broker.
// The client keeps a single handler per topic filter, so each topic is subscribed once
// and fanned out to local subscribers through a Hub.
type MQTTBroker struct {
	client mqtt.Client
	hub    *Hub

	mu   sync.Mutex
	refs map[string]int // local subscriptions per topic
}

var _ Broker = (*MQTTBroker)(nil)

func NewMQTTBroker(brokerURL, clientID string, logger core.Logger) (*MQTTBroker, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(fmt.Sprintf("%s_%s", clientID, uuid.New().String())).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			if logger != nil {
				logger.Warn("mqtt connection lost", err)
			}
		})

	client := mqtt.NewClient(opts)
	if err := wait(client.Connect()); err != nil {
		return nil, errors.Wrap(err, "connecting to mqtt broker")
	}
	return newMQTTBroker(client), nil
}

func newMQTTBroker(client mqtt.Client) *MQTTBroker {
	return &MQTTBroker{client: client, hub: newHub(BrokerMQTT), refs: make(map[string]int)}
}

func wait(token mqtt.Token) error {
	if !token.WaitTimeout(mqttTimeout) {
		return errors.New("mqtt operation timed out")
	}
	return token.Error()
}

func (b *MQTTBroker) Publish(_ context.Context, topic string, payload []byte) error {
	return errors.Wrap(wait(b.client.Publish(mqttTopicPrefix+topic, mqttQoS, false, payload)), "publishing to mqtt")
}

func (b *MQTTBroker) relay(_ mqtt.Client, msg mqtt.Message) {
	_ = b.hub.Publish(context.Background(), strings.TrimPrefix(msg.Topic(), mqttTopicPrefix), msg.Payload())
}

func (b *MQTTBroker) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	local, err := b.hub.Subscribe(context.Background(), topics...)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	filters := make(map[string]byte)
	for _, topic := range topics {
		if b.refs[topic] == 0 {
			filters[mqttTopicPrefix+topic] = mqttQoS
		}
	}
	if len(filters) > 0 {
		if err := wait(b.client.SubscribeMultiple(filters, b.relay)); err != nil {
			b.mu.Unlock()
			local.Close()
			return nil, errors.Wrap(err, "subscribing to mqtt")
		}
	}
	for _, topic := range topics {
		b.refs[topic]++
	}
	b.mu.Unlock()

	return newSubscription(ctx, local.C, func() {
		local.Close()
		b.release(topics)
	}), nil
}

// release drops one local subscription to topics and unsubscribes the topics nobody listens to anymore.
func (b *MQTTBroker) release(topics []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(topics))
	for _, topic := range topics {
		b.refs[topic]--
		if b.refs[topic] <= 0 {
			delete(b.refs, topic)
			names = append(names, mqttTopicPrefix+topic)
		}
	}
	if len(names) > 0 {
		_ = wait(b.client.Unsubscribe(names...))
	}
}

func (b *MQTTBroker) Close() error {
	b.client.Disconnect(250)
	return b.hub.Close()
}
