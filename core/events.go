package core

import (
	"context"
	"time"
)

// Event types
const (
	EventProgressUpdated  = "progress.updated"
	EventGoalCompleted    = "goal.completed"
	EventStreakUpdated    = "streak.updated"
	EventPremiumActivated = "premium.activated"
	EventProfileUpdated   = "profile.updated"
	EventMessageCreated   = "message.created"
	EventMemberAdded      = "member.added"
	EventMemberRemoved    = "member.removed"
	EventGroupDeleted     = "group.deleted"
)

type (
	// Event is a change notification pushed to realtime subscribers.
	Event struct {
		Type  string      `json:"type"`
		Topic string      `json:"topic"`
		Data  interface{} `json:"data,omitempty"`
		At    time.Time   `json:"at"`
	}

	// EventPublisher publishes events to a topic. Publishing is best effort: subscribers may miss events.
	EventPublisher interface {
		Publish(ctx context.Context, topic string, evt Event) error
	}
)

func NewEvent(typ, topic string, data interface{}) Event {
	return Event{Type: typ, Topic: topic, Data: data, At: Now()}
}

func UserTopic(userID string) string   { return "users/" + userID }
func GroupTopic(groupID string) string { return "groups/" + groupID }

// PublishEvent publishes an event and reports failures to logger without failing the caller.
func PublishEvent(ctx context.Context, pub EventPublisher, logger Logger, typ, topic string, data interface{}) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, topic, NewEvent(typ, topic, data)); err != nil && logger != nil {
		logger.Warn("publishing "+typ+" event", err, map[string]interface{}{"topic": topic})
	}
}
