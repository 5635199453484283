// Package mongo stores group messages in MongoDB.
package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/examtrack/core/group"
)

const messagesCollection = "group_messages"

type MessageStore struct {
	client   *mongo.Client
	messages *mongo.Collection
}

var _ group.MessageStore = (*MessageStore)(nil) // interface compliance check

// Connect connects to uri and ensures the message indexes of database dbName exist.
func Connect(ctx context.Context, uri, dbName string) (*MessageStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongo")
	}

	store := &MessageStore{client: client, messages: client.Database(dbName).Collection(messagesCollection)}
	_, err = store.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "creating message index")
	}
	return store, nil
}

func (s *MessageStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Drop deletes the message collection.
func (s *MessageStore) Drop(ctx context.Context) error {
	return s.messages.Drop(ctx)
}

func (s *MessageStore) CreateMessage(ctx context.Context, msg group.Message) (group.Message, error) {
	msg.ID = uuid.New().String()
	// mongo keeps milliseconds
	msg.CreatedAt = msg.CreatedAt.UTC().Truncate(time.Millisecond)
	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return group.Message{}, errors.Wrap(err, "inserting message")
	}
	return msg, nil
}

func (s *MessageStore) QueryMessages(ctx context.Context, groupID string, q group.MessageQuery) ([]group.Message, error) {
	filter := bson.M{"group_id": groupID}
	switch {
	case !q.Since.IsZero() && q.After != "":
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$gt": q.Since.UTC()}},
			bson.M{"created_at": q.Since.UTC(), "_id": bson.M{"$gt": q.After}},
		}
	case !q.Since.IsZero():
		filter["created_at"] = bson.M{"$gt": q.Since.UTC()}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(q.Limit))

	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	msgs := make([]group.Message, 0)
	if err = cur.All(ctx, &msgs); err != nil {
		return nil, errors.Wrap(err, "decoding messages")
	}
	for i := range msgs {
		msgs[i].CreatedAt = msgs[i].CreatedAt.UTC()
	}
	return msgs, nil
}

func (s *MessageStore) DeleteMessages(ctx context.Context, groupID string) error {
	_, err := s.messages.DeleteMany(ctx, bson.M{"group_id": groupID})
	return errors.Wrap(err, "deleting messages")
}
