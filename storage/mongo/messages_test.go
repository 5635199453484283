package mongo_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examtrack/core/group"
	"github.com/trezcool/examtrack/storage/mongo"
)

func TestMessageStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI is not set")
	}
	ctx := context.Background()

	store, err := mongo.Connect(ctx, uri, "examtrack_test")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Drop(ctx)
		_ = store.Close(ctx)
	})

	start := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"hello", "anyone?", "yes"} {
		_, err = store.CreateMessage(ctx, group.Message{
			GroupID:    "g1",
			SenderID:   "u1",
			SenderName: "Student",
			Text:       text,
			CreatedAt:  start.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err = store.CreateMessage(ctx, group.Message{GroupID: "g2", Text: "elsewhere", CreatedAt: start})
	require.NoError(t, err)

	msgs, err := store.QueryMessages(ctx, "g1", group.MessageQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, start, msgs[0].CreatedAt)

	msgs, err = store.QueryMessages(ctx, "g1", group.MessageQuery{Since: start, Limit: 1})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "anyone?", msgs[0].Text)

	// same timestamp as "anyone?": the ID breaks the tie
	tied, err := store.CreateMessage(ctx, group.Message{GroupID: "g1", SenderID: "u2", Text: "me too", CreatedAt: start.Add(time.Minute)})
	require.NoError(t, err)
	var seen []string
	q := group.MessageQuery{Since: start, Limit: 1}
	for i := 0; i < 10; i++ {
		page, err := store.QueryMessages(ctx, "g1", q)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		seen = append(seen, page[0].Text)
		q.Since, q.After = page[0].CreatedAt, page[0].ID
	}
	assert.ElementsMatch(t, []string{"anyone?", "me too", "yes"}, seen)
	assert.Equal(t, "yes", seen[2])
	assert.NotEmpty(t, tied.ID)

	require.NoError(t, store.DeleteMessages(ctx, "g1"))
	msgs, err = store.QueryMessages(ctx, "g1", group.MessageQuery{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
