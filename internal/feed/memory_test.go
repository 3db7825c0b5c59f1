package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	taskEvent    = `{"kind":"created","table":"tasks","scope":{"team_id":"team-1"},"row":{"id":"t1"}}`
	otherTeam    = `{"kind":"created","table":"projects","scope":{"team_id":"team-2"},"row":{"id":"p9"}}`
	notifyEvent  = `{"kind":"created","table":"notifications","scope":{"user_id":"u2"},"row":{"id":"n1"}}`
	projectEvent = `{"kind":"updated","table":"projects","scope":{"team_id":"team-1"},"row":{"id":"p1"}}`
)

func receive(t *testing.T, sub Subscription) string {
	t.Helper()
	select {
	case raw, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return string(raw)
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return ""
	}
}

func TestMemoryFiltersByTableAndScope(t *testing.T) {
	m := NewMemory(8)
	sub, err := m.Subscribe(context.Background(), Filter{
		Tables:  []string{"projects", "tasks", "notifications"},
		TeamIDs: []string{"team-1"},
		UserID:  "u1",
	})
	require.NoError(t, err)
	defer sub.Close()

	ctx := context.Background()
	require.NoError(t, m.Publish(ctx, []byte(otherTeam)))
	require.NoError(t, m.Publish(ctx, []byte(notifyEvent)))
	require.NoError(t, m.Publish(ctx, []byte(taskEvent)))
	require.NoError(t, m.Publish(ctx, []byte(projectEvent)))

	assert.Equal(t, taskEvent, receive(t, sub))
	assert.Equal(t, projectEvent, receive(t, sub))
}

func TestMemoryPassesUnreadableFrames(t *testing.T) {
	m := NewMemory(1)
	sub, err := m.Subscribe(context.Background(), Filter{Tables: []string{"tasks"}})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, m.Publish(context.Background(), []byte(`not json`)))
	assert.Equal(t, "not json", receive(t, sub))
}

func TestMemoryCloseReleasesBlockedPublisher(t *testing.T) {
	m := NewMemory(0)
	sub, err := m.Subscribe(context.Background(), Filter{})
	require.NoError(t, err)

	published := make(chan error, 1)
	go func() { published <- m.Publish(context.Background(), []byte(taskEvent)) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sub.Close())

	select {
	case err := <-published:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after close")
	}
	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, m.Subscribers())
}

func TestMemoryContextCancelCloses(t *testing.T) {
	m := NewMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := m.Subscribe(ctx, Filter{})
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed on cancel")
	}
	require.NoError(t, sub.Close(), "second close is harmless")
}

func TestMemoryClosedRejectsSubscribe(t *testing.T) {
	m := NewMemory(1)
	m.Close()
	_, err := m.Subscribe(context.Background(), Filter{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Publish(context.Background(), []byte(taskEvent)), ErrClosed)
}
