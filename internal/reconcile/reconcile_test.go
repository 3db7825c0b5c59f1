package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/existflow/ironsync/internal/feed"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/store"
)

func newReconciler() (*Reconciler, *store.Store) {
	s := store.New(nil)
	return New(s, nil), s
}

func TestDecodeTaskEvent(t *testing.T) {
	ev, err := Decode([]byte(`{"kind":"updated","table":"tasks","scope":{"team_id":"team-1"},
		"row":{"id":"t1","status":"Completed","description":null,"updated_at":"2026-10-14T09:00:00Z"}}`))
	require.NoError(t, err)

	assert.Equal(t, Updated, ev.Kind)
	require.NotNil(t, ev.Task)
	assert.Nil(t, ev.Project)
	assert.Equal(t, "t1", ev.ID())
	assert.Equal(t, model.Some(model.TaskCompleted), ev.Task.Status)
	assert.Equal(t, model.Some(""), ev.Task.Description, "explicit null clears")
	assert.False(t, ev.Task.Title.Set, "absent key stays unset")
	assert.True(t, ev.Task.UpdatedAt.Value.Equal(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)))
}

func TestDecodeAcceptsTriggerKinds(t *testing.T) {
	for raw, want := range map[string]Kind{"INSERT": Created, "UPDATE": Updated, "DELETE": Deleted} {
		ev, err := Decode([]byte(`{"kind":"` + raw + `","table":"projects","row":{"id":"p1"}}`))
		require.NoError(t, err, raw)
		assert.Equal(t, want, ev.Kind)
	}
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"kind":`,
		"unknown kind":    `{"kind":"upserted","table":"tasks","row":{"id":"t1"}}`,
		"missing row":     `{"kind":"created","table":"tasks"}`,
		"missing id":      `{"kind":"created","table":"tasks","row":{"title":"x"}}`,
		"unknown field":   `{"kind":"created","table":"tasks","row":{"id":"t1","colour":"red"}}`,
		"bad status":      `{"kind":"created","table":"tasks","row":{"id":"t1","status":"Done"}}`,
		"bad priority":    `{"kind":"created","table":"tasks","row":{"id":"t1","priority":"asap"}}`,
		"bad date":        `{"kind":"created","table":"projects","row":{"id":"p1","due_date":"14/10/2026"}}`,
		"wrong type":      `{"kind":"created","table":"projects","row":{"id":"p1","name":42}}`,
		"null name":       `{"kind":"updated","table":"projects","row":{"id":"p1","name":null}}`,
		"bad notify type": `{"kind":"created","table":"notifications","row":{"id":"n1","type":"PING"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestDecodeSchemaErrorNamesField(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"created","table":"tasks","row":{"id":"t1","status":"Done"}}`))

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "tasks", se.Table)
	assert.Equal(t, "status", se.Field)
}

func TestDecodeUnknownTable(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"created","table":"comments","row":{"id":"c1"}}`))
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestApplyIsIdempotent(t *testing.T) {
	r, s := newReconciler()
	raw := []byte(`{"kind":"created","table":"tasks","row":{"id":"t1","project_id":"p1","title":"Ship",
		"priority":"high","status":"To Do","updated_at":"2026-10-14T09:00:00Z"}}`)

	out, err := r.HandleRaw(raw)
	require.NoError(t, err)
	assert.Equal(t, store.Inserted, out)
	once := s.Snapshot()

	for i := 0; i < 5; i++ {
		out, err = r.HandleRaw(raw)
		require.NoError(t, err)
		assert.Equal(t, store.Unchanged, out)
	}
	assert.Equal(t, once, s.Snapshot())
	assert.Len(t, s.Tasks("p1"), 1)
}

func TestPartialUpdateOnlyTouchesPresentFields(t *testing.T) {
	r, s := newReconciler()
	_, err := r.HandleRaw([]byte(`{"kind":"created","table":"tasks","row":{"id":"t1","project_id":"p1",
		"title":"Ship","description":"v1","priority":"low","status":"To Do","due_date":"2026-11-01"}}`))
	require.NoError(t, err)

	_, err = r.HandleRaw([]byte(`{"kind":"updated","table":"tasks","row":{"id":"t1","status":"Completed"}}`))
	require.NoError(t, err)

	task, ok := s.Task("t1")
	require.True(t, ok)
	assert.Equal(t, model.Task{
		ID:          "t1",
		ProjectID:   "p1",
		Title:       "Ship",
		Description: "v1",
		Priority:    model.PriorityLow,
		Status:      model.TaskCompleted,
		DueDate:     "2026-11-01",
	}, task)
}

func TestUpdateForUnknownIDInsertsExactFields(t *testing.T) {
	r, s := newReconciler()
	out, err := r.HandleRaw([]byte(`{"kind":"updated","table":"projects","row":{"id":"p7","status_id":"review"}}`))
	require.NoError(t, err)
	assert.Equal(t, store.Inserted, out)

	p, ok := s.Project("p7")
	require.True(t, ok)
	assert.Equal(t, model.Project{ID: "p7", StatusID: "review"}, p)
}

func TestReparentMovesTaskBetweenProjects(t *testing.T) {
	r, s := newReconciler()
	s.AddTask("pA", model.TaskPatch{ID: "t1", Title: model.Some("Move me")})

	_, err := r.HandleRaw([]byte(`{"kind":"updated","table":"tasks","row":{"id":"t1","project_id":"pB"}}`))
	require.NoError(t, err)

	assert.Empty(t, s.Tasks("pA"))
	require.Len(t, s.Tasks("pB"), 1)
	assert.Equal(t, "Move me", s.Tasks("pB")[0].Title)
}

func TestStaleEventIgnored(t *testing.T) {
	r, s := newReconciler()
	_, err := r.HandleRaw([]byte(`{"kind":"created","table":"projects","row":{"id":"p1","team_id":"team-1",
		"name":"New name","updated_at":"2026-10-14T10:00:00Z"}}`))
	require.NoError(t, err)

	out, err := r.HandleRaw([]byte(`{"kind":"updated","table":"projects","row":{"id":"p1",
		"name":"Old name","updated_at":"2026-10-14T09:00:00Z"}}`))
	require.NoError(t, err)
	assert.Equal(t, store.ConflictIgnored, out)

	p, _ := s.Project("p1")
	assert.Equal(t, "New name", p.Name)
	assert.Equal(t, uint64(1), r.Stats().Ignored)
}

func TestDeleteEventRemovesAndBlocksResurrection(t *testing.T) {
	r, s := newReconciler()
	_, _ = r.HandleRaw([]byte(`{"kind":"created","table":"projects","row":{"id":"p1","team_id":"team-1","name":"Gone"}}`))

	out, err := r.HandleRaw([]byte(`{"kind":"deleted","table":"projects","row":{"id":"p1"}}`))
	require.NoError(t, err)
	assert.Equal(t, store.Removed, out)
	assert.Empty(t, s.Projects("team-1"))

	out, _ = r.HandleRaw([]byte(`{"kind":"updated","table":"projects","row":{"id":"p1","name":"Back"}}`))
	assert.Equal(t, store.ConflictIgnored, out)
	_, ok := s.Project("p1")
	assert.False(t, ok)
}

func TestNotificationEvents(t *testing.T) {
	r, s := newReconciler()
	_, err := r.HandleRaw([]byte(`{"kind":"created","table":"notifications","scope":{"user_id":"u1"},
		"row":{"id":"n1","user_id":"u1","type":"PROJECT_CREATED","title":"New project","message":"Website",
		"read":false,"action_url":null,"created_at":"2026-10-14T09:00:00Z"}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, s.UnreadCount("u1"))

	_, err = r.HandleRaw([]byte(`{"kind":"updated","table":"notifications","row":{"id":"n1","read":true}}`))
	require.NoError(t, err)
	assert.Equal(t, 0, s.UnreadCount("u1"))
}

func TestMalformedEventLeavesStoreUnchanged(t *testing.T) {
	r, s := newReconciler()
	s.AddProject("team-1", model.ProjectPatch{ID: "p1", Name: model.Some("Website")})
	before := s.Snapshot()

	_, err := r.HandleRaw([]byte(`{"kind":"updated","table":"projects","row":{"id":"p1","name":"X","owner":"me"}}`))
	require.Error(t, err)
	_, err = r.HandleRaw([]byte(`{"kind":"updated","table":"invoices","row":{"id":"i1"}}`))
	require.ErrorIs(t, err, ErrUnknownTable)

	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, uint64(2), r.Stats().Dropped)
}

func TestRunConsumesUntilFeedCloses(t *testing.T) {
	r, s := newReconciler()
	mem := feed.NewMemory(4)
	sub, err := mem.Subscribe(context.Background(), feed.Filter{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), sub) }()

	ctx := context.Background()
	require.NoError(t, mem.Publish(ctx, []byte(`{"kind":"created","table":"projects","row":{"id":"p1","team_id":"team-1","name":"Website"}}`)))
	require.NoError(t, mem.Publish(ctx, []byte(`garbage`)))
	mem.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrFeedClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the feed closed")
	}

	assert.Len(t, s.Projects("team-1"), 1)
	assert.Equal(t, Stats{Applied: 1, Dropped: 1}, r.Stats())
}

func TestRunStopsOnCancel(t *testing.T) {
	r, _ := newReconciler()
	mem := feed.NewMemory(0)
	sub, err := mem.Subscribe(context.Background(), feed.Filter{})
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx, sub), context.Canceled)
}

func TestEventsAfterStoreCloseAreNoOps(t *testing.T) {
	r, s := newReconciler()
	s.Close()

	out, err := r.HandleRaw([]byte(`{"kind":"created","table":"projects","row":{"id":"p1","name":"Late"}}`))
	require.NoError(t, err)
	assert.Equal(t, store.ConflictIgnored, out)
}
