package session

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/existflow/ironsync/internal/cache"
	"github.com/existflow/ironsync/internal/feed"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/remote"
)

type fakeBackend struct {
	mu       sync.Mutex
	me       model.Identity
	projects map[string][]string
	tasks    map[string][]string
	notes    []string
	fetches  int

	// When set, ListProjects signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func newBackend() *fakeBackend {
	return &fakeBackend{
		me: model.Identity{UserID: "u1", TeamIDs: []string{"team-1"}},
		projects: map[string][]string{
			"team-1": {`{"id":"p1","team_id":"team-1","name":"Website","description":"","status_id":"planning",
				"due_date":null,"slug":"website","created_at":"2026-10-14T09:00:00Z","updated_at":"2026-10-14T09:00:00Z"}`},
		},
		tasks: map[string][]string{
			"p1": {`{"id":"t1","project_id":"p1","title":"Ship","description":"","priority":"high","status":"To Do",
				"due_date":null,"created_at":"2026-10-14T09:00:00Z","updated_at":"2026-10-14T09:00:00Z"}`,
				`{"id":"t2","project_id":"p1","bogus":true}`},
		},
		notes: []string{`{"id":"n1","user_id":"u1","type":"PROJECT_CREATED","title":"New project","message":"Website",
			"read":false,"action_url":null,"created_at":"2026-10-14T09:00:00Z"}`},
	}
}

func raws(list []string) []json.RawMessage {
	out := make([]json.RawMessage, len(list))
	for i, s := range list {
		out[i] = json.RawMessage(s)
	}
	return out
}

func (b *fakeBackend) Me(context.Context) (model.Identity, error) {
	return b.me, nil
}

func (b *fakeBackend) ListProjects(_ context.Context, team string) ([]json.RawMessage, error) {
	if b.release != nil {
		b.entered <- struct{}{}
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	return raws(b.projects[team]), nil
}

func (b *fakeBackend) ListTasks(_ context.Context, project string) ([]json.RawMessage, error) {
	return raws(b.tasks[project]), nil
}

func (b *fakeBackend) ListNotifications(context.Context) ([]json.RawMessage, error) {
	return raws(b.notes), nil
}

func (b *fakeBackend) Create(context.Context, string, map[string]interface{}) (json.RawMessage, error) {
	return nil, &remote.Error{Status: 503, Message: "unavailable"}
}

func (b *fakeBackend) Update(context.Context, string, string, map[string]interface{}) (json.RawMessage, error) {
	return nil, &remote.Error{Status: 503, Message: "unavailable"}
}

func (b *fakeBackend) Fetches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches
}

// recordingSource hands out memory subscriptions and remembers them
type recordingSource struct {
	mem  *feed.Memory
	mu   sync.Mutex
	subs []feed.Subscription
}

func (r *recordingSource) Subscribe(ctx context.Context, f feed.Filter) (feed.Subscription, error) {
	sub, err := r.mem.Subscribe(ctx, f)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()
	return sub, nil
}

func (r *recordingSource) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *recordingSource) first() feed.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[0]
}

func TestCloseDuringStartReleasesFeed(t *testing.T) {
	mem := feed.NewMemory(8)
	backend := newBackend()
	backend.entered = make(chan struct{})
	backend.release = make(chan struct{})
	sess := New(Deps{Backend: backend, Feed: mem})

	started := make(chan error, 1)
	go func() { started <- sess.Start(context.Background()) }()

	<-backend.entered
	assert.Equal(t, 1, mem.Subscribers())
	require.NoError(t, sess.Close())
	close(backend.release)

	assert.ErrorIs(t, <-started, ErrClosed)
	assert.Eventually(t, func() bool { return mem.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, sess.Start(context.Background()), ErrClosed)
}

func TestStartFetchesAndFollowsFeed(t *testing.T) {
	mem := feed.NewMemory(8)
	sess := New(Deps{Backend: newBackend(), Feed: mem})
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Close()

	st := sess.Store()
	require.Len(t, st.Projects("team-1"), 1)
	assert.Equal(t, 1, st.TaskCount("p1"), "invalid record is skipped")
	assert.Equal(t, 1, st.UnreadCount("u1"))
	assert.Equal(t, "u1", sess.Identity().UserID)

	require.NoError(t, mem.Publish(context.Background(),
		[]byte(`{"kind":"updated","table":"tasks","scope":{"team_id":"team-1"},"row":{"id":"t1","status":"Completed"}}`)))

	assert.Eventually(t, func() bool {
		task, _ := st.Task("t1")
		return task.Status == model.TaskCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFeedFiltersOtherTeams(t *testing.T) {
	mem := feed.NewMemory(8)
	sess := New(Deps{Backend: newBackend(), Feed: mem})
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Close()

	ctx := context.Background()
	require.NoError(t, mem.Publish(ctx, []byte(`{"kind":"created","table":"projects","scope":{"team_id":"team-2"},
		"row":{"id":"p9","team_id":"team-2","name":"Not mine"}}`)))
	require.NoError(t, mem.Publish(ctx, []byte(`{"kind":"created","table":"projects","scope":{"team_id":"team-1"},
		"row":{"id":"p3","team_id":"team-1","name":"Mine"}}`)))

	assert.Eventually(t, func() bool {
		_, ok := sess.Store().Project("p3")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := sess.Store().Project("p9")
	assert.False(t, ok)
}

func TestStartRequiresUser(t *testing.T) {
	b := newBackend()
	b.me = model.Identity{}
	sess := New(Deps{Backend: b, Feed: feed.NewMemory(1)})

	err := sess.Start(context.Background())
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	assert.Empty(t, sess.Store().Projects("team-1"))
}

func TestStartRejectsForeignTeam(t *testing.T) {
	sess := New(Deps{Backend: newBackend(), Feed: feed.NewMemory(1), TeamID: "team-9"})
	assert.ErrorContains(t, sess.Start(context.Background()), "not a member")
}

func TestResubscribeAfterFeedDrops(t *testing.T) {
	src := &recordingSource{mem: feed.NewMemory(8)}
	b := newBackend()
	sess := New(Deps{Backend: b, Feed: src, RetryMin: 5 * time.Millisecond, RetryMax: 20 * time.Millisecond})
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Close()

	require.Equal(t, 1, src.count())
	require.NoError(t, src.first().Close())

	assert.Eventually(t, func() bool { return src.count() == 2 && b.Fetches() == 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestCloseSavesCacheAndWarmsNextSession(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	sess := New(Deps{Backend: newBackend(), Feed: feed.NewMemory(1), Cache: c})
	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, sess.Close())
	assert.True(t, sess.Store().Closed())
	require.NoError(t, sess.Close(), "second close is a no-op")

	snap, err := c.Load(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, snap.Projects, 1)
	assert.Equal(t, "p1", snap.Projects[0].ID)
	assert.Len(t, snap.Tasks, 1)
}

func TestGatewayFailureLeavesStoreIntact(t *testing.T) {
	sess := New(Deps{Backend: newBackend(), Feed: feed.NewMemory(1)})
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Close()

	_, err := sess.Gateway().UpdateTask(context.Background(), "t1", model.TaskPatch{Status: model.Some(model.TaskReview)})
	require.Error(t, err)

	task, _ := sess.Store().Task("t1")
	assert.Equal(t, model.TaskTodo, task.Status)
}
