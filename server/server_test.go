package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/existflow/ironsync/internal/feed"
	"github.com/existflow/ironsync/internal/model"
)

const (
	teamA = "11111111-1111-1111-1111-111111111111"
	teamB = "22222222-2222-2222-2222-222222222222"
	alice = "aaaaaaaa-0000-0000-0000-000000000001"
)

// memRepo is an in-memory Repository for handler tests
type memRepo struct {
	mu            sync.Mutex
	seq           int
	sessions      map[string]string
	members       map[string][]string
	projects      map[string]model.Project
	tasks         map[string]model.Task
	notifications map[string]model.Notification
	lastCols      map[string]interface{}
}

func newMemRepo() *memRepo {
	return &memRepo{
		sessions:      map[string]string{"tok-alice": alice},
		members:       map[string][]string{alice: {teamA}},
		projects:      map[string]model.Project{},
		tasks:         map[string]model.Task{},
		notifications: map[string]model.Notification{},
	}
}

func (r *memRepo) nextID() string {
	r.seq++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", r.seq)
}

func (r *memRepo) Session(_ context.Context, token string) (string, time.Time, error) {
	uid, ok := r.sessions[token]
	if !ok {
		return "", time.Time{}, ErrNotFound
	}
	return uid, time.Now().Add(time.Hour), nil
}

func (r *memRepo) Teams(_ context.Context, uid string) ([]string, error) {
	return r.members[uid], nil
}

func (r *memRepo) IsMember(_ context.Context, uid, team string) (bool, error) {
	for _, t := range r.members[uid] {
		if t == team {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) Projects(_ context.Context, team string) ([]model.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Project{}
	for _, p := range r.projects {
		if p.TeamID == team {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memRepo) Project(_ context.Context, id string) (model.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return model.Project{}, ErrNotFound
	}
	return p, nil
}

func (r *memRepo) CreateProject(_ context.Context, p model.Project) (model.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var taken []string
	for _, existing := range r.projects {
		taken = append(taken, existing.Slug)
	}
	p.ID = r.nextID()
	p.Slug = uniqueSlug(slugBase(p.Name), taken)
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	r.projects[p.ID] = p
	return p, nil
}

func (r *memRepo) UpdateProject(_ context.Context, id string, cols map[string]interface{}) (model.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastCols = cols
	p := r.projects[id]
	if v, ok := cols["name"].(string); ok {
		p.Name = v
	}
	p.UpdatedAt = time.Now().UTC()
	r.projects[id] = p
	return p, nil
}

func (r *memRepo) DeleteProject(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, id)
	return nil
}

func (r *memRepo) Tasks(_ context.Context, projectID string) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Task{}
	for _, t := range r.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memRepo) Task(_ context.Context, id string) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, ErrNotFound
	}
	return t, nil
}

func (r *memRepo) CreateTask(_ context.Context, t model.Task) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.nextID()
	r.tasks[t.ID] = t
	return t, nil
}

func (r *memRepo) UpdateTask(_ context.Context, id string, cols map[string]interface{}) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastCols = cols
	return r.tasks[id], nil
}

func (r *memRepo) DeleteTask(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}

func (r *memRepo) Notifications(_ context.Context, uid string) ([]model.Notification, error) {
	out := []model.Notification{}
	for _, n := range r.notifications {
		if n.UserID == uid {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memRepo) Notification(_ context.Context, id string) (model.Notification, error) {
	n, ok := r.notifications[id]
	if !ok {
		return model.Notification{}, ErrNotFound
	}
	return n, nil
}

func (r *memRepo) MarkNotificationRead(_ context.Context, id string, read bool) (model.Notification, error) {
	n := r.notifications[id]
	n.Read = read
	r.notifications[id] = n
	return n, nil
}

func (r *memRepo) DeleteNotification(_ context.Context, id string) error {
	delete(r.notifications, id)
	return nil
}

func newTestServer(t *testing.T) (*Server, *memRepo, *feed.Memory) {
	t.Helper()
	repo := newMemRepo()
	upstream := feed.NewMemory(8)
	srv := NewWithRepository(repo, NewHub(upstream, nil), nil)
	t.Cleanup(func() { srv.Close() })
	return srv, repo, upstream
}

func do(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuthRequired(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authorization required", errorBody(t, rec)["error"])

	rec = do(t, srv, http.MethodGet, "/api/v1/me", "nope", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMe(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/me", "tok-alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"`+alice+`","team_ids":["`+teamA+`"]}`, rec.Body.String())
}

func TestCreateProjectAllocatesUniqueSlug(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := `{"team_id":"` + teamA + `","name":"Website","description":"","status_id":"planning","due_date":null}`

	first := do(t, srv, http.MethodPost, "/api/v1/rows/projects", "tok-alice", body)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := do(t, srv, http.MethodPost, "/api/v1/rows/projects", "tok-alice", body)
	require.Equal(t, http.StatusCreated, second.Code)

	var p1, p2 model.Project
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &p1))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &p2))
	assert.Equal(t, "website", p1.Slug)
	assert.Equal(t, "website-2", p2.Slug)
	assert.NotEqual(t, p1.ID, p2.ID)
}

func TestCreateProjectRejections(t *testing.T) {
	srv, _, _ := newTestServer(t)

	cases := map[string]struct {
		body   string
		status int
	}{
		"not a member":  {`{"team_id":"` + teamB + `","name":"X"}`, http.StatusForbidden},
		"blank name":    {`{"team_id":"` + teamA + `","name":"  "}`, http.StatusBadRequest},
		"unknown field": {`{"team_id":"` + teamA + `","name":"X","owner":"me"}`, http.StatusBadRequest},
		"bad status":    {`{"team_id":"` + teamA + `","name":"X","status_id":"archived"}`, http.StatusBadRequest},
		"bad date":      {`{"team_id":"` + teamA + `","name":"X","due_date":"tomorrow"}`, http.StatusBadRequest},
		"not an object": {`[1,2]`, http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/v1/rows/projects", "tok-alice", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, errorBody(t, rec)["code"])
		})
	}

	rec := do(t, srv, http.MethodPost, "/api/v1/rows/comments", "tok-alice", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_table", errorBody(t, rec)["code"])
}

func TestUpdateTaskColumns(t *testing.T) {
	srv, repo, _ := newTestServer(t)
	p, _ := repo.CreateProject(context.Background(), model.Project{TeamID: teamA, Name: "Website"})
	task, _ := repo.CreateTask(context.Background(), model.Task{ProjectID: p.ID, Title: "Ship"})
	path := "/api/v1/rows/tasks/" + task.ID

	rec := do(t, srv, http.MethodPatch, path, "tok-alice", `{"status":"Completed","due_date":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]interface{}{"status": "Completed", "due_date": nil}, repo.lastCols)

	rec = do(t, srv, http.MethodPatch, path, "tok-alice", `{"title":null}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPatch, path, "tok-alice", `{"status":"Done"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPatch, path, "tok-alice", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPatch, "/api/v1/rows/tasks/missing", "tok-alice", `{"status":"Completed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectOfOtherTeamIsForbidden(t *testing.T) {
	srv, repo, _ := newTestServer(t)
	p, _ := repo.CreateProject(context.Background(), model.Project{TeamID: teamB, Name: "Theirs"})

	rec := do(t, srv, http.MethodGet, "/api/v1/projects/"+p.ID+"/tasks", "tok-alice", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodPatch, "/api/v1/rows/projects/"+p.ID, "tok-alice", `{"name":"Mine now"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/projects?team_id="+teamB, "tok-alice", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNotificationsReadAndOwnership(t *testing.T) {
	srv, repo, _ := newTestServer(t)
	repo.notifications["n1"] = model.Notification{ID: "n1", UserID: alice, Type: model.NotifyDueDate}
	repo.notifications["n2"] = model.Notification{ID: "n2", UserID: "someone-else", Type: model.NotifyDueDate}

	rec := do(t, srv, http.MethodPatch, "/api/v1/rows/notifications/n1", "tok-alice", `{"read":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, repo.notifications["n1"].Read)

	rec = do(t, srv, http.MethodPatch, "/api/v1/rows/notifications/n2", "tok-alice", `{"read":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/rows/notifications", "tok-alice", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/notifications", "tok-alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestDeleteTask(t *testing.T) {
	srv, repo, _ := newTestServer(t)
	p, _ := repo.CreateProject(context.Background(), model.Project{TeamID: teamA, Name: "Website"})
	task, _ := repo.CreateTask(context.Background(), model.Task{ProjectID: p.ID, Title: "Ship"})

	rec := do(t, srv, http.MethodDelete, "/api/v1/rows/tasks/"+task.ID, "tok-alice", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err := repo.Task(context.Background(), task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRealtimeRelaysVisibleChanges(t *testing.T) {
	srv, _, upstream := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Router())
	defer httpSrv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)
	require.Eventually(t, func() bool { return upstream.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/v1/realtime"
	sub, err := feed.NewWebSocket(url, "tok-alice", nil).Subscribe(ctx, feed.Filter{Tables: model.Tables})
	require.NoError(t, err)
	defer sub.Close()

	hidden := `{"kind":"created","table":"projects","scope":{"team_id":"` + teamB + `"},"row":{"id":"x"}}`
	mine := `{"kind":"created","table":"projects","scope":{"team_id":"` + teamA + `"},"row":{"id":"p1"}}`
	require.NoError(t, upstream.Publish(ctx, []byte(hidden)))
	require.NoError(t, upstream.Publish(ctx, []byte(mine)))

	select {
	case raw := <-sub.Events():
		assert.JSONEq(t, mine, string(raw))
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
	}
}

func TestRealtimeRejectsUnknownTable(t *testing.T) {
	srv, _, _ := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Router())
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/v1/realtime"
	_, err := feed.NewWebSocket(url, "tok-alice", nil).Subscribe(context.Background(), feed.Filter{Tables: []string{"invoices"}})
	assert.ErrorContains(t, err, "unknown table")

	_, err = feed.NewWebSocket(url, "bad-token", nil).Subscribe(context.Background(), feed.Filter{})
	assert.Error(t, err)
}

func TestUniqueSlug(t *testing.T) {
	assert.Equal(t, "website", uniqueSlug("website", nil))
	assert.Equal(t, "website-2", uniqueSlug("website", []string{"website"}))
	assert.Equal(t, "website-4", uniqueSlug("website", []string{"website", "website-2", "website-3"}))
	assert.Equal(t, "project", slugBase("!!!"))
	assert.Equal(t, `a\_b-%`, likePattern("a_b"))
}

func TestVisible(t *testing.T) {
	teams := []string{teamA}
	assert.True(t, visible([]byte(`{"scope":{"team_id":"`+teamA+`"}}`), teams, alice))
	assert.False(t, visible([]byte(`{"scope":{"team_id":"`+teamB+`"}}`), teams, alice))
	assert.True(t, visible([]byte(`{"scope":{"user_id":"`+alice+`"}}`), teams, alice))
	assert.False(t, visible([]byte(`{"scope":{"user_id":"bob"}}`), teams, alice))
	assert.False(t, visible([]byte(`{"kind":"created"}`), teams, alice))
}

func TestUpdateQuery(t *testing.T) {
	q, args := updateQuery("tasks", "t1", map[string]interface{}{"title": "x", "due_date": nil}, "id")
	assert.Equal(t, "UPDATE tasks SET due_date = $2::date, title = $3 WHERE id = $1 RETURNING id", q)
	assert.Equal(t, []interface{}{"t1", nil, "x"}, args)
}
