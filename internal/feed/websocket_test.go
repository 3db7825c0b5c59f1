package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func realtimeServer(t *testing.T, onSubscribe func(conn *websocket.Conn, f Frame)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		onSubscribe(conn, f)

		// Hold the socket open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketDeliversChangePayloads(t *testing.T) {
	gotTables := make(chan []string, 1)
	url := realtimeServer(t, func(conn *websocket.Conn, f Frame) {
		gotTables <- f.Tables
		_ = conn.WriteJSON(Frame{Type: FrameSubscribed})
		_ = conn.WriteJSON(Frame{Type: "noise"})
		_ = conn.WriteJSON(Frame{Type: FrameChange, Payload: []byte(taskEvent)})
	})

	sub, err := NewWebSocket(url, "secret", nil).Subscribe(context.Background(), Filter{Tables: []string{"tasks"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"tasks"}, <-gotTables)
	assert.JSONEq(t, taskEvent, receive(t, sub))

	require.NoError(t, sub.Close())
	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestWebSocketRejectedSubscribe(t *testing.T) {
	url := realtimeServer(t, func(conn *websocket.Conn, f Frame) {
		_ = conn.WriteJSON(Frame{Type: FrameError, Message: "unknown table"})
	})

	_, err := NewWebSocket(url, "secret", nil).Subscribe(context.Background(), Filter{Tables: []string{"bogus"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown table")
}

func TestWebSocketBadToken(t *testing.T) {
	url := realtimeServer(t, func(*websocket.Conn, Frame) {})
	_, err := NewWebSocket(url, "wrong", nil).Subscribe(context.Background(), Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestFilterMatch(t *testing.T) {
	f := Filter{Tables: []string{"tasks"}, TeamIDs: []string{"team-1"}}
	assert.True(t, f.Match(Envelope{Table: "tasks", Scope: Scope{TeamID: "team-1"}}))
	assert.True(t, f.Match(Envelope{Table: "tasks"}), "unscoped events pass")
	assert.False(t, f.Match(Envelope{Table: "tasks", Scope: Scope{TeamID: "team-2"}}))
	assert.False(t, f.Match(Envelope{Table: "projects", Scope: Scope{TeamID: "team-1"}}))
}
