// Package feed delivers row-level change events from the backend. Events are
// passed along as raw JSON frames; decoding and validation happen in the
// reconciler.
package feed

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrClosed is returned when subscribing to a source that was shut down
var ErrClosed = errors.New("feed: source closed")

// Source is a channel of change events that can be subscribed to
type Source interface {
	Subscribe(ctx context.Context, f Filter) (Subscription, error)
}

// Subscription delivers frames until Close is called, the context passed to
// Subscribe is cancelled, or the connection drops. Events is closed then.
type Subscription interface {
	Events() <-chan []byte
	Close() error
}

// Scope carries the routing keys the backend attaches to every event
type Scope struct {
	TeamID string `json:"team_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// Envelope is the routing part of an event frame
type Envelope struct {
	Kind  string `json:"kind"`
	Table string `json:"table"`
	Scope Scope  `json:"scope"`
}

// Peek decodes only the routing part of a frame
func Peek(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Filter selects the events a subscriber receives. Empty fields match all.
type Filter struct {
	Tables  []string `json:"tables,omitempty"`
	TeamIDs []string `json:"team_ids,omitempty"`
	UserID  string   `json:"user_id,omitempty"`
}

// Match reports whether an event with env passes the filter
func (f Filter) Match(env Envelope) bool {
	if len(f.Tables) > 0 && !contains(f.Tables, env.Table) {
		return false
	}
	if env.Scope.TeamID != "" && len(f.TeamIDs) > 0 && !contains(f.TeamIDs, env.Scope.TeamID) {
		return false
	}
	if env.Scope.UserID != "" && f.UserID != "" && env.Scope.UserID != f.UserID {
		return false
	}
	return true
}

// MatchRaw peeks raw and applies Match. Frames that cannot be peeked pass,
// so the reconciler gets to log and drop them.
func (f Filter) MatchRaw(raw []byte) bool {
	env, err := Peek(raw)
	if err != nil {
		return true
	}
	return f.Match(env)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
