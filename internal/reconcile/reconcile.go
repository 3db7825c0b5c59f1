// Package reconcile merges server-pushed change events into the store
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/existflow/ironsync/internal/feed"
	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/store"
)

// ErrFeedClosed is returned by Run when the subscription ends on its own
var ErrFeedClosed = errors.New("change feed closed")

// Stats counts handled events
type Stats struct {
	Applied uint64
	Ignored uint64
	Dropped uint64
}

// Reconciler applies decoded change events to a store. Applying the same
// event twice leaves the store as applying it once.
type Reconciler struct {
	store *store.Store
	log   *logger.Logger

	applied atomic.Uint64
	ignored atomic.Uint64
	dropped atomic.Uint64
}

// New creates a reconciler for s
func New(s *store.Store, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{store: s, log: log.Component("reconcile")}
}

// Apply routes ev to the matching store mutation
func (r *Reconciler) Apply(ev Event) store.Outcome {
	out := r.route(ev)
	if out == store.ConflictIgnored {
		r.ignored.Add(1)
	} else {
		r.applied.Add(1)
	}
	return out
}

func (r *Reconciler) route(ev Event) store.Outcome {
	switch {
	case ev.Project != nil:
		p := *ev.Project
		switch ev.Kind {
		case Created:
			team, _ := p.TeamID.Get()
			return r.store.AddProject(team, p)
		case Updated:
			return r.store.UpdateProject(p.ID, p)
		case Deleted:
			return r.store.RemoveProject(p.ID)
		}
	case ev.Task != nil:
		t := *ev.Task
		switch ev.Kind {
		case Created:
			project, _ := t.ProjectID.Get()
			return r.store.AddTask(project, t)
		case Updated:
			return r.store.UpdateTask(t.ID, t)
		case Deleted:
			return r.store.RemoveTask(t.ID)
		}
	case ev.Notification != nil:
		n := *ev.Notification
		switch ev.Kind {
		case Created:
			user, _ := n.UserID.Get()
			return r.store.AddNotification(user, n)
		case Updated:
			return r.store.UpdateNotification(n.ID, n)
		case Deleted:
			return r.store.RemoveNotification(n.ID)
		}
	}
	return store.ConflictIgnored
}

// HandleRaw decodes and applies one frame. Frames that fail decoding are
// logged and dropped; the error is returned for callers that count them.
func (r *Reconciler) HandleRaw(raw []byte) (store.Outcome, error) {
	ev, err := Decode(raw)
	if err != nil {
		r.dropped.Add(1)
		if errors.Is(err, ErrUnknownTable) {
			r.log.Debug("Dropped event for unknown table", logger.F("error", err))
		} else {
			r.log.Warn("Dropped malformed event", logger.F("error", err), logger.F("bytes", len(raw)))
		}
		return store.ConflictIgnored, err
	}

	out := r.Apply(ev)
	r.log.Debug("Applied event",
		logger.F("kind", ev.Kind),
		logger.F("table", ev.Table),
		logger.F("id", ev.ID()),
		logger.F("outcome", out))
	return out, nil
}

// Run consumes sub until ctx is cancelled or the feed closes. It returns
// ctx.Err() on cancellation and ErrFeedClosed when the feed ends first.
func (r *Reconciler) Run(ctx context.Context, sub feed.Subscription) error {
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrFeedClosed
			}
			_, _ = r.HandleRaw(raw)
		}
	}
}

// Stats returns the counters so far
func (r *Reconciler) Stats() Stats {
	return Stats{
		Applied: r.applied.Load(),
		Ignored: r.ignored.Load(),
		Dropped: r.dropped.Load(),
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("applied=%d ignored=%d dropped=%d", s.Applied, s.Ignored, s.Dropped)
}
