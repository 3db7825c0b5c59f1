// Package session wires the store, gateway, reconciler, change feed, remote
// API and cache together for one signed-in user
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/existflow/ironsync/internal/cache"
	"github.com/existflow/ironsync/internal/feed"
	"github.com/existflow/ironsync/internal/gateway"
	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/reconcile"
	"github.com/existflow/ironsync/internal/store"
)

// ErrUnauthenticated is returned by Start when the backend does not know the
// session token's user
var ErrUnauthenticated = errors.New("session: not signed in")

// ErrClosed is returned by Start once Close has been called
var ErrClosed = errors.New("session: closed")

// Backend is the remote API a session needs
type Backend interface {
	gateway.Persister
	Me(ctx context.Context) (model.Identity, error)
	ListProjects(ctx context.Context, teamID string) ([]json.RawMessage, error)
	ListTasks(ctx context.Context, projectID string) ([]json.RawMessage, error)
	ListNotifications(ctx context.Context) ([]json.RawMessage, error)
}

// Deps are the parts a session is built from. Cache and Log are optional.
type Deps struct {
	Backend Backend
	Feed    feed.Source
	Cache   *cache.Cache
	Log     *logger.Logger

	// TeamID limits the session to one team. Empty means every team of the user.
	TeamID string
	// FetchConcurrency bounds parallel task list requests during a fetch
	FetchConcurrency int
	// RetryMin and RetryMax bound the resubscribe backoff
	RetryMin time.Duration
	RetryMax time.Duration
}

// Session is the client engine. Create with New, then Start.
type Session struct {
	deps  Deps
	log   *logger.Logger
	store *store.Store
	gw    *gateway.Gateway
	rec   *reconcile.Reconciler

	mu       sync.Mutex
	identity model.Identity
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
}

// New builds a session with an empty store
func New(deps Deps) *Session {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.FetchConcurrency <= 0 {
		deps.FetchConcurrency = 4
	}
	if deps.RetryMin <= 0 {
		deps.RetryMin = time.Second
	}
	if deps.RetryMax < deps.RetryMin {
		deps.RetryMax = 30 * time.Second
	}

	s := store.New(deps.Log)
	return &Session{
		deps:  deps,
		log:   deps.Log.Component("session"),
		store: s,
		gw:    gateway.New(s, deps.Backend, deps.Log),
		rec:   reconcile.New(s, deps.Log),
	}
}

// Store is the live entity store
func (s *Session) Store() *store.Store {
	return s.store
}

// Gateway performs user mutations against this session's store
func (s *Session) Gateway() *gateway.Gateway {
	return s.gw
}

// Identity is the signed-in user, known after Start
func (s *Session) Identity() model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Stats reports reconciler counters
func (s *Session) Stats() reconcile.Stats {
	return s.rec.Stats()
}

// Start identifies the user, warms the store from the cache, subscribes to
// the change feed and fetches current state. The subscription comes before
// the fetch so no change made in between is missed. Start returns once the
// first fetch is done; the feed keeps being consumed until Close.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("session: already started")
	}
	s.started = true
	s.mu.Unlock()

	id, err := s.deps.Backend.Me(ctx)
	if err != nil {
		return fmt.Errorf("failed to identify user: %w", err)
	}
	if id.UserID == "" {
		return ErrUnauthenticated
	}
	if s.deps.TeamID != "" {
		if !id.MemberOf(s.deps.TeamID) {
			return fmt.Errorf("user %s is not a member of team %s", id.UserID, s.deps.TeamID)
		}
		id.TeamIDs = []string{s.deps.TeamID}
	}

	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()

	s.warmFromCache(ctx, id.UserID)

	runCtx, cancel := context.WithCancel(context.Background())
	sub, err := s.deps.Feed.Subscribe(runCtx, s.filter(id))
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to changes: %w", err)
	}

	if err := s.fetch(ctx, id); err != nil {
		cancel()
		_ = sub.Close()
		return err
	}

	// Close may have run while the fetch was in flight. It found nothing to
	// cancel, so the subscription is released here.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		_ = sub.Close()
		return ErrClosed
	}
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(runCtx, sub, id)

	s.log.Info("Session started",
		logger.F("user", id.UserID),
		logger.F("teams", len(id.TeamIDs)))
	return nil
}

func (s *Session) filter(id model.Identity) feed.Filter {
	return feed.Filter{
		Tables:  model.Tables,
		TeamIDs: id.TeamIDs,
		UserID:  id.UserID,
	}
}

func (s *Session) warmFromCache(ctx context.Context, userID string) {
	if s.deps.Cache == nil {
		return
	}
	snap, err := s.deps.Cache.Load(ctx, userID)
	if err != nil {
		s.log.Warn("Cache load failed", logger.F("error", err))
		return
	}
	s.store.Seed(snap)
	s.log.Debug("Store warmed from cache",
		logger.F("projects", len(snap.Projects)),
		logger.F("tasks", len(snap.Tasks)))
}

// run consumes the feed and resubscribes with backoff when it drops. Every
// resubscribe is followed by a refetch, since events may have been missed.
func (s *Session) run(ctx context.Context, sub feed.Subscription, id model.Identity) {
	defer close(s.done)

	delay := s.deps.RetryMin
	for {
		err := s.rec.Run(ctx, sub)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("Change feed dropped", logger.F("error", err))

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.deps.RetryMax {
				delay = s.deps.RetryMax
			}

			next, err := s.deps.Feed.Subscribe(ctx, s.filter(id))
			if err != nil {
				s.log.Warn("Resubscribe failed", logger.F("error", err), logger.F("retry_in", delay.String()))
				continue
			}
			if err := s.fetch(ctx, id); err != nil {
				s.log.Warn("Refetch after resubscribe failed", logger.F("error", err))
			}
			sub = next
			delay = s.deps.RetryMin
			s.log.Info("Change feed resumed")
			break
		}
	}
}

// fetch loads every project, task and notification the user can see. Task
// lists are requested in parallel.
func (s *Session) fetch(ctx context.Context, id model.Identity) error {
	var projectIDs []string
	for _, team := range id.TeamIDs {
		raws, err := s.deps.Backend.ListProjects(ctx, team)
		if err != nil {
			return fmt.Errorf("failed to list projects of team %s: %w", team, err)
		}
		for _, raw := range raws {
			patch, err := reconcile.DecodeProjectRecord(raw)
			if err != nil {
				s.log.Warn("Skipped invalid project record", logger.F("error", err))
				continue
			}
			s.store.AddProject(team, patch)
			projectIDs = append(projectIDs, patch.ID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.deps.FetchConcurrency)
	for _, pid := range projectIDs {
		pid := pid
		g.Go(func() error {
			raws, err := s.deps.Backend.ListTasks(gctx, pid)
			if err != nil {
				return fmt.Errorf("failed to list tasks of project %s: %w", pid, err)
			}
			for _, raw := range raws {
				patch, err := reconcile.DecodeTaskRecord(raw)
				if err != nil {
					s.log.Warn("Skipped invalid task record", logger.F("error", err))
					continue
				}
				s.store.AddTask(pid, patch)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	raws, err := s.deps.Backend.ListNotifications(ctx)
	if err != nil {
		return fmt.Errorf("failed to list notifications: %w", err)
	}
	for _, raw := range raws {
		patch, err := reconcile.DecodeNotificationRecord(raw)
		if err != nil {
			s.log.Warn("Skipped invalid notification record", logger.F("error", err))
			continue
		}
		s.store.AddNotification(id.UserID, patch)
	}
	return nil
}

// Close stops the feed, saves the confirmed store contents to the cache and
// tears the store down. Gateway calls still in flight resolve as no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done, id := s.cancel, s.done, s.identity
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	var err error
	if s.deps.Cache != nil && id.UserID != "" {
		ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		err = s.deps.Cache.Save(ctx, id.UserID, s.store.Snapshot())
		stop()
		if err != nil {
			err = fmt.Errorf("failed to save cache: %w", err)
		}
	}

	s.store.Close()
	s.log.Info("Session closed", logger.F("stats", s.rec.Stats().String()))
	return err
}
