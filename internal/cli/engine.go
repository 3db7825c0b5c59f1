package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/existflow/ironsync/internal/cache"
	"github.com/existflow/ironsync/internal/feed"
	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/remote"
	"github.com/existflow/ironsync/internal/session"
)

// engine is a started session plus the resources it owns
type engine struct {
	*session.Session
	client *remote.Client
	cache  *cache.Cache
}

// openEngine signs in with the configured token, warms the store from the
// cache and fetches current state
func openEngine(ctx context.Context) (*engine, error) {
	if cfg.Token == "" {
		return nil, errors.New("no session token: run 'ironsync config token' first")
	}

	log := logger.Global()
	client := remote.NewClient(cfg.ServerURL, cfg.Token, nil)
	deps := session.Deps{
		Backend: client,
		Feed:    feed.NewWebSocket(cfg.RealtimeURL(), cfg.Token, log),
		Log:     log,
		TeamID:  cfg.TeamID,
	}

	e := &engine{client: client}
	if cfg.CacheEnabled() {
		c, err := cache.Open(cfg.CachePath)
		if err != nil {
			logger.Warn("Cache unavailable, starting cold", logger.F("path", cfg.CachePath), logger.F("error", err))
		} else {
			e.cache = c
			deps.Cache = c
		}
	}

	e.Session = session.New(deps)
	if err := e.Start(ctx); err != nil {
		e.Close()
		return nil, explain(err)
	}
	return e, nil
}

// Close stops the session, which saves the cache, then closes the cache
func (e *engine) Close() {
	if err := e.Session.Close(); err != nil {
		logger.Warn("Session close failed", logger.F("error", err))
	}
	if e.cache != nil {
		_ = e.cache.Close()
	}
}

// explain turns sign-in failures into actionable messages
func explain(err error) error {
	var re *remote.Error
	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		return errors.New("not signed in: run 'ironsync config token'")
	case errors.As(err, &re) && re.Status == http.StatusUnauthorized:
		return fmt.Errorf("token rejected by %s (%s): run 'ironsync config token'", cfg.ServerURL, re.Message)
	case errors.As(err, &re) && re.Status == 0:
		return fmt.Errorf("cannot reach %s: %s", cfg.ServerURL, re.Message)
	}
	return err
}
