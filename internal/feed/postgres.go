package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/existflow/ironsync/internal/logger"
)

// ChangeChannel is the NOTIFY channel the row triggers publish on
const ChangeChannel = "row_changes"

// Postgres listens for trigger notifications on a database connection
type Postgres struct {
	dsn          string
	channel      string
	minReconnect time.Duration
	maxReconnect time.Duration
	log          *logger.Logger
}

// NewPostgres creates a source listening on ChangeChannel
func NewPostgres(dsn string, log *logger.Logger) *Postgres {
	if log == nil {
		log = logger.Nop()
	}
	return &Postgres{
		dsn:          dsn,
		channel:      ChangeChannel,
		minReconnect: 10 * time.Second,
		maxReconnect: time.Minute,
		log:          log.Component("feed.postgres"),
	}
}

// Subscribe opens a dedicated listener connection
func (p *Postgres) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	report := func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			p.log.Warn("Listener connection attempt failed", logger.F("error", err))
		case pq.ListenerEventDisconnected:
			p.log.Warn("Listener disconnected", logger.F("error", err))
		case pq.ListenerEventReconnected:
			p.log.Info("Listener reconnected")
		}
	}

	l := pq.NewListener(p.dsn, p.minReconnect, p.maxReconnect, report)
	if err := l.Listen(p.channel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", p.channel, err)
	}

	sub := &pgSub{
		listener: l,
		filter:   f,
		ch:       make(chan []byte, 64),
		done:     make(chan struct{}),
		log:      p.log,
	}
	go sub.loop(ctx)

	p.log.Info("Listening for row changes", logger.F("channel", p.channel))
	return sub, nil
}

type pgSub struct {
	listener *pq.Listener
	filter   Filter
	ch       chan []byte
	done     chan struct{}
	once     sync.Once
	log      *logger.Logger
}

func (s *pgSub) Events() <-chan []byte {
	return s.ch
}

func (s *pgSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.listener.Close()
	})
	return err
}

func (s *pgSub) loop(ctx context.Context) {
	defer close(s.ch)

	for {
		select {
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnected: notifications sent while down are gone.
				s.log.Warn("Listener reconnected, events may have been missed")
				continue
			}
			raw := []byte(n.Extra)
			if !s.filter.MatchRaw(raw) {
				continue
			}
			select {
			case s.ch <- raw:
			case <-s.done:
				return
			case <-ctx.Done():
				_ = s.Close()
				return
			}
		case <-time.After(90 * time.Second):
			go func() {
				if err := s.listener.Ping(); err != nil {
					s.log.Debug("Listener ping failed", logger.F("error", err))
				}
			}()
		case <-s.done:
			return
		case <-ctx.Done():
			_ = s.Close()
			return
		}
	}
}
