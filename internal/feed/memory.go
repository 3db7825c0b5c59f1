package feed

import (
	"context"
	"sync"
)

// Memory is an in-process fan-out source. Publish blocks until every matching
// subscriber took the frame or went away.
type Memory struct {
	mu     sync.Mutex
	subs   map[*memorySub]struct{}
	buffer int
	closed bool
}

// NewMemory creates a fan-out with a per-subscriber buffer of size buffer
func NewMemory(buffer int) *Memory {
	return &Memory{
		subs:   make(map[*memorySub]struct{}),
		buffer: buffer,
	}
}

type memorySub struct {
	parent *Memory
	filter Filter
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
}

// Subscribe registers a subscriber. Cancelling ctx closes it.
func (m *Memory) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	sub := &memorySub{
		parent: m,
		filter: f,
		ch:     make(chan []byte, m.buffer),
		done:   make(chan struct{}),
	}
	m.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Publish delivers raw to every subscriber whose filter matches
func (m *Memory) Publish(ctx context.Context, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	env, peekErr := Peek(raw)
	for sub := range m.subs {
		if peekErr == nil && !sub.filter.Match(env) {
			continue
		}
		select {
		case sub.ch <- raw:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Close ends every subscription and rejects new ones
func (m *Memory) Close() {
	m.mu.Lock()
	subs := make([]*memorySub, 0, len(m.subs))
	for sub := range m.subs {
		subs = append(subs, sub)
	}
	m.closed = true
	m.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
}

func (s *memorySub) Events() <-chan []byte {
	return s.ch
}

func (s *memorySub) Close() error {
	s.once.Do(func() {
		// done first, so a publisher blocked on this subscriber lets go of mu
		close(s.done)

		s.parent.mu.Lock()
		delete(s.parent.subs, s)
		s.parent.mu.Unlock()

		close(s.ch)
	})
	return nil
}
