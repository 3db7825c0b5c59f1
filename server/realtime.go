package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/existflow/ironsync/internal/feed"
	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	clientBuf  = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients authenticate with a bearer token, not cookies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub relays database change events to websocket clients. One upstream
// subscription feeds an in-process fan-out that each client filters.
type Hub struct {
	upstream feed.Source
	fanout   *feed.Memory
	log      *logger.Logger

	retryMin time.Duration
	retryMax time.Duration
	once     sync.Once
}

// NewHub creates a hub reading from upstream
func NewHub(upstream feed.Source, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		upstream: upstream,
		fanout:   feed.NewMemory(clientBuf),
		log:      log.Component("hub"),
		retryMin: time.Second,
		retryMax: 30 * time.Second,
	}
}

// Run pumps upstream events into the fan-out until ctx is cancelled,
// resubscribing when the upstream drops
func (h *Hub) Run(ctx context.Context) {
	delay := h.retryMin
	for ctx.Err() == nil {
		sub, err := h.upstream.Subscribe(ctx, feed.Filter{})
		if err != nil {
			h.log.Warn("Upstream subscribe failed", logger.F("error", err), logger.F("retry_in", delay.String()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > h.retryMax {
				delay = h.retryMax
			}
			continue
		}
		delay = h.retryMin

		for raw := range sub.Events() {
			if err := h.fanout.Publish(ctx, raw); err != nil {
				break
			}
		}
		_ = sub.Close()
		if ctx.Err() == nil {
			h.log.Warn("Upstream feed ended, resubscribing")
		}
	}
}

// Subscribe registers a client filter on the fan-out
func (h *Hub) Subscribe(ctx context.Context, f feed.Filter) (feed.Subscription, error) {
	return h.fanout.Subscribe(ctx, f)
}

// Clients returns the number of connected subscribers
func (h *Hub) Clients() int {
	return h.fanout.Subscribers()
}

// Close disconnects every client
func (h *Hub) Close() {
	h.once.Do(h.fanout.Close)
}

// handleRealtime upgrades to a websocket, waits for a subscribe frame and
// streams the matching change events. Routing keys come from the user's team
// membership at subscribe time, not from the client.
func (s *Server) handleRealtime(c echo.Context) error {
	uid := userID(c)
	teams, err := s.repo.Teams(c.Request().Context(), uid)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", logger.F("error", err))
		return nil
	}
	defer conn.Close()
	conn.SetReadLimit(64 << 10)

	_ = conn.SetReadDeadline(time.Now().Add(writeWait))
	var req feed.Frame
	if err := conn.ReadJSON(&req); err != nil || req.Type != feed.FrameSubscribe {
		writeFrame(conn, feed.Frame{Type: feed.FrameError, Message: "expected subscribe frame"})
		return nil
	}
	tables, ok := subscribeTables(req.Tables)
	if !ok {
		writeFrame(conn, feed.Frame{Type: feed.FrameError, Message: "unknown table"})
		return nil
	}

	// Cancelled when the client goes away.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := s.hub.Subscribe(ctx, feed.Filter{Tables: tables, TeamIDs: teams, UserID: uid})
	if err != nil {
		writeFrame(conn, feed.Frame{Type: feed.FrameError, Message: "server shutting down"})
		return nil
	}
	defer sub.Close()

	if !writeFrame(conn, feed.Frame{Type: feed.FrameSubscribed, Tables: tables}) {
		return nil
	}
	s.log.Info("Realtime client subscribed", logger.F("user", uid), logger.F("tables", tables))

	// Reader: only control frames are expected after subscribing.
	go func() {
		defer cancel()
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case raw, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if !visible(raw, teams, uid) {
				continue
			}
			if !writeFrame(conn, feed.Frame{Type: feed.FrameChange, Payload: json.RawMessage(raw)}) {
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// visible reports whether a change belongs to the user's teams or to the
// user personally. Events without routing keys are withheld.
func visible(raw []byte, teams []string, uid string) bool {
	env, err := feed.Peek(raw)
	if err != nil {
		return false
	}
	if env.Scope.UserID != "" {
		return env.Scope.UserID == uid
	}
	for _, t := range teams {
		if env.Scope.TeamID == t {
			return true
		}
	}
	return false
}

func subscribeTables(requested []string) ([]string, bool) {
	if len(requested) == 0 {
		return model.Tables, true
	}
	for _, t := range requested {
		known := false
		for _, k := range model.Tables {
			if t == k {
				known = true
				break
			}
		}
		if !known {
			return nil, false
		}
	}
	return requested, true
}

func writeFrame(conn *websocket.Conn, f feed.Frame) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f) == nil
}
