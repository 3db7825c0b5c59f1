package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/existflow/ironsync/internal/logger"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 1 << 20
)

// Frame types spoken on the realtime socket
const (
	FrameSubscribe  = "subscribe"
	FrameSubscribed = "subscribed"
	FrameChange     = "change"
	FrameError      = "error"
)

// Frame is one message on the realtime socket
type Frame struct {
	Type    string          `json:"type"`
	Tables  []string        `json:"tables,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

// WebSocket subscribes to the server's realtime endpoint
type WebSocket struct {
	url    string
	token  string
	dialer *websocket.Dialer
	log    *logger.Logger
}

// NewWebSocket creates a source dialing url (ws:// or wss://) with token as
// bearer credentials
func NewWebSocket(url, token string, log *logger.Logger) *WebSocket {
	if log == nil {
		log = logger.Nop()
	}
	return &WebSocket{
		url:    url,
		token:  token,
		dialer: &websocket.Dialer{HandshakeTimeout: writeWait},
		log:    log.Component("feed.websocket"),
	}
}

// Subscribe performs the handshake and waits for the server to acknowledge
// the subscription before returning.
func (w *WebSocket) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+w.token)

	conn, resp, err := w.dialer.DialContext(ctx, w.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime handshake failed (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("realtime dial failed: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Frame{Type: FrameSubscribe, Tables: f.Tables}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send subscribe frame: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(writeWait))
	var ack Frame
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to read subscribe ack: %w", err)
	}
	switch ack.Type {
	case FrameSubscribed:
	case FrameError:
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe rejected: %s", ack.Message)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected frame %q during subscribe", ack.Type)
	}

	sub := &wsSub{
		conn: conn,
		ch:   make(chan []byte, 64),
		done: make(chan struct{}),
		log:  w.log,
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go sub.readLoop()
	go sub.pingLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()

	w.log.Info("Realtime subscription established", logger.F("tables", f.Tables))
	return sub, nil
}

type wsSub struct {
	conn *websocket.Conn
	ch   chan []byte
	done chan struct{}
	once sync.Once
	log  *logger.Logger
}

func (s *wsSub) Events() <-chan []byte {
	return s.ch
}

func (s *wsSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	return err
}

func (s *wsSub) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *wsSub) readLoop() {
	defer close(s.ch)

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing() {
				s.log.Warn("Realtime connection lost", logger.F("error", err))
				_ = s.Close()
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Warn("Dropping unreadable realtime frame", logger.F("error", err), logger.F("size", len(data)))
			continue
		}

		switch frame.Type {
		case FrameChange:
			select {
			case s.ch <- []byte(frame.Payload):
			case <-s.done:
				return
			}
		case FrameError:
			s.log.Warn("Realtime server error", logger.F("message", frame.Message))
		default:
			s.log.Debug("Ignoring realtime frame", logger.F("type", frame.Type))
		}
	}
}

func (s *wsSub) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.log.Debug("Ping failed", logger.F("error", err))
				return
			}
		case <-s.done:
			return
		}
	}
}
