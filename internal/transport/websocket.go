package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	frameInvocation = "invocation"
	frameEvent      = "event"
)

// wsFrame is the JSON envelope exchanged with the hub.
type wsFrame struct {
	Type      string            `json:"type"`
	Target    string            `json:"target"`
	Arguments []json.RawMessage `json:"arguments"`
}

// WebSocketConnection is the hub-style websocket backend. Outbound frames go
// through a buffered send queue consumed by a single writer goroutine.
type WebSocketConnection struct {
	url string
	log *logger.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	handlers map[string][]func(json.RawMessage)
	closeFn  func(error)
	running  bool
}

// NewWebSocketConnection creates a websocket connection to the given hub URL.
func NewWebSocketConnection(url string, log *logger.Logger) *WebSocketConnection {
	return &WebSocketConnection{
		url:      url,
		log:      log.WithComponent("websocket"),
		handlers: make(map[string][]func(json.RawMessage)),
	}
}

// On registers a handler for a named server event. Handlers survive reconnects.
func (c *WebSocketConnection) On(target string, handler func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[target] = append(c.handlers[target], handler)
}

// OnClose registers the unexpected-close handler.
func (c *WebSocketConnection) OnClose(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeFn = fn
}

// Start dials the hub and launches the read/write pumps.
func (c *WebSocketConnection) Start(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return &model.AuthenticationError{Reason: resp.Status}
		}
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.conn = conn
	c.send = make(chan []byte, 64)
	c.done = make(chan struct{})
	c.running = true

	go c.readPump(conn, c.done)
	go c.writePump(conn, c.send, c.done)

	return nil
}

// Stop closes the connection without triggering the close handler.
func (c *WebSocketConnection) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	close(c.done)

	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Invoke sends an invocation frame to the hub.
func (c *WebSocketConnection) Invoke(ctx context.Context, method string, args ...any) error {
	arguments := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return fmt.Errorf("marshal argument: %w", err)
		}
		arguments = append(arguments, raw)
	}

	data, err := json.Marshal(wsFrame{
		Type:      frameInvocation,
		Target:    method,
		Arguments: arguments,
	})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return model.ErrNotConnected
	}
	send, done := c.send, c.done
	c.mu.Unlock()

	select {
	case send <- data:
		return nil
	case <-done:
		return model.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *WebSocketConnection) readPump(conn *websocket.Conn, done chan struct{}) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.teardown(err)
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if frame.Type != frameEvent {
			continue
		}
		c.dispatch(frame)
	}
}

func (c *WebSocketConnection) writePump(conn *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.teardown(err)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.teardown(err)
				return
			}
		case <-done:
			return
		}
	}
}

func (c *WebSocketConnection) dispatch(frame wsFrame) {
	var payload json.RawMessage
	if len(frame.Arguments) > 0 {
		payload = frame.Arguments[0]
	}

	c.mu.Lock()
	handlers := append([]func(json.RawMessage){}, c.handlers[frame.Target]...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

// teardown handles unexpected connection loss. Explicit Stop wins: once
// running is false the close handler is never invoked.
func (c *WebSocketConnection) teardown(err error) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.done)
	_ = c.conn.Close()
	c.conn = nil
	fn := c.closeFn
	c.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}
