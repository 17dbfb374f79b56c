package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
)

// natsEnvelope wraps every event published on a CRM subject.
type natsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NATSConnection is the NATS backend for the push transport. Topics map to
// subjects under a configurable prefix; JoinGroup and LeaveGroup map to
// Subscribe and Unsubscribe. Reconnection is owned by the Manager, so the
// client is configured with NoReconnect.
type NATSConnection struct {
	url    string
	prefix string
	log    *logger.Logger

	mu       sync.Mutex
	nc       *nats.Conn
	subs     map[string]*nats.Subscription
	handlers map[string][]func(json.RawMessage)
	closeFn  func(error)
	running  bool
}

// NewNATSConnection creates a NATS connection for the given server URL and
// subject prefix.
func NewNATSConnection(url, prefix string, log *logger.Logger) *NATSConnection {
	return &NATSConnection{
		url:      url,
		prefix:   prefix,
		log:      log.WithComponent("nats"),
		subs:     make(map[string]*nats.Subscription),
		handlers: make(map[string][]func(json.RawMessage)),
	}
}

// On registers a handler for a named server event. Handlers survive reconnects.
func (c *NATSConnection) On(target string, handler func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[target] = append(c.handlers[target], handler)
}

// OnClose registers the unexpected-close handler.
func (c *NATSConnection) OnClose(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeFn = fn
}

// Start connects to the NATS server and subscribes to the broadcast subject
// carrying events that are not scoped to a single conversation topic.
func (c *NATSConnection) Start(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	opts := []nats.Option{
		nats.NoReconnect(),
		nats.ClosedHandler(func(nc *nats.Conn) {
			c.teardown(nc.LastError())
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(c.url, opts...)
	if err != nil {
		if err == nats.ErrAuthorization {
			return &model.AuthenticationError{Reason: err.Error()}
		}
		return fmt.Errorf("connect %s: %w", c.url, err)
	}

	c.nc = nc
	c.running = true

	if err := c.subscribeLocked("broadcast"); err != nil {
		c.running = false
		nc.Close()
		c.nc = nil
		return err
	}

	return nil
}

// Stop closes the connection without triggering the close handler.
func (c *NATSConnection) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	c.subs = make(map[string]*nats.Subscription)
	c.nc.Close()
	c.nc = nil
	return nil
}

// Invoke maps the hub method vocabulary onto NATS subscriptions.
func (c *NATSConnection) Invoke(ctx context.Context, method string, args ...any) error {
	topic, err := topicArg(args)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return model.ErrNotConnected
	}

	switch method {
	case MethodJoinGroup:
		return c.subscribeLocked(topic)
	case MethodLeaveGroup:
		sub, ok := c.subs[topic]
		if !ok {
			return nil
		}
		delete(c.subs, topic)
		return sub.Unsubscribe()
	default:
		return fmt.Errorf("unsupported method %q", method)
	}
}

func (c *NATSConnection) subscribeLocked(topic string) error {
	if _, ok := c.subs[topic]; ok {
		return nil
	}
	sub, err := c.nc.Subscribe(c.prefix+"."+topic, c.dispatch)
	if err != nil {
		return fmt.Errorf("subscribe %q: %w", topic, err)
	}
	c.subs[topic] = sub
	return nil
}

func (c *NATSConnection) dispatch(msg *nats.Msg) {
	var env natsEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		c.log.Warn("dropping malformed event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}

	c.mu.Lock()
	handlers := append([]func(json.RawMessage){}, c.handlers[env.Event]...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(env.Data)
	}
}

func (c *NATSConnection) teardown(err error) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.subs = make(map[string]*nats.Subscription)
	c.nc = nil
	fn := c.closeFn
	c.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}

func topicArg(args []any) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("missing topic argument")
	}
	topic, ok := args[0].(string)
	if !ok || topic == "" {
		return "", fmt.Errorf("invalid topic argument %v", args[0])
	}
	return topic, nil
}
