package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/metrics"
)

// ManagerConfig holds reconnect policy and invoke timeout settings.
type ManagerConfig struct {
	ReconnectInterval time.Duration
	ReconnectMax      time.Duration
	Exponential       bool
	InvokeTimeout     time.Duration
}

func (c *ManagerConfig) norm() {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 5 * time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = time.Minute
	}
	if c.InvokeTimeout <= 0 {
		c.InvokeTimeout = 10 * time.Second
	}
}

// attempt is a shared in-flight connect. err is written before done is closed.
type attempt struct {
	done chan struct{}
	err  error
}

// Manager owns the push connection lifecycle: connect, explicit disconnect,
// and automatic reconnection with backoff on unexpected loss. It is an
// explicitly constructed instance; tests create isolated managers around a
// fake Connection.
type Manager struct {
	conn  Connection
	creds CredentialProvider
	cfg   ManagerConfig
	log   *logger.Logger

	mu             sync.Mutex
	state          State
	inflight       *attempt
	stopCh         chan struct{}
	onConnected    []func()
	onDisconnected []func(error)
}

// NewManager creates a connection manager around a transport backend.
func NewManager(conn Connection, creds CredentialProvider, cfg ManagerConfig, log *logger.Logger) *Manager {
	cfg.norm()
	m := &Manager{
		conn:  conn,
		creds: creds,
		cfg:   cfg,
		log:   log.WithComponent("transport"),
		state: StateDisconnected,
	}
	conn.OnClose(m.handleClose)
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnConnected registers a callback fired after every successful (re)connect.
// The membership tracker uses this signal to replay topic joins.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = append(m.onConnected, fn)
}

// OnDisconnected registers a callback fired when the connection is lost
// unexpectedly, before the reconnect loop starts. Explicit Disconnect does
// not fire it.
func (m *Manager) OnDisconnected(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = append(m.onDisconnected, fn)
}

// On registers an event handler on the underlying connection.
func (m *Manager) On(event model.EventType, handler func(json.RawMessage)) {
	m.conn.On(string(event), handler)
}

// Connect establishes the connection. It is idempotent: when already
// connected it returns immediately, and while an attempt is in flight all
// callers share its result instead of dialing again.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	if a := m.inflight; a != nil {
		m.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	a := &attempt{done: make(chan struct{})}
	m.inflight = a
	m.setStateLocked(StateConnecting)
	if m.stopCh == nil {
		m.stopCh = make(chan struct{})
	}
	m.mu.Unlock()

	err := m.dial(ctx)

	m.mu.Lock()
	m.inflight = nil
	if err != nil {
		m.setStateLocked(StateDisconnected)
	} else {
		m.setStateLocked(StateConnected)
	}
	m.mu.Unlock()

	if err == nil {
		m.fireConnected()
	}

	a.err = err
	close(a.done)
	return err
}

// Disconnect tears down the connection and stops any reconnect loop. It
// resolves even when already disconnected.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	return m.conn.Stop()
}

// Invoke calls a method on the server. It refuses while not connected so
// callers can queue the operation for replay instead. Calls arriving without
// a deadline get the configured invoke timeout so a replay can never wedge.
func (m *Manager) Invoke(ctx context.Context, method string, args ...any) error {
	if m.State() != StateConnected {
		return model.ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.InvokeTimeout)
		defer cancel()
	}
	if err := m.conn.Invoke(ctx, method, args...); err != nil {
		return &model.TransportError{Op: method, Err: err}
	}
	return nil
}

func (m *Manager) dial(ctx context.Context) error {
	token, err := m.creds.Token(ctx)
	if err != nil {
		return err
	}
	if err := m.conn.Start(ctx, token); err != nil {
		var authErr *model.AuthenticationError
		if errors.As(err, &authErr) {
			return err
		}
		return &model.TransportError{Op: "connect", Err: err}
	}
	return nil
}

// handleClose reacts to unexpected connection loss by entering the
// reconnect loop. Explicit Disconnect never reaches here.
func (m *Manager) handleClose(err error) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateReconnecting)
	stop := m.stopCh
	callbacks := append([]func(error){}, m.onDisconnected...)
	m.mu.Unlock()

	m.log.Warn("connection lost, reconnecting", zap.Error(err))
	for _, fn := range callbacks {
		fn(err)
	}
	go m.reconnectLoop(stop)
}

func (m *Manager) reconnectLoop(stop chan struct{}) {
	policy := m.backoffPolicy()

	for {
		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			policy.Reset()
			wait = policy.NextBackOff()
		}

		select {
		case <-stop:
			return
		case <-time.After(wait):
		}

		err := m.dial(context.Background())
		if err != nil {
			var authErr *model.AuthenticationError
			if errors.As(err, &authErr) {
				metrics.ReconnectsTotal.WithLabelValues("auth_failed").Inc()
				m.log.Error("reconnect aborted, credential invalid", zap.Error(err))
				m.mu.Lock()
				m.setStateLocked(StateDisconnected)
				m.mu.Unlock()
				return
			}
			metrics.ReconnectsTotal.WithLabelValues("failure").Inc()
			m.log.Warn("reconnect attempt failed", zap.Error(err))
			continue
		}

		m.mu.Lock()
		select {
		case <-stop:
			m.mu.Unlock()
			_ = m.conn.Stop()
			return
		default:
		}
		m.setStateLocked(StateConnected)
		m.mu.Unlock()

		metrics.ReconnectsTotal.WithLabelValues("success").Inc()
		m.log.Info("reconnected")
		m.fireConnected()
		return
	}
}

func (m *Manager) backoffPolicy() backoff.BackOff {
	if m.cfg.Exponential {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = m.cfg.ReconnectInterval
		b.MaxInterval = m.cfg.ReconnectMax
		b.MaxElapsedTime = 0
		return b
	}
	return backoff.NewConstantBackOff(m.cfg.ReconnectInterval)
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	metrics.SetConnectionState(s.Gauge())
}

func (m *Manager) fireConnected() {
	m.mu.Lock()
	callbacks := append([]func(){}, m.onConnected...)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}
