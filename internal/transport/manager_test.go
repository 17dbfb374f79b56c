package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
)

// fakeConn is a scripted transport backend. startErrs is consumed one entry
// per Start call; once exhausted Start succeeds.
type fakeConn struct {
	mu        sync.Mutex
	startErrs []error
	starts    int
	stops     int
	invokes      []string
	invokeErr    error
	hadDeadlines []bool
	closeFn   func(err error)
	handlers  map[string]func(json.RawMessage)
}

func newFakeConn(startErrs ...error) *fakeConn {
	return &fakeConn{
		startErrs: startErrs,
		handlers:  make(map[string]func(json.RawMessage)),
	}
}

func (f *fakeConn) Start(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		return err
	}
	return nil
}

func (f *fakeConn) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeConn) Invoke(ctx context.Context, method string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invokes = append(f.invokes, method)
	_, ok := ctx.Deadline()
	f.hadDeadlines = append(f.hadDeadlines, ok)
	return f.invokeErr
}

func (f *fakeConn) On(target string, handler func(json.RawMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[target] = handler
}

func (f *fakeConn) OnClose(fn func(err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeFn = fn
}

func (f *fakeConn) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// fireClose simulates unexpected connection loss.
func (f *fakeConn) fireClose(err error) {
	f.mu.Lock()
	fn := f.closeFn
	f.mu.Unlock()
	fn(err)
}

func newTestManager(conn Connection, cfg ManagerConfig) *Manager {
	return NewManager(conn, NewStaticTokenProvider("opaque-token"), cfg, logger.NewNop())
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", m.State(), want)
}

func TestManager_ConnectIdempotent(t *testing.T) {
	conn := newFakeConn()
	m := newTestManager(conn, ManagerConfig{})
	ctx := context.Background()

	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("second Connect: %v", err)
	}

	if got := conn.startCount(); got != 1 {
		t.Errorf("Start called %d times, want 1", got)
	}
	if m.State() != StateConnected {
		t.Errorf("state = %s, want %s", m.State(), StateConnected)
	}
}

func TestManager_ConcurrentConnectSharesAttempt(t *testing.T) {
	conn := newFakeConn()
	m := newTestManager(conn, ManagerConfig{})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Connect(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Connect[%d]: %v", i, err)
		}
	}
	// With all callers racing for one attempt, at most one extra dial can
	// slip in after the first completes but before its state is observed.
	if got := conn.startCount(); got > 2 {
		t.Errorf("Start called %d times for concurrent callers", got)
	}
}

func TestManager_ConnectAuthErrorPassedThrough(t *testing.T) {
	conn := newFakeConn(&model.AuthenticationError{Reason: "rejected"})
	m := newTestManager(conn, ManagerConfig{})

	err := m.Connect(context.Background())

	var authErr *model.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthenticationError", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want %s", m.State(), StateDisconnected)
	}
}

func TestManager_ConnectTransportErrorWrapped(t *testing.T) {
	conn := newFakeConn(errors.New("dial refused"))
	m := newTestManager(conn, ManagerConfig{})

	err := m.Connect(context.Background())

	var tErr *model.TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestManager_ReconnectOnUnexpectedClose(t *testing.T) {
	conn := newFakeConn()
	m := newTestManager(conn, ManagerConfig{ReconnectInterval: 10 * time.Millisecond})

	reconnected := make(chan struct{}, 2)
	m.OnConnected(func() { reconnected <- struct{}{} })

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-reconnected

	conn.fireClose(errors.New("peer reset"))
	waitForState(t, m, StateConnected)

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("connected signal not fired after reconnect")
	}
	if got := conn.startCount(); got != 2 {
		t.Errorf("Start called %d times, want 2", got)
	}
}

func TestManager_ReconnectRetriesTransientFailures(t *testing.T) {
	// First dial succeeds; after the close, two dials fail before one lands.
	conn := newFakeConn(nil, errors.New("down"), errors.New("still down"))
	m := newTestManager(conn, ManagerConfig{ReconnectInterval: 5 * time.Millisecond})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.fireClose(errors.New("peer reset"))

	waitForState(t, m, StateConnected)
	if got := conn.startCount(); got != 4 {
		t.Errorf("Start called %d times, want 4", got)
	}
}

func TestManager_ReconnectAbortsOnAuthError(t *testing.T) {
	conn := newFakeConn(nil, &model.AuthenticationError{Reason: "token revoked"})
	m := newTestManager(conn, ManagerConfig{ReconnectInterval: 5 * time.Millisecond})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.fireClose(errors.New("peer reset"))

	waitForState(t, m, StateDisconnected)
	if got := conn.startCount(); got != 2 {
		t.Errorf("Start called %d times, want 2 (no retry after auth failure)", got)
	}
}

func TestManager_DisconnectStopsReconnect(t *testing.T) {
	conn := newFakeConn(nil, errors.New("down"), errors.New("down"), errors.New("down"))
	m := newTestManager(conn, ManagerConfig{ReconnectInterval: 20 * time.Millisecond})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.fireClose(errors.New("peer reset"))
	waitForState(t, m, StateReconnecting)

	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want %s", m.State(), StateDisconnected)
	}

	// The loop must observe the stop signal rather than keep dialing.
	before := conn.startCount()
	time.Sleep(100 * time.Millisecond)
	if after := conn.startCount(); after > before+1 {
		t.Errorf("reconnect loop still dialing after Disconnect: %d -> %d", before, after)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state drifted to %s after Disconnect", m.State())
	}
}

func TestManager_InvokeRequiresConnection(t *testing.T) {
	conn := newFakeConn()
	m := newTestManager(conn, ManagerConfig{})

	err := m.Invoke(context.Background(), MethodJoinGroup, "conv-1")
	if !errors.Is(err, model.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := m.Invoke(context.Background(), MethodJoinGroup, "conv-1"); err != nil {
		t.Errorf("Invoke while connected: %v", err)
	}
}

func TestManager_InvokeWrapsTransportError(t *testing.T) {
	conn := newFakeConn()
	conn.invokeErr = errors.New("write timeout")
	m := newTestManager(conn, ManagerConfig{})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	err := m.Invoke(context.Background(), MethodJoinGroup, "conv-1")
	var tErr *model.TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if tErr.Op != MethodJoinGroup {
		t.Errorf("Op = %q, want %q", tErr.Op, MethodJoinGroup)
	}
}

func TestManager_InvokeAppliesDefaultTimeout(t *testing.T) {
	conn := newFakeConn()
	m := newTestManager(conn, ManagerConfig{InvokeTimeout: 10 * time.Second})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Background context gets the configured bound.
	if err := m.Invoke(context.Background(), MethodJoinGroup, "conv-1"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	// A caller-supplied deadline is left alone.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := m.Invoke(ctx, MethodJoinGroup, "conv-2"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	conn.mu.Lock()
	deadlines := append([]bool{}, conn.hadDeadlines...)
	conn.mu.Unlock()
	if len(deadlines) != 2 || !deadlines[0] || !deadlines[1] {
		t.Errorf("deadlines observed = %v, want both bounded", deadlines)
	}
}

func TestManager_DisconnectedSignal(t *testing.T) {
	conn := newFakeConn()
	m := newTestManager(conn, ManagerConfig{ReconnectInterval: 10 * time.Millisecond})

	lost := make(chan error, 1)
	m.OnDisconnected(func(err error) { lost <- err })

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	cause := errors.New("peer reset")
	conn.fireClose(cause)

	select {
	case err := <-lost:
		if err != cause {
			t.Errorf("err = %v, want the close cause", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnected signal not fired")
	}

	waitForState(t, m, StateConnected)

	// Explicit Disconnect must not fire the signal.
	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	select {
	case err := <-lost:
		t.Errorf("signal fired on explicit Disconnect: %v", err)
	default:
	}
}

func TestManager_MissingCredentialFailsConnect(t *testing.T) {
	conn := newFakeConn()
	m := NewManager(conn, NewStaticTokenProvider(""), ManagerConfig{}, logger.NewNop())

	err := m.Connect(context.Background())

	var authErr *model.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthenticationError", err)
	}
	if got := conn.startCount(); got != 0 {
		t.Errorf("Start called %d times without a credential", got)
	}
}
