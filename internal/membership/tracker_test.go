package membership

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/transport"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
)

type fakeInvoker struct {
	mu    sync.Mutex
	state transport.State
	calls []string
	err   error
}

func (f *fakeInvoker) Invoke(ctx context.Context, method string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	topic, _ := args[0].(string)
	f.calls = append(f.calls, method+":"+topic)
	return f.err
}

func (f *fakeInvoker) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeInvoker) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeInvoker) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func TestTracker_JoinIdempotent(t *testing.T) {
	inv := &fakeInvoker{state: transport.StateConnected}
	tr := NewTracker(inv, logger.NewNop())
	ctx := context.Background()

	if err := tr.Join(ctx, "conv-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := tr.Join(ctx, "conv-1"); err != nil {
		t.Fatalf("second Join: %v", err)
	}

	if calls := inv.recorded(); len(calls) != 1 {
		t.Errorf("join calls = %v, want exactly one", calls)
	}
}

func TestTracker_JoinDeferredWhileDisconnected(t *testing.T) {
	inv := &fakeInvoker{state: transport.StateDisconnected}
	tr := NewTracker(inv, logger.NewNop())

	err := tr.Join(context.Background(), "conv-1")

	var joinErr *model.JoinError
	if !errors.As(err, &joinErr) || !errors.Is(err, model.ErrNotConnected) {
		t.Fatalf("err = %v, want JoinError wrapping ErrNotConnected", err)
	}
	if !tr.IsMember("conv-1") {
		t.Error("deferred topic not tracked for replay")
	}
	if calls := inv.recorded(); len(calls) != 0 {
		t.Errorf("calls while disconnected = %v, want none", calls)
	}
}

func TestTracker_JoinRejectedUntracks(t *testing.T) {
	inv := &fakeInvoker{state: transport.StateConnected, err: errors.New("hub refused")}
	tr := NewTracker(inv, logger.NewNop())

	err := tr.Join(context.Background(), "conv-1")

	var joinErr *model.JoinError
	if !errors.As(err, &joinErr) {
		t.Fatalf("err = %v, want JoinError", err)
	}
	if tr.IsMember("conv-1") {
		t.Error("rejected topic still tracked")
	}
}

func TestTracker_LeaveBestEffort(t *testing.T) {
	inv := &fakeInvoker{state: transport.StateConnected}
	tr := NewTracker(inv, logger.NewNop())
	ctx := context.Background()

	tr.Leave(ctx, "never-joined") // no-op

	if err := tr.Join(ctx, "conv-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	inv.err = errors.New("leave failed")
	tr.Leave(ctx, "conv-1") // swallowed

	if tr.IsMember("conv-1") {
		t.Error("topic still tracked after leave")
	}

	// A failed leave must not block a subsequent join.
	inv.err = nil
	if err := tr.Join(ctx, "conv-1"); err != nil {
		t.Errorf("join after failed leave: %v", err)
	}
}

func TestTracker_ReplayAllAfterReconnect(t *testing.T) {
	inv := &fakeInvoker{state: transport.StateConnected}
	tr := NewTracker(inv, logger.NewNop())
	ctx := context.Background()

	for _, topic := range []string{"A", "B"} {
		if err := tr.Join(ctx, topic); err != nil {
			t.Fatalf("Join(%s): %v", topic, err)
		}
	}
	if calls := inv.recorded(); len(calls) != 2 {
		t.Fatalf("calls while connected = %v, want two", calls)
	}

	// Simulated reconnect: replay reconciles transport state to the set.
	inv.reset()
	tr.ReplayAll(ctx)

	want := []string{
		transport.MethodJoinGroup + ":A",
		transport.MethodJoinGroup + ":B",
	}
	got := inv.recorded()
	if len(got) != len(want) {
		t.Fatalf("replay calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("replay[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTracker_ReplayContinuesOnError(t *testing.T) {
	inv := &fakeInvoker{state: transport.StateConnected}
	tr := NewTracker(inv, logger.NewNop())
	ctx := context.Background()

	tr.Join(ctx, "A")
	tr.Join(ctx, "B")

	inv.reset()
	inv.err = errors.New("join failed")
	tr.ReplayAll(ctx)

	if calls := inv.recorded(); len(calls) != 2 {
		t.Errorf("replay calls = %v, want both attempted despite errors", calls)
	}
}

func TestTracker_Clear(t *testing.T) {
	inv := &fakeInvoker{state: transport.StateConnected}
	tr := NewTracker(inv, logger.NewNop())

	tr.Join(context.Background(), "A")
	tr.Clear()

	if got := tr.Topics(); len(got) != 0 {
		t.Errorf("topics after clear = %v, want none", got)
	}
}
