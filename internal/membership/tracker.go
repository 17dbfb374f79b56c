// Package membership tracks which transport topics the client should be
// joined to, independent of connectivity.
package membership

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/transport"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/metrics"
)

// Invoker issues method calls on the push transport.
type Invoker interface {
	Invoke(ctx context.Context, method string, args ...any) error
	State() transport.State
}

// Tracker keeps the topic membership set. The set is the source of truth for
// what should be joined; ReplayAll reconciles transport state to match it
// after a reconnect.
type Tracker struct {
	inv Invoker
	log *logger.Logger

	mu     sync.Mutex
	topics map[string]struct{}
}

// NewTracker creates a membership tracker over the given transport.
func NewTracker(inv Invoker, log *logger.Logger) *Tracker {
	return &Tracker{
		inv:    inv,
		log:    log.WithComponent("membership"),
		topics: make(map[string]struct{}),
	}
}

// Join adds the topic to the membership set and issues a join on the
// transport. Joining an already-joined topic is a no-op. While disconnected
// the topic stays tracked for replay and a JoinError wrapping ErrNotConnected
// is returned so the caller knows the join is deferred.
func (t *Tracker) Join(ctx context.Context, topic string) error {
	t.mu.Lock()
	if _, ok := t.topics[topic]; ok {
		t.mu.Unlock()
		return nil
	}
	t.topics[topic] = struct{}{}
	t.mu.Unlock()

	if t.inv.State() != transport.StateConnected {
		metrics.TopicOperations.WithLabelValues("join", "deferred").Inc()
		return &model.JoinError{Topic: topic, Err: model.ErrNotConnected}
	}

	if err := t.inv.Invoke(ctx, transport.MethodJoinGroup, topic); err != nil {
		t.mu.Lock()
		delete(t.topics, topic)
		t.mu.Unlock()
		metrics.TopicOperations.WithLabelValues("join", "failure").Inc()
		return &model.JoinError{Topic: topic, Err: err}
	}

	metrics.TopicOperations.WithLabelValues("join", "success").Inc()
	return nil
}

// Leave removes the topic from the membership set and issues a best-effort
// leave. Leaving a topic that is not a member is a no-op, and transport
// errors are swallowed: a failed leave must never block subsequent joins.
func (t *Tracker) Leave(ctx context.Context, topic string) {
	t.mu.Lock()
	if _, ok := t.topics[topic]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.topics, topic)
	t.mu.Unlock()

	if t.inv.State() != transport.StateConnected {
		return
	}

	if err := t.inv.Invoke(ctx, transport.MethodLeaveGroup, topic); err != nil {
		metrics.TopicOperations.WithLabelValues("leave", "failure").Inc()
		t.log.Warn("leave failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	metrics.TopicOperations.WithLabelValues("leave", "success").Inc()
}

// IsMember reports whether the topic is currently tracked.
func (t *Tracker) IsMember(topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.topics[topic]
	return ok
}

// Topics returns the tracked topics in sorted order.
func (t *Tracker) Topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.topics))
	for topic := range t.topics {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// ReplayAll re-issues a join for every tracked topic. Individual failures are
// logged and do not abort the replay. Called from the manager's connected
// signal after every (re)connect.
func (t *Tracker) ReplayAll(ctx context.Context) {
	for _, topic := range t.Topics() {
		if err := t.inv.Invoke(ctx, transport.MethodJoinGroup, topic); err != nil {
			metrics.TopicOperations.WithLabelValues("replay", "failure").Inc()
			t.log.Warn("replay join failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		metrics.TopicOperations.WithLabelValues("replay", "success").Inc()
	}
}

// Clear drops all tracked topics. Used on explicit disconnect.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.topics = make(map[string]struct{})
}
