// Package engine implements the real-time conversation synchronization core:
// message reconciliation, conversation list sync, and selection coordination.
package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/metrics"
)

// PreviewApplier receives new-message notifications for the list view.
type PreviewApplier interface {
	ApplyNewMessagePreview(msg model.Message)
}

// Reconciler merges messages from REST page loads, push events, and local
// optimistic sends into one ordered, deduplicated list for the active
// conversation. All mutation goes through its methods; callers never touch
// the list directly.
type Reconciler struct {
	previews PreviewApplier
	log      *logger.Logger

	mu       sync.Mutex
	active   string
	messages []model.Message
	ids      map[string]struct{}
}

// NewReconciler creates a message reconciler.
func NewReconciler(previews PreviewApplier, log *logger.Logger) *Reconciler {
	return &Reconciler{
		previews: previews,
		log:      log.WithComponent("reconciler"),
		ids:      make(map[string]struct{}),
	}
}

// Active returns the conversation whose messages are materialized.
func (r *Reconciler) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Messages returns a copy of the canonical ordered message list.
func (r *Reconciler) Messages() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Seed replaces the known message set for a conversation with a freshly
// fetched page, deduplicated by id and sorted by send time.
func (r *Reconciler) Seed(conversationID string, msgs []model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = conversationID
	r.messages = r.messages[:0]
	r.ids = make(map[string]struct{}, len(msgs))

	for _, msg := range msgs {
		if _, dup := r.ids[msg.ID]; dup {
			metrics.DuplicatesDropped.Inc()
			continue
		}
		msg.SentAt = msg.SentAt.UTC()
		r.ids[msg.ID] = struct{}{}
		r.messages = append(r.messages, msg)
	}
	r.sortLocked()
	metrics.MessagesIngested.WithLabelValues("seed").Add(float64(len(r.messages)))
}

// PrependPage merges an older page in front of the current list. Pages for a
// conversation that is no longer active are discarded.
func (r *Reconciler) PrependPage(conversationID string, msgs []model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conversationID != r.active {
		return
	}

	older := make([]model.Message, 0, len(msgs))
	for _, msg := range msgs {
		if _, dup := r.ids[msg.ID]; dup {
			metrics.DuplicatesDropped.Inc()
			continue
		}
		msg.SentAt = msg.SentAt.UTC()
		r.ids[msg.ID] = struct{}{}
		older = append(older, msg)
	}

	r.messages = append(older, r.messages...)
	r.sortLocked()
	metrics.MessagesIngested.WithLabelValues("page").Add(float64(len(older)))
}

// Clear drops all message state. Used when the selection is cleared.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = ""
	r.messages = nil
	r.ids = make(map[string]struct{})
}

// IngestLive inserts a message arriving from the push transport. Duplicates
// by id are dropped. Messages for non-active conversations are not
// materialized; only the list preview is notified.
func (r *Reconciler) IngestLive(msg model.Message) {
	msg.SentAt = msg.SentAt.UTC()

	r.mu.Lock()
	if msg.ConversationID != r.active {
		r.mu.Unlock()
		r.notifyPreview(msg)
		return
	}

	if _, dup := r.ids[msg.ID]; dup {
		r.warnOnConflictLocked(msg)
		metrics.DuplicatesDropped.Inc()
		r.mu.Unlock()
		return
	}

	// A live echo of our own optimistic send may beat the REST response.
	if idx := r.matchPendingLocked(msg); idx >= 0 {
		r.replaceLocked(idx, msg)
		metrics.OptimisticReconciled.WithLabelValues("live_first").Inc()
		r.mu.Unlock()
		r.notifyPreview(msg)
		return
	}

	r.insertLocked(msg)
	metrics.MessagesIngested.WithLabelValues("live").Inc()
	r.mu.Unlock()

	r.notifyPreview(msg)
}

// IngestOptimistic appends a locally sent message immediately, tagged with a
// temporary id and a correlation token for deterministic reconciliation.
func (r *Reconciler) IngestOptimistic(content, attachmentURL string) (model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == "" {
		return model.Message{}, model.ErrNoSelection
	}

	msg := model.Message{
		ID:             "local-" + uuid.NewString(),
		ConversationID: r.active,
		Content:        content,
		Sender:         model.SenderAgent,
		AttachmentURL:  attachmentURL,
		SentAt:         time.Now().UTC(),
		CorrelationID:  uuid.NewString(),
		Pending:        true,
	}

	r.ids[msg.ID] = struct{}{}
	r.insertLocked(msg)
	metrics.MessagesIngested.WithLabelValues("optimistic").Inc()
	return msg, nil
}

// ReconcileOptimistic replaces the pending entry matching the server echo of
// a send. If a live event for the same message already arrived, the pending
// entry was consumed then and the echo is dropped as a duplicate.
func (r *Reconciler) ReconcileOptimistic(server model.Message) {
	server.SentAt = server.SentAt.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	if server.ConversationID != r.active {
		return
	}

	if _, dup := r.ids[server.ID]; dup {
		if idx := r.matchPendingLocked(server); idx >= 0 {
			r.removeLocked(idx)
		}
		metrics.OptimisticReconciled.WithLabelValues("duplicate").Inc()
		return
	}

	if idx := r.matchPendingLocked(server); idx >= 0 {
		r.replaceLocked(idx, server)
		metrics.OptimisticReconciled.WithLabelValues("confirmed").Inc()
		return
	}

	r.insertLocked(server)
	metrics.MessagesIngested.WithLabelValues("echo").Inc()
}

// MarkFailed flags a pending entry whose send was rejected. The entry is
// retained so the console can show the failure.
func (r *Reconciler) MarkFailed(localID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.messages {
		if r.messages[i].ID == localID {
			r.messages[i].Pending = false
			r.messages[i].Failed = true
			return
		}
	}
}

// matchPendingLocked finds the pending entry corresponding to a server
// message: by correlation token when present, by content equality otherwise.
// Pending entries are always agent sends, so only agent messages are eligible
// for the content fallback; a client message with identical text must never
// consume one.
func (r *Reconciler) matchPendingLocked(server model.Message) int {
	if server.CorrelationID != "" {
		for i := range r.messages {
			if r.messages[i].Pending && r.messages[i].CorrelationID == server.CorrelationID {
				return i
			}
		}
	}
	if server.Sender != model.SenderAgent {
		return -1
	}
	for i := range r.messages {
		if r.messages[i].Pending && r.messages[i].Content == server.Content {
			return i
		}
	}
	return -1
}

func (r *Reconciler) insertLocked(msg model.Message) {
	i := len(r.messages)
	for i > 0 && r.messages[i-1].SentAt.After(msg.SentAt) {
		i--
	}
	r.messages = append(r.messages, model.Message{})
	copy(r.messages[i+1:], r.messages[i:])
	r.messages[i] = msg
	r.ids[msg.ID] = struct{}{}
}

func (r *Reconciler) replaceLocked(idx int, server model.Message) {
	delete(r.ids, r.messages[idx].ID)
	if _, dup := r.ids[server.ID]; dup {
		r.messages = append(r.messages[:idx], r.messages[idx+1:]...)
		return
	}
	r.messages[idx] = server
	r.ids[server.ID] = struct{}{}
	r.sortLocked()
}

func (r *Reconciler) removeLocked(idx int) {
	delete(r.ids, r.messages[idx].ID)
	r.messages = append(r.messages[:idx], r.messages[idx+1:]...)
}

func (r *Reconciler) sortLocked() {
	sort.SliceStable(r.messages, func(i, j int) bool {
		return r.messages[i].SentAt.Before(r.messages[j].SentAt)
	})
}

// warnOnConflictLocked logs the data-integrity anomaly of an id collision
// with divergent content. The later arrival is discarded, never surfaced.
func (r *Reconciler) warnOnConflictLocked(msg model.Message) {
	for i := range r.messages {
		if r.messages[i].ID == msg.ID {
			if r.messages[i].Content != msg.Content {
				r.log.Warn("message id collision with divergent content",
					zap.String("message_id", msg.ID),
					zap.String("conversation_id", msg.ConversationID),
				)
			}
			return
		}
	}
}

func (r *Reconciler) notifyPreview(msg model.Message) {
	if r.previews != nil {
		r.previews.ApplyNewMessagePreview(msg)
	}
}
