package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/bus"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/membership"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/rest"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/transport"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
)

// Engine wires the transport, dispatch bus, membership tracker, message
// reconciler, list synchronizer, and selection coordinator into the outward
// API consumed by the agent console. It is an explicitly constructed
// instance with Start/Close lifecycle.
type Engine struct {
	transport   *transport.Manager
	bus         *bus.Bus
	topics      *membership.Tracker
	recon       *Reconciler
	list        *ListSynchronizer
	session     *Coordinator
	api         rest.Client
	queueTopics []string
	log         *logger.Logger

	unsubs []func()
}

// New assembles the sync engine from its components.
func New(
	mgr *transport.Manager,
	b *bus.Bus,
	topics *membership.Tracker,
	recon *Reconciler,
	list *ListSynchronizer,
	session *Coordinator,
	api rest.Client,
	queueTopics []string,
	log *logger.Logger,
) *Engine {
	return &Engine{
		transport:   mgr,
		bus:         b,
		topics:      topics,
		recon:       recon,
		list:        list,
		session:     session,
		api:         api,
		queueTopics: queueTopics,
		log:         log.WithComponent("engine"),
	}
}

// Start wires event routing, connects the transport, joins the configured
// queue topics, and loads the first conversation page.
func (e *Engine) Start(ctx context.Context) error {
	e.wireTransportEvents()
	e.wireBusConsumers()

	e.transport.OnConnected(func() {
		e.bus.Publish(model.EventConnected, nil)
		e.topics.ReplayAll(context.Background())
	})
	e.transport.OnDisconnected(func(err error) {
		e.bus.Publish(model.EventDisconnected, err)
	})

	if err := e.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connect transport: %w", err)
	}

	for _, topic := range e.queueTopics {
		if err := e.topics.Join(ctx, topic); err != nil {
			e.log.Warn("join queue topic", zap.String("topic", topic), zap.Error(err))
		}
	}

	if err := e.list.LoadPage(ctx, model.ConversationFilter{}, 1); err != nil {
		return fmt.Errorf("initial conversation load: %w", err)
	}
	return nil
}

// Close unsubscribes consumers, clears membership, and tears down the
// transport connection.
func (e *Engine) Close() error {
	for _, unsub := range e.unsubs {
		unsub()
	}
	e.unsubs = nil
	e.topics.Clear()
	return e.transport.Disconnect()
}

// wireTransportEvents decodes raw transport payloads into typed events on
// the dispatch bus, closing the stringly-typed routing at this edge. The
// registered set is exactly model.ServerEvents.
func (e *Engine) wireTransportEvents() {
	for _, eventType := range model.ServerEvents() {
		eventType := eventType
		e.transport.On(eventType, func(payload json.RawMessage) {
			e.dispatchServerEvent(eventType, payload)
		})
	}
}

func (e *Engine) dispatchServerEvent(eventType model.EventType, payload json.RawMessage) {
	var value any
	switch eventType {
	case model.EventReceiveMessage:
		var msg model.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			e.log.Warn("malformed message event", zap.Error(err))
			return
		}
		value = msg
	case model.EventReceiveNewConversation:
		var summary model.ConversationSummary
		if err := json.Unmarshal(payload, &summary); err != nil {
			e.log.Warn("malformed conversation event", zap.Error(err))
			return
		}
		value = summary
	case model.EventConversationStatusChanged:
		var change model.StatusChange
		if err := json.Unmarshal(payload, &change); err != nil {
			e.log.Warn("malformed status event", zap.Error(err))
			return
		}
		value = change
	default:
		return
	}
	e.bus.Publish(eventType, value)
}

func (e *Engine) wireBusConsumers() {
	e.unsubs = append(e.unsubs,
		e.bus.Subscribe(model.EventReceiveMessage, func(payload any) {
			if msg, ok := payload.(model.Message); ok {
				e.recon.IngestLive(msg)
			}
		}),
		e.bus.Subscribe(model.EventReceiveNewConversation, func(payload any) {
			if summary, ok := payload.(model.ConversationSummary); ok {
				e.list.ApplyNewConversation(summary)
			}
		}),
		e.bus.Subscribe(model.EventConversationStatusChanged, func(payload any) {
			if change, ok := payload.(model.StatusChange); ok {
				e.list.ApplyStatusChange(change.ConversationID, change.Status)
			}
		}),
	)
}

// SelectConversation makes the given conversation active; empty clears.
func (e *Engine) SelectConversation(ctx context.Context, id string) error {
	return e.session.Select(ctx, id)
}

// SendMessage appends the content optimistically, posts it, and reconciles
// the server echo. On failure the optimistic entry is retained, flagged
// failed, so the console can surface the unconfirmed send.
func (e *Engine) SendMessage(ctx context.Context, content, attachmentURL string) (model.Message, error) {
	local, err := e.recon.IngestOptimistic(content, attachmentURL)
	if err != nil {
		return model.Message{}, err
	}

	server, err := e.api.PostMessage(ctx, local.ConversationID, &model.SendMessageRequest{
		Content:       content,
		AttachmentURL: attachmentURL,
		CorrelationID: local.CorrelationID,
	})
	if err != nil {
		e.recon.MarkFailed(local.ID)
		return local, err
	}

	e.recon.ReconcileOptimistic(*server)
	e.list.ApplyNewMessagePreview(*server)
	return *server, nil
}

// LoadMoreMessages merges an older message page into the active conversation.
func (e *Engine) LoadMoreMessages(ctx context.Context) error {
	return e.session.LoadOlderMessages(ctx)
}

// LoadMoreConversations fetches the next conversation page.
func (e *Engine) LoadMoreConversations(ctx context.Context) error {
	return e.list.LoadMore(ctx)
}

// SearchConversations resets the list to page 1 with a search term.
func (e *Engine) SearchConversations(ctx context.Context, term string) error {
	return e.list.Search(ctx, term)
}

// FilterByStatus resets the list to page 1 filtered to a status.
func (e *Engine) FilterByStatus(ctx context.Context, status model.ConversationStatus) error {
	return e.list.FilterByStatus(ctx, status)
}

// Resolve marks the active conversation resolved.
func (e *Engine) Resolve(ctx context.Context) error {
	id := e.session.ActiveID()
	if id == "" {
		return model.ErrNoSelection
	}
	if err := e.api.ResolveConversation(ctx, id); err != nil {
		return err
	}
	e.list.ApplyStatusChange(id, model.StatusResolved)
	return nil
}

// Transfer hands the active conversation to another agent or queue.
func (e *Engine) Transfer(ctx context.Context, target string) error {
	id := e.session.ActiveID()
	if id == "" {
		return model.ErrNoSelection
	}
	return e.api.TransferConversation(ctx, id, target)
}

// Conversations returns the current conversation list.
func (e *Engine) Conversations() []model.ConversationSummary {
	return e.list.Conversations()
}

// Messages returns the active conversation's canonical message list.
func (e *Engine) Messages() []model.Message {
	return e.recon.Messages()
}

// ActiveConversation returns the selected conversation id, empty when none.
func (e *Engine) ActiveConversation() string {
	return e.session.ActiveID()
}

// ConnectionState returns the transport state for the UI indicator.
func (e *Engine) ConnectionState() transport.State {
	return e.transport.State()
}
