package engine

import (
	"context"
	"sync"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/transport"
)

// fakeAPI implements rest.Client with per-call hooks.
type fakeAPI struct {
	listFn     func(ctx context.Context, filter model.ConversationFilter, page int) (*model.ListConversationsResponse, error)
	detailsFn  func(ctx context.Context, id string) (*model.ConversationDetails, error)
	messagesFn func(ctx context.Context, conversationID string, page int) (*model.ListMessagesResponse, error)
	postFn     func(ctx context.Context, conversationID string, req *model.SendMessageRequest) (*model.Message, error)
	resolveErr error
	transfers  []string
}

func (f *fakeAPI) ListConversations(ctx context.Context, filter model.ConversationFilter, page int) (*model.ListConversationsResponse, error) {
	if f.listFn == nil {
		return &model.ListConversationsResponse{}, nil
	}
	return f.listFn(ctx, filter, page)
}

func (f *fakeAPI) GetConversationDetails(ctx context.Context, id string) (*model.ConversationDetails, error) {
	if f.detailsFn == nil {
		return &model.ConversationDetails{Conversation: model.ConversationSummary{ID: id}}, nil
	}
	return f.detailsFn(ctx, id)
}

func (f *fakeAPI) ListMessages(ctx context.Context, conversationID string, page int) (*model.ListMessagesResponse, error) {
	if f.messagesFn == nil {
		return &model.ListMessagesResponse{}, nil
	}
	return f.messagesFn(ctx, conversationID, page)
}

func (f *fakeAPI) PostMessage(ctx context.Context, conversationID string, req *model.SendMessageRequest) (*model.Message, error) {
	if f.postFn == nil {
		return &model.Message{ID: "srv", ConversationID: conversationID, Content: req.Content}, nil
	}
	return f.postFn(ctx, conversationID, req)
}

func (f *fakeAPI) ResolveConversation(ctx context.Context, id string) error {
	return f.resolveErr
}

func (f *fakeAPI) TransferConversation(ctx context.Context, id, target string) error {
	f.transfers = append(f.transfers, id+"->"+target)
	return nil
}

// previewRecorder captures preview notifications from the reconciler.
type previewRecorder struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (p *previewRecorder) ApplyNewMessagePreview(msg model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *previewRecorder) recorded() []model.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Message, len(p.msgs))
	copy(out, p.msgs)
	return out
}

// fakeInvoker implements membership.Invoker, recording issued calls.
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

func (f *fakeInvoker) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}
