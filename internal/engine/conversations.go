package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/rest"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
)

// ListSynchronizer maintains the paginated, filterable conversation list and
// applies live updates from push events without re-fetching.
type ListSynchronizer struct {
	api rest.Client
	log *logger.Logger

	mu       sync.Mutex
	items    []model.ConversationSummary
	filter   model.ConversationFilter
	page     int
	hasMore  bool
	activeID string
}

// NewListSynchronizer creates a conversation list synchronizer.
func NewListSynchronizer(api rest.Client, pageSize int, log *logger.Logger) *ListSynchronizer {
	return &ListSynchronizer{
		api:    api,
		log:    log.WithComponent("conversations"),
		filter: model.ConversationFilter{PageSize: pageSize},
		page:   0,
	}
}

// Conversations returns a copy of the held list.
func (s *ListSynchronizer) Conversations() []model.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ConversationSummary, len(s.items))
	copy(out, s.items)
	return out
}

// HasMore reports whether another page is available.
func (s *ListSynchronizer) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// SetActive records which conversation is selected so unread increments are
// suppressed for it.
func (s *ListSynchronizer) SetActive(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = conversationID
}

// LoadPage fetches a page of summaries. Page 1 replaces the held list, later
// pages append (deduplicated by id). On failure the prior list is preserved.
func (s *ListSynchronizer) LoadPage(ctx context.Context, filter model.ConversationFilter, page int) error {
	if page < 1 {
		page = 1
	}
	if filter.PageSize <= 0 {
		s.mu.Lock()
		filter.PageSize = s.filter.PageSize
		s.mu.Unlock()
	}

	resp, err := s.api.ListConversations(ctx, filter, page)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.filter = filter
	s.page = page
	s.hasMore = resp.HasMore

	if page == 1 {
		s.items = append(s.items[:0], resp.Conversations...)
		return nil
	}

	seen := make(map[string]struct{}, len(s.items))
	for _, c := range s.items {
		seen[c.ID] = struct{}{}
	}
	for _, c := range resp.Conversations {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		s.items = append(s.items, c)
	}
	return nil
}

// LoadMore fetches the next page with the current filter.
func (s *ListSynchronizer) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	filter, page := s.filter, s.page
	s.mu.Unlock()
	return s.LoadPage(ctx, filter, page+1)
}

// Search resets to page 1 with a search term.
func (s *ListSynchronizer) Search(ctx context.Context, term string) error {
	s.mu.Lock()
	filter := s.filter
	s.mu.Unlock()
	filter.Search = term
	return s.LoadPage(ctx, filter, 1)
}

// FilterByStatus resets to page 1 filtered to a lifecycle status.
func (s *ListSynchronizer) FilterByStatus(ctx context.Context, status model.ConversationStatus) error {
	s.mu.Lock()
	filter := s.filter
	s.mu.Unlock()
	filter.Status = status
	return s.LoadPage(ctx, filter, 1)
}

// ApplyStatusChange updates the matching conversation in place. Unknown
// conversations are ignored; they appear on the next full reload.
func (s *ListSynchronizer) ApplyStatusChange(conversationID string, status model.ConversationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == conversationID {
			s.items[i].Status = status
			return
		}
	}
}

// ApplyNewMessagePreview updates the preview fields and bumps the unread
// counter, unless the conversation is the active selection, whose unread
// count stays at zero.
func (s *ListSynchronizer) ApplyNewMessagePreview(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID != msg.ConversationID {
			continue
		}
		s.items[i].LastMessagePreview = msg.Content
		s.items[i].LastMessageAt = msg.SentAt
		if msg.ConversationID != s.activeID {
			s.items[i].UnreadCount++
		}
		return
	}

	s.log.Debug("preview for unknown conversation",
		zap.String("conversation_id", msg.ConversationID))
}

// ApplyNewConversation inserts a newly created conversation at the top of
// the list, deduplicated by id.
func (s *ListSynchronizer) ApplyNewConversation(summary model.ConversationSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == summary.ID {
			return
		}
	}
	s.items = append([]model.ConversationSummary{summary}, s.items...)
}

// MarkAsRead zeroes the unread counter locally. Telling the server is the
// caller's responsibility.
func (s *ListSynchronizer) MarkAsRead(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == conversationID {
			s.items[i].UnreadCount = 0
			return
		}
	}
}
