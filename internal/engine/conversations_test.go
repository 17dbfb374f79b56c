package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
)

func summary(id string) model.ConversationSummary {
	return model.ConversationSummary{
		ID:          id,
		ContactName: "Contact " + id,
		Status:      model.StatusInProgress,
	}
}

func TestListSynchronizer_PageOneReplacesLaterPagesAppend(t *testing.T) {
	pages := map[int][]model.ConversationSummary{
		1: {summary("c1"), summary("c2")},
		2: {summary("c2"), summary("c3")},
	}
	api := &fakeAPI{
		listFn: func(ctx context.Context, filter model.ConversationFilter, page int) (*model.ListConversationsResponse, error) {
			return &model.ListConversationsResponse{Conversations: pages[page], HasMore: page == 1}, nil
		},
	}
	s := NewListSynchronizer(api, 20, logger.NewNop())
	ctx := context.Background()

	if err := s.LoadPage(ctx, model.ConversationFilter{}, 1); err != nil {
		t.Fatalf("LoadPage(1): %v", err)
	}
	if err := s.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}

	got := s.Conversations()
	want := []string{"c1", "c2", "c3"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}

	// Page 1 again replaces everything.
	if err := s.LoadPage(ctx, model.ConversationFilter{}, 1); err != nil {
		t.Fatalf("LoadPage(1) again: %v", err)
	}
	if got := s.Conversations(); len(got) != 2 {
		t.Errorf("after reload len = %d, want 2", len(got))
	}
}

func TestListSynchronizer_FetchErrorPreservesList(t *testing.T) {
	calls := 0
	api := &fakeAPI{
		listFn: func(ctx context.Context, filter model.ConversationFilter, page int) (*model.ListConversationsResponse, error) {
			calls++
			if calls > 1 {
				return nil, &model.FetchError{Op: "list conversations", Err: errors.New("boom")}
			}
			return &model.ListConversationsResponse{Conversations: []model.ConversationSummary{summary("c1")}}, nil
		},
	}
	s := NewListSynchronizer(api, 20, logger.NewNop())
	ctx := context.Background()

	if err := s.LoadPage(ctx, model.ConversationFilter{}, 1); err != nil {
		t.Fatalf("LoadPage: %v", err)
	}

	err := s.LoadMore(ctx)
	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if got := s.Conversations(); len(got) != 1 || got[0].ID != "c1" {
		t.Errorf("list after failure = %+v, want [c1] intact", got)
	}
}

func TestListSynchronizer_UnreadSuppression(t *testing.T) {
	s := NewListSynchronizer(&fakeAPI{}, 20, logger.NewNop())
	s.ApplyNewConversation(summary("c1"))
	s.ApplyNewConversation(summary("c2"))
	s.SetActive("c1")

	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.ApplyNewMessagePreview(model.Message{ID: "a", ConversationID: "c1", Content: "active", SentAt: at})
		s.ApplyNewMessagePreview(model.Message{ID: "b", ConversationID: "c2", Content: "background", SentAt: at})
	}

	for _, c := range s.Conversations() {
		switch c.ID {
		case "c1":
			if c.UnreadCount != 0 {
				t.Errorf("active conversation unread = %d, want 0", c.UnreadCount)
			}
			if c.LastMessagePreview != "active" {
				t.Errorf("active preview = %q, want updated", c.LastMessagePreview)
			}
		case "c2":
			if c.UnreadCount != 3 {
				t.Errorf("background unread = %d, want 3", c.UnreadCount)
			}
		}
	}
}

func TestListSynchronizer_ApplyStatusChange(t *testing.T) {
	s := NewListSynchronizer(&fakeAPI{}, 20, logger.NewNop())
	s.ApplyNewConversation(summary("c1"))

	s.ApplyStatusChange("c1", model.StatusResolved)
	s.ApplyStatusChange("missing", model.StatusQueued) // no-op

	got := s.Conversations()
	if got[0].Status != model.StatusResolved {
		t.Errorf("status = %q, want resolved", got[0].Status)
	}
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestListSynchronizer_ApplyNewConversationDedupsAndPrepends(t *testing.T) {
	s := NewListSynchronizer(&fakeAPI{}, 20, logger.NewNop())
	s.ApplyNewConversation(summary("c1"))
	s.ApplyNewConversation(summary("c2"))
	s.ApplyNewConversation(summary("c1"))

	got := s.Conversations()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "c2" {
		t.Errorf("got[0].ID = %q, want newest first", got[0].ID)
	}
}

func TestListSynchronizer_MarkAsRead(t *testing.T) {
	s := NewListSynchronizer(&fakeAPI{}, 20, logger.NewNop())
	s.ApplyNewConversation(summary("c1"))
	s.ApplyNewMessagePreview(model.Message{ID: "m", ConversationID: "c1", Content: "hi"})

	s.MarkAsRead("c1")

	if got := s.Conversations(); got[0].UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", got[0].UnreadCount)
	}
}

func TestListSynchronizer_SearchResetsToPageOne(t *testing.T) {
	var gotFilter model.ConversationFilter
	var gotPage int
	api := &fakeAPI{
		listFn: func(ctx context.Context, filter model.ConversationFilter, page int) (*model.ListConversationsResponse, error) {
			gotFilter, gotPage = filter, page
			return &model.ListConversationsResponse{}, nil
		},
	}
	s := NewListSynchronizer(api, 20, logger.NewNop())

	if err := s.Search(context.Background(), "maria"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotPage != 1 || gotFilter.Search != "maria" {
		t.Errorf("search issued page=%d filter=%+v, want page 1 with term", gotPage, gotFilter)
	}

	if err := s.FilterByStatus(context.Background(), model.StatusQueued); err != nil {
		t.Fatalf("FilterByStatus: %v", err)
	}
	if gotPage != 1 || gotFilter.Status != model.StatusQueued {
		t.Errorf("filter issued page=%d filter=%+v, want page 1 with status", gotPage, gotFilter)
	}
}
