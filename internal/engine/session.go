package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/membership"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/rest"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
)

// SelectionState is the coordinator's state machine over conversations.
type SelectionState string

const (
	SelectionNone    SelectionState = "no_selection"
	SelectionLoading SelectionState = "loading"
	SelectionLoaded  SelectionState = "loaded"
)

// Coordinator governs which conversation is active. Topic membership follows
// the selection, and at most one in-flight transition is honored: a newer
// Select supersedes an older one, whose result is discarded when it resolves.
type Coordinator struct {
	api    rest.Client
	recon  *Reconciler
	list   *ListSynchronizer
	topics *membership.Tracker
	log    *logger.Logger

	mu       sync.Mutex
	state    SelectionState
	activeID string
	epoch    uint64
	msgPage  int
}

// NewCoordinator creates a selection coordinator.
func NewCoordinator(api rest.Client, recon *Reconciler, list *ListSynchronizer, topics *membership.Tracker, log *logger.Logger) *Coordinator {
	return &Coordinator{
		api:    api,
		recon:  recon,
		list:   list,
		topics: topics,
		log:    log.WithComponent("session"),
		state:  SelectionNone,
	}
}

// State returns the current selection state.
func (c *Coordinator) State() SelectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveID returns the selected conversation id, empty when none.
func (c *Coordinator) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// Select makes the given conversation active: leaves the prior topic
// (best-effort), loads details and messages, seeds the reconciler, joins the
// new topic, and marks the conversation read. An empty id clears the
// selection. On fetch failure the prior selection is restored.
func (c *Coordinator) Select(ctx context.Context, id string) error {
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	prevID := c.activeID
	prevState := c.state

	if id == "" {
		c.state = SelectionNone
		c.activeID = ""
		c.msgPage = 0
		c.mu.Unlock()

		if prevID != "" {
			c.topics.Leave(ctx, prevID)
		}
		c.recon.Clear()
		c.list.SetActive("")
		return nil
	}

	c.state = SelectionLoading
	c.mu.Unlock()

	if prevID != "" && prevID != id {
		c.topics.Leave(ctx, prevID)
	}

	details, err := c.api.GetConversationDetails(ctx, id)

	c.mu.Lock()
	if c.epoch != epoch {
		// Superseded by a newer Select; discard this result.
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.activeID = prevID
		c.state = prevState
		c.mu.Unlock()

		if prevID != "" {
			if jerr := c.topics.Join(ctx, prevID); jerr != nil {
				c.log.Warn("rejoin after failed select", zap.String("topic", prevID), zap.Error(jerr))
			}
		}
		return err
	}

	c.activeID = id
	c.state = SelectionLoaded
	c.msgPage = 1
	c.list.SetActive(id)
	c.recon.Seed(id, details.Messages)
	c.list.MarkAsRead(id)
	c.mu.Unlock()

	if err := c.topics.Join(ctx, id); err != nil {
		c.log.Warn("join selected topic", zap.String("topic", id), zap.Error(err))
	}
	return nil
}

// LoadOlderMessages fetches the next older page for the active conversation
// and merges it in front of the current list.
func (c *Coordinator) LoadOlderMessages(ctx context.Context) error {
	c.mu.Lock()
	if c.state != SelectionLoaded {
		c.mu.Unlock()
		return model.ErrNoSelection
	}
	id := c.activeID
	page := c.msgPage + 1
	c.mu.Unlock()

	resp, err := c.api.ListMessages(ctx, id, page)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.activeID == id {
		c.msgPage = page
	}
	c.mu.Unlock()

	c.recon.PrependPage(id, resp.Messages)
	return nil
}
