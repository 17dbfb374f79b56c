// Package rest provides the client for the CRM conversation REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/transport"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
)

// Client is the REST conversation API consumed by the sync engine.
type Client interface {
	ListConversations(ctx context.Context, filter model.ConversationFilter, page int) (*model.ListConversationsResponse, error)
	GetConversationDetails(ctx context.Context, id string) (*model.ConversationDetails, error)
	ListMessages(ctx context.Context, conversationID string, page int) (*model.ListMessagesResponse, error)
	PostMessage(ctx context.Context, conversationID string, req *model.SendMessageRequest) (*model.Message, error)
	ResolveConversation(ctx context.Context, id string) error
	TransferConversation(ctx context.Context, id, target string) error
}

// HTTPClient implements Client against the CRM backend.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	creds   transport.CredentialProvider
	log     *logger.Logger
}

// NewHTTPClient creates a REST client with a default per-request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, creds transport.CredentialProvider, log *logger.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		log:     log.WithComponent("rest"),
	}
}

// ListConversations fetches a page of conversation summaries.
func (c *HTTPClient) ListConversations(ctx context.Context, filter model.ConversationFilter, page int) (*model.ListConversationsResponse, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	if filter.Search != "" {
		query.Set("search", filter.Search)
	}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.PageSize > 0 {
		query.Set("page_size", strconv.Itoa(filter.PageSize))
	}

	var out model.ListConversationsResponse
	if err := c.do(ctx, http.MethodGet, "/conversations", query, nil, &out); err != nil {
		return nil, &model.FetchError{Op: "list conversations", Err: err}
	}
	return &out, nil
}

// GetConversationDetails fetches a conversation with its latest message page.
func (c *HTTPClient) GetConversationDetails(ctx context.Context, id string) (*model.ConversationDetails, error) {
	var out model.ConversationDetails
	if err := c.do(ctx, http.MethodGet, "/conversations/"+id, nil, nil, &out); err != nil {
		return nil, &model.FetchError{Op: "get conversation", Err: err}
	}
	return &out, nil
}

// ListMessages fetches an older page of messages for a conversation.
func (c *HTTPClient) ListMessages(ctx context.Context, conversationID string, page int) (*model.ListMessagesResponse, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))

	var out model.ListMessagesResponse
	if err := c.do(ctx, http.MethodGet, "/conversations/"+conversationID+"/messages", query, nil, &out); err != nil {
		return nil, &model.FetchError{Op: "list messages", Err: err}
	}
	return &out, nil
}

// PostMessage sends a message and returns the server-confirmed entry.
func (c *HTTPClient) PostMessage(ctx context.Context, conversationID string, req *model.SendMessageRequest) (*model.Message, error) {
	var out model.Message
	if err := c.do(ctx, http.MethodPost, "/conversations/"+conversationID+"/messages", nil, req, &out); err != nil {
		return nil, &model.FetchError{Op: "post message", Err: err}
	}
	return &out, nil
}

// ResolveConversation marks a conversation resolved.
func (c *HTTPClient) ResolveConversation(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/conversations/"+id+"/resolve", nil, nil, nil); err != nil {
		return &model.FetchError{Op: "resolve conversation", Err: err}
	}
	return nil
}

// TransferConversation hands a conversation to another agent or queue.
func (c *HTTPClient) TransferConversation(ctx context.Context, id, target string) error {
	body := map[string]string{"target": target}
	if err := c.do(ctx, http.MethodPost, "/conversations/"+id+"/transfer", nil, body, nil); err != nil {
		return &model.FetchError{Op: "transfer conversation", Err: err}
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.creds.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
