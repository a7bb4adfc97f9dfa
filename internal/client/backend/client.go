package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
)

const maxErrorBody = 512

// Client talks to the relational backend that owns users, sessions and
// messages.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a backend client rooted at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateUser registers an anonymous user and returns its identifier.
func (c *Client) CreateUser(ctx context.Context) (string, error) {
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := c.do(ctx, "create user", http.MethodPost, "/api/users", struct{}{}, &payload, ErrSubmit); err != nil {
		return "", err
	}
	if payload.UserID == "" {
		return "", fmt.Errorf("%w: create user: empty userId in response", ErrSubmit)
	}
	return payload.UserID, nil
}

// ListSessions returns every session owned by userID in server order.
func (c *Client) ListSessions(ctx context.Context, userID string) ([]chat.Session, error) {
	if userID == "" {
		return nil, ErrMissingIdentity
	}

	var sessions []chat.Session
	if err := c.do(ctx, "list sessions", http.MethodGet, sessionsPath(userID), nil, &sessions, ErrFetch); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CreateSession starts a new session and returns the server-assigned id.
func (c *Client) CreateSession(ctx context.Context, userID, title string) (chat.ID, error) {
	if userID == "" {
		return "", ErrMissingIdentity
	}

	body := map[string]string{"title": title}
	var id chat.ID
	if err := c.do(ctx, "create session", http.MethodPost, sessionsPath(userID), body, &id, ErrSubmit); err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: create session: empty id in response", ErrSubmit)
	}
	return id, nil
}

// ListMessages returns the messages of one session in server order.
func (c *Client) ListMessages(ctx context.Context, userID string, sessionID chat.ID) ([]chat.Message, error) {
	if userID == "" || sessionID == "" {
		return nil, ErrMissingIdentity
	}

	var messages []chat.Message
	path := sessionsPath(userID) + "/" + url.PathEscape(sessionID.String()) + "/messages"
	if err := c.do(ctx, "list messages", http.MethodGet, path, nil, &messages, ErrFetch); err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}

// SubmitQuery hands a question to the backend. The answer is produced
// asynchronously and shows up in ListMessages later.
func (c *Client) SubmitQuery(ctx context.Context, userID string, sessionID chat.ID, question string) error {
	if userID == "" || sessionID == "" {
		return ErrMissingIdentity
	}

	body := map[string]string{"question": question}
	path := sessionsPath(userID) + "/" + url.PathEscape(sessionID.String()) + "/query"
	return c.do(ctx, "submit query", http.MethodPost, path, body, nil, ErrSubmit)
}

func sessionsPath(userID string) string {
	return "/api/users/" + url.PathEscape(userID) + "/chat/sessions"
}

// do performs a JSON round trip. Failures are wrapped with kind.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any, kind error) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: %s: encode request: %v", kind, op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %s: build request: %v", kind, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("backend request failed", zap.String("op", op), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", kind, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
			kind:       kind,
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", kind, op, err)
	}
	return nil
}
