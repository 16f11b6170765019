package xui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"vpn-assistant/internal/domain"
)

const (
	LoginPath        = "/login"
	InboundPath      = "/panel/api/inbounds/get/%d"
	AddClientPath    = "/panel/api/inbounds/addClient"
	DeleteClientPath = "/panel/api/inbounds/%d/delClient/%s"

	DefaultTimeout = 30 * time.Second
	FlowVision     = "xtls-rprx-vision"
)

var (
	ErrEmptyBaseURL = errors.New("panel base url cannot be empty")
	ErrEmptyInbound = errors.New("panel returned no inbound")
)

// Doer performs HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a 3x-ui panel. It holds no credential of its own: every
// Login produces an independent Session, so concurrent callers never share
// mutable state.
type Client struct {
	baseURL  string
	username string
	password string
	http     Doer
	logger   domain.Logger
}

// Session is an authenticated view of the panel bound to one login.
type Session struct {
	client *Client
	cookie string
}

// New creates a new panel client
func New(baseURL, username, password string, doer Doer, logger domain.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}

	if doer == nil {
		doer = &http.Client{Timeout: DefaultTimeout}
	}

	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     doer,
		logger:   logger,
	}, nil
}

// Login authenticates with the panel and returns a session carrying the
// cookie the panel handed out.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+LoginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &domain.AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.AuthError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.AuthError{StatusCode: resp.StatusCode}
	}

	cookie := sessionCookie(resp)
	if cookie == "" {
		return nil, &domain.AuthError{Err: domain.ErrNoSessionCookie}
	}

	c.logger.WithField("panel", c.baseURL).Debug("Panel login succeeded")

	return &Session{client: c, cookie: cookie}, nil
}

// Inbound fetches an inbound with its decoded client list
func (s *Session) Inbound(ctx context.Context, inboundID int) (*Inbound, error) {
	const op = "get inbound"

	result, err := s.do(ctx, op, http.MethodGet, fmt.Sprintf(InboundPath, inboundID), nil)
	if err != nil {
		return nil, err
	}

	inbound, err := decodeInbound(result.Obj)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}

	return inbound, nil
}

// AddClient attaches a new client to an inbound
func (s *Session) AddClient(ctx context.Context, inboundID int, client InboundClient) (*APIResult, error) {
	const op = "add client"

	body, err := buildAddClientPayload(inboundID, client)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}

	return s.do(ctx, op, http.MethodPost, AddClientPath, body)
}

// DeleteClient removes a client from an inbound by its uuid
func (s *Session) DeleteClient(ctx context.Context, inboundID int, clientID string) (*APIResult, error) {
	const op = "delete client"

	path := fmt.Sprintf(DeleteClientPath, inboundID, url.PathEscape(clientID))
	return s.do(ctx, op, http.MethodPost, path, nil)
}

// HasExistingClient reports whether any client of the inbound belongs to tgID
func (s *Session) HasExistingClient(ctx context.Context, inboundID int, tgID int64) (bool, error) {
	clients, err := s.ClientsForUser(ctx, inboundID, tgID)
	if err != nil {
		return false, err
	}
	return len(clients) > 0, nil
}

// ClientsForUser lists the inbound's clients owned by tgID, ordered by email
func (s *Session) ClientsForUser(ctx context.Context, inboundID int, tgID int64) ([]InboundClient, error) {
	inbound, err := s.Inbound(ctx, inboundID)
	if err != nil {
		return nil, err
	}

	var owned []InboundClient
	for _, client := range inbound.Settings.Clients {
		if int64(client.TgID) == tgID {
			owned = append(owned, client)
		}
	}

	sort.SliceStable(owned, func(i, j int) bool {
		return owned[i].Email < owned[j].Email
	})

	return owned, nil
}

// do sends an authenticated request and decodes the panel's result envelope
func (s *Session) do(ctx context.Context, op, method, path string, body []byte) (*APIResult, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.client.baseURL+path, reader)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cookie != "" {
		req.Header.Set("Cookie", s.cookie)
	}

	started := time.Now()
	resp, err := s.client.http.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	s.client.logger.WithFields(map[string]any{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(started).Round(time.Millisecond).String(),
	}).Debug("Panel request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.TransportError{Op: op, StatusCode: resp.StatusCode}
	}

	var result APIResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("malformed response: %w", err)}
	}

	if !result.Success {
		return &result, &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("panel rejected request: %s", result.Msg)}
	}

	return &result, nil
}

// sessionCookie joins the cookies set by a login response into a Cookie header value
func sessionCookie(resp *http.Response) string {
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return ""
	}

	parts := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		if cookie.Value == "" {
			continue
		}
		parts = append(parts, cookie.Name+"="+cookie.Value)
	}

	return strings.Join(parts, "; ")
}
