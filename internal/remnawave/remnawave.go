package remnawave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vpn-assistant/internal/domain"
)

const (
	UsersPath          = "/api/users"
	UserByTelegramPath = "/api/users/by-telegram-id/%s"
	UserPath           = "/api/users/%s"

	DefaultTimeout = 30 * time.Second
)

var (
	ErrEmptyBaseURL = errors.New("remnawave base url cannot be empty")
	ErrEmptyToken   = errors.New("remnawave api token cannot be empty")
)

// Doer performs HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a minimal Remnawave REST client authenticated by a bearer token.
type Client struct {
	baseURL string
	token   string
	http    Doer
	logger  domain.Logger
}

// New creates a new Remnawave client
func New(baseURL, token string, doer Doer, logger domain.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	if token == "" {
		return nil, ErrEmptyToken
	}

	if doer == nil {
		doer = &http.Client{Timeout: DefaultTimeout}
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    doer,
		logger:  logger,
	}, nil
}

// UserByTelegramID returns the first user bound to a Telegram id
func (c *Client) UserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	const op = "get user by telegram id"

	var out envelope[[]User]
	path := fmt.Sprintf(UserByTelegramPath, url.PathEscape(strconv.FormatInt(telegramID, 10)))
	if err := c.do(ctx, op, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	if len(out.Response) == 0 {
		return nil, &domain.NotFoundError{What: "subscription"}
	}

	return &out.Response[0], nil
}

// CreateUser creates a user and returns it with its subscription url
func (c *Client) CreateUser(ctx context.Context, request CreateUserRequest) (*User, error) {
	const op = "create user"

	body, err := json.Marshal(request)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}

	var out envelope[User]
	if err := c.do(ctx, op, http.MethodPost, UsersPath, body, &out); err != nil {
		return nil, err
	}

	return &out.Response, nil
}

// DeleteUser permanently removes a user
func (c *Client) DeleteUser(ctx context.Context, uuid string) error {
	const op = "delete user"

	var out envelope[deleteResult]
	if err := c.do(ctx, op, http.MethodDelete, fmt.Sprintf(UserPath, url.PathEscape(uuid)), nil, &out); err != nil {
		return err
	}

	if !out.Response.IsDeleted {
		return &domain.TransportError{Op: op, Err: errors.New("panel did not confirm deletion")}
	}

	return nil
}

// do sends an authenticated request and decodes the JSON answer into out
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.WithFields(map[string]any{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(started).Round(time.Millisecond).String(),
	}).Debug("Remnawave request")

	if resp.StatusCode == http.StatusNotFound {
		return &domain.NotFoundError{What: "subscription"}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.TransportError{Op: op, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("malformed response: %w", err)}
	}

	return nil
}
