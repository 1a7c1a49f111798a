// Package account talks to the backend's favourites, profile and chat-log
// endpoints. Failures here are never fatal to a conversation; callers
// surface them as transient notices.
package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

// ── Wire types ───────────────────────────────────────────────────

type favouriteRequest struct {
	Email  string `json:"email"`
	Title  string `json:"title"`
	Recipe string `json:"recipe"`
}

type favouriteResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type favouritesResponse struct {
	Favourites []domain.RecipeArtifact `json:"favourites"`
}

type updateRequest struct {
	Email       string   `json:"email"`
	Field       string   `json:"field"`
	UpdatedList []string `json:"updatedList"`
}

type chatLogsResponse struct {
	Chats []domain.ChatLog `json:"chats"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.Code, e.Detail)
}

// ── Client ───────────────────────────────────────────────────────

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithHTTPTimeout sets the HTTP client timeout.
func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// Client is the account API client.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

var (
	_ domain.FavouriteService = (*Client)(nil)
	_ domain.ProfileService   = (*Client)(nil)
)

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, log *logger.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AddFavourite saves a recipe. The backend answers "success", "exists" or
// "error"; anything else maps to FavouriteFailed. Transport and HTTP
// errors are returned as errors.
func (c *Client) AddFavourite(ctx context.Context, identity string, recipe domain.RecipeArtifact) (domain.FavouriteResult, error) {
	if identity == "" {
		return domain.FavouriteFailed, domain.ErrNoIdentity
	}
	if !recipe.Valid() {
		return domain.FavouriteFailed, domain.ErrNoCurrentRecipe
	}

	var resp favouriteResponse
	req := favouriteRequest{Email: identity, Title: recipe.Title, Recipe: recipe.Content}
	if err := c.do(ctx, http.MethodPost, "/add-favourite", nil, req, &resp); err != nil {
		return domain.FavouriteFailed, fmt.Errorf("adding favourite: %w", err)
	}

	c.log.Debug("add favourite %q: %s", recipe.Title, resp.Status)
	switch resp.Status {
	case "success":
		return domain.FavouriteAdded, nil
	case "exists":
		return domain.FavouriteExists, nil
	default:
		return domain.FavouriteFailed, nil
	}
}

// Favourites lists saved recipes. A user the backend does not know yet
// simply has none.
func (c *Client) Favourites(ctx context.Context, identity string) ([]domain.RecipeArtifact, error) {
	var resp favouritesResponse
	err := c.do(ctx, http.MethodGet, "/get-favourites", url.Values{"email": {identity}}, nil, &resp)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing favourites: %w", err)
	}
	return resp.Favourites, nil
}

// Profile fetches stored preferences.
func (c *Client) Profile(ctx context.Context, identity string) (*domain.Profile, error) {
	var p domain.Profile
	err := c.do(ctx, http.MethodGet, "/get-profile", url.Values{"email": {identity}}, nil, &p)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, fmt.Errorf("loading profile: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	return &p, nil
}

// UpdatePreference replaces one preference list.
func (c *Client) UpdatePreference(ctx context.Context, identity string, field domain.PreferenceField, values []string) error {
	if !field.Valid() {
		return fmt.Errorf("unknown preference field %q", field)
	}
	if values == nil {
		values = []string{}
	}
	req := updateRequest{Email: identity, Field: string(field), UpdatedList: values}
	if err := c.do(ctx, http.MethodPost, "/update-profile", nil, req, nil); err != nil {
		return fmt.Errorf("updating %s: %w", field, err)
	}
	return nil
}

// ChatLogs returns archived conversations, oldest first as stored.
func (c *Client) ChatLogs(ctx context.Context, identity string) ([]domain.ChatLog, error) {
	var resp chatLogsResponse
	if err := c.do(ctx, http.MethodGet, "/get-chat-logs", url.Values{"email": {identity}}, nil, &resp); err != nil {
		return nil, fmt.Errorf("loading chat logs: %w", err)
	}
	return resp.Chats, nil
}

// do sends one JSON request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Detail: detail(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// detail extracts FastAPI's {"detail": "..."} message when present.
func detail(body []byte) string {
	var v struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &v) == nil && v.Detail != "" {
		return v.Detail
	}
	return strings.TrimSpace(string(body))
}
