package notifyclient

// rest.go = pull side of the notification API, used for initial load,
// gap backfill, polling and the mutations behind optimistic edits.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"socialhub/internal/microservices/http-api/models"
)

// API is the REST surface the client depends on
type API interface {
	List(ctx context.Context, opts ListOptions) (*ListResponse, error)
	Since(ctx context.Context, sinceID int64) ([]models.Notification, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, notificationID int64) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, notificationID int64) error
}

type ListOptions struct {
	Page   int
	Limit  int
	IsRead *bool
	Type   models.NotificationType
}

type ListResponse struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int64                 `json:"unreadCount"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
	Total         int64                 `json:"total"`
	TotalPages    int                   `json:"totalPages"`
}

// RESTClient talks to the notification routes with a bearer token
type RESTClient struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// constructor for REST client
func NewRESTClient(apiURL, token string, httpClient *http.Client) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RESTClient{
		baseURL:    strings.TrimRight(apiURL, "/"),
		httpClient: httpClient,
		token:      token,
	}
}

// set token for REST client
func (c *RESTClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *RESTClient) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.IsRead != nil {
		q.Set("isRead", strconv.FormatBool(*opts.IsRead))
	}
	if opts.Type != "" {
		q.Set("type", string(opts.Type))
	}

	var result ListResponse
	if err := c.do(ctx, http.MethodGet, "/notifications", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RESTClient) Since(ctx context.Context, sinceID int64) ([]models.Notification, error) {
	q := url.Values{"since": []string{strconv.FormatInt(sinceID, 10)}}

	var result struct {
		Notifications []models.Notification `json:"notifications"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications/new", q, &result); err != nil {
		return nil, err
	}
	return result.Notifications, nil
}

func (c *RESTClient) UnreadCount(ctx context.Context) (int64, error) {
	var result struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications/unread", nil, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

func (c *RESTClient) MarkRead(ctx context.Context, notificationID int64) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/notification/%d/read", notificationID), nil, nil)
}

func (c *RESTClient) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/notifications/mark-all-read", nil, nil)
}

func (c *RESTClient) Delete(ctx context.Context, notificationID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/notification/%d", notificationID), nil, nil)
}

func (c *RESTClient) do(ctx context.Context, method, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	c.mu.RLock()
	req.Header.Set("Authorization", "Bearer "+c.token)
	c.mu.RUnlock()

	response, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close() // Ensure the response body is closed

	switch {
	case response.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case response.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case response.StatusCode >= 300:
		return fmt.Errorf("%w: %s %s: %d %s", ErrUnexpectedStatus, method, path, response.StatusCode, errorBody(response.Body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func errorBody(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
