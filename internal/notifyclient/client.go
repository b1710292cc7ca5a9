// Package notifyclient is the client side of real-time notification
// delivery: a push connection with backoff and polling fallback, and a
// reconciled local view of the user's notifications.
package notifyclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"socialhub/internal/microservices/http-api/models"
	push "socialhub/internal/microservices/websocket"
)

type Options struct {
	APIURL  string // REST base, e.g. http://localhost:8080
	PushURL string // websocket endpoint, e.g. ws://localhost:8080/ws
	Token   string

	PollInterval     time.Duration
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	MaxAttempts      int
	HandshakeTimeout time.Duration
	PageSize         int

	// OnAuthError is called when the credential is rejected. The client then
	// stays offline until Reconnect.
	OnAuthError func(error)
	Logger      *slog.Logger

	// Dialer and API replace the default websocket and REST transports
	Dialer     Dialer
	API        API
	HTTPClient *http.Client
}

type Client struct {
	api        API
	reconciler *Reconciler
	manager    *Manager
	logger     *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := opts.API
	if api == nil {
		if opts.APIURL == "" {
			return nil, errors.New("notifyclient: APIURL is required")
		}
		api = NewRESTClient(opts.APIURL, opts.Token, opts.HTTPClient)
	}
	dialer := opts.Dialer
	if dialer == nil {
		if opts.PushURL == "" {
			return nil, errors.New("notifyclient: PushURL is required")
		}
		dialer = &WSDialer{URL: opts.PushURL}
	}

	reconciler := NewReconciler()
	manager := NewManager(ManagerConfig{
		Dialer:           dialer,
		API:              api,
		Token:            opts.Token,
		BackoffBase:      opts.BackoffBase,
		BackoffCap:       opts.BackoffCap,
		MaxAttempts:      opts.MaxAttempts,
		PollInterval:     opts.PollInterval,
		HandshakeTimeout: opts.HandshakeTimeout,
		PageSize:         opts.PageSize,
		OnAuthError:      opts.OnAuthError,
		Logger:           logger,
	}, reconciler)

	return &Client{
		api:        api,
		reconciler: reconciler,
		manager:    manager,
		logger:     logger,
	}, nil
}

// Start launches the connection manager. The client runs until Close or
// until ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.reconciler.Run()
	}()
	go func() {
		defer c.wg.Done()
		c.manager.Run(ctx)
	}()
	return nil
}

// Close tears down the connection and every timer. No snapshot is delivered
// after Close returns.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	cancel := c.cancel
	c.mu.Unlock()

	if !started {
		return nil
	}
	cancel()
	c.reconciler.Stop()
	c.wg.Wait()
	return nil
}

func (c *Client) Snapshot() Snapshot {
	return c.reconciler.Snapshot()
}

// Changes emits the newest snapshot after each applied update and is closed by Close
func (c *Client) Changes() <-chan Snapshot {
	return c.reconciler.Changes()
}

func (c *Client) State() ConnectionState {
	return c.manager.State()
}

// MarkRead marks a notification read locally, then on the server. If the
// server rejects it the local edit is undone and a resync is scheduled.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	return c.mutate(ctx, LocalMarkRead, id, func(ctx context.Context) error {
		return c.api.MarkRead(ctx, id)
	})
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.mutate(ctx, LocalMarkAllRead, 0, c.api.MarkAllRead)
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.mutate(ctx, LocalDelete, id, func(ctx context.Context) error {
		return c.api.Delete(ctx, id)
	})
}

func (c *Client) mutate(ctx context.Context, op LocalOp, id int64, remote func(context.Context) error) error {
	prior := make(chan []models.Notification, 1)
	if !c.reconciler.Submit(ctx, LocalUpdate{Op: op, ID: id, prior: prior}) {
		return ErrClosed
	}
	err := remote(ctx)
	if err == nil {
		return nil
	}

	c.logger.Warn("notification_mutation_failed", "op", op, "notification_id", id, "error", err)
	c.rollback(op, id, prior, err)
	c.manager.Resync()
	return err
}

// rollback undoes the local edit after the server refused it
func (c *Client) rollback(op LocalOp, id int64, prior <-chan []models.Notification, cause error) {
	var items []models.Notification
	select {
	case items = <-prior:
	case <-c.reconciler.stopped():
		return
	}

	ctx := context.Background()
	if errors.Is(cause, ErrNotFound) {
		// gone on the server, so it stays gone here
		if op != LocalMarkAllRead {
			c.reconciler.Submit(ctx, EventUpdate{Event: push.NewNotificationDeleted(id)})
		}
		return
	}
	if len(items) > 0 {
		c.reconciler.Submit(ctx, RestoreUpdate{Notifications: items})
	}
}

// Reconnect leaves polling or offline and tries the push channel again
func (c *Client) Reconnect() {
	c.manager.Reconnect()
}

// SetToken swaps the credential used by later dials and REST calls
func (c *Client) SetToken(token string) {
	c.manager.SetToken(token)
	if setter, ok := c.api.(interface{ SetToken(string) }); ok {
		setter.SetToken(token)
	}
}
