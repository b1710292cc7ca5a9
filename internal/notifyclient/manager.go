package notifyclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	push "socialhub/internal/microservices/websocket"
)

const (
	DefaultPollInterval     = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPageSize         = 20
	backfillBatch           = 100 // server cap for /notifications/new
)

type ManagerConfig struct {
	Dialer           Dialer
	API              API
	Token            string
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	MaxAttempts      int
	PollInterval     time.Duration
	HandshakeTimeout time.Duration
	PageSize         int
	OnAuthError      func(error) // called on the manager goroutine; must not block
	Logger           *slog.Logger
}

// Manager owns the push connection for one client instance. All state
// transitions and timers run on the goroutine started by Run.
type Manager struct {
	cfg        ManagerConfig
	reconciler *Reconciler
	backoff    *Backoff
	logger     *slog.Logger

	mu    sync.RWMutex
	token string
	state ConnectionState

	reconnect chan struct{}
	resync    chan struct{}
	loaded    bool // initial page fetched at least once
}

func NewManager(cfg ManagerConfig, reconciler *Reconciler) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:        cfg,
		reconciler: reconciler,
		backoff:    NewBackoff(cfg.BackoffBase, cfg.BackoffCap, cfg.MaxAttempts),
		logger:     logger,
		token:      cfg.Token,
		state:      StateIdle,
		reconnect:  make(chan struct{}, 1),
		resync:     make(chan struct{}, 1),
	}
}

// State returns the current connection state
func (m *Manager) State() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *Manager) currentToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Reconnect asks a polling or offline manager to try the push channel again.
// It also cuts a pending backoff wait short. Ignored while live.
func (m *Manager) Reconnect() {
	if m.State() == StateLive {
		return
	}
	select {
	case m.reconnect <- struct{}{}:
	default:
	}
}

// Resync asks for a fresh pull of notifications and unread count
func (m *Manager) Resync() {
	select {
	case m.resync <- struct{}{}:
	default:
	}
}

func (m *Manager) setState(state ConnectionState) {
	m.mu.Lock()
	prev := m.state
	m.state = state
	m.mu.Unlock()

	if prev != state {
		m.logger.Info("connection_state_changed", "from", prev, "to", state)
		m.reconciler.Submit(context.Background(), StateUpdate{State: state})
	}
}

// Run drives the state machine until ctx is cancelled
func (m *Manager) Run(ctx context.Context) {
	next := StateConnecting
	for {
		if ctx.Err() != nil {
			return
		}

		switch next {
		case StateConnecting, StateReconnecting:
			m.setState(next)
			err := m.connectAndServe(ctx)
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrUnauthorized) {
				m.authFailed(err)
				next = StateOffline
				continue
			}

			delay, ok := m.backoff.Next()
			if !ok {
				m.logger.Warn("reconnect_budget_exhausted", "attempts", m.backoff.Attempts(), "error", err)
				next = StatePolling
				continue
			}
			m.setState(StateReconnecting)
			m.logger.Debug("reconnect_scheduled", "attempt", m.backoff.Attempts(), "delay", delay, "error", err)
			if !m.wait(ctx, delay) {
				return
			}
			next = StateReconnecting

		case StatePolling:
			m.setState(StatePolling)
			err := m.poll(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case errors.Is(err, ErrUnauthorized):
				m.authFailed(err)
				next = StateOffline
			default:
				m.backoff.Reset()
				next = StateConnecting
			}

		case StateOffline:
			m.setState(StateOffline)
			select {
			case <-ctx.Done():
				return
			case <-m.reconnect:
				m.backoff.Reset()
				next = StateConnecting
			}
		}
	}
}

// wait sleeps for d. Reconnect ends the wait early. False means ctx ended.
func (m *Manager) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-m.reconnect:
	}
	return true
}

func (m *Manager) authFailed(err error) {
	m.logger.Warn("push_auth_failed", "error", err)
	if m.cfg.OnAuthError != nil {
		m.cfg.OnAuthError(err)
	}
}

// connectAndServe dials, waits for the connected ack, then forwards frames to
// the reconciler until the stream fails.
func (m *Manager) connectAndServe(ctx context.Context) error {
	stream, err := m.cfg.Dialer.Dial(ctx, m.currentToken())
	if err != nil {
		return err
	}
	defer stream.Close()

	frames := make(chan *push.Envelope)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		for {
			env, err := stream.Read()
			if errors.Is(err, ErrMalformedFrame) {
				m.logger.Warn("push_frame_malformed", "error", err)
				continue
			}
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- env:
			case <-stop:
				return
			}
		}
	}()

	if err := m.awaitAck(ctx, frames, readErr); err != nil {
		return err
	}

	m.backoff.Reset()
	// a Reconnect issued before we got here is already satisfied
	select {
	case <-m.reconnect:
	default:
	}
	m.setState(StateLive)

	if err := m.refresh(ctx); errors.Is(err, ErrUnauthorized) {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			// requests made while live do not carry over
			select {
			case <-m.reconnect:
			default:
			}
			return fmt.Errorf("push channel lost: %w", err)
		case env := <-frames:
			m.handleFrame(ctx, stream, env)
		case <-m.resync:
			if err := m.refresh(ctx); errors.Is(err, ErrUnauthorized) {
				return err
			}
		}
	}
}

func (m *Manager) awaitAck(ctx context.Context, frames <-chan *push.Envelope, readErr <-chan error) error {
	timer := time.NewTimer(m.cfg.HandshakeTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return errors.New("push handshake timed out")
		case err := <-readErr:
			return err
		case env := <-frames:
			if env.Type == push.TypeConnected {
				m.logger.Debug("push_connected", "user_id", env.UserID)
				return nil
			}
			m.logger.Debug("push_frame_before_ack", "type", env.Type)
		}
	}
}

func (m *Manager) handleFrame(ctx context.Context, stream Stream, env *push.Envelope) {
	switch env.Type {
	case push.TypePing:
		if err := stream.Write(push.NewPong()); err != nil {
			m.logger.Warn("pong_failed", "error", err)
		}
	case push.TypeConnected:
		// repeated ack after a join
	default:
		m.reconciler.Submit(ctx, EventUpdate{Event: env})
	}
}

// refresh pulls what the push channel may have missed. The first call loads
// page 1; later calls backfill from the watermark and refresh the count.
func (m *Manager) refresh(ctx context.Context) error {
	var err error
	if !m.loaded {
		err = m.loadPage(ctx)
	} else {
		err = m.backfill(ctx)
		if err == nil {
			err = m.refreshCount(ctx)
		}
	}
	if err != nil {
		m.logger.Warn("notification_refresh_failed", "error", err)
	}
	return err
}

func (m *Manager) loadPage(ctx context.Context) error {
	page, err := m.cfg.API.List(ctx, ListOptions{Page: 1, Limit: m.cfg.PageSize})
	if err != nil {
		return err
	}
	m.reconciler.Submit(ctx, PageUpdate{
		Notifications: page.Notifications,
		UnreadCount:   page.UnreadCount,
		Complete:      page.Total <= int64(len(page.Notifications)),
	})
	m.loaded = true
	return nil
}

func (m *Manager) backfill(ctx context.Context) error {
	since := m.reconciler.Snapshot().Watermark
	for {
		batch, err := m.cfg.API.Since(ctx, since)
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			m.reconciler.Submit(ctx, BackfillUpdate{Notifications: batch})
			since = batch[len(batch)-1].ID
			m.logger.Debug("notifications_backfilled", "count", len(batch), "watermark", since)
		}
		if len(batch) < backfillBatch {
			return nil
		}
	}
}

func (m *Manager) refreshCount(ctx context.Context) error {
	count, err := m.cfg.API.UnreadCount(ctx)
	if err != nil {
		return err
	}
	m.reconciler.Submit(ctx, CountUpdate{Count: count})
	return nil
}

// poll keeps the view fresh over REST until Reconnect is called. It returns
// nil on Reconnect.
func (m *Manager) poll(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	tick := func() error {
		if m.loaded {
			if err := m.backfill(ctx); err != nil {
				return err
			}
		}
		return m.loadPage(ctx)
	}

	for {
		if err := tick(); err != nil {
			if errors.Is(err, ErrUnauthorized) {
				return err
			}
			m.logger.Warn("poll_failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.reconnect:
			return nil
		case <-ticker.C:
		case <-m.resync:
		}
	}
}
