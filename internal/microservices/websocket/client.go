package websocket

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Individual connection handler: one Conn per physical push-channel session

const (
	MaxMessageSize = 512 // maximum inbound frame size allowed from peer

	// CloseAuthFailed is sent when the handshake credential is rejected
	CloseAuthFailed = 4001
)

// ConnOptions tunes every connection the handler accepts
type ConnOptions struct {
	WriteWait  time.Duration // max time to write a frame to the peer
	SendBuffer int           // outbound queue length, a full queue drops the connection
	RateLimit  float64       // inbound messages per second
	RateBurst  int
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer < 1 {
		o.SendBuffer = 64
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 5
	}
	if o.RateBurst < 1 {
		o.RateBurst = 10
	}
	return o
}

type Conn struct {
	ID       string    // unique connection ID
	UserID   string    // bound at handshake, never changes
	UserName string    // display name from the verified identity
	JoinedAt time.Time // registration time

	lastPongAt atomic.Int64 // unix nanos of the last pong (or JoinedAt)

	ws        *websocket.Conn
	send      chan []byte   // outbound frames
	done      chan struct{} // closed once by Close
	closeOnce sync.Once
	closeCode int
	closeText string

	limiter   *rate.Limiter
	writeWait time.Duration
	registry  *Registry
	logger    *slog.Logger
}

// NewConn wraps an upgraded socket. ws may be nil in tests, in which case
// frames stay in the send queue.
func NewConn(ws *websocket.Conn, userID, userName string, registry *Registry, opts ConnOptions, logger *slog.Logger) *Conn {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now()
	c := &Conn{
		ID:        uuid.NewString(),
		UserID:    userID,
		UserName:  userName,
		JoinedAt:  now,
		ws:        ws,
		send:      make(chan []byte, opts.SendBuffer),
		done:      make(chan struct{}),
		limiter:   rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		writeWait: opts.WriteWait,
		registry:  registry,
	}
	c.logger = logger.With("connection_id", c.ID, "user_id", userID)
	c.lastPongAt.Store(now.UnixNano())
	return c
}

// Enqueue hands a frame to the writer without blocking. It reports false when
// the connection is closed or its queue is full.
func (c *Conn) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the writer, which sends a close frame with the given code.
// Only the first call has an effect.
func (c *Conn) Close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// Closed reports whether Close has been called
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// LastPong returns when the peer last answered a ping
func (c *Conn) LastPong() time.Time {
	return time.Unix(0, c.lastPongAt.Load())
}

func (c *Conn) markPong(at time.Time) {
	c.lastPongAt.Store(at.UnixNano())
}

// ReadPump consumes client frames until the socket fails, then unregisters.
func (c *Conn) ReadPump() {
	defer func() {
		c.registry.Unregister(c)
		c.Close(websocket.CloseNormalClosure, "")
	}()

	c.ws.SetReadLimit(MaxMessageSize)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("connection_read_failed", "error", err)
			}
			return
		}
		c.handleInbound(data)
	}
}

func (c *Conn) handleInbound(data []byte) {
	if !c.limiter.Allow() {
		c.logger.Warn("client_message_throttled")
		return
	}

	env, err := EnvelopeFromJSON(data)
	if err != nil {
		c.logger.Warn("client_message_malformed", "error", err)
		return
	}

	switch env.Type {
	case TypePong:
		c.markPong(time.Now())
	case TypeJoin:
		// identity is fixed at handshake; join only re-confirms it
		if env.UserID != c.UserID {
			c.logger.Warn("join_identity_mismatch", "requested_user_id", env.UserID)
			return
		}
		if frame, err := NewConnected(c.UserID).ToJSON(); err == nil {
			c.Enqueue(frame)
		}
	default:
		c.logger.Debug("client_message_ignored", "type", env.Type)
	}
}

// WritePump drains the send queue to the socket. It owns the socket close.
func (c *Conn) WritePump() {
	defer c.ws.Close()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn("connection_write_failed", "error", err)
				c.registry.Unregister(c)
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
			return
		}
	}
}
