package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Registry tracks live connections grouped into one Room per user.
// Rooms are locked individually, so traffic for different users never
// contends on a shared lock.
type Registry struct {
	rooms  sync.Map // map[userID] -> *Room
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds c to the room named by its user ID, creating the room if needed
func (r *Registry) Register(c *Conn) {
	for {
		v, _ := r.rooms.LoadOrStore(c.UserID, newRoom(c.UserID))
		room := v.(*Room)
		if room.add(c) {
			r.logger.Info("client_registered",
				"user_id", c.UserID,
				"connection_id", c.ID,
				"room_size", room.Count(),
			)
			return
		}
		// lost a race with the last Unregister; clear the retired room and retry
		r.rooms.CompareAndDelete(c.UserID, room)
	}
}

// Unregister removes c from its room. Empty rooms are dropped. Safe to call
// more than once.
func (r *Registry) Unregister(c *Conn) {
	v, ok := r.rooms.Load(c.UserID)
	if !ok {
		return
	}
	room := v.(*Room)
	removed, empty := room.remove(c)
	if !removed {
		return
	}
	if empty {
		r.rooms.CompareAndDelete(c.UserID, room)
	}
	r.logger.Info("client_unregistered", "user_id", c.UserID, "connection_id", c.ID)
}

// BroadcastToUser delivers frame to every connection registered for userID at
// call time and returns how many accepted it. Connections that cannot take the
// frame are dropped without affecting their siblings.
func (r *Registry) BroadcastToUser(userID string, frame []byte) int {
	v, ok := r.rooms.Load(userID)
	if !ok {
		return 0
	}
	delivered, failed := v.(*Room).broadcast(frame)
	r.drop(failed, "send buffer full")
	return delivered
}

// Publish satisfies Publisher for single-instance deployments
func (r *Registry) Publish(_ context.Context, userID string, frame []byte) error {
	r.BroadcastToUser(userID, frame)
	return nil
}

// BroadcastAll delivers frame to every registered connection
func (r *Registry) BroadcastAll(frame []byte) int {
	total := 0
	r.rooms.Range(func(_, v any) bool {
		delivered, failed := v.(*Room).broadcast(frame)
		total += delivered
		r.drop(failed, "send buffer full")
		return true
	})
	return total
}

// PruneUnresponsive drops every connection whose last pong predates pingAt
func (r *Registry) PruneUnresponsive(pingAt time.Time) int {
	var stale []*Conn
	r.rooms.Range(func(_, v any) bool {
		for _, c := range v.(*Room).Conns() {
			if c.LastPong().Before(pingAt) {
				stale = append(stale, c)
			}
		}
		return true
	})
	for _, c := range stale {
		r.logger.Info("client_pruned", "user_id", c.UserID, "connection_id", c.ID, "last_pong_at", c.LastPong())
		r.Unregister(c)
		c.Close(websocket.CloseGoingAway, "ping timeout")
	}
	return len(stale)
}

// CloseAll unregisters and closes every connection with the given close code
func (r *Registry) CloseAll(code int, text string) {
	r.rooms.Range(func(_, v any) bool {
		for _, c := range v.(*Room).Conns() {
			r.Unregister(c)
			c.Close(code, text)
		}
		return true
	})
}

func (r *Registry) drop(conns []*Conn, reason string) {
	for _, c := range conns {
		r.logger.Warn("broadcast_dropped", "user_id", c.UserID, "connection_id", c.ID, "reason", reason)
		r.Unregister(c)
		c.Close(websocket.CloseTryAgainLater, reason)
	}
}

// ConnectionsForUser returns the number of live connections userID has
func (r *Registry) ConnectionsForUser(userID string) int {
	v, ok := r.rooms.Load(userID)
	if !ok {
		return 0
	}
	return v.(*Room).Count()
}

// ConnectionCount returns the number of live connections across all users
func (r *Registry) ConnectionCount() int {
	total := 0
	r.rooms.Range(func(_, v any) bool {
		total += v.(*Room).Count()
		return true
	})
	return total
}

// UserCount returns the number of users with at least one live connection
func (r *Registry) UserCount() int {
	total := 0
	r.rooms.Range(func(_, v any) bool {
		if v.(*Room).Count() > 0 {
			total++
		}
		return true
	})
	return total
}
