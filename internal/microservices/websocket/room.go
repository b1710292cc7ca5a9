package websocket

import "sync"

// Room = broadcast group of every live connection one user has open
type Room struct {
	UserID string
	conns  map[string]*Conn // map[connectionID] -> *Conn
	dead   bool             // emptied and about to leave the registry
	mu     sync.RWMutex
}

func newRoom(userID string) *Room {
	return &Room{
		UserID: userID,
		conns:  make(map[string]*Conn),
	}
}

// add reports false if the room has already been retired
func (r *Room) add(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		return false
	}
	r.conns[c.ID] = c
	return true
}

// remove drops c and retires the room when it was the last member
func (r *Room) remove(c *Conn) (removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID]; !ok {
		return false, false
	}
	delete(r.conns, c.ID)
	if len(r.conns) == 0 {
		r.dead = true
	}
	return true, r.dead
}

// broadcast enqueues frame on every member and returns the ones that could not take it
func (r *Room) broadcast(frame []byte) (delivered int, failed []*Conn) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if c.Enqueue(frame) {
			delivered++
		} else {
			failed = append(failed, c)
		}
	}
	return delivered, failed
}

// Count returns the number of connections in the room
func (r *Room) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Conns returns copy of the room's connections
func (r *Room) Conns() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}
