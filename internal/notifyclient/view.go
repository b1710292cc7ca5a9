package notifyclient

import (
	"slices"

	"socialhub/internal/microservices/http-api/models"
	push "socialhub/internal/microservices/websocket"
)

// Snapshot is an immutable copy of the reconciled view
type Snapshot struct {
	Notifications []models.Notification // newest first
	UnreadCount   int64
	State         ConnectionState
	Watermark     int64 // largest notification id ever merged
}

// Unread returns how many notifications in the snapshot are unread
func (s Snapshot) Unread() int {
	n := 0
	for _, item := range s.Notifications {
		if !item.IsRead {
			n++
		}
	}
	return n
}

// Find returns the notification with id, if present
func (s Snapshot) Find(id int64) (models.Notification, bool) {
	for _, item := range s.Notifications {
		if item.ID == id {
			return item, true
		}
	}
	return models.Notification{}, false
}

// View is the client's local notification state. Push events, poll results
// and optimistic local edits all go through the same methods, so every path
// yields the same state. Not safe for concurrent use; the Reconciler owns it.
type View struct {
	items     map[int64]models.Notification
	unread    int64
	watermark int64
	state     ConnectionState
}

func NewView() *View {
	return &View{
		items: make(map[int64]models.Notification),
		state: StateIdle,
	}
}

// ApplyEvent merges one push event. Duplicates and events for unknown ids are no-ops.
func (v *View) ApplyEvent(env *push.Envelope) {
	switch env.Type {
	case push.TypeNewNotification:
		if env.Notification != nil {
			v.insert(*env.Notification)
		}
	case push.TypeNotificationRead:
		v.markRead(env.NotificationID)
	case push.TypeNotificationDeleted:
		v.remove(env.NotificationID)
	case push.TypeAllNotificationsRead:
		v.markAllRead()
	case push.TypeUnreadCountUpdated:
		if env.Count != nil {
			v.SetUnreadCount(*env.Count)
		}
	}
}

// ApplyPage merges the newest page from the server together with the
// authoritative count. Local items inside the page's id range that the server
// no longer returns were deleted elsewhere and are dropped.
func (v *View) ApplyPage(page []models.Notification, count int64, complete bool) {
	seen := make(map[int64]struct{}, len(page))
	lowest := int64(0)
	for _, n := range page {
		seen[n.ID] = struct{}{}
		if lowest == 0 || n.ID < lowest {
			lowest = n.ID
		}
		v.insert(n)
	}

	for id := range v.items {
		if _, ok := seen[id]; ok {
			continue
		}
		// complete means the page holds everything the server has
		if complete || (lowest != 0 && id > lowest) {
			delete(v.items, id)
		}
	}
	v.SetUnreadCount(count)
}

// ApplyBackfill merges notifications fetched after a gap
func (v *View) ApplyBackfill(notifications []models.Notification) {
	for _, n := range notifications {
		v.insert(n)
	}
}

// SetUnreadCount overwrites the counter; the server's count always wins
func (v *View) SetUnreadCount(count int64) {
	if count < 0 {
		count = 0
	}
	v.unread = count
}

func (v *View) SetState(state ConnectionState) {
	v.state = state
}

// MarkReadLocal applies an optimistic single read. It returns the items the
// edit changed, as they were before, for Restore.
func (v *View) MarkReadLocal(id int64) []models.Notification {
	n, ok := v.items[id]
	if !ok || n.IsRead {
		return nil
	}
	v.markRead(id)
	return []models.Notification{n}
}

// MarkAllReadLocal applies an optimistic bulk read
func (v *View) MarkAllReadLocal() []models.Notification {
	var prior []models.Notification
	for _, n := range v.items {
		if !n.IsRead {
			prior = append(prior, n)
		}
	}
	v.markAllRead()
	return prior
}

// DeleteLocal applies an optimistic delete
func (v *View) DeleteLocal(id int64) []models.Notification {
	n, ok := v.items[id]
	if !ok {
		return nil
	}
	v.remove(id)
	return []models.Notification{n}
}

// Restore undoes a local edit the server rejected. Removed items come back
// and items read by the edit become unread again.
func (v *View) Restore(prior []models.Notification) {
	for _, n := range prior {
		current, ok := v.items[n.ID]
		switch {
		case !ok:
			v.items[n.ID] = n
			if !n.IsRead {
				v.unread++
			}
		case current.IsRead && !n.IsRead:
			current.IsRead = false
			v.items[n.ID] = current
			v.unread++
		}
	}
}

func (v *View) insert(n models.Notification) {
	if n.ID > v.watermark {
		v.watermark = n.ID
	}
	if existing, ok := v.items[n.ID]; ok {
		// isRead only moves false -> true
		if n.IsRead && !existing.IsRead {
			existing.IsRead = true
			v.items[n.ID] = existing
		}
		return
	}
	v.items[n.ID] = n
	if !n.IsRead {
		v.unread++
	}
}

func (v *View) markRead(id int64) {
	n, ok := v.items[id]
	if !ok || n.IsRead {
		return
	}
	n.IsRead = true
	v.items[id] = n
	v.decrement()
}

func (v *View) markAllRead() {
	for id, n := range v.items {
		if !n.IsRead {
			n.IsRead = true
			v.items[id] = n
		}
	}
	v.unread = 0
}

func (v *View) remove(id int64) {
	n, ok := v.items[id]
	if !ok {
		return
	}
	delete(v.items, id)
	if !n.IsRead {
		v.decrement()
	}
}

func (v *View) decrement() {
	if v.unread > 0 {
		v.unread--
	}
}

// Snapshot copies the view, newest notification first
func (v *View) Snapshot() Snapshot {
	items := make([]models.Notification, 0, len(v.items))
	for _, n := range v.items {
		items = append(items, n)
	}
	slices.SortFunc(items, func(a, b models.Notification) int {
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})

	return Snapshot{
		Notifications: items,
		UnreadCount:   v.unread,
		State:         v.state,
		Watermark:     v.watermark,
	}
}
