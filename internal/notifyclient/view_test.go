package notifyclient

import (
	"testing"

	"socialhub/internal/microservices/http-api/models"
	push "socialhub/internal/microservices/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func note(id int64, read bool) models.Notification {
	return models.Notification{ID: id, UserID: "alice", Type: models.NotificationLike, IsRead: read}
}

func ids(s Snapshot) []int64 {
	out := make([]int64, 0, len(s.Notifications))
	for _, n := range s.Notifications {
		out = append(out, n.ID)
	}
	return out
}

func TestView_NewNotificationDedup(t *testing.T) {
	v := NewView()
	n := note(1, false)

	v.ApplyEvent(push.NewNotificationEvent(&n))
	v.ApplyEvent(push.NewNotificationEvent(&n))

	snap := v.Snapshot()
	assert.Equal(t, []int64{1}, ids(snap))
	assert.Equal(t, int64(1), snap.UnreadCount)
	assert.Equal(t, int64(1), snap.Watermark)
}

func TestView_NewestFirst(t *testing.T) {
	v := NewView()
	v.ApplyBackfill([]models.Notification{note(2, false), note(5, true), note(3, false)})
	assert.Equal(t, []int64{5, 3, 2}, ids(v.Snapshot()))
}

func TestView_ReadIsIdempotent(t *testing.T) {
	v := NewView()
	v.ApplyBackfill([]models.Notification{note(1, false), note(2, false)})
	v.SetUnreadCount(2)

	v.ApplyEvent(push.NewNotificationRead(1))
	once := v.Snapshot()
	v.ApplyEvent(push.NewNotificationRead(1))
	twice := v.Snapshot()

	assert.Equal(t, once, twice)
	assert.Equal(t, int64(1), twice.UnreadCount)
	n, ok := twice.Find(1)
	require.True(t, ok)
	assert.True(t, n.IsRead)
}

func TestView_UnknownIDsAreNoOps(t *testing.T) {
	v := NewView()
	v.ApplyBackfill([]models.Notification{note(1, false)})
	before := v.Snapshot()

	v.ApplyEvent(push.NewNotificationRead(99))
	v.ApplyEvent(push.NewNotificationDeleted(99))

	assert.Equal(t, before, v.Snapshot())
}

func TestView_DeleteTwice(t *testing.T) {
	v := NewView()
	v.ApplyBackfill([]models.Notification{note(1, false), note(2, false)})

	v.ApplyEvent(push.NewNotificationDeleted(1))
	v.ApplyEvent(push.NewNotificationDeleted(1))

	snap := v.Snapshot()
	assert.Equal(t, []int64{2}, ids(snap))
	assert.Equal(t, int64(1), snap.UnreadCount)
	assert.Equal(t, int64(2), snap.Watermark)
}

func TestView_AllRead(t *testing.T) {
	v := NewView()
	v.ApplyBackfill([]models.Notification{note(1, false), note(2, false)})

	v.ApplyEvent(push.NewAllNotificationsRead())

	snap := v.Snapshot()
	assert.Zero(t, snap.UnreadCount)
	assert.Zero(t, snap.Unread())
}

func TestView_OptimisticThenAuthoritative(t *testing.T) {
	v := NewView()
	v.ApplyPage([]models.Notification{note(3, false), note(2, false), note(1, false)}, 3, true)

	v.MarkReadLocal(3)
	assert.Equal(t, int64(2), v.Snapshot().UnreadCount)

	// the server raced and still counts the pre-edit state
	v.ApplyEvent(push.NewUnreadCount(3))
	assert.Equal(t, int64(3), v.Snapshot().UnreadCount)

	// local read state is kept, only the counter is overwritten
	n, _ := v.Snapshot().Find(3)
	assert.True(t, n.IsRead)
}

func TestView_ReadNeverReverts(t *testing.T) {
	v := NewView()
	v.ApplyBackfill([]models.Notification{note(1, true)})
	v.ApplyBackfill([]models.Notification{note(1, false)})

	n, _ := v.Snapshot().Find(1)
	assert.True(t, n.IsRead)
}

func TestView_PageDropsServerDeletions(t *testing.T) {
	v := NewView()
	v.ApplyBackfill([]models.Notification{note(1, false), note(2, false), note(3, false), note(4, false)})

	// 3 was deleted on another device; 1 is older than the page and kept
	v.ApplyPage([]models.Notification{note(4, false), note(2, true)}, 2, false)

	snap := v.Snapshot()
	assert.Equal(t, []int64{4, 2, 1}, ids(snap))
	assert.Equal(t, int64(2), snap.UnreadCount)

	// a complete page replaces everything
	v.ApplyPage(nil, 0, true)
	assert.Empty(t, v.Snapshot().Notifications)
	assert.Equal(t, int64(4), v.Snapshot().Watermark)
}

func TestView_CountNeverNegative(t *testing.T) {
	v := NewView()
	v.ApplyBackfill([]models.Notification{note(1, false)})
	v.SetUnreadCount(0)
	v.MarkReadLocal(1)
	assert.Zero(t, v.Snapshot().UnreadCount)

	v.SetUnreadCount(-4)
	assert.Zero(t, v.Snapshot().UnreadCount)
}

func TestView_IgnoresControlFrames(t *testing.T) {
	v := NewView()
	before := v.Snapshot()
	v.ApplyEvent(push.NewPing())
	v.ApplyEvent(push.NewConnected("alice"))
	assert.Equal(t, before, v.Snapshot())
}

func TestView_RestoreUndoesLocalEdits(t *testing.T) {
	v := NewView()
	v.ApplyPage([]models.Notification{note(3, false), note(2, true), note(1, false)}, 2, true)
	before := v.Snapshot()

	v.Restore(v.MarkReadLocal(3))
	assert.Equal(t, before, v.Snapshot())

	v.Restore(v.DeleteLocal(1))
	assert.Equal(t, before, v.Snapshot())

	v.Restore(v.MarkAllReadLocal())
	assert.Equal(t, before, v.Snapshot())

	// nothing changed, nothing to undo
	assert.Empty(t, v.MarkReadLocal(2))
	assert.Empty(t, v.DeleteLocal(99))
}

func TestView_RestoreKeepsLaterDelivery(t *testing.T) {
	v := NewView()
	v.ApplyBackfill([]models.Notification{note(1, false)})

	prior := v.DeleteLocal(1)
	// the item was pushed again before the server answered
	v.ApplyEvent(push.NewNotificationEvent(&models.Notification{ID: 1, UserID: "alice", Type: models.NotificationLike}))
	v.Restore(prior)

	snap := v.Snapshot()
	assert.Equal(t, []int64{1}, ids(snap))
	assert.Equal(t, int64(1), snap.UnreadCount)
}
