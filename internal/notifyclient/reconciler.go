package notifyclient

import (
	"context"
	"sync"
	"sync/atomic"

	"socialhub/internal/microservices/http-api/models"
	push "socialhub/internal/microservices/websocket"
)

// Update is one change for the view. Push events, poll responses, local
// edits and state changes are all Updates applied in arrival order.
type Update interface {
	apply(v *View)
}

type EventUpdate struct{ Event *push.Envelope }

type PageUpdate struct {
	Notifications []models.Notification
	UnreadCount   int64
	Complete      bool // page holds every notification the server has
}

type BackfillUpdate struct{ Notifications []models.Notification }

type CountUpdate struct{ Count int64 }

type StateUpdate struct{ State ConnectionState }

type LocalOp int

const (
	LocalMarkRead LocalOp = iota
	LocalMarkAllRead
	LocalDelete
)

func (op LocalOp) String() string {
	switch op {
	case LocalMarkRead:
		return "mark_read"
	case LocalMarkAllRead:
		return "mark_all_read"
	case LocalDelete:
		return "delete"
	}
	return "unknown"
}

type LocalUpdate struct {
	Op LocalOp
	ID int64

	// prior, when set, receives the items as they were before the edit.
	// It must be buffered.
	prior chan<- []models.Notification
}

// RestoreUpdate reverts a local edit the server rejected
type RestoreUpdate struct{ Notifications []models.Notification }

func (u EventUpdate) apply(v *View)    { v.ApplyEvent(u.Event) }
func (u PageUpdate) apply(v *View)     { v.ApplyPage(u.Notifications, u.UnreadCount, u.Complete) }
func (u BackfillUpdate) apply(v *View) { v.ApplyBackfill(u.Notifications) }
func (u CountUpdate) apply(v *View)    { v.SetUnreadCount(u.Count) }
func (u StateUpdate) apply(v *View)    { v.SetState(u.State) }

func (u RestoreUpdate) apply(v *View) { v.Restore(u.Notifications) }

func (u LocalUpdate) apply(v *View) {
	var prior []models.Notification
	switch u.Op {
	case LocalMarkRead:
		prior = v.MarkReadLocal(u.ID)
	case LocalMarkAllRead:
		prior = v.MarkAllReadLocal()
	case LocalDelete:
		prior = v.DeleteLocal(u.ID)
	}
	if u.prior != nil {
		u.prior <- prior
	}
}

// Reconciler owns the View on a single goroutine. Each update is fully
// applied before the next one is taken.
type Reconciler struct {
	view    *View
	updates chan Update
	changes chan Snapshot
	latest  atomic.Pointer[Snapshot]

	done     chan struct{}
	stopOnce sync.Once
	finished chan struct{}
}

func NewReconciler() *Reconciler {
	r := &Reconciler{
		view:     NewView(),
		updates:  make(chan Update, 64),
		changes:  make(chan Snapshot, 1),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	snap := r.view.Snapshot()
	r.latest.Store(&snap)
	return r
}

// Submit queues u. It returns false once the reconciler has stopped or ctx ends.
func (r *Reconciler) Submit(ctx context.Context, u Update) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	select {
	case r.updates <- u:
		return true
	case <-r.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Run applies updates until Stop is called. Changes is closed on return.
func (r *Reconciler) Run() {
	defer close(r.finished)
	defer close(r.changes)

	for {
		select {
		case <-r.done:
			return
		case u := <-r.updates:
			u.apply(r.view)
			r.publish(r.view.Snapshot())
		}
	}
}

// publish keeps only the newest snapshot in changes
func (r *Reconciler) publish(snap Snapshot) {
	r.latest.Store(&snap)
	select {
	case <-r.changes:
	default:
	}
	select {
	case r.changes <- snap:
	default:
	}
}

// Stop ends Run and waits for it. Pending updates are discarded.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
	<-r.finished
}

// stopped is closed once Stop has been called
func (r *Reconciler) stopped() <-chan struct{} {
	return r.done
}

func (r *Reconciler) Snapshot() Snapshot {
	return *r.latest.Load()
}

// Changes delivers the latest snapshot after every applied update. Slow
// readers only see the newest one.
func (r *Reconciler) Changes() <-chan Snapshot {
	return r.changes
}
