package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"socialhub/internal/microservices/http-api/models"
	"socialhub/internal/microservices/http-api/repository"
	"socialhub/internal/microservices/http-api/service"
	"socialhub/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDispatcher mocks the Dispatcher interface
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) NotificationCreated(ctx context.Context, notification *models.Notification) {
	m.Called(ctx, notification)
}

func (m *MockDispatcher) NotificationRead(ctx context.Context, userID string, notificationID int64) {
	m.Called(ctx, userID, notificationID)
}

func (m *MockDispatcher) NotificationDeleted(ctx context.Context, userID string, notificationID int64) {
	m.Called(ctx, userID, notificationID)
}

func (m *MockDispatcher) AllNotificationsRead(ctx context.Context, userID string) {
	m.Called(ctx, userID)
}

func newTestService(t *testing.T) (service.NotificationService, *MockDispatcher) {
	dispatcher := new(MockDispatcher)
	repo := repository.NewNotificationRepository(testutil.NewTestDB(t))
	return service.NewNotificationService(repo, dispatcher), dispatcher
}

func likeFrom(actor, owner string) service.CreateNotificationInput {
	return service.CreateNotificationInput{
		Owner:    owner,
		Type:     models.NotificationLike,
		FromUser: models.Actor{ID: actor, Name: actor},
		Subject:  models.Subject{ID: "post-1", Thumbnail: "https://cdn.test/p1.jpg"},
		Message:  actor + " liked your post",
	}
}

func TestCreate_DispatchesAfterCommit(t *testing.T) {
	svc, dispatcher := newTestService(t)
	ctx := context.Background()

	dispatcher.On("NotificationCreated", ctx, mock.MatchedBy(func(n *models.Notification) bool {
		return n.ID != 0 && n.UserID == "alice"
	})).Once()

	n, err := svc.Create(ctx, likeFrom("bob", "alice"))
	require.NoError(t, err)
	assert.Equal(t, "bob", n.FromUser.ID)
	assert.Equal(t, "post-1", n.Subject.ID)

	dispatcher.AssertExpectations(t)
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	svc, dispatcher := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input service.CreateNotificationInput
	}{
		{"self notification", likeFrom("alice", "alice")},
		{"unknown type", service.CreateNotificationInput{Owner: "alice", Type: "poke", FromUser: models.Actor{ID: "bob"}}},
		{"missing owner", service.CreateNotificationInput{Type: models.NotificationLike, FromUser: models.Actor{ID: "bob"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.input)
			assert.ErrorIs(t, err, service.ErrInvalidNotification)
		})
	}

	dispatcher.AssertNotCalled(t, "NotificationCreated", mock.Anything, mock.Anything)
}

func TestMarkAsRead_NoDispatchOnFailure(t *testing.T) {
	svc, dispatcher := newTestService(t)
	ctx := context.Background()

	err := svc.MarkAsRead(ctx, "alice", 999)
	assert.ErrorIs(t, err, repository.ErrNotificationNotFound)
	dispatcher.AssertNotCalled(t, "NotificationRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkAsRead_DispatchesOnSuccess(t *testing.T) {
	svc, dispatcher := newTestService(t)
	ctx := context.Background()

	dispatcher.On("NotificationCreated", ctx, mock.Anything)
	n, err := svc.Create(ctx, likeFrom("bob", "alice"))
	require.NoError(t, err)

	dispatcher.On("NotificationRead", ctx, "alice", n.ID).Once()
	require.NoError(t, svc.MarkAsRead(ctx, "alice", n.ID))

	count, err := svc.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)
	dispatcher.AssertExpectations(t)
}

func TestDelete_AlreadyDeletedIsSurfaced(t *testing.T) {
	svc, dispatcher := newTestService(t)
	ctx := context.Background()

	dispatcher.On("NotificationCreated", ctx, mock.Anything)
	n, err := svc.Create(ctx, likeFrom("bob", "alice"))
	require.NoError(t, err)

	dispatcher.On("NotificationDeleted", ctx, "alice", n.ID).Once()
	require.NoError(t, svc.Delete(ctx, "alice", n.ID))

	err = svc.Delete(ctx, "alice", n.ID)
	assert.ErrorIs(t, err, repository.ErrNotificationNotFound)
	dispatcher.AssertNumberOfCalls(t, "NotificationDeleted", 1)
}

func TestMarkAllAsRead_Dispatches(t *testing.T) {
	svc, dispatcher := newTestService(t)
	ctx := context.Background()

	dispatcher.On("AllNotificationsRead", ctx, "alice").Once()
	require.NoError(t, svc.MarkAllAsRead(ctx, "alice"))
	dispatcher.AssertExpectations(t)
}

func TestList_IncludesUnreadCount(t *testing.T) {
	svc, dispatcher := newTestService(t)
	ctx := context.Background()

	dispatcher.On("NotificationCreated", ctx, mock.Anything)
	dispatcher.On("NotificationRead", ctx, "alice", mock.Anything)
	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, likeFrom("bob", "alice"))
		require.NoError(t, err)
	}
	page, err := svc.List(ctx, "alice", repository.ListFilter{Limit: 2})
	require.NoError(t, err)
	require.NoError(t, svc.MarkAsRead(ctx, "alice", page.Notifications[0].ID))

	page, err = svc.List(ctx, "alice", repository.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, int64(2), page.UnreadCount)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)
}

// recordingRepo logs each committed read so tests can check ordering
type recordingRepo struct {
	repository.NotificationRepository
	log *eventLog
}

func (r *recordingRepo) MarkAsRead(ctx context.Context, userID string, notificationID int64) error {
	if err := r.NotificationRepository.MarkAsRead(ctx, userID, notificationID); err != nil {
		return err
	}
	r.log.add(fmt.Sprintf("commit %s/%d", userID, notificationID))
	return nil
}

// gatedDispatcher blocks the first read dispatch until release is closed
type gatedDispatcher struct {
	log     *eventLog
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (d *gatedDispatcher) NotificationCreated(context.Context, *models.Notification) {}
func (d *gatedDispatcher) NotificationDeleted(context.Context, string, int64) {}
func (d *gatedDispatcher) AllNotificationsRead(context.Context, string) {}

func (d *gatedDispatcher) NotificationRead(_ context.Context, userID string, notificationID int64) {
	first := false
	d.once.Do(func() { first = true })
	if first {
		close(d.entered)
		<-d.release
	}
	d.log.add(fmt.Sprintf("dispatch %s/%d", userID, notificationID))
}

type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func TestMutations_DispatchInCommitOrderPerUser(t *testing.T) {
	log := &eventLog{}
	base := repository.NewNotificationRepository(testutil.NewTestDB(t))
	dispatcher := &gatedDispatcher{log: log, entered: make(chan struct{}), release: make(chan struct{})}
	svc := service.NewNotificationService(&recordingRepo{NotificationRepository: base, log: log}, dispatcher)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 2; i++ {
		n, err := svc.Create(ctx, likeFrom("bob", "alice"))
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.MarkAsRead(ctx, "alice", ids[0]))
	}()
	<-dispatcher.entered

	// a second device marks another notification while the first dispatch is in flight
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.MarkAsRead(ctx, "alice", ids[1]))
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{fmt.Sprintf("commit alice/%d", ids[0])}, log.snapshot())

	close(dispatcher.release)
	wg.Wait()

	assert.Equal(t, []string{
		fmt.Sprintf("commit alice/%d", ids[0]),
		fmt.Sprintf("dispatch alice/%d", ids[0]),
		fmt.Sprintf("commit alice/%d", ids[1]),
		fmt.Sprintf("dispatch alice/%d", ids[1]),
	}, log.snapshot())
}
