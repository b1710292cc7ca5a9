package notifyclient_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"socialhub/internal/microservices/http-api/models"
	"socialhub/internal/microservices/http-api/repository"
	"socialhub/internal/microservices/http-api/router"
	"socialhub/internal/microservices/http-api/service"
	"socialhub/internal/microservices/websocket"
	"socialhub/internal/notifyclient"
	"socialhub/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv      *httptest.Server
	registry *websocket.Registry
	svc      service.NotificationService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewNotificationRepository(testutil.NewTestDB(t))
	registry := websocket.NewRegistry(nil)
	svc := service.NewNotificationService(repo, websocket.NewDispatcher(registry, repo, nil))
	verifier := service.NewJWTVerifier(testutil.TestSecret)

	engine := router.New(router.Deps{
		Notifications: svc,
		Verifier:      verifier,
		Push:          websocket.NewWSHandler(registry, verifier, websocket.ConnOptions{}, nil, nil),
	})
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		registry.CloseAll(1001, "test done")
		srv.Close()
	})
	return &testServer{srv: srv, registry: registry, svc: svc}
}

func (s *testServer) notify(t *testing.T, owner, actor string) *models.Notification {
	t.Helper()
	n, err := s.svc.Create(context.Background(), service.CreateNotificationInput{
		Owner:    owner,
		Type:     models.NotificationLike,
		FromUser: models.Actor{ID: actor, Name: actor},
		Subject:  models.Subject{ID: "post-1"},
	})
	require.NoError(t, err)
	return n
}

// gatedDialer refuses to dial while closed
type gatedDialer struct {
	inner notifyclient.Dialer
	mu    sync.Mutex
	open  bool
}

func (d *gatedDialer) set(open bool) {
	d.mu.Lock()
	d.open = open
	d.mu.Unlock()
}

func (d *gatedDialer) Dial(ctx context.Context, token string) (notifyclient.Stream, error) {
	d.mu.Lock()
	open := d.open
	d.mu.Unlock()
	if !open {
		return nil, errors.New("network unreachable")
	}
	return d.inner.Dial(ctx, token)
}

func (s *testServer) client(t *testing.T, userID string, dialer notifyclient.Dialer) *notifyclient.Client {
	t.Helper()
	pushURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	if dialer == nil {
		dialer = &notifyclient.WSDialer{URL: pushURL}
	}

	c, err := notifyclient.New(notifyclient.Options{
		APIURL:      s.srv.URL,
		PushURL:     pushURL,
		Token:       testutil.NewToken(t, userID),
		BackoffBase: 200 * time.Millisecond,
		BackoffCap:  time.Second,
		Dialer:      dialer,
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond)
}

func TestGapRecovery(t *testing.T) {
	s := newTestServer(t)
	s.notify(t, "alice", "bob")

	pushURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	gate := &gatedDialer{inner: &notifyclient.WSDialer{URL: pushURL}, open: true}
	c := s.client(t, "alice", gate)

	eventually(t, func() bool {
		snap := c.Snapshot()
		return snap.State == notifyclient.StateLive && snap.UnreadCount == 1
	})

	// drop the connection and keep it down
	gate.set(false)
	s.registry.CloseAll(1001, "going away")
	eventually(t, func() bool { return c.State() == notifyclient.StateReconnecting })

	a := s.notify(t, "alice", "carol")
	b := s.notify(t, "alice", "dave")

	gate.set(true)
	c.Reconnect()

	eventually(t, func() bool {
		snap := c.Snapshot()
		return snap.State == notifyclient.StateLive && len(snap.Notifications) == 3 && snap.UnreadCount == 3
	})

	snap := c.Snapshot()
	seen := map[int64]int{}
	for _, n := range snap.Notifications {
		seen[n.ID]++
	}
	assert.Equal(t, 1, seen[a.ID])
	assert.Equal(t, 1, seen[b.ID])
	assert.Equal(t, b.ID, snap.Watermark)
}

func TestMultiDeviceReadPropagates(t *testing.T) {
	s := newTestServer(t)
	n := s.notify(t, "alice", "bob")

	phone := s.client(t, "alice", nil)
	laptop := s.client(t, "alice", nil)

	for _, c := range []*notifyclient.Client{phone, laptop} {
		eventually(t, func() bool { return c.State() == notifyclient.StateLive && c.Snapshot().UnreadCount == 1 })
	}
	eventually(t, func() bool { return s.registry.ConnectionsForUser("alice") == 2 })

	require.NoError(t, phone.MarkRead(context.Background(), n.ID))

	eventually(t, func() bool {
		snap := laptop.Snapshot()
		item, ok := snap.Find(n.ID)
		return ok && item.IsRead && snap.UnreadCount == 0
	})
}

func TestLivePushAndDelete(t *testing.T) {
	s := newTestServer(t)
	c := s.client(t, "alice", nil)
	eventually(t, func() bool { return s.registry.ConnectionsForUser("alice") == 1 })

	n := s.notify(t, "alice", "bob")
	s.notify(t, "bob", "alice") // other user's notification never arrives

	eventually(t, func() bool {
		snap := c.Snapshot()
		_, ok := snap.Find(n.ID)
		return ok && snap.UnreadCount == 1 && len(snap.Notifications) == 1
	})

	require.NoError(t, c.Delete(context.Background(), n.ID))
	eventually(t, func() bool {
		snap := c.Snapshot()
		return len(snap.Notifications) == 0 && snap.UnreadCount == 0
	})

	// already gone on the server
	assert.ErrorIs(t, c.Delete(context.Background(), n.ID), notifyclient.ErrNotFound)
}

func TestBadCredentialGoesOffline(t *testing.T) {
	s := newTestServer(t)
	pushURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"

	authErr := make(chan error, 1)
	c, err := notifyclient.New(notifyclient.Options{
		APIURL:  s.srv.URL,
		PushURL: pushURL,
		Token:   "not-a-token",
		OnAuthError: func(err error) {
			select {
			case authErr <- err:
			default:
			}
		},
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close() })

	select {
	case err := <-authErr:
		assert.ErrorIs(t, err, notifyclient.ErrUnauthorized)
	case <-time.After(3 * time.Second):
		t.Fatal("no auth error reported")
	}
	eventually(t, func() bool { return c.State() == notifyclient.StateOffline })

	// a fresh credential recovers
	c.SetToken(testutil.NewToken(t, "alice"))
	c.Reconnect()
	eventually(t, func() bool { return c.State() == notifyclient.StateLive })
}
