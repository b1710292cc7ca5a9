package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"socialhub/internal/microservices/http-api/models"
	"socialhub/internal/microservices/http-api/repository"
)

var ErrInvalidNotification = errors.New("invalid notification")

// Dispatcher is told about every committed store mutation. Calls happen after
// the store write succeeds and before the service returns.
type Dispatcher interface {
	NotificationCreated(ctx context.Context, notification *models.Notification)
	NotificationRead(ctx context.Context, userID string, notificationID int64)
	NotificationDeleted(ctx context.Context, userID string, notificationID int64)
	AllNotificationsRead(ctx context.Context, userID string)
}

// CreateNotificationInput is what the like/comment/follow/message handlers send
type CreateNotificationInput struct {
	Owner    string                  `json:"owner" binding:"required"`
	Type     models.NotificationType `json:"type" binding:"required"`
	FromUser models.Actor            `json:"fromUser"`
	Subject  models.Subject          `json:"subject"`
	Message  string                  `json:"message"`
}

// Page is one page of a user's notifications along with the authoritative unread count
type Page struct {
	Notifications []models.Notification
	Total         int64
	Page          int
	Limit         int
	UnreadCount   int64
}

type NotificationService interface {
	Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error)
	List(ctx context.Context, userID string, filter repository.ListFilter) (*Page, error)
	ListSince(ctx context.Context, userID string, sinceID int64) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkAsRead(ctx context.Context, userID string, notificationID int64) error
	MarkAllAsRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, userID string, notificationID int64) error
}

// userLockStripes bounds the number of mutexes; users that share a stripe
// only serialize against each other.
const userLockStripes = 256

type notificationService struct {
	repo       repository.NotificationRepository
	dispatcher Dispatcher

	// held from store write through dispatch so events and counts leave in commit order
	userLocks [userLockStripes]sync.Mutex
}

func (s *notificationService) lockUser(userID string) func() {
	h := fnv.New32a()
	h.Write([]byte(userID))
	mu := &s.userLocks[h.Sum32()%userLockStripes]
	mu.Lock()
	return mu.Unlock
}

func NewNotificationService(repo repository.NotificationRepository, dispatcher Dispatcher) NotificationService {
	return &notificationService{repo: repo, dispatcher: dispatcher}
}

func (s *notificationService) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	if input.Owner == "" || input.FromUser.ID == "" {
		return nil, fmt.Errorf("%w: owner and fromUser.id are required", ErrInvalidNotification)
	}
	if !input.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, input.Type)
	}
	// no self notifications (liking your own post)
	if input.Owner == input.FromUser.ID {
		return nil, fmt.Errorf("%w: owner and actor are the same user", ErrInvalidNotification)
	}

	notification := &models.Notification{
		UserID:   input.Owner,
		Type:     input.Type,
		FromUser: input.FromUser,
		Subject:  input.Subject,
		Message:  input.Message,
	}
	defer s.lockUser(notification.UserID)()
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, err
	}

	s.dispatcher.NotificationCreated(ctx, notification)
	return notification, nil
}

func (s *notificationService) List(ctx context.Context, userID string, filter repository.ListFilter) (*Page, error) {
	notifications, total, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > repository.MaxPageSize {
		limit = repository.MaxPageSize
	}

	return &Page{
		Notifications: notifications,
		Total:         total,
		Page:          page,
		Limit:         limit,
		UnreadCount:   unread,
	}, nil
}

func (s *notificationService) ListSince(ctx context.Context, userID string, sinceID int64) ([]models.Notification, error) {
	return s.repo.ListSince(ctx, userID, sinceID, repository.MaxPageSize)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID string, notificationID int64) error {
	defer s.lockUser(userID)()
	if err := s.repo.MarkAsRead(ctx, userID, notificationID); err != nil {
		return err
	}
	s.dispatcher.NotificationRead(ctx, userID, notificationID)
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID string) error {
	defer s.lockUser(userID)()
	if _, err := s.repo.MarkAllAsRead(ctx, userID); err != nil {
		return err
	}
	// dispatched even when no row changed
	s.dispatcher.AllNotificationsRead(ctx, userID)
	return nil
}

func (s *notificationService) Delete(ctx context.Context, userID string, notificationID int64) error {
	defer s.lockUser(userID)()
	if err := s.repo.Delete(ctx, userID, notificationID); err != nil {
		return err
	}
	s.dispatcher.NotificationDeleted(ctx, userID, notificationID)
	return nil
}
