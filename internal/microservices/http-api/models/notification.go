package models

import "time"

// NotificationType determines rendering and filtering on the client
type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
	NotificationMessage NotificationType = "message"
	NotificationGeneric NotificationType = "generic"
)

// Valid reports whether t is one of the known notification types
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLike, NotificationComment, NotificationFollow, NotificationMessage, NotificationGeneric:
		return true
	}
	return false
}

// Actor is the display snapshot of the user that caused the notification,
// copied at creation time so delivery needs no join.
type Actor struct {
	ID     string `gorm:"not null" json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Subject points at the affected resource (post id + thumbnail), used for deep links only
type Subject struct {
	ID        string `json:"id,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

type Notification struct {
	ID        int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string           `gorm:"not null;index:idx_notifications_owner_read,priority:1" json:"owner"`
	Type      NotificationType `gorm:"type:varchar(16);not null" json:"type"`
	FromUser  Actor            `gorm:"embedded;embeddedPrefix:from_user_" json:"fromUser"`
	Subject   Subject          `gorm:"embedded;embeddedPrefix:subject_" json:"subject"`
	Message   string           `json:"message,omitempty"`
	IsRead    bool             `gorm:"not null;default:false;index:idx_notifications_owner_read,priority:2" json:"isRead"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"createdAt"`
}

func (Notification) TableName() string {
	return "notifications"
}
