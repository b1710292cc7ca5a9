package websocket

import (
	"encoding/json"
	"log/slog"

	"socialhub/internal/microservices/http-api/models"
)

// Message protocol definitions

type EventType string

const ( // server -> client
	TypeConnected            EventType = "connected"              // handshake acknowledged, room joined
	TypeNewNotification      EventType = "new-notification"       // notification stored
	TypeNotificationRead     EventType = "notification-read"      // single mark-read
	TypeNotificationDeleted  EventType = "notification-deleted"   // notification removed
	TypeAllNotificationsRead EventType = "all-notifications-read" // bulk mark-read
	TypeUnreadCountUpdated   EventType = "unread-count-updated"   // authoritative count
	TypePing                 EventType = "ping"                   // liveness check
)

const ( // client -> server
	TypeJoin EventType = "join"
	TypePong EventType = "pong"
)

// Envelope is the single frame shape on the push channel: a type tag plus the
// payload fields that type uses.
type Envelope struct {
	Type           EventType            `json:"type"`
	UserID         string               `json:"userId,omitempty"`
	Notification   *models.Notification `json:"notification,omitempty"`
	NotificationID int64                `json:"notificationId,omitempty"`
	Count          *int64               `json:"count,omitempty"`
}

func NewConnected(userID string) *Envelope {
	return &Envelope{Type: TypeConnected, UserID: userID}
}

func NewNotificationEvent(n *models.Notification) *Envelope {
	return &Envelope{Type: TypeNewNotification, Notification: n}
}

func NewNotificationRead(notificationID int64) *Envelope {
	return &Envelope{Type: TypeNotificationRead, NotificationID: notificationID}
}

func NewNotificationDeleted(notificationID int64) *Envelope {
	return &Envelope{Type: TypeNotificationDeleted, NotificationID: notificationID}
}

func NewAllNotificationsRead() *Envelope {
	return &Envelope{Type: TypeAllNotificationsRead}
}

// NewUnreadCount always carries the count, zero included
func NewUnreadCount(count int64) *Envelope {
	return &Envelope{Type: TypeUnreadCountUpdated, Count: &count}
}

func NewPing() *Envelope {
	return &Envelope{Type: TypePing}
}

func NewJoin(userID string) *Envelope {
	return &Envelope{Type: TypeJoin, UserID: userID}
}

func NewPong() *Envelope {
	return &Envelope{Type: TypePong}
}

// ToJSON: marshal Envelope struct to JSON
func (e *Envelope) ToJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("Failed to marshal envelope to JSON", "type", e.Type, "error", err)
		return nil, err
	}
	return data, nil
}

// EnvelopeFromJSON: unmarshal JSON data to Envelope struct
func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
