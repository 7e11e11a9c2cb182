package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// NotificationType classifies a notification's urgency.
type NotificationType string

const (
	NotificationInfo    NotificationType = "Info"
	NotificationWarning NotificationType = "Warning"
	NotificationUrgent  NotificationType = "Urgent"
	NotificationEvent   NotificationType = "Event"
)

// NotificationTypes lists every type in wire-ordinal order (Info=1 … Event=4).
var NotificationTypes = []NotificationType{
	NotificationInfo,
	NotificationWarning,
	NotificationUrgent,
	NotificationEvent,
}

// ParseNotificationType maps an enum name or ordinal to a type.
// Unknown values resolve to Info.
func ParseNotificationType(s string) NotificationType {
	for i, t := range NotificationTypes {
		if s == string(t) || s == strconv.Itoa(i+1) {
			return t
		}
	}
	return NotificationInfo
}

// Ordinal returns the backend enum value for t.
func (t NotificationType) Ordinal() int {
	for i, known := range NotificationTypes {
		if t == known {
			return i + 1
		}
	}
	return 1
}

// UnmarshalJSON accepts both "Urgent" and 3. The backend serializes the
// received feed with names and the sent feed with ordinals.
func (t *NotificationType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = NotificationInfo
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding notification type: %w", err)
		}
		*t = ParseNotificationType(s)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding notification type: %w", err)
	}
	*t = ParseNotificationType(strconv.Itoa(n))
	return nil
}

// Notification is a single item in the user's received feed.
type Notification struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Type       NotificationType `json:"type"`
	SenderName string           `json:"senderName"`
	CreatedAt  time.Time        `json:"createdAt"`

	// IsRead flips false→true once and never reverts.
	IsRead bool `json:"isRead"`

	// ImageURL is optional; empty means no attachment.
	ImageURL string `json:"imageUrl,omitempty"`
}

// ItemID implements feed.Item.
func (n Notification) ItemID() string { return n.ID }

// HasImage reports whether an image is attached.
func (n Notification) HasImage() bool { return n.ImageURL != "" }

// SentNotification is a notification authored by the current user, as
// listed in the sent feed with delivery statistics.
type SentNotification struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Type           NotificationType `json:"type"`
	CreatedAt      time.Time        `json:"createdAt"`
	TotalReceivers int              `json:"totalReceivers"`
	ReadReceivers  int              `json:"readReceivers"`
	ImageURL       string           `json:"imageUrl,omitempty"`
}

// ItemID implements feed.Item.
func (n SentNotification) ItemID() string { return n.ID }

// ReadPercentage returns the share of receivers that read the notification.
func (n SentNotification) ReadPercentage() float64 {
	if n.TotalReceivers <= 0 {
		return 0
	}
	return float64(n.ReadReceivers) / float64(n.TotalReceivers) * 100
}
