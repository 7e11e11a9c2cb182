package testutil

import (
	"fmt"
	"time"

	"github.com/scfet/notification-client/internal/model"
)

// Notifications returns n unread notifications n1..nN, newest first.
func Notifications(n int) []model.Notification {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]model.Notification, n)
	for i := range out {
		out[i] = model.Notification{
			ID:         fmt.Sprintf("n%d", i+1),
			Title:      fmt.Sprintf("Notice %d", i+1),
			Message:    fmt.Sprintf("Message %d", i+1),
			Type:       model.NotificationInfo,
			SenderName: "Dean's office",
			CreatedAt:  base.Add(-time.Duration(i) * time.Hour),
		}
	}
	return out
}

// SentNotifications returns n sent notifications s1..sN.
func SentNotifications(n int) []model.SentNotification {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]model.SentNotification, n)
	for i := range out {
		out[i] = model.SentNotification{
			ID:             fmt.Sprintf("s%d", i+1),
			Title:          fmt.Sprintf("Sent %d", i+1),
			Message:        "Body",
			Type:           model.NotificationEvent,
			CreatedAt:      base.Add(-time.Duration(i) * time.Hour),
			TotalReceivers: 10,
			ReadReceivers:  i,
		}
	}
	return out
}

// StaticToken is a TokenSource returning a fixed value.
type StaticToken string

func (s StaticToken) Token() string { return string(s) }
