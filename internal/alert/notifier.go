package alert

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Notifier shows an Alert to the user.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a Alert) error

func (f NotifierFunc) Notify(ctx context.Context, a Alert) error { return f(ctx, a) }

// LogNotifier writes alerts to a logger at info level.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) Notify(_ context.Context, a Alert) error {
	entry := n.Log.WithFields(logrus.Fields{
		"notification_id": a.NotificationID,
		"type":            string(a.Type),
	})
	if a.ImagePath != "" {
		entry = entry.WithField("image", a.ImagePath)
	}
	entry.Infof("%s: %s", a.Title, a.Body)
	return nil
}

// BellNotifier rings the terminal bell and prints one line per alert.
type BellNotifier struct {
	W io.Writer
}

func (n BellNotifier) Notify(_ context.Context, a Alert) error {
	_, err := fmt.Fprintf(n.W, "\a[%s] %s\n", a.Title, a.Body)
	return err
}

// Multi fans an alert out to every notifier, joining their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
