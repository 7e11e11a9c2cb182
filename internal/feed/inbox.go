package feed

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/scfet/notification-client/internal/logging"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/push"
)

// InboxAPI is the REST surface the Inbox needs.
type InboxAPI interface {
	FetchPage(ctx context.Context, f model.Filter) (*model.Page[model.Notification], error)
	MarkAsRead(ctx context.Context, id string) error
}

// ReadNotifier relays read receipts over the push channel. MarkRead
// reports false when the receipt was dropped.
type ReadNotifier interface {
	MarkRead(id string) bool
}

// Inbox is the received-notifications feed, reconciled with push events.
type Inbox struct {
	*Store[model.Notification]

	api      InboxAPI
	notifier ReadNotifier
	log      logrus.FieldLogger

	mu    sync.Mutex
	state push.State
}

// NewInbox wires a Store to the REST client. notifier may be nil when no
// push channel is used.
func NewInbox(api InboxAPI, notifier ReadNotifier, defaults model.Filter, log logrus.FieldLogger) *Inbox {
	store := NewStore(api.FetchPage, defaults, log)
	store.SetMerge(mergeRead)
	return &Inbox{
		Store:    store,
		api:      api,
		notifier: notifier,
		log:      logging.Component(log, "inbox"),
	}
}

// mergeRead takes the incoming content but never lets a read item revert
// to unread.
func mergeRead(old, incoming model.Notification) model.Notification {
	incoming.IsRead = old.IsRead || incoming.IsRead
	return incoming
}

// ApplyReadStateChanged marks id as read. It reports whether anything
// changed.
func (in *Inbox) ApplyReadStateChanged(id string) bool {
	return in.Mutate(id, func(n *model.Notification) bool {
		if n.IsRead {
			return false
		}
		n.IsRead = true
		return true
	})
}

// MarkRead records that the user read id: first on the server, then
// locally, then as a push receipt when the channel is up. Only the REST
// outcome is returned.
func (in *Inbox) MarkRead(ctx context.Context, id string) error {
	if n, ok := in.Find(id); ok && n.IsRead {
		return nil
	}

	if err := in.api.MarkAsRead(ctx, id); err != nil {
		in.log.WithError(err).WithField("notification_id", id).Warn("mark as read failed")
		return err
	}

	in.ApplyReadStateChanged(id)
	if in.notifier != nil && !in.notifier.MarkRead(id) {
		in.log.WithField("notification_id", id).Debug("read receipt not pushed")
	}
	return nil
}

// UnreadCount counts unread items currently held.
func (in *Inbox) UnreadCount() int {
	count := 0
	for _, n := range in.Items() {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// ChannelState returns the last state reported by Apply.
func (in *Inbox) ChannelState() push.State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// Apply reconciles one push event. It reports whether the inbox changed.
func (in *Inbox) Apply(ev push.Event) bool {
	switch ev.Kind {
	case push.EventReceived:
		in.ApplyReceived(ev.Notification)
		return true
	case push.EventRemoved:
		return in.ApplyRemoved(ev.ID)
	case push.EventReadStateChanged:
		return in.ApplyReadStateChanged(ev.ID)
	case push.EventUpdated:
		return in.ApplyUpdated(ev.Notification)
	case push.EventStateChanged:
		in.mu.Lock()
		changed := in.state != ev.State
		in.state = ev.State
		in.mu.Unlock()
		return changed
	}
	return false
}
