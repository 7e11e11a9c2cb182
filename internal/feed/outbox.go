package feed

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/scfet/notification-client/internal/model"
)

// OutboxAPI is the REST surface the Outbox needs.
type OutboxAPI interface {
	FetchSentPage(ctx context.Context, f model.Filter) (*model.Page[model.SentNotification], error)
	RemoveNotification(ctx context.Context, id string) error
}

// Outbox is the feed of notifications the user sent.
type Outbox struct {
	*Store[model.SentNotification]
	api OutboxAPI
}

func NewOutbox(api OutboxAPI, defaults model.Filter, log logrus.FieldLogger) *Outbox {
	return &Outbox{
		Store: NewStore(api.FetchSentPage, defaults, log),
		api:   api,
	}
}

// Delete removes id on the server and, once accepted, locally.
func (o *Outbox) Delete(ctx context.Context, id string) error {
	if err := o.api.RemoveNotification(ctx, id); err != nil {
		return err
	}
	o.ApplyRemoved(id)
	return nil
}
