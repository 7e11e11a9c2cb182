package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/scfet/notification-client/internal/model"
)

// FetchPage returns one page of the signed-in user's received notifications.
func (c *Client) FetchPage(ctx context.Context, f model.Filter) (*model.Page[model.Notification], error) {
	var page model.Page[model.Notification]
	err := c.do(ctx, request{
		op:     "fetch notifications",
		method: http.MethodGet,
		path:   "/notifications/my",
		query:  filterQuery(f),
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// FetchSentPage returns one page of notifications the user authored.
func (c *Client) FetchSentPage(ctx context.Context, f model.Filter) (*model.Page[model.SentNotification], error) {
	var page model.Page[model.SentNotification]
	err := c.do(ctx, request{
		op:     "fetch sent notifications",
		method: http.MethodGet,
		path:   "/notifications/sent",
		query:  filterQuery(f),
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// GetNotification fetches a single notification by id.
func (c *Client) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	err := c.do(ctx, request{
		op:     "get notification",
		method: http.MethodGet,
		path:   "/notifications/" + url.PathEscape(id),
	}, &n)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkAsRead records that the user read notification id.
func (c *Client) MarkAsRead(ctx context.Context, id string) error {
	return c.do(ctx, request{
		op:     "mark as read",
		method: http.MethodPut,
		path:   "/notifications/" + url.PathEscape(id) + "/mark-as-read",
	}, nil)
}

// RemoveNotification deletes a notification the user authored.
func (c *Client) RemoveNotification(ctx context.Context, id string) error {
	return c.do(ctx, request{
		op:     "remove notification",
		method: http.MethodDelete,
		path:   "/notifications/" + url.PathEscape(id) + "/remove",
	}, nil)
}

// Attachment is an image uploaded with a notification.
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// CreateRequest is the multipart payload for sending or editing a
// notification. No targets means the server fans out to everyone.
type CreateRequest struct {
	Title         string
	Message       string
	Type          model.NotificationType
	TargetUserIDs []string
	TargetGroupID string
	Image         *Attachment
}

// SendNotification creates and delivers a notification.
func (c *Client) SendNotification(ctx context.Context, cr CreateRequest) error {
	r, err := multipartRequest("send notification", http.MethodPost, "/notifications", cr)
	if err != nil {
		return err
	}
	return c.do(ctx, r, nil)
}

// UpdateNotification replaces the content of a notification the user
// authored. Receivers are told through the hub's UpdateNotification event.
func (c *Client) UpdateNotification(ctx context.Context, id string, cr CreateRequest) error {
	r, err := multipartRequest("update notification", http.MethodPut, "/notifications/"+url.PathEscape(id), cr)
	if err != nil {
		return err
	}
	return c.do(ctx, r, nil)
}

func multipartRequest(op, method, path string, cr CreateRequest) (request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"Title", cr.Title},
		{"Message", cr.Message},
		{"Type", string(cr.Type)},
	}
	for _, id := range cr.TargetUserIDs {
		fields = append(fields, struct{ name, value string }{"TargetUserIds", id})
	}
	if cr.TargetGroupID != "" {
		fields = append(fields, struct{ name, value string }{"TargetGroupId", cr.TargetGroupID})
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return request{}, fmt.Errorf("%s: writing %s: %w", op, f.name, err)
		}
	}

	if cr.Image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="Image"; filename=%q`, cr.Image.FileName))
		contentType := cr.Image.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(cr.Image.Data)
		}
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return request{}, fmt.Errorf("%s: creating image part: %w", op, err)
		}
		if _, err := part.Write(cr.Image.Data); err != nil {
			return request{}, fmt.Errorf("%s: writing image: %w", op, err)
		}
	}

	if err := w.Close(); err != nil {
		return request{}, fmt.Errorf("%s: closing multipart body: %w", op, err)
	}
	return request{
		op:          op,
		method:      method,
		path:        path,
		body:        &buf,
		contentType: w.FormDataContentType(),
	}, nil
}

func filterQuery(f model.Filter) *Query {
	f = f.Normalized()
	q := &Query{}
	q.AddInt("page", f.Page).
		AddInt("pageSize", f.PageSize).
		Add("sortBy", string(f.SortBy)).
		Add("sortOrder", string(f.SortOrder)).
		AddDate("startDate", f.StartDate).
		AddDate("endDate", f.EndDate)
	return q
}
