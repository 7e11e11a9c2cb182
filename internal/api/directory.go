package api

import (
	"context"
	"net/http"

	"github.com/scfet/notification-client/internal/model"
)

// Groups lists student groups whose name matches f.Name.
func (c *Client) Groups(ctx context.Context, f model.GroupFilter) ([]model.Group, error) {
	q := &Query{}
	q.Add("name", f.Name)

	var groups []model.Group
	err := c.do(ctx, request{
		op:     "list groups",
		method: http.MethodGet,
		path:   "/groups",
		query:  q,
	}, &groups)
	return groups, err
}

// Students lists active students.
func (c *Client) Students(ctx context.Context, f model.UserFilter) ([]model.User, error) {
	return c.users(ctx, "students", f)
}

// Teachers lists active teachers.
func (c *Client) Teachers(ctx context.Context, f model.UserFilter) ([]model.User, error) {
	return c.users(ctx, "teachers", f)
}

// Administrators lists active administrators.
func (c *Client) Administrators(ctx context.Context, f model.UserFilter) ([]model.User, error) {
	return c.users(ctx, "administrators", f)
}

func (c *Client) users(ctx context.Context, kind string, f model.UserFilter) ([]model.User, error) {
	q := &Query{}
	q.Add("firstName", f.FirstName).
		Add("lastName", f.LastName).
		Add("email", f.Email).
		Add("groupId", f.GroupID).
		Add("isActive", "true")

	var users []model.User
	err := c.do(ctx, request{
		op:     "list " + kind,
		method: http.MethodGet,
		path:   "/users/" + kind,
		query:  q,
	}, &users)
	return users, err
}

// Profile returns the signed-in user.
func (c *Client) Profile(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, request{op: "get profile", method: http.MethodGet, path: "/users/profile"}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
