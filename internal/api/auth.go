package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/scfet/notification-client/internal/model"
)

type loginResponse struct {
	Message string      `json:"message"`
	Success bool        `json:"success"`
	Data    *model.User `json:"data"`
}

// Login exchanges credentials for the user record and bearer token.
// A refused login is reported as an AuthError carrying the server's
// message.
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	const op = "login"
	r, err := jsonRequest(op, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var resp loginResponse
	err = c.do(ctx, r, &resp)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest {
		return nil, &AuthError{Op: op, Message: statusErr.Message}
	}
	if err != nil {
		return nil, err
	}
	if !resp.Success || resp.Data == nil || resp.Data.Token == "" {
		msg := resp.Message
		if msg == "" {
			msg = "login refused"
		}
		return nil, &AuthError{Op: op, Message: msg}
	}
	return resp.Data, nil
}
