package api

import "net/http"

// UnauthorizedTransport calls OnUnauthorized when a request that carried
// an Authorization header comes back 401. Unauthenticated calls such as
// login are left alone so a wrong password does not end the session.
type UnauthorizedTransport struct {
	Base           http.RoundTripper
	OnUnauthorized func()
}

func (t *UnauthorizedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized &&
		req.Header.Get("Authorization") != "" &&
		t.OnUnauthorized != nil {
		t.OnUnauthorized()
	}
	return resp, nil
}
