// Package session holds the signed-in user's identity and bearer token.
// A Session is created once at startup and handed to every component that
// needs the token; nothing reads credentials from globals.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/scfet/notification-client/internal/credential"
	"github.com/scfet/notification-client/internal/model"
)

// Credential store keys.
const (
	KeyToken = "auth_token"
	KeyUser  = "user_id"
	KeyEmail = "user_email"
	KeyName  = "user_name"
	KeyRole  = "user_role"
)

var allKeys = []string{KeyToken, KeyUser, KeyEmail, KeyName, KeyRole}

// Info is what a successful login yields.
type Info struct {
	Token  string
	UserID string
	Email  string
	Name   string
	Role   model.Role
}

// InfoFromUser converts the login payload.
func InfoFromUser(u model.User) Info {
	return Info{
		Token:  u.Token,
		UserID: u.UserID,
		Email:  u.Email,
		Name:   u.FullName(),
		Role:   u.Role,
	}
}

// Session is safe for concurrent use.
type Session struct {
	store credential.Store

	mu   sync.RWMutex
	info Info
}

// New returns an empty session persisting to store.
func New(store credential.Store) *Session {
	return &Session{store: store}
}

// Load reads any persisted session. Missing keys leave the session
// signed out.
func (s *Session) Load() error {
	var info Info
	fields := map[string]*string{
		KeyToken: &info.Token,
		KeyUser:  &info.UserID,
		KeyEmail: &info.Email,
		KeyName:  &info.Name,
	}
	for key, dst := range fields {
		v, err := s.store.Get(key)
		if errors.Is(err, credential.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}
		*dst = v
	}
	role, err := s.store.Get(KeyRole)
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		return fmt.Errorf("loading session: %w", err)
	}
	info.Role = model.Role(role)

	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
	return nil
}

// Login persists info and makes it current.
func (s *Session) Login(info Info) error {
	if info.Token == "" {
		return errors.New("login: empty token")
	}
	values := map[string]string{
		KeyToken: info.Token,
		KeyUser:  info.UserID,
		KeyEmail: info.Email,
		KeyName:  info.Name,
		KeyRole:  string(info.Role),
	}
	for _, key := range allKeys {
		if err := s.store.Set(key, values[key]); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
	}

	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
	return nil
}

// Logout clears the in-memory and persisted session. The in-memory copy
// is cleared even when the store fails.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.info = Info{}
	s.mu.Unlock()

	var errs []error
	for _, key := range allKeys {
		if err := s.store.Delete(key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Token returns the bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.Token
}

// Info returns a copy of the current identity.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// SignedIn reports whether a token is present.
func (s *Session) SignedIn() bool {
	return s.Token() != ""
}

// Expired reports whether the token's exp claim is before now. The
// signature is not verified; the server remains the authority. Tokens
// without a parseable exp claim are treated as unexpired.
func (s *Session) Expired(now time.Time) bool {
	token := s.Token()
	if token == "" {
		return false
	}
	exp, ok := ExpiresAt(token)
	return ok && !exp.After(now)
}

// ExpiresAt extracts the exp claim from an unverified JWT.
func ExpiresAt(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
