package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scfet/notification-client/internal/alert"
	"github.com/scfet/notification-client/internal/api"
	"github.com/scfet/notification-client/internal/compose"
	"github.com/scfet/notification-client/internal/credential"
	"github.com/scfet/notification-client/internal/feed"
	"github.com/scfet/notification-client/internal/logging"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/push"
	"github.com/scfet/notification-client/internal/session"
	"github.com/scfet/notification-client/internal/store"
)

// ErrSignedOut is returned by operations that need a session when there
// is none.
var ErrSignedOut = errors.New("not signed in")

// Services is the object graph shared by the TUI and the CLI commands.
type Services struct {
	Config    *model.AppConfig
	Session   *session.Session
	API       *api.Client
	Push      *push.Channel
	Inbox     *feed.Inbox
	Outbox    *feed.Outbox
	Presenter *alert.Presenter
	Store     store.Store
	Log       logrus.FieldLogger

	// Defaults is the filter every list starts from.
	Defaults model.Filter

	unauthorized chan struct{}
}

// Deps are the externally constructed pieces Services wires together.
type Deps struct {
	Config      *model.AppConfig
	Credentials credential.Store
	Store       store.Store
	Notifier    alert.Notifier
	Log         logrus.FieldLogger
}

// NewServices builds the client graph and loads any persisted session.
// An expired token is cleared so the user is sent to sign in.
func NewServices(d Deps) (*Services, error) {
	log := d.Log
	if log == nil {
		log = logging.Discard()
	}
	cfg := d.Config

	sess := session.New(d.Credentials)
	if err := sess.Load(); err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess.SignedIn() && sess.Expired(time.Now()) {
		log.Info("stored session expired, signing out")
		if err := sess.Logout(); err != nil {
			log.WithError(err).Warn("clearing expired session")
		}
	}

	s := &Services{
		Config:       cfg,
		Session:      sess,
		Store:        d.Store,
		Log:          log,
		unauthorized: make(chan struct{}, 1),
	}

	s.API = api.NewClient(cfg.API.BaseURL, sess,
		api.WithTimeout(time.Duration(cfg.API.TimeoutSec)*time.Second),
		api.WithLogger(log),
		api.WithUnauthorizedHook(s.signalUnauthorized),
	)
	s.Push = push.NewChannel(push.Config{
		HubURL:          cfg.Push.HubURL,
		SkipNegotiation: cfg.Push.SkipNegotiation,
		ReconnectDelays: push.DelaysFromMillis(cfg.Push.ReconnectDelaysMs),
		Log:             log,
	}, sess)

	defaults := model.DefaultFilter()
	if sized, err := defaults.WithPageSize(cfg.Display.PageSize); err == nil {
		defaults = sized
	}
	s.Defaults = defaults
	s.Inbox = feed.NewInbox(s.API, s.Push, defaults, log)
	s.Outbox = feed.NewOutbox(s.API, defaults, log)

	notifier := d.Notifier
	if notifier == nil {
		notifier = alert.LogNotifier{Log: log}
	}
	if d.Store != nil {
		s.Presenter = alert.NewPresenter(d.Store, cfg.Cache.Dir, notifier, alert.WithLogger(log))
	}
	return s, nil
}

// signalUnauthorized is the REST client's 401 hook. It never blocks.
func (s *Services) signalUnauthorized() {
	select {
	case s.unauthorized <- struct{}{}:
	default:
	}
}

// Unauthorized fires when the backend rejects the stored token.
func (s *Services) Unauthorized() <-chan struct{} { return s.unauthorized }

// Me describes the signed-in user as a directory entry.
func (s *Services) Me() model.User {
	info := s.Session.Info()
	return model.User{
		UserID:    info.UserID,
		Email:     info.Email,
		FirstName: info.Name,
		Role:      info.Role,
	}
}

// SignIn authenticates and persists the session. The push channel is not
// connected here; see Connect.
func (s *Services) SignIn(ctx context.Context, email, password string) (model.User, error) {
	u, err := s.API.Login(ctx, email, password)
	if err != nil {
		return model.User{}, err
	}
	if err := s.Session.Login(session.InfoFromUser(*u)); err != nil {
		return model.User{}, fmt.Errorf("saving session: %w", err)
	}
	s.Log.WithField("role", u.Role).Info("signed in")
	return *u, nil
}

// Connect opens the push subscription for the current session.
func (s *Services) Connect(ctx context.Context) error {
	if !s.Session.SignedIn() {
		return ErrSignedOut
	}
	return s.Push.Connect(ctx)
}

// SignOut tears down in order: the push channel is disconnected and
// awaited before the session is cleared, then the lists are emptied.
func (s *Services) SignOut(ctx context.Context) error {
	var errs []error
	if err := s.Push.Disconnect(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disconnecting: %w", err))
	}
	if err := s.Session.Logout(); err != nil {
		errs = append(errs, fmt.Errorf("clearing session: %w", err))
	}
	s.Inbox.Clear()
	s.Outbox.Clear()
	s.Log.Info("signed out")
	return errors.Join(errs...)
}

// Directory loads the recipients the signed-in user may address.
func (s *Services) Directory(ctx context.Context) (*compose.Directory, error) {
	return compose.LoadDirectory(ctx, s.API, s.Me(), compose.Filters{})
}

// Submit resolves the draft against dir and sends it, or replaces editID
// when set.
func (s *Services) Submit(ctx context.Context, d compose.Draft, dir *compose.Directory, editID string) error {
	req, err := d.Resolve(dir)
	if err != nil {
		return err
	}
	if editID != "" {
		return s.API.UpdateNotification(ctx, editID, req)
	}
	return s.API.SendNotification(ctx, req)
}

// Present raises a local alert for n. It reports false when nothing was
// shown, either because n was already presented or no presenter exists.
func (s *Services) Present(ctx context.Context, n model.Notification) bool {
	if s.Presenter == nil {
		return false
	}
	return s.Presenter.Present(ctx, n)
}

// Close releases the local store.
func (s *Services) Close() error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Close()
}
