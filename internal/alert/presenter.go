// Package alert raises a local alert for each newly pushed notification,
// downloading its image into a local cache first.
package alert

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scfet/notification-client/internal/logging"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/store"
)

// Title is the heading of every alert.
const Title = "New notification"

// filePrefix names every downloaded image so PurgeCache only touches its
// own files.
const filePrefix = "notification_img_"

// MaxImageBytes bounds a single download.
const MaxImageBytes = 15 << 20

// Alert is what a Notifier shows.
type Alert struct {
	NotificationID string
	Type           model.NotificationType
	Title          string
	Body           string
	ImagePath      string
}

// Presenter turns pushed notifications into alerts.
type Presenter struct {
	store      store.Store
	dir        string
	notifier   Notifier
	httpClient *http.Client
	log        logrus.FieldLogger
	now        func() time.Time
}

type Option func(*Presenter)

func WithHTTPClient(hc *http.Client) Option {
	return func(p *Presenter) { p.httpClient = hc }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Presenter) { p.log = logging.Component(log, "alert") }
}

func WithClock(now func() time.Time) Option {
	return func(p *Presenter) { p.now = now }
}

// NewPresenter returns a Presenter caching images under dir and recording
// what it showed in st.
func NewPresenter(st store.Store, dir string, notifier Notifier, opts ...Option) *Presenter {
	p := &Presenter{
		store:      st,
		dir:        dir,
		notifier:   notifier,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logging.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dir returns the image cache directory.
func (p *Presenter) Dir() string { return p.dir }

// Present shows n unless it was shown before. Image and ledger failures
// are logged and never prevent the alert; the returned bool reports
// whether an alert was shown. The ledger entry is withdrawn when the
// notifier fails.
func (p *Presenter) Present(ctx context.Context, n model.Notification) bool {
	log := p.log.WithField("notification_id", n.ID)

	first, err := p.store.MarkPresented(ctx, n.ID, n.Title, p.now())
	if err != nil {
		log.WithError(err).Warn("recording presented alert")
	} else if !first {
		log.Debug("already presented")
		return false
	}

	a := Alert{
		NotificationID: n.ID,
		Type:           n.Type,
		Title:          Title,
		Body:           body(n),
	}
	if n.HasImage() {
		a.ImagePath = p.image(ctx, n, log)
	}

	if err := p.notifier.Notify(ctx, a); err != nil {
		log.WithError(err).Warn("showing alert")
		if first {
			if err := p.store.UnmarkPresented(ctx, n.ID); err != nil {
				log.WithError(err).Warn("forgetting alert that was not shown")
			}
		}
		return false
	}
	return true
}

func body(n model.Notification) string {
	return fmt.Sprintf("From %s: %s", n.SenderName, n.Message)
}

// image returns a local path for n's image, downloading it if needed, or
// "" when it cannot be had.
func (p *Presenter) image(ctx context.Context, n model.Notification, log logrus.FieldLogger) string {
	if cached, err := p.store.ImageFor(ctx, n.ID); err == nil && cached.SourceURL == n.ImageURL {
		if _, err := os.Stat(cached.Path); err == nil {
			return cached.Path
		}
	}

	local, size, err := p.download(ctx, n.ImageURL)
	if err != nil {
		log.WithError(err).WithField("url", n.ImageURL).Warn("downloading image")
		return ""
	}

	err = p.store.RecordImage(ctx, store.CachedImage{
		NotificationID: n.ID,
		SourceURL:      n.ImageURL,
		Path:           local,
		SizeBytes:      size,
		FetchedAt:      p.now().UTC(),
	})
	if err != nil {
		log.WithError(err).Warn("indexing cached image")
	}
	return local
}

func (p *Presenter) download(ctx context.Context, rawURL string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("image request returned %s", resp.Status)
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("creating cache dir: %w", err)
	}
	name := filePrefix + uuid.NewString() + extension(rawURL, resp.Header.Get("Content-Type"))
	local := filepath.Join(p.dir, name)

	f, err := os.Create(local)
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(f, io.LimitReader(resp.Body, MaxImageBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && size > MaxImageBytes {
		err = fmt.Errorf("image larger than %d bytes", MaxImageBytes)
	}
	if err != nil {
		os.Remove(local)
		return "", 0, err
	}
	return local, size, nil
}

var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// extension picks a file extension from the URL path, then the content
// type, falling back to .jpg.
func extension(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		for _, known := range imageTypes {
			if ext == known {
				return ext
			}
		}
		if ext == ".jpeg" {
			return ".jpg"
		}
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	if ext, ok := imageTypes[strings.TrimSpace(strings.ToLower(mediaType))]; ok {
		return ext
	}
	return ".jpg"
}
