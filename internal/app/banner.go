package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/scfet/notification-client/internal/alert"
)

// bannerTTL is how long an alert stays in the banner line.
const bannerTTL = 6 * time.Second

// Banner is an alert.Notifier that hands alerts to the TUI, which shows
// them in the banner line. Alerts raised while the buffer is full are
// dropped.
type Banner struct {
	alerts chan alert.Alert
}

// NewBanner returns a Banner buffering up to 16 alerts.
func NewBanner() *Banner {
	return &Banner{alerts: make(chan alert.Alert, 16)}
}

func (b *Banner) Notify(_ context.Context, a alert.Alert) error {
	select {
	case b.alerts <- a:
	default:
	}
	return nil
}

type alertMsg struct {
	alert alert.Alert
}

type clearBannerMsg struct {
	seq int
}

// waitForAlert blocks until the next alert. It returns nil when b is nil,
// which Bubble Tea treats as no command.
func waitForAlert(b *Banner) tea.Cmd {
	if b == nil {
		return nil
	}
	return func() tea.Msg {
		return alertMsg{alert: <-b.alerts}
	}
}

func clearBannerAfter(seq int) tea.Cmd {
	return tea.Tick(bannerTTL, func(time.Time) tea.Msg {
		return clearBannerMsg{seq: seq}
	})
}
