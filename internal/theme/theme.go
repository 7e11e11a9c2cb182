package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/push"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for top-level section headers and the application title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// BannerStyle frames the alert shown when a notification arrives.
var BannerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#1A202C")).
	Background(ColorYellow).
	Padding(0, 1)

// ErrorStyle renders inline errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(ColorRed).
	Bold(true)

// DetailPanelStyle wraps the detail view content area.
var DetailPanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// ListItemStyle is the base style for items in a list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the currently focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// DimmedStyle fades read items.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// BorderStyle provides a standard rounded border for panels.
var BorderStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// TypeColor maps a notification type to its accent color.
func TypeColor(t model.NotificationType) lipgloss.AdaptiveColor {
	switch t {
	case model.NotificationUrgent:
		return ColorRed
	case model.NotificationWarning:
		return ColorOrange
	case model.NotificationEvent:
		return ColorMagenta
	default:
		return ColorBlue
	}
}

// TypeStyle returns a color-coded badge style for t.
func TypeStyle(t model.NotificationType) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(TypeColor(t))
}

// TypeLabel is the short badge text for t.
func TypeLabel(t model.NotificationType) string {
	switch t {
	case model.NotificationUrgent:
		return "URG"
	case model.NotificationWarning:
		return "WRN"
	case model.NotificationEvent:
		return "EVT"
	default:
		return "INF"
	}
}

// ReadLabel is the read-state marker shown next to each received item.
func ReadLabel(read bool) string {
	if read {
		return "✓ Read"
	}
	return "✉ New"
}

// ReadStyle colors the read-state marker.
func ReadStyle(read bool) lipgloss.Style {
	if read {
		return lipgloss.NewStyle().Foreground(ColorGray)
	}
	return lipgloss.NewStyle().Bold(true).Foreground(ColorGreen)
}

// ConnectionStyle colors the push channel indicator in the header.
func ConnectionStyle(s push.State) lipgloss.Style {
	base := HeaderStyle
	switch s {
	case push.Connected:
		return base.Foreground(ColorGreen)
	case push.Connecting:
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorRed)
	}
}
