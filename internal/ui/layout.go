// Package ui holds layout and filter helpers shared by the views.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/scfet/notification-client/internal/theme"
)

// Layout manages the terminal frame: a header, an optional alert banner,
// the content area and a status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height left for the active view. One line is
// always reserved for the banner so the list does not jump when an alert
// appears.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.StatusBarHeight-1, 0)
}

// bar renders left and right aligned text on a full-width line in style.
func (l Layout) bar(style lipgloss.Style, left, right string) string {
	leftR := style.Render(left)
	rightR := ""
	if right != "" {
		rightR = style.Render(right)
	}
	gap := max(l.Width-lipgloss.Width(leftR)-lipgloss.Width(rightR), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")
	return lipgloss.JoinHorizontal(lipgloss.Top, leftR, filler, rightR)
}

// RenderHeader renders the title bar. status is pre-styled by the caller.
func (l Layout) RenderHeader(title, status string) string {
	titleR := theme.HeaderStyle.Render(title)
	gap := max(l.Width-lipgloss.Width(titleR)-lipgloss.Width(status), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")
	return lipgloss.JoinHorizontal(lipgloss.Top, titleR, filler, status)
}

// RenderBanner renders the alert line, or a blank line when text is empty.
func (l Layout) RenderBanner(text string) string {
	if text == "" {
		return lipgloss.NewStyle().Width(l.Width).Render("")
	}
	return l.bar(theme.BannerStyle, text, "")
}

// RenderStatusBar renders the bottom status bar with keyboard hints on
// the left and an optional message on the right.
func (l Layout) RenderStatusBar(hints, message string) string {
	return l.bar(theme.StatusBarStyle, hints, message)
}

// RenderWithFrame stacks the header, banner, content area and status bar.
func (l Layout) RenderWithFrame(header, banner, content, statusBar string) string {
	content = lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		banner,
		content,
		statusBar,
	)
}
