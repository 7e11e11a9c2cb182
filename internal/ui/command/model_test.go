package command

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		input string
		want  Name
		ok    bool
	}{
		{"inbox", Inbox, true},
		{"  SENT ", Sent, true},
		{"new", Compose, true},
		{"r", Refresh, true},
		{"q", Quit, true},
		{"purge", Purge, true},
		{"sendall", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := Lookup(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func typeText(m Model, s string) Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestEnterEmitsCommand(t *testing.T) {
	m := typeText(New(80, 24), "new")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, CommandMsg{Name: Compose, Input: "new", Known: true}, cmd())
	assert.Empty(t, m.input.Value())
}

func TestEnterUnknownCommand(t *testing.T) {
	m := typeText(New(80, 24), "bogus")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, CommandMsg{Input: "bogus"}, cmd())
}

func TestEmptyInputCancels(t *testing.T) {
	_, cmd := New(80, 24).Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, CancelMsg{}, cmd())

	_, cmd = typeText(New(80, 24), "inb").Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, CancelMsg{}, cmd())
}
