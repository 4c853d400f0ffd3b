package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/adit/cli/reader"
)

// ListModel is a Bubble Tea model for list views.
type ListModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewListModel creates a new list model.
func NewListModel(viewType string, data any) ListModel {
	return ListModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m ListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m ListModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "list_activity":
		content = m.renderListActivity()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m ListModel) renderListActivity() string {
	data, ok := m.data.([]reader.ActivityRow)
	if !ok {
		return "Invalid data type for list_activity"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Recent Activity"))
	b.WriteString("\n\n")

	if len(data) == 0 {
		b.WriteString(MutedStyle.Render("(no activity)"))
		return BoxStyle.Render(b.String())
	}

	tsStyle := MutedStyle.Width(20)
	opStyle := lipgloss.NewStyle().Foreground(highlightColor).Width(15)
	envStyle := ValueStyle.Width(12)

	for _, row := range data {
		b.WriteString(fmt.Sprintf("%s %s %s %s %s",
			tsStyle.Render(formatTs(row.Ts)),
			opStyle.Render(row.Op),
			envStyle.Render(row.Env),
			StateStyle(row.Status).Width(9).Render(row.Status),
			ValueStyle.Render(row.Key)))
		if row.DurationMs > 0 {
			b.WriteString(MutedStyle.Render(fmt.Sprintf("  %dms", row.DurationMs)))
		}
		b.WriteString("\n")
		if row.Detail != "" {
			b.WriteString(fmt.Sprintf("%s%s\n",
				strings.Repeat(" ", 21),
				MutedStyle.Render(row.Detail)))
		}
	}

	return BoxStyle.Render(b.String())
}

// formatTs reformats a ledger timestamp for display. Records carry
// RFC 3339 strings; anything that doesn't parse is shown as-is.
func formatTs(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunListTUI runs the list TUI.
func RunListTUI(viewType string, data any) error {
	model := NewListModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderListStatic renders list data without full TUI (for fallback).
func RenderListStatic(viewType string, data any) string {
	model := NewListModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
