package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/adit/cli/reader"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_activity":
		content = m.renderStatsActivity()
	case "stats_metrics":
		content = m.renderStatsMetrics()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsActivity() string {
	data, ok := m.data.(*reader.ActivityStats)
	if !ok {
		return "Invalid data type for stats_activity"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Activity Statistics"))
	b.WriteString("\n\n")

	// Create stat boxes
	boxes := []string{
		m.renderStatBox("Total", data.Total, lipgloss.Color("#3B82F6")),
		m.renderStatBox("OK", data.OK, successColor),
		m.renderStatBox("Errors", data.Errors, errorColor),
		m.renderStatBox("Denied", data.Denied, warningColor),
	}

	// Join boxes horizontally
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))

	if len(data.Categories) > 0 {
		b.WriteString("\n\n")
		b.WriteString(TitleStyle.Render("By Category"))
		b.WriteString("\n")
		for _, cat := range data.Categories {
			b.WriteString(fmt.Sprintf("%s %s\n",
				LabelStyle.Render(cat.Category+":"),
				ValueStyle.Render(fmt.Sprintf("%d total, %d errors, %d denied, avg %dms",
					cat.Count, cat.Errors, cat.Denied, cat.AvgDurationMs))))
		}
	}

	return b.String()
}

func (m StatsModel) renderStatsMetrics() string {
	data, ok := m.data.(*reader.MetricsSnapshot)
	if !ok {
		return "Invalid data type for stats_metrics"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Gateway Metrics"))
	b.WriteString("\n\n")

	callBoxes := []string{
		m.renderStatBox("Calls", int(data.CallsStarted), lipgloss.Color("#3B82F6")),
		m.renderStatBox("Completed", int(data.CallsCompleted), successColor),
		m.renderStatBox("Failed", int(data.CallsFailed), errorColor),
		m.renderStatBox("Cancelled", int(data.CallsCancelled), warningColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, callBoxes...))

	b.WriteString("\n\n")
	objectBoxes := []string{
		m.renderStatBox("Puts", int(data.ObjectPuts), highlightColor),
		m.renderStatBox("Gets", int(data.ObjectGets), highlightColor),
		m.renderStatBox("Deletes", int(data.ObjectDeletes), highlightColor),
		m.renderStatBox("Renames", int(data.ObjectRenames), highlightColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, objectBoxes...))

	rows := [][]string{
		{"Chunks", fmt.Sprintf("%d", data.ChunksStreamed)},
		{"Stdout Batches", fmt.Sprintf("%d", data.StdoutBatches)},
		{"Envs Created", fmt.Sprintf("%d", data.EnvsCreated)},
		{"Auth Checks", fmt.Sprintf("%d", data.AuthChecks)},
		{"Auth Denials", fmt.Sprintf("%d", data.AuthDenials)},
		{"Ledger Writes", fmt.Sprintf("%d ok / %d failed", data.LedgerWriteSuccess, data.LedgerWriteFailure)},
		{"Storage", data.StorageBackend},
		{"Default Env", data.DefaultEnv},
	}

	b.WriteString("\n\n")
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render(row[0]+":"),
			ValueStyle.Render(row[1])))
	}

	return b.String()
}

func (m StatsModel) renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
