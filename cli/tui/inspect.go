package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/billsync/types"
)

const timeLayout = "2006-01-02 15:04:05"

// InspectModel is a Bubble Tea model for a recorded sync.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewInspectSync:
		content = m.renderInspectSync()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectSync() string {
	data, ok := m.data.(*types.SyncResult)
	if !ok {
		return "Invalid data type for " + ViewInspectSync
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Sync Details"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Sync ID", data.SyncID},
		{"Property", data.PropertyID},
		{"State", string(data.State)},
		{"Started At", data.StartedAt.Local().Format(timeLayout)},
		{"Ended At", data.EndedAt.Local().Format(timeLayout)},
		{"Duration", data.Duration().String()},
		{"Bills Created", fmt.Sprintf("%d", data.Snapshot.TotalBillsCreated)},
	}
	if data.Message != "" {
		rows = append(rows, []string{"Message", data.Message})
	}
	if data.DecodeErrors > 0 || data.UnknownEvents > 0 {
		rows = append(rows, []string{"Skipped Frames", fmt.Sprintf("%d bad, %d unknown", data.DecodeErrors, data.UnknownEvents)})
	}

	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		value := row[1]
		if row[0] == "State" {
			value = StateStyle(value).Render(value)
		} else {
			value = ValueStyle.Render(value)
		}
		fmt.Fprintf(&b, "%s %s\n", label, value)
	}

	b.WriteString("\n")
	b.WriteString(supplierTable(data.Snapshot.Entries))

	return BoxStyle.Render(b.String())
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

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
