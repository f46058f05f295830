// Package tui provides Bubble Tea views for the billsync CLI.
//
// TUI rules:
//   - TUI is opt-in only (--tui flag)
//   - the sync view is live and its quit key cancels the running sync
//   - history views are read-only and use the same payloads as the
//     non-TUI renderers
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/billsync/types"
)

// Color palette.
var (
	primaryColor   = lipgloss.Color("#0E7490") // Teal
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for TUI components.
var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// HeaderStyle for supplier table headers.
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(mutedColor)

	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(errorColor)

	// BoxStyle for bordered containers.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	// StatBoxStyle for stat display boxes.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlightColor).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)

	StatLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Align(lipgloss.Center)

	StatValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Align(lipgloss.Center)
)

// StateStyle returns a style for a session state or supplier status.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case string(types.StateCompleted):
		return SuccessStyle
	case string(types.StateRunning), string(types.SupplierStarting), string(types.SupplierProcessing):
		return WarningStyle
	case string(types.StateFailed), string(types.StateCancelled), string(types.SupplierError):
		return ErrorStyle
	default:
		return ValueStyle
	}
}
