package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Style definitions.
var (
	// TitleStyle for headers.
	TitleStyle = lipgloss.NewStyle().Bold(true)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().Faint(true)

	// ErrorStyle for error messages.
	ErrorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))

	// ActiveTabStyle for the selected tab in the tab bar.
	ActiveTabStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	// InactiveTabStyle for the remaining tabs.
	InactiveTabStyle = lipgloss.NewStyle().Faint(true)

	// ProfitStyle for positive figures.
	ProfitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	// LossStyle for negative figures.
	LossStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// FormatSignedPercent renders a percentage with the Chinese market color
// convention: red for gains, green for losses.
func FormatSignedPercent(v float64) string {
	s := fmt.Sprintf("%+.2f%%", v)
	if v > 0 {
		return ProfitStyle.Render(s)
	}

	if v < 0 {
		return LossStyle.Render(s)
	}

	return s
}

// FormatMoney renders an amount with two decimals.
func FormatMoney(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
