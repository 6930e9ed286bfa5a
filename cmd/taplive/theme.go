package main

import "github.com/charmbracelet/lipgloss"

// Theme defines the colours of both reporters.
type Theme struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Muted   lipgloss.Color
}

// DefaultTheme returns the default theme.
func DefaultTheme() Theme {
	return Theme{
		Primary: lipgloss.Color("12"),  // Blue
		Success: lipgloss.Color("10"),  // Green
		Warning: lipgloss.Color("11"),  // Yellow
		Error:   lipgloss.Color("9"),   // Red
		Muted:   lipgloss.Color("240"), // Gray
	}
}

// Styles are the rendered styles derived from a Theme.
type Styles struct {
	Failure   lipgloss.Style
	Diag      lipgloss.Style
	Violation lipgloss.Style
	Pass      lipgloss.Style
	Fail      lipgloss.Style
	Skip      lipgloss.Style
	Running   lipgloss.Style
	Elapsed   lipgloss.Style
	Bold      lipgloss.Style
	SummaryOK lipgloss.Style
	SummaryKO lipgloss.Style
}

// NewStyles builds styles from theme. With color false every style renders
// its input unchanged.
func NewStyles(theme Theme, color bool) Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return Styles{
			Failure: plain, Diag: plain, Violation: plain,
			Pass: plain, Fail: plain, Skip: plain,
			Running: plain, Elapsed: plain, Bold: plain,
			SummaryOK: plain, SummaryKO: plain,
		}
	}
	return Styles{
		Failure:   lipgloss.NewStyle().Foreground(theme.Error).Bold(true),
		Diag:      lipgloss.NewStyle().Foreground(theme.Muted),
		Violation: lipgloss.NewStyle().Foreground(theme.Warning),
		Pass:      lipgloss.NewStyle().Foreground(theme.Success),
		Fail:      lipgloss.NewStyle().Foreground(theme.Error),
		Skip:      lipgloss.NewStyle().Foreground(theme.Warning),
		Running:   lipgloss.NewStyle().Foreground(theme.Primary),
		Elapsed:   lipgloss.NewStyle().Foreground(theme.Muted),
		Bold:      lipgloss.NewStyle().Bold(true),
		SummaryOK: lipgloss.NewStyle().Foreground(theme.Success).Bold(true),
		SummaryKO: lipgloss.NewStyle().Foreground(theme.Error).Bold(true),
	}
}
