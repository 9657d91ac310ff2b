package ui

import "github.com/charmbracelet/lipgloss"

// palette for blogctl output
const (
	colorAccent = lipgloss.Color("63")
	colorOK     = lipgloss.Color("42")
	colorMuted  = lipgloss.Color("241")
	colorLabel  = lipgloss.Color("245")
	colorFail   = lipgloss.Color("196")
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).MarginBottom(1)
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(colorOK)
	hintStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorFail)

	// labels are padded so summary values line up
	labelStyle = lipgloss.NewStyle().Width(14).Foreground(colorLabel)
)
