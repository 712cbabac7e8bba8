package style

import (
	"github.com/charmbracelet/lipgloss"
)

// Base styles
var (
	// Headers and titles
	TitleStyle = lipgloss.NewStyle().
			Foreground(HeadingColor).
			Bold(true)

	// Text styles
	NormalStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	MutedStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// Status styles
	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(InfoColor)

	PathStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Italic(true)
)

// Transfer styles
var (
	PushStyle = lipgloss.NewStyle().
			Foreground(PushColor).
			Bold(true)

	PullStyle = lipgloss.NewStyle().
			Foreground(PullColor).
			Bold(true)

	HostStyle = lipgloss.NewStyle().
			Foreground(HostColor)
)

// Indicators
const (
	SuccessIndicator = "✓"
	ErrorIndicator   = "✗"
	WarningIndicator = "!"
	SkippedIndicator = "•"
	PendingIndicator = "○"
)
