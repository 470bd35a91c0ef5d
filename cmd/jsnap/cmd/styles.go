package cmd

import "github.com/charmbracelet/lipgloss"

var (
	infoColor     = lipgloss.Color("#4682B4")
	goodColor     = lipgloss.Color("#228B22")
	warningColor  = lipgloss.Color("#FF8800")
	criticalColor = lipgloss.Color("#CC3333")
	mutedColor    = lipgloss.Color("#888888")
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(infoColor).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(mutedColor).Width(16)
	goodStyle    = lipgloss.NewStyle().Foreground(goodColor).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(criticalColor).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
)
