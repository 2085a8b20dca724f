package tui

import "github.com/charmbracelet/lipgloss"

// ANSI colours so the monitor follows the terminal theme.
var (
	colorBorder = lipgloss.ANSIColor(8)
	colorTitle  = lipgloss.ANSIColor(10)
	colorText   = lipgloss.ANSIColor(7)
	colorDim    = lipgloss.ANSIColor(8)
	colorAccent = lipgloss.ANSIColor(11)
	colorError  = lipgloss.ANSIColor(9)

	spectrumLow  = lipgloss.ANSIColor(10)
	spectrumMid  = lipgloss.ANSIColor(11)
	spectrumHigh = lipgloss.ANSIColor(9)
)

var (
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2).
			Width(panelWidth + 6)

	titleStyle  = lipgloss.NewStyle().Foreground(colorTitle).Bold(true)
	songStyle   = lipgloss.NewStyle().Foreground(colorAccent)
	textStyle   = lipgloss.NewStyle().Foreground(colorText)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	lyricStyle  = lipgloss.NewStyle().Foreground(colorText).Italic(true)
	statusStyle = lipgloss.NewStyle().Foreground(colorTitle).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError)

	specLowStyle  = lipgloss.NewStyle().Foreground(spectrumLow)
	specMidStyle  = lipgloss.NewStyle().Foreground(spectrumMid)
	specHighStyle = lipgloss.NewStyle().Foreground(spectrumHigh)
)
