package tui

import "github.com/charmbracelet/lipgloss"

// Portgate palette
var (
	ColorAccent = lipgloss.Color("#7FB3D5")
	ColorDeep   = lipgloss.Color("#566573")
	ColorText   = lipgloss.Color("#E5E8E8")
	ColorAlert  = lipgloss.Color("#FF6B6B")
	ColorGood   = lipgloss.Color("#4ECDC4")
	ColorWarn   = lipgloss.Color("#FFE66D")
	ColorMuted  = lipgloss.Color("#6c757d")
)

var (
	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	StyleSubtitle = lipgloss.NewStyle().
			Foreground(ColorDeep).
			Italic(true)

	StyleStatusGood = lipgloss.NewStyle().Foreground(ColorGood).Bold(true)
	StyleStatusBad  = lipgloss.NewStyle().Foreground(ColorAlert).Bold(true)
	StyleStatusWarn = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)

	StyleTableHeader = lipgloss.NewStyle().
				Foreground(ColorAccent).
				Bold(true).
				Padding(0, 1)

	StyleTableRow = lipgloss.NewStyle().
			Foreground(ColorText).
			Padding(0, 1)

	StyleTableIndex = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 1)

	StyleBorder = lipgloss.NewStyle().Foreground(ColorDeep)
)
