package tui

import "github.com/charmbracelet/lipgloss"

// Theme is the color palette of the notification viewer. Colors are ANSI
// 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	Unread  lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color

	ModeOff     lipgloss.Color
	ModePolling lipgloss.Color
	ModePushing lipgloss.Color

	HeaderForeground lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme
var DefaultTheme = Theme{
	NormalText:         lipgloss.Color("252"),
	FaintText:          lipgloss.Color("243"),
	SelectedBackground: lipgloss.Color("237"),
	SelectedForeground: lipgloss.Color("231"),
	Unread:             lipgloss.Color("39"),
	Warning:            lipgloss.Color("214"),
	Error:              lipgloss.Color("203"),
	ModeOff:            lipgloss.Color("243"),
	ModePolling:        lipgloss.Color("178"),
	ModePushing:        lipgloss.Color("42"),
	HeaderForeground:   lipgloss.Color("255"),
}
