// Package terminal renders the interactive login surface: styled notes and
// a scannable QR code.
//
// NO_COLOR (https://no-color.org/) is honoured by lipgloss color profile
// detection.
package terminal

import "github.com/charmbracelet/lipgloss"

var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	colorBorder  = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
)

var (
	titleInfo    = lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
	titleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	titleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	textMuted    = lipgloss.NewStyle().Foreground(colorMuted)

	noteBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1)
)

// titleStyle picks the style for a note title.
func titleStyle(title string) lipgloss.Style {
	switch title {
	case "Done":
		return titleSuccess
	case "Error":
		return titleError
	default:
		return titleInfo
	}
}
