package ui

import (
	"github.com/charmbracelet/lipgloss"

	"dlsite-manager/query"
)

var stateColors = map[query.DisplayState]lipgloss.Color{
	query.DisplayNotDownloaded:            lipgloss.Color("8"),
	query.DisplayDownloading:              lipgloss.Color("12"),
	query.DisplayDecompressing:            lipgloss.Color("13"),
	query.DisplayDownloaded:               lipgloss.Color("10"),
	query.DisplayDownloadingAndDownloaded: lipgloss.Color("14"),
	query.DisplayFailed:                   lipgloss.Color("9"),
}

// ColorizeState renders a download display state with its associated color.
func ColorizeState(state query.DisplayState) string {
	color, ok := stateColors[state]
	if !ok {
		return string(state)
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(state))
}

// Dim renders secondary text such as group names and product ids.
func Dim(text string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(text)
}

// Bold renders emphasized text such as product titles.
func Bold(text string) string {
	return lipgloss.NewStyle().Bold(true).Render(text)
}
