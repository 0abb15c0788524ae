package progress

import "github.com/charmbracelet/lipgloss"

var (
	salmonPink  = lipgloss.Color("#FFB3BA")
	mintGreen   = lipgloss.Color("#A8E6CF")
	mutedGray   = lipgloss.Color("#6B7280")
	brightWhite = lipgloss.Color("#F9FAFB")
	errorRed    = lipgloss.Color("203")
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(salmonPink).Bold(true)
	workerStyle  = lipgloss.NewStyle().Foreground(salmonPink)
	nameStyle    = lipgloss.NewStyle().Foreground(brightWhite)
	passStyle    = lipgloss.NewStyle().Foreground(mintGreen)
	failStyle    = lipgloss.NewStyle().Foreground(errorRed)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedGray)
	spinnerStyle = lipgloss.NewStyle().Foreground(salmonPink)
)
