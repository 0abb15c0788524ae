package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	salmonPink  = lipgloss.Color("#FFB3BA")
	mintGreen   = lipgloss.Color("#A8E6CF")
	mutedGray   = lipgloss.Color("#6B7280")
	brightWhite = lipgloss.Color("#F9FAFB")
	errorRed    = lipgloss.Color("203")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(brightWhite)
	passStyle   = lipgloss.NewStyle().Foreground(mintGreen)
	failStyle   = lipgloss.NewStyle().Foreground(errorRed)
	skipStyle   = lipgloss.NewStyle().Foreground(mutedGray)
	detailStyle = lipgloss.NewStyle().Foreground(mutedGray)
	nameStyle   = lipgloss.NewStyle().Foreground(brightWhite)
	workerStyle = lipgloss.NewStyle().Foreground(salmonPink)
)

const (
	minBoxWidth  = 40
	maxErrorText = 200
)

// RenderConsole renders summary as a boxed terminal report of at most width
// columns.
func RenderConsole(summary *Summary, width int) string {
	boxWidth := width - 4
	if boxWidth < minBoxWidth {
		boxWidth = minBoxWidth
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render(fmt.Sprintf("Run %s", summary.RunID)))
	content.WriteString("\n\n")

	for _, r := range summary.Results {
		content.WriteString(fmt.Sprintf("%s %s %s %s\n",
			styledStatus(r.Status),
			nameStyle.Render(r.Name),
			workerStyle.Render("["+r.WorkerID+"]"),
			detailStyle.Render(r.Duration.Round(time.Millisecond).String())))
		if r.Status == StatusFailed && r.Error != "" {
			content.WriteString(detailStyle.Render("    " + truncate(r.Error, maxErrorText)))
			content.WriteString("\n")
		}
	}

	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("%s  %s  %s  %s\n",
		passStyle.Render(fmt.Sprintf("%d passed", summary.Counts.Passed)),
		failStyle.Render(fmt.Sprintf("%d failed", summary.Counts.Failed)),
		skipStyle.Render(fmt.Sprintf("%d skipped", summary.Counts.Skipped)),
		detailStyle.Render(summary.Duration.Round(time.Millisecond).String())))
	content.WriteString(detailStyle.Render(fmt.Sprintf("%d logins, %d reused, %d invalidated across %d workers",
		summary.Sessions.Established, summary.Sessions.Reused, summary.Sessions.Invalidated, len(summary.Workers))))

	borderColor := mintGreen
	if summary.Status == StatusFailed {
		borderColor = errorRed
	}

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1).
		Width(boxWidth)

	return boxStyle.Render(content.String()) + "\n"
}

func styledStatus(s Status) string {
	switch s {
	case StatusPassed:
		return passStyle.Render("PASS")
	case StatusFailed:
		return failStyle.Render("FAIL")
	default:
		return skipStyle.Render("SKIP")
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
