package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArtifactWriter writes run artifacts into a directory.
type ArtifactWriter struct {
	outputDir string
}

// NewArtifactWriter creates a new artifact writer
func NewArtifactWriter(outputDir string) *ArtifactWriter {
	return &ArtifactWriter{
		outputDir: outputDir,
	}
}

// Dir returns the output directory.
func (w *ArtifactWriter) Dir() string {
	return w.outputDir
}

// WriteAll writes run.json and summary.md.
func (w *ArtifactWriter) WriteAll(summary *Summary) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := w.WriteRunJSON(summary); err != nil {
		return err
	}
	if err := w.WriteSummaryMarkdown(summary); err != nil {
		return err
	}
	return nil
}

// WriteRunJSON writes the full summary as JSON.
func (w *ArtifactWriter) WriteRunJSON(summary *Summary) error {
	path := filepath.Join(w.outputDir, "run.json")

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if writeErr := os.WriteFile(path, data, 0600); writeErr != nil {
		return fmt.Errorf("failed to write run JSON: %w", writeErr)
	}
	return nil
}

// WriteSummaryMarkdown writes a human-readable markdown summary.
func (w *ArtifactWriter) WriteSummaryMarkdown(summary *Summary) error {
	path := filepath.Join(w.outputDir, "summary.md")

	if writeErr := os.WriteFile(path, []byte(Markdown(summary)), 0600); writeErr != nil {
		return fmt.Errorf("failed to write summary markdown: %w", writeErr)
	}
	return nil
}

// Markdown renders summary as a markdown document.
func Markdown(summary *Summary) string {
	var md strings.Builder

	md.WriteString("# UI Harness Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Run:** %s\n\n", summary.RunID))
	md.WriteString(fmt.Sprintf("**Status:** %s\n\n", summary.Status))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", summary.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Completed:** %s\n\n", summary.EndTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", summary.Duration.Round(time.Millisecond)))

	md.WriteString("## Scenarios\n\n")
	if len(summary.Results) == 0 {
		md.WriteString("No scenarios were run.\n\n")
	} else {
		md.WriteString("| Scenario | Worker | Status | Duration |\n")
		md.WriteString("|---|---|---|---|\n")
		for _, r := range summary.Results {
			md.WriteString(fmt.Sprintf("| %s | %s | %s %s | %s |\n",
				r.Name, r.WorkerID, statusIcon(r.Status), r.Status, r.Duration.Round(time.Millisecond)))
		}
		md.WriteString("\n")
	}

	if failed := summary.Failed(); len(failed) > 0 {
		md.WriteString("## Failures\n\n")
		for _, r := range failed {
			md.WriteString(fmt.Sprintf("### %s\n\n", r.Name))
			md.WriteString(fmt.Sprintf("❌ **Error:** %s\n\n", r.Error))
			if r.Screenshot != "" {
				md.WriteString(fmt.Sprintf("- Screenshot: `%s`\n", r.Screenshot))
			}
			if r.Snapshot != "" {
				md.WriteString("\n```\n")
				md.WriteString(r.Snapshot)
				md.WriteString("\n```\n")
			}
			md.WriteString("\n")
		}
	}

	md.WriteString("## Sessions\n\n")
	md.WriteString(fmt.Sprintf("- **Workers:** %s\n", strings.Join(summary.Workers, ", ")))
	md.WriteString(fmt.Sprintf("- **Logins:** %d\n", summary.Sessions.Established))
	md.WriteString(fmt.Sprintf("- **Reused:** %d\n", summary.Sessions.Reused))
	md.WriteString(fmt.Sprintf("- **Invalidated:** %d\n", summary.Sessions.Invalidated))
	md.WriteString(fmt.Sprintf("- **Login Failures:** %d\n", summary.Sessions.LoginFailures))
	md.WriteString(fmt.Sprintf("- **Health Check Failures:** %d\n", summary.Sessions.HealthCheckFailures))

	if len(summary.WorkerStats) > 0 {
		md.WriteString("\n| Worker | Logins | Idle Releases |\n")
		md.WriteString("|--------|--------|---------------|\n")
		for _, st := range summary.WorkerStats {
			md.WriteString(fmt.Sprintf("| %s | %d | %d |\n", st.WorkerID, st.Logins, st.IdleReleases))
		}
	}

	return md.String()
}

func statusIcon(s Status) string {
	switch s {
	case StatusPassed:
		return "✅"
	case StatusFailed:
		return "❌"
	default:
		return "⏭"
	}
}
