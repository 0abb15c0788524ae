package progress

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/uiharness/pkg/report"
	"github.com/entrhq/uiharness/pkg/session"
)

const (
	maxFailuresShown = 5
	maxErrorWidth    = 100
)

type startedMsg struct {
	workerID string
	name     string
}

type finishedMsg struct {
	result report.ScenarioResult
}

type eventMsg struct {
	event session.Event
}

type doneMsg struct{}

// model is the Bubble Tea state of the progress display.
type model struct {
	spinner spinner.Model

	total    int
	counts   report.Counts
	sessions report.SessionCounts

	// running maps worker id to the scenario it is executing
	running  map[string]string
	failures []report.ScenarioResult

	width int
	done  bool
}

func newModel(total int) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle
	return &model{
		spinner: s,
		total:   total,
		running: make(map[string]string),
	}
}

func (m *model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update applies runner and session messages to the model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case startedMsg:
		m.running[msg.workerID] = msg.name

	case finishedMsg:
		r := msg.result
		if m.running[r.WorkerID] == r.Name {
			delete(m.running, r.WorkerID)
		}
		m.counts.Add(r.Status)
		if r.Status == report.StatusFailed {
			m.failures = append(m.failures, r)
		}

	case eventMsg:
		m.sessions.Add(msg.event.Kind)

	case doneMsg:
		m.done = true
		m.running = make(map[string]string)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) View() string {
	var b strings.Builder

	prefix := m.spinner.View()
	if m.done {
		prefix = passStyle.Render("✓")
		if m.counts.Failed > 0 {
			prefix = failStyle.Render("✗")
		}
	}
	b.WriteString(fmt.Sprintf("%s %s %s\n",
		prefix,
		headerStyle.Render("uiharness"),
		mutedStyle.Render(fmt.Sprintf("%d/%d scenarios", m.counts.Total, m.total)),
	))

	b.WriteString(fmt.Sprintf("  %s  %s  %s  %s\n",
		passStyle.Render(fmt.Sprintf("%d passed", m.counts.Passed)),
		failStyle.Render(fmt.Sprintf("%d failed", m.counts.Failed)),
		mutedStyle.Render(fmt.Sprintf("%d skipped", m.counts.Skipped)),
		mutedStyle.Render(fmt.Sprintf("logins %d, reused %d", m.sessions.Established, m.sessions.Reused)),
	))

	workers := make([]string, 0, len(m.running))
	for w := range m.running {
		workers = append(workers, w)
	}
	sort.Strings(workers)
	for _, w := range workers {
		b.WriteString(fmt.Sprintf("  %s %s\n", workerStyle.Render(w), nameStyle.Render(m.running[w])))
	}

	shown := m.failures
	if len(shown) > maxFailuresShown {
		shown = shown[len(shown)-maxFailuresShown:]
	}
	for _, f := range shown {
		b.WriteString(fmt.Sprintf("  %s %s %s\n",
			failStyle.Render("✗"),
			nameStyle.Render(f.Name),
			mutedStyle.Render(clip(f.Error, m.errorWidth())),
		))
	}
	return b.String()
}

func (m *model) errorWidth() int {
	if m.width > 0 && m.width < maxErrorWidth {
		return m.width
	}
	return maxErrorWidth
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
