// Package progress renders a live view of a uiharness run in the terminal.
//
// The package is split into:
// - display.go: Display lifecycle and the hooks the runner and session pool call
// - model.go: Bubble Tea model, Update and View
// - styles.go: colours and styles
package progress

import (
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/uiharness/pkg/report"
	"github.com/entrhq/uiharness/pkg/session"
)

// Display is a Bubble Tea program showing per-worker activity while
// scenarios run. It implements session.Notifier and runner.Observer.
type Display struct {
	program *tea.Program

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	err       error
}

// New creates a display for a run of total scenarios writing to out. The
// program reads no input and installs no signal handler, so interrupts reach
// the caller's context.
func New(total int, out io.Writer) *Display {
	m := newModel(total)
	return &Display{
		program: tea.NewProgram(
			m,
			tea.WithOutput(out),
			tea.WithInput(nil),
			tea.WithoutSignalHandler(),
		),
		done: make(chan struct{}),
	}
}

// Start runs the program in the background.
func (d *Display) Start() {
	d.startOnce.Do(func() {
		go func() {
			defer close(d.done)
			if _, err := d.program.Run(); err != nil {
				d.err = fmt.Errorf("failed to run progress display: %w", err)
			}
		}()
	})
}

// Stop renders the final frame and waits for the program to exit.
func (d *Display) Stop() error {
	d.Start()
	d.stopOnce.Do(func() {
		d.program.Send(doneMsg{})
	})
	<-d.done
	return d.err
}

// ScenarioStarted records that workerID picked up name.
func (d *Display) ScenarioStarted(workerID, name string) {
	d.program.Send(startedMsg{workerID: workerID, name: name})
}

// ScenarioFinished records a finished scenario.
func (d *Display) ScenarioFinished(result report.ScenarioResult) {
	d.program.Send(finishedMsg{result: result})
}

// Notify forwards a session lifecycle event.
func (d *Display) Notify(e session.Event) {
	d.program.Send(eventMsg{event: e})
}
