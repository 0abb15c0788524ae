package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/uiharness/pkg/dataset"
	"github.com/entrhq/uiharness/pkg/logging"
	"github.com/entrhq/uiharness/pkg/report"
	"github.com/entrhq/uiharness/pkg/session"
)

const (
	// DefaultScenarioTimeout bounds one scenario including its login.
	DefaultScenarioTimeout = 2 * time.Minute

	defaultSnapshotLength = 8000
)

// Config controls how scenarios are scheduled.
type Config struct {
	// Workers is the number of parallel workers, named gw0..gwN-1.
	Workers int

	// MaxAge is passed to Acquire. Zero disables the age limit.
	MaxAge time.Duration

	// LoginRetries is the number of extra Acquire attempts after a login
	// failure. Zero means no retry.
	LoginRetries int

	// Patterns select scenarios by name, see Filter.
	Patterns []string

	// ScreenshotDir receives failure screenshots. Empty disables them.
	ScreenshotDir string

	// SnapshotLength caps the page snapshot recorded on failure. Zero uses
	// the default, negative disables snapshots.
	SnapshotLength int

	ScenarioTimeout time.Duration

	// IdleTimeout releases a worker's session once the worker has not taken
	// a scenario for this long. It must exceed the scenario timeout. Zero
	// keeps sessions until the run ends.
	IdleTimeout time.Duration
}

func (c Config) scenarioTimeout() time.Duration {
	if c.ScenarioTimeout == 0 {
		return DefaultScenarioTimeout
	}
	return c.ScenarioTimeout
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.LoginRetries < 0 {
		return fmt.Errorf("login retries cannot be negative, got %d", c.LoginRetries)
	}
	if c.ScenarioTimeout < 0 {
		return fmt.Errorf("scenario timeout cannot be negative, got %v", c.ScenarioTimeout)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout cannot be negative, got %v", c.IdleTimeout)
	}
	if c.IdleTimeout > 0 && c.IdleTimeout <= c.scenarioTimeout() {
		return fmt.Errorf("idle timeout %v must exceed the scenario timeout %v", c.IdleTimeout, c.scenarioTimeout())
	}
	return nil
}

// Observer is told when scenarios start and finish. Calls come from worker
// goroutines concurrently.
type Observer interface {
	ScenarioStarted(workerID, name string)
	ScenarioFinished(result report.ScenarioResult)
}

// Runner fans scenarios out to workers that each own one session manager.
type Runner struct {
	Config      Config
	Pool        *session.Pool
	Driver      session.Driver
	Credentials dataset.Source
	Recorder    *report.Recorder
	Log         *logging.Logger

	// Observer is optional.
	Observer Observer
}

// WorkerID returns the identifier of worker i.
func WorkerID(i int) string {
	return fmt.Sprintf("gw%d", i)
}

// Run executes the selected scenarios and releases every worker's session
// before returning. Scenarios not started because ctx was cancelled are
// recorded as skipped, as are scenarios whose login was cut short by the
// cancellation. The returned error covers setup and release problems, not
// scenario failures; those are in the summary.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*report.Summary, error) {
	if err := r.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid runner configuration: %w", err)
	}
	if r.Pool == nil {
		return nil, fmt.Errorf("runner requires a session pool")
	}
	if r.Recorder == nil {
		r.Recorder = report.NewRecorder(logging.RunID())
	}
	if r.Log == nil {
		r.Log = logging.NewWriterLogger("runner", os.Stderr)
	}

	filter, err := NewFilter(r.Config.Patterns)
	if err != nil {
		return nil, err
	}
	selected := filter.Select(scenarios)
	r.Log.Infof("running %d of %d scenarios on %d workers", len(selected), len(scenarios), r.Config.Workers)

	sw := newSweeper(r.Pool, r.Config.IdleTimeout, r.Log.Component("sweeper"))
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	var sweeping sync.WaitGroup
	if r.Config.IdleTimeout > 0 {
		sweeping.Add(1)
		go func() {
			defer sweeping.Done()
			sw.run(sweepCtx)
		}()
	}

	jobs := make(chan Scenario)
	var wg sync.WaitGroup
	for i := 0; i < r.Config.Workers; i++ {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			r.work(ctx, workerID, jobs)
		}(WorkerID(i))
	}

	for _, sc := range selected {
		select {
		case jobs <- sc:
		case <-ctx.Done():
			r.skip(sc, "", ctx.Err())
		}
	}
	close(jobs)
	wg.Wait()

	stopSweep()
	sweeping.Wait()
	r.Recorder.SetWorkerStats(sw.finish())

	releaseErr := r.Pool.ReleaseAll()
	if releaseErr != nil {
		r.Log.Warnf("failed to release sessions: %v", releaseErr)
	}
	return r.Recorder.Summary(), releaseErr
}

func (r *Runner) work(ctx context.Context, workerID string, jobs <-chan Scenario) {
	log := r.Log.Component(workerID)

	for sc := range jobs {
		if ctx.Err() != nil {
			r.skip(sc, workerID, ctx.Err())
			continue
		}

		if r.Observer != nil {
			r.Observer.ScenarioStarted(workerID, sc.Name)
		}

		m, err := r.Pool.ForWorker(workerID)
		if err != nil {
			r.record(report.ScenarioResult{
				Name:      sc.Name,
				WorkerID:  workerID,
				Status:    report.StatusFailed,
				StartedAt: time.Now(),
				Error:     err.Error(),
				ErrorKind: session.KindOf(err),
			})
			continue
		}

		result := r.runScenario(ctx, m, log, sc)
		switch result.Status {
		case report.StatusFailed:
			log.Errorf("%s failed after %s: %s", sc.Name, result.Duration.Round(time.Millisecond), result.Error)
		case report.StatusSkipped:
			log.Infof("%s skipped: %s", sc.Name, result.Error)
		default:
			log.Infof("%s passed in %s", sc.Name, result.Duration.Round(time.Millisecond))
		}
		r.record(result)
	}
}

func (r *Runner) runScenario(ctx context.Context, m *session.Manager, log *logging.Logger, sc Scenario) report.ScenarioResult {
	start := time.Now()
	result := report.ScenarioResult{
		Name:      sc.Name,
		WorkerID:  m.WorkerID(),
		StartedAt: start,
	}

	sctx, cancel := context.WithTimeout(ctx, r.Config.scenarioTimeout())
	defer cancel()

	env := &Env{
		WorkerID:    m.WorkerID(),
		Manager:     m,
		Credentials: r.Credentials,
		MaxAge:      r.Config.MaxAge,
		Log:         log,
		driver:      r.Driver,
	}
	defer func() {
		if err := env.close(); err != nil {
			log.Warnf("failed to close anonymous handle: %v", err)
		}
	}()

	prepareErr := r.prepare(sctx, env, sc, log)
	err := prepareErr
	if err == nil {
		err = r.invoke(sctx, env, sc)
	}
	result.Duration = time.Since(start)

	switch {
	case err == nil:
		result.Status = report.StatusPassed
	case prepareErr != nil && ctx.Err() != nil:
		// The run was cancelled before the scenario body started
		result.Status = report.StatusSkipped
		result.Error = ctx.Err().Error()
	case errors.Is(err, ErrSkip):
		result.Status = report.StatusSkipped
		result.Error = err.Error()
	case errors.Is(err, ErrDirty):
		result.Status = report.StatusPassed
		invalidateUsed(env)
	default:
		result.Status = report.StatusFailed
		result.Error = err.Error()
		result.ErrorKind = session.KindOf(err)
		r.capture(env, &result, log)
		// The page state after a failure is unknown
		invalidateUsed(env)
	}
	return result
}

// invalidateUsed invalidates the worker's session if the scenario ran on it.
// Scenarios on an anonymous handle leave it alone.
func invalidateUsed(env *Env) {
	if env.Session != nil {
		env.Manager.Invalidate()
	}
}

// prepare acquires the session the scenario asked for.
func (r *Runner) prepare(ctx context.Context, env *Env, sc Scenario, log *logging.Logger) error {
	if sc.NoSession {
		return nil
	}
	if sc.Fresh {
		env.Manager.Invalidate()
	}

	cred, err := env.Credential(sc.credentialKey())
	if err != nil {
		return err
	}

	attempts := r.Config.LoginRetries + 1
	for attempt := 1; ; attempt++ {
		s, err := env.Manager.Acquire(ctx, cred, r.Config.MaxAge)
		if err == nil {
			env.Session = s
			return nil
		}
		if attempt >= attempts || !errors.Is(err, session.ErrLoginFailure) || ctx.Err() != nil {
			return err
		}
		log.Warnf("login attempt %d of %d failed: %v", attempt, attempts, err)
	}
}

// invoke runs the scenario body, turning a panic into an error.
func (r *Runner) invoke(ctx context.Context, env *Env, sc Scenario) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scenario panicked: %v", p)
		}
	}()
	if sc.Run == nil {
		return fmt.Errorf("scenario %s has no body", sc.Name)
	}
	return sc.Run(ctx, env)
}

// capture records a screenshot and page snapshot when the handle supports it.
func (r *Runner) capture(env *Env, result *report.ScenarioResult, log *logging.Logger) {
	h := env.captureHandle()
	if h == nil {
		return
	}

	if r.Config.ScreenshotDir != "" {
		if shooter, ok := h.(session.Screenshotter); ok {
			path := filepath.Join(r.Config.ScreenshotDir, screenshotName(result.Name, result.WorkerID))
			if err := shooter.Screenshot(path); err != nil {
				log.Warnf("failed to capture screenshot: %v", err)
			} else {
				result.Screenshot = path
			}
		}
	}

	length := r.Config.SnapshotLength
	if length == 0 {
		length = defaultSnapshotLength
	}
	if length > 0 {
		if snap, ok := h.(session.Snapshotter); ok {
			text, err := snap.Snapshot(length)
			if err != nil {
				log.Warnf("failed to capture page snapshot: %v", err)
			} else {
				result.Snapshot = text
			}
		}
	}
}

func (r *Runner) record(result report.ScenarioResult) {
	r.Recorder.Record(result)
	if r.Observer != nil {
		r.Observer.ScenarioFinished(result)
	}
}

func (r *Runner) skip(sc Scenario, workerID string, cause error) {
	r.record(report.ScenarioResult{
		Name:      sc.Name,
		WorkerID:  workerID,
		Status:    report.StatusSkipped,
		StartedAt: time.Now(),
		Error:     cause.Error(),
	})
}

func screenshotName(scenario, workerID string) string {
	name := strings.NewReplacer("/", "_", " ", "_", "\\", "_").Replace(scenario)
	return fmt.Sprintf("%s_%s_%s.png", name, workerID, time.Now().Format("20060102_150405"))
}
