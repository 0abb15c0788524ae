package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uiharness/pkg/dataset"
	"github.com/entrhq/uiharness/pkg/logging"
	"github.com/entrhq/uiharness/pkg/report"
	"github.com/entrhq/uiharness/pkg/session"
	"github.com/entrhq/uiharness/pkg/session/sessiontest"
)

var testCredentials = dataset.MapSource{
	dataset.ValidUser: {Email: "qa@example.com", Password: "s3cret"},
	"other_user":      {Email: "other@example.com", Password: "pw"},
}

type fixture struct {
	driver   *sessiontest.Driver
	flow     *sessiontest.Flow
	recorder *report.Recorder
	runner   *Runner
}

func newFixture(cfg Config) *fixture {
	driver := &sessiontest.Driver{}
	flow := &sessiontest.Flow{LoginURL: "https://app.test/auth/login", HomeURL: "https://app.test/home"}
	rec := report.NewRecorder("test-run")
	pool := session.NewPool(driver, flow,
		session.WithNotifier(rec),
		session.WithEstablishTimeout(time.Second),
	)
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	return &fixture{
		driver:   driver,
		flow:     flow,
		recorder: rec,
		runner: &Runner{
			Config:      cfg,
			Pool:        pool,
			Driver:      driver,
			Credentials: testCredentials,
			Recorder:    rec,
			Log:         logging.NewWriterLogger("runner", io.Discard),
		},
	}
}

func passing(name string) Scenario {
	return Scenario{Name: name, Run: func(ctx context.Context, env *Env) error { return nil }}
}

func statuses(s *report.Summary) map[string]report.Status {
	out := make(map[string]report.Status, len(s.Results))
	for _, r := range s.Results {
		out[r.Name] = r.Status
	}
	return out
}

func TestRunner_ReusesSessionWithinWorker(t *testing.T) {
	f := newFixture(Config{Workers: 1, MaxAge: time.Hour})

	var seen []*session.Session
	scenarios := make([]Scenario, 0, 5)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		scenarios = append(scenarios, Scenario{
			Name: name,
			Run: func(ctx context.Context, env *Env) error {
				assert.True(t, env.Session.Authenticated())
				assert.Equal(t, "gw0", env.WorkerID)
				seen = append(seen, env.Session)
				return nil
			},
		})
	}

	summary, err := f.runner.Run(context.Background(), scenarios)
	require.NoError(t, err)

	assert.Equal(t, report.Counts{Total: 5, Passed: 5}, summary.Counts)
	assert.Equal(t, 1, f.flow.Submits(), "one login for the whole run")
	assert.Equal(t, 1, summary.Sessions.Established)
	assert.Equal(t, 4, summary.Sessions.Reused)
	for _, s := range seen {
		assert.Same(t, seen[0], s)
	}
	assert.Equal(t, 0, f.driver.Live(), "sessions are released at the end of the run")
	assert.Equal(t, []report.WorkerStat{{WorkerID: "gw0", Logins: 1}}, summary.WorkerStats)
}

func TestRunner_WorkersOwnTheirSessions(t *testing.T) {
	f := newFixture(Config{Workers: 3, MaxAge: time.Hour})

	var mu sync.Mutex
	sessions := make(map[string]*session.Session)
	var scenarios []Scenario
	for i := 0; i < 12; i++ {
		scenarios = append(scenarios, Scenario{
			Name: fmt.Sprintf("scenario_%02d", i),
			Run: func(ctx context.Context, env *Env) error {
				mu.Lock()
				defer mu.Unlock()
				if prev, ok := sessions[env.WorkerID]; ok && prev != env.Session {
					return errors.New("worker switched sessions")
				}
				sessions[env.WorkerID] = env.Session
				for id, s := range sessions {
					if id != env.WorkerID && s == env.Session {
						return errors.New("session shared between workers")
					}
				}
				time.Sleep(time.Millisecond)
				return nil
			},
		})
	}

	summary, err := f.runner.Run(context.Background(), scenarios)
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Counts.Passed)

	workers := make([]string, 0, len(sessions))
	for id := range sessions {
		workers = append(workers, id)
	}
	sort.Strings(workers)
	for _, id := range workers {
		assert.Contains(t, []string{"gw0", "gw1", "gw2"}, id)
	}
	assert.Equal(t, len(sessions), f.flow.Submits(), "one login per worker that ran a scenario")
	assert.Equal(t, 0, f.driver.Live())
}

func TestRunner_FreshAndDirty(t *testing.T) {
	f := newFixture(Config{Workers: 1, MaxAge: time.Hour})

	scenarios := []Scenario{
		passing("first"),
		{Name: "fresh", Fresh: true, Run: func(ctx context.Context, env *Env) error { return nil }},
		{Name: "dirty", Run: func(ctx context.Context, env *Env) error { return ErrDirty }},
		passing("after_dirty"),
		passing("reused"),
	}

	summary, err := f.runner.Run(context.Background(), scenarios)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Counts.Passed)
	assert.Equal(t, 3, f.flow.Submits(), "first, fresh and after_dirty log in")
	assert.Equal(t, 2, summary.Sessions.Invalidated)
}

func TestRunner_FailureCapturesPageAndInvalidates(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(Config{Workers: 1, MaxAge: time.Hour, ScreenshotDir: dir})

	scenarios := []Scenario{
		{Name: "home/broken", Run: func(ctx context.Context, env *Env) error {
			return errors.New("landing page container not found")
		}},
		passing("next"),
	}

	summary, err := f.runner.Run(context.Background(), scenarios)
	require.NoError(t, err)
	assert.Equal(t, map[string]report.Status{"home/broken": report.StatusFailed, "next": report.StatusPassed}, statuses(summary))

	failed := summary.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "landing page container not found", failed[0].Error)
	assert.Contains(t, failed[0].Screenshot, "home_broken_gw0_")
	assert.Contains(t, failed[0].Snapshot, "https://app.test/home")

	first := f.driver.Handles()[0]
	assert.Equal(t, []string{failed[0].Screenshot}, first.Screenshots)
	assert.Equal(t, 2, f.flow.Submits(), "failure invalidates the session")
}

func TestRunner_LoginRetries(t *testing.T) {
	f := newFixture(Config{Workers: 1, LoginRetries: 2})
	f.flow.SetMarkerErr(&session.Rejection{Message: "Invalid credentials"})

	summary, err := f.runner.Run(context.Background(), []Scenario{passing("login/valid_user")})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	result := summary.Results[0]
	assert.Equal(t, report.StatusFailed, result.Status)
	assert.Equal(t, session.KindLoginFailure, result.ErrorKind)
	assert.Contains(t, result.Error, "Invalid credentials")
	assert.Equal(t, 3, f.flow.Submits())
	assert.Equal(t, 3, summary.Sessions.LoginFailures)
	assert.Equal(t, 0, f.driver.Live())
}

func TestRunner_NoRetryWithoutConfig(t *testing.T) {
	f := newFixture(Config{Workers: 1})
	f.flow.SetMarkerErr(&session.Rejection{Message: "Invalid credentials"})

	_, err := f.runner.Run(context.Background(), []Scenario{passing("a")})
	require.NoError(t, err)
	assert.Equal(t, 1, f.flow.Submits())
}

func TestRunner_UnknownCredential(t *testing.T) {
	f := newFixture(Config{Workers: 1})

	summary, err := f.runner.Run(context.Background(), []Scenario{
		{Name: "x", Credential: "nobody", Run: func(ctx context.Context, env *Env) error { return nil }},
	})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, session.KindConfiguration, summary.Results[0].ErrorKind)
	assert.Equal(t, 0, f.driver.Opens(), "no browser for a configuration error")
}

func TestRunner_CredentialSwitch(t *testing.T) {
	f := newFixture(Config{Workers: 1, MaxAge: time.Hour})

	var emails []string
	record := func(ctx context.Context, env *Env) error {
		emails = append(emails, env.Session.Credential().Email)
		return nil
	}
	summary, err := f.runner.Run(context.Background(), []Scenario{
		{Name: "a", Run: record},
		{Name: "b", Credential: "other_user", Run: record},
		{Name: "c", Credential: "other_user", Run: record},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"qa@example.com", "other@example.com", "other@example.com"}, emails)
	assert.Equal(t, 2, summary.Sessions.Established)
}

func TestRunner_NoSessionScenarios(t *testing.T) {
	f := newFixture(Config{Workers: 1})

	var anon session.Handle
	summary, err := f.runner.Run(context.Background(), []Scenario{
		{Name: "logged_out", NoSession: true, Run: func(ctx context.Context, env *Env) error {
			assert.Nil(t, env.Session)
			assert.Nil(t, env.Handle())
			h, err := env.Anonymous(ctx)
			if err != nil {
				return err
			}
			again, _ := env.Anonymous(ctx)
			assert.Same(t, h, again)
			anon = h
			return nil
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Counts.Passed)
	assert.Equal(t, 0, f.flow.Submits(), "no login for NoSession scenarios")
	require.NotNil(t, anon)
	assert.True(t, anon.(*sessiontest.Handle).Closed(), "anonymous handle is closed after the scenario")
}

func TestRunner_AnonymousFailureKeepsWorkerSession(t *testing.T) {
	f := newFixture(Config{Workers: 1, MaxAge: time.Hour})

	summary, err := f.runner.Run(context.Background(), []Scenario{
		passing("a_logged_in"),
		{Name: "b_logged_out_fails", NoSession: true, Run: func(ctx context.Context, env *Env) error {
			return errors.New("login form did not render")
		}},
		{Name: "c_logged_out_dirty", NoSession: true, Run: func(ctx context.Context, env *Env) error {
			return ErrDirty
		}},
		passing("d_logged_in"),
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]report.Status{
		"a_logged_in":        report.StatusPassed,
		"b_logged_out_fails": report.StatusFailed,
		"c_logged_out_dirty": report.StatusPassed,
		"d_logged_in":        report.StatusPassed,
	}, statuses(summary))
	assert.Equal(t, 1, f.flow.Submits(), "scenarios without a session never cost a login")
	assert.Equal(t, 0, summary.Sessions.Invalidated)
	assert.Equal(t, 1, summary.Sessions.Reused)
}

func TestRunner_CancelledDuringLogin(t *testing.T) {
	f := newFixture(Config{Workers: 1})
	f.flow.Hang = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for f.driver.Opens() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	summary, err := f.runner.Run(ctx, []Scenario{passing("login/valid_user"), passing("home/landing_visible")})
	require.NoError(t, err)

	assert.Equal(t, report.Counts{Total: 2, Skipped: 2}, summary.Counts)
	assert.Equal(t, report.StatusPassed, summary.Status)
	for _, r := range summary.Results {
		assert.Equal(t, context.Canceled.Error(), r.Error, r.Name)
		assert.Empty(t, r.ErrorKind, r.Name)
	}
	assert.Equal(t, 0, f.driver.Live())
}

func TestRunner_LoginOutlivesScenarioTimeout(t *testing.T) {
	f := newFixture(Config{Workers: 1, ScenarioTimeout: 20 * time.Millisecond})
	f.flow.Hang = true

	summary, err := f.runner.Run(context.Background(), []Scenario{passing("login/valid_user")})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, report.StatusFailed, summary.Results[0].Status, "a timeout is not a cancellation")
	assert.Equal(t, session.KindLoginFailure, summary.Results[0].ErrorKind)
}

func TestRunner_IdleSweep(t *testing.T) {
	f := newFixture(Config{
		Workers:         1,
		MaxAge:          time.Hour,
		ScenarioTimeout: 30 * time.Millisecond,
		IdleTimeout:     60 * time.Millisecond,
	})

	summary, err := f.runner.Run(context.Background(), []Scenario{
		passing("a_logged_in"),
		{Name: "b_logged_out_slow", NoSession: true, Run: func(ctx context.Context, env *Env) error {
			// Outlives the idle timeout without touching the session
			time.Sleep(200 * time.Millisecond)
			return nil
		}},
		passing("c_logged_in"),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Counts.Passed)
	assert.Equal(t, 2, f.flow.Submits(), "the idle session was closed and c logged in again")
	assert.Equal(t, []report.WorkerStat{{WorkerID: "gw0", Logins: 2, IdleReleases: 1}}, summary.WorkerStats)
	assert.True(t, f.driver.Handles()[0].Closed())
	assert.Equal(t, 0, f.driver.Live())
}

func TestRunner_SkipAndPanic(t *testing.T) {
	f := newFixture(Config{Workers: 1})

	summary, err := f.runner.Run(context.Background(), []Scenario{
		{Name: "skipped", NoSession: true, Run: func(ctx context.Context, env *Env) error {
			return ErrSkip
		}},
		{Name: "panics", NoSession: true, Run: func(ctx context.Context, env *Env) error {
			panic("boom")
		}},
		{Name: "nobody", NoSession: true},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]report.Status{
		"skipped": report.StatusSkipped,
		"panics":  report.StatusFailed,
		"nobody":  report.StatusFailed,
	}, statuses(summary))
	for _, r := range summary.Failed() {
		if r.Name == "panics" {
			assert.Contains(t, r.Error, "boom")
		}
	}
}

func TestRunner_Patterns(t *testing.T) {
	f := newFixture(Config{Workers: 2, Patterns: []string{"login/*", "!login/slow"}})

	summary, err := f.runner.Run(context.Background(), []Scenario{
		passing("login/valid_user"),
		passing("login/slow"),
		passing("home/landing_visible"),
		passing("login/data/negative_tests/empty_email"),
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]report.Status{"login/valid_user": report.StatusPassed}, statuses(summary))
}

func TestRunner_CancelledContext(t *testing.T) {
	f := newFixture(Config{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.runner.Run(ctx, []Scenario{passing("a"), passing("b"), passing("c")})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Counts.Skipped)
	assert.Equal(t, 0, f.driver.Opens())
}

func TestRunner_ScenarioTimeout(t *testing.T) {
	f := newFixture(Config{Workers: 1, ScenarioTimeout: 20 * time.Millisecond})

	summary, err := f.runner.Run(context.Background(), []Scenario{
		{Name: "slow", Run: func(ctx context.Context, env *Env) error {
			return env.Handle().WaitFor(ctx, "#never")
		}},
	})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, report.StatusFailed, summary.Results[0].Status)
	assert.Contains(t, summary.Results[0].Error, context.DeadlineExceeded.Error())
}

func TestRunner_InvalidConfig(t *testing.T) {
	for _, cfg := range []Config{
		{Workers: 0},
		{Workers: 1, LoginRetries: -1},
		{Workers: 1, ScenarioTimeout: -time.Second},
		{Workers: 1, IdleTimeout: -time.Second},
		{Workers: 1, IdleTimeout: time.Minute},
		{Workers: 1, ScenarioTimeout: time.Minute, IdleTimeout: time.Minute},
	} {
		r := &Runner{Config: cfg, Pool: session.NewPool(&sessiontest.Driver{}, &sessiontest.Flow{})}
		_, err := r.Run(context.Background(), nil)
		assert.Error(t, err, "%+v", cfg)
	}

	_, err := (&Runner{Config: Config{Workers: 1}}).Run(context.Background(), nil)
	assert.ErrorContains(t, err, "session pool")

	r := &Runner{Config: Config{Workers: 1, Patterns: []string{"[unclosed"}}, Pool: session.NewPool(&sessiontest.Driver{}, &sessiontest.Flow{})}
	_, err = r.Run(context.Background(), nil)
	assert.ErrorContains(t, err, "invalid scenario pattern")
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished map[string]report.Status
}

func (o *recordingObserver) ScenarioStarted(workerID, name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, workerID+":"+name)
}

func (o *recordingObserver) ScenarioFinished(result report.ScenarioResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished == nil {
		o.finished = make(map[string]report.Status)
	}
	o.finished[result.Name] = result.Status
}

func TestRunner_Observer(t *testing.T) {
	f := newFixture(Config{Workers: 2})
	obs := &recordingObserver{}
	f.runner.Observer = obs

	_, err := f.runner.Run(context.Background(), []Scenario{
		passing("ok"),
		{Name: "broken", Run: func(ctx context.Context, env *Env) error { return errors.New("boom") }},
		{Name: "skipped", Run: func(ctx context.Context, env *Env) error { return ErrSkip }},
	})
	require.NoError(t, err)

	assert.Len(t, obs.started, 3)
	assert.Equal(t, map[string]report.Status{
		"ok":      report.StatusPassed,
		"broken":  report.StatusFailed,
		"skipped": report.StatusSkipped,
	}, obs.finished)
}
