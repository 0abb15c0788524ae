// Package main provides the uiharness command, which runs the login and home
// page scenarios against a web application with one reusable browser
// session per worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/entrhq/uiharness/pkg/browser"
	"github.com/entrhq/uiharness/pkg/config"
	"github.com/entrhq/uiharness/pkg/dataset"
	"github.com/entrhq/uiharness/pkg/logging"
	"github.com/entrhq/uiharness/pkg/pages"
	"github.com/entrhq/uiharness/pkg/progress"
	"github.com/entrhq/uiharness/pkg/report"
	"github.com/entrhq/uiharness/pkg/runner"
	"github.com/entrhq/uiharness/pkg/scenarios"
	"github.com/entrhq/uiharness/pkg/session"
)

const (
	version = "0.1.0"

	consoleWidth = 80
)

// Data-driven scenario groups read from the test data file.
var dataKinds = []string{"positive_tests", "negative_tests"}

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile   string
	DataFile     string
	LocatorsFile string
	Workers      int
	Run          string
	Headless     optionalBool
	MaxAge       optionalDuration
	BaseURL      string
	OutputDir    string
	LogLevel     string
	Progress     bool
	ShowVersion  bool
}

// optionalBool is a boolean flag that remembers whether it was given.
type optionalBool struct {
	set   bool
	value bool
}

func (b *optionalBool) String() string {
	if !b.set {
		return ""
	}
	return strconv.FormatBool(b.value)
}

func (b *optionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	b.set, b.value = true, v
	return nil
}

func (b *optionalBool) IsBoolFlag() bool { return true }

func (b *optionalBool) ptr() *bool {
	if !b.set {
		return nil
	}
	v := b.value
	return &v
}

// optionalDuration is a duration flag that remembers whether it was given,
// so an explicit 0 can disable the age limit.
type optionalDuration struct {
	set   bool
	value time.Duration
}

func (d *optionalDuration) String() string {
	if !d.set {
		return ""
	}
	return d.value.String()
}

func (d *optionalDuration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration cannot be negative")
	}
	d.set, d.value = true, v
	return nil
}

func (d *optionalDuration) ptr() *time.Duration {
	if !d.set {
		return nil
	}
	v := d.value
	return &v
}

func main() {
	cliConfig := parseFlags()

	if cliConfig.ShowVersion {
		fmt.Printf("uiharness v%s\n", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	failed, err := run(ctx, cliConfig)
	stop()
	if err != nil {
		log.Printf("Run failed: %v", err)
		os.Exit(1)
	}
	if failed {
		os.Exit(1)
	}
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigFile, "config", "", "Path to configuration file (default ~/.uiharness/config.yaml)")
	flag.StringVar(&cfg.DataFile, "data", "testdata/test_data.yaml", "Path to the test data file")
	flag.StringVar(&cfg.LocatorsFile, "locators", "testdata/locators.yaml", "Path to the locator file")
	flag.IntVar(&cfg.Workers, "workers", 0, "Number of parallel workers (overrides config)")
	flag.StringVar(&cfg.Run, "run", "", "Comma separated scenario name globs, prefix with ! to exclude")
	flag.Var(&cfg.Headless, "headless", "Run the browser headless (overrides config)")
	flag.Var(&cfg.MaxAge, "max-age", "Maximum session age before a new login, 0 disables (overrides config)")
	flag.StringVar(&cfg.BaseURL, "base-url", "", "Base URL of the application under test")
	flag.StringVar(&cfg.OutputDir, "output", "uiharness-results", "Directory for run.json, summary.md and screenshots")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flag.BoolVar(&cfg.Progress, "progress", true, "Show live progress while running (off in pipelines)")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "uiharness - login flow UI test harness\n\n")
		fmt.Fprintf(os.Stderr, "Usage: uiharness [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Run everything on four workers\n")
		fmt.Fprintf(os.Stderr, "  uiharness -base-url https://staging.example.com -workers 4\n\n")
		fmt.Fprintf(os.Stderr, "  # Only the login scenarios, skipping data-driven cases\n")
		fmt.Fprintf(os.Stderr, "  uiharness -run 'login/**,!login/data/**'\n\n")
		fmt.Fprintf(os.Stderr, "  # Watch the browser\n")
		fmt.Fprintf(os.Stderr, "  uiharness -headless=false -workers 1\n\n")
	}

	flag.Parse()
	return cfg
}

// run wires the harness together. It reports whether any scenario failed;
// the error covers setup problems only.
//
//nolint:gocyclo
func run(ctx context.Context, cliConfig *CLIConfig) (bool, error) {
	level, err := logging.ParseLevel(cliConfig.LogLevel)
	if err != nil {
		return false, err
	}

	logger, err := logging.NewLogger("uiharness")
	if err != nil {
		return false, fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()
	logger.SetLevel(level)

	if initErr := config.Initialize(cliConfig.ConfigFile); initErr != nil {
		return false, fmt.Errorf("failed to initialize configuration: %w", initErr)
	}

	rs, err := config.Resolve(nil, config.Overrides{
		BaseURL:  cliConfig.BaseURL,
		Headless: cliConfig.Headless.ptr(),
		MaxAge:   cliConfig.MaxAge.ptr(),
		Workers:  cliConfig.Workers,
	}, nil)
	if err != nil {
		return false, fmt.Errorf("failed to resolve configuration: %w", err)
	}

	data, err := dataset.Load(cliConfig.DataFile)
	if err != nil {
		return false, err
	}
	credentials := dataset.Chain{rs.Credentials, data}

	locators, err := pages.LoadLocators(cliConfig.LocatorsFile)
	if err != nil {
		return false, err
	}
	otpPage, err := pages.NewOTPPage(locators)
	if err != nil {
		return false, fmt.Errorf("failed to build otp page: %w", err)
	}
	loginPage, err := pages.NewLoginPage(rs.LoginURL, locators,
		pages.WithFailureMessages(data.FailureMessages()...),
		pages.WithPollInterval(rs.PollInterval),
		pages.WithOTP(otpPage, data.OTPCode()),
	)
	if err != nil {
		return false, fmt.Errorf("failed to build login page: %w", err)
	}
	homePage, err := pages.NewHomePage(rs.HomeURL, locators)
	if err != nil {
		return false, fmt.Errorf("failed to build home page: %w", err)
	}

	launcher, err := browser.NewLauncher(rs.Browser)
	if err != nil {
		return false, fmt.Errorf("failed to configure browser: %w", err)
	}
	if initErr := launcher.Initialize(); initErr != nil {
		return false, fmt.Errorf("failed to start browser driver: %w", initErr)
	}
	defer func() {
		if shutdownErr := launcher.Shutdown(); shutdownErr != nil {
			logger.Warnf("failed to shut down browser driver: %v", shutdownErr)
		}
	}()

	p := scenarios.Pages{Login: loginPage, Home: homePage}
	all := scenarios.Login(p, data)
	for _, kind := range dataKinds {
		all = append(all, scenarios.FromData(p, kind, data.Scenarios(kind))...)
	}
	patterns := runner.SplitPatterns(cliConfig.Run)
	filter, err := runner.NewFilter(patterns)
	if err != nil {
		return false, err
	}

	recorder := report.NewRecorder(logger.RunID())
	notifiers := session.Notifiers{recorder, session.LogNotifier(logger.Component("session"))}

	var display *progress.Display
	if cliConfig.Progress && !rs.Pipeline {
		display = progress.New(len(filter.Select(all)), os.Stdout)
		notifiers = append(notifiers, display)
	}

	pool := session.NewPool(launcher, loginPage,
		session.WithEstablishTimeout(rs.EstablishTimeout),
		session.WithHealthTimeout(rs.HealthTimeout),
		session.WithHealthProbe(rs.HealthProbe),
		session.WithNotifier(notifiers),
	)
	pool.SetMaxWorkers(rs.Workers)

	writer := report.NewArtifactWriter(cliConfig.OutputDir)
	r := &runner.Runner{
		Config: runner.Config{
			Workers:         rs.Workers,
			MaxAge:          rs.MaxAge,
			LoginRetries:    rs.LoginRetries,
			Patterns:        patterns,
			ScreenshotDir:   screenshotDir(rs.ScreenshotDir, writer.Dir()),
			SnapshotLength:  rs.SnapshotLength,
			ScenarioTimeout: rs.ScenarioTimeout,
			IdleTimeout:     rs.IdleTimeout,
		},
		Pool:        pool,
		Driver:      launcher,
		Credentials: credentials,
		Recorder:    recorder,
		Log:         logger.Component("runner"),
	}

	logger.Infof("run %s against %s (login %s)", logger.RunID(), rs.BaseURL, rs.LoginURL)
	logger.Infof("workers=%d max_age=%s headless=%t pipeline=%t", rs.Workers, rs.MaxAge, rs.Browser.Headless, rs.Pipeline)

	if r.Config.ScreenshotDir != "" {
		if mkErr := os.MkdirAll(r.Config.ScreenshotDir, 0o755); mkErr != nil {
			return false, fmt.Errorf("failed to create screenshot directory: %w", mkErr)
		}
	}

	if display != nil {
		r.Observer = display
		display.Start()
	}
	summary, runErr := r.Run(ctx, all)
	if display != nil {
		if stopErr := display.Stop(); stopErr != nil {
			logger.Warnf("%v", stopErr)
		}
	}
	if summary == nil {
		return false, runErr
	}
	if runErr != nil {
		logger.Warnf("run finished with errors: %v", runErr)
	}

	if writeErr := writer.WriteAll(summary); writeErr != nil {
		logger.Errorf("failed to write artifacts: %v", writeErr)
	}

	fmt.Println(report.RenderConsole(summary, consoleWidth))
	if path := logger.LogPath(); path != "" {
		fmt.Printf("Log: %s\n", path)
	}
	fmt.Printf("Artifacts: %s\n", writer.Dir())

	return summary.Status == report.StatusFailed, nil
}

// screenshotDir places relative screenshot directories under the output
// directory.
func screenshotDir(configured, outputDir string) string {
	if configured == "" || filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(outputDir, configured)
}
