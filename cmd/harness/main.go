package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/config"
	"github.com/ioanhodean/webharness/internal/diagnostics"
	"github.com/ioanhodean/webharness/internal/harness"
	"github.com/ioanhodean/webharness/internal/session"
	"github.com/ioanhodean/webharness/internal/wait"
)

// Exit codes
const (
	ExitSuccess       = 0
	ExitError         = 1
	ExitSessionFailed = 2
	ExitTimeout       = 3
)

// captureTimeout bounds the failure screenshot, which runs after the
// command's own context may have ended.
const captureTimeout = 15 * time.Second

// Config holds the CLI configuration.
type Config struct {
	ConfigPath string
	Browser    string
	Headless   bool
	Private    bool
	Args       []string
	Timeout    time.Duration
	Output     string // auto, json, ndjson, text
	LogLevel   string
	Artifacts  string

	Stdout io.Writer
	Stderr io.Writer

	// Fs and Strategies replace the OS filesystem and the real browser
	// transports in tests.
	Fs         afero.Fs
	Strategies map[config.BrowserKind]session.Strategies
}

// DefaultConfig returns the built-in defaults. The config file and
// environment are applied later, below any flag set explicitly.
func DefaultConfig() *Config {
	return &Config{
		Timeout:   wait.DefaultTimeout,
		Output:    "auto",
		LogLevel:  "warning",
		Artifacts: diagnostics.DefaultDir,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

func main() {
	os.Exit(run(os.Args[1:], DefaultConfig()))
}

func run(args []string, cfg *Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(cfg)
	root.SetArgs(args)
	root.SetOut(cfg.Stdout)
	root.SetErr(cfg.Stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	var sce *session.SessionCreationError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &sce):
		return ExitSessionFailed
	case errors.Is(err, wait.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	}
	return ExitError
}

func newRootCmd(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "harness",
		Short:         "Drive a browser session from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "YAML config file (default ./"+config.DefaultFile+")")
	pf.StringVar(&cfg.Browser, "browser", cfg.Browser, "Browser: chrome or firefox (env: HARNESS_BROWSER)")
	pf.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run without a window (env: HARNESS_HEADLESS)")
	pf.BoolVar(&cfg.Private, "private", cfg.Private, "Incognito or private browsing (env: HARNESS_PRIVATE)")
	pf.StringArrayVar(&cfg.Args, "arg", cfg.Args, "Extra browser argument, repeatable (env: HARNESS_ARGS)")
	pf.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Wait timeout for each condition")
	pf.StringVar(&cfg.Output, "output", cfg.Output, "Output format: auto, json, ndjson, text")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warning, error")
	pf.StringVar(&cfg.Artifacts, "artifacts", cfg.Artifacts, "Directory for failure screenshots")

	root.AddCommand(
		newOpenCmd(cfg),
		newTitleCmd(cfg),
		newSearchCmd(cfg),
		newLoginCmd(cfg),
		newScreenshotCmd(cfg),
		newConfigCmd(cfg),
	)
	return root
}

// overrides turns the flags set on the command line into config
// overrides, so unset flags never mask the file or environment.
func overrides(flags *pflag.FlagSet, cfg *Config) (config.Overrides, error) {
	var ov config.Overrides
	if flags.Changed("browser") {
		kind, err := config.ParseBrowserKind(cfg.Browser)
		if err != nil {
			return ov, err
		}
		ov.Browser = &kind
	}
	if flags.Changed("headless") {
		ov.Headless = &cfg.Headless
	}
	if flags.Changed("private") {
		ov.Private = &cfg.Private
	}
	if flags.Changed("arg") {
		ov.ExtraArgs = append([]string{}, cfg.Args...)
	}
	return ov, nil
}

func newLogger(cfg *Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(cfg.Stderr)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logger, nil
}

func configure(cmd *cobra.Command, cfg *Config) (*harness.Harness, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	ov, err := overrides(cmd.Flags(), cfg)
	if err != nil {
		return nil, err
	}
	return harness.Configure(harness.Options{
		ConfigPath:  cfg.ConfigPath,
		Overrides:   ov,
		Fs:          cfg.Fs,
		Logger:      logger,
		ArtifactDir: cfg.Artifacts,
		WaitTimeout: cfg.Timeout,
		Strategies:  cfg.Strategies,
	})
}

// withSession runs fn against a fresh session and prints its result. The
// session is always destroyed before returning; if fn fails, a screenshot
// is saved to the artifacts directory first.
func withSession(cmd *cobra.Command, cfg *Config, fn func(ctx context.Context, h *harness.Harness, s browser.Session) (any, error)) error {
	h, err := configure(cmd, cfg)
	if err != nil {
		return err
	}
	defer h.Close(context.WithoutCancel(cmd.Context()))

	ctx := cmd.Context()
	s, err := h.Session(ctx)
	if err != nil {
		return err
	}

	name := cmd.Name()
	h.Observer.TestStarted(name)
	result, err := fn(ctx, h, s)
	if err != nil {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
		defer cancel()
		if path := h.Observer.TestFailed(cctx, "harness", name); path != "" {
			fmt.Fprintf(cfg.Stderr, "screenshot: %s\n", path)
		}
		return err
	}
	h.Observer.TestPassed(name)
	return outputResult(cfg, result)
}
