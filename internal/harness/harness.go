// Package harness wires configuration, session ownership, waiting,
// interaction and failure capture together. Nothing is loaded or created
// until Configure is called, and the caller owns the result.
package harness

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/config"
	"github.com/ioanhodean/webharness/internal/diagnostics"
	"github.com/ioanhodean/webharness/internal/interact"
	"github.com/ioanhodean/webharness/internal/session"
	"github.com/ioanhodean/webharness/internal/wait"
)

// Options control Configure. Zero values select the defaults.
type Options struct {
	ConfigPath string
	Overrides  config.Overrides
	Fs         afero.Fs
	Logger     logrus.FieldLogger

	ArtifactDir  string
	WaitTimeout  time.Duration
	PollInterval time.Duration

	// Strategies replaces the built-in transports.
	Strategies map[config.BrowserKind]session.Strategies
}

// Harness is one configured run. Its registry holds at most one session.
type Harness struct {
	Config   config.SessionConfig
	Registry *session.Registry
	Engine   *wait.Engine
	Interact *interact.Interactor
	Observer *diagnostics.Observer

	logger logrus.FieldLogger
}

// Configure resolves the session config and builds every component. It
// does not start a browser.
func Configure(opts Options) (*Harness, error) {
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	cfg, err := config.Loader{FS: fs, Logger: logger}.Load(opts.ConfigPath, opts.Overrides)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	strategies := opts.Strategies
	if strategies == nil {
		strategies = session.DefaultStrategies(logger)
	}
	timeout, poll := opts.WaitTimeout, opts.PollInterval
	if timeout <= 0 {
		timeout = wait.DefaultTimeout
	}
	if poll <= 0 {
		poll = wait.DefaultPollInterval
	}

	registry := session.NewRegistry(session.NewFactory(strategies, logger), logger)
	engine := wait.NewEngine(logger, timeout, poll)
	return &Harness{
		Config:   cfg,
		Registry: registry,
		Engine:   engine,
		Interact: interact.New(engine, logger),
		Observer: diagnostics.NewObserver(fs, opts.ArtifactDir, registry, logger),
		logger:   logger,
	}, nil
}

// Session returns the live session, starting one on first use.
func (h *Harness) Session(ctx context.Context) (browser.Session, error) {
	return h.Registry.GetOrCreate(ctx, h.Config)
}

// Close quits the live session, if any. It is safe to call more than once.
func (h *Harness) Close(ctx context.Context) {
	h.Registry.Destroy(ctx)
}
