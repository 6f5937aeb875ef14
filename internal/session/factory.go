// Package session builds browser sessions and owns the single live one.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/config"
)

// Constructor builds one session of cfg.Browser using a single strategy.
type Constructor interface {
	Construct(ctx context.Context, cfg config.SessionConfig) (browser.Session, error)
}

// ConstructorFunc adapts a function to Constructor.
type ConstructorFunc func(ctx context.Context, cfg config.SessionConfig) (browser.Session, error)

func (f ConstructorFunc) Construct(ctx context.Context, cfg config.SessionConfig) (browser.Session, error) {
	return f(ctx, cfg)
}

// Strategies are the two construction paths for one browser kind.
type Strategies struct {
	Direct  Constructor
	Managed Constructor
}

var errNoStrategy = errors.New("no construction strategy registered")

// SessionCreationError is returned when both strategies failed for Browser.
type SessionCreationError struct {
	Browser config.BrowserKind
	Direct  error
	Managed error
}

func (e *SessionCreationError) Error() string {
	return fmt.Sprintf("creating %s session: direct: %v; managed: %v", e.Browser, e.Direct, e.Managed)
}

func (e *SessionCreationError) Unwrap() []error {
	return []error{e.Direct, e.Managed}
}

// Factory creates sessions, direct construction first and managed
// acquisition second. It never substitutes another browser kind.
type Factory struct {
	strategies map[config.BrowserKind]Strategies
	logger     logrus.FieldLogger
}

// NewFactory returns a factory over the given per-browser strategies.
func NewFactory(strategies map[config.BrowserKind]Strategies, logger logrus.FieldLogger) *Factory {
	return &Factory{strategies: strategies, logger: orDiscard(logger)}
}

// Create validates cfg and returns a session with its timeouts applied.
func (f *Factory) Create(ctx context.Context, cfg config.SessionConfig) (browser.Session, error) {
	cfg, err := config.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	log := f.logger.WithField("browser", cfg.Browser)
	strat := f.strategies[cfg.Browser]

	s, directErr := f.attempt(ctx, strat.Direct, cfg)
	if directErr == nil {
		log.WithField("strategy", "direct").Info("session created")
		return s, nil
	}
	log.WithError(directErr).WithField("strategy", "direct").Warn("direct construction failed, trying managed acquisition")

	s, managedErr := f.attempt(ctx, strat.Managed, cfg)
	if managedErr == nil {
		log.WithField("strategy", "managed").Info("session created")
		return s, nil
	}
	return nil, &SessionCreationError{Browser: cfg.Browser, Direct: directErr, Managed: managedErr}
}

func (f *Factory) attempt(ctx context.Context, c Constructor, cfg config.SessionConfig) (browser.Session, error) {
	if c == nil {
		return nil, errNoStrategy
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := c.Construct(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if s.Kind() != cfg.Browser {
		f.discard(ctx, s)
		return nil, fmt.Errorf("constructor returned a %s session, want %s", s.Kind(), cfg.Browser)
	}
	if err := s.SetTimeouts(ctx, cfg.Timeouts); err != nil {
		f.discard(ctx, s)
		return nil, fmt.Errorf("applying timeouts: %w", err)
	}
	return s, nil
}

// discard quits a session the factory will not hand out.
func (f *Factory) discard(ctx context.Context, s browser.Session) {
	if err := s.Quit(ctx); err != nil {
		f.logger.WithError(err).Warn("quitting rejected session")
	}
}

func orDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l != nil {
		return l
	}
	d := logrus.New()
	d.SetOutput(io.Discard)
	return d
}
