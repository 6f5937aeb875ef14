package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/config"
)

// Creator is what a Registry needs from a Factory.
type Creator interface {
	Create(ctx context.Context, cfg config.SessionConfig) (browser.Session, error)
}

// Registry owns at most one live session. The mutex is held across
// creation and teardown, so concurrent callers see the slot empty or
// populated, and a second session is never started while one is live
// or quitting.
type Registry struct {
	creator Creator
	logger  logrus.FieldLogger

	mu      sync.Mutex
	current browser.Session
	cfg     config.SessionConfig
	id      string
}

// NewRegistry returns an empty registry that creates sessions with c.
func NewRegistry(c Creator, logger logrus.FieldLogger) *Registry {
	return &Registry{creator: c, logger: orDiscard(logger)}
}

// GetOrCreate returns the live session, creating it on first use. A cfg
// differing from the live session's is ignored with a warning; call
// Destroy first to switch configurations.
func (r *Registry) GetOrCreate(ctx context.Context, cfg config.SessionConfig) (browser.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		if built, err := config.Build(cfg); err == nil && !built.Equal(r.cfg) {
			r.logger.WithFields(logrus.Fields{
				"session_id": r.id,
				"live":       r.cfg.String(),
				"requested":  built.String(),
			}).Warn("session already live with a different config, reusing it")
		}
		return r.current, nil
	}

	s, err := r.creator.Create(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.cfg, _ = config.Build(cfg)
	r.current = s
	r.id = uuid.NewString()
	r.logger.WithFields(logrus.Fields{
		"session_id": r.id,
		"browser":    s.Kind(),
	}).Info("session registered")
	return s, nil
}

// Current returns the live session, if any.
func (r *Registry) Current() (browser.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.current != nil
}

// ID identifies the live session in logs; empty when none is live.
func (r *Registry) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Destroy quits and releases the live session. It is a no-op when the
// slot is empty. Quit failures are logged, and the slot is released
// regardless.
func (r *Registry) Destroy(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return
	}
	s, id := r.current, r.id
	r.current, r.id, r.cfg = nil, "", config.SessionConfig{}

	log := r.logger.WithField("session_id", id)
	if err := s.Quit(ctx); err != nil {
		log.WithError(err).Warn("quitting session failed")
		return
	}
	log.Info("session destroyed")
}
