// Package chrome drives a local Chrome over the DevTools protocol and
// exposes it as a browser.Session.
package chrome

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/chrome/launcher"
	"github.com/ioanhodean/webharness/internal/config"
)

// Session is one Chrome page driven over CDP.
type Session struct {
	client    *Client
	inst      *launcher.Instance
	targetID  string
	sessionID string
	logger    logrus.FieldLogger

	mu       sync.Mutex
	timeouts config.Timeouts

	quitOnce sync.Once
	quitErr  error
}

var _ browser.Session = (*Session)(nil)

// Launch starts a local Chrome for cfg and attaches to its first page.
func Launch(ctx context.Context, cfg config.SessionConfig, logger logrus.FieldLogger) (*Session, error) {
	log := orDiscard(logger).WithField("browser", config.Chrome)

	inst, err := launcher.Launch(ctx, launcher.LaunchOptions{
		ChromePath: cfg.BinaryPath,
		Headless:   cfg.Headless,
		ExtraArgs:  cfg.LaunchArgs(),
	})
	if err != nil {
		return nil, err
	}

	client, err := Connect(ctx, "127.0.0.1", inst.Port)
	if err != nil {
		inst.Stop()
		return nil, err
	}

	s, err := Attach(ctx, client, log)
	if err != nil {
		client.Close()
		inst.Stop()
		return nil, err
	}
	s.inst = inst

	log.WithFields(logrus.Fields{"pid": inst.PID, "port": inst.Port}).Debug("chrome launched")
	return s, nil
}

// Attach drives the first page of an already connected browser. Quit
// closes the connection but leaves the browser process alone.
func Attach(ctx context.Context, client *Client, logger logrus.FieldLogger) (*Session, error) {
	targetID, sessionID, err := client.attachPage(ctx)
	if err != nil {
		return nil, err
	}
	for _, method := range []string{"Page.enable", "Runtime.enable", "DOM.enable"} {
		if _, err := client.CallSession(ctx, sessionID, method, nil); err != nil {
			return nil, mapError(err)
		}
	}
	return &Session{
		client:    client,
		targetID:  targetID,
		sessionID: sessionID,
		logger:    orDiscard(logger),
		timeouts:  config.DefaultTimeouts(),
	}, nil
}

func (s *Session) Kind() config.BrowserKind { return config.Chrome }

// SetTimeouts stores t. Page load bounds Navigate, script bounds Eval and
// element lookups. CDP has no implicit wait, so ImplicitWait is ignored.
func (s *Session) SetTimeouts(ctx context.Context, t config.Timeouts) error {
	if s.client.closed.Load() {
		return browser.ErrSessionClosed
	}
	s.mu.Lock()
	s.timeouts = t
	s.mu.Unlock()
	return nil
}

func (s *Session) currentTimeouts() config.Timeouts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeouts
}

// bounded derives a context limited by d; zero leaves ctx unbounded.
func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (s *Session) call(ctx context.Context, method string, params any) ([]byte, error) {
	res, err := s.client.CallSession(ctx, s.sessionID, method, params)
	return res, mapError(err)
}

// Quit closes the connection and stops the browser process it launched.
// Later calls return the first call's result.
func (s *Session) Quit(ctx context.Context) error {
	s.quitOnce.Do(func() {
		if s.inst == nil {
			s.quitErr = s.client.Close()
			return
		}

		closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		s.client.Call(closeCtx, "Browser.close", nil)
		cancel()

		// The browser drops the socket on Browser.close, so a close error
		// here carries no information.
		s.client.Close()
		s.quitErr = s.inst.Stop()
		s.logger.Debug("chrome session closed")
	})
	return s.quitErr
}

func orDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l != nil {
		return l
	}
	d := logrus.New()
	d.SetOutput(io.Discard)
	return d
}
