// Package webdriver drives Firefox through a local geckodriver over the
// W3C WebDriver protocol.
package webdriver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/firefox"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/config"
)

// ErrDriverNotFound is returned when no geckodriver binary is available.
var ErrDriverNotFound = errors.New("geckodriver not found")

// Session is a Firefox session behind a WebDriver endpoint.
type Session struct {
	wd      selenium.WebDriver
	service *selenium.Service
	logger  logrus.FieldLogger

	mu     sync.Mutex
	closed bool

	quitOnce sync.Once
	quitErr  error
}

var _ browser.Session = (*Session)(nil)

// FindDriver returns path when set and present, else geckodriver from PATH.
func FindDriver(path string) (string, error) {
	if path != "" {
		if _, err := exec.LookPath(path); err != nil {
			return "", fmt.Errorf("%w at %s", ErrDriverNotFound, path)
		}
		return path, nil
	}
	found, err := exec.LookPath("geckodriver")
	if err != nil {
		return "", ErrDriverNotFound
	}
	return found, nil
}

// Capabilities builds the firefox capabilities for cfg.
func Capabilities(cfg config.SessionConfig) selenium.Capabilities {
	caps := selenium.Capabilities{"browserName": "firefox"}
	ff := firefox.Capabilities{Binary: cfg.BinaryPath}
	if cfg.Headless {
		ff.Args = append(ff.Args, "-headless")
	}
	ff.Args = append(ff.Args, cfg.LaunchArgs()...)
	caps.AddFirefox(ff)
	return caps
}

// Launch starts geckodriver on a free port and opens a Firefox session.
func Launch(ctx context.Context, cfg config.SessionConfig, logger logrus.FieldLogger) (*Session, error) {
	log := orDiscard(logger).WithField("browser", config.Firefox)

	driver, err := FindDriver(cfg.DriverPath)
	if err != nil {
		return nil, err
	}
	port, err := freePort()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	service, err := selenium.NewGeckoDriverService(driver, port, selenium.Output(io.Discard))
	if err != nil {
		return nil, fmt.Errorf("starting geckodriver: %w", err)
	}

	s, err := Connect(ctx, cfg, fmt.Sprintf("http://127.0.0.1:%d", port), log)
	if err != nil {
		service.Stop()
		return nil, err
	}
	s.service = service
	log.WithFields(logrus.Fields{"driver": driver, "port": port}).Debug("geckodriver started")
	return s, nil
}

// Connect opens a Firefox session on an already running WebDriver endpoint.
func Connect(ctx context.Context, cfg config.SessionConfig, endpoint string, logger logrus.FieldLogger) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wd, err := selenium.NewRemote(Capabilities(cfg), endpoint)
	if err != nil {
		return nil, fmt.Errorf("creating firefox session: %w", err)
	}
	return &Session{wd: wd, logger: orDiscard(logger)}, nil
}

func (s *Session) Kind() config.BrowserKind { return config.Firefox }

// guard fails fast once the session is gone or ctx has ended. The
// WebDriver client has no per-call context.
func (s *Session) guard(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return browser.ErrSessionClosed
	}
	return ctx.Err()
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	if err := s.wd.Get(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, mapError(err))
	}
	return nil
}

func (s *Session) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	by, value, err := strategy(loc)
	if err != nil {
		return nil, err
	}
	found, err := s.wd.FindElements(by, value)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, browser.ErrNoSuchElement) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding %s: %w", loc, err)
	}
	els := make([]browser.Element, len(found))
	for i, we := range found {
		els[i] = &Element{session: s, we: we}
	}
	return els, nil
}

// strategy maps a locator onto the W3C strategies. Everything with a CSS
// equivalent goes through CSS, since W3C dropped id, name and class.
func strategy(loc browser.Locator) (by, value string, err error) {
	switch loc.By {
	case browser.ByXPath:
		return selenium.ByXPATH, loc.Value, nil
	case browser.ByLinkText:
		return selenium.ByLinkText, loc.Value, nil
	}
	sel, ok := loc.CSSSelector()
	if !ok {
		return "", "", fmt.Errorf("%w: %s", browser.ErrUnsupportedLocator, loc)
	}
	return selenium.ByCSSSelector, sel, nil
}

func (s *Session) Eval(ctx context.Context, script string, args ...any) (any, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	wargs := make([]any, len(args))
	for i, a := range args {
		if el, ok := a.(browser.Element); ok {
			we, ok := el.(*Element)
			if !ok || we.session != s {
				return nil, errors.New("element belongs to another session")
			}
			wargs[i] = we.we
			continue
		}
		wargs[i] = a
	}
	v, err := s.wd.ExecuteScript(script, wargs)
	if err != nil {
		return nil, mapError(err)
	}
	return v, nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	if err := s.guard(ctx); err != nil {
		return "", err
	}
	title, err := s.wd.Title()
	return title, mapError(err)
}

func (s *Session) Source(ctx context.Context) (string, error) {
	if err := s.guard(ctx); err != nil {
		return "", err
	}
	src, err := s.wd.PageSource()
	return src, mapError(err)
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	png, err := s.wd.Screenshot()
	return png, mapError(err)
}

// SetTimeouts applies all three timeouts on the remote end.
func (s *Session) SetTimeouts(ctx context.Context, t config.Timeouts) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	if err := s.wd.SetPageLoadTimeout(t.PageLoad); err != nil {
		return fmt.Errorf("setting page load timeout: %w", mapError(err))
	}
	if err := s.wd.SetImplicitWaitTimeout(t.ImplicitWait); err != nil {
		return fmt.Errorf("setting implicit wait: %w", mapError(err))
	}
	if err := s.wd.SetAsyncScriptTimeout(t.Script); err != nil {
		return fmt.Errorf("setting script timeout: %w", mapError(err))
	}
	return nil
}

// Quit ends the WebDriver session and stops geckodriver if Launch started it.
func (s *Session) Quit(ctx context.Context) error {
	s.quitOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if err := s.wd.Quit(); err != nil {
			s.quitErr = fmt.Errorf("quitting firefox: %w", err)
		}
		if s.service != nil {
			if err := s.service.Stop(); err != nil && s.quitErr == nil {
				s.quitErr = fmt.Errorf("stopping geckodriver: %w", err)
			}
		}
		s.logger.Debug("firefox session closed")
	})
	return s.quitErr
}

// mapError translates WebDriver error codes into the browser sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *selenium.Error
	if errors.As(err, &se) {
		switch se.Err {
		case "no such element":
			return fmt.Errorf("%w: %v", browser.ErrNoSuchElement, err)
		case "stale element reference":
			return fmt.Errorf("%w: %v", browser.ErrStaleElement, err)
		case "invalid session id", "no such window":
			return fmt.Errorf("%w: %v", browser.ErrSessionClosed, err)
		}
		return err
	}
	// The driver process is gone when the HTTP round trip itself fails.
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%w: %v", browser.ErrSessionClosed, err)
	}
	return err
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func orDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l != nil {
		return l
	}
	d := logrus.New()
	d.SetOutput(io.Discard)
	return d
}
