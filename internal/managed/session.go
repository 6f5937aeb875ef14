// Package managed acquires a browser build matched to the host through
// playwright: it downloads the driver and browser on first use, then
// launches them. It backs the fallback path when no usable local browser
// or driver is installed.
package managed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
	"github.com/sirupsen/logrus"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/config"
)

// Session is a playwright page in its own browser context.
type Session struct {
	kind    config.BrowserKind
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	logger  logrus.FieldLogger

	mu     sync.Mutex
	closed bool

	quitOnce sync.Once
	quitErr  error
}

var _ browser.Session = (*Session)(nil)

// BrowserName is the playwright browser that stands in for kind.
func BrowserName(kind config.BrowserKind) string {
	if kind == config.Firefox {
		return "firefox"
	}
	return "chromium"
}

// LaunchOptions builds the playwright launch options for cfg. Browser
// contexts are already private, so only ExtraArgs are forwarded.
func LaunchOptions(cfg config.SessionConfig) playwright.BrowserTypeLaunchOptions {
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     append([]string(nil), cfg.ExtraArgs...),
	}
}

// Acquire installs the playwright driver and the browser for cfg.Browser
// if missing, then launches it. Downloads do not observe ctx; it is
// checked between steps.
func Acquire(ctx context.Context, cfg config.SessionConfig, logger logrus.FieldLogger) (*Session, error) {
	log := orDiscard(logger).WithFields(logrus.Fields{"browser": cfg.Browser, "strategy": "managed"})

	opts := &playwright.RunOptions{
		Browsers: []string{BrowserName(cfg.Browser)},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	log.Debug("installing playwright driver and browser")
	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("installing playwright: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}

	bt := pw.Chromium
	if cfg.Browser == config.Firefox {
		bt = pw.Firefox
	}
	b, err := bt.Launch(LaunchOptions(cfg))
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launching %s: %w", BrowserName(cfg.Browser), err)
	}
	bctx, err := b.NewContext()
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("creating page: %w", err)
	}

	log.WithField("version", b.Version()).Debug("managed browser launched")
	return &Session{
		kind:    cfg.Browser,
		pw:      pw,
		browser: b,
		context: bctx,
		page:    page,
		logger:  log,
	}, nil
}

func (s *Session) Kind() config.BrowserKind { return s.kind }

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
	if _, err := s.page.Goto(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, mapError(err))
	}
	return nil
}

// Selector returns the playwright selector for loc. Link text has no
// selector equivalent and is matched by FindElements itself.
func Selector(loc browser.Locator) (string, error) {
	switch loc.By {
	case browser.ByXPath:
		return "xpath=" + loc.Value, nil
	case browser.ByLinkText:
		return "css=a", nil
	}
	sel, ok := loc.CSSSelector()
	if !ok {
		return "", fmt.Errorf("%w: %s", browser.ErrUnsupportedLocator, loc)
	}
	return "css=" + sel, nil
}

func (s *Session) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	sel, err := Selector(loc)
	if err != nil {
		return nil, err
	}
	handles, err := s.page.QuerySelectorAll(sel)
	if err != nil {
		return nil, fmt.Errorf("finding %s: %w", loc, mapError(err))
	}

	els := make([]browser.Element, 0, len(handles))
	for _, h := range handles {
		if loc.By == browser.ByLinkText {
			text, err := h.InnerText()
			if err != nil || strings.TrimSpace(text) != loc.Value {
				continue
			}
		}
		els = append(els, &Element{session: s, handle: h})
	}
	return els, nil
}

// WrapScript turns a function body reading arguments[i] into a playwright
// expression taking the argument array.
func WrapScript(script string) string {
	return "(args) => (function() {\n" + script + "\n}).apply(null, args)"
}

func (s *Session) Eval(ctx context.Context, script string, args ...any) (any, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	pargs := make([]any, len(args))
	for i, a := range args {
		if el, ok := a.(browser.Element); ok {
			pe, ok := el.(*Element)
			if !ok || pe.session != s {
				return nil, errors.New("element belongs to another session")
			}
			pargs[i] = pe.handle
			continue
		}
		pargs[i] = a
	}
	v, err := s.page.Evaluate(WrapScript(script), pargs)
	if err != nil {
		return nil, mapError(err)
	}
	return v, nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	if err := s.guard(ctx); err != nil {
		return "", err
	}
	title, err := s.page.Title()
	return title, mapError(err)
}

func (s *Session) Source(ctx context.Context) (string, error) {
	if err := s.guard(ctx); err != nil {
		return "", err
	}
	src, err := s.page.Content()
	return src, mapError(err)
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	png, err := s.page.Screenshot(playwright.PageScreenshotOptions{Type: playwright.ScreenshotTypePng})
	return png, mapError(err)
}

// SetTimeouts maps page load onto the navigation timeout and script onto
// the default action timeout. Playwright has no implicit wait. A zero
// duration would disable the playwright timeout, so zero keeps the
// playwright default instead.
func (s *Session) SetTimeouts(ctx context.Context, t config.Timeouts) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	if t.PageLoad > 0 {
		s.page.SetDefaultNavigationTimeout(float64(t.PageLoad.Milliseconds()))
	}
	if t.Script > 0 {
		s.page.SetDefaultTimeout(float64(t.Script.Milliseconds()))
	}
	return nil
}

// Quit closes the page, context and browser, then stops the driver.
func (s *Session) Quit(ctx context.Context) error {
	s.quitOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		var errs []error
		if err := s.context.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
			errs = append(errs, err)
		}
		if err := s.browser.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
			errs = append(errs, err)
		}
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, err)
		}
		s.quitErr = errors.Join(errs...)
		s.logger.Debug("managed browser closed")
	})
	return s.quitErr
}

// mapError translates playwright failures into the browser sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return fmt.Errorf("%w: %v", browser.ErrSessionClosed, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not attached to the DOM"),
		strings.Contains(msg, "Element is detached"),
		strings.Contains(msg, "Execution context was destroyed"):
		return fmt.Errorf("%w: %v", browser.ErrStaleElement, err)
	case strings.Contains(msg, "has been closed"):
		return fmt.Errorf("%w: %v", browser.ErrSessionClosed, err)
	}
	return err
}

func orDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l != nil {
		return l
	}
	d := logrus.New()
	d.SetOutput(io.Discard)
	return d
}
