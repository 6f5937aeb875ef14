// Package testutil provides an in-memory browser transport for tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/config"
)

// FakeSession is a browser.Session backed by maps. Close simulates an
// external shutdown; Quit is the owner's teardown.
type FakeSession struct {
	mu sync.Mutex

	kind     config.BrowserKind
	elements map[browser.Locator][]*FakeElement
	title    string
	source   string
	closed   bool
	quits    int

	// EvalFunc answers Eval. When nil, Eval returns (nil, nil) except for
	// the readiness script, which reports "complete".
	EvalFunc func(script string, args []any) (any, error)
	// OnNavigate runs after a navigation is recorded.
	OnNavigate func(url string)
	// TitleErr, when set, runs before each Title; a non-nil result fails it.
	TitleErr func() error

	QuitErr    error
	Shot       []byte
	Navigated  []string
	Timeouts   config.Timeouts
	EvalScript []string
}

// NewFakeSession returns an open session of the given kind.
func NewFakeSession(kind config.BrowserKind) *FakeSession {
	return &FakeSession{
		kind:     kind,
		elements: make(map[browser.Locator][]*FakeElement),
		Shot:     []byte("\x89PNG fake"),
	}
}

// Put registers elements returned for loc.
func (s *FakeSession) Put(loc browser.Locator, els ...*FakeElement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, el := range els {
		el.session = s
	}
	s.elements[loc] = els
}

// SetTitle changes the page title.
func (s *FakeSession) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
}

// SetSource changes the page source.
func (s *FakeSession) SetSource(src string) {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
}

// Close simulates the browser going away underneath the owner.
func (s *FakeSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Quits returns how many times Quit was called.
func (s *FakeSession) Quits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quits
}

func (s *FakeSession) check() error {
	if s.closed {
		return browser.ErrSessionClosed
	}
	return nil
}

func (s *FakeSession) Kind() config.BrowserKind { return s.kind }

func (s *FakeSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	if err := s.check(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.Navigated = append(s.Navigated, url)
	hook := s.OnNavigate
	s.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	return nil
}

func (s *FakeSession) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []browser.Element
	for _, el := range s.elements[loc] {
		out = append(out, el)
	}
	return out, nil
}

func (s *FakeSession) Eval(ctx context.Context, script string, args ...any) (any, error) {
	s.mu.Lock()
	if err := s.check(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.EvalScript = append(s.EvalScript, script)
	fn := s.EvalFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(script, args)
	}
	if strings.Contains(script, "document.readyState") {
		return "complete", nil
	}
	if strings.Contains(script, "elementFromPoint") {
		return true, nil
	}
	return nil, nil
}

func (s *FakeSession) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	fn := s.TitleErr
	s.mu.Unlock()
	if fn != nil {
		if err := fn(); err != nil {
			return "", err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title, s.check()
}

func (s *FakeSession) Source(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source, s.check()
}

func (s *FakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.Shot, nil
}

func (s *FakeSession) SetTimeouts(ctx context.Context, t config.Timeouts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Timeouts = t
	return s.check()
}

func (s *FakeSession) Quit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quits++
	s.closed = true
	return s.QuitErr
}

// FakeElement is a browser.Element with settable state.
type FakeElement struct {
	mu      sync.Mutex
	session *FakeSession

	Displayed bool
	Enabled   bool
	Stale     bool
	TextValue string
	Value     string

	ClickErr    error
	SendKeysErr error
	OnClick     func()

	Clicks int
	Typed  []string
}

// Ready returns a displayed, enabled element.
func Ready() *FakeElement {
	return &FakeElement{Displayed: true, Enabled: true}
}

func (e *FakeElement) check() error {
	if e.session != nil {
		e.session.mu.Lock()
		err := e.session.check()
		e.session.mu.Unlock()
		if err != nil {
			return err
		}
	}
	if e.Stale {
		return browser.ErrStaleElement
	}
	return nil
}

func (e *FakeElement) Click(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	if e.ClickErr != nil {
		return e.ClickErr
	}
	e.Clicks++
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *FakeElement) SendKeys(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	if e.SendKeysErr != nil {
		return e.SendKeysErr
	}
	e.Typed = append(e.Typed, text)
	for _, chunk := range browser.SplitKeys(text) {
		e.Value += chunk.Text
	}
	return nil
}

func (e *FakeElement) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	e.Value = ""
	return nil
}

func (e *FakeElement) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.TextValue, e.check()
}

func (e *FakeElement) IsDisplayed(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Displayed, e.check()
}

func (e *FakeElement) IsEnabled(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Enabled, e.check()
}

// SetDisplayed flips visibility from another goroutine.
func (e *FakeElement) SetDisplayed(v bool) {
	e.mu.Lock()
	e.Displayed = v
	e.mu.Unlock()
}

// FakeConstructor builds FakeSessions and remembers every one it made so
// tests can assert none leaked.
type FakeConstructor struct {
	mu sync.Mutex

	Err   error
	Delay time.Duration

	Calls   int
	Configs []config.SessionConfig
	Made    []*FakeSession
}

// Construct satisfies session.Constructor.
func (f *FakeConstructor) Construct(ctx context.Context, cfg config.SessionConfig) (browser.Session, error) {
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	f.Configs = append(f.Configs, cfg)
	if f.Err != nil {
		return nil, f.Err
	}
	s := NewFakeSession(cfg.Browser)
	f.Made = append(f.Made, s)
	return s, nil
}

// CallCount returns how many times Construct ran.
func (f *FakeConstructor) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

// AssertAllQuit fails the test for every session that was built but
// never quit exactly once.
func (f *FakeConstructor) AssertAllQuit(t testing.TB) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.Made {
		assert.Equal(t, 1, s.Quits(), fmt.Sprintf("session %d quit count", i))
	}
}
