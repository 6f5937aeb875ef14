// Package browser defines the transport-neutral contract every browser
// session implementation satisfies, plus the locator and key vocabulary
// shared by the wait and interaction layers.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/ioanhodean/webharness/internal/config"
)

// Errors every transport maps its native failures onto.
var (
	ErrSessionClosed      = errors.New("session closed")
	ErrNoSuchElement      = errors.New("no such element")
	ErrStaleElement       = errors.New("stale element")
	ErrUnsupportedLocator = errors.New("unsupported locator")
)

// Session is a live browser instance. It has exactly one owner, which
// must call Quit exactly once.
type Session interface {
	// Kind reports which browser engine backs the session.
	Kind() config.BrowserKind

	Navigate(ctx context.Context, url string) error
	FindElements(ctx context.Context, loc Locator) ([]Element, error)

	// Eval runs script as a function body. Arguments are available as
	// arguments[0..n]; Elements from the same session may be passed.
	Eval(ctx context.Context, script string, args ...any) (any, error)

	Title(ctx context.Context) (string, error)
	Source(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error) // PNG

	SetTimeouts(ctx context.Context, t config.Timeouts) error
	Quit(ctx context.Context) error
}

// Element is a handle to one element inside a Session.
type Element interface {
	Click(ctx context.Context) error
	// SendKeys types text. Runes from the WebDriver private-use range
	// (see KeyEnter) are sent as key presses.
	SendKeys(ctx context.Context, text string) error
	Clear(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	IsDisplayed(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
}

// FindElement returns the first element matching loc, or an error
// wrapping ErrNoSuchElement.
func FindElement(ctx context.Context, s Session, loc Locator) (Element, error) {
	els, err := s.FindElements(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchElement, loc)
	}
	return els[0], nil
}
