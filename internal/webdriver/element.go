package webdriver

import (
	"context"

	"github.com/tebeka/selenium"

	"github.com/ioanhodean/webharness/internal/browser"
)

// Element wraps a remote WebDriver element.
type Element struct {
	session *Session
	we      selenium.WebElement
}

var _ browser.Element = (*Element)(nil)

func (e *Element) Click(ctx context.Context) error {
	if err := e.session.guard(ctx); err != nil {
		return err
	}
	return mapError(e.we.Click())
}

// SendKeys passes text through unchanged; WebDriver understands the
// private-use key code points natively.
func (e *Element) SendKeys(ctx context.Context, text string) error {
	if err := e.session.guard(ctx); err != nil {
		return err
	}
	return mapError(e.we.SendKeys(text))
}

func (e *Element) Clear(ctx context.Context) error {
	if err := e.session.guard(ctx); err != nil {
		return err
	}
	return mapError(e.we.Clear())
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if err := e.session.guard(ctx); err != nil {
		return "", err
	}
	text, err := e.we.Text()
	return text, mapError(err)
}

func (e *Element) IsDisplayed(ctx context.Context) (bool, error) {
	if err := e.session.guard(ctx); err != nil {
		return false, err
	}
	shown, err := e.we.IsDisplayed()
	return shown, mapError(err)
}

func (e *Element) IsEnabled(ctx context.Context) (bool, error) {
	if err := e.session.guard(ctx); err != nil {
		return false, err
	}
	enabled, err := e.we.IsEnabled()
	return enabled, mapError(err)
}
