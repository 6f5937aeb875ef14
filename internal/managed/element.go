package managed

import (
	"context"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/ioanhodean/webharness/internal/browser"
)

// Element wraps a playwright element handle.
type Element struct {
	session *Session
	handle  playwright.ElementHandle
}

var _ browser.Element = (*Element)(nil)

func (e *Element) Click(ctx context.Context) error {
	if err := e.session.guard(ctx); err != nil {
		return err
	}
	return mapError(e.handle.Click())
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	if err := e.session.guard(ctx); err != nil {
		return err
	}
	for _, chunk := range browser.SplitKeys(text) {
		var err error
		if chunk.Key != "" {
			err = e.handle.Press(chunk.Key)
		} else {
			err = e.handle.Type(chunk.Text)
		}
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (e *Element) Clear(ctx context.Context) error {
	if err := e.session.guard(ctx); err != nil {
		return err
	}
	return mapError(e.handle.Fill(""))
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if err := e.session.guard(ctx); err != nil {
		return "", err
	}
	text, err := e.handle.InnerText()
	return strings.TrimSpace(text), mapError(err)
}

func (e *Element) IsDisplayed(ctx context.Context) (bool, error) {
	if err := e.session.guard(ctx); err != nil {
		return false, err
	}
	shown, err := e.handle.IsVisible()
	return shown, mapError(err)
}

func (e *Element) IsEnabled(ctx context.Context) (bool, error) {
	if err := e.session.guard(ctx); err != nil {
		return false, err
	}
	enabled, err := e.handle.IsEnabled()
	return enabled, mapError(err)
}
