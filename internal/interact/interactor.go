// Package interact performs clicks, typing and navigation against a
// session, always waiting for the target to be ready first.
package interact

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/wait"
)

// scriptClick clicks through the DOM instead of synthesised mouse input.
const scriptClick = "arguments[0].click(); return true;"

// Interactor composes wait conditions into safe interactions. It holds no
// session; every call receives the one to act on.
type Interactor struct {
	engine *wait.Engine
	logger logrus.FieldLogger
}

// New returns an Interactor using engine's timeout and poll interval.
func New(engine *wait.Engine, logger logrus.FieldLogger) *Interactor {
	return &Interactor{engine: engine, logger: orDiscard(logger)}
}

// Navigate loads url and waits for the document to finish loading.
func (i *Interactor) Navigate(ctx context.Context, s browser.Session, url string) error {
	i.logger.WithField("url", url).Debug("navigating")
	if err := s.Navigate(ctx, url); err != nil {
		return err
	}
	return i.WaitForLoad(ctx, s)
}

// WaitForLoad waits for document.readyState to be "complete".
func (i *Interactor) WaitForLoad(ctx context.Context, s browser.Session) error {
	_, err := wait.For(ctx, i.engine, s, wait.PageReady())
	return err
}

// Click waits for loc to be clickable and clicks it natively. If that
// fails, it waits for loc to be visible and clicks it from script.
func (i *Interactor) Click(ctx context.Context, s browser.Session, loc browser.Locator) error {
	log := i.logger.WithField("locator", loc)
	_, err := Fallback(ctx, log, "click "+loc.String(),
		Strategy[struct{}]{
			Name: "native",
			Run: func(ctx context.Context) Result[struct{}] {
				if _, err := wait.For(ctx, i.engine, s, wait.ClickWhenReady(loc)); err != nil {
					return Failed[struct{}](err)
				}
				return Ok(struct{}{})
			},
		},
		Strategy[struct{}]{
			Name: "script",
			Run: func(ctx context.Context) Result[struct{}] {
				el, err := wait.For(ctx, i.engine, s, wait.Visible(loc))
				if err != nil {
					return Failed[struct{}](err)
				}
				if _, err := s.Eval(ctx, scriptClick, el); err != nil {
					return Failed[struct{}](fmt.Errorf("script click on %s: %w", loc, err))
				}
				return Ok(struct{}{})
			},
		},
	)
	return err
}

// Type waits for loc to be visible, clears it and types text.
func (i *Interactor) Type(ctx context.Context, s browser.Session, loc browser.Locator, text string) error {
	el, err := wait.For(ctx, i.engine, s, wait.Visible(loc))
	if err != nil {
		return err
	}
	if err := el.Clear(ctx); err != nil {
		return fmt.Errorf("clearing %s: %w", loc, err)
	}
	if err := el.SendKeys(ctx, text); err != nil {
		return fmt.Errorf("typing into %s: %w", loc, err)
	}
	return nil
}

// IsDisplayed reports whether the first element matching loc is shown.
// It is a query: any failure to resolve the element reads as false.
func (i *Interactor) IsDisplayed(ctx context.Context, s browser.Session, loc browser.Locator) bool {
	el, err := browser.FindElement(ctx, s, loc)
	if err != nil {
		i.logger.WithField("locator", loc).WithError(err).Debug("not displayed")
		return false
	}
	shown, err := el.IsDisplayed(ctx)
	if err != nil {
		i.logger.WithField("locator", loc).WithError(err).Debug("not displayed")
		return false
	}
	return shown
}

// GetText waits for loc to be visible and returns its rendered text.
func (i *Interactor) GetText(ctx context.Context, s browser.Session, loc browser.Locator) (string, error) {
	el, err := wait.For(ctx, i.engine, s, wait.Visible(loc))
	if err != nil {
		return "", err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", fmt.Errorf("reading text of %s: %w", loc, err)
	}
	return text, nil
}

// FindAll returns every element matching loc without waiting.
func (i *Interactor) FindAll(ctx context.Context, s browser.Session, loc browser.Locator) ([]browser.Element, error) {
	return s.FindElements(ctx, loc)
}

// Title returns the current page title.
func (i *Interactor) Title(ctx context.Context, s browser.Session) (string, error) {
	return s.Title(ctx)
}

// PageSourceContains reports whether the current page source contains text.
func (i *Interactor) PageSourceContains(ctx context.Context, s browser.Session, text string) (bool, error) {
	src, err := s.Source(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(src, text), nil
}

func orDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l != nil {
		return l
	}
	d := logrus.New()
	d.SetOutput(io.Discard)
	return d
}
