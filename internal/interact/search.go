package interact

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/wait"
)

const (
	setValueScript = `
var el = arguments[0];
el.focus();
el.value = arguments[1];
el.dispatchEvent(new Event('input', {bubbles: true}));
el.dispatchEvent(new Event('change', {bubbles: true}));
return true;
`

	// commitScript fires Enter key events and submits the owning form,
	// if any.
	commitScript = `
var el = arguments[0];
['keydown', 'keypress', 'keyup'].forEach(function(type) {
  el.dispatchEvent(new KeyboardEvent(type, {key: 'Enter', code: 'Enter', keyCode: 13, which: 13, bubbles: true}));
});
if (el.form) {
  if (typeof el.form.requestSubmit === 'function') { el.form.requestSubmit(); } else { el.form.submit(); }
}
return true;
`
)

// SearchBox names the input a search is typed into. Alt is the locator
// used by the scripted fallback.
type SearchBox struct {
	Box browser.Locator
	Alt browser.Locator
}

// Search enters term into the search box and commits it, then waits for
// the page title to mention term.
//
// The primary strategy clicks the box, clears it and types term followed
// by Enter. If any step fails, the secondary strategy finds the box by
// Alt, sets its value from script and dispatches the commit from script.
func (i *Interactor) Search(ctx context.Context, s browser.Session, box SearchBox, term string) error {
	alt := box.Alt
	if alt == (browser.Locator{}) {
		alt = box.Box
	}
	log := i.logger.WithFields(logrus.Fields{"locator": box.Box, "term": term})

	_, err := Fallback(ctx, log, fmt.Sprintf("search for %q", term),
		Strategy[string]{
			Name: "native",
			Run: func(ctx context.Context) Result[string] {
				title, err := i.nativeSearch(ctx, s, box.Box, term)
				return resultOf(title, err)
			},
		},
		Strategy[string]{
			Name: "script",
			Run: func(ctx context.Context) Result[string] {
				title, err := i.scriptedSearch(ctx, s, alt, term)
				return resultOf(title, err)
			},
		},
	)
	return err
}

func (i *Interactor) nativeSearch(ctx context.Context, s browser.Session, loc browser.Locator, term string) (string, error) {
	el, err := wait.For(ctx, i.engine, s, wait.Clickable(loc))
	if err != nil {
		return "", err
	}
	if err := el.Click(ctx); err != nil {
		return "", fmt.Errorf("focusing %s: %w", loc, err)
	}
	if err := el.Clear(ctx); err != nil {
		return "", fmt.Errorf("clearing %s: %w", loc, err)
	}
	if err := el.SendKeys(ctx, term); err != nil {
		return "", fmt.Errorf("typing into %s: %w", loc, err)
	}
	if err := el.SendKeys(ctx, browser.KeyEnter); err != nil {
		return "", fmt.Errorf("submitting %s: %w", loc, err)
	}
	return wait.For(ctx, i.engine, s, wait.TitleContains(term))
}

func (i *Interactor) scriptedSearch(ctx context.Context, s browser.Session, loc browser.Locator, term string) (string, error) {
	el, err := wait.For(ctx, i.engine, s, wait.Present(loc))
	if err != nil {
		return "", err
	}
	if _, err := s.Eval(ctx, setValueScript, el, term); err != nil {
		return "", fmt.Errorf("setting value of %s: %w", loc, err)
	}
	if _, err := s.Eval(ctx, commitScript, el); err != nil {
		return "", fmt.Errorf("committing %s: %w", loc, err)
	}
	return wait.For(ctx, i.engine, s, wait.TitleContains(term))
}

func resultOf[T any](v T, err error) Result[T] {
	if err != nil {
		return Failed[T](err)
	}
	return Ok(v)
}
