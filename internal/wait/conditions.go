package wait

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ioanhodean/webharness/internal/browser"
)

// hitTestScript reports whether the element's centre is covered by the
// element itself. Elements whose centre lies outside the viewport count
// as hit-testable, because a native click scrolls them into view first.
const hitTestScript = `
var el = arguments[0];
var r = el.getBoundingClientRect();
if (r.width === 0 || r.height === 0) return false;
var x = r.left + r.width / 2, y = r.top + r.height / 2;
if (x < 0 || y < 0 || x >= window.innerWidth || y >= window.innerHeight) return true;
var hit = document.elementFromPoint(x, y);
return hit !== null && (hit === el || el.contains(hit));
`

// ReadyStateScript reads the document readiness flag.
const ReadyStateScript = "return document.readyState"

// transient turns lookup and navigation races into NotReady and passes
// anything else through.
func transient(err error) error {
	if errors.Is(err, browser.ErrNoSuchElement) || errors.Is(err, browser.ErrStaleElement) {
		return NotReady("%v", err)
	}
	return err
}

// Present waits for at least one element matching loc to exist.
func Present(loc browser.Locator) Condition[browser.Element] {
	return Condition[browser.Element]{
		Description: "presence of " + loc.String(),
		Poll: func(ctx context.Context, s browser.Session) (browser.Element, error) {
			el, err := browser.FindElement(ctx, s, loc)
			if err != nil {
				return nil, transient(err)
			}
			return el, nil
		},
	}
}

// Visible waits for the first element matching loc to be displayed.
func Visible(loc browser.Locator) Condition[browser.Element] {
	return Condition[browser.Element]{
		Description: "visibility of " + loc.String(),
		Poll: func(ctx context.Context, s browser.Session) (browser.Element, error) {
			return visibleElement(ctx, s, loc)
		},
	}
}

func visibleElement(ctx context.Context, s browser.Session, loc browser.Locator) (browser.Element, error) {
	el, err := browser.FindElement(ctx, s, loc)
	if err != nil {
		return nil, transient(err)
	}
	shown, err := el.IsDisplayed(ctx)
	if err != nil {
		return nil, transient(err)
	}
	if !shown {
		return nil, NotReady("%s present but not displayed", loc)
	}
	return el, nil
}

// Clickable waits for the first element matching loc to be visible,
// enabled, and not covered by another element at its centre.
func Clickable(loc browser.Locator) Condition[browser.Element] {
	return Condition[browser.Element]{
		Description: "clickability of " + loc.String(),
		Poll: func(ctx context.Context, s browser.Session) (browser.Element, error) {
			return clickableElement(ctx, s, loc)
		},
	}
}

func clickableElement(ctx context.Context, s browser.Session, loc browser.Locator) (browser.Element, error) {
	el, err := visibleElement(ctx, s, loc)
	if err != nil {
		return nil, err
	}
	enabled, err := el.IsEnabled(ctx)
	if err != nil {
		return nil, transient(err)
	}
	if !enabled {
		return nil, NotReady("%s displayed but disabled", loc)
	}
	hit, err := s.Eval(ctx, hitTestScript, el)
	if err != nil {
		return nil, transient(err)
	}
	if b, _ := hit.(bool); !b {
		return nil, NotReady("%s is covered by another element", loc)
	}
	return el, nil
}

// ClickWhenReady is an interaction condition: once loc is clickable it
// clicks the element, exactly once, and returns it. A failed click is
// not retried.
func ClickWhenReady(loc browser.Locator) Condition[browser.Element] {
	return Condition[browser.Element]{
		Description: "click on " + loc.String(),
		Poll: func(ctx context.Context, s browser.Session) (browser.Element, error) {
			el, err := clickableElement(ctx, s, loc)
			if err != nil {
				return nil, err
			}
			if err := el.Click(ctx); err != nil {
				return nil, fmt.Errorf("clicking %s: %w", loc, err)
			}
			return el, nil
		},
	}
}

// ScriptEquals waits for script to return a value whose string form
// equals expected's. Values are compared with fmt.Sprint, so a script
// returning the JSON number 3 matches an expected int 3.
func ScriptEquals(script string, expected any) Condition[any] {
	want := fmt.Sprint(expected)
	return Condition[any]{
		Description: fmt.Sprintf("script %q to equal %q", strings.TrimSpace(script), want),
		Poll: func(ctx context.Context, s browser.Session) (any, error) {
			v, err := s.Eval(ctx, script)
			if err != nil {
				return nil, transient(err)
			}
			if got := fmt.Sprint(v); got != want {
				return nil, NotReady("%q", got)
			}
			return v, nil
		},
	}
}

// PageReady waits for document.readyState to be "complete".
func PageReady() Condition[any] {
	return ScriptEquals(ReadyStateScript, "complete")
}

// TitleContains waits for the page title to contain text.
func TitleContains(text string) Condition[string] {
	return Condition[string]{
		Description: fmt.Sprintf("title to contain %q", text),
		Poll: func(ctx context.Context, s browser.Session) (string, error) {
			title, err := s.Title(ctx)
			if err != nil {
				return "", transient(err)
			}
			if !strings.Contains(title, text) {
				return "", NotReady("title %q", title)
			}
			return title, nil
		},
	}
}
