package chrome

import (
	"context"
	"fmt"

	"github.com/ioanhodean/webharness/internal/browser"
)

// Element is a DOM element held by its remote object id. It goes stale
// when the page navigates.
type Element struct {
	session  *Session
	objectID string
}

var _ browser.Element = (*Element)(nil)

const (
	scrollIntoViewFn = `function() { this.scrollIntoView({block: "center", inline: "center"}); }`
	clearFn          = `function() {
  this.focus();
  if ("value" in this) this.value = "";
  else if (this.isContentEditable) this.textContent = "";
  this.dispatchEvent(new Event("input", {bubbles: true}));
  this.dispatchEvent(new Event("change", {bubbles: true}));
}`
	textFn      = `function() { return (this.innerText === undefined ? this.textContent : this.innerText).trim(); }`
	displayedFn = `function() {
  var st = window.getComputedStyle(this);
  if (st.display === "none" || st.visibility === "hidden" || st.visibility === "collapse") return false;
  if (parseFloat(st.opacity) === 0) return false;
  var r = this.getBoundingClientRect();
  return r.width > 0 && r.height > 0;
}`
	enabledFn = `function() { return !this.disabled; }`
)

func (e *Element) call(ctx context.Context, fn string) (any, error) {
	ctx, cancel := bounded(ctx, e.session.currentTimeouts().Script)
	defer cancel()
	obj, err := e.session.callFunction(ctx, e.objectID, fn, nil, true)
	if err != nil {
		return nil, err
	}
	return obj.Value, nil
}

// Click scrolls the element into view and clicks the centre of its box
// with real mouse events.
func (e *Element) Click(ctx context.Context) error {
	if _, err := e.call(ctx, scrollIntoViewFn); err != nil {
		return err
	}
	x, y, err := e.session.boxCenter(ctx, e.objectID)
	if err != nil {
		return err
	}
	return e.session.dispatchMouseClick(ctx, x, y)
}

// SendKeys focuses the element and types text, pressing special keys
// where text holds WebDriver key code points.
func (e *Element) SendKeys(ctx context.Context, text string) error {
	if _, err := e.session.call(ctx, "DOM.focus", map[string]any{"objectId": e.objectID}); err != nil {
		return fmt.Errorf("focusing element: %w", err)
	}
	for _, chunk := range browser.SplitKeys(text) {
		var err error
		if chunk.Key != "" {
			err = e.session.pressKey(ctx, chunk.Key)
		} else {
			err = e.session.insertText(ctx, chunk.Text)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Element) Clear(ctx context.Context) error {
	_, err := e.call(ctx, clearFn)
	return err
}

func (e *Element) Text(ctx context.Context) (string, error) {
	v, err := e.call(ctx, textFn)
	if err != nil {
		return "", err
	}
	text, _ := v.(string)
	return text, nil
}

func (e *Element) IsDisplayed(ctx context.Context) (bool, error) {
	v, err := e.call(ctx, displayedFn)
	if err != nil {
		return false, err
	}
	shown, _ := v.(bool)
	return shown, nil
}

func (e *Element) IsEnabled(ctx context.Context) (bool, error) {
	v, err := e.call(ctx, enabledFn)
	if err != nil {
		return false, err
	}
	enabled, _ := v.(bool)
	return enabled, nil
}
