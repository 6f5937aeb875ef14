package chrome

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ioanhodean/webharness/internal/browser"
)

// finderScript returns every element matched by a strategy and value.
const finderScript = `
var by = arguments[0], value = arguments[1], out = [];
if (by === "xpath") {
  var snap = document.evaluate(value, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
  for (var i = 0; i < snap.snapshotLength; i++) out.push(snap.snapshotItem(i));
  return out;
}
if (by === "link") {
  return Array.prototype.filter.call(document.querySelectorAll("a"), function(a) {
    return a.textContent.trim() === value;
  });
}
return Array.prototype.slice.call(document.querySelectorAll(value));
`

// Navigate loads url and waits for the load event, bounded by the page
// load timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	ctx, cancel := bounded(ctx, s.currentTimeouts().PageLoad)
	defer cancel()

	loadCh := s.client.subscribeEvent(s.sessionID, "Page.loadEventFired")
	defer s.client.unsubscribeEvent(s.sessionID, "Page.loadEventFired", loadCh)

	navResult, err := s.call(ctx, "Page.navigate", map[string]string{"url": url})
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}

	var navResp struct {
		FrameID   string `json:"frameId"`
		LoaderID  string `json:"loaderId"`
		ErrorText string `json:"errorText"`
	}
	if err := json.Unmarshal(navResult, &navResp); err != nil {
		return fmt.Errorf("parsing navigate response: %w", err)
	}
	if navResp.ErrorText != "" {
		return fmt.Errorf("navigating to %s: %s", url, navResp.ErrorText)
	}
	// Same-document navigations have no loader and fire no load event.
	if navResp.LoaderID == "" {
		return nil
	}

	select {
	case <-loadCh:
		return nil
	case <-s.client.closeCh:
		return browser.ErrSessionClosed
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s to load: %w", url, ctx.Err())
	}
}

// Eval runs script as a function body with args bound to arguments[i].
func (s *Session) Eval(ctx context.Context, script string, args ...any) (any, error) {
	ctx, cancel := bounded(ctx, s.currentTimeouts().Script)
	defer cancel()

	cargs, err := s.callArgs(args)
	if err != nil {
		return nil, err
	}
	obj, err := s.callFunction(ctx, "", "function() {\n"+script+"\n}", cargs, true)
	if err != nil {
		return nil, err
	}
	return obj.Value, nil
}

func (s *Session) callArgs(args []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(args))
	for _, a := range args {
		if el, ok := a.(browser.Element); ok {
			ce, ok := el.(*Element)
			if !ok || ce.session != s {
				return nil, ErrForeignElement
			}
			out = append(out, map[string]any{"objectId": ce.objectID})
			continue
		}
		out = append(out, map[string]any{"value": a})
	}
	return out, nil
}

// callFunction runs decl with this bound to objectID, or to the page's
// global object when objectID is empty.
func (s *Session) callFunction(ctx context.Context, objectID, decl string, args []map[string]any, byValue bool) (*remoteObject, error) {
	if objectID == "" {
		global, err := s.globalObject(ctx)
		if err != nil {
			return nil, err
		}
		objectID = global
	}

	params := map[string]any{
		"functionDeclaration": decl,
		"objectId":            objectID,
		"returnByValue":       byValue,
		"awaitPromise":        true,
	}
	if len(args) > 0 {
		params["arguments"] = args
	}
	result, err := s.call(ctx, "Runtime.callFunctionOn", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result           remoteObject      `json:"result"`
		ExceptionDetails *exceptionDetails `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parsing call response: %w", err)
	}
	if resp.ExceptionDetails != nil {
		return nil, mapError(resp.ExceptionDetails.err())
	}
	return &resp.Result, nil
}

func (s *Session) globalObject(ctx context.Context) (string, error) {
	result, err := s.call(ctx, "Runtime.evaluate", map[string]any{"expression": "globalThis"})
	if err != nil {
		return "", err
	}
	var resp struct {
		Result remoteObject `json:"result"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("parsing evaluate response: %w", err)
	}
	if resp.Result.ObjectID == "" {
		return "", fmt.Errorf("no global object in page")
	}
	return resp.Result.ObjectID, nil
}

// FindElements returns handles to every element loc matches, in document
// order. No match is an empty slice, not an error.
func (s *Session) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	by, value := "css", ""
	switch loc.By {
	case browser.ByXPath:
		by, value = "xpath", loc.Value
	case browser.ByLinkText:
		by, value = "link", loc.Value
	default:
		sel, ok := loc.CSSSelector()
		if !ok {
			return nil, fmt.Errorf("%w: %s", browser.ErrUnsupportedLocator, loc)
		}
		value = sel
	}

	ctx, cancel := bounded(ctx, s.currentTimeouts().Script)
	defer cancel()

	arr, err := s.callFunction(ctx, "", "function() {\n"+finderScript+"\n}", []map[string]any{
		{"value": by}, {"value": value},
	}, false)
	if err != nil {
		return nil, fmt.Errorf("finding %s: %w", loc, err)
	}
	if arr.ObjectID == "" {
		return nil, nil
	}
	defer s.release(arr.ObjectID)

	result, err := s.call(ctx, "Runtime.getProperties", map[string]any{
		"objectId":      arr.ObjectID,
		"ownProperties": true,
	})
	if err != nil {
		return nil, fmt.Errorf("reading matches for %s: %w", loc, err)
	}
	var props struct {
		Result []struct {
			Name  string        `json:"name"`
			Value *remoteObject `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(result, &props); err != nil {
		return nil, fmt.Errorf("parsing properties: %w", err)
	}

	type indexed struct {
		i  int
		id string
	}
	var found []indexed
	for _, p := range props.Result {
		i, err := strconv.Atoi(p.Name)
		if err != nil || p.Value == nil || p.Value.ObjectID == "" {
			continue
		}
		found = append(found, indexed{i, p.Value.ObjectID})
	}
	sort.Slice(found, func(a, b int) bool { return found[a].i < found[b].i })

	els := make([]browser.Element, len(found))
	for n, f := range found {
		els[n] = &Element{session: s, objectID: f.id}
	}
	return els, nil
}

func (s *Session) release(objectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.call(ctx, "Runtime.releaseObject", map[string]any{"objectId": objectID})
}

// Title returns document.title.
func (s *Session) Title(ctx context.Context) (string, error) {
	v, err := s.Eval(ctx, "return document.title")
	if err != nil {
		return "", err
	}
	title, _ := v.(string)
	return title, nil
}

// Source returns the outer HTML of the document.
func (s *Session) Source(ctx context.Context) (string, error) {
	result, err := s.call(ctx, "DOM.getDocument", map[string]any{"depth": -1})
	if err != nil {
		return "", fmt.Errorf("getting document: %w", err)
	}
	var docResult struct {
		Root struct {
			NodeID int `json:"nodeId"`
		} `json:"root"`
	}
	if err := json.Unmarshal(result, &docResult); err != nil {
		return "", fmt.Errorf("parsing document: %w", err)
	}

	result, err = s.call(ctx, "DOM.getOuterHTML", map[string]any{"nodeId": docResult.Root.NodeID})
	if err != nil {
		return "", fmt.Errorf("getting outer HTML: %w", err)
	}
	var htmlResult struct {
		OuterHTML string `json:"outerHTML"`
	}
	if err := json.Unmarshal(result, &htmlResult); err != nil {
		return "", fmt.Errorf("parsing outer HTML: %w", err)
	}
	return htmlResult.OuterHTML, nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	result, err := s.call(ctx, "Page.captureScreenshot", map[string]any{"format": "png"})
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	var shot struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(result, &shot); err != nil {
		return nil, fmt.Errorf("parsing screenshot response: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(shot.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding screenshot data: %w", err)
	}
	return data, nil
}
