package chrome

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/chrome/launcher"
	"github.com/ioanhodean/webharness/internal/config"
)

type handler func(params json.RawMessage) (any, *ProtocolError)

// fakeChrome answers CDP commands from a table of handlers.
type fakeChrome struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	handlers map[string]handler
	calls    []cdpRequest
	conns    []*websocket.Conn
	loadWait bool // when set, Page.loadEventFired is never sent
}

func newFakeChrome(t *testing.T) *fakeChrome {
	t.Helper()
	f := &fakeChrome{t: t, handlers: map[string]handler{}}

	ok := func(json.RawMessage) (any, *ProtocolError) { return map[string]any{}, nil }
	f.handlers["Target.getTargets"] = func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"targetInfos": []map[string]any{
			{"targetId": "worker-1", "type": "service_worker"},
			{"targetId": "page-1", "type": "page"},
		}}, nil
	}
	f.handlers["Target.attachToTarget"] = func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"sessionId": "S1"}, nil
	}
	f.handlers["Page.enable"] = ok
	f.handlers["Runtime.enable"] = ok
	f.handlers["DOM.enable"] = ok
	f.handlers["Runtime.releaseObject"] = ok
	f.handlers["Runtime.evaluate"] = func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"result": map[string]any{"type": "object", "objectId": "global"}}, nil
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"webSocketDebuggerUrl": "ws://" + r.Host + "/devtools/browser/fake",
		})
	})
	mux.HandleFunc("/devtools/browser/fake", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
		f.serve(conn)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeChrome) serve(conn *websocket.Conn) {
	defer conn.Close()
	for {
		var req cdpRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		f.mu.Lock()
		f.calls = append(f.calls, req)
		h := f.handlers[req.Method]
		loadWait := f.loadWait
		f.mu.Unlock()

		resp := map[string]any{"id": req.ID}
		if req.SessionID != "" {
			resp["sessionId"] = req.SessionID
		}
		if h == nil {
			resp["error"] = &ProtocolError{Code: -32601, Message: "'" + req.Method + "' wasn't found"}
		} else if result, perr := h(req.Params); perr != nil {
			resp["error"] = perr
		} else {
			resp["result"] = result
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}

		if req.Method == "Page.navigate" && !loadWait {
			conn.WriteJSON(map[string]any{
				"method":    "Page.loadEventFired",
				"sessionId": req.SessionID,
				"params":    map[string]any{"timestamp": 1},
			})
		}
	}
}

func (f *fakeChrome) on(method string, h handler) {
	f.mu.Lock()
	f.handlers[method] = h
	f.mu.Unlock()
}

func (f *fakeChrome) callsTo(method string) []cdpRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []cdpRequest
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// dropConnections simulates the browser process dying.
func (f *fakeChrome) dropConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		c.Close()
	}
}

func (f *fakeChrome) attach(t *testing.T) *Session {
	t.Helper()
	u, err := url.Parse(f.srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	ctx := context.Background()
	client, err := Connect(ctx, u.Hostname(), port)
	require.NoError(t, err)
	s, err := Attach(ctx, client, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Quit(context.Background()) })
	return s
}

func TestAttachUsesFirstPageTarget(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	s := f.attach(t)

	assert.Equal(t, "page-1", s.targetID)
	assert.Equal(t, "S1", s.sessionID)
	assert.Equal(t, config.Chrome, s.Kind())

	var params struct {
		TargetID string `json:"targetId"`
		Flatten  bool   `json:"flatten"`
	}
	attach := f.callsTo("Target.attachToTarget")
	require.Len(t, attach, 1)
	require.NoError(t, json.Unmarshal(attach[0].Params, &params))
	assert.Equal(t, "page-1", params.TargetID)
	assert.True(t, params.Flatten)
	assert.Len(t, f.callsTo("Runtime.enable"), 1)
}

func TestNavigateWaitsForLoad(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	f.on("Page.navigate", func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"frameId": "F", "loaderId": "L1"}, nil
	})
	s := f.attach(t)

	require.NoError(t, s.Navigate(context.Background(), "https://example.com"))

	nav := f.callsTo("Page.navigate")
	require.Len(t, nav, 1)
	assert.Equal(t, "S1", nav[0].SessionID)
	assert.JSONEq(t, `{"url":"https://example.com"}`, string(nav[0].Params))
}

func TestNavigateErrorText(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	f.on("Page.navigate", func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"frameId": "F", "errorText": "net::ERR_NAME_NOT_RESOLVED"}, nil
	})
	s := f.attach(t)

	err := s.Navigate(context.Background(), "https://nowhere.invalid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
}

func TestNavigateBoundedByPageLoadTimeout(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	f.loadWait = true
	f.on("Page.navigate", func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"frameId": "F", "loaderId": "L1"}, nil
	})
	s := f.attach(t)

	timeouts := config.DefaultTimeouts()
	timeouts.PageLoad = 100 * time.Millisecond
	require.NoError(t, s.SetTimeouts(context.Background(), timeouts))

	start := time.Now()
	err := s.Navigate(context.Background(), "https://slow.example")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEvalBindsArguments(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	f.on("Runtime.callFunctionOn", func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"result": map[string]any{"type": "number", "value": 42}}, nil
	})
	s := f.attach(t)

	v, err := s.Eval(context.Background(), "return arguments[0] + arguments[1]", 40, 2)
	require.NoError(t, err)
	assert.Equal(t, float64(42), v)

	calls := f.callsTo("Runtime.callFunctionOn")
	require.Len(t, calls, 1)
	var params struct {
		FunctionDeclaration string           `json:"functionDeclaration"`
		ObjectID            string           `json:"objectId"`
		Arguments           []map[string]any `json:"arguments"`
		ReturnByValue       bool             `json:"returnByValue"`
	}
	require.NoError(t, json.Unmarshal(calls[0].Params, &params))
	assert.Contains(t, params.FunctionDeclaration, "return arguments[0] + arguments[1]")
	assert.Equal(t, "global", params.ObjectID)
	assert.True(t, params.ReturnByValue)
	assert.Equal(t, []map[string]any{{"value": float64(40)}, {"value": float64(2)}}, params.Arguments)
}

func TestEvalZeroValueArgumentsSurvive(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	f.on("Runtime.callFunctionOn", func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"result": map[string]any{"type": "undefined"}}, nil
	})
	s := f.attach(t)

	_, err := s.Eval(context.Background(), "return arguments[0]", "", false, 0)
	require.NoError(t, err)

	calls := f.callsTo("Runtime.callFunctionOn")
	require.Len(t, calls, 1)
	assert.Contains(t, string(calls[0].Params), `"arguments":[{"value":""},{"value":false},{"value":0}]`)
}

func TestEvalScriptException(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	f.on("Runtime.callFunctionOn", func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{
			"result":           map[string]any{"type": "object"},
			"exceptionDetails": map[string]any{"text": "Uncaught", "exception": map[string]any{"type": "string", "value": "ReferenceError: boom is not defined"}},
		}, nil
	})
	s := f.attach(t)

	_, err := s.Eval(context.Background(), "return boom()")
	var se *ScriptError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Text, "boom is not defined")
}

func TestTitle(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	f.on("Runtime.callFunctionOn", func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"result": map[string]any{"type": "string", "value": "Example Domain"}}, nil
	})
	s := f.attach(t)

	title, err := s.Title(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Example Domain", title)
}

func installFinder(f *fakeChrome) {
	f.on("Runtime.callFunctionOn", func(raw json.RawMessage) (any, *ProtocolError) {
		var p struct {
			ObjectID      string `json:"objectId"`
			ReturnByValue bool   `json:"returnByValue"`
		}
		json.Unmarshal(raw, &p)
		switch {
		case !p.ReturnByValue:
			return map[string]any{"result": map[string]any{"type": "object", "subtype": "array", "objectId": "matches"}}, nil
		case p.ObjectID == "el-gone":
			return nil, &ProtocolError{Code: -32000, Message: "Could not find object with given id"}
		case p.ObjectID == "el-1":
			return map[string]any{"result": map[string]any{"type": "string", "value": "first"}}, nil
		}
		return map[string]any{"result": map[string]any{"type": "boolean", "value": true}}, nil
	})
	f.on("Runtime.getProperties", func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"result": []map[string]any{
			{"name": "1", "value": map[string]any{"type": "object", "objectId": "el-2"}},
			{"name": "0", "value": map[string]any{"type": "object", "objectId": "el-1"}},
			{"name": "length", "value": map[string]any{"type": "number", "value": 2}},
			{"name": "__proto__", "value": map[string]any{"type": "object", "objectId": "proto"}},
		}}, nil
	})
}

func TestFindElementsDocumentOrder(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	installFinder(f)
	s := f.attach(t)

	els, err := s.FindElements(context.Background(), browser.Name("q"))
	require.NoError(t, err)
	require.Len(t, els, 2)
	assert.Equal(t, "el-1", els[0].(*Element).objectID)
	assert.Equal(t, "el-2", els[1].(*Element).objectID)

	finder := f.callsTo("Runtime.callFunctionOn")[0]
	assert.Contains(t, string(finder.Params), `{"value":"css"},{"value":"[name=\"q\"]"}`)
	assert.Len(t, f.callsTo("Runtime.releaseObject"), 1)

	text, err := els[0].Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", text)
}

func TestFindElementsXPathPassesRawValue(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	installFinder(f)
	s := f.attach(t)

	_, err := s.FindElements(context.Background(), browser.XPath("//input[@name='q']"))
	require.NoError(t, err)
	finder := f.callsTo("Runtime.callFunctionOn")[0]
	assert.Contains(t, string(finder.Params), `{"value":"xpath"},{"value":"//input[@name='q']"}`)
}

func TestFindElementsUnsupportedLocator(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	s := f.attach(t)

	_, err := s.FindElements(context.Background(), browser.Locator{})
	assert.ErrorIs(t, err, browser.ErrUnsupportedLocator)
}

func TestElementPassedToEval(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	installFinder(f)
	s := f.attach(t)

	els, err := s.FindElements(context.Background(), browser.ID("go"))
	require.NoError(t, err)

	_, err = s.Eval(context.Background(), "return arguments[0].id", els[1])
	require.NoError(t, err)

	calls := f.callsTo("Runtime.callFunctionOn")
	last := calls[len(calls)-1]
	assert.Contains(t, string(last.Params), `"arguments":[{"objectId":"el-2"}]`)

	other := &Element{session: &Session{}, objectID: "x"}
	_, err = s.Eval(context.Background(), "return 1", other)
	assert.ErrorIs(t, err, ErrForeignElement)
}

func TestStaleElement(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	installFinder(f)
	s := f.attach(t)

	el := &Element{session: s, objectID: "el-gone"}
	_, err := el.IsDisplayed(context.Background())
	assert.ErrorIs(t, err, browser.ErrStaleElement)
}

func TestElementClickDispatchesMouse(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	installFinder(f)
	f.on("DOM.getBoxModel", func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"model": map[string]any{"content": []float64{10, 20, 30, 20, 30, 40, 10, 40}}}, nil
	})
	f.on("Input.dispatchMouseEvent", func(json.RawMessage) (any, *ProtocolError) { return map[string]any{}, nil })
	s := f.attach(t)

	el := &Element{session: s, objectID: "el-1"}
	require.NoError(t, el.Click(context.Background()))

	mouse := f.callsTo("Input.dispatchMouseEvent")
	require.Len(t, mouse, 3)
	assert.Contains(t, string(mouse[1].Params), `"type":"mousePressed"`)
	assert.Contains(t, string(mouse[1].Params), `"x":20`)
	assert.Contains(t, string(mouse[1].Params), `"y":30`)
}

func TestElementSendKeysSplitsSpecialKeys(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	ok := func(json.RawMessage) (any, *ProtocolError) { return map[string]any{}, nil }
	f.on("DOM.focus", ok)
	f.on("Input.insertText", ok)
	f.on("Input.dispatchKeyEvent", ok)
	s := f.attach(t)

	el := &Element{session: s, objectID: "el-1"}
	require.NoError(t, el.SendKeys(context.Background(), "golang"+browser.KeyEnter))

	inserts := f.callsTo("Input.insertText")
	require.Len(t, inserts, 1)
	assert.JSONEq(t, `{"text":"golang"}`, string(inserts[0].Params))

	keys := f.callsTo("Input.dispatchKeyEvent")
	require.Len(t, keys, 2)
	assert.Contains(t, string(keys[0].Params), `"key":"Enter"`)
	assert.Contains(t, string(keys[0].Params), `"text":"\r"`)
}

func TestScreenshotAndSource(t *testing.T) {
	t.Parallel()

	png := []byte("\x89PNG\r\n\x1a\n")
	f := newFakeChrome(t)
	f.on("Page.captureScreenshot", func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"data": base64.StdEncoding.EncodeToString(png)}, nil
	})
	f.on("DOM.getDocument", func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"root": map[string]any{"nodeId": 1}}, nil
	})
	f.on("DOM.getOuterHTML", func(json.RawMessage) (any, *ProtocolError) {
		return map[string]any{"outerHTML": "<html><body>golang</body></html>"}, nil
	})
	s := f.attach(t)

	shot, err := s.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, png, shot)

	src, err := s.Source(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.Contains(src, "golang"))
}

func TestBrowserGoneMapsToSessionClosed(t *testing.T) {
	t.Parallel()

	f := newFakeChrome(t)
	s := f.attach(t)

	f.dropConnections()
	require.Eventually(t, func() bool { return s.client.closed.Load() }, time.Second, 10*time.Millisecond)

	_, err := s.Title(context.Background())
	assert.ErrorIs(t, err, browser.ErrSessionClosed)
	assert.ErrorIs(t, s.SetTimeouts(context.Background(), config.DefaultTimeouts()), browser.ErrSessionClosed)
}

func TestLaunchRealChrome(t *testing.T) {
	t.Parallel()

	if launcher.FindChrome("") == "" {
		t.Skip("Chrome not found on this system")
	}

	cfg := config.Default()
	cfg.Headless = true
	ctx := context.Background()

	s, err := Launch(ctx, cfg, nil)
	require.NoError(t, err)
	defer s.Quit(ctx)

	require.NoError(t, s.Navigate(ctx, "data:text/html,<title>hello</title><input id=q>"))
	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", title)

	els, err := s.FindElements(ctx, browser.ID("q"))
	require.NoError(t, err)
	require.Len(t, els, 1)
	require.NoError(t, els[0].SendKeys(ctx, "abc"))

	v, err := s.Eval(ctx, "return arguments[0].value", els[0])
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Quit(ctx))
	_, err = s.Title(ctx)
	assert.ErrorIs(t, err, browser.ErrSessionClosed)
}
