package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/config"
	"github.com/ioanhodean/webharness/internal/session"
	"github.com/ioanhodean/webharness/internal/testutil"
	"github.com/ioanhodean/webharness/internal/wait"
)

// fakeBrowsers hands out prepared fake sessions and remembers them.
type fakeBrowsers struct {
	prepare  func(s *testutil.FakeSession)
	fail     error
	sessions []*testutil.FakeSession
}

func (f *fakeBrowsers) construct(ctx context.Context, cfg config.SessionConfig) (browser.Session, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	s := testutil.NewFakeSession(cfg.Browser)
	if f.prepare != nil {
		f.prepare(s)
	}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeBrowsers) strategies() map[config.BrowserKind]session.Strategies {
	c := session.ConstructorFunc(f.construct)
	return map[config.BrowserKind]session.Strategies{
		config.Chrome:  {Direct: c, Managed: c},
		config.Firefox: {Direct: c, Managed: c},
	}
}

func testConfig(fb *fakeBrowsers) *Config {
	return &Config{
		Timeout:    50 * time.Millisecond,
		Output:     "json",
		LogLevel:   "error",
		Artifacts:  "artifacts",
		Stdout:     &bytes.Buffer{},
		Stderr:     &bytes.Buffer{},
		Fs:         afero.NewMemMapFs(),
		Strategies: fb.strategies(),
	}
}

func stdout(cfg *Config) string { return cfg.Stdout.(*bytes.Buffer).String() }
func stderr(cfg *Config) string { return cfg.Stderr.(*bytes.Buffer).String() }

func assertAllQuit(t *testing.T, fb *fakeBrowsers) {
	t.Helper()
	for i, s := range fb.sessions {
		assert.Equal(t, 1, s.Quits(), fmt.Sprintf("session %d quit count", i))
	}
}

func titledOnNavigate(title string) func(*testutil.FakeSession) {
	return func(s *testutil.FakeSession) {
		s.OnNavigate = func(string) { s.SetTitle(title) }
	}
}

func TestConfigCommand(t *testing.T) {
	fb := &fakeBrowsers{}
	cfg := testConfig(fb)

	code := run([]string{"--browser", "firefox", "--headless", "--private", "--arg=-width=800", "config"}, cfg)
	require.Equal(t, ExitSuccess, code, stderr(cfg))

	var got struct {
		Browser    string   `json:"browser"`
		Headless   bool     `json:"headless"`
		LaunchArgs []string `json:"launchArgs"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout(cfg)), &got))
	assert.Equal(t, "firefox", got.Browser)
	assert.True(t, got.Headless)
	assert.Equal(t, []string{"-private", "-width=800"}, got.LaunchArgs)
	assert.Empty(t, fb.sessions, "config never starts a browser")
}

func TestConfigCommandReadsFile(t *testing.T) {
	fb := &fakeBrowsers{}
	cfg := testConfig(fb)
	cfg.Output = "text"
	require.NoError(t, afero.WriteFile(cfg.Fs, "ci.yaml", []byte("browser: firefox\nfirefox:\n  args: -width=800, -height=600\n"), 0o644))

	code := run([]string{"--config", "ci.yaml", "config"}, cfg)
	require.Equal(t, ExitSuccess, code, stderr(cfg))
	assert.Equal(t, "firefox(headless=false private=false args=[-width=800 -height=600])\n", stdout(cfg))
}

func TestOpen(t *testing.T) {
	fb := &fakeBrowsers{prepare: titledOnNavigate("Example Domain")}
	cfg := testConfig(fb)

	code := run([]string{"open", "https://example.com"}, cfg)
	require.Equal(t, ExitSuccess, code, stderr(cfg))

	var got OpenResult
	require.NoError(t, json.Unmarshal([]byte(stdout(cfg)), &got))
	assert.Equal(t, OpenResult{URL: "https://example.com", Title: "Example Domain", Browser: config.Chrome}, got)

	require.Len(t, fb.sessions, 1)
	assert.Equal(t, []string{"https://example.com"}, fb.sessions[0].Navigated)
	assertAllQuit(t, fb)
}

func TestTitleText(t *testing.T) {
	fb := &fakeBrowsers{prepare: titledOnNavigate("Example Domain")}
	cfg := testConfig(fb)

	code := run([]string{"--output", "text", "title", "--contains", "Example", "https://example.com"}, cfg)
	require.Equal(t, ExitSuccess, code, stderr(cfg))
	assert.Equal(t, "Example Domain\n", stdout(cfg))
	assertAllQuit(t, fb)
}

func TestSessionCreationFailure(t *testing.T) {
	fb := &fakeBrowsers{fail: errors.New("chrome not found")}
	cfg := testConfig(fb)

	code := run([]string{"open", "https://example.com"}, cfg)
	assert.Equal(t, ExitSessionFailed, code)
	assert.Contains(t, stderr(cfg), "chrome not found")
}

func TestTimeoutCapturesScreenshot(t *testing.T) {
	fb := &fakeBrowsers{prepare: titledOnNavigate("Example Domain")}
	cfg := testConfig(fb)

	code := run([]string{"title", "--contains", "Nope", "https://example.com"}, cfg)
	assert.Equal(t, ExitTimeout, code)
	assert.Contains(t, stderr(cfg), "timed out")
	assert.Contains(t, stderr(cfg), "screenshot: artifacts")

	entries, err := afero.ReadDir(cfg.Fs, "artifacts")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "harness_title_"))
	assertAllQuit(t, fb)
}

func searchPage(s *testutil.FakeSession) {
	s.Put(browser.Name("q"), testutil.Ready())
	results := testutil.Ready()
	results.TextValue = "The Go Programming Language golang.org"
	s.Put(browser.ID("search"), results)
	s.SetTitle("golang - Google Search")
}

func TestSearch(t *testing.T) {
	fb := &fakeBrowsers{prepare: searchPage}
	cfg := testConfig(fb)

	code := run([]string{"search", "--expect", "golang.org", "https://www.google.com", "golang"}, cfg)
	require.Equal(t, ExitSuccess, code, stderr(cfg))

	var got SearchResult
	require.NoError(t, json.Unmarshal([]byte(stdout(cfg)), &got))
	assert.Equal(t, "golang", got.Term)
	require.NotNil(t, got.Found)
	assert.True(t, *got.Found)
	assertAllQuit(t, fb)
}

func TestSearchExpectationMissed(t *testing.T) {
	fb := &fakeBrowsers{prepare: searchPage}
	cfg := testConfig(fb)

	code := run([]string{"search", "--expect", "rust-lang.org", "https://www.google.com", "golang"}, cfg)
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr(cfg), `search results do not contain "rust-lang.org"`)
	assertAllQuit(t, fb)
}

func TestSearchBadLocator(t *testing.T) {
	fb := &fakeBrowsers{}
	cfg := testConfig(fb)

	code := run([]string{"search", "--box", "id=", "https://www.google.com", "golang"}, cfg)
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr(cfg), "--box")
	assert.Empty(t, fb.sessions)
}

func TestLogin(t *testing.T) {
	var user *testutil.FakeElement
	fb := &fakeBrowsers{prepare: func(s *testutil.FakeSession) {
		user = testutil.Ready()
		s.Put(browser.ID("username"), user)
		s.Put(browser.ID("password"), testutil.Ready())
		s.Put(browser.ID("login"), testutil.Ready())
		s.SetTitle("Secure Area")
	}}
	cfg := testConfig(fb)

	code := run([]string{"login", "--user", "tomsmith", "--pass", "secret", "https://the-internet.herokuapp.com/login"}, cfg)
	require.Equal(t, ExitSuccess, code, stderr(cfg))
	assert.Equal(t, "tomsmith", user.Value)
	assertAllQuit(t, fb)
}

func TestScreenshot(t *testing.T) {
	fb := &fakeBrowsers{}
	cfg := testConfig(fb)

	code := run([]string{"screenshot", "--dir", "shots", "https://example.com/page"}, cfg)
	require.Equal(t, ExitSuccess, code, stderr(cfg))

	var got ScreenshotResult
	require.NoError(t, json.Unmarshal([]byte(stdout(cfg)), &got))
	assert.Equal(t, "shots", filepath.Dir(got.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(got.Path), "screenshot_example.com_"))

	data, err := afero.ReadFile(cfg.Fs, got.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG fake"), data)
	assert.Equal(t, len(data), got.Size)
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"frobnicate"}},
		{"missing url", []string{"open"}},
		{"unknown browser", []string{"--browser", "safari", "open", "https://example.com"}},
		{"bad log level", []string{"--log-level", "loud", "config"}},
		{"bad output", []string{"--output", "yaml", "config"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBrowsers{}
			cfg := testConfig(fb)
			assert.Equal(t, ExitError, run(tt.args, cfg))
			assert.Contains(t, stderr(cfg), "error:")
			assert.Empty(t, fb.sessions)
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCode(nil))
	assert.Equal(t, ExitError, exitCode(errors.New("boom")))
	assert.Equal(t, ExitTimeout, exitCode(&wait.TimeoutError{Description: "x"}))
	assert.Equal(t, ExitTimeout, exitCode(fmt.Errorf("navigating: %w", context.DeadlineExceeded)))
	assert.Equal(t, ExitSessionFailed, exitCode(&session.SessionCreationError{
		Browser: config.Chrome,
		Direct:  context.DeadlineExceeded,
		Managed: errors.New("download failed"),
	}))
}
