// Package config resolves the browser session configuration from built-in
// defaults, a YAML file, environment variables and explicit overrides.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// BrowserKind names the browser engine a session must run.
type BrowserKind string

const (
	Chrome  BrowserKind = "chrome"
	Firefox BrowserKind = "firefox"
)

// DefaultBrowser is used when neither an override nor the file names a browser.
const DefaultBrowser = Chrome

// Errors
var (
	ErrUnknownBrowser  = errors.New("unknown browser")
	ErrNegativeTimeout = errors.New("timeout must not be negative")
)

// ParseBrowserKind parses a browser name case-insensitively.
func ParseBrowserKind(s string) (BrowserKind, error) {
	switch BrowserKind(strings.ToLower(strings.TrimSpace(s))) {
	case Chrome:
		return Chrome, nil
	case Firefox:
		return Firefox, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBrowser, s)
}

// Timeouts are applied to a session right after construction.
type Timeouts struct {
	PageLoad     time.Duration `json:"pageLoad"`
	ImplicitWait time.Duration `json:"implicitWait"`
	Script       time.Duration `json:"script"`
}

// DefaultTimeouts returns pageLoad=30s, implicitWait=0, script=30s.
// Implicit waits stay disabled so explicit waits never compound with them.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		PageLoad:     30 * time.Second,
		ImplicitWait: 0,
		Script:       30 * time.Second,
	}
}

// Validate rejects negative durations.
func (t Timeouts) Validate() error {
	for name, d := range map[string]time.Duration{
		"pageLoad":     t.PageLoad,
		"implicitWait": t.ImplicitWait,
		"script":       t.Script,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s=%s", ErrNegativeTimeout, name, d)
		}
	}
	return nil
}

// SessionConfig describes how to build a browser session. Treat it as a
// value: Build copies ExtraArgs, and nothing in this module mutates a
// config after it has been built.
type SessionConfig struct {
	Browser   BrowserKind `json:"browser"`
	Headless  bool        `json:"headless"`
	Private   bool        `json:"private"` // incognito for chrome, private browsing for firefox
	ExtraArgs []string    `json:"args"`
	Timeouts  Timeouts    `json:"timeouts"`

	// BinaryPath pins the browser executable for direct construction.
	BinaryPath string `json:"binary,omitempty"`
	// DriverPath pins the geckodriver executable for direct firefox construction.
	DriverPath string `json:"driver,omitempty"`
}

// Default returns the hardcoded defaults: chrome, not headless, not private,
// no extra args, default timeouts.
func Default() SessionConfig {
	return SessionConfig{
		Browser:  DefaultBrowser,
		Timeouts: DefaultTimeouts(),
	}
}

// Build validates cfg and returns a copy that shares no memory with it.
func Build(cfg SessionConfig) (SessionConfig, error) {
	if cfg.Browser == "" {
		cfg.Browser = DefaultBrowser
	}
	kind, err := ParseBrowserKind(string(cfg.Browser))
	if err != nil {
		return SessionConfig{}, err
	}
	cfg.Browser = kind
	if err := cfg.Timeouts.Validate(); err != nil {
		return SessionConfig{}, err
	}
	cfg.ExtraArgs = slices.Clone(cfg.ExtraArgs)
	return cfg, nil
}

// PrivacyFlag returns the browser-specific flag for incognito/private mode.
func (c SessionConfig) PrivacyFlag() string {
	if c.Browser == Firefox {
		return "-private"
	}
	return "--incognito"
}

// LaunchArgs assembles the browser arguments: the privacy flag when
// requested, then ExtraArgs verbatim and in order. Duplicates are passed
// through untouched; the browser decides what a repeated flag means.
// Headless is not included here because every transport applies it natively.
func (c SessionConfig) LaunchArgs() []string {
	args := make([]string, 0, len(c.ExtraArgs)+1)
	if c.Private {
		args = append(args, c.PrivacyFlag())
	}
	return append(args, c.ExtraArgs...)
}

// Equal reports whether two configs would build the same session.
func (c SessionConfig) Equal(o SessionConfig) bool {
	return c.Browser == o.Browser &&
		c.Headless == o.Headless &&
		c.Private == o.Private &&
		c.Timeouts == o.Timeouts &&
		c.BinaryPath == o.BinaryPath &&
		c.DriverPath == o.DriverPath &&
		slices.Equal(c.ExtraArgs, o.ExtraArgs)
}

// String renders a short description for log lines.
func (c SessionConfig) String() string {
	return fmt.Sprintf("%s(headless=%t private=%t args=%v)", c.Browser, c.Headless, c.Private, c.ExtraArgs)
}

// SplitArgs splits a comma-separated argument list, trimming blanks and
// dropping empty entries.
func SplitArgs(s string) []string {
	var args []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			args = append(args, part)
		}
	}
	return args
}
