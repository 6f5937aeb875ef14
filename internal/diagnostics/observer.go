// Package diagnostics records test lifecycle events and saves a
// screenshot of the live session when a test fails.
package diagnostics

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/ioanhodean/webharness/internal/browser"
)

// DefaultDir is where screenshots go when no directory is configured.
const DefaultDir = "artifacts/screenshots"

const (
	timestampLayout = "20060102_150405"
	captureTimeout  = 15 * time.Second
)

// SessionSource exposes the live session, if there is one.
type SessionSource interface {
	Current() (browser.Session, bool)
}

// Observer captures failure screenshots. It only reads the session; it
// never creates or destroys one.
type Observer struct {
	Fs     afero.Fs
	Dir    string
	Source SessionSource
	Clock  clock.Clock
	Logger logrus.FieldLogger

	mu                      sync.Mutex
	passed, failed, skipped int
}

// NewObserver writes screenshots into dir on fs.
func NewObserver(fs afero.Fs, dir string, source SessionSource, logger logrus.FieldLogger) *Observer {
	if dir == "" {
		dir = DefaultDir
	}
	return &Observer{Fs: fs, Dir: dir, Source: source, Clock: clock.New(), Logger: logger}
}

func (o *Observer) logger() logrus.FieldLogger {
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return o.Logger
}

func (o *Observer) now() time.Time {
	if o.Clock == nil {
		return time.Now()
	}
	return o.Clock.Now()
}

// ArtifactName returns "<class>_<name>_<yyyyMMdd_HHmmss>.png". Path
// separators and spaces in class and name become underscores.
func ArtifactName(class, name string, at time.Time) string {
	parts := make([]string, 0, 3)
	if class != "" {
		parts = append(parts, sanitize(class))
	}
	parts = append(parts, sanitize(name), at.Format(timestampLayout))
	return strings.Join(parts, "_") + ".png"
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}

// Capture saves a screenshot of the current session and returns its path.
// With no live session it logs and returns "" and a nil error.
func (o *Observer) Capture(ctx context.Context, class, name string) (string, error) {
	log := o.logger().WithField("test", name)
	var s browser.Session
	ok := false
	if o.Source != nil {
		s, ok = o.Source.Current()
	}
	if !ok {
		log.Warn("no live session, cannot take screenshot")
		return "", nil
	}

	png, err := s.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("taking screenshot: %w", err)
	}
	if err := o.Fs.MkdirAll(o.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", o.Dir, err)
	}
	path := filepath.Join(o.Dir, ArtifactName(class, name, o.now()))
	if err := afero.WriteFile(o.Fs, path, png, 0o644); err != nil {
		return "", fmt.Errorf("writing screenshot: %w", err)
	}
	log.WithField("path", path).Info("screenshot saved")
	return path, nil
}

func (o *Observer) TestStarted(name string) {
	o.logger().WithField("test", name).Info("starting test")
}

func (o *Observer) TestPassed(name string) {
	o.count(&o.passed)
	o.logger().WithField("test", name).Info("test passed")
}

func (o *Observer) TestSkipped(name string) {
	o.count(&o.skipped)
	o.logger().WithField("test", name).Info("test skipped")
}

// TestFailed logs the failure and captures a screenshot. Capture errors
// are logged, never returned, so they cannot hide the failure itself.
func (o *Observer) TestFailed(ctx context.Context, class, name string) string {
	o.count(&o.failed)
	o.logger().WithField("test", name).Info("test failed, taking screenshot")
	path, err := o.Capture(ctx, class, name)
	if err != nil {
		o.logger().WithField("test", name).WithError(err).Error("failed to capture screenshot")
	}
	return path
}

// Summary holds lifecycle counts.
type Summary struct {
	Passed, Failed, Skipped int
}

// Finish logs and returns the counts recorded so far.
func (o *Observer) Finish(suite string) Summary {
	o.mu.Lock()
	sum := Summary{Passed: o.passed, Failed: o.failed, Skipped: o.skipped}
	o.mu.Unlock()
	o.logger().WithFields(logrus.Fields{
		"suite":   suite,
		"passed":  sum.Passed,
		"failed":  sum.Failed,
		"skipped": sum.Skipped,
	}).Info("finished test suite")
	return sum
}

func (o *Observer) count(n *int) {
	o.mu.Lock()
	*n++
	o.mu.Unlock()
}

// Watch logs t's start now and its outcome when it finishes, capturing
// a screenshot if it failed.
func (o *Observer) Watch(t testing.TB, class string) {
	t.Helper()
	name := t.Name()
	o.TestStarted(name)
	t.Cleanup(func() {
		switch {
		case t.Skipped():
			o.TestSkipped(name)
		case t.Failed():
			ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
			defer cancel()
			o.TestFailed(ctx, class, name)
		default:
			o.TestPassed(name)
		}
	})
}
