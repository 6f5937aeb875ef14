// Package wait polls conditions against a live browser session until they
// are satisfied, time out, or fail.
package wait

import (
	"context"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/ioanhodean/webharness/internal/browser"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Condition evaluates a session and either returns a ready value, returns
// an error from NotReady, or fails. Poll must not change session state,
// except for interaction conditions that say otherwise.
type Condition[T any] struct {
	Description string
	Poll        func(ctx context.Context, s browser.Session) (T, error)
}

// Engine holds the clock and defaults used by Await and For. A nil *Engine
// uses the real clock and the package defaults.
type Engine struct {
	Clock        clock.Clock
	Logger       logrus.FieldLogger
	Timeout      time.Duration
	PollInterval time.Duration
}

// NewEngine returns an engine on the real clock with the given defaults.
func NewEngine(logger logrus.FieldLogger, timeout, poll time.Duration) *Engine {
	return &Engine{
		Clock:        clock.New(),
		Logger:       logger,
		Timeout:      timeout,
		PollInterval: poll,
	}
}

func (e *Engine) clock() clock.Clock {
	if e == nil || e.Clock == nil {
		return clock.New()
	}
	return e.Clock
}

func (e *Engine) logger() logrus.FieldLogger {
	if e == nil || e.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return e.Logger
}

// Defaults returns the engine's default timeout and poll interval.
func (e *Engine) Defaults() (timeout, poll time.Duration) {
	timeout, poll = DefaultTimeout, DefaultPollInterval
	if e != nil && e.Timeout > 0 {
		timeout = e.Timeout
	}
	if e != nil && e.PollInterval > 0 {
		poll = e.PollInterval
	}
	return timeout, poll
}

// For awaits c with the engine's default timeout and poll interval.
func For[T any](ctx context.Context, e *Engine, s browser.Session, c Condition[T]) (T, error) {
	timeout, poll := e.Defaults()
	return Await(ctx, e, s, c, timeout, poll)
}

// Await polls c until it returns a value, timeout elapses, or the
// condition fails. A ready value is returned immediately without sleeping.
// Between polls the engine sleeps for poll, clipped to the remaining budget.
// Each evaluation runs under a context ending at the overall deadline, and
// a poll that outlives that deadline counts as a timeout.
//
// A zero timeout evaluates c exactly once. A non-NotReady error from c,
// or ctx ending, yields *EvaluationError; running out of time yields
// *TimeoutError.
func Await[T any](ctx context.Context, e *Engine, s browser.Session, c Condition[T], timeout, poll time.Duration) (T, error) {
	var zero T
	clk := e.clock()
	log := e.logger().WithField("condition", c.Description)

	if timeout < 0 {
		timeout = 0
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	start := clk.Now()
	var lastObserved string
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, &EvaluationError{Description: c.Description, Cause: err}
		}

		v, expired, err := poll1(ctx, clk, s, c, start.Add(timeout), timeout > 0)
		if expired {
			if state, ok := IsNotReady(err); ok {
				lastObserved = state
			}
			return zero, &TimeoutError{
				Description:  c.Description,
				LastObserved: lastObserved,
				Timeout:      timeout,
			}
		}
		if err == nil {
			log.WithField("attempts", attempt).Debug("condition satisfied")
			return v, nil
		}
		state, notReady := IsNotReady(err)
		if !notReady {
			return zero, &EvaluationError{Description: c.Description, Cause: err}
		}
		lastObserved = state

		elapsed := clk.Since(start)
		if elapsed >= timeout {
			return zero, &TimeoutError{
				Description:  c.Description,
				LastObserved: lastObserved,
				Timeout:      timeout,
			}
		}
		log.Debugf("not ready: %s", state)

		sleep := min(poll, timeout-elapsed)
		timer := clk.Timer(sleep)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, &EvaluationError{Description: c.Description, Cause: ctx.Err()}
		}
	}
}

// poll1 runs one evaluation of c. With bounded set, the evaluation's
// context ends at deadline, and expired reports that it ran past it while
// the caller's ctx was still live.
func poll1[T any](ctx context.Context, clk clock.Clock, s browser.Session, c Condition[T], deadline time.Time, bounded bool) (v T, expired bool, err error) {
	if !bounded {
		v, err = c.Poll(ctx, s)
		return v, false, err
	}
	pctx, cancel := clk.WithDeadline(ctx, deadline)
	defer cancel()
	v, err = c.Poll(pctx, s)
	expired = pctx.Err() != nil && ctx.Err() == nil
	return v, expired, err
}
