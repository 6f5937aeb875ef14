package interact

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Result is the outcome of one strategy: a value, or the cause it failed.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Failed wraps the cause of a failed strategy.
func Failed[T any](err error) Result[T] { return Result[T]{Err: err} }

// OK reports whether the strategy succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Strategy is one way of carrying out an action.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) Result[T]
}

// InteractionError reports an action whose primary and secondary
// strategies both failed.
type InteractionError struct {
	Action    string
	Primary   error
	Secondary error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("%s failed: primary: %v; secondary: %v", e.Action, e.Primary, e.Secondary)
}

func (e *InteractionError) Unwrap() []error {
	return []error{e.Primary, e.Secondary}
}

// Fallback runs primary and, only if it failed, secondary. There is never
// a third attempt.
func Fallback[T any](ctx context.Context, logger logrus.FieldLogger, action string, primary, secondary Strategy[T]) (T, error) {
	log := orDiscard(logger).WithField("action", action)

	first := run(ctx, primary)
	if first.OK() {
		return first.Value, nil
	}
	log.WithError(first.Err).WithField("strategy", primary.Name).Warn("primary strategy failed, trying secondary")

	if err := ctx.Err(); err != nil {
		var zero T
		return zero, &InteractionError{Action: action, Primary: first.Err, Secondary: err}
	}

	second := run(ctx, secondary)
	if second.OK() {
		log.WithField("strategy", secondary.Name).Info("secondary strategy succeeded")
		return second.Value, nil
	}
	var zero T
	return zero, &InteractionError{Action: action, Primary: first.Err, Secondary: second.Err}
}

func run[T any](ctx context.Context, s Strategy[T]) Result[T] {
	if s.Run == nil {
		return Failed[T](errors.New("no strategy"))
	}
	return s.Run(ctx)
}
