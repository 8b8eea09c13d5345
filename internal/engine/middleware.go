package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/roach88/weft/internal/audit"
)

// Logging logs one line per node call with its duration and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(next Dispatcher) Dispatcher {
		return DispatcherFunc(func(ctx context.Context, node *Node, inputs []any) (*audit.Audit, error) {
			start := time.Now()
			result, err := next.Call(ctx, node, inputs)
			attrs := []any{
				"node", node.ID(),
				"inputs", len(inputs),
				"duration", time.Since(start),
			}
			switch {
			case err == nil:
				logger.Debug("node completed", attrs...)
			case IsTerminateError(err):
				logger.Info("node terminated", attrs...)
			default:
				logger.Warn("node failed", append(attrs, "error", err)...)
			}
			return result, err
		})
	}
}

// Recover converts a panic inside the wrapped call into an error.
func Recover() Middleware {
	return func(next Dispatcher) Dispatcher {
		return DispatcherFunc(func(ctx context.Context, node *Node, inputs []any) (result *audit.Audit, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("node %s panicked: %v\n%s", node.ID(), r, debug.Stack())
				}
			}()
			return next.Call(ctx, node, inputs)
		})
	}
}

// Intercept calls fn with every successful result audit after the wrapped
// call returns.
func Intercept(fn func(ctx context.Context, node *Node, result *audit.Audit)) Middleware {
	return func(next Dispatcher) Dispatcher {
		return DispatcherFunc(func(ctx context.Context, node *Node, inputs []any) (*audit.Audit, error) {
			result, err := next.Call(ctx, node, inputs)
			if err == nil && result != nil {
				fn(ctx, node, result)
			}
			return result, err
		})
	}
}

// Quota fails any node call beyond maxSteps within one wave, or within one
// top-level Execute outside a run. It stops runaway fan-out graphs where
// iterate joins keep feeding the queue.
func Quota(maxSteps int) Middleware {
	return func(next Dispatcher) Dispatcher {
		return &quotaLayer{next: next, maxSteps: maxSteps}
	}
}

type quotaLayer struct {
	next     Dispatcher
	maxSteps int

	mu    sync.Mutex
	scope string
	steps int
}

// Call implements Dispatcher. Only the current scope is counted; a call from
// a new wave or a new direct dispatch starts the count over.
func (q *quotaLayer) Call(ctx context.Context, node *Node, inputs []any) (*audit.Audit, error) {
	scope := node.engine.scopeKey(ctx)

	q.mu.Lock()
	if scope != q.scope {
		q.scope, q.steps = scope, 0
	}
	q.steps++
	steps := q.steps
	q.mu.Unlock()

	if steps > q.maxSteps {
		return nil, &StepsExceededError{Wave: scope, Steps: steps, Limit: q.maxSteps}
	}
	return q.next.Call(ctx, node, inputs)
}

// StepsExceededError is returned when a wave exceeds the step quota. Wave
// holds the direct dispatch key for calls made outside a run.
type StepsExceededError struct {
	Wave  string
	Steps int
	Limit int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("wave %s exceeded max steps quota: %d steps > %d limit",
		e.Wave, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
