// Package async runs fire-and-forget work with panic recovery and a
// bounded lifetime. Use it instead of a bare goroutine wherever a
// failure must not take the process down.
package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/aqarly/aqarly/pkg/observability"
)

// Go executes fn in a goroutine with a timeout and panic recovery.
// Errors and panics are logged under the task name and swallowed.
func Go(parent context.Context, timeout time.Duration, name string, logger *observability.Logger, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil && logger != nil {
				logger.WithFields(map[string]interface{}{
					"task":  name,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("background task panicked")
			}
		}()

		if err := fn(ctx); err != nil && logger != nil {
			logger.WithError(err).WithField("task", name).Warn("background task failed")
		}
	}()
}
