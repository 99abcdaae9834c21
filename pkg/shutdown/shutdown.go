package shutdown

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/pkg/errors"
)

// WaitForShutdown blocks until SIGINT or SIGTERM is received or rootCtx is done, then runs
// cleanupCallback bounded by timeout.
//
// Usage:
//
//	err := shutdown.WaitForShutdown(ctx, 5*time.Second, func(timeoutCtx context.Context) {
//	    provider.Close()
//	})
func WaitForShutdown(rootCtx context.Context, timeout time.Duration, cleanupCallback func(timeoutCtx context.Context)) error {
	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-signalCtx.Done()

	logx.GetLogger().LogDebug(rootCtx, "shutdown requested")

	// rootCtx may already be done, the cleanup still gets its full timeout
	timeoutCtx, cancel := context.WithTimeout(context.WithoutCancel(rootCtx), timeout)
	defer cancel()

	return cleanUp(timeoutCtx, cleanupCallback)
}

// cleanUp runs cleanupCallback and waits for it or for the deadline of timeoutCtx.
func cleanUp(timeoutCtx context.Context, cleanupCallback func(timeoutCtx context.Context)) error {
	logx.GetLogger().LogInfo(timeoutCtx, "Cleaning up all resources ....")

	done := make(chan struct{})

	go func() {
		defer close(done)

		if cleanupCallback != nil {
			cleanupCallback(timeoutCtx)
		}
	}()

	select {
	case <-timeoutCtx.Done():
		err := errors.Wrap(timeoutCtx.Err(), "deadline exceeded while cleaning up resources")
		logx.GetLogger().LogError(timeoutCtx, "Deadline exceeded during context cancellation", err)

		return err
	case <-done:
		logx.GetLogger().LogInfo(timeoutCtx, "All resources cleaned up")
		return nil
	}
}
