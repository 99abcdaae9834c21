package jtatx

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/jta"
	"github.com/marcodd23/go-txsession/pkg/logx"
)

// completionTarget receives the completion callbacks of the registered synchronization.
type completionTarget interface {
	isActive() bool
	beforeCompletion(ctx context.Context) error
	afterCompletion(ctx context.Context, successful, delayed bool)
}

// callbackCoordinator decides when the target processes completion callbacks.
type callbackCoordinator interface {
	synchronizationRegistered(ctx context.Context)
	beforeCompletion(ctx context.Context) error
	afterCompletion(ctx context.Context, status jta.Status)
	processAnyDelayedAfterCompletion(ctx context.Context) error
}

type nonTrackingCallbacks struct {
	target completionTarget
}

func (c *nonTrackingCallbacks) synchronizationRegistered(context.Context) {}

func (c *nonTrackingCallbacks) beforeCompletion(ctx context.Context) error {
	if !c.target.isActive() {
		return nil
	}

	return c.target.beforeCompletion(ctx)
}

func (c *nonTrackingCallbacks) afterCompletion(ctx context.Context, status jta.Status) {
	c.target.afterCompletion(ctx, status == jta.StatusCommitted, false)
}

func (c *nonTrackingCallbacks) processAnyDelayedAfterCompletion(context.Context) error {
	return nil
}

// trackingCallbacks remembers which caller registered the synchronization. A rollback reported
// by any other caller (a transaction reaper, typically) is not processed there: it is deferred
// until the registering caller pulses the coordinator again.
type trackingCallbacks struct {
	nonTrackingCallbacks

	registrationCaller string
	delayed            atomic.Bool
}

func (c *trackingCallbacks) synchronizationRegistered(ctx context.Context) {
	c.registrationCaller, _ = jta.CallerFromContext(ctx)
}

func (c *trackingCallbacks) afterCompletion(ctx context.Context, status jta.Status) {
	if status.IsRollback() {
		caller, _ := jta.CallerFromContext(ctx)
		if caller != c.registrationCaller {
			logx.GetLogger().LogWarning(ctx, fmt.Sprintf(
				"transaction rolled back by caller %q instead of %q (status %s), deferring after-completion",
				caller, c.registrationCaller, status))
			c.delayed.Store(true)

			return
		}
	}

	c.nonTrackingCallbacks.afterCompletion(ctx, status)
}

func (c *trackingCallbacks) processAnyDelayedAfterCompletion(ctx context.Context) error {
	if !c.delayed.CompareAndSwap(true, false) {
		return nil
	}

	c.target.afterCompletion(ctx, false, true)

	return errorx.ErrRolledBackElsewhere
}

// registeredSynchronization is what the coordinator registers with the JTA platform.
type registeredSynchronization struct {
	callbacks callbackCoordinator
}

func (s registeredSynchronization) BeforeCompletion(ctx context.Context) error {
	return s.callbacks.beforeCompletion(ctx)
}

func (s registeredSynchronization) AfterCompletion(ctx context.Context, status jta.Status) error {
	s.callbacks.afterCompletion(ctx, status)
	return nil
}
