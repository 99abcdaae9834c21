package txcoord

import (
	"context"
	"fmt"

	"github.com/marcodd23/go-txsession/pkg/jta"
	"github.com/marcodd23/go-txsession/pkg/logx"
)

// SynchronizationRegistry - the local synchronizations of one coordinator.
// Listener failures are logged and never interrupt the notification of the others.
type SynchronizationRegistry struct {
	synchronizations []jta.Synchronization
}

// NewSynchronizationRegistry - SynchronizationRegistry constructor.
func NewSynchronizationRegistry() *SynchronizationRegistry {
	return &SynchronizationRegistry{}
}

// Register adds sync. Nil synchronizations are ignored.
func (r *SynchronizationRegistry) Register(sync jta.Synchronization) {
	if sync == nil {
		return
	}

	r.synchronizations = append(r.synchronizations, sync)
}

// Len - number of registered synchronizations.
func (r *SynchronizationRegistry) Len() int {
	return len(r.synchronizations)
}

// NotifyBeforeCompletion calls BeforeCompletion on every synchronization, in registration order.
func (r *SynchronizationRegistry) NotifyBeforeCompletion(ctx context.Context) {
	for _, sync := range r.synchronizations {
		r.invoke(ctx, "beforeCompletion", func() error {
			return sync.BeforeCompletion(ctx)
		})
	}
}

// NotifyAfterCompletion calls AfterCompletion on every synchronization, in registration order.
func (r *SynchronizationRegistry) NotifyAfterCompletion(ctx context.Context, status jta.Status) {
	for _, sync := range r.synchronizations {
		r.invoke(ctx, "afterCompletion", func() error {
			return sync.AfterCompletion(ctx, status)
		})
	}
}

// ClearSynchronizations forgets every registered synchronization.
func (r *SynchronizationRegistry) ClearSynchronizations() {
	r.synchronizations = nil
}

func (r *SynchronizationRegistry) invoke(ctx context.Context, phase string, call func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			logx.GetLogger().LogError(ctx, fmt.Sprintf("synchronization panicked during %s: %v", phase, rec))
		}
	}()

	if err := call(); err != nil {
		logx.GetLogger().LogError(ctx, fmt.Sprintf("synchronization failed during %s", phase), err)
	}
}
