// Package observer defines the instrumentation hooks fired around connection acquisition and
// release, statement preparation and execution, batch execution and transaction completion.
//
// Hooks come in start/end pairs and the library always fires the end hook, including when the
// wrapped driver call fails.
package observer

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/dbx"
)

// Observer receives the JDBC-level boundaries of a session.
// ConnectionAcquisitionEnd receives a nil connection when acquisition failed.
type Observer interface {
	ConnectionAcquisitionStart(ctx context.Context)
	ConnectionAcquisitionEnd(ctx context.Context, conn dbx.Connection)
	ConnectionReleaseStart(ctx context.Context)
	ConnectionReleaseEnd(ctx context.Context)
	PrepareStatementStart(ctx context.Context)
	PrepareStatementEnd(ctx context.Context)
	ExecuteStatementStart(ctx context.Context)
	ExecuteStatementEnd(ctx context.Context)
	ExecuteBatchStart(ctx context.Context)
	ExecuteBatchEnd(ctx context.Context)
}

// BatchObserver is told why a batch is being executed.
type BatchObserver interface {
	BatchExplicitlyExecuted(ctx context.Context)
	BatchImplicitlyExecuted(ctx context.Context)
}

// TransactionObserver is told about transaction boundaries.
type TransactionObserver interface {
	TransactionBegun(ctx context.Context)
	TransactionCompleted(ctx context.Context, successful bool)
}

// Base implements every hook as a no-op. Embed it to override only some hooks.
type Base struct{}

func (Base) ConnectionAcquisitionStart(context.Context)               {}
func (Base) ConnectionAcquisitionEnd(context.Context, dbx.Connection) {}
func (Base) ConnectionReleaseStart(context.Context)                   {}
func (Base) ConnectionReleaseEnd(context.Context)                     {}
func (Base) PrepareStatementStart(context.Context)                    {}
func (Base) PrepareStatementEnd(context.Context)                      {}
func (Base) ExecuteStatementStart(context.Context)                    {}
func (Base) ExecuteStatementEnd(context.Context)                      {}
func (Base) ExecuteBatchStart(context.Context)                        {}
func (Base) ExecuteBatchEnd(context.Context)                          {}
func (Base) BatchExplicitlyExecuted(context.Context)                  {}
func (Base) BatchImplicitlyExecuted(context.Context)                  {}
func (Base) TransactionBegun(context.Context)                         {}
func (Base) TransactionCompleted(context.Context, bool)               {}

// Chain fans every hook out to its members, in order.
// Members that also implement BatchObserver or TransactionObserver receive those hooks too.
type Chain []Observer

// NewChain builds a Chain, skipping nil observers.
func NewChain(observers ...Observer) Chain {
	chain := make(Chain, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			chain = append(chain, o)
		}
	}

	return chain
}

func (c Chain) ConnectionAcquisitionStart(ctx context.Context) {
	for _, o := range c {
		o.ConnectionAcquisitionStart(ctx)
	}
}

func (c Chain) ConnectionAcquisitionEnd(ctx context.Context, conn dbx.Connection) {
	for _, o := range c {
		o.ConnectionAcquisitionEnd(ctx, conn)
	}
}

func (c Chain) ConnectionReleaseStart(ctx context.Context) {
	for _, o := range c {
		o.ConnectionReleaseStart(ctx)
	}
}

func (c Chain) ConnectionReleaseEnd(ctx context.Context) {
	for _, o := range c {
		o.ConnectionReleaseEnd(ctx)
	}
}

func (c Chain) PrepareStatementStart(ctx context.Context) {
	for _, o := range c {
		o.PrepareStatementStart(ctx)
	}
}

func (c Chain) PrepareStatementEnd(ctx context.Context) {
	for _, o := range c {
		o.PrepareStatementEnd(ctx)
	}
}

func (c Chain) ExecuteStatementStart(ctx context.Context) {
	for _, o := range c {
		o.ExecuteStatementStart(ctx)
	}
}

func (c Chain) ExecuteStatementEnd(ctx context.Context) {
	for _, o := range c {
		o.ExecuteStatementEnd(ctx)
	}
}

func (c Chain) ExecuteBatchStart(ctx context.Context) {
	for _, o := range c {
		o.ExecuteBatchStart(ctx)
	}
}

func (c Chain) ExecuteBatchEnd(ctx context.Context) {
	for _, o := range c {
		o.ExecuteBatchEnd(ctx)
	}
}

func (c Chain) BatchExplicitlyExecuted(ctx context.Context) {
	for _, o := range c {
		if bo, ok := o.(BatchObserver); ok {
			bo.BatchExplicitlyExecuted(ctx)
		}
	}
}

func (c Chain) BatchImplicitlyExecuted(ctx context.Context) {
	for _, o := range c {
		if bo, ok := o.(BatchObserver); ok {
			bo.BatchImplicitlyExecuted(ctx)
		}
	}
}

func (c Chain) TransactionBegun(ctx context.Context) {
	for _, o := range c {
		if to, ok := o.(TransactionObserver); ok {
			to.TransactionBegun(ctx)
		}
	}
}

func (c Chain) TransactionCompleted(ctx context.Context, successful bool) {
	for _, o := range c {
		if to, ok := o.(TransactionObserver); ok {
			to.TransactionCompleted(ctx, successful)
		}
	}
}
