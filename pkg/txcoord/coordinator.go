// Package txcoord drives the transactions of a JDBC session.
//
// A Coordinator is built once per session by a Builder. Each transaction cycle is issued
// through a TransactionDriver handle obtained from the coordinator; the handle belongs to one
// cycle only and fails with errorx.ErrStaleDelegate once that cycle has completed.
//
// The resource-local and plain-connection backends live here; the JTA backend lives in jtatx.
package txcoord

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/observer"
)

// Owner - the party a coordinator works for, normally the session.
type Owner interface {
	// IsActive reports whether the owner is still open.
	IsActive() bool
	// StartTransactionBoundary is called when the owner joins or begins a transaction.
	StartTransactionBoundary(ctx context.Context)
	// AfterTransactionBegin is called once the physical transaction has begun.
	AfterTransactionBegin(ctx context.Context)
	// BeforeTransactionCompletion runs ahead of the physical commit. An error dooms the transaction.
	BeforeTransactionCompletion(ctx context.Context) error
	// AfterTransactionCompletion runs after the physical commit or rollback.
	// Delayed is set when the completion is processed after the fact for another caller.
	AfterTransactionCompletion(ctx context.Context, successful, delayed bool)
	// SetTransactionTimeout applies the transaction timeout, in seconds, from now.
	SetTransactionTimeout(seconds int)
}

// ResourceTransaction - begin/commit/rollback primitives of one local resource.
type ResourceTransaction interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Status() TransactionStatus
}

// ResourceTransactionAccess is implemented by owners able to expose their resource-local transaction.
type ResourceTransactionAccess interface {
	ResourceLocalTransaction() ResourceTransaction
}

// TransactionDriver - the single-cycle handle through which a transaction is demarcated.
type TransactionDriver interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Status(ctx context.Context) TransactionStatus
	MarkRollbackOnly(ctx context.Context)
	// Generation identifies the cycle this handle belongs to.
	Generation() uint64
}

// Coordinator - transaction authority of one session.
type Coordinator interface {
	// TransactionDriver returns the handle of the current cycle, building it when needed.
	TransactionDriver(ctx context.Context) (TransactionDriver, error)
	LocalSynchronizations() *SynchronizationRegistry
	ExplicitJoin(ctx context.Context) error
	IsJoined() bool
	// Pulse lets the coordinator react to transaction state changed by a third party.
	Pulse(ctx context.Context) error
	// IsActive reports whether the coordinator (and its owner) can still be used.
	IsActive() bool
	IsTransactionActive(ctx context.Context) bool
	SetTimeout(seconds int)
	Timeout() int
	AddObserver(o observer.TransactionObserver)
	Builder() Builder
}

// Builder builds the coordinator of a session.
type Builder interface {
	Build(owner Owner) (Coordinator, error)
	IsJta() bool
	// DefaultHandlingMode is the connection handling used when configuration says "auto".
	DefaultHandlingMode() dbx.HandlingMode
}

// DriverSlot holds the generation of the current transaction driver handle.
// A handle is valid while the slot is live and still at the handle's generation.
type DriverSlot struct {
	generation uint64
	live       bool
}

// Open makes the slot live, moving to a new generation if it was not, and returns the
// current generation.
func (s *DriverSlot) Open() uint64 {
	if !s.live {
		s.generation++
		s.live = true
	}

	return s.generation
}

// Live reports whether a handle is currently issued.
func (s *DriverSlot) Live() bool {
	return s.live
}

// Check fails with *errorx.StaleDelegateError unless generation is the live one.
func (s *DriverSlot) Check(generation uint64) error {
	if !s.live || generation != s.generation {
		return &errorx.StaleDelegateError{Handle: generation, Current: s.generation}
	}

	return nil
}

// Invalidate ends the current generation.
func (s *DriverSlot) Invalidate() {
	s.live = false
}
