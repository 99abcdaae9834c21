// Package jta is the boundary to a container managed (JTA style) transaction platform:
// user transactions, transaction managers, completion synchronizations and transaction status.
//
// Implementations live outside this package; memjta provides an in-memory one.
package jta

import (
	"context"
	"fmt"
)

// Status - status of a JTA transaction, numbered like javax.transaction.Status.
type Status int

const (
	StatusActive Status = iota
	StatusMarkedRollback
	StatusPrepared
	StatusCommitted
	StatusRolledBack
	StatusUnknown
	StatusNoTransaction
	StatusPreparing
	StatusCommitting
	StatusRollingBack
)

var statusNames = map[Status]string{
	StatusActive:         "ACTIVE",
	StatusMarkedRollback: "MARKED_ROLLBACK",
	StatusPrepared:       "PREPARED",
	StatusCommitted:      "COMMITTED",
	StatusRolledBack:     "ROLLEDBACK",
	StatusUnknown:        "UNKNOWN",
	StatusNoTransaction:  "NO_TRANSACTION",
	StatusPreparing:      "PREPARING",
	StatusCommitting:     "COMMITTING",
	StatusRollingBack:    "ROLLING_BACK",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("Status(%d)", int(s))
}

// IsActive reports whether s denotes a transaction that can still complete.
// MarkedRollback counts as active only when markedRollbackAllowed is set.
func (s Status) IsActive(markedRollbackAllowed bool) bool {
	return s == StatusActive || (markedRollbackAllowed && s == StatusMarkedRollback)
}

// IsRollback reports whether s denotes a rolled back (or rolling back) transaction.
func (s Status) IsRollback() bool {
	return s == StatusRolledBack || s == StatusMarkedRollback || s == StatusRollingBack
}

// Synchronization is notified around the completion of a transaction.
// An error from BeforeCompletion dooms the transaction; errors from AfterCompletion are logged.
type Synchronization interface {
	BeforeCompletion(ctx context.Context) error
	AfterCompletion(ctx context.Context, status Status) error
}

// SynchronizationFuncs - Synchronization built from functions; nil functions are no-ops.
type SynchronizationFuncs struct {
	Before func(ctx context.Context) error
	After  func(ctx context.Context, status Status) error
}

func (s SynchronizationFuncs) BeforeCompletion(ctx context.Context) error {
	if s.Before == nil {
		return nil
	}

	return s.Before(ctx)
}

func (s SynchronizationFuncs) AfterCompletion(ctx context.Context, status Status) error {
	if s.After == nil {
		return nil
	}

	return s.After(ctx, status)
}

// UserTransaction - application level transaction demarcation.
type UserTransaction interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	SetRollbackOnly(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
	SetTransactionTimeout(seconds int) error
}

// Transaction - the transaction currently bound by a TransactionManager.
type Transaction interface {
	ID() string
	Status(ctx context.Context) (Status, error)
	RegisterSynchronization(ctx context.Context, sync Synchronization) error
}

// TransactionManager - container level transaction demarcation.
type TransactionManager interface {
	UserTransaction
	// Transaction returns the bound transaction, or nil when there is none.
	Transaction(ctx context.Context) (Transaction, error)
}

// Platform - access to the transaction services of a container.
// Retrieve methods may fail or return nil when the service is not available.
type Platform interface {
	RetrieveUserTransaction() (UserTransaction, error)
	RetrieveTransactionManager() (TransactionManager, error)
	CanRegisterSynchronization(ctx context.Context) bool
	RegisterSynchronization(ctx context.Context, sync Synchronization) error
	CurrentStatus(ctx context.Context) (Status, error)
}

type callerKey struct{}

// ContextWithCaller binds the identity of the calling unit of execution (the Go counterpart of
// the thread that runs a transaction) to ctx.
func ContextWithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller bound with ContextWithCaller.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerKey{}).(string)
	return caller, ok && caller != ""
}
