package session

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/jta"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/marcodd23/go-txsession/pkg/txcoord"
)

// Transaction - application handle on the session's transaction. Each Begin obtains the
// transaction driver of a new cycle from the coordinator.
type Transaction struct {
	session *Session
	driver  txcoord.TransactionDriver
}

// Begin starts a transaction. Beginning while a transaction is active is a no-op.
func (t *Transaction) Begin(ctx context.Context) error {
	if err := t.session.checkOpen(); err != nil {
		return err
	}

	ctx = t.session.logContext(ctx)

	if t.IsActive(ctx) {
		logx.GetLogger().LogDebug(ctx, "transaction already active, ignoring begin")
		return nil
	}

	driver, err := t.session.coordinator.TransactionDriver(ctx)
	if err != nil {
		return err
	}

	t.driver = driver

	return driver.Begin(ctx)
}

// Commit commits the active transaction.
func (t *Transaction) Commit(ctx context.Context) error {
	ctx = t.session.logContext(ctx)

	if !t.IsActive(ctx) {
		return errorx.NewTransactionError("transaction not successfully started")
	}

	return t.driver.Commit(ctx)
}

// Rollback rolls the active transaction back. Rolling back when nothing is active is a no-op.
func (t *Transaction) Rollback(ctx context.Context) error {
	ctx = t.session.logContext(ctx)

	if t.driver == nil {
		logx.GetLogger().LogDebug(ctx, "rollback requested before any transaction was begun, ignoring")
		return nil
	}

	return t.driver.Rollback(ctx)
}

// SetRollbackOnly marks the active transaction so it can only roll back.
func (t *Transaction) SetRollbackOnly(ctx context.Context) {
	if t.driver == nil {
		return
	}

	t.driver.MarkRollbackOnly(t.session.logContext(ctx))
}

// Status - status of the current cycle. StatusNotActive once it has completed.
func (t *Transaction) Status(ctx context.Context) txcoord.TransactionStatus {
	if t.driver == nil {
		return txcoord.StatusNotActive
	}

	return t.driver.Status(ctx)
}

// IsActive reports whether a transaction is active, including one marked for rollback.
func (t *Transaction) IsActive(ctx context.Context) bool {
	return t.Status(ctx).IsOneOf(txcoord.StatusActive, txcoord.StatusMarkedRollback)
}

// SetTimeout sets the timeout, in seconds, of the transactions begun from now on.
func (t *Transaction) SetTimeout(seconds int) {
	t.session.coordinator.SetTimeout(seconds)
}

// RegisterSynchronization registers sync for the completion of the current transaction.
func (t *Transaction) RegisterSynchronization(sync jta.Synchronization) {
	t.session.coordinator.LocalSynchronizations().Register(sync)
}
