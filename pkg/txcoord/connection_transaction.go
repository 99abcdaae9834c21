package txcoord

import (
	"context"
	"fmt"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/logx"
)

// ConnectionSource returns the physical connection a transaction runs on.
type ConnectionSource func(ctx context.Context) (dbx.Connection, error)

// FixedConnection - ConnectionSource always returning conn.
func FixedConnection(conn dbx.Connection) ConnectionSource {
	return func(context.Context) (dbx.Connection, error) {
		return conn, nil
	}
}

// ConnectionTransaction - ResourceTransaction over a physical connection, demarcated by
// toggling auto-commit. Auto-commit is restored after completion only when it was on at begin.
type ConnectionTransaction struct {
	source                     ConnectionSource
	providerDisablesAutoCommit bool
	initiallyAutoCommit        bool
	status                     TransactionStatus
}

// NewConnectionTransaction - ConnectionTransaction constructor.
// When providerDisablesAutoCommit is set, connections are trusted to be in manual commit mode
// and auto-commit is never touched.
func NewConnectionTransaction(source ConnectionSource, providerDisablesAutoCommit bool) *ConnectionTransaction {
	return &ConnectionTransaction{source: source, providerDisablesAutoCommit: providerDisablesAutoCommit}
}

func (t *ConnectionTransaction) Begin(ctx context.Context) error {
	conn, err := t.source(ctx)
	if err != nil {
		return errorx.NewTransactionErrorWrapper(err, "JDBC begin transaction failed")
	}

	t.initiallyAutoCommit = false
	if !t.providerDisablesAutoCommit {
		autoCommit, err := conn.AutoCommit()
		if err != nil {
			return errorx.NewTransactionErrorWrapper(err, "JDBC begin transaction failed")
		}

		if autoCommit {
			logx.GetLogger().LogDebug(ctx, "disabling auto-commit for the JDBC transaction")

			if err := conn.SetAutoCommit(ctx, false); err != nil {
				return errorx.NewTransactionErrorWrapper(err, "JDBC begin transaction failed")
			}
		}

		t.initiallyAutoCommit = autoCommit
	}

	t.status = StatusActive

	return nil
}

func (t *ConnectionTransaction) Commit(ctx context.Context) error {
	conn, err := t.source(ctx)
	if err != nil {
		t.status = StatusFailedCommit
		return errorx.NewTransactionErrorWrapper(err, "unable to commit against JDBC connection")
	}

	if err := conn.Commit(ctx); err != nil {
		t.status = StatusFailedCommit
		return errorx.NewTransactionErrorWrapper(err, "unable to commit against JDBC connection")
	}

	t.status = StatusCommitted
	t.restoreAutoCommit(ctx, conn)

	return nil
}

func (t *ConnectionTransaction) Rollback(ctx context.Context) error {
	conn, err := t.source(ctx)
	if err != nil {
		t.status = StatusFailedRollback
		return errorx.NewTransactionErrorWrapper(err, "unable to rollback against JDBC connection")
	}

	if err := conn.Rollback(ctx); err != nil {
		t.status = StatusFailedRollback
		return errorx.NewTransactionErrorWrapper(err, "unable to rollback against JDBC connection")
	}

	t.status = StatusRolledBack
	t.restoreAutoCommit(ctx, conn)

	return nil
}

func (t *ConnectionTransaction) Status() TransactionStatus {
	return t.status
}

// InitiallyAutoCommit reports whether the running transaction switched auto-commit off at begin.
func (t *ConnectionTransaction) InitiallyAutoCommit() bool {
	return t.initiallyAutoCommit
}

func (t *ConnectionTransaction) restoreAutoCommit(ctx context.Context, conn dbx.Connection) {
	if !t.initiallyAutoCommit {
		return
	}

	t.initiallyAutoCommit = false

	if err := conn.SetAutoCommit(ctx, true); err != nil {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("could not re-enable auto-commit [%s]", err))
	}
}
