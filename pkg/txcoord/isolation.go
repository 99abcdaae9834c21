package txcoord

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/logx"
)

// IsolatedWork runs against a connection that is not the session's.
type IsolatedWork func(ctx context.Context, conn dbx.Connection) error

// IsolationDelegate runs work on a separate connection, optionally in its own transaction,
// so it commits or rolls back independently of the session's transaction.
type IsolationDelegate struct {
	provider                   dbx.ConnectionProvider
	providerDisablesAutoCommit bool
}

// NewIsolationDelegate - IsolationDelegate constructor.
func NewIsolationDelegate(provider dbx.ConnectionProvider, providerDisablesAutoCommit bool) *IsolationDelegate {
	return &IsolationDelegate{provider: provider, providerDisablesAutoCommit: providerDisablesAutoCommit}
}

// DelegateWork obtains a connection, runs work on it and releases it. When transacted, work
// runs in a plain-connection transaction that commits on success and rolls back on failure.
func (d *IsolationDelegate) DelegateWork(ctx context.Context, work IsolatedWork, transacted bool) error {
	conn, err := d.provider.ObtainConnection(ctx)
	if err != nil {
		return errorx.TranslateSQL(err, "unable to obtain isolated JDBC connection", "")
	}

	defer func() {
		if releaseErr := d.provider.ReleaseConnection(ctx, conn); releaseErr != nil {
			logx.GetLogger().LogWarning(ctx, "unable to release isolated JDBC connection", releaseErr)
		}
	}()

	if !transacted {
		return errorx.TranslateSQL(work(ctx, conn), "error performing isolated work", "")
	}

	tx := NewConnectionTransaction(FixedConnection(conn), d.providerDisablesAutoCommit)
	if err := tx.Begin(ctx); err != nil {
		return err
	}

	if err := work(ctx, conn); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			logx.GetLogger().LogWarning(ctx, "unable to rollback isolated transaction on error", rollbackErr)
		}

		return errorx.TranslateSQL(err, "error performing isolated work", "")
	}

	return tx.Commit(ctx)
}
