package dbx

import (
	"context"
)

// =====================================
// Connection Interface
// =====================================

// Connection is a physical database connection.
//
// It follows the auto-commit model: while AutoCommit reports true every statement commits on its
// own; after SetAutoCommit(ctx, false) statements join one physical transaction that ends with
// Commit or Rollback, after which the next statement implicitly starts a new one.
// A Connection is not safe for concurrent use.
//
// Implementations translate nothing: errors are returned as the driver reports them and the
// session layer translates them.
type Connection interface {
	AutoCommit() (bool, error)
	SetAutoCommit(ctx context.Context, autoCommit bool) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Prepare(ctx context.Context, sql string, opts StatementOptions) (Statement, error)
	IsClosed() bool
	Close(ctx context.Context) error
}

// =====================================
// ConnectionProvider Interface
// =====================================

// ConnectionProvider hands out physical connections and takes them back.
//
// A session obtains at most one connection at a time from its provider and always returns it
// through ReleaseConnection, which may fail with a driver error.
//
// Example Implementation:
//
//	pgxdb.PoolConnectionProvider acquires connections from a pgxpool.Pool and releases them back
//	to the pool, rolling back any physical transaction that is still open.
type ConnectionProvider interface {
	ObtainConnection(ctx context.Context) (Connection, error)
	ReleaseConnection(ctx context.Context, conn Connection) error
}
