package pgxdb

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/pkg/errors"
)

//###################################
//#       Postgres CONNECTION       #
//###################################

// querier - what statements run against: the pool connection in auto-commit mode, the open
// pgx.Tx otherwise.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Connection - dbx.Connection over a pool connection.
//
// Auto-commit off is emulated with pgx transactions: the first statement executed after
// SetAutoCommit(ctx, false), Commit or Rollback begins a new pgx.Tx that the next Commit or
// Rollback ends.
type Connection struct {
	conn       *pgxpool.Conn
	tx         pgx.Tx
	autoCommit bool
	closed     bool
}

var _ dbx.Connection = (*Connection)(nil)

func newConnection(conn *pgxpool.Conn) *Connection {
	return &Connection{conn: conn, autoCommit: true}
}

func (c *Connection) AutoCommit() (bool, error) {
	if c.closed {
		return false, errors.New("connection is closed")
	}

	return c.autoCommit, nil
}

// SetAutoCommit - switching auto-commit back on commits the open transaction.
func (c *Connection) SetAutoCommit(ctx context.Context, autoCommit bool) error {
	if c.closed {
		return errors.New("connection is closed")
	}

	if autoCommit == c.autoCommit {
		return nil
	}

	if autoCommit && c.tx != nil {
		if err := c.Commit(ctx); err != nil {
			return err
		}
	}

	c.autoCommit = autoCommit

	return nil
}

func (c *Connection) Commit(ctx context.Context) error {
	if c.autoCommit {
		return errors.New("cannot commit when autoCommit is enabled")
	}

	if c.tx == nil {
		return nil
	}

	tx := c.tx
	c.tx = nil

	return tx.Commit(ctx)
}

func (c *Connection) Rollback(ctx context.Context) error {
	if c.autoCommit {
		return errors.New("cannot rollback when autoCommit is enabled")
	}

	if c.tx == nil {
		return nil
	}

	tx := c.tx
	c.tx = nil

	return tx.Rollback(ctx)
}

// Prepare - statements are parsed lazily by pgx, which caches them per connection. JDBC style
// "?" placeholders are rebound to "$n".
func (c *Connection) Prepare(_ context.Context, sql string, opts dbx.StatementOptions) (dbx.Statement, error) {
	if c.closed {
		return nil, errors.New("connection is closed")
	}

	return newStatement(c, sql, nativeSQL(sql, opts), opts), nil
}

func (c *Connection) IsClosed() bool {
	return c.closed
}

// Close - rolls back a transaction left open and releases the connection to the pool.
func (c *Connection) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}

	c.closed = true

	var err error
	if c.tx != nil {
		logx.GetLogger().LogWarning(ctx, "releasing connection with an open transaction, rolling back")
		err = c.tx.Rollback(ctx)
		c.tx = nil
	}

	c.conn.Release()

	return err
}

func (c *Connection) executor(ctx context.Context) (querier, error) {
	if c.closed {
		return nil, errors.New("connection is closed")
	}

	if c.autoCommit {
		return c.conn, nil
	}

	if c.tx == nil {
		tx, err := c.conn.Begin(ctx)
		if err != nil {
			return nil, err
		}

		c.tx = tx
	}

	return c.tx, nil
}

func (c *Connection) typeMap() *pgtype.Map {
	return c.conn.Conn().TypeMap()
}

func (c *Connection) cancel(ctx context.Context) error {
	return c.conn.Conn().PgConn().CancelRequest(ctx)
}

// nativeSQL converts sql to what the server understands: callable escapes lose their braces,
// placeholders are rebound and generated keys are requested through RETURNING.
func nativeSQL(sql string, opts dbx.StatementOptions) string {
	native := strings.TrimSpace(sql)

	if opts.Callable && strings.HasPrefix(native, "{") && strings.HasSuffix(native, "}") {
		native = strings.TrimSpace(native[1 : len(native)-1])
	}

	native = sqlx.Rebind(sqlx.DOLLAR, native)

	if opts.ReturnGeneratedKeys && !strings.Contains(strings.ToUpper(native), " RETURNING ") {
		columns := "*"
		if len(opts.GeneratedKeyColumns) > 0 {
			columns = strings.Join(opts.GeneratedKeyColumns, ", ")
		}

		native = native + " RETURNING " + columns
	}

	return native
}
