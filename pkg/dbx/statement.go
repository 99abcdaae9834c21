package dbx

import (
	"context"
)

// Row counts reported by ExecuteBatch besides the number of affected rows.
const (
	// SuccessNoInfo - the statement succeeded but the driver does not know how many rows it affected.
	SuccessNoInfo int64 = -2
	// ExecuteFailed - the statement failed while the driver kept processing the batch.
	ExecuteFailed int64 = -3
)

// ScrollMode is the requested traversal capability of a result set.
type ScrollMode int

const (
	ScrollForwardOnly ScrollMode = iota
	ScrollInsensitive
	ScrollSensitive
)

// String - the mode name.
func (m ScrollMode) String() string {
	switch m {
	case ScrollInsensitive:
		return "SCROLL_INSENSITIVE"
	case ScrollSensitive:
		return "SCROLL_SENSITIVE"
	default:
		return "FORWARD_ONLY"
	}
}

// Concurrency is the requested update capability of a result set.
type Concurrency int

const (
	ConcurrencyReadOnly Concurrency = iota
	ConcurrencyUpdatable
)

// StatementOptions - hints passed to Connection.Prepare.
//
// Fields:
//   - Callable: the SQL invokes a stored procedure or function.
//   - ReturnGeneratedKeys: the statement must make the keys generated by an insert available
//     through Statement.GeneratedKeys.
//   - GeneratedKeyColumns: the columns to return as generated keys. Empty means driver default.
//   - Scroll / Concurrency: result set hints for query statements.
type StatementOptions struct {
	Callable            bool
	ReturnGeneratedKeys bool
	GeneratedKeyColumns []string
	Scroll              ScrollMode
	Concurrency         Concurrency
}

// =====================================
// Statement Interface
// =====================================

// Statement is a prepared statement bound to the Connection that prepared it.
//
// Parameters are positional and 1-based. AddBatch snapshots the current parameters into the
// driver-level batch; ExecuteBatch runs every snapshot and reports one row count per snapshot.
// MaxRows and QueryTimeout use 0 as "no limit".
type Statement interface {
	SQL() string
	SetParameter(position int, value any) error
	ClearParameters()

	ExecuteQuery(ctx context.Context) (ResultSet, error)
	ExecuteUpdate(ctx context.Context) (int64, error)
	GeneratedKeys() (ResultSet, error)

	AddBatch() error
	ExecuteBatch(ctx context.Context) ([]int64, error)
	ClearBatch() error

	MaxRows() (int, error)
	SetMaxRows(maxRows int) error
	QueryTimeout() (int, error)
	SetQueryTimeout(seconds int) error

	Cancel(ctx context.Context) error
	IsClosed() bool
	Close() error
}

// =====================================
// ResultSet Interface
// =====================================

// ResultSet iterates the rows produced by a query or by Statement.GeneratedKeys.
//
// Statement returns the statement that produced the rows, or nil when it cannot be determined.
type ResultSet interface {
	Next() bool
	Scan(dest ...any) error
	Columns() []string
	Err() error
	Statement() Statement
	Close() error
}
