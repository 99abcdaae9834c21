package session

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/batch"
	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/pkg/errors"
)

// Operation - unit of work accepted by a session.
type Operation[T any] interface {
	// Name identifies the operation in translated errors.
	Name() string
	Perform(ctx context.Context, s *Session) (T, error)
}

// Accept performs op against s.
//
// The coordinator is pulsed first, so a container transaction begun since the last call is
// joined. Statements op leaves registered that were not registered before the call, and that
// the open batch does not hold, are released afterwards. Failures carry the operation name.
func Accept[T any](ctx context.Context, s *Session, op Operation[T]) (T, error) {
	var zero T

	if err := s.checkOpen(); err != nil {
		return zero, err
	}

	ctx = s.logContext(ctx)

	if err := s.coordinator.Pulse(ctx); err != nil {
		return zero, err
	}

	defer s.releaseOpenedSince(ctx, s.ResourceRegistry().Statements())

	result, err := op.Perform(ctx, s)
	if err != nil {
		return zero, errorx.WithOperation(err, op.Name())
	}

	return result, nil
}

func (s *Session) releaseOpenedSince(ctx context.Context, before []dbx.Statement) {
	if s.closed {
		return
	}

	known := make(map[dbx.Statement]struct{}, len(before))
	for _, stmt := range before {
		known[stmt] = struct{}{}
	}

	for _, stmt := range s.ResourceRegistry().Statements() {
		if _, ok := known[stmt]; ok || s.heldByCurrentBatch(stmt) {
			continue
		}

		s.ReleaseStatement(ctx, stmt)
	}

	s.AfterStatementExecution(ctx)
}

// =====================================
// Parameter binding
// =====================================

// ParameterBinder binds the parameters of a prepared statement.
type ParameterBinder interface {
	Bind(stmt dbx.Statement) error
}

// BinderFunc adapts a function to ParameterBinder.
type BinderFunc func(stmt dbx.Statement) error

func (f BinderFunc) Bind(stmt dbx.Statement) error {
	return f(stmt)
}

// Params binds values to positions 1..n.
func Params(values ...any) ParameterBinder {
	return BinderFunc(func(stmt dbx.Statement) error {
		for i, v := range values {
			if err := stmt.SetParameter(i+1, v); err != nil {
				return err
			}
		}

		return nil
	})
}

// RowSelection restricts a query to MaxRows rows, skipping the first FirstRow rows.
// MaxRows 0 means no limit.
type RowSelection struct {
	FirstRow int
	MaxRows  int
}

func (rs *RowSelection) definesLimits() bool {
	return rs != nil && (rs.MaxRows > 0 || rs.FirstRow > 0)
}

// LimitBinder is implemented by binders able to express a RowSelection as query parameters.
// BindLimit reports false when the selection must be applied by the session instead.
type LimitBinder interface {
	BindLimit(stmt dbx.Statement, selection RowSelection) (bool, error)
}

func bind(stmt dbx.Statement, binder ParameterBinder) error {
	if binder == nil {
		return nil
	}

	if err := binder.Bind(stmt); err != nil {
		return errorx.TranslateSQL(err, "could not bind parameters", stmt.SQL())
	}

	return nil
}

// bindSelection applies selection through the binder when it can, otherwise through the
// statement's max rows. It reports whether rows still have to be skipped on the result set.
func bindSelection(stmt dbx.Statement, binder ParameterBinder, selection *RowSelection) (bool, error) {
	if !selection.definesLimits() {
		return false, nil
	}

	if lb, ok := binder.(LimitBinder); ok {
		bound, err := lb.BindLimit(stmt, *selection)
		if err != nil {
			return false, errorx.TranslateSQL(err, "could not bind limit parameters", stmt.SQL())
		}

		if bound {
			return false, nil
		}
	}

	if selection.MaxRows > 0 {
		if err := stmt.SetMaxRows(selection.FirstRow + selection.MaxRows); err != nil {
			return false, errorx.TranslateSQL(err, "could not apply max rows", stmt.SQL())
		}
	}

	return selection.FirstRow > 0, nil
}

func advance(rs dbx.ResultSet, firstRow int) {
	for i := 0; i < firstRow; i++ {
		if !rs.Next() {
			return
		}
	}
}

// SingleKey reads the first column of the first row of rs.
func SingleKey[T any](_ context.Context, rs dbx.ResultSet) (T, error) {
	var key T

	if !rs.Next() {
		if err := rs.Err(); err != nil {
			return key, err
		}

		return key, errors.New("the database returned no natively generated identity value")
	}

	if err := rs.Scan(&key); err != nil {
		return key, errors.Wrap(err, "could not read generated key")
	}

	return key, nil
}

func operationName(name, fallback string) string {
	if name != "" {
		return name
	}

	return fallback
}

// =====================================
// Operations
// =====================================

// QueryOperation runs a query and extracts its result.
type QueryOperation[T any] struct {
	OperationName string
	SQL           string
	Callable      bool
	Scroll        dbx.ScrollMode
	Binder        ParameterBinder
	Selection     *RowSelection
	Builder       StatementBuilder
	Extract       func(ctx context.Context, rs dbx.ResultSet) (T, error)
}

func (op QueryOperation[T]) Name() string {
	return operationName(op.OperationName, "query ["+op.SQL+"]")
}

func (op QueryOperation[T]) Perform(ctx context.Context, s *Session) (T, error) {
	var zero T

	if op.Extract == nil {
		return zero, errors.New("query operation has no result extractor")
	}

	if op.Scroll != dbx.ScrollForwardOnly && !s.options.ScrollableResultSetsEnabled {
		panic(errorx.NewAssertionFailure("scrollable result sets are not enabled"))
	}

	stmt, err := s.prepare(ctx, op.SQL, dbx.StatementOptions{Callable: op.Callable, Scroll: op.Scroll}, true, op.Builder)
	if err != nil {
		return zero, err
	}

	if err := bind(stmt, op.Binder); err != nil {
		return zero, err
	}

	skip, err := bindSelection(stmt, op.Binder, op.Selection)
	if err != nil {
		return zero, err
	}

	rs, err := s.ExecuteQuery(ctx, stmt)
	if err != nil {
		return zero, err
	}

	defer s.ReleaseResultSet(ctx, rs, stmt)

	if skip {
		advance(rs, op.Selection.FirstRow)
	}

	return op.Extract(ctx, rs)
}

// UpdateOperation runs an insert, update or delete and returns the affected row count, verified
// against Expectation when one is set.
type UpdateOperation struct {
	OperationName string
	SQL           string
	Callable      bool
	Binder        ParameterBinder
	Builder       StatementBuilder
	Expectation   batch.Expectation
}

func (op UpdateOperation) Name() string {
	return operationName(op.OperationName, "update ["+op.SQL+"]")
}

func (op UpdateOperation) Perform(ctx context.Context, s *Session) (int64, error) {
	stmt, err := s.prepare(ctx, op.SQL, dbx.StatementOptions{Callable: op.Callable}, false, op.Builder)
	if err != nil {
		return 0, err
	}

	if err := bind(stmt, op.Binder); err != nil {
		return 0, err
	}

	rowCount, err := s.ExecuteUpdate(ctx, stmt)
	if err != nil {
		return 0, err
	}

	if op.Expectation != nil {
		if err := op.Expectation.VerifyOutcome(ctx, rowCount, 0, stmt.SQL()); err != nil {
			return rowCount, err
		}
	}

	return rowCount, nil
}

// BatchedStatement - one statement added to the batch by a BatchableOperation.
type BatchedStatement struct {
	SQL      string
	Callable bool
	Binder   ParameterBinder
}

// BatchableOperation adds its statements to the session batch of Key. Opening a batch under a
// different key executes the batch open so far.
type BatchableOperation struct {
	OperationName string
	Key           batch.Key
	Statements    []BatchedStatement
	Builder       StatementBuilder
}

func (op BatchableOperation) Name() string {
	return operationName(op.OperationName, "batch ["+op.Key.Comparison()+"]")
}

func (op BatchableOperation) Perform(ctx context.Context, s *Session) (struct{}, error) {
	b, err := s.Batch(ctx, op.Key)
	if err != nil {
		return struct{}{}, err
	}

	for _, bs := range op.Statements {
		stmt := b.GetStatement(bs.SQL)
		if stmt == nil {
			stmt, err = s.prepare(ctx, bs.SQL, dbx.StatementOptions{Callable: bs.Callable}, false, op.Builder)
			if err != nil {
				return struct{}{}, err
			}
		}

		if err := bind(stmt, bs.Binder); err != nil {
			return struct{}{}, err
		}

		if err := b.AddBatch(ctx, bs.SQL, stmt); err != nil {
			return struct{}{}, err
		}
	}

	return struct{}{}, nil
}

// GeneratedKeysInsertOperation runs an insert and extracts the keys it generated. Extract
// defaults to SingleKey.
type GeneratedKeysInsertOperation[T any] struct {
	OperationName string
	SQL           string
	KeyColumns    []string
	Binder        ParameterBinder
	Builder       StatementBuilder
	Extract       func(ctx context.Context, rs dbx.ResultSet) (T, error)
}

func (op GeneratedKeysInsertOperation[T]) Name() string {
	return operationName(op.OperationName, "insert ["+op.SQL+"]")
}

func (op GeneratedKeysInsertOperation[T]) Perform(ctx context.Context, s *Session) (T, error) {
	var zero T

	s.checkAutoGeneratedKeysEnabled()

	extract := op.Extract
	if extract == nil {
		extract = SingleKey[T]
	}

	opts := dbx.StatementOptions{ReturnGeneratedKeys: true, GeneratedKeyColumns: op.KeyColumns}

	stmt, err := s.prepare(ctx, op.SQL, opts, false, op.Builder)
	if err != nil {
		return zero, err
	}

	if err := bind(stmt, op.Binder); err != nil {
		return zero, err
	}

	if _, err := s.ExecuteUpdate(ctx, stmt); err != nil {
		return zero, err
	}

	rs, err := s.GeneratedKeys(ctx, stmt)
	if err != nil {
		return zero, err
	}

	defer s.ReleaseResultSet(ctx, rs, stmt)

	key, err := extract(ctx, rs)
	if err != nil {
		return zero, errorx.TranslateSQL(err, "unable to extract generated key", stmt.SQL())
	}

	logx.GetLogger().LogDebug(ctx, "natively generated identity obtained")

	return key, nil
}

// WorkOperation runs arbitrary work against the session's physical connection.
type WorkOperation[T any] struct {
	OperationName string
	Work          func(ctx context.Context, conn dbx.Connection) (T, error)
}

func (op WorkOperation[T]) Name() string {
	return operationName(op.OperationName, "work")
}

func (op WorkOperation[T]) Perform(ctx context.Context, s *Session) (T, error) {
	var zero T

	conn, err := s.logicalConn.PhysicalConnection(ctx)
	if err != nil {
		return zero, err
	}

	result, err := op.Work(ctx, conn)
	if err != nil {
		return zero, errorx.TranslateSQL(err, "error executing work", "")
	}

	return result, nil
}
