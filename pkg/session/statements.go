package session

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/logx"
)

// StatementBuilder creates the driver statement for sql on conn. The default calls conn.Prepare.
type StatementBuilder func(ctx context.Context, conn dbx.Connection, sql string, opts dbx.StatementOptions) (dbx.Statement, error)

func defaultStatementBuilder(ctx context.Context, conn dbx.Connection, sql string, opts dbx.StatementOptions) (dbx.Statement, error) {
	return conn.Prepare(ctx, sql, opts)
}

// =====================================
// Preparation
// =====================================

// PrepareStatement prepares a plain statement.
func (s *Session) PrepareStatement(ctx context.Context, sql string) (dbx.Statement, error) {
	return s.prepare(ctx, sql, dbx.StatementOptions{}, false, nil)
}

// PrepareCallable prepares a statement invoking a stored procedure or function.
func (s *Session) PrepareCallable(ctx context.Context, sql string) (dbx.Statement, error) {
	return s.prepare(ctx, sql, dbx.StatementOptions{Callable: true}, false, nil)
}

// PrepareStatementWithGeneratedKeys prepares an insert returning the keys it generates,
// keyColumns naming them when given. It panics with an *errorx.AssertionFailure when generated
// keys are not enabled.
func (s *Session) PrepareStatementWithGeneratedKeys(ctx context.Context, sql string, keyColumns ...string) (dbx.Statement, error) {
	s.checkAutoGeneratedKeysEnabled()

	return s.prepare(ctx, sql, dbx.StatementOptions{ReturnGeneratedKeys: true, GeneratedKeyColumns: keyColumns}, false, nil)
}

// PrepareQueryStatement prepares a query, the most recently prepared query being the target of
// CancelLastQuery. A scroll mode other than forward-only panics with an *errorx.AssertionFailure
// unless scrollable result sets are enabled.
func (s *Session) PrepareQueryStatement(ctx context.Context, sql string, callable bool, scroll dbx.ScrollMode) (dbx.Statement, error) {
	if scroll != dbx.ScrollForwardOnly && !s.options.ScrollableResultSetsEnabled {
		panic(errorx.NewAssertionFailure("scrollable result sets are not enabled"))
	}

	return s.prepare(ctx, sql, dbx.StatementOptions{Callable: callable, Scroll: scroll}, true, nil)
}

func (s *Session) checkAutoGeneratedKeysEnabled() {
	if !s.options.GeneratedKeysEnabled {
		panic(errorx.NewAssertionFailure("getGeneratedKeys() support is not enabled"))
	}
}

// prepare inspects and logs sql, prepares it inside the prepare hooks, applies the remaining
// transaction timeout and registers the statement.
func (s *Session) prepare(ctx context.Context, sql string, opts dbx.StatementOptions, query bool,
	build StatementBuilder,
) (dbx.Statement, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	ctx = s.logContext(ctx)

	if build == nil {
		build = defaultStatementBuilder
	}

	sql = s.options.inspect(sql)
	s.sqlLogger.LogStatement(ctx, sql)

	timeout, err := s.remainingTimeout()
	if err != nil {
		return nil, err
	}

	conn, err := s.logicalConn.PhysicalConnection(ctx)
	if err != nil {
		return nil, err
	}

	stmt, err := s.doPrepare(ctx, build, conn, sql, opts)
	if err != nil {
		return nil, errorx.TranslateSQL(err, "could not prepare statement", sql)
	}

	if timeout > 0 {
		if err := stmt.SetQueryTimeout(timeout); err != nil {
			s.closeUnregistered(ctx, stmt)
			return nil, errorx.TranslateSQL(err, "unable to set query timeout", sql)
		}
	}

	if err := s.ResourceRegistry().Register(stmt, query); err != nil {
		s.closeUnregistered(ctx, stmt)
		return nil, err
	}

	return stmt, nil
}

func (s *Session) doPrepare(ctx context.Context, build StatementBuilder, conn dbx.Connection, sql string,
	opts dbx.StatementOptions,
) (dbx.Statement, error) {
	s.observer.PrepareStatementStart(ctx)
	defer s.observer.PrepareStatementEnd(ctx)

	return build(ctx, conn, sql, opts)
}

func (s *Session) closeUnregistered(ctx context.Context, stmt dbx.Statement) {
	if err := stmt.Close(); err != nil {
		logx.GetLogger().LogDebug(ctx, "unable to release JDBC statement ["+err.Error()+"]")
	}
}

// =====================================
// Execution
// =====================================

// ExecuteQuery executes stmt and registers the returned result set.
func (s *Session) ExecuteQuery(ctx context.Context, stmt dbx.Statement) (dbx.ResultSet, error) {
	ctx = s.logContext(ctx)

	rs, err := s.doExecuteQuery(ctx, stmt)
	if err != nil {
		return nil, errorx.TranslateSQL(err, "could not extract ResultSet", stmt.SQL())
	}

	if err := s.ResourceRegistry().RegisterResultSet(ctx, rs, stmt); err != nil {
		if closeErr := rs.Close(); closeErr != nil {
			logx.GetLogger().LogDebug(ctx, "unable to release JDBC result set ["+closeErr.Error()+"]")
		}

		return nil, err
	}

	return rs, nil
}

func (s *Session) doExecuteQuery(ctx context.Context, stmt dbx.Statement) (dbx.ResultSet, error) {
	s.observer.ExecuteStatementStart(ctx)
	defer s.observer.ExecuteStatementEnd(ctx)

	return stmt.ExecuteQuery(ctx)
}

// ExecuteUpdate executes stmt and returns the affected row count.
func (s *Session) ExecuteUpdate(ctx context.Context, stmt dbx.Statement) (int64, error) {
	ctx = s.logContext(ctx)

	s.observer.ExecuteStatementStart(ctx)
	defer s.observer.ExecuteStatementEnd(ctx)

	rowCount, err := stmt.ExecuteUpdate(ctx)
	if err != nil {
		return 0, errorx.TranslateSQL(err, "could not execute statement", stmt.SQL())
	}

	return rowCount, nil
}

// GeneratedKeys returns, and registers, the keys generated by the last execution of stmt.
func (s *Session) GeneratedKeys(ctx context.Context, stmt dbx.Statement) (dbx.ResultSet, error) {
	ctx = s.logContext(ctx)

	rs, err := stmt.GeneratedKeys()
	if err != nil {
		return nil, errorx.TranslateSQL(err, "unable to extract generated keys", stmt.SQL())
	}

	if err := s.ResourceRegistry().RegisterResultSet(ctx, rs, stmt); err != nil {
		return nil, err
	}

	return rs, nil
}
