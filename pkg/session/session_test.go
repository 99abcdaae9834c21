package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/marcodd23/go-txsession/pkg/batch"
	"github.com/marcodd23/go-txsession/pkg/configmgr"
	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/jta/memjta"
	"github.com/marcodd23/go-txsession/pkg/observer"
	"github.com/marcodd23/go-txsession/pkg/session"
	"github.com/marcodd23/go-txsession/pkg/txcoord"
	"github.com/marcodd23/go-txsession/pkg/txcoord/jtatx"
	"github.com/marcodd23/go-txsession/test/fakedb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	insertItem    = "insert into item (id, name) values (?, ?)"
	insertTag     = "insert into tag (item_id, label) values (?, ?)"
	insertVehicle = "insert into vehicle (name) values (?)"
	insertCar     = "insert into car (vehicle_id, wheels) values (?, ?)"
	selectItems   = "select id, name from item order by id"
)

func newFactory(t *testing.T, provider *fakedb.Provider, opts session.Options) *session.Factory {
	t.Helper()

	f, err := session.NewFactory(provider, txcoord.NewResourceLocalBuilder(), opts)
	require.NoError(t, err)

	return f
}

func openSession(t *testing.T, f *session.Factory) *session.Session {
	t.Helper()

	s, err := f.OpenSession(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = s.Close(context.Background())
	})

	return s
}

func batchItem(key batch.Key, id int) session.BatchableOperation {
	return session.BatchableOperation{
		Key:        key,
		Statements: []session.BatchedStatement{{SQL: insertItem, Binder: session.Params(id, "item")}},
	}
}

func TestBatchSizeThreeExecutesOnce(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	s := openSession(t, newFactory(t, provider, session.Options{BatchSize: 3, ForegoBatching: true}))
	key := batch.NewKey("Item#insert", batch.ExpectSingleRow)

	for id := 1; id <= 3; id++ {
		_, err := session.Accept[struct{}](ctx, s, batchItem(key, id))
		require.NoError(t, err)
	}

	conn := provider.Last()
	require.Len(t, conn.Statements, 1)

	stmt := conn.Statements[0]
	assert.Equal(t, 3, stmt.AddBatchCalls)
	assert.Equal(t, 1, stmt.ExecuteBatchCalls)
	assert.Equal(t, 1, stmt.ClearBatchCalls)
	assert.Equal(t, 1, stmt.CloseCalls)
	assert.Len(t, conn.ExecutionsOf(insertItem), 3)
	assert.False(t, s.ResourceRegistry().HasRegisteredResources())
}

func TestSwitchingBatchKeyFlushesPreviousBatch(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	stats := observer.NewStatistics()
	s := openSession(t, newFactory(t, provider, session.Options{BatchSize: 10, Observers: []observer.Observer{stats}}))

	_, err := session.Accept[struct{}](ctx, s, batchItem(batch.NewKey("Item#insert", batch.ExpectSingleRow), 1))
	require.NoError(t, err)

	conn := provider.Last()
	items := conn.Statements[0]
	assert.Zero(t, items.ExecuteBatchCalls)
	assert.True(t, s.ResourceRegistry().IsRegistered(items))

	_, err = session.Accept[struct{}](ctx, s, session.BatchableOperation{
		Key:        batch.NewKey("Tag#insert", batch.ExpectSingleRow),
		Statements: []session.BatchedStatement{{SQL: insertTag, Binder: session.Params(1, "new")}},
	})
	require.NoError(t, err)

	require.Len(t, conn.Statements, 2)
	tags := conn.Statements[1]

	assert.Equal(t, 1, items.ExecuteBatchCalls)
	assert.True(t, items.IsClosed())
	assert.Equal(t, 1, tags.AddBatchCalls)
	assert.Zero(t, tags.ExecuteBatchCalls)
	assert.Equal(t, insertItem, conn.Executions[0].SQL)
	assert.Equal(t, int64(1), stats.Snapshot().ExplicitBatchFlushes)

	require.NoError(t, s.ExecuteBatch(ctx))
	assert.Equal(t, 1, tags.ExecuteBatchCalls)
}

func TestGeneratedKeyFeedsSubclassInsert(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	provider.NewConnection = func() *fakedb.Connection {
		conn := fakedb.NewConnection()
		conn.NextGeneratedKey = 42

		return conn
	}

	s := openSession(t, newFactory(t, provider, session.Options{GeneratedKeysEnabled: true}))

	id, err := session.Accept[int64](ctx, s, session.GeneratedKeysInsertOperation[int64]{
		SQL:        insertVehicle,
		KeyColumns: []string{"id"},
		Binder:     session.Params("bike"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	rows, err := session.Accept[int64](ctx, s, session.UpdateOperation{
		SQL:         insertCar,
		Binder:      session.Params(id, 4),
		Expectation: batch.ExpectSingleRow,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	conn := provider.Last()
	cars := conn.ExecutionsOf(insertCar)
	require.Len(t, cars, 1)
	assert.Equal(t, int64(42), cars[0].Params[0])

	vehicle := conn.Statements[0]
	assert.True(t, vehicle.Options.ReturnGeneratedKeys)
	assert.Equal(t, []string{"id"}, vehicle.Options.GeneratedKeyColumns)
	assert.True(t, vehicle.IsClosed())
	assert.False(t, s.ResourceRegistry().HasRegisteredResources())
}

func TestCapabilityGatesPanic(t *testing.T) {
	ctx := context.Background()
	s := openSession(t, newFactory(t, fakedb.NewProvider(), session.Options{}))

	assert.Panics(t, func() {
		_, _ = s.PrepareStatementWithGeneratedKeys(ctx, insertVehicle)
	})
	assert.Panics(t, func() {
		_, _ = session.Accept[int64](ctx, s, session.GeneratedKeysInsertOperation[int64]{SQL: insertVehicle})
	})
	assert.Panics(t, func() {
		_, _ = s.PrepareQueryStatement(ctx, selectItems, false, dbx.ScrollInsensitive)
	})

	stmt, err := s.PrepareQueryStatement(ctx, selectItems, false, dbx.ScrollForwardOnly)
	require.NoError(t, err)
	assert.NotNil(t, stmt)
}

func TestAcceptReleasesOnlyWhatItOpened(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	s := openSession(t, newFactory(t, provider, session.Options{}))

	held, err := s.PrepareStatement(ctx, "select 1")
	require.NoError(t, err)

	_, err = session.Accept[int64](ctx, s, session.UpdateOperation{SQL: insertItem, Binder: session.Params(1, "item")})
	require.NoError(t, err)

	conn := provider.Last()
	require.Len(t, conn.Statements, 2)
	assert.False(t, held.IsClosed())
	assert.True(t, s.ResourceRegistry().IsRegistered(held))
	assert.True(t, conn.Statements[1].IsClosed())
}

func TestPreparationPath(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	stats := observer.NewStatistics()
	s := openSession(t, newFactory(t, provider, session.Options{
		ShowSQL: true,
		Inspector: session.StatementInspectorFunc(func(sql string) string {
			return "/* orders */ " + sql
		}),
		Observers: []observer.Observer{stats, observer.Logging{}},
	}))

	stmt, err := s.PrepareCallable(ctx, "{call refresh_items()}")
	require.NoError(t, err)

	assert.Equal(t, "/* orders */ {call refresh_items()}", stmt.SQL())
	assert.True(t, provider.Last().Statements[0].Options.Callable)
	assert.True(t, s.ResourceRegistry().IsRegistered(stmt))
	assert.Nil(t, s.ResourceRegistry().LastQuery())
	assert.Equal(t, int64(1), stats.Snapshot().StatementsPrepared)
}

func TestPrepareFailureCarriesOperation(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	provider.NewConnection = func() *fakedb.Connection {
		conn := fakedb.NewConnection()
		conn.PrepareErr = errors.New("syntax error at or near \"insrt\"")

		return conn
	}

	stats := observer.NewStatistics()
	s := openSession(t, newFactory(t, provider, session.Options{Observers: []observer.Observer{stats}}))

	_, err := session.Accept[int64](ctx, s, session.UpdateOperation{OperationName: "touch-item", SQL: insertItem})

	var sqlErr *errorx.SQLError
	require.ErrorAs(t, err, &sqlErr)
	assert.Equal(t, "touch-item", sqlErr.Operation)
	assert.Equal(t, insertItem, sqlErr.SQL)
	assert.Equal(t, int64(1), stats.Snapshot().StatementsPrepared)
}

func TestTransactionTimeoutBudget(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := openSession(t, newFactory(t, fakedb.NewProvider(), session.Options{
		Clock: func() time.Time { return now },
	}))

	tx := s.Transaction()
	tx.SetTimeout(10)
	require.NoError(t, tx.Begin(ctx))

	first, err := s.PrepareStatement(ctx, "select 1")
	require.NoError(t, err)
	timeout, _ := first.QueryTimeout()
	assert.Equal(t, 10, timeout)

	now = now.Add(4500 * time.Millisecond)
	second, err := s.PrepareStatement(ctx, "select 2")
	require.NoError(t, err)
	timeout, _ = second.QueryTimeout()
	assert.Equal(t, 5, timeout)

	now = now.Add(6 * time.Second)
	_, err = s.PrepareStatement(ctx, "select 3")
	assert.ErrorIs(t, err, errorx.ErrTransactionTimeout)
	assert.ErrorIs(t, err, errorx.ErrTransaction)

	require.NoError(t, tx.Rollback(ctx))

	third, err := s.PrepareStatement(ctx, "select 4")
	require.NoError(t, err)
	timeout, _ = third.QueryTimeout()
	assert.Zero(t, timeout)
}

func TestCommitExecutesPendingBatch(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	stats := observer.NewStatistics()
	s := openSession(t, newFactory(t, provider, session.Options{BatchSize: 10, Observers: []observer.Observer{stats}}))

	tx, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	assert.True(t, tx.IsActive(ctx))

	_, err = session.Accept[struct{}](ctx, s, batchItem(batch.NewKey("Item#insert", batch.ExpectSingleRow), 1))
	require.NoError(t, err)

	conn := provider.Last()
	stmt := conn.Statements[0]
	assert.Zero(t, stmt.ExecuteBatchCalls)

	require.NoError(t, tx.Commit(ctx))

	assert.Equal(t, 1, stmt.ExecuteBatchCalls)
	assert.Equal(t, 1, conn.Commits)
	assert.Equal(t, []bool{false, true}, conn.SetAutoCommitCalls)
	assert.Equal(t, 1, provider.Released)
	assert.False(t, tx.IsActive(ctx))

	snapshot := stats.Snapshot()
	assert.Equal(t, int64(1), snapshot.TransactionsBegun)
	assert.Equal(t, int64(1), snapshot.TransactionsCommitted)

	assert.ErrorIs(t, tx.Commit(ctx), errorx.ErrTransaction)
}

func TestFailingBatchDoomsCommit(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	provider.NewConnection = func() *fakedb.Connection {
		conn := fakedb.NewConnection()
		conn.StatementHook = func(stmt *fakedb.Statement) {
			stmt.ExecuteBatchErr = errors.New("duplicate key value violates unique constraint")
		}

		return conn
	}

	s := openSession(t, newFactory(t, provider, session.Options{BatchSize: 10}))

	tx, err := s.BeginTransaction(ctx)
	require.NoError(t, err)

	_, err = session.Accept[struct{}](ctx, s, batchItem(batch.NewKey("Item#insert", batch.ExpectSingleRow), 1))
	require.NoError(t, err)

	err = tx.Commit(ctx)

	assert.ErrorIs(t, err, errorx.ErrTransaction)
	assert.ErrorIs(t, err, errorx.ErrSQL)

	conn := provider.Last()
	assert.Zero(t, conn.Commits)
	assert.Equal(t, 1, conn.Rollbacks)
	assert.True(t, conn.Statements[0].IsClosed())
}

func TestRollbackDiscardsPendingBatch(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	s := openSession(t, newFactory(t, provider, session.Options{BatchSize: 10}))

	tx, err := s.BeginTransaction(ctx)
	require.NoError(t, err)

	var completed []bool
	tx.RegisterSynchronization(jtaAfter(func(committed bool) { completed = append(completed, committed) }))

	_, err = session.Accept[struct{}](ctx, s, batchItem(batch.NewKey("Item#insert", batch.ExpectSingleRow), 1))
	require.NoError(t, err)

	require.NoError(t, tx.Rollback(ctx))

	conn := provider.Last()
	stmt := conn.Statements[0]
	assert.Zero(t, stmt.ExecuteBatchCalls)
	assert.Equal(t, 1, stmt.ClearBatchCalls)
	assert.True(t, stmt.IsClosed())
	assert.Equal(t, 1, conn.Rollbacks)
	assert.Equal(t, []bool{false}, completed)
}

func TestMarkedRollbackOnlyCommitRollsBack(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	s := openSession(t, newFactory(t, provider, session.Options{}))

	tx, err := s.BeginTransaction(ctx)
	require.NoError(t, err)

	tx.SetRollbackOnly(ctx)
	assert.Equal(t, txcoord.StatusMarkedRollback, tx.Status(ctx))
	assert.True(t, tx.IsActive(ctx))

	assert.ErrorIs(t, tx.Commit(ctx), errorx.ErrTransaction)
	assert.Equal(t, 1, provider.Last().Rollbacks)
	assert.Zero(t, provider.Last().Commits)
}

func TestReleaseAfterStatement(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	s := openSession(t, newFactory(t, provider, session.Options{
		ConnectionHandling: configmgr.ConnectionHandlingDelayedAfterStatement,
	}))

	_, err := session.Accept[int64](ctx, s, session.UpdateOperation{SQL: insertItem, Binder: session.Params(1, "item")})
	require.NoError(t, err)
	_, err = session.Accept[int64](ctx, s, session.UpdateOperation{SQL: insertItem, Binder: session.Params(2, "item")})
	require.NoError(t, err)

	assert.Equal(t, 2, provider.Obtained)
	assert.Equal(t, 2, provider.Released)
	assert.False(t, s.LogicalConnection().IsPhysicallyConnected())
}

func TestCancelLastQuery(t *testing.T) {
	ctx := context.Background()
	s := openSession(t, newFactory(t, fakedb.NewProvider(), session.Options{}))

	stmt, err := s.PrepareQueryStatement(ctx, selectItems, false, dbx.ScrollForwardOnly)
	require.NoError(t, err)

	require.NoError(t, s.CancelLastQuery(ctx))
	require.NoError(t, s.CancelLastQuery(ctx))

	assert.Equal(t, 1, stmt.(*fakedb.Statement).CancelCalls)
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	f := newFactory(t, provider, session.Options{})

	s, err := f.OpenSession(ctx)
	require.NoError(t, err)

	stmt, err := s.PrepareStatement(ctx, "select 1")
	require.NoError(t, err)

	conn, err := s.Close(ctx)
	require.NoError(t, err)
	assert.Nil(t, conn)
	assert.True(t, stmt.IsClosed())
	assert.Equal(t, 1, provider.Released)
	assert.False(t, s.IsOpen())

	_, err = s.Close(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.Released)

	_, err = s.PrepareStatement(ctx, "select 1")
	assert.ErrorIs(t, err, errorx.ErrResourceClosed)

	_, err = session.Accept[int64](ctx, s, session.UpdateOperation{SQL: insertItem})
	assert.ErrorIs(t, err, errorx.ErrResourceClosed)

	_, err = s.BeginTransaction(ctx)
	assert.ErrorIs(t, err, errorx.ErrResourceClosed)
}

func TestSessionOverSuppliedConnection(t *testing.T) {
	ctx := context.Background()
	supplied := fakedb.NewConnection()
	f, err := session.NewFactory(nil, txcoord.NewResourceLocalBuilder(), session.Options{})
	require.NoError(t, err)

	_, err = f.OpenSession(ctx)
	require.Error(t, err)

	s, err := f.OpenSessionWithConnection(ctx, supplied)
	require.NoError(t, err)

	tx, err := s.BeginTransaction(ctx)
	require.NoError(t, err)

	_, err = session.Accept[int64](ctx, s, session.UpdateOperation{SQL: insertItem, Binder: session.Params(1, "item")})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.Equal(t, 1, supplied.Commits)
	assert.Error(t, s.DoIsolatedWork(ctx, func(context.Context, dbx.Connection) error { return nil }, true))

	returned, err := s.Close(ctx)
	require.NoError(t, err)
	assert.Same(t, supplied, returned)
	assert.Zero(t, supplied.CloseCalls)
}

func TestIsolatedWorkUsesSeparateConnection(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	s := openSession(t, newFactory(t, provider, session.Options{}))

	_, err := s.BeginTransaction(ctx)
	require.NoError(t, err)

	sessionConn := provider.Last()

	var isolated dbx.Connection
	require.NoError(t, s.DoIsolatedWork(ctx, func(_ context.Context, conn dbx.Connection) error {
		isolated = conn
		return nil
	}, true))

	assert.NotSame(t, sessionConn, isolated)
	assert.Equal(t, 1, isolated.(*fakedb.Connection).Commits)
	assert.Zero(t, sessionConn.Commits)
	assert.Equal(t, 2, provider.Obtained)
	assert.Equal(t, 1, provider.Released)
}

func TestJtaSessionJoinsContainerTransaction(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	platform := memjta.NewPlatform()

	f, err := session.NewFactory(provider, jtatx.NewBuilder(platform, jtatx.Config{AutoJoin: true, PreferUserTransaction: true}),
		session.Options{BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, dbx.DelayedAcquisitionReleaseAfterStatement, f.HandlingMode())

	s := openSession(t, f)
	assert.False(t, s.Coordinator().IsJoined())

	require.NoError(t, platform.TM.Begin(ctx))

	_, err = session.Accept[struct{}](ctx, s, batchItem(batch.NewKey("Item#insert", batch.ExpectSingleRow), 1))
	require.NoError(t, err)

	assert.True(t, s.Coordinator().IsJoined())
	assert.Equal(t, 1, platform.TM.Current().Synchronizations())

	conn := provider.Last()
	stmt := conn.Statements[0]
	assert.Zero(t, stmt.ExecuteBatchCalls)
	assert.True(t, s.LogicalConnection().IsPhysicallyConnected())

	require.NoError(t, platform.TM.Commit(ctx))

	assert.Equal(t, 1, stmt.ExecuteBatchCalls)
	assert.False(t, s.Coordinator().IsJoined())
	assert.Equal(t, 1, provider.Released)
	assert.Empty(t, conn.SetAutoCommitCalls)
}

func TestWorkOperation(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	s := openSession(t, newFactory(t, provider, session.Options{}))

	autoCommit, err := session.Accept[bool](ctx, s, session.WorkOperation[bool]{
		Work: func(_ context.Context, conn dbx.Connection) (bool, error) {
			return conn.AutoCommit()
		},
	})
	require.NoError(t, err)
	assert.True(t, autoCommit)

	_, err = session.Accept[bool](ctx, s, session.WorkOperation[bool]{
		OperationName: "vacuum",
		Work: func(context.Context, dbx.Connection) (bool, error) {
			return false, errors.New("cannot run inside a transaction block")
		},
	})

	var sqlErr *errorx.SQLError
	require.ErrorAs(t, err, &sqlErr)
	assert.Equal(t, "vacuum", sqlErr.Operation)
}
