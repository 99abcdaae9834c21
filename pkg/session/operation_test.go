package session_test

import (
	"context"
	"testing"

	"github.com/marcodd23/go-txsession/pkg/batch"
	"github.com/marcodd23/go-txsession/pkg/configmgr"
	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/jta"
	"github.com/marcodd23/go-txsession/pkg/jta/memjta"
	"github.com/marcodd23/go-txsession/pkg/session"
	"github.com/marcodd23/go-txsession/test/fakedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jtaAfter(fn func(committed bool)) jta.Synchronization {
	return jta.SynchronizationFuncs{
		After: func(_ context.Context, status jta.Status) error {
			fn(status == jta.StatusCommitted)
			return nil
		},
	}
}

func itemsProvider() *fakedb.Provider {
	provider := fakedb.NewProvider()
	provider.NewConnection = func() *fakedb.Connection {
		conn := fakedb.NewConnection()
		conn.Columns[selectItems] = []string{"id", "name"}
		conn.Rows[selectItems] = [][]any{{1, "a"}, {2, "b"}, {3, "c"}, {4, "d"}, {5, "e"}}

		return conn
	}

	return provider
}

func names(_ context.Context, rs dbx.ResultSet) ([]string, error) {
	var out []string

	for rs.Next() {
		var id int
		var name string

		if err := rs.Scan(&id, &name); err != nil {
			return nil, err
		}

		out = append(out, name)
	}

	return out, rs.Err()
}

type limitBinder struct {
	selection session.RowSelection
}

func (b *limitBinder) Bind(dbx.Statement) error {
	return nil
}

func (b *limitBinder) BindLimit(stmt dbx.Statement, selection session.RowSelection) (bool, error) {
	b.selection = selection

	if err := stmt.SetParameter(1, selection.MaxRows); err != nil {
		return false, err
	}

	return true, stmt.SetParameter(2, selection.FirstRow)
}

func TestQueryOperation(t *testing.T) {
	ctx := context.Background()
	provider := itemsProvider()
	s := openSession(t, newFactory(t, provider, session.Options{}))

	all, err := session.Accept[[]string](ctx, s, session.QueryOperation[[]string]{SQL: selectItems, Extract: names})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, all)

	conn := provider.Last()
	stmt := conn.Statements[0]
	assert.True(t, stmt.IsClosed())
	assert.Nil(t, s.ResourceRegistry().LastQuery())
	assert.False(t, s.ResourceRegistry().HasRegisteredResources())
}

func TestQueryOperationRowSelection(t *testing.T) {
	ctx := context.Background()
	provider := itemsProvider()
	s := openSession(t, newFactory(t, provider, session.Options{}))

	page, err := session.Accept[[]string](ctx, s, session.QueryOperation[[]string]{
		SQL:       selectItems,
		Selection: &session.RowSelection{FirstRow: 1, MaxRows: 2},
		Extract:   names,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, page)

	stmt := provider.Last().Statements[0]
	require.NotEmpty(t, stmt.MaxRowsHistory)
	assert.Equal(t, 3, stmt.MaxRowsHistory[0])
}

func TestQueryOperationLimitBinder(t *testing.T) {
	ctx := context.Background()
	provider := itemsProvider()
	s := openSession(t, newFactory(t, provider, session.Options{}))
	binder := &limitBinder{}

	rows, err := session.Accept[[]string](ctx, s, session.QueryOperation[[]string]{
		SQL:       selectItems,
		Binder:    binder,
		Selection: &session.RowSelection{FirstRow: 3, MaxRows: 2},
		Extract:   names,
	})
	require.NoError(t, err)

	assert.Len(t, rows, 5)
	assert.Equal(t, session.RowSelection{FirstRow: 3, MaxRows: 2}, binder.selection)
	assert.Equal(t, []any{2, 3}, provider.Last().Executions[0].Params)
}

func TestPreparedQueryRunsAgainAfterResultSetRelease(t *testing.T) {
	ctx := context.Background()
	s := openSession(t, newFactory(t, itemsProvider(), session.Options{}))

	stmt, err := s.PrepareQueryStatement(ctx, selectItems, false, dbx.ScrollForwardOnly)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		rs, err := s.ExecuteQuery(ctx, stmt)
		require.NoError(t, err)

		all, err := names(ctx, rs)
		require.NoError(t, err)
		assert.Len(t, all, 5)

		s.ReleaseResultSet(ctx, rs, stmt)

		assert.False(t, stmt.IsClosed())
		assert.True(t, s.ResourceRegistry().IsRegistered(stmt))
	}

	s.ReleaseStatement(ctx, stmt)

	assert.True(t, stmt.IsClosed())
	assert.False(t, s.ResourceRegistry().HasRegisteredResources())
}

func TestQueryOperationScrollable(t *testing.T) {
	ctx := context.Background()
	provider := itemsProvider()
	op := session.QueryOperation[[]string]{SQL: selectItems, Scroll: dbx.ScrollInsensitive, Extract: names}

	disabled := openSession(t, newFactory(t, provider, session.Options{}))
	assert.Panics(t, func() {
		_, _ = session.Accept[[]string](ctx, disabled, op)
	})

	enabled := openSession(t, newFactory(t, provider, session.Options{ScrollableResultSetsEnabled: true}))
	rows, err := session.Accept[[]string](ctx, enabled, op)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
	assert.Equal(t, dbx.ScrollInsensitive, provider.Last().Statements[0].Options.Scroll)
}

func TestExecuteFailureIsTranslated(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	provider.NewConnection = func() *fakedb.Connection {
		conn := fakedb.NewConnection()
		conn.StatementHook = func(stmt *fakedb.Statement) {
			stmt.ExecuteErr = assert.AnError
		}

		return conn
	}

	s := openSession(t, newFactory(t, provider, session.Options{}))

	_, err := session.Accept[[]string](ctx, s, session.QueryOperation[[]string]{OperationName: "list-items", SQL: selectItems, Extract: names})

	var sqlErr *errorx.SQLError
	require.ErrorAs(t, err, &sqlErr)
	assert.Equal(t, "list-items", sqlErr.Operation)
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, provider.Last().Statements[0].IsClosed())
}

func TestUpdateExpectationViolation(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	provider.NewConnection = func() *fakedb.Connection {
		conn := fakedb.NewConnection()
		conn.UpdateCounts[insertItem] = 0

		return conn
	}

	s := openSession(t, newFactory(t, provider, session.Options{}))

	rows, err := session.Accept[int64](ctx, s, session.UpdateOperation{SQL: insertItem, Expectation: batch.ExpectSingleRow})

	assert.Zero(t, rows)
	assert.ErrorIs(t, err, errorx.ErrBatchOutcome)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &configmgr.SessionConfig{
		BaseConfig: configmgr.BaseConfig{
			Name:    "orders",
			Logging: &configmgr.LoggingConfig{Level: "debug", ShowSql: true},
		},
		Jdbc: &configmgr.JdbcConfig{
			BatchSize:                 20,
			ForegoBatching:            true,
			ConnectionHandling:        configmgr.ConnectionHandlingDelayedAfterStatement,
			GeneratedKeysEnabled:      true,
			DefaultTransactionTimeout: 30,
		},
	}

	opts := session.OptionsFromConfig(cfg)

	assert.Equal(t, 20, opts.BatchSize)
	assert.True(t, opts.ForegoBatching)
	assert.True(t, opts.GeneratedKeysEnabled)
	assert.False(t, opts.ScrollableResultSetsEnabled)
	assert.True(t, opts.ShowSQL)
	assert.Equal(t, 30, opts.DefaultTransactionTimeout)

	f, err := session.NewFactoryFromConfig(cfg, fakedb.NewProvider(), nil)
	require.NoError(t, err)
	assert.Equal(t, dbx.DelayedAcquisitionReleaseAfterStatement, f.HandlingMode())
}

func TestFactoryFromConfigSelectsCoordinator(t *testing.T) {
	ctx := context.Background()
	cfg := &configmgr.SessionConfig{
		BaseConfig:  configmgr.BaseConfig{Name: "orders"},
		Transaction: &configmgr.TransactionConfig{Coordinator: configmgr.TransactionCoordinatorJta, AutoJoin: true},
	}

	_, err := session.NewFactoryFromConfig(cfg, fakedb.NewProvider(), nil)
	assert.Error(t, err)

	f, err := session.NewFactoryFromConfig(cfg, fakedb.NewProvider(), memjta.NewPlatform())
	require.NoError(t, err)
	assert.Equal(t, dbx.DelayedAcquisitionReleaseAfterStatement, f.HandlingMode())

	s := openSession(t, f)
	assert.True(t, s.Coordinator().Builder().IsJta())

	cfg.Transaction = nil
	f, err = session.NewFactoryFromConfig(cfg, fakedb.NewProvider(), nil)
	require.NoError(t, err)
	assert.Equal(t, dbx.DelayedAcquisitionReleaseAfterTransaction, f.HandlingMode())

	s, err = f.OpenSession(ctx)
	require.NoError(t, err)
	assert.False(t, s.Coordinator().Builder().IsJta())

	cfg.Transaction = &configmgr.TransactionConfig{Coordinator: configmgr.TransactionCoordinatorPlain}
	f, err = session.NewFactoryFromConfig(cfg, fakedb.NewProvider(), nil)
	require.NoError(t, err)
	assert.Equal(t, dbx.DelayedAcquisitionAndHold, f.HandlingMode())
}

func TestPlainCoordinatorFromConfigCommitsOnSessionConnection(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	cfg := &configmgr.SessionConfig{
		BaseConfig:  configmgr.BaseConfig{Name: "orders"},
		Transaction: &configmgr.TransactionConfig{Coordinator: configmgr.TransactionCoordinatorPlain},
	}

	f, err := session.NewFactoryFromConfig(cfg, provider, nil)
	require.NoError(t, err)

	s := openSession(t, f)

	tx, err := s.BeginTransaction(ctx)
	require.NoError(t, err)

	_, err = session.Accept[int64](ctx, s, session.UpdateOperation{SQL: insertItem, Binder: session.Params(1, "a")})
	require.NoError(t, err)

	require.NoError(t, tx.Commit(ctx))

	conn := provider.Last()
	assert.Equal(t, 1, conn.Commits)
	assert.Equal(t, []bool{false, true}, conn.SetAutoCommitCalls)
	assert.Len(t, conn.ExecutionsOf(insertItem), 1)
}

func TestFactoryRejectsInvalidConfig(t *testing.T) {
	_, err := session.NewFactoryFromConfig(&configmgr.SessionConfig{}, fakedb.NewProvider(), nil)

	var cfgErr *errorx.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = session.NewFactory(fakedb.NewProvider(), nil, session.Options{})
	assert.Error(t, err)

	_, err = session.NewFactoryFromConfig(&configmgr.SessionConfig{
		BaseConfig: configmgr.BaseConfig{Name: "orders"},
		Jdbc:       &configmgr.JdbcConfig{ConnectionHandling: "release-whenever"},
	}, fakedb.NewProvider(), nil)
	assert.Error(t, err)
}

func TestDefaultTransactionTimeout(t *testing.T) {
	s := openSession(t, newFactory(t, fakedb.NewProvider(), session.Options{DefaultTransactionTimeout: 15}))

	assert.Equal(t, 15, s.Coordinator().Timeout())
}
