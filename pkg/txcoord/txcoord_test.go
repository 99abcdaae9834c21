package txcoord_test

import (
	"context"
	"testing"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/jta"
	"github.com/marcodd23/go-txsession/pkg/observer"
	"github.com/marcodd23/go-txsession/pkg/txcoord"
	"github.com/marcodd23/go-txsession/test/fakedb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingOwner struct {
	events    []string
	resource  txcoord.ResourceTransaction
	beforeErr error
	timeout   int
}

func (o *recordingOwner) IsActive() bool { return true }

func (o *recordingOwner) StartTransactionBoundary(context.Context) {
	o.events = append(o.events, "owner.start")
}

func (o *recordingOwner) AfterTransactionBegin(context.Context) {
	o.events = append(o.events, "owner.afterBegin")
}

func (o *recordingOwner) BeforeTransactionCompletion(context.Context) error {
	o.events = append(o.events, "owner.before")
	return o.beforeErr
}

func (o *recordingOwner) AfterTransactionCompletion(_ context.Context, successful, _ bool) {
	if successful {
		o.events = append(o.events, "owner.after(true)")
		return
	}

	o.events = append(o.events, "owner.after(false)")
}

func (o *recordingOwner) SetTransactionTimeout(seconds int) {
	o.timeout = seconds
}

func (o *recordingOwner) ResourceLocalTransaction() txcoord.ResourceTransaction {
	return o.resource
}

func recordingSync(o *recordingOwner) jta.Synchronization {
	return jta.SynchronizationFuncs{
		Before: func(context.Context) error {
			o.events = append(o.events, "sync.before")
			return nil
		},
		After: func(_ context.Context, status jta.Status) error {
			o.events = append(o.events, "sync.after("+status.String()+")")
			return nil
		},
	}
}

func newResourceLocal(t *testing.T, conn *fakedb.Connection) (txcoord.Coordinator, *recordingOwner) {
	t.Helper()

	owner := &recordingOwner{resource: txcoord.NewConnectionTransaction(txcoord.FixedConnection(conn), false)}
	coordinator, err := txcoord.NewResourceLocalBuilder().Build(owner)
	require.NoError(t, err)

	return coordinator, owner
}

func TestResourceLocalCommit(t *testing.T) {
	ctx := context.Background()
	conn := fakedb.NewConnection()
	coordinator, owner := newResourceLocal(t, conn)
	coordinator.LocalSynchronizations().Register(recordingSync(owner))

	driver, err := coordinator.TransactionDriver(ctx)
	require.NoError(t, err)
	require.NoError(t, driver.Begin(ctx))

	assert.Equal(t, []bool{false}, conn.SetAutoCommitCalls)
	assert.True(t, coordinator.IsJoined())
	assert.Equal(t, txcoord.StatusActive, driver.Status(ctx))

	require.NoError(t, driver.Commit(ctx))

	assert.Equal(t, []string{
		"owner.afterBegin",
		"owner.before",
		"sync.before",
		"sync.after(COMMITTED)",
		"owner.after(true)",
	}, owner.events)
	assert.Equal(t, 1, conn.Commits)
	assert.Equal(t, []bool{false, true}, conn.SetAutoCommitCalls)
	assert.False(t, coordinator.IsJoined())
}

func TestResourceLocalRollbackSkipsBeforeCompletion(t *testing.T) {
	ctx := context.Background()
	conn := fakedb.NewConnection()
	coordinator, owner := newResourceLocal(t, conn)
	coordinator.LocalSynchronizations().Register(recordingSync(owner))

	driver, err := coordinator.TransactionDriver(ctx)
	require.NoError(t, err)
	require.NoError(t, driver.Begin(ctx))
	require.NoError(t, driver.Rollback(ctx))

	assert.Equal(t, []string{
		"owner.afterBegin",
		"sync.after(ROLLEDBACK)",
		"owner.after(false)",
	}, owner.events)
	assert.Equal(t, 1, conn.Rollbacks)
	assert.Equal(t, []bool{false, true}, conn.SetAutoCommitCalls)
}

func TestAutoCommitNotRestoredWhenInitiallyOff(t *testing.T) {
	ctx := context.Background()
	conn := fakedb.NewConnection()
	conn.SetInitialAutoCommit(false)
	coordinator, _ := newResourceLocal(t, conn)

	driver, err := coordinator.TransactionDriver(ctx)
	require.NoError(t, err)
	require.NoError(t, driver.Begin(ctx))
	require.NoError(t, driver.Commit(ctx))

	assert.Empty(t, conn.SetAutoCommitCalls)
}

func TestProviderDisablesAutoCommit(t *testing.T) {
	ctx := context.Background()
	conn := fakedb.NewConnection()
	builder := txcoord.NewPlainConnectionBuilder(txcoord.FixedConnection(conn), true)
	coordinator, err := builder.Build(&recordingOwner{})
	require.NoError(t, err)

	driver, err := coordinator.TransactionDriver(ctx)
	require.NoError(t, err)
	require.NoError(t, driver.Begin(ctx))
	require.NoError(t, driver.Commit(ctx))

	assert.Empty(t, conn.SetAutoCommitCalls)
	assert.Equal(t, 1, conn.Commits)
}

func TestAutoCommitRestoreFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	conn := fakedb.NewConnection()
	coordinator, _ := newResourceLocal(t, conn)

	driver, err := coordinator.TransactionDriver(ctx)
	require.NoError(t, err)
	require.NoError(t, driver.Begin(ctx))

	conn.SetAutoCommitErr = errors.New("cannot switch")
	assert.NoError(t, driver.Commit(ctx))
}

func TestStaleDriverIsRejected(t *testing.T) {
	ctx := context.Background()
	conn := fakedb.NewConnection()
	coordinator, _ := newResourceLocal(t, conn)

	driver, err := coordinator.TransactionDriver(ctx)
	require.NoError(t, err)
	require.NoError(t, driver.Begin(ctx))
	require.NoError(t, driver.Commit(ctx))

	err = driver.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errorx.ErrStaleDelegate)
	assert.ErrorIs(t, driver.Begin(ctx), errorx.ErrStaleDelegate)
	assert.Equal(t, txcoord.StatusNotActive, driver.Status(ctx))

	next, err := coordinator.TransactionDriver(ctx)
	require.NoError(t, err)
	assert.Equal(t, driver.Generation()+1, next.Generation())
	require.NoError(t, next.Begin(ctx))
	require.NoError(t, next.Rollback(ctx))
}

func TestFailedCommitRollsBackAndCompletesOnce(t *testing.T) {
	ctx := context.Background()
	conn := fakedb.NewConnection()
	coordinator, owner := newResourceLocal(t, conn)

	driver, err := coordinator.TransactionDriver(ctx)
	require.NoError(t, err)
	require.NoError(t, driver.Begin(ctx))

	conn.CommitErr = errors.New("serialization failure")
	err = driver.Commit(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, errorx.ErrTransaction)
	assert.Equal(t, 1, conn.Rollbacks)
	assert.Equal(t, []string{"owner.afterBegin", "owner.before", "owner.after(false)"}, owner.events)
}

func TestBeforeCompletionFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	conn := fakedb.NewConnection()
	coordinator, owner := newResourceLocal(t, conn)
	owner.beforeErr = errors.New("flush failed")

	driver, err := coordinator.TransactionDriver(ctx)
	require.NoError(t, err)
	require.NoError(t, driver.Begin(ctx))

	err = driver.Commit(ctx)

	assert.ErrorIs(t, err, errorx.ErrTransaction)
	assert.Zero(t, conn.Commits)
	assert.Equal(t, 1, conn.Rollbacks)
	assert.Equal(t, "owner.after(false)", owner.events[len(owner.events)-1])
}

func TestMarkRollbackOnly(t *testing.T) {
	ctx := context.Background()
	conn := fakedb.NewConnection()
	coordinator, owner := newResourceLocal(t, conn)

	driver, err := coordinator.TransactionDriver(ctx)
	require.NoError(t, err)
	require.NoError(t, driver.Begin(ctx))

	driver.MarkRollbackOnly(ctx)
	assert.Equal(t, txcoord.StatusMarkedRollback, driver.Status(ctx))

	err = driver.Commit(ctx)

	assert.ErrorIs(t, err, errorx.ErrTransaction)
	assert.Zero(t, conn.Commits)
	assert.Equal(t, 1, conn.Rollbacks)
	assert.Equal(t, []string{"owner.afterBegin", "owner.after(false)"}, owner.events)
}

func TestBeginFailureIsTranslated(t *testing.T) {
	ctx := context.Background()
	conn := fakedb.NewConnection()
	conn.SetAutoCommitErr = errors.New("connection reset")
	coordinator, owner := newResourceLocal(t, conn)

	driver, err := coordinator.TransactionDriver(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, driver.Begin(ctx), errorx.ErrTransaction)
	assert.Empty(t, owner.events)
}

func TestTimeoutAndObserversOnBegin(t *testing.T) {
	ctx := context.Background()
	conn := fakedb.NewConnection()
	coordinator, owner := newResourceLocal(t, conn)
	stats := observer.NewStatistics()
	coordinator.AddObserver(stats)
	coordinator.SetTimeout(30)

	driver, err := coordinator.TransactionDriver(ctx)
	require.NoError(t, err)
	require.NoError(t, driver.Begin(ctx))
	require.NoError(t, driver.Commit(ctx))

	assert.Equal(t, 30, owner.timeout)
	assert.Equal(t, 30, coordinator.Timeout())
	assert.Equal(t, int64(1), stats.Snapshot().TransactionsBegun)
	assert.Equal(t, int64(1), stats.Snapshot().TransactionsCommitted)
}

func TestResourceLocalRequiresAccess(t *testing.T) {
	type plainOwner struct{ txcoord.Owner }

	_, err := txcoord.NewResourceLocalBuilder().Build(plainOwner{})
	assert.Error(t, err)
}

func TestExplicitJoinIsNoop(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newResourceLocal(t, fakedb.NewConnection())

	assert.NoError(t, coordinator.ExplicitJoin(ctx))
	assert.NoError(t, coordinator.Pulse(ctx))
	assert.False(t, coordinator.IsJoined())
	assert.False(t, coordinator.Builder().IsJta())
}

func TestSynchronizationFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	registry := txcoord.NewSynchronizationRegistry()
	var calls []string

	registry.Register(jta.SynchronizationFuncs{
		Before: func(context.Context) error { panic("listener bug") },
		After: func(context.Context, jta.Status) error {
			return errors.New("listener failure")
		},
	})
	registry.Register(jta.SynchronizationFuncs{
		Before: func(context.Context) error {
			calls = append(calls, "before")
			return nil
		},
		After: func(context.Context, jta.Status) error {
			calls = append(calls, "after")
			return nil
		},
	})
	registry.Register(nil)

	assert.NotPanics(t, func() {
		registry.NotifyBeforeCompletion(ctx)
		registry.NotifyAfterCompletion(ctx, jta.StatusCommitted)
	})
	assert.Equal(t, []string{"before", "after"}, calls)
	assert.Equal(t, 2, registry.Len())

	registry.ClearSynchronizations()
	assert.Zero(t, registry.Len())
}

func TestIsolationDelegate(t *testing.T) {
	ctx := context.Background()
	provider := fakedb.NewProvider()
	delegate := txcoord.NewIsolationDelegate(provider, false)

	require.NoError(t, delegate.DelegateWork(ctx, func(context.Context, dbx.Connection) error { return nil }, true))

	conn := provider.Last()
	assert.Equal(t, 1, conn.Commits)
	assert.Equal(t, 1, provider.Released)

	err := delegate.DelegateWork(ctx, func(context.Context, dbx.Connection) error {
		return errors.New("work failed")
	}, true)

	assert.ErrorIs(t, err, errorx.ErrSQL)
	assert.Equal(t, 1, provider.Last().Rollbacks)
	assert.Equal(t, 2, provider.Released)
}
