package txcoord

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/jta"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/marcodd23/go-txsession/pkg/observer"
	"github.com/pkg/errors"
)

// ResourceLocalBuilder builds coordinators driving the owner's own resource-local transaction.
// The owner must implement ResourceTransactionAccess.
type ResourceLocalBuilder struct{}

// NewResourceLocalBuilder - ResourceLocalBuilder constructor.
func NewResourceLocalBuilder() ResourceLocalBuilder {
	return ResourceLocalBuilder{}
}

// Build creates the coordinator of owner.
//
// Arguments:
//   - owner: the session, which must implement ResourceTransactionAccess.
//
// Returns:
//   - A coordinator driving owner's resource-local transaction, or an error when owner does
//     not expose one.
func (b ResourceLocalBuilder) Build(owner Owner) (Coordinator, error) {
	access, ok := owner.(ResourceTransactionAccess)
	if !ok {
		return nil, errors.New("could not determine resource-local transaction access of the coordinator owner")
	}

	return newLocalCoordinator(b, owner, access.ResourceLocalTransaction), nil
}

// IsJta - always false.
func (b ResourceLocalBuilder) IsJta() bool {
	return false
}

// DefaultHandlingMode - connections are acquired lazily and released once the transaction
// completes.
func (b ResourceLocalBuilder) DefaultHandlingMode() dbx.HandlingMode {
	return dbx.DelayedAcquisitionReleaseAfterTransaction
}

// ConnectionSourceAccess is implemented by owners able to hand out their physical connection.
type ConnectionSourceAccess interface {
	ConnectionSource() ConnectionSource
}

// PlainConnectionBuilder builds coordinators driving transactions directly on the connections
// returned by a ConnectionSource.
type PlainConnectionBuilder struct {
	source                     ConnectionSource
	providerDisablesAutoCommit bool
}

// NewPlainConnectionBuilder - PlainConnectionBuilder constructor.
//
// Arguments:
//   - source: the connection transactions run on. When nil, each coordinator uses the
//     source of its owner, which must then implement ConnectionSourceAccess.
//   - providerDisablesAutoCommit: connections arrive with auto-commit already off, so begin
//     and completion leave auto-commit untouched.
func NewPlainConnectionBuilder(source ConnectionSource, providerDisablesAutoCommit bool) PlainConnectionBuilder {
	return PlainConnectionBuilder{source: source, providerDisablesAutoCommit: providerDisablesAutoCommit}
}

// Build creates the coordinator of owner.
//
// Returns:
//   - A coordinator whose transactions toggle auto-commit on the source connection, or an error
//     when neither the builder nor owner provides a connection source.
func (b PlainConnectionBuilder) Build(owner Owner) (Coordinator, error) {
	source := b.source
	if source == nil {
		access, ok := owner.(ConnectionSourceAccess)
		if !ok {
			return nil, errors.New("plain connection coordinator requires a connection source")
		}

		source = access.ConnectionSource()
	}

	resource := NewConnectionTransaction(source, b.providerDisablesAutoCommit)

	return newLocalCoordinator(b, owner, func() ResourceTransaction { return resource }), nil
}

// IsJta - always false.
func (b PlainConnectionBuilder) IsJta() bool {
	return false
}

// DefaultHandlingMode - connections are acquired lazily and held until the session closes,
// transactions run on that one connection.
func (b PlainConnectionBuilder) DefaultHandlingMode() dbx.HandlingMode {
	return dbx.DelayedAcquisitionAndHold
}

// localCoordinator is the state machine shared by the resource-local and plain-connection
// backends; they differ only in the ResourceTransaction they compose.
type localCoordinator struct {
	builder   Builder
	owner     Owner
	resource  func() ResourceTransaction
	syncs     *SynchronizationRegistry
	observers []observer.TransactionObserver

	slot         DriverSlot
	rollbackOnly bool
	timeout      int
}

func newLocalCoordinator(builder Builder, owner Owner, resource func() ResourceTransaction) *localCoordinator {
	return &localCoordinator{
		builder:  builder,
		owner:    owner,
		resource: resource,
		syncs:    NewSynchronizationRegistry(),
		timeout:  -1,
	}
}

func (c *localCoordinator) TransactionDriver(context.Context) (TransactionDriver, error) {
	return &localDriver{coordinator: c, generation: c.slot.Open()}, nil
}

func (c *localCoordinator) LocalSynchronizations() *SynchronizationRegistry {
	return c.syncs
}

func (c *localCoordinator) ExplicitJoin(ctx context.Context) error {
	logx.GetLogger().LogDebug(ctx, "calling ExplicitJoin on a resource-local transaction coordinator is not needed")
	return nil
}

// IsJoined reports whether a driver is issued and its transaction is active.
func (c *localCoordinator) IsJoined() bool {
	return c.slot.Live() && c.status().IsOneOf(StatusActive, StatusMarkedRollback)
}

func (c *localCoordinator) Pulse(context.Context) error {
	return nil
}

func (c *localCoordinator) IsActive() bool {
	return c.owner.IsActive()
}

func (c *localCoordinator) IsTransactionActive(context.Context) bool {
	return c.IsJoined()
}

func (c *localCoordinator) SetTimeout(seconds int) {
	c.timeout = seconds
}

func (c *localCoordinator) Timeout() int {
	return c.timeout
}

func (c *localCoordinator) AddObserver(o observer.TransactionObserver) {
	if o != nil {
		c.observers = append(c.observers, o)
	}
}

func (c *localCoordinator) Builder() Builder {
	return c.builder
}

func (c *localCoordinator) status() TransactionStatus {
	status := c.resource().Status()
	if c.rollbackOnly && status == StatusActive {
		return StatusMarkedRollback
	}

	return status
}

func (c *localCoordinator) begin(ctx context.Context) error {
	if err := c.resource().Begin(ctx); err != nil {
		return err
	}

	c.rollbackOnly = false

	if c.timeout > 0 {
		c.owner.SetTransactionTimeout(c.timeout)
	}

	c.owner.AfterTransactionBegin(ctx)

	for _, o := range c.observers {
		o.TransactionBegun(ctx)
	}

	return nil
}

func (c *localCoordinator) commit(ctx context.Context) error {
	if c.rollbackOnly {
		logx.GetLogger().LogDebug(ctx, "on commit, transaction was marked for roll-back only, rolling back")

		if err := c.rollback(ctx); err != nil {
			return err
		}

		return errorx.NewTransactionError("transaction was marked for rollback only; cannot commit")
	}

	if err := c.beforeCompletion(ctx); err != nil {
		c.rollbackFailedCommit(ctx)
		return errorx.NewTransactionErrorWrapper(err, "transaction rolled back during before-completion")
	}

	if err := c.resource().Commit(ctx); err != nil {
		c.rollbackFailedCommit(ctx)
		return err
	}

	c.afterCompletion(ctx, true)

	return nil
}

// rollbackFailedCommit undoes what a failed commit left behind and completes the cycle.
func (c *localCoordinator) rollbackFailedCommit(ctx context.Context) {
	c.rollbackOnly = false

	defer c.afterCompletion(ctx, false)

	if err := c.resource().Rollback(ctx); err != nil {
		logx.GetLogger().LogDebug(ctx, "encountered failure rolling back failed commit: "+err.Error())
	}
}

func (c *localCoordinator) rollback(ctx context.Context) error {
	if !c.rollbackOnly && !c.resource().Status().CanRollback() {
		logx.GetLogger().LogDebug(ctx, "rollback requested while no transaction is active, ignoring")
		return nil
	}

	c.rollbackOnly = false

	defer c.afterCompletion(ctx, false)

	return c.resource().Rollback(ctx)
}

func (c *localCoordinator) beforeCompletion(ctx context.Context) error {
	if err := c.owner.BeforeTransactionCompletion(ctx); err != nil {
		return err
	}

	c.syncs.NotifyBeforeCompletion(ctx)

	return nil
}

func (c *localCoordinator) afterCompletion(ctx context.Context, successful bool) {
	status := jta.StatusRolledBack
	if successful {
		status = jta.StatusCommitted
	}

	c.syncs.NotifyAfterCompletion(ctx, status)
	c.owner.AfterTransactionCompletion(ctx, successful, false)

	for _, o := range c.observers {
		o.TransactionCompleted(ctx, successful)
	}

	c.syncs.ClearSynchronizations()
	c.slot.Invalidate()
}

// localDriver - generation checked TransactionDriver of a localCoordinator.
type localDriver struct {
	coordinator *localCoordinator
	generation  uint64
}

func (d *localDriver) Begin(ctx context.Context) error {
	if err := d.coordinator.slot.Check(d.generation); err != nil {
		return err
	}

	return d.coordinator.begin(ctx)
}

func (d *localDriver) Commit(ctx context.Context) error {
	if err := d.coordinator.slot.Check(d.generation); err != nil {
		return err
	}

	return d.coordinator.commit(ctx)
}

func (d *localDriver) Rollback(ctx context.Context) error {
	if err := d.coordinator.slot.Check(d.generation); err != nil {
		return err
	}

	return d.coordinator.rollback(ctx)
}

func (d *localDriver) Status(context.Context) TransactionStatus {
	if d.coordinator.slot.Check(d.generation) != nil {
		return StatusNotActive
	}

	return d.coordinator.status()
}

func (d *localDriver) MarkRollbackOnly(ctx context.Context) {
	if d.coordinator.slot.Check(d.generation) != nil {
		logx.GetLogger().LogDebug(ctx, "ignoring rollback-only request on a completed transaction")
		return
	}

	if d.coordinator.resource().Status() != StatusRolledBack {
		d.coordinator.rollbackOnly = true
	}
}

func (d *localDriver) Generation() uint64 {
	return d.generation
}
