// Package jtatx is the JTA backend of txcoord: sessions take part in container managed
// transactions by registering a completion synchronization with the platform.
package jtatx

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/jta"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/marcodd23/go-txsession/pkg/observer"
	"github.com/marcodd23/go-txsession/pkg/txcoord"
	"github.com/pkg/errors"
)

// Config - behaviour of JTA coordinators.
//
// Fields:
//   - PreferUserTransaction: demarcate through UserTransaction first, TransactionManager second.
//   - AutoJoin: join an active container transaction on every Pulse.
//   - TrackCaller: defer rollbacks reported by a caller other than the one that joined.
type Config struct {
	PreferUserTransaction bool
	AutoJoin              bool
	TrackCaller           bool
}

// Builder builds JTA coordinators over a platform.
type Builder struct {
	platform jta.Platform
	config   Config
}

// NewBuilder - Builder constructor.
func NewBuilder(platform jta.Platform, config Config) Builder {
	return Builder{platform: platform, config: config}
}

// Build creates the coordinator and pulses it once, so an already active container
// transaction is joined right away when AutoJoin is set.
func (b Builder) Build(owner txcoord.Owner) (txcoord.Coordinator, error) {
	return b.BuildContext(context.Background(), owner)
}

// BuildContext is Build with the context (and caller identity) of the first pulse.
func (b Builder) BuildContext(ctx context.Context, owner txcoord.Owner) (txcoord.Coordinator, error) {
	if b.platform == nil {
		return nil, errors.New("JTA coordinator requires a platform")
	}

	c := &Coordinator{
		builder:  b,
		owner:    owner,
		platform: b.platform,
		config:   b.config,
		syncs:    txcoord.NewSynchronizationRegistry(),
		timeout:  -1,
	}

	nonTracking := nonTrackingCallbacks{target: c}
	if b.config.TrackCaller {
		c.callbacks = &trackingCallbacks{nonTrackingCallbacks: nonTracking}
	} else {
		c.callbacks = &nonTracking
	}

	if err := c.Pulse(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// IsJta - always true: sessions built here take part in container transactions.
func (b Builder) IsJta() bool {
	return true
}

// DefaultHandlingMode - connections are acquired lazily and released after every statement,
// the container owns the transaction that spans them.
func (b Builder) DefaultHandlingMode() dbx.HandlingMode {
	return dbx.DelayedAcquisitionReleaseAfterStatement
}

// Coordinator - JTA transaction coordinator.
type Coordinator struct {
	builder   Builder
	owner     txcoord.Owner
	platform  jta.Platform
	config    Config
	syncs     *txcoord.SynchronizationRegistry
	observers []observer.TransactionObserver
	callbacks callbackCoordinator

	slot    txcoord.DriverSlot
	adapter adapter
	joined  bool
	timeout int
}

// TransactionDriver returns the driver of the current cycle. Building a driver fails with
// errorx.ErrPlatformInaccessible when neither demarcation API can be obtained.
func (c *Coordinator) TransactionDriver(ctx context.Context) (txcoord.TransactionDriver, error) {
	if !c.slot.Live() || c.adapter == nil {
		a, err := makeAdapter(ctx, c.platform, c.config.PreferUserTransaction)
		if err != nil {
			return nil, err
		}

		c.adapter = a
	}

	return &driver{coordinator: c, generation: c.slot.Open()}, nil
}

// LocalSynchronizations returns the registry notified around container completion.
func (c *Coordinator) LocalSynchronizations() *txcoord.SynchronizationRegistry {
	return c.syncs
}

// ExplicitJoin joins the active container transaction; joining twice is a no-op.
func (c *Coordinator) ExplicitJoin(ctx context.Context) error {
	if c.joined {
		logx.GetLogger().LogDebug(ctx, "JTA transaction was already joined (synchronization already registered)")
		return nil
	}

	d, err := c.TransactionDriver(ctx)
	if err != nil {
		return err
	}

	if d.Status(ctx) != txcoord.StatusActive {
		return errors.WithStack(errorx.ErrTransactionRequired)
	}

	return c.join(ctx)
}

// IsJoined reports whether a synchronization is registered with the current container transaction.
func (c *Coordinator) IsJoined() bool {
	return c.joined
}

// Pulse processes a rollback deferred for this caller, then joins the active container
// transaction when AutoJoin is set and the platform allows registration.
func (c *Coordinator) Pulse(ctx context.Context) error {
	if err := c.callbacks.processAnyDelayedAfterCompletion(ctx); err != nil {
		return err
	}

	if !c.config.AutoJoin || c.joined {
		return nil
	}

	if !c.platform.CanRegisterSynchronization(ctx) {
		logx.GetLogger().LogDebug(ctx, "JTA platform says we cannot currently register synchronization; skipping join")
		return nil
	}

	return c.join(ctx)
}

func (c *Coordinator) join(ctx context.Context) error {
	if c.joined {
		return nil
	}

	if err := c.platform.RegisterSynchronization(ctx, registeredSynchronization{callbacks: c.callbacks}); err != nil {
		return errorx.NewTransactionErrorWrapper(err, "unable to register synchronization with JTA platform")
	}

	c.callbacks.synchronizationRegistered(ctx)
	c.joined = true
	c.owner.StartTransactionBoundary(ctx)

	return nil
}

// IsActive reports whether the owning session is still open.
func (c *Coordinator) IsActive() bool {
	return c.owner.IsActive()
}

// IsTransactionActive reports whether the coordinator is joined to a container transaction
// that is still active.
//
// Returns:
//   - false when not joined, or when the platform status cannot be read.
func (c *Coordinator) IsTransactionActive(ctx context.Context) bool {
	if !c.joined {
		return false
	}

	status, err := c.platform.CurrentStatus(ctx)

	return err == nil && status.IsActive(false)
}

// SetTimeout sets the timeout applied to transactions begun through this coordinator.
//
// Arguments:
//   - seconds: the timeout, 0 or less meaning the platform default.
func (c *Coordinator) SetTimeout(seconds int) {
	c.timeout = seconds
}

// Timeout returns the timeout set with SetTimeout, in seconds.
func (c *Coordinator) Timeout() int {
	return c.timeout
}

// AddObserver registers o for begin and completion events. A nil observer is ignored.
func (c *Coordinator) AddObserver(o observer.TransactionObserver) {
	if o != nil {
		c.observers = append(c.observers, o)
	}
}

// Builder returns the builder that created the coordinator.
func (c *Coordinator) Builder() txcoord.Builder {
	return c.builder
}

// Synchronizations - number of synchronizations this coordinator has registered with the
// current container transaction (0 or 1).
func (c *Coordinator) Synchronizations() int {
	if c.joined {
		return 1
	}

	return 0
}

func (c *Coordinator) begin(ctx context.Context) error {
	if err := c.adapter.SetTimeout(c.timeout); err != nil {
		return err
	}

	if err := c.adapter.Begin(ctx); err != nil {
		return err
	}

	if err := c.join(ctx); err != nil {
		return err
	}

	if c.timeout > 0 {
		c.owner.SetTransactionTimeout(c.timeout)
	}

	c.owner.AfterTransactionBegin(ctx)

	for _, o := range c.observers {
		o.TransactionBegun(ctx)
	}

	return nil
}

func (c *Coordinator) isActive() bool {
	return c.owner.IsActive()
}

// beforeCompletion runs the owner hook then the local synchronizations. A failing owner hook
// marks the transaction for rollback.
func (c *Coordinator) beforeCompletion(ctx context.Context) error {
	defer c.syncs.NotifyBeforeCompletion(ctx)

	if err := c.owner.BeforeTransactionCompletion(ctx); err != nil {
		if c.adapter != nil {
			if markErr := c.adapter.MarkRollbackOnly(ctx); markErr != nil {
				logx.GetLogger().LogWarning(ctx, "unable to mark transaction for rollback", markErr)
			}
		}

		return err
	}

	return nil
}

// afterCompletion notifies the local synchronizations, then the owner, then resets the
// joined state and invalidates the current driver.
func (c *Coordinator) afterCompletion(ctx context.Context, successful, delayed bool) {
	defer func() {
		c.joined = false
		c.adapter = nil
		c.slot.Invalidate()
	}()

	if !c.owner.IsActive() {
		return
	}

	status := jta.StatusRolledBack
	if successful {
		status = jta.StatusCommitted
	}

	c.syncs.NotifyAfterCompletion(ctx, status)
	c.owner.AfterTransactionCompletion(ctx, successful, delayed)

	for _, o := range c.observers {
		o.TransactionCompleted(ctx, successful)
	}

	c.syncs.ClearSynchronizations()
}

// driver - generation checked TransactionDriver of a Coordinator. Completion callbacks are
// left to the registered synchronization.
type driver struct {
	coordinator *Coordinator
	generation  uint64
}

func (d *driver) check() error {
	return d.coordinator.slot.Check(d.generation)
}

func (d *driver) Begin(ctx context.Context) error {
	if err := d.check(); err != nil {
		return err
	}

	return d.coordinator.begin(ctx)
}

func (d *driver) Commit(ctx context.Context) error {
	if err := d.check(); err != nil {
		return err
	}

	return d.coordinator.adapter.Commit(ctx)
}

func (d *driver) Rollback(ctx context.Context) error {
	if err := d.check(); err != nil {
		return err
	}

	return d.coordinator.adapter.Rollback(ctx)
}

func (d *driver) Status(ctx context.Context) txcoord.TransactionStatus {
	if d.check() != nil {
		return txcoord.StatusNotActive
	}

	return d.coordinator.adapter.Status(ctx)
}

func (d *driver) MarkRollbackOnly(ctx context.Context) {
	if d.check() != nil {
		return
	}

	if d.Status(ctx) == txcoord.StatusRolledBack {
		return
	}

	if err := d.coordinator.adapter.MarkRollbackOnly(ctx); err != nil {
		logx.GetLogger().LogWarning(ctx, "unable to mark transaction for rollback", err)
	}
}

func (d *driver) Generation() uint64 {
	return d.generation
}
