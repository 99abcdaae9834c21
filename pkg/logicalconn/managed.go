package logicalconn

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/marcodd23/go-txsession/pkg/observer"
	"github.com/marcodd23/go-txsession/pkg/registry"
	"github.com/marcodd23/go-txsession/pkg/txcoord"
	"github.com/pkg/errors"
)

// Options - collaborators of a logical connection.
//
// Fields:
//   - Observer: receives connection acquisition/release hooks. Optional.
//   - Registry: resource registry to use; a new one is created when nil.
//   - ProviderDisablesAutoCommit: connections from the provider are already in manual commit mode.
type Options struct {
	Observer                   observer.Observer
	Registry                   *registry.Registry
	ProviderDisablesAutoCommit bool
}

func (o Options) observer() observer.Observer {
	if o.Observer == nil {
		return observer.Base{}
	}

	return o.Observer
}

func (o Options) registry() *registry.Registry {
	if o.Registry == nil {
		return registry.NewRegistry()
	}

	return o.Registry
}

// Managed - LogicalConnection obtaining its physical connections from a dbx.ConnectionProvider
// and releasing them according to its handling mode.
type Managed struct {
	provider dbx.ConnectionProvider
	mode     dbx.HandlingMode
	observer observer.Observer
	registry *registry.Registry

	conn   dbx.Connection
	tx     *txcoord.ConnectionTransaction
	closed bool
}

// NewManaged - Managed constructor. With immediate acquisition the physical connection is
// obtained before returning.
func NewManaged(ctx context.Context, provider dbx.ConnectionProvider, mode dbx.HandlingMode, opts Options) (*Managed, error) {
	if provider == nil {
		return nil, errors.New("managed logical connection requires a connection provider")
	}

	lc := &Managed{
		provider: provider,
		mode:     mode,
		observer: opts.observer(),
		registry: opts.registry(),
	}
	lc.tx = txcoord.NewConnectionTransaction(lc.connectionForTransaction, opts.ProviderDisablesAutoCommit)

	if mode.Acquisition == dbx.AcquireImmediately {
		if _, err := lc.acquireConnectionIfNeeded(ctx); err != nil {
			return nil, err
		}
	}

	return lc, nil
}

func (lc *Managed) IsOpen() bool {
	return !lc.closed
}

func (lc *Managed) IsPhysicallyConnected() bool {
	return lc.conn != nil
}

func (lc *Managed) PhysicalConnection(ctx context.Context) (dbx.Connection, error) {
	if lc.closed {
		return nil, errorx.NewResourceClosedError("logical connection")
	}

	return lc.acquireConnectionIfNeeded(ctx)
}

func (lc *Managed) ResourceRegistry() *registry.Registry {
	return lc.registry
}

func (lc *Managed) HandlingMode() dbx.HandlingMode {
	return lc.mode
}

func (lc *Managed) PhysicalTransaction() txcoord.ResourceTransaction {
	return lc.tx
}

func (lc *Managed) connectionForTransaction(ctx context.Context) (dbx.Connection, error) {
	return lc.PhysicalConnection(ctx)
}

func (lc *Managed) acquireConnectionIfNeeded(ctx context.Context) (conn dbx.Connection, err error) {
	if lc.conn != nil {
		return lc.conn, nil
	}

	lc.observer.ConnectionAcquisitionStart(ctx)
	defer func() {
		lc.observer.ConnectionAcquisitionEnd(ctx, conn)
	}()

	conn, err = lc.provider.ObtainConnection(ctx)
	if err != nil {
		return nil, errorx.TranslateSQL(err, "unable to acquire JDBC connection", "")
	}

	lc.conn = conn

	return conn, nil
}

// AfterStatement releases the physical connection in after-statement mode, unless resources
// are still registered or a physical transaction is running on it.
func (lc *Managed) AfterStatement(ctx context.Context) {
	if lc.mode.Release != dbx.ReleaseAfterStatement {
		return
	}

	switch {
	case lc.registry.HasRegisteredResources():
		logx.GetLogger().LogDebug(ctx, "skipping aggressive release of JDBC connection after-statement due to held resources")
	case lc.tx.Status() == txcoord.StatusActive:
		logx.GetLogger().LogDebug(ctx, "skipping aggressive release of JDBC connection after-statement due to active transaction")
	default:
		logx.GetLogger().LogDebug(ctx, "initiating JDBC connection release from afterStatement")
		lc.releaseBestEffort(ctx)
	}
}

// AfterTransaction releases resources; every mode but on-close also releases the connection,
// covering after-statement releases that were skipped because of held resources.
func (lc *Managed) AfterTransaction(ctx context.Context) {
	lc.registry.ReleaseAll(ctx)

	if lc.mode.Release != dbx.ReleaseOnClose {
		logx.GetLogger().LogDebug(ctx, "initiating JDBC connection release from afterTransaction")
		lc.releaseBestEffort(ctx)
	}
}

func (lc *Managed) releaseBestEffort(ctx context.Context) {
	if err := lc.releaseConnection(ctx); err != nil {
		logx.GetLogger().LogWarning(ctx, "unable to release JDBC connection", err)
	}
}

// releaseConnection hands the physical connection back to the provider. The field is cleared
// first so that releasing resources cannot recurse into another release.
func (lc *Managed) releaseConnection(ctx context.Context) error {
	conn := lc.conn
	if conn == nil {
		return nil
	}

	lc.conn = nil
	lc.registry.ReleaseAll(ctx)

	lc.observer.ConnectionReleaseStart(ctx)
	defer lc.observer.ConnectionReleaseEnd(ctx)

	if err := lc.provider.ReleaseConnection(ctx, conn); err != nil {
		return errorx.TranslateSQL(err, "unable to release JDBC connection", "")
	}

	return nil
}

func (lc *Managed) IsUserSuppliedConnection() bool {
	return false
}

func (lc *Managed) ManualDisconnect(context.Context) (dbx.Connection, error) {
	return nil, errors.New("cannot manually disconnect unless connection was originally supplied by user")
}

func (lc *Managed) ManualReconnect(context.Context, dbx.Connection) error {
	return errors.New("cannot manually reconnect unless connection was originally supplied by user")
}

// Close releases the physical connection. Closing twice is a no-op.
func (lc *Managed) Close(ctx context.Context) (dbx.Connection, error) {
	if lc.closed {
		return nil, nil
	}

	logx.GetLogger().LogDebug(ctx, "closing logical connection")

	defer func() {
		lc.closed = true
		lc.registry.Close(ctx)
	}()

	return nil, lc.releaseConnection(ctx)
}
