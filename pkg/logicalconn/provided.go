package logicalconn

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/marcodd23/go-txsession/pkg/registry"
	"github.com/marcodd23/go-txsession/pkg/txcoord"
	"github.com/pkg/errors"
)

// Provided - LogicalConnection over a connection supplied by the caller. The connection is
// never released to a provider: Close and ManualDisconnect hand it back instead.
type Provided struct {
	registry *registry.Registry
	conn     dbx.Connection
	tx       *txcoord.ConnectionTransaction
	closed   bool
}

// NewProvided - Provided constructor.
func NewProvided(conn dbx.Connection, opts Options) (*Provided, error) {
	if conn == nil {
		return nil, errors.New("provided connection cannot be nil")
	}

	lc := &Provided{registry: opts.registry(), conn: conn}
	lc.tx = txcoord.NewConnectionTransaction(lc.PhysicalConnection, opts.ProviderDisablesAutoCommit)

	return lc, nil
}

func (lc *Provided) IsOpen() bool {
	return !lc.closed
}

func (lc *Provided) IsPhysicallyConnected() bool {
	return lc.conn != nil
}

func (lc *Provided) PhysicalConnection(context.Context) (dbx.Connection, error) {
	if lc.closed {
		return nil, errorx.NewResourceClosedError("logical connection")
	}

	if lc.conn == nil {
		return nil, errors.New("user supplied connection was disconnected; reconnect before use")
	}

	return lc.conn, nil
}

func (lc *Provided) ResourceRegistry() *registry.Registry {
	return lc.registry
}

// HandlingMode - user supplied connections are held until close.
func (lc *Provided) HandlingMode() dbx.HandlingMode {
	return dbx.ImmediateAcquisitionAndHold
}

func (lc *Provided) PhysicalTransaction() txcoord.ResourceTransaction {
	return lc.tx
}

func (lc *Provided) AfterStatement(context.Context) {}

func (lc *Provided) AfterTransaction(ctx context.Context) {
	lc.registry.ReleaseAll(ctx)
}

func (lc *Provided) IsUserSuppliedConnection() bool {
	return true
}

func (lc *Provided) ManualDisconnect(ctx context.Context) (dbx.Connection, error) {
	if lc.closed {
		return nil, errorx.NewResourceClosedError("logical connection")
	}

	conn := lc.conn
	lc.conn = nil
	lc.registry.ReleaseAll(ctx)

	return conn, nil
}

func (lc *Provided) ManualReconnect(ctx context.Context, conn dbx.Connection) error {
	if lc.closed {
		return errorx.NewResourceClosedError("logical connection")
	}

	switch {
	case conn == nil:
		return errors.New("cannot reconnect using a nil connection")
	case conn == lc.conn:
		logx.GetLogger().LogDebug(ctx, "reconnecting the same connection that is already connected; should this connection have been disconnected?")
	case lc.conn != nil:
		return errors.New("cannot reconnect to a new user supplied connection because currently connected; must disconnect before reconnecting")
	}

	lc.conn = conn

	return nil
}

// Close releases resources and returns the supplied connection. Closing twice returns nil.
func (lc *Provided) Close(ctx context.Context) (dbx.Connection, error) {
	if lc.closed {
		return nil, nil
	}

	conn := lc.conn
	lc.conn = nil
	lc.closed = true
	lc.registry.Close(ctx)

	return conn, nil
}
