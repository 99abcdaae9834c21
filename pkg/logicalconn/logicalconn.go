// Package logicalconn holds the application side view of a database connection: a logical
// connection that may or may not hold a physical connection at a given moment, its resource
// registry, and the physical transaction facet used for resource-local transactions.
package logicalconn

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/registry"
	"github.com/marcodd23/go-txsession/pkg/txcoord"
)

// LogicalConnection - application visible connection.
// Once closed every operation fails with errorx.ErrResourceClosed.
type LogicalConnection interface {
	IsOpen() bool
	// IsPhysicallyConnected reports whether a physical connection is currently held.
	IsPhysicallyConnected() bool
	// PhysicalConnection returns the physical connection, acquiring it when needed.
	PhysicalConnection(ctx context.Context) (dbx.Connection, error)
	ResourceRegistry() *registry.Registry
	HandlingMode() dbx.HandlingMode
	// PhysicalTransaction is the resource-local transaction over the physical connection.
	PhysicalTransaction() txcoord.ResourceTransaction
	// AfterStatement gives the connection a chance to release after a statement.
	AfterStatement(ctx context.Context)
	// AfterTransaction releases resources and, unless held until close, the physical connection.
	AfterTransaction(ctx context.Context)
	IsUserSuppliedConnection() bool
	// ManualDisconnect releases resources and hands back the user supplied connection.
	ManualDisconnect(ctx context.Context) (dbx.Connection, error)
	// ManualReconnect installs a user supplied connection after ManualDisconnect.
	ManualReconnect(ctx context.Context, conn dbx.Connection) error
	// Close releases everything. It returns the user supplied connection, if any.
	Close(ctx context.Context) (dbx.Connection, error)
}

var (
	_ LogicalConnection = (*Managed)(nil)
	_ LogicalConnection = (*Provided)(nil)
)
