// Package session is the JDBC session façade: it prepares and executes statements over a
// logical connection, tracks them in the resource registry, drives batches and coordinates
// the session's transaction through a txcoord.Coordinator.
//
// A Session is a single unit of work and is not safe for concurrent use.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/marcodd23/go-txsession/pkg/batch"
	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/logicalconn"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/marcodd23/go-txsession/pkg/observer"
	"github.com/marcodd23/go-txsession/pkg/registry"
	"github.com/marcodd23/go-txsession/pkg/txcoord"
)

// Session - JDBC session. Sessions are opened by a Factory.
type Session struct {
	id          string
	options     Options
	observer    observer.Chain
	batches     batch.Factory
	sqlLogger   logx.SQLLogger
	logicalConn logicalconn.LogicalConnection
	coordinator txcoord.Coordinator
	isolation   *txcoord.IsolationDelegate

	currentBatch    batch.Batch
	transaction     *Transaction
	timeoutDeadline time.Time
	closed          bool
}

var (
	_ txcoord.Owner                     = (*Session)(nil)
	_ txcoord.ResourceTransactionAccess = (*Session)(nil)
	_ batch.Owner                       = (*Session)(nil)
)

// ID - the session identifier carried by the session's log lines.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) logContext(ctx context.Context) context.Context {
	return logx.ContextWithSessionID(ctx, s.id)
}

// IsOpen reports whether the session has not been closed.
func (s *Session) IsOpen() bool {
	return !s.closed
}

func (s *Session) checkOpen() error {
	if s.closed {
		return errorx.NewResourceClosedError("session")
	}

	return nil
}

// LogicalConnection - the session's logical connection.
func (s *Session) LogicalConnection() logicalconn.LogicalConnection {
	return s.logicalConn
}

// ResourceRegistry - statements and result sets currently held by the session.
func (s *Session) ResourceRegistry() *registry.Registry {
	return s.logicalConn.ResourceRegistry()
}

// Coordinator - the session's transaction coordinator.
func (s *Session) Coordinator() txcoord.Coordinator {
	return s.coordinator
}

// Observer - the observer chain of the session.
func (s *Session) Observer() observer.Observer {
	return s.observer
}

// =====================================
// txcoord.Owner
// =====================================

func (s *Session) IsActive() bool {
	return !s.closed
}

func (s *Session) StartTransactionBoundary(ctx context.Context) {
	logx.GetLogger().LogDebug(s.logContext(ctx), "session joined a transaction")
}

func (s *Session) AfterTransactionBegin(ctx context.Context) {
	logx.GetLogger().LogDebug(s.logContext(ctx), "transaction begun")
}

// BeforeTransactionCompletion executes the pending batch, a failure dooms the transaction.
func (s *Session) BeforeTransactionCompletion(ctx context.Context) error {
	return s.ExecuteBatch(ctx)
}

// AfterTransactionCompletion discards the pending batch of a failed transaction, resets the
// transaction timeout and lets the logical connection release according to its handling mode.
func (s *Session) AfterTransactionCompletion(ctx context.Context, successful, delayed bool) {
	ctx = s.logContext(ctx)

	logx.GetLogger().LogDebug(ctx, fmt.Sprintf("transaction completed, successful: %t, delayed: %t", successful, delayed))

	if !successful {
		s.AbortBatch(ctx)
	}

	s.timeoutDeadline = time.Time{}

	if !s.closed {
		s.logicalConn.AfterTransaction(ctx)
	}
}

func (s *Session) SetTransactionTimeout(seconds int) {
	s.timeoutDeadline = s.options.now().Add(time.Duration(seconds) * time.Second)
}

func (s *Session) ResourceLocalTransaction() txcoord.ResourceTransaction {
	return s.logicalConn.PhysicalTransaction()
}

// ConnectionSource hands the plain-connection coordinator the session's physical connection.
func (s *Session) ConnectionSource() txcoord.ConnectionSource {
	return func(ctx context.Context) (dbx.Connection, error) {
		return s.logicalConn.PhysicalConnection(ctx)
	}
}

// remainingTimeout returns the whole seconds left before the transaction times out, -1 when
// no timeout applies.
func (s *Session) remainingTimeout() (int, error) {
	if s.timeoutDeadline.IsZero() {
		return -1, nil
	}

	remaining := int(s.timeoutDeadline.Sub(s.options.now()) / time.Second)
	if remaining <= 0 {
		return 0, errorx.NewTransactionTimeoutError()
	}

	return remaining, nil
}

// =====================================
// Transactions
// =====================================

// Transaction returns the session's transaction handle.
func (s *Session) Transaction() *Transaction {
	if s.transaction == nil {
		s.transaction = &Transaction{session: s}
	}

	return s.transaction
}

// BeginTransaction begins and returns the session's transaction.
func (s *Session) BeginTransaction(ctx context.Context) (*Transaction, error) {
	tx := s.Transaction()
	if err := tx.Begin(ctx); err != nil {
		return nil, err
	}

	return tx, nil
}

// ExplicitJoin joins the active container transaction. Resource-local sessions ignore it.
func (s *Session) ExplicitJoin(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.coordinator.ExplicitJoin(s.logContext(ctx))
}

// =====================================
// Batches
// =====================================

// Batch returns the batch for key. When another batch is open it is executed and released first.
func (s *Session) Batch(ctx context.Context, key batch.Key) (batch.Batch, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if s.currentBatch != nil {
		if batch.SameKey(s.currentBatch.Key(), key) {
			return s.currentBatch, nil
		}

		previous := s.currentBatch
		s.currentBatch = nil

		err := previous.Execute(ctx)
		previous.Release(ctx)

		if err != nil {
			return nil, err
		}
	}

	s.currentBatch = s.batches.Build(key, s)
	s.currentBatch.AddObserver(s.observer)

	return s.currentBatch, nil
}

// ExecuteBatch executes the open batch, if any.
func (s *Session) ExecuteBatch(ctx context.Context) error {
	if s.currentBatch == nil {
		return nil
	}

	ctx = s.logContext(ctx)

	err := s.currentBatch.Execute(ctx)
	s.currentBatch.Release(ctx)

	return err
}

// AbortBatch releases the open batch without executing it.
func (s *Session) AbortBatch(ctx context.Context) {
	if s.currentBatch != nil {
		s.currentBatch.Release(s.logContext(ctx))
	}
}

func (s *Session) heldByCurrentBatch(stmt dbx.Statement) bool {
	return s.currentBatch != nil && s.currentBatch.Contains(stmt)
}

// =====================================
// Resources
// =====================================

// ReleaseStatement closes stmt and its result sets.
func (s *Session) ReleaseStatement(ctx context.Context, stmt dbx.Statement) {
	s.ResourceRegistry().Release(ctx, stmt)
}

// ReleaseResultSet closes rs. Its statement stays open for another execution.
func (s *Session) ReleaseResultSet(ctx context.Context, rs dbx.ResultSet, stmt dbx.Statement) {
	s.ResourceRegistry().ReleaseResultSet(ctx, rs, stmt)
}

// AfterStatementExecution lets the logical connection release its physical connection when the
// handling mode asks for release after every statement.
func (s *Session) AfterStatementExecution(ctx context.Context) {
	if s.closed {
		return
	}

	s.logicalConn.AfterStatement(ctx)
}

// CancelLastQuery cancels the most recently prepared query still tracked by the session.
func (s *Session) CancelLastQuery(ctx context.Context) error {
	return s.ResourceRegistry().CancelLastQuery(s.logContext(ctx))
}

// DoIsolatedWork runs work on a connection of its own, outside the session's transaction.
func (s *Session) DoIsolatedWork(ctx context.Context, work txcoord.IsolatedWork, transacted bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if s.isolation == nil {
		return errorx.NewGeneralError("isolated work requires a session opened from a connection provider")
	}

	return s.isolation.DelegateWork(s.logContext(ctx), work, transacted)
}

// Close releases the pending batch and every tracked resource, then closes the logical
// connection. It returns the connection the session was opened with, if any. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) (dbx.Connection, error) {
	if s.closed {
		return nil, nil
	}

	ctx = s.logContext(ctx)

	logx.GetLogger().LogDebug(ctx, "closing JDBC session")

	if s.currentBatch != nil {
		logx.GetLogger().LogDebug(ctx, "closing un-released batch")
		s.currentBatch.Release(ctx)
		s.currentBatch = nil
	}

	s.ResourceRegistry().ReleaseAll(ctx)
	s.closed = true

	return s.logicalConn.Close(ctx)
}
