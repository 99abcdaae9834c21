// Package batch groups parameterized statements under a batch key and executes them together,
// verifying the row count of every execution against the key's expectation.
package batch

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/observer"
)

// Key identifies a logical batch. Two keys denote the same batch when their comparisons match.
type Key interface {
	Comparison() string
	Expectation() Expectation
}

// BasicKey - Key made of a comparison string and an expectation.
type BasicKey struct {
	comparison  string
	expectation Expectation
}

// NewKey - BasicKey constructor. A nil expectation means ExpectNone.
func NewKey(comparison string, expectation Expectation) BasicKey {
	if expectation == nil {
		expectation = ExpectNone
	}

	return BasicKey{comparison: comparison, expectation: expectation}
}

func (k BasicKey) Comparison() string {
	return k.comparison
}

func (k BasicKey) Expectation() Expectation {
	return k.expectation
}

func (k BasicKey) String() string {
	return "BatchKey(" + k.comparison + ")"
}

// SameKey reports whether a and b denote the same batch.
func SameKey(a, b Key) bool {
	return a != nil && b != nil && a.Comparison() == b.Comparison()
}

// Owner - the session side services a batch relies on.
type Owner interface {
	Observer() observer.Observer
	// ExecuteUpdate executes stmt, firing execution hooks and translating failures.
	ExecuteUpdate(ctx context.Context, stmt dbx.Statement) (int64, error)
	// ReleaseStatement closes stmt through the resource registry.
	ReleaseStatement(ctx context.Context, stmt dbx.Statement)
	AfterStatementExecution(ctx context.Context)
}

// Batch - statements accumulated under one key.
type Batch interface {
	Key() Key
	AddObserver(o observer.BatchObserver)
	// GetStatement returns the statement already batched for sql, or nil.
	GetStatement(sql string) dbx.Statement
	// Contains reports whether stmt is waiting in the batch.
	Contains(stmt dbx.Statement) bool
	// AddBatch adds the parameters currently bound to stmt to the batch of sql.
	AddBatch(ctx context.Context, sql string, stmt dbx.Statement) error
	// Execute runs whatever is pending.
	Execute(ctx context.Context) error
	// Release closes and forgets every batched statement without executing it.
	Release(ctx context.Context)
	// RowCount is the total row count reported for sql by the last execution.
	RowCount(sql string) int64
}

// Factory builds batches for a configured batch size.
type Factory struct {
	size           int
	foregoBatching bool
}

// NewFactory - Factory constructor. A size below 2 disables batching. With foregoBatching,
// keys whose expectation cannot be batched get a non-batching batch.
func NewFactory(size int, foregoBatching bool) Factory {
	return Factory{size: size, foregoBatching: foregoBatching}
}

// Size - configured batch size.
func (f Factory) Size() int {
	return f.size
}

// Build returns the batch for key.
func (f Factory) Build(key Key, owner Owner) Batch {
	if f.size > 1 && !(f.foregoBatching && !key.Expectation().CanBeBatched()) {
		return NewBatching(key, f.size, owner)
	}

	return NewNonBatching(key, owner)
}

func notifyExplicit(ctx context.Context, observers []observer.BatchObserver) {
	for _, o := range observers {
		o.BatchExplicitlyExecuted(ctx)
	}
}

func notifyImplicit(ctx context.Context, observers []observer.BatchObserver) {
	for _, o := range observers {
		o.BatchImplicitlyExecuted(ctx)
	}
}
