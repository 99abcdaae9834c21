package batch

import (
	"context"
	"fmt"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/marcodd23/go-txsession/pkg/observer"
)

// Batching - Batch accumulating parameter sets in driver level batches. Reaching the batch
// size executes the batch implicitly.
type Batching struct {
	key       Key
	size      int
	owner     Owner
	observers []observer.BatchObserver

	order      []string
	statements map[string]dbx.Statement
	position   int
	rowCounts  map[string]int64
}

// NewBatching - Batching constructor.
func NewBatching(key Key, size int, owner Owner) *Batching {
	return &Batching{
		key:        key,
		size:       size,
		owner:      owner,
		statements: make(map[string]dbx.Statement),
		rowCounts:  make(map[string]int64),
	}
}

func (b *Batching) Key() Key {
	return b.key
}

func (b *Batching) AddObserver(o observer.BatchObserver) {
	if o != nil {
		b.observers = append(b.observers, o)
	}
}

func (b *Batching) GetStatement(sql string) dbx.Statement {
	return b.statements[sql]
}

func (b *Batching) Contains(stmt dbx.Statement) bool {
	for _, batched := range b.statements {
		if batched == stmt {
			return true
		}
	}

	return false
}

// Pending - number of parameter sets added since the last execution.
func (b *Batching) Pending() int {
	return b.position
}

func (b *Batching) AddBatch(ctx context.Context, sql string, stmt dbx.Statement) error {
	current, ok := b.statements[sql]
	if !ok {
		b.statements[sql] = stmt
		b.order = append(b.order, sql)
	} else if current != stmt {
		return errorx.NewGeneralError("a different statement is already batched for [%s]", sql)
	}

	if err := stmt.AddBatch(); err != nil {
		b.Release(ctx)
		return errorx.TranslateSQL(err, "could not perform addBatch", sql)
	}

	b.position++
	if b.position == b.size {
		notifyImplicit(ctx, b.observers)
		return b.executeAndRelease(ctx)
	}

	return nil
}

func (b *Batching) Execute(ctx context.Context) error {
	notifyExplicit(ctx, b.observers)

	if len(b.statements) == 0 {
		logx.GetLogger().LogDebug(ctx, "no batched statements to execute")
		return nil
	}

	return b.executeAndRelease(ctx)
}

func (b *Batching) executeAndRelease(ctx context.Context) error {
	defer b.Release(ctx)

	logx.GetLogger().LogDebug(ctx, fmt.Sprintf("executing batch size: %d", b.position))

	clear(b.rowCounts)

	for _, sql := range b.order {
		stmt := b.statements[sql]

		rowCounts, err := b.executeBatch(ctx, stmt)
		if err != nil {
			logx.GetLogger().LogError(ctx, "unable to execute batch", err)
			return errorx.TranslateSQL(err, "could not execute batch", sql)
		}

		if err := b.checkRowCounts(ctx, sql, rowCounts); err != nil {
			return err
		}
	}

	return nil
}

func (b *Batching) executeBatch(ctx context.Context, stmt dbx.Statement) ([]int64, error) {
	obs := b.owner.Observer()

	obs.ExecuteBatchStart(ctx)
	defer obs.ExecuteBatchEnd(ctx)

	return stmt.ExecuteBatch(ctx)
}

// checkRowCounts verifies every row count against the key's expectation. A count array whose
// length differs from the batch position is only logged, drivers disagree on what they report.
func (b *Batching) checkRowCounts(ctx context.Context, sql string, rowCounts []int64) error {
	if len(rowCounts) != b.position {
		logx.GetLogger().LogWarning(ctx, fmt.Sprintf("JDBC driver did not return the expected number of row counts (%d) - returned %d",
			b.position, len(rowCounts)))
	}

	for i, rowCount := range rowCounts {
		if rowCount > 0 {
			b.rowCounts[sql] += rowCount
		}

		if err := b.key.Expectation().VerifyOutcome(ctx, rowCount, i, sql); err != nil {
			return err
		}
	}

	return nil
}

// Release clears the driver batch of every statement, closes the statements and forgets them.
func (b *Batching) Release(ctx context.Context) {
	for _, sql := range b.order {
		stmt := b.statements[sql]

		if err := stmt.ClearBatch(); err != nil {
			logx.GetLogger().LogDebug(ctx, fmt.Sprintf("unable to clear batch [%s]", err))
		}

		b.owner.ReleaseStatement(ctx, stmt)
	}

	b.order = nil
	clear(b.statements)
	b.position = 0

	b.owner.AfterStatementExecution(ctx)
}

func (b *Batching) RowCount(sql string) int64 {
	return b.rowCounts[sql]
}
