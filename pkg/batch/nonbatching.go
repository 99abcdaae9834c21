package batch

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/observer"
)

// NonBatching - Batch executing and closing every statement as soon as it is added.
type NonBatching struct {
	key       Key
	owner     Owner
	observers []observer.BatchObserver
	rowCounts map[string]int64
}

// NewNonBatching - NonBatching constructor.
func NewNonBatching(key Key, owner Owner) *NonBatching {
	return &NonBatching{key: key, owner: owner, rowCounts: make(map[string]int64)}
}

func (b *NonBatching) Key() Key {
	return b.key
}

func (b *NonBatching) AddObserver(o observer.BatchObserver) {
	if o != nil {
		b.observers = append(b.observers, o)
	}
}

func (b *NonBatching) GetStatement(string) dbx.Statement {
	return nil
}

func (b *NonBatching) Contains(dbx.Statement) bool {
	return false
}

func (b *NonBatching) AddBatch(ctx context.Context, sql string, stmt dbx.Statement) error {
	notifyImplicit(ctx, b.observers)

	defer func() {
		b.owner.ReleaseStatement(ctx, stmt)
		b.owner.AfterStatementExecution(ctx)
	}()

	rowCount, err := b.owner.ExecuteUpdate(ctx, stmt)
	if err != nil {
		return err
	}

	b.rowCounts[sql] = rowCount

	return b.key.Expectation().VerifyOutcome(ctx, rowCount, 0, sql)
}

func (b *NonBatching) Execute(ctx context.Context) error {
	notifyExplicit(ctx, b.observers)
	return nil
}

func (b *NonBatching) Release(context.Context) {}

func (b *NonBatching) RowCount(sql string) int64 {
	return b.rowCounts[sql]
}
