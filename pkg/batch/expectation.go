package batch

import (
	"context"
	"fmt"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/logx"
)

// Expectation verifies the row count a statement reported.
type Expectation interface {
	// VerifyOutcome checks rowCount, the count reported for the batchPosition-th parameter set
	// of sql. It returns a *errorx.BatchOutcomeError when the outcome is not acceptable.
	VerifyOutcome(ctx context.Context, rowCount int64, batchPosition int, sql string) error
	// CanBeBatched reports whether the outcome can still be verified when the statement runs
	// as part of a driver level batch.
	CanBeBatched() bool
}

type noneExpectation struct{}

func (noneExpectation) VerifyOutcome(context.Context, int64, int, string) error {
	return nil
}

func (noneExpectation) CanBeBatched() bool {
	return true
}

// ExpectNone accepts every outcome.
var ExpectNone Expectation = noneExpectation{}

type rowCountExpectation struct {
	expected  int64
	batchable bool
}

// ExpectRowCount expects every parameter set to affect exactly expected rows.
func ExpectRowCount(expected int64) Expectation {
	return rowCountExpectation{expected: expected, batchable: true}
}

// ExpectRowCountUnbatched is ExpectRowCount for statements whose outcome must be checked
// one execution at a time. Factories built with forego batching never batch them.
func ExpectRowCountUnbatched(expected int64) Expectation {
	return rowCountExpectation{expected: expected}
}

// ExpectSingleRow - ExpectRowCount(1).
var ExpectSingleRow = ExpectRowCount(1)

func (e rowCountExpectation) VerifyOutcome(ctx context.Context, rowCount int64, batchPosition int, sql string) error {
	switch rowCount {
	case dbx.SuccessNoInfo:
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("success of batch update unknown: %d", batchPosition))
		return nil
	case dbx.ExecuteFailed:
		return errorx.NewBatchOutcomeError(sql, batchPosition, e.expected, rowCount)
	case e.expected:
		return nil
	default:
		return errorx.NewBatchOutcomeError(sql, batchPosition, e.expected, rowCount)
	}
}

func (e rowCountExpectation) CanBeBatched() bool {
	return e.batchable
}
