package observer

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/logx"
)

// Logging writes every hook to the package logger at debug level.
type Logging struct{}

func (Logging) ConnectionAcquisitionStart(ctx context.Context) {
	logx.GetLogger().LogDebug(ctx, "obtaining JDBC connection")
}

func (Logging) ConnectionAcquisitionEnd(ctx context.Context, conn dbx.Connection) {
	if conn == nil {
		logx.GetLogger().LogDebug(ctx, "JDBC connection could not be obtained")
		return
	}

	logx.GetLogger().LogDebug(ctx, "obtained JDBC connection")
}

func (Logging) ConnectionReleaseStart(ctx context.Context) {
	logx.GetLogger().LogDebug(ctx, "releasing JDBC connection")
}

func (Logging) ConnectionReleaseEnd(ctx context.Context) {
	logx.GetLogger().LogDebug(ctx, "released JDBC connection")
}

func (Logging) PrepareStatementStart(context.Context) {}

func (Logging) PrepareStatementEnd(context.Context) {}

func (Logging) ExecuteStatementStart(context.Context) {}

func (Logging) ExecuteStatementEnd(context.Context) {}

func (Logging) ExecuteBatchStart(ctx context.Context) {
	logx.GetLogger().LogDebug(ctx, "executing JDBC batch")
}

func (Logging) ExecuteBatchEnd(context.Context) {}

func (Logging) TransactionBegun(ctx context.Context) {
	logx.GetLogger().LogDebug(ctx, "transaction begun")
}

func (Logging) TransactionCompleted(ctx context.Context, successful bool) {
	if successful {
		logx.GetLogger().LogDebug(ctx, "transaction committed")
		return
	}

	logx.GetLogger().LogDebug(ctx, "transaction rolled back")
}
