package observer

import (
	"context"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/marcodd23/go-txsession/pkg/dbx"
)

// StatisticsSnapshot - point in time copy of the counters of a Statistics observer.
type StatisticsSnapshot struct {
	ConnectionsObtained    int64 `json:"connectionsObtained"`
	ConnectionsReleased    int64 `json:"connectionsReleased"`
	AcquisitionFailures    int64 `json:"acquisitionFailures"`
	StatementsPrepared     int64 `json:"statementsPrepared"`
	StatementsExecuted     int64 `json:"statementsExecuted"`
	BatchesExecuted        int64 `json:"batchesExecuted"`
	ExplicitBatchFlushes   int64 `json:"explicitBatchFlushes"`
	ImplicitBatchFlushes   int64 `json:"implicitBatchFlushes"`
	TransactionsBegun      int64 `json:"transactionsBegun"`
	TransactionsCommitted  int64 `json:"transactionsCommitted"`
	TransactionsRolledBack int64 `json:"transactionsRolledBack"`
}

// Statistics counts session events. It is safe for concurrent use, so one instance may be shared
// by every session of a factory.
type Statistics struct {
	connectionsObtained    atomic.Int64
	connectionsReleased    atomic.Int64
	acquisitionFailures    atomic.Int64
	statementsPrepared     atomic.Int64
	statementsExecuted     atomic.Int64
	batchesExecuted        atomic.Int64
	explicitBatchFlushes   atomic.Int64
	implicitBatchFlushes   atomic.Int64
	transactionsBegun      atomic.Int64
	transactionsCommitted  atomic.Int64
	transactionsRolledBack atomic.Int64
}

// NewStatistics - Statistics constructor.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) ConnectionAcquisitionStart(context.Context) {}

func (s *Statistics) ConnectionAcquisitionEnd(_ context.Context, conn dbx.Connection) {
	if conn == nil {
		s.acquisitionFailures.Add(1)
		return
	}

	s.connectionsObtained.Add(1)
}

func (s *Statistics) ConnectionReleaseStart(context.Context) {}

func (s *Statistics) ConnectionReleaseEnd(context.Context) {
	s.connectionsReleased.Add(1)
}

func (s *Statistics) PrepareStatementStart(context.Context) {}

func (s *Statistics) PrepareStatementEnd(context.Context) {
	s.statementsPrepared.Add(1)
}

func (s *Statistics) ExecuteStatementStart(context.Context) {}

func (s *Statistics) ExecuteStatementEnd(context.Context) {
	s.statementsExecuted.Add(1)
}

func (s *Statistics) ExecuteBatchStart(context.Context) {}

func (s *Statistics) ExecuteBatchEnd(context.Context) {
	s.batchesExecuted.Add(1)
}

func (s *Statistics) BatchExplicitlyExecuted(context.Context) {
	s.explicitBatchFlushes.Add(1)
}

func (s *Statistics) BatchImplicitlyExecuted(context.Context) {
	s.implicitBatchFlushes.Add(1)
}

func (s *Statistics) TransactionBegun(context.Context) {
	s.transactionsBegun.Add(1)
}

func (s *Statistics) TransactionCompleted(_ context.Context, successful bool) {
	if successful {
		s.transactionsCommitted.Add(1)
		return
	}

	s.transactionsRolledBack.Add(1)
}

// Snapshot copies the current counters.
func (s *Statistics) Snapshot() StatisticsSnapshot {
	return StatisticsSnapshot{
		ConnectionsObtained:    s.connectionsObtained.Load(),
		ConnectionsReleased:    s.connectionsReleased.Load(),
		AcquisitionFailures:    s.acquisitionFailures.Load(),
		StatementsPrepared:     s.statementsPrepared.Load(),
		StatementsExecuted:     s.statementsExecuted.Load(),
		BatchesExecuted:        s.batchesExecuted.Load(),
		ExplicitBatchFlushes:   s.explicitBatchFlushes.Load(),
		ImplicitBatchFlushes:   s.implicitBatchFlushes.Load(),
		TransactionsBegun:      s.transactionsBegun.Load(),
		TransactionsCommitted:  s.transactionsCommitted.Load(),
		TransactionsRolledBack: s.transactionsRolledBack.Load(),
	}
}

// String - JSON rendering of Snapshot.
func (s *Statistics) String() string {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return "{}"
	}

	return string(data)
}
