// Package memjta is an in-memory jta.Platform with a single bound transaction.
// It has no resources of its own: completion only drives the registered synchronizations.
package memjta

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/jta"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/pkg/errors"
)

// ErrNoTransaction - completion requested while no transaction is bound.
var ErrNoTransaction = errors.New("no transaction is bound")

// Transaction - in-memory jta.Transaction.
type Transaction struct {
	id     string
	status jta.Status
	syncs  []jta.Synchronization
}

func (t *Transaction) ID() string {
	return t.id
}

func (t *Transaction) Status(context.Context) (jta.Status, error) {
	return t.status, nil
}

func (t *Transaction) RegisterSynchronization(_ context.Context, sync jta.Synchronization) error {
	if !t.status.IsActive(true) {
		return errors.Errorf("cannot register synchronization with transaction %s in status %s", t.id, t.status)
	}

	t.syncs = append(t.syncs, sync)

	return nil
}

// Synchronizations - number of registered synchronizations.
func (t *Transaction) Synchronizations() int {
	return len(t.syncs)
}

// TransactionManager - in-memory jta.TransactionManager, also usable as jta.UserTransaction.
type TransactionManager struct {
	mu      sync.Mutex
	current *Transaction
	timeout int
}

// NewTransactionManager - TransactionManager constructor.
func NewTransactionManager() *TransactionManager {
	return &TransactionManager{}
}

func (tm *TransactionManager) Begin(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.current != nil {
		return errors.New("nested transactions are not supported")
	}

	tm.current = &Transaction{id: uuid.NewString(), status: jta.StatusActive}
	logx.GetLogger().LogDebug(ctx, fmt.Sprintf("began JTA transaction %s", tm.current.id))

	return nil
}

func (tm *TransactionManager) bound() (*Transaction, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.current == nil {
		return nil, ErrNoTransaction
	}

	return tm.current, nil
}

func (tm *TransactionManager) unbind(tx *Transaction) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.current == tx {
		tm.current = nil
	}
}

// Commit runs before-completion on every synchronization, then commits. A transaction marked
// for rollback, or doomed by a failing synchronization, is rolled back instead and an error
// is returned.
func (tm *TransactionManager) Commit(ctx context.Context) error {
	tx, err := tm.bound()
	if err != nil {
		return err
	}

	if tx.status == jta.StatusMarkedRollback {
		tm.complete(ctx, tx, jta.StatusRolledBack)
		return errorx.NewTransactionError("transaction %s was marked for rollback only", tx.id)
	}

	tx.status = jta.StatusPreparing
	for _, sync := range tx.syncs {
		if err := sync.BeforeCompletion(ctx); err != nil {
			tm.complete(ctx, tx, jta.StatusRolledBack)
			return errorx.NewTransactionErrorWrapper(err, "transaction %s rolled back by before-completion failure", tx.id)
		}
	}

	tx.status = jta.StatusCommitting
	tm.complete(ctx, tx, jta.StatusCommitted)

	return nil
}

func (tm *TransactionManager) Rollback(ctx context.Context) error {
	tx, err := tm.bound()
	if err != nil {
		return err
	}

	tx.status = jta.StatusRollingBack
	tm.complete(ctx, tx, jta.StatusRolledBack)

	return nil
}

func (tm *TransactionManager) complete(ctx context.Context, tx *Transaction, status jta.Status) {
	tx.status = status
	tm.unbind(tx)

	for _, sync := range tx.syncs {
		if err := sync.AfterCompletion(ctx, status); err != nil {
			logx.GetLogger().LogWarning(ctx, "synchronization failed during after-completion", err)
		}
	}
}

func (tm *TransactionManager) SetRollbackOnly(context.Context) error {
	tx, err := tm.bound()
	if err != nil {
		return err
	}

	tx.status = jta.StatusMarkedRollback

	return nil
}

func (tm *TransactionManager) Status(context.Context) (jta.Status, error) {
	tx, err := tm.bound()
	if err != nil {
		return jta.StatusNoTransaction, nil //nolint:nilerr
	}

	return tx.status, nil
}

func (tm *TransactionManager) SetTransactionTimeout(seconds int) error {
	if seconds < 0 {
		return errors.Errorf("negative transaction timeout %d", seconds)
	}

	tm.mu.Lock()
	tm.timeout = seconds
	tm.mu.Unlock()

	return nil
}

// TransactionTimeout - last value passed to SetTransactionTimeout.
func (tm *TransactionManager) TransactionTimeout() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	return tm.timeout
}

// Transaction returns the bound transaction, or nil.
func (tm *TransactionManager) Transaction(context.Context) (jta.Transaction, error) {
	tx, err := tm.bound()
	if err != nil {
		return nil, nil //nolint:nilnil
	}

	return tx, nil
}

// Current - the bound transaction as its concrete type, or nil.
func (tm *TransactionManager) Current() *Transaction {
	tx, _ := tm.bound()
	return tx
}

// Platform - jta.Platform over a TransactionManager.
// Setting UserTransactionErr or TransactionManagerErr makes the matching service inaccessible.
type Platform struct {
	TM *TransactionManager

	UserTransactionErr    error
	TransactionManagerErr error
}

// NewPlatform - Platform constructor.
func NewPlatform() *Platform {
	return &Platform{TM: NewTransactionManager()}
}

func (p *Platform) RetrieveUserTransaction() (jta.UserTransaction, error) {
	if p.UserTransactionErr != nil {
		return nil, p.UserTransactionErr
	}

	return p.TM, nil
}

func (p *Platform) RetrieveTransactionManager() (jta.TransactionManager, error) {
	if p.TransactionManagerErr != nil {
		return nil, p.TransactionManagerErr
	}

	return p.TM, nil
}

func (p *Platform) CanRegisterSynchronization(ctx context.Context) bool {
	status, err := p.TM.Status(ctx)
	return err == nil && status.IsActive(false)
}

func (p *Platform) RegisterSynchronization(ctx context.Context, sync jta.Synchronization) error {
	tx, err := p.TM.bound()
	if err != nil {
		return err
	}

	return tx.RegisterSynchronization(ctx, sync)
}

func (p *Platform) CurrentStatus(ctx context.Context) (jta.Status, error) {
	return p.TM.Status(ctx)
}
