package jtatx

import (
	"context"

	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/jta"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/marcodd23/go-txsession/pkg/txcoord"
	"github.com/pkg/errors"
)

// adapter - begin/commit/rollback primitives over one of the JTA demarcation APIs.
// Commit and rollback only act on transactions the adapter began itself.
type adapter interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Status(ctx context.Context) txcoord.TransactionStatus
	MarkRollbackOnly(ctx context.Context) error
	SetTimeout(seconds int) error
	Name() string
}

// demarcation - the API subset shared by UserTransaction and TransactionManager.
type demarcation interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	SetRollbackOnly(ctx context.Context) error
	Status(ctx context.Context) (jta.Status, error)
	SetTransactionTimeout(seconds int) error
}

type demarcationAdapter struct {
	name      string
	api       demarcation
	initiator bool
}

func (a *demarcationAdapter) Name() string {
	return a.name
}

func (a *demarcationAdapter) Begin(ctx context.Context) error {
	if a.Status(ctx) != txcoord.StatusNotActive {
		logx.GetLogger().LogDebug(ctx, "skipping "+a.name+"#begin due to already active transaction")
		return nil
	}

	if err := a.api.Begin(ctx); err != nil {
		return errorx.NewTransactionErrorWrapper(err, "JTA %s#begin failed", a.name)
	}

	a.initiator = true

	return nil
}

func (a *demarcationAdapter) Commit(ctx context.Context) error {
	if !a.initiator {
		logx.GetLogger().LogDebug(ctx, "skipping "+a.name+"#commit due to not being initiator")
		return nil
	}

	a.initiator = false

	if err := a.api.Commit(ctx); err != nil {
		return errorx.NewTransactionErrorWrapper(err, "JTA %s#commit failed", a.name)
	}

	return nil
}

func (a *demarcationAdapter) Rollback(ctx context.Context) error {
	if !a.initiator {
		logx.GetLogger().LogDebug(ctx, "not initiator of "+a.name+" transaction, marking it for rollback only")
		return a.MarkRollbackOnly(ctx)
	}

	a.initiator = false

	if err := a.api.Rollback(ctx); err != nil {
		return errorx.NewTransactionErrorWrapper(err, "JTA %s#rollback failed", a.name)
	}

	return nil
}

func (a *demarcationAdapter) Status(ctx context.Context) txcoord.TransactionStatus {
	status, err := a.api.Status(ctx)
	if err != nil {
		logx.GetLogger().LogWarning(ctx, "JTA "+a.name+"#getStatus failed", err)
		return txcoord.StatusNotActive
	}

	return txcoord.StatusFromJta(status)
}

func (a *demarcationAdapter) MarkRollbackOnly(ctx context.Context) error {
	if err := a.api.SetRollbackOnly(ctx); err != nil {
		return errorx.NewTransactionErrorWrapper(err, "unable to mark JTA transaction for rollback only")
	}

	return nil
}

func (a *demarcationAdapter) SetTimeout(seconds int) error {
	if seconds <= 0 {
		return nil
	}

	if err := a.api.SetTransactionTimeout(seconds); err != nil {
		return errorx.NewTransactionErrorWrapper(err, "unable to apply requested transaction timeout")
	}

	return nil
}

// adapterResult is the outcome of one access attempt: either an adapter, or the reason the
// service is unavailable.
type adapterResult struct {
	adapter adapter
	cause   error
}

func (r adapterResult) available() bool {
	return r.adapter != nil
}

func tryUserTransaction(platform jta.Platform) adapterResult {
	ut, err := platform.RetrieveUserTransaction()
	if err != nil {
		return adapterResult{cause: errors.Wrap(err, "UserTransaction")}
	}

	if ut == nil {
		return adapterResult{cause: errors.New("UserTransaction: platform returned none")}
	}

	return adapterResult{adapter: &demarcationAdapter{name: "UserTransaction", api: ut}}
}

func tryTransactionManager(platform jta.Platform) adapterResult {
	tm, err := platform.RetrieveTransactionManager()
	if err != nil {
		return adapterResult{cause: errors.Wrap(err, "TransactionManager")}
	}

	if tm == nil {
		return adapterResult{cause: errors.New("TransactionManager: platform returned none")}
	}

	return adapterResult{adapter: &demarcationAdapter{name: "TransactionManager", api: tm}}
}

// makeAdapter tries the preferred API first and falls back to the other one. Only the
// failure of both is reported, as errorx.ErrPlatformInaccessible.
func makeAdapter(ctx context.Context, platform jta.Platform, preferUserTransaction bool) (adapter, error) {
	attempts := []func(jta.Platform) adapterResult{tryUserTransaction, tryTransactionManager}
	if !preferUserTransaction {
		attempts[0], attempts[1] = attempts[1], attempts[0]
	}

	causes := make([]string, 0, len(attempts))
	for _, attempt := range attempts {
		result := attempt(platform)
		if result.available() {
			return result.adapter, nil
		}

		logx.GetLogger().LogDebug(ctx, "JTA access attempt failed: "+result.cause.Error())
		causes = append(causes, result.cause.Error())
	}

	return nil, errors.Wrapf(errorx.ErrPlatformInaccessible, "%v", causes)
}
