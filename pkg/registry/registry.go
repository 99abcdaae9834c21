// Package registry tracks the statements and result sets opened during a unit of work so they
// can be released individually, or all at once when the connection is released.
package registry

import (
	"context"
	"fmt"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/pkg/errors"
)

type resultSets map[dbx.ResultSet]struct{}

// Registry - statement to result set cross reference, plus result sets whose statement is unknown.
// A Registry is owned by one session and is not safe for concurrent use.
type Registry struct {
	xref         map[dbx.Statement]resultSets
	order        []dbx.Statement
	unassociated resultSets
	lastQuery    dbx.Statement
	closed       bool
}

// NewRegistry - Registry constructor.
func NewRegistry() *Registry {
	return &Registry{
		xref:         make(map[dbx.Statement]resultSets),
		unassociated: make(resultSets),
	}
}

// Register starts tracking stmt. Cancelable statements become the target of CancelLastQuery.
// Registering the same statement twice is an error.
func (r *Registry) Register(stmt dbx.Statement, cancelable bool) error {
	if r.closed {
		return errorx.NewResourceClosedError("resource registry")
	}

	if _, ok := r.xref[stmt]; ok {
		return errorx.NewGeneralError("statement already registered with resource registry: %s", stmt.SQL())
	}

	r.xref[stmt] = make(resultSets)
	r.order = append(r.order, stmt)

	if cancelable {
		r.lastQuery = stmt
	}

	return nil
}

// RegisterResultSet tracks rs under stmt. When stmt is nil the owning statement is taken from the
// result set; result sets without a discoverable statement are tracked unassociated.
func (r *Registry) RegisterResultSet(ctx context.Context, rs dbx.ResultSet, stmt dbx.Statement) error {
	if r.closed {
		return errorx.NewResourceClosedError("resource registry")
	}

	if stmt == nil {
		stmt = rs.Statement()
	}

	if stmt == nil {
		r.unassociated[rs] = struct{}{}
		return nil
	}

	sets, ok := r.xref[stmt]
	if !ok {
		logx.GetLogger().LogDebug(ctx, "ResultSet statement was not registered (on register)")

		sets = make(resultSets)
		r.xref[stmt] = sets
		r.order = append(r.order, stmt)
	}

	sets[rs] = struct{}{}

	return nil
}

// Release closes every result set of stmt, then stmt itself, and forgets them.
func (r *Registry) Release(ctx context.Context, stmt dbx.Statement) {
	sets, ok := r.xref[stmt]
	if ok {
		for rs := range sets {
			closeResultSet(ctx, rs)
		}

		delete(r.xref, stmt)
		r.forget(stmt)
	} else {
		logx.GetLogger().LogDebug(ctx, "Statement was not registered with resource registry (on release)")
	}

	if r.lastQuery == stmt {
		r.lastQuery = nil
	}

	closeStatement(ctx, stmt)
}

// ReleaseResultSet closes rs and forgets it. The owning statement stays registered and open
// unless it was already closed. When stmt is nil the owning statement is taken from the result set.
func (r *Registry) ReleaseResultSet(ctx context.Context, rs dbx.ResultSet, stmt dbx.Statement) {
	if stmt == nil {
		stmt = rs.Statement()
	}

	if stmt != nil {
		sets, ok := r.xref[stmt]
		if !ok {
			logx.GetLogger().LogDebug(ctx, "ResultSet statement was not registered (on release)")
		} else {
			delete(sets, rs)
			if len(sets) == 0 && stmt.IsClosed() {
				delete(r.xref, stmt)
				r.forget(stmt)
			}
		}
	} else if _, ok := r.unassociated[rs]; ok {
		delete(r.unassociated, rs)
	} else {
		logx.GetLogger().LogDebug(ctx, "ResultSet had no statement and was not registered (on release)")
	}

	closeResultSet(ctx, rs)
}

// HasRegisteredResources reports whether any statement or result set is still tracked.
func (r *Registry) HasRegisteredResources() bool {
	return len(r.xref) > 0 || len(r.unassociated) > 0
}

// IsRegistered reports whether stmt is tracked.
func (r *Registry) IsRegistered(stmt dbx.Statement) bool {
	_, ok := r.xref[stmt]
	return ok
}

// Statements returns the tracked statements in registration order.
func (r *Registry) Statements() []dbx.Statement {
	return append([]dbx.Statement(nil), r.order...)
}

// LastQuery returns the statement CancelLastQuery would cancel, or nil.
func (r *Registry) LastQuery() dbx.Statement {
	return r.lastQuery
}

// CancelLastQuery cancels the last registered cancelable statement, if any.
// The tracked statement is forgotten whether or not cancellation succeeds.
func (r *Registry) CancelLastQuery(ctx context.Context) error {
	defer func() {
		r.lastQuery = nil
	}()

	if r.lastQuery == nil {
		return nil
	}

	if err := r.lastQuery.Cancel(ctx); err != nil {
		return errorx.TranslateSQL(err, "cannot cancel query", r.lastQuery.SQL())
	}

	return nil
}

// ReleaseAll closes and forgets every tracked resource.
func (r *Registry) ReleaseAll(ctx context.Context) {
	logx.GetLogger().LogDebug(ctx, fmt.Sprintf("releasing JDBC resources: %d statement(s), %d unassociated result set(s)",
		len(r.xref), len(r.unassociated)))

	for _, stmt := range r.order {
		for rs := range r.xref[stmt] {
			closeResultSet(ctx, rs)
		}

		closeStatement(ctx, stmt)
	}

	for rs := range r.unassociated {
		closeResultSet(ctx, rs)
	}

	r.xref = make(map[dbx.Statement]resultSets)
	r.order = nil
	r.unassociated = make(resultSets)
	r.lastQuery = nil
}

// Close releases everything; later registrations fail with errorx.ErrResourceClosed.
func (r *Registry) Close(ctx context.Context) {
	if r.closed {
		return
	}

	r.ReleaseAll(ctx)
	r.closed = true
}

func (r *Registry) forget(stmt dbx.Statement) {
	for i, s := range r.order {
		if s == stmt {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// closeStatement resets max rows and query timeout before closing. A statement whose reset
// fails is left open.
func closeStatement(ctx context.Context, stmt dbx.Statement) {
	if stmt.IsClosed() {
		return
	}

	if err := resetStatement(stmt); err != nil {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("exception clearing maxRows/queryTimeout [%s]", err))
		return
	}

	if err := stmt.Close(); err != nil {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("unable to release JDBC statement [%s]", err))
	}
}

func resetStatement(stmt dbx.Statement) error {
	maxRows, err := stmt.MaxRows()
	if err != nil {
		return errors.Wrap(err, "max rows")
	}

	if maxRows != 0 {
		if err := stmt.SetMaxRows(0); err != nil {
			return errors.Wrap(err, "max rows")
		}
	}

	timeout, err := stmt.QueryTimeout()
	if err != nil {
		return errors.Wrap(err, "query timeout")
	}

	if timeout != 0 {
		if err := stmt.SetQueryTimeout(0); err != nil {
			return errors.Wrap(err, "query timeout")
		}
	}

	return nil
}

func closeResultSet(ctx context.Context, rs dbx.ResultSet) {
	if err := rs.Close(); err != nil {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("unable to release JDBC result set [%s]", err))
	}
}
