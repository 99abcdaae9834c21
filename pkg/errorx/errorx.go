package errorx

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors. Every typed error below reports one of them through errors.Is,
// so callers can branch on the kind of failure without type assertions.
var (
	// ErrResourceClosed - operation attempted on a closed session, logical connection or registry.
	ErrResourceClosed = errors.New("resource closed")
	// ErrStaleDelegate - use of a transaction driver handle after its cycle completed.
	ErrStaleDelegate = errors.New("transaction driver handle is no longer valid")
	// ErrPlatformInaccessible - neither UserTransaction nor TransactionManager could be obtained.
	ErrPlatformInaccessible = errors.New("unable to access UserTransaction or TransactionManager")
	// ErrTransactionTimeout - the transaction timeout elapsed before a statement could be prepared.
	ErrTransactionTimeout = errors.New("transaction timeout expired")
	// ErrTransactionRequired - explicit join requested while no JTA transaction is active.
	ErrTransactionRequired = errors.New("explicitly joining a JTA transaction requires an active JTA transaction")
	// ErrRolledBackElsewhere - the transaction was rolled back by a different caller.
	ErrRolledBackElsewhere = errors.New("transaction was rolled back by a different caller")
	// ErrBatchOutcome - a statement reported an unexpected row count.
	ErrBatchOutcome = errors.New("unexpected row count")
	// ErrTransaction - any begin/commit/rollback failure.
	ErrTransaction = errors.New("transaction error")
	// ErrSQL - any translated driver failure.
	ErrSQL = errors.New("sql error")
)

// GENERAL ERROR:

// GeneralError - General App Error.
type GeneralError struct {
	message string
	err     error
}

// NewGeneralError - GeneralError constructor.
func NewGeneralError(msg string, args ...any) *GeneralError {
	return &GeneralError{message: fmt.Sprintf(msg, args...), err: nil}
}

// NewGeneralErrorWrapper - GeneralError constructor for wrapper of another error.
func NewGeneralErrorWrapper(err error, msg string, args ...any) *GeneralError {
	return &GeneralError{message: fmt.Sprintf(msg, args...), err: err}
}

// Error - return the error string.
func (ge *GeneralError) Error() string {
	if ge.err != nil {
		return fmt.Sprintf("%s # Error wrap: %s", ge.message, ge.err.Error())
	}

	return ge.message
}

// Unwrap - return the wrapped error.
func (ge *GeneralError) Unwrap() error {
	return ge.err
}

// RESOURCE CLOSED

// NewResourceClosedError - ErrResourceClosed with the name of the closed resource.
func NewResourceClosedError(resource string) error {
	return errors.Wrapf(ErrResourceClosed, "%s is closed", resource)
}

// TRANSACTION ERROR

// TransactionError - begin/commit/rollback failure, always wrapping the original cause when there is one.
type TransactionError struct {
	message string
	err     error
}

// NewTransactionError - TransactionError constructor.
func NewTransactionError(msg string, args ...any) *TransactionError {
	return &TransactionError{message: fmt.Sprintf(msg, args...)}
}

// NewTransactionErrorWrapper - TransactionError constructor for wrapper of another error.
func NewTransactionErrorWrapper(err error, msg string, args ...any) *TransactionError {
	return &TransactionError{message: fmt.Sprintf(msg, args...), err: err}
}

// Error - return the error string.
func (te *TransactionError) Error() string {
	if te.err != nil {
		return fmt.Sprintf("%s: %s", te.message, te.err.Error())
	}

	return te.message
}

// Unwrap - return the wrapped error.
func (te *TransactionError) Unwrap() error {
	return te.err
}

// Is reports ErrTransaction for every TransactionError.
func (te *TransactionError) Is(target error) bool {
	return target == ErrTransaction
}

// NewTransactionTimeoutError - TransactionError reporting an expired transaction timeout.
func NewTransactionTimeoutError() *TransactionError {
	return NewTransactionErrorWrapper(ErrTransactionTimeout, "unable to prepare statement")
}

// DATABASE ERROR

// DatabaseError - generic database error.
type DatabaseError struct {
	message string
	err     error
}

// NewDatabaseError - DatabaseError constructor.
func NewDatabaseError(msg string, args ...any) *DatabaseError {
	return &DatabaseError{message: fmt.Sprintf(msg, args...), err: nil}
}

// NewDatabaseErrorWrapper - DatabaseError constructor for wrapper of another error.
func NewDatabaseErrorWrapper(err error, msg string, args ...any) *DatabaseError {
	return &DatabaseError{message: fmt.Sprintf(msg, args...), err: err}
}

// Error - return the error string.
func (ge *DatabaseError) Error() string {
	if ge.err != nil {
		return fmt.Sprintf("%s: %s", ge.message, ge.err.Error())
	}

	return ge.message
}

// Unwrap - return the wrapped error.
func (ge *DatabaseError) Unwrap() error {
	return ge.err
}

// ASSERTION FAILURE

// AssertionFailure - programming error. It is raised with panic, never returned.
type AssertionFailure struct {
	message string
}

// NewAssertionFailure - AssertionFailure constructor.
func NewAssertionFailure(msg string, args ...any) *AssertionFailure {
	return &AssertionFailure{message: fmt.Sprintf(msg, args...)}
}

// Error - return the error string.
func (af *AssertionFailure) Error() string {
	return "assertion failure: " + af.message
}
