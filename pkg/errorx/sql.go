package errorx

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// SQLError - driver-level failure translated with the context it happened in.
//
// Fields:
//   - Message: what the library was doing ("could not prepare statement", ...).
//   - SQL: the statement text involved, if any.
//   - SQLState: the five character SQLSTATE reported by the driver, if any.
//   - Operation: name of the accepted operation that was running, if any.
type SQLError struct {
	Message   string
	SQL       string
	SQLState  string
	Operation string
	err       error
}

type sqlStater interface {
	SQLState() string
}

// TranslateSQL converts a driver error into a *SQLError.
//
// Errors that are already part of this package's family (SQLError, TransactionError,
// BatchOutcomeError, ...) are returned unchanged so that a failure is translated only once.
// A nil error stays nil.
func TranslateSQL(err error, msg string, sql string) error {
	if err == nil {
		return nil
	}

	if IsTranslated(err) {
		return err
	}

	sqlErr := &SQLError{Message: msg, SQL: sql, err: err}

	var stater sqlStater
	if errors.As(err, &stater) {
		sqlErr.SQLState = stater.SQLState()
	}

	return sqlErr
}

// IsTranslated reports whether err already belongs to this package's error family.
func IsTranslated(err error) bool {
	var sqlErr *SQLError
	var txErr *TransactionError
	var outcomeErr *BatchOutcomeError
	var staleErr *StaleDelegateError

	return errors.As(err, &sqlErr) ||
		errors.As(err, &txErr) ||
		errors.As(err, &outcomeErr) ||
		errors.As(err, &staleErr) ||
		errors.Is(err, ErrResourceClosed) ||
		errors.Is(err, ErrPlatformInaccessible)
}

// WithOperation returns err with the operation name recorded on its SQLError, translating it
// first when needed.
func WithOperation(err error, operation string) error {
	if err == nil {
		return nil
	}

	var sqlErr *SQLError
	if errors.As(err, &sqlErr) {
		if sqlErr.Operation == "" {
			sqlErr.Operation = operation
		}

		return err
	}

	if IsTranslated(err) {
		return err
	}

	return &SQLError{Message: "could not perform operation", Operation: operation, err: err}
}

// Error - return the error string.
func (se *SQLError) Error() string {
	msg := se.Message
	if se.Operation != "" {
		msg = fmt.Sprintf("%s (operation %s)", msg, se.Operation)
	}

	if se.SQL != "" {
		msg = fmt.Sprintf("%s [%s]", msg, se.SQL)
	}

	if se.err != nil {
		msg = fmt.Sprintf("%s: %s", msg, se.err.Error())
	}

	return msg
}

// Unwrap - return the driver error.
func (se *SQLError) Unwrap() error {
	return se.err
}

// Is reports ErrSQL for every SQLError.
func (se *SQLError) Is(target error) bool {
	return target == ErrSQL
}

// BATCH OUTCOME

// BatchOutcomeError - a statement affected a different number of rows than its expectation demands.
type BatchOutcomeError struct {
	SQL      string
	Position int
	Expected int64
	Actual   int64
}

// NewBatchOutcomeError - BatchOutcomeError constructor.
func NewBatchOutcomeError(sql string, position int, expected, actual int64) *BatchOutcomeError {
	return &BatchOutcomeError{SQL: sql, Position: position, Expected: expected, Actual: actual}
}

// Error - return the error string.
func (be *BatchOutcomeError) Error() string {
	return fmt.Sprintf("batch update returned unexpected row count from update [%d]; actual row count: %d; expected: %d; statement executed: %s",
		be.Position, be.Actual, be.Expected, be.SQL)
}

// Is reports ErrBatchOutcome for every BatchOutcomeError.
func (be *BatchOutcomeError) Is(target error) bool {
	return target == ErrBatchOutcome
}

// STALE DELEGATE

// StaleDelegateError - a transaction driver handle of generation Handle was used while the
// coordinator is at generation Current.
type StaleDelegateError struct {
	Handle  uint64
	Current uint64
}

// Error - return the error string.
func (sd *StaleDelegateError) Error() string {
	return fmt.Sprintf("%s (handle generation %d, current generation %d)", ErrStaleDelegate.Error(), sd.Handle, sd.Current)
}

// Is reports ErrStaleDelegate for every StaleDelegateError.
func (sd *StaleDelegateError) Is(target error) bool {
	return target == ErrStaleDelegate
}

// CONFIG ERROR

// ConfigFieldError - one invalid configuration field.
type ConfigFieldError struct {
	FailedField string `json:"failedField"`
	Tag         string `json:"tag"`
	Value       string `json:"value"`
}

// ConfigError - configuration failed validation.
type ConfigError struct {
	Fields []ConfigFieldError `json:"fields"`
}

// Error - JSON rendering of the failed fields.
func (ce *ConfigError) Error() string {
	data, err := json.Marshal(ce)
	if err != nil {
		return "invalid configuration"
	}

	return "invalid configuration: " + string(data)
}
