package txcoord

import (
	"fmt"

	"github.com/marcodd23/go-txsession/pkg/jta"
)

// TransactionStatus - status of the transaction driven by a coordinator.
type TransactionStatus int

const (
	StatusNotActive TransactionStatus = iota
	StatusActive
	StatusCommitted
	StatusRolledBack
	StatusMarkedRollback
	StatusFailedCommit
	StatusFailedRollback
	StatusCommitting
	StatusRollingBack
)

var statusNames = [...]string{
	"NOT_ACTIVE", "ACTIVE", "COMMITTED", "ROLLED_BACK", "MARKED_ROLLBACK",
	"FAILED_COMMIT", "FAILED_ROLLBACK", "COMMITTING", "ROLLING_BACK",
}

func (s TransactionStatus) String() string {
	if int(s) >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}

	return fmt.Sprintf("TransactionStatus(%d)", int(s))
}

// IsOneOf reports whether s is any of statuses.
func (s TransactionStatus) IsOneOf(statuses ...TransactionStatus) bool {
	for _, candidate := range statuses {
		if s == candidate {
			return true
		}
	}

	return false
}

// CanRollback reports whether a rollback may be requested in status s.
func (s TransactionStatus) CanRollback() bool {
	return s.IsOneOf(StatusActive, StatusFailedCommit, StatusMarkedRollback)
}

// StatusFromJta maps a JTA status onto a TransactionStatus.
func StatusFromJta(status jta.Status) TransactionStatus {
	switch status {
	case jta.StatusActive:
		return StatusActive
	case jta.StatusPreparing, jta.StatusPrepared, jta.StatusCommitting:
		return StatusCommitting
	case jta.StatusCommitted:
		return StatusCommitted
	case jta.StatusRolledBack:
		return StatusRolledBack
	case jta.StatusRollingBack:
		return StatusRollingBack
	case jta.StatusMarkedRollback:
		return StatusMarkedRollback
	default:
		return StatusNotActive
	}
}
