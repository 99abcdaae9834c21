package dbx

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// AcquisitionMode - when a logical connection obtains its physical connection.
type AcquisitionMode int

const (
	// AcquireAsNeeded obtains the physical connection on first use.
	AcquireAsNeeded AcquisitionMode = iota
	// AcquireImmediately obtains the physical connection when the logical connection is created.
	AcquireImmediately
)

// ReleaseMode - when a logical connection hands its physical connection back to the provider.
type ReleaseMode int

const (
	// ReleaseOnClose holds the physical connection until the logical connection is closed.
	ReleaseOnClose ReleaseMode = iota
	// ReleaseAfterTransaction releases at the end of every transaction.
	ReleaseAfterTransaction
	// ReleaseAfterStatement releases after every statement, unless resources are still open.
	ReleaseAfterStatement
)

func (m ReleaseMode) String() string {
	switch m {
	case ReleaseOnClose:
		return "on-close"
	case ReleaseAfterTransaction:
		return "after-transaction"
	case ReleaseAfterStatement:
		return "after-statement"
	default:
		return fmt.Sprintf("ReleaseMode(%d)", int(m))
	}
}

// HandlingMode - physical connection handling: acquisition mode combined with release mode.
type HandlingMode struct {
	Acquisition AcquisitionMode
	Release     ReleaseMode
}

// Supported handling modes.
var (
	DelayedAcquisitionAndHold                 = HandlingMode{AcquireAsNeeded, ReleaseOnClose}
	DelayedAcquisitionReleaseAfterStatement   = HandlingMode{AcquireAsNeeded, ReleaseAfterStatement}
	DelayedAcquisitionReleaseAfterTransaction = HandlingMode{AcquireAsNeeded, ReleaseAfterTransaction}
	ImmediateAcquisitionAndHold               = HandlingMode{AcquireImmediately, ReleaseOnClose}
	ImmediateAcquisitionReleaseAfterTxn       = HandlingMode{AcquireImmediately, ReleaseAfterTransaction}
)

var handlingModes = map[string]HandlingMode{
	"delayed-acquisition-and-hold":                        DelayedAcquisitionAndHold,
	"delayed-acquisition-and-release-after-statement":     DelayedAcquisitionReleaseAfterStatement,
	"delayed-acquisition-and-release-after-transaction":   DelayedAcquisitionReleaseAfterTransaction,
	"immediate-acquisition-and-hold":                      ImmediateAcquisitionAndHold,
	"immediate-acquisition-and-release-after-transaction": ImmediateAcquisitionReleaseAfterTxn,
}

// ParseHandlingMode resolves a configured handling mode name.
// An empty name or "auto" resolves to fallback.
func ParseHandlingMode(name string, fallback HandlingMode) (HandlingMode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "auto" {
		return fallback, nil
	}

	mode, ok := handlingModes[name]
	if !ok {
		return HandlingMode{}, errors.Errorf("unknown connection handling mode %q", name)
	}

	return mode, nil
}

func (m HandlingMode) String() string {
	acquisition := "delayed-acquisition"
	if m.Acquisition == AcquireImmediately {
		acquisition = "immediate-acquisition"
	}

	if m.Release == ReleaseOnClose {
		return acquisition + "-and-hold"
	}

	return acquisition + "-and-release-" + m.Release.String()
}
