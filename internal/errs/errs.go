// Package errs defines the core error taxonomy (spec.md §7). Every kind here
// is a value a caller can branch on with errors.Is/errors.As; none of them
// panic — protection and trigger evaluation return outcomes, not exceptions.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds that carry no extra payload.
var (
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrDuplicateID        = errors.New("duplicate id")
	ErrUnknownID          = errors.New("unknown id")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrComplianceExceeded = errors.New("compliance exceeded")
	ErrGatewayDisconnected = errors.New("gateway disconnected")
	ErrSerialization      = errors.New("serialization error")
)

// ProtectionRejected is returned by a ProtectionPipeline gate that rejects an
// order; it is expected and non-fatal at the order level.
type ProtectionRejected struct {
	Gate   string
	Reason string
}

func (e *ProtectionRejected) Error() string {
	return fmt.Sprintf("protection rejected by %s: %s", e.Gate, e.Reason)
}

// NewProtectionRejected constructs a ProtectionRejected error.
func NewProtectionRejected(gate, reason string) *ProtectionRejected {
	return &ProtectionRejected{Gate: gate, Reason: reason}
}

// TimeoutKind distinguishes which deadline expired.
type TimeoutKind string

const (
	TimeoutKindAck    TimeoutKind = "ACK"
	TimeoutKindFill   TimeoutKind = "FILL"
	TimeoutKindCancel TimeoutKind = "CANCEL"
)

// TimeoutExpired is non-fatal at the process level; it drives a recovery path
// through the order FSM.
type TimeoutExpired struct {
	Kind    TimeoutKind
	LocalID string
}

func (e *TimeoutExpired) Error() string {
	return fmt.Sprintf("%s timeout expired for order %s", e.Kind, e.LocalID)
}

// NewTimeoutExpired constructs a TimeoutExpired error.
func NewTimeoutExpired(kind TimeoutKind, localID string) *TimeoutExpired {
	return &TimeoutExpired{Kind: kind, LocalID: localID}
}

// ReconcileMismatch describes one symbol where local and broker positions disagree.
type ReconcileMismatch struct {
	Symbol string
	Local  int
	Broker int
}

func (e *ReconcileMismatch) Error() string {
	return fmt.Sprintf("reconcile mismatch on %s: local=%d broker=%d", e.Symbol, e.Local, e.Broker)
}
