// Package ids generates the process-wide and per-order identifiers used
// throughout the audit trail (spec.md §3: run_id, exec_id, OrderContext.local_id).
package ids

import "github.com/google/uuid"

// NewRunID identifies one process invocation.
func NewRunID() string {
	return uuid.NewString()
}

// NewExecID identifies one logical execution within a run (one decision cycle).
func NewExecID() string {
	return uuid.NewString()
}

// NewLocalID identifies one order, process-unique, assigned at creation.
func NewLocalID() string {
	return uuid.NewString()
}
