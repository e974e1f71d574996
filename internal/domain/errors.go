package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrLockHeld            = errors.New("lock already held")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrUnknownSide         = errors.New("unrecognised signal side")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInsufficientFunds   = errors.New("insufficient available balance")
	ErrAlreadyReserved     = errors.New("reservation already exists")
	ErrDuplicateSubmission = errors.New("order already submitted")
	ErrSigningFailed       = errors.New("signing failed")
	ErrBundleFailed        = errors.New("bundle failed")
	ErrBundleDropped       = errors.New("bundle dropped before inclusion")
	ErrTxFailed            = errors.New("transaction failed on chain")
	ErrConfirmTimeout      = errors.New("confirmation timed out")
	ErrOutcomeUnknown      = errors.New("sent but outcome unknown")
	ErrWSDisconnect        = errors.New("websocket disconnected")
	ErrBreakerOpen         = errors.New("circuit breaker open")
)

// ConfigurationError reports missing credentials or endpoints. It is fatal at
// startup and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// CollaboratorUnavailable reports that an external dependency (store, scanner,
// validation service, RPC) could not be reached. Callers degrade readiness and
// retry on the next cycle.
type CollaboratorUnavailable struct {
	Name string
	Err  error
}

func (e *CollaboratorUnavailable) Error() string {
	return fmt.Sprintf("collaborator %s unavailable: %v", e.Name, e.Err)
}

func (e *CollaboratorUnavailable) Unwrap() error { return e.Err }

// CandidateError marks a single malformed or invalid candidate. The candidate
// is skipped; the cycle continues.
type CandidateError struct {
	Address string
	Reason  string
	Err     error
}

func (e *CandidateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("candidate %s: %s: %v", e.Address, e.Reason, e.Err)
	}
	return fmt.Sprintf("candidate %s: %s", e.Address, e.Reason)
}

func (e *CandidateError) Unwrap() error { return e.Err }

// CycleTimeout reports that a whole pipeline cycle exceeded its deadline.
// Decisions enqueued before the deadline remain valid.
type CycleTimeout struct {
	Timeout   time.Duration
	Advanced  int
	Attempted int
}

func (e *CycleTimeout) Error() string {
	return fmt.Sprintf("cycle exceeded %s (advanced %d of %d candidates)", e.Timeout, e.Advanced, e.Attempted)
}

// ExecutionError is a submission or confirmation failure. It always carries
// the affected order id and token.
type ExecutionError struct {
	OrderID string
	Token   string
	Reason  string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution of order %s (%s) failed: %s: %v", e.OrderID, e.Token, e.Reason, e.Err)
	}
	return fmt.Sprintf("execution of order %s (%s) failed: %s", e.OrderID, e.Token, e.Reason)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
