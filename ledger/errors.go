/*
errors.go - Centralized error types for the rent ledger core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store implementations and transport layers wrap these with context.

ERROR CATEGORIES:
  1. Client errors - bad input, unknown tenant (surfaced as 4xx)
  2. Concurrency errors - optimistic-lock conflicts, retried then surfaced
  3. Collaborator errors - store/lookup I/O failures

USAGE:
  if errors.Is(err, ledger.ErrLeaseNotFound) {
      // 404 to the caller
  }
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrLeaseNotFound is returned when no lease exists for a tenant.
	// Caller input error.
	ErrLeaseNotFound = errors.New("lease not found")

	// ErrDuplicatePeriod is returned when inserting a period that already
	// exists for (lease, year, month). Benign during concurrent
	// materialization; EnsurePeriods treats it as a no-op.
	ErrDuplicatePeriod = errors.New("period already exists")

	// ErrConcurrentModification is returned when a conditional period
	// update finds the balance changed since it was read.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrAllocationConflict is returned when allocation retries are
	// exhausted. The caller should retry the whole allocation.
	ErrAllocationConflict = errors.New("allocation conflict: retries exhausted")

	// ErrOverApplied is returned when an application would push paid_amount
	// past due_amount. The allocator never does this by construction.
	ErrOverApplied = errors.New("applied amount exceeds period balance")

	// ErrInvalidAmount is returned for zero or negative payment amounts.
	ErrInvalidAmount = errors.New("payment amount must be positive")

	// ErrStoreUnavailable is returned on store I/O failure. Write paths
	// surface it; they never swallow it.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrLookupUnavailable is returned when a decoration-only lookup
	// (tenant/property names) fails. Reports degrade, never abort.
	ErrLookupUnavailable = errors.New("lookup unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AllocationConflictError reports an allocation that gave up after
// conflicting retries. The unallocated amount was never applied anywhere.
type AllocationConflictError struct {
	TenantID    TenantID
	LeaseID     LeaseID
	Unallocated decimal.Decimal
	Attempts    int
}

func (e *AllocationConflictError) Error() string {
	return fmt.Sprintf("allocation for tenant %s gave up after %d attempts with %s unallocated",
		e.TenantID, e.Attempts, e.Unallocated)
}

func (e *AllocationConflictError) Unwrap() error {
	return ErrAllocationConflict
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrAllocationConflict) ||
		errors.Is(err, ErrStoreUnavailable)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLeaseNotFound)
}
