/*
store.go - Persistence and lookup interfaces for the rent ledger

PURPOSE:
  Defines the contracts between the core and its collaborators. The core
  never talks to a database or another service directly; everything is
  injected, so the engine runs unchanged against SQLite, Postgres, the
  in-memory fake, or HTTP lookup clients.

KEY INTERFACES:
  PeriodStore:     rent period rows (insert-with-conflict, conditional update)
  PaymentStore:    append-only payment records
  LeaseDirectory:  read-only lease lookup by tenant
  TenantDirectory: read-only display-name lookup for report decoration

CONTRACTS:
  - InsertPeriod must detect the (lease_id, year, month) unique key and
    return ErrDuplicatePeriod on conflict. Callers treat that as a no-op.
  - ApplyPayment is a single atomic compare-and-update: the write commits
    only if paid_amount still equals the value read at decision time,
    otherwise ErrConcurrentModification.
  - Outstanding queries return unpaid/partial periods oldest first. That
    ordering IS the allocation tie-break rule.

IMPLEMENTATIONS:
  - store/sqlite:      production single-binary deployment
  - store/postgres:    production platform deployment
  - ledger/store:      in-memory fake for tests
  - directory:         HTTP lookup clients for the split-service deployment
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD STORE
// =============================================================================

// PeriodStore persists rent periods. Periods are inserted once and then
// mutated only through ApplyPayment.
type PeriodStore interface {
	// InsertPeriod creates a period row. Returns ErrDuplicatePeriod if a
	// row for (lease_id, year, month) already exists.
	InsertPeriod(ctx context.Context, p RentPeriod) error

	// PeriodsByLease returns all periods for a lease, oldest first.
	PeriodsByLease(ctx context.Context, leaseID LeaseID) ([]RentPeriod, error)

	// OutstandingByLease returns periods with status unpaid or partial for
	// a lease, oldest first.
	OutstandingByLease(ctx context.Context, leaseID LeaseID) ([]RentPeriod, error)

	// OutstandingThrough returns every outstanding period across all
	// leases whose key is at or before cutoff, ordered by tenant, then
	// lease, then oldest first. Reads may be stale; reporting tolerates it.
	OutstandingThrough(ctx context.Context, cutoff PeriodKey) ([]RentPeriod, error)

	// ApplyPayment atomically increments paid_amount by amount, recomputes
	// status, and sets last_payment_at - conditioned on paid_amount still
	// being expectedPaid. Returns ErrConcurrentModification when the
	// condition fails and ErrOverApplied when the increment would exceed
	// due_amount.
	ApplyPayment(ctx context.Context, id PeriodID, amount decimal.Decimal, paidAt time.Time, expectedPaid decimal.Decimal) error
}

// =============================================================================
// PAYMENT STORE - Append-only
// =============================================================================

// PaymentStore records incoming payments. No update, no delete: a payment
// is immutable once recorded, and allocation state lives on the periods.
type PaymentStore interface {
	RecordPayment(ctx context.Context, p Payment) error
	Payments(ctx context.Context) ([]Payment, error)
	PaymentsByTenant(ctx context.Context, tenantID TenantID) ([]Payment, error)
}

// =============================================================================
// DIRECTORIES - Read-only external lookups
// =============================================================================

// LeaseDirectory resolves billing terms. Backed by the leases table in the
// single-binary deployment or by the lease service over HTTP.
type LeaseDirectory interface {
	// LeaseByTenant returns the tenant's lease or ErrLeaseNotFound.
	LeaseByTenant(ctx context.Context, tenantID TenantID) (*Lease, error)

	// Leases returns all known leases. Used by the explicit
	// ensure-periods maintenance operation to backfill every ledger.
	Leases(ctx context.Context) ([]Lease, error)
}

// TenantDirectory resolves display names for report decoration. Absence of
// a tenant degrades to "Unknown" placeholders; only infrastructure failure
// is an error, and callers treat even that as non-fatal.
type TenantDirectory interface {
	TenantInfo(ctx context.Context, tenantID TenantID) (TenantInfo, error)
}
