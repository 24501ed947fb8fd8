/*
allocation.go - Oldest-first payment allocation

PURPOSE:
  Distributes a payment across a lease's outstanding periods and reports
  exactly what happened as an AllocationReceipt.

ALGORITHM:
  1. Resolve the tenant's lease (ErrLeaseNotFound if absent)
  2. Ensure periods exist up to the payment date
  3. Read outstanding periods, oldest first
  4. Walk the list applying min(remaining, period balance); stop at zero
  5. Anything left after the last outstanding period is the remainder -
     reported on the receipt, never persisted as credit

GUARANTEES:
  - CONSERVATION: sum of applied amounts + remainder == input amount,
    checked as an invariant on every run
  - NO OVER-PAYMENT: a period never receives more than its balance
  - OLDEST FIRST: P1 (2024-01) is always settled before P2 (2024-02)

CONCURRENCY:
  Each period update is an atomic compare-and-update. When a concurrent
  allocation wins a period, this one re-reads the outstanding list and
  retries the remaining amount from the top, a bounded number of times.
  Committed period updates stay committed even when a later step fails;
  the receipt lists exactly the lines that committed.

NOT IDEMPOTENT:
  Re-running Allocate with the same inputs applies the money again - each
  call is a new payment. At-most-once payment insertion belongs to the
  caller.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMaxRetries bounds how many times an allocation re-reads and
// retries after losing a period to a concurrent writer.
const DefaultMaxRetries = 3

// Allocator applies payments to outstanding rent periods.
type Allocator struct {
	Ledger *RentLedger
	Leases LeaseDirectory

	// MaxRetries bounds conflict retries. Zero means DefaultMaxRetries.
	MaxRetries int
}

func NewAllocator(ledger *RentLedger, leases LeaseDirectory) *Allocator {
	return &Allocator{Ledger: ledger, Leases: leases, MaxRetries: DefaultMaxRetries}
}

func (a *Allocator) maxRetries() int {
	if a.MaxRetries > 0 {
		return a.MaxRetries
	}
	return DefaultMaxRetries
}

// Allocate distributes amount across the tenant's outstanding periods,
// oldest first. The returned receipt always reflects the period updates
// that committed, including on error: when retries are exhausted the
// receipt carries the committed lines and ErrAllocationConflict reports
// the rest.
func (a *Allocator) Allocate(ctx context.Context, tenantID TenantID, amount decimal.Decimal, paymentDate time.Time) (*AllocationReceipt, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("allocate for tenant %s: %w", tenantID, ErrInvalidAmount)
	}

	lease, err := a.Leases.LeaseByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolving lease for tenant %s: %w", tenantID, err)
	}

	if _, err := a.Ledger.EnsurePeriods(ctx, lease, paymentDate); err != nil {
		return nil, err
	}

	receipt := &AllocationReceipt{
		TenantID:    tenantID,
		LeaseID:     lease.ID,
		Amount:      amount,
		PaymentDate: paymentDate,
	}
	remaining := amount

	for attempt := 0; ; attempt++ {
		outstanding, err := a.Ledger.Outstanding(ctx, lease.ID)
		if err != nil {
			receipt.Remainder = remaining
			return receipt, fmt.Errorf("reading outstanding periods for lease %s: %w", lease.ID, err)
		}

		conflicted := false
		for _, period := range outstanding {
			if !remaining.IsPositive() {
				break
			}
			applied := decimal.Min(remaining, period.Balance())
			if !applied.IsPositive() {
				continue
			}

			err := a.Ledger.Apply(ctx, period, applied, paymentDate)
			if errors.Is(err, ErrConcurrentModification) {
				// Someone else moved this period's balance. Re-read the
				// whole outstanding list and retry what's left.
				conflicted = true
				break
			}
			if err != nil {
				receipt.Remainder = remaining
				return receipt, fmt.Errorf("applying %s to period %s: %w", applied, period.Key, err)
			}

			newBalance := period.Balance().Sub(applied)
			receipt.Lines = append(receipt.Lines, AllocationLine{
				PeriodID:        period.ID,
				Period:          period.Key,
				Applied:         applied,
				PreviousBalance: period.Balance(),
				NewBalance:      newBalance,
				Status:          StatusFor(period.DueAmount, period.PaidAmount.Add(applied)),
			})
			remaining = remaining.Sub(applied)
		}

		if !conflicted {
			break
		}
		if attempt+1 >= a.maxRetries() {
			receipt.Remainder = remaining
			return receipt, &AllocationConflictError{
				TenantID:    tenantID,
				LeaseID:     lease.ID,
				Unallocated: remaining,
				Attempts:    attempt + 1,
			}
		}
	}

	receipt.Remainder = remaining
	if !receipt.TotalApplied().Add(receipt.Remainder).Equal(amount) {
		// Conservation must hold; a violation is a bug, not a state.
		return receipt, fmt.Errorf("allocation for tenant %s leaked currency: applied %s + remainder %s != %s",
			tenantID, receipt.TotalApplied(), receipt.Remainder, amount)
	}
	return receipt, nil
}
