/*
ledger.go - Rent period materialization and outstanding queries

PURPOSE:
  The RentLedger owns period rows: it materializes missing billing periods
  on demand and serves the ordered outstanding-period reads the allocation
  engine settles against.

CRITICAL INVARIANTS:
  1. IDEMPOTENT: EnsurePeriods never touches an existing row. Re-running it
     creates no rows and changes no balances.
  2. NO DUPLICATES: the (lease_id, year, month) unique key is the arbiter
     under concurrency; an insert conflict is a benign no-op.
  3. BOUNDED BACKFILL: materialization reaches at most 12 months back from
     asOf. Older missing periods are not retroactively created - this
     bounds backfill cost and matches the reporting horizon.
  4. FIXED DUE AMOUNT: a period's due_amount is the lease's monthly rent at
     creation time. Later rent changes never rewrite history.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// backfillHorizonMonths bounds how far back EnsurePeriods materializes
// missing periods.
const backfillHorizonMonths = 12

// RentLedger materializes and reads rent periods for leases.
type RentLedger struct {
	Periods PeriodStore
}

func NewRentLedger(periods PeriodStore) *RentLedger {
	return &RentLedger{Periods: periods}
}

// EnsurePeriods idempotently creates any missing period rows for the lease
// from max(lease.Start, asOf - 12 months) through min(lease.End, asOf).
// Returns how many rows were created. Safe to call repeatedly and
// concurrently: existing rows are skipped, and insert conflicts from a
// concurrent caller are treated as already-created.
func (l *RentLedger) EnsurePeriods(ctx context.Context, lease *Lease, asOf time.Time) (int, error) {
	from := maxTime(lease.Start, asOf.AddDate(0, -backfillHorizonMonths, 0))
	to := minTime(lease.End, asOf)
	if to.Before(from) {
		return 0, nil
	}

	existing, err := l.Periods.PeriodsByLease(ctx, lease.ID)
	if err != nil {
		return 0, fmt.Errorf("loading periods for lease %s: %w", lease.ID, err)
	}
	have := make(map[PeriodKey]bool, len(existing))
	for _, p := range existing {
		have[p.Key] = true
	}

	created := 0
	now := time.Now().UTC()
	for _, key := range PeriodsBetween(from, to) {
		if have[key] {
			continue
		}

		period := RentPeriod{
			ID:         PeriodID(uuid.NewString()),
			LeaseID:    lease.ID,
			TenantID:   lease.TenantID,
			Key:        key,
			DueAmount:  lease.MonthlyRent,
			PaidAmount: decimal.Zero,
			Status:     StatusUnpaid,
			DueDate:    DueDateOf(key, lease.DueDay, lease.Mode),
			CreatedAt:  now,
		}

		err := l.Periods.InsertPeriod(ctx, period)
		if errors.Is(err, ErrDuplicatePeriod) {
			// Lost the race to a concurrent materialization. Fine.
			continue
		}
		if err != nil {
			return created, fmt.Errorf("creating period %s for lease %s: %w", key, lease.ID, err)
		}
		created++
	}
	return created, nil
}

// Outstanding returns the lease's unpaid and partial periods, oldest
// first. Oldest debt is always settled before newer debt, regardless of
// payment date.
func (l *RentLedger) Outstanding(ctx context.Context, leaseID LeaseID) ([]RentPeriod, error) {
	return l.Periods.OutstandingByLease(ctx, leaseID)
}

// Apply settles amount against one period, conditioned on the balance
// being unchanged since period was read.
func (l *RentLedger) Apply(ctx context.Context, period RentPeriod, amount decimal.Decimal, paidAt time.Time) error {
	return l.Periods.ApplyPayment(ctx, period.ID, amount, paidAt, period.PaidAmount)
}
