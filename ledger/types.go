/*
Package ledger implements the rent ledger and payment allocation core.

PURPOSE:
  For each lease, materialize the sequence of monthly billing periods,
  apply incoming payments to outstanding periods oldest-first, track
  partial payment state per period, and answer "what is owed, by whom,
  since when" for collections.

KEY CONCEPTS IN THIS FILE (types.go):
  - Lease: external, read-only billing terms for a tenant
  - PeriodKey: (year, month) identity of one billing period
  - RentPeriod: one month's rent obligation with due/paid/balance state
  - Payment: an immutable incoming payment record
  - AllocationReceipt: how one payment was distributed across periods

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all money, no float arithmetic
  2. Status is derived: a period's status is a pure function of balance
  3. Periods are mutated only by the allocation engine
  4. Payments are append-only; allocation is a derived side effect

SEE ALSO:
  - calendar.go: billing period and due date arithmetic
  - ledger.go: period materialization and outstanding queries
  - allocation.go: the oldest-first settlement algorithm
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type LeaseID string
type PeriodID string
type PaymentID string

// =============================================================================
// LEASE - External billing terms (read-only to this core)
// =============================================================================

type BillingMode string

const (
	// BillingPrepaid means rent is due at the start of the service month.
	BillingPrepaid BillingMode = "prepaid"

	// BillingPostpaid means rent is due after the service month ends.
	BillingPostpaid BillingMode = "postpaid"
)

// Lease carries the billing terms this core needs. It is owned by the
// lease service; the ledger never writes it.
type Lease struct {
	ID          LeaseID
	TenantID    TenantID
	PropertyID  string
	MonthlyRent decimal.Decimal
	Start       time.Time
	End         time.Time
	DueDay      int // 1-31, clamped to month length
	Mode        BillingMode
	Status      string
}

// =============================================================================
// PERIOD KEY - (year, month) identity of a billing period
// =============================================================================

type PeriodKey struct {
	Year  int
	Month time.Month
}

func KeyOf(t time.Time) PeriodKey {
	return PeriodKey{Year: t.Year(), Month: t.Month()}
}

func (k PeriodKey) Before(other PeriodKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

func (k PeriodKey) After(other PeriodKey) bool { return other.Before(k) }
func (k PeriodKey) Equal(other PeriodKey) bool { return k == other }

// Next returns the following calendar month.
func (k PeriodKey) Next() PeriodKey {
	if k.Month == time.December {
		return PeriodKey{Year: k.Year + 1, Month: time.January}
	}
	return PeriodKey{Year: k.Year, Month: k.Month + 1}
}

// Start returns midnight UTC on the first day of the period's month.
func (k PeriodKey) Start() time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
}

func (k PeriodKey) String() string {
	return k.Start().Format("2006-01")
}

// =============================================================================
// RENT PERIOD - One calendar month's rent obligation
// =============================================================================

type PeriodStatus string

const (
	StatusUnpaid  PeriodStatus = "unpaid"
	StatusPartial PeriodStatus = "partial"
	StatusPaid    PeriodStatus = "paid"
)

// StatusFor derives period status from due and paid amounts.
// balance == due => unpaid; 0 < balance < due => partial; balance == 0 => paid.
func StatusFor(due, paid decimal.Decimal) PeriodStatus {
	switch {
	case paid.IsZero():
		return StatusUnpaid
	case paid.GreaterThanOrEqual(due):
		return StatusPaid
	default:
		return StatusPartial
	}
}

// RentPeriod is one row per (lease, month, year). DueAmount is copied from
// the lease's monthly rent at creation time and never retroactively updated.
type RentPeriod struct {
	ID            PeriodID
	LeaseID       LeaseID
	TenantID      TenantID
	Key           PeriodKey
	DueAmount     decimal.Decimal
	PaidAmount    decimal.Decimal
	Status        PeriodStatus
	DueDate       time.Time
	LastPaymentAt *time.Time
	CreatedAt     time.Time
}

// Balance is due minus paid. Never negative: PaidAmount <= DueAmount is a
// store-enforced invariant.
func (p RentPeriod) Balance() decimal.Decimal {
	return p.DueAmount.Sub(p.PaidAmount)
}

func (p RentPeriod) Outstanding() bool {
	return p.Status == StatusUnpaid || p.Status == StatusPartial
}

// =============================================================================
// PAYMENT - Immutable incoming payment record (append-only)
// =============================================================================

type Payment struct {
	ID          PaymentID
	TenantID    TenantID
	Amount      decimal.Decimal
	Method      string
	Status      string
	PaymentDate time.Time
	CreatedAt   time.Time
}

// =============================================================================
// ALLOCATION RECEIPT - How one payment was distributed (not persisted)
// =============================================================================

// AllocationLine records the application of part of a payment to one period.
type AllocationLine struct {
	PeriodID        PeriodID
	Period          PeriodKey
	Applied         decimal.Decimal
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	Status          PeriodStatus
}

// AllocationReceipt is the ordered outcome of allocating one payment.
// Lines appear oldest period first. Remainder is any amount left after all
// outstanding periods were settled; it is reported, never persisted as
// credit against future periods.
type AllocationReceipt struct {
	TenantID    TenantID
	LeaseID     LeaseID
	Amount      decimal.Decimal
	PaymentDate time.Time
	Lines       []AllocationLine
	Remainder   decimal.Decimal
}

func (r *AllocationReceipt) TotalApplied() decimal.Decimal {
	total := decimal.Zero
	for _, line := range r.Lines {
		total = total.Add(line.Applied)
	}
	return total
}

// =============================================================================
// ARREARS - Per-tenant overdue summary
// =============================================================================

// TenantInfo carries display names used to decorate reports. Lookup failure
// degrades to "Unknown" placeholders, never to a report failure.
type TenantInfo struct {
	Name         string
	PropertyName string
}

// PeriodArrears is the per-period detail inside a tenant's arrears entry.
type PeriodArrears struct {
	Period      PeriodKey
	DueDate     time.Time
	Expected    decimal.Decimal
	Paid        decimal.Decimal
	Balance     decimal.Decimal
	Partial     bool
	DaysOverdue int
}

// TenantArrears is one overdue-report entry: a tenant with at least one
// outstanding period as of the report cutoff.
type TenantArrears struct {
	TenantID           TenantID
	TenantName         string
	PropertyName       string
	LeaseID            LeaseID
	BillingMode        BillingMode
	DueDay             int
	PeriodsOutstanding int
	TotalBalance       decimal.Decimal
	OldestPeriod       PeriodKey
	LastPaymentAt      *time.Time
	Periods            []PeriodArrears
}
