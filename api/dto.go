/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Money travels as strings ("1200.00"), parsed into decimal.Decimal at the
  handler boundary. shopspring/decimal marshals to a JSON string, which
  keeps clients away from float rounding.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT TYPES
// =============================================================================

// RecordPaymentRequest is the request to record and allocate a payment.
type RecordPaymentRequest struct {
	TenantID    string `json:"tenant_id"`
	Amount      string `json:"amount"`
	Method      string `json:"method,omitempty"`
	PaymentDate string `json:"payment_date,omitempty"` // YYYY-MM-DD, defaults to today
}

// PaymentDTO represents a recorded payment, decorated with display names
// where the listing endpoint resolves them.
type PaymentDTO struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	TenantName   string          `json:"tenant_name,omitempty"`
	PropertyName string          `json:"property_name,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Method       string          `json:"method,omitempty"`
	Status       string          `json:"status,omitempty"`
	PaymentDate  string          `json:"payment_date"`
	CreatedAt    string          `json:"created_at,omitempty"`
}

// RecordPaymentResponse returns the stored payment together with the
// allocation outcome.
type RecordPaymentResponse struct {
	Payment    PaymentDTO            `json:"payment"`
	Allocation *AllocationReceiptDTO `json:"allocation"`
}

// =============================================================================
// ALLOCATION TYPES
// =============================================================================

// AllocationLineDTO is one period settled (fully or partially) by a payment.
type AllocationLineDTO struct {
	PeriodID        string          `json:"period_id"`
	Period          string          `json:"period"` // "2024-03"
	Applied         decimal.Decimal `json:"applied"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	Status          string          `json:"status"`
}

// AllocationReceiptDTO reports how a payment was distributed.
type AllocationReceiptDTO struct {
	TenantID     string              `json:"tenant_id"`
	LeaseID      string              `json:"lease_id"`
	Amount       decimal.Decimal     `json:"amount"`
	TotalApplied decimal.Decimal     `json:"total_applied"`
	Remainder    decimal.Decimal     `json:"remainder"`
	Lines        []AllocationLineDTO `json:"lines"`
}

// =============================================================================
// LEDGER TYPES
// =============================================================================

// PeriodDTO represents one rent period in a tenant's ledger.
type PeriodDTO struct {
	ID            string          `json:"id"`
	LeaseID       string          `json:"lease_id"`
	Period        string          `json:"period"`
	DueAmount     decimal.Decimal `json:"due_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Balance       decimal.Decimal `json:"balance"`
	Status        string          `json:"status"`
	DueDate       string          `json:"due_date"`
	LastPaymentAt *string         `json:"last_payment_at,omitempty"`
}

// TenantLedgerDTO is the full period history for a tenant's lease.
type TenantLedgerDTO struct {
	TenantID     string          `json:"tenant_id"`
	LeaseID      string          `json:"lease_id"`
	TotalDue     decimal.Decimal `json:"total_due"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	Periods      []PeriodDTO     `json:"periods"`
}

// =============================================================================
// ARREARS TYPES
// =============================================================================

// PeriodArrearsDTO is per-period detail in the overdue report.
type PeriodArrearsDTO struct {
	Period      string          `json:"period"`
	DueDate     string          `json:"due_date"`
	Expected    decimal.Decimal `json:"expected"`
	Paid        decimal.Decimal `json:"paid"`
	Balance     decimal.Decimal `json:"balance"`
	Partial     bool            `json:"partial"`
	DaysOverdue int             `json:"days_overdue"`
}

// TenantArrearsDTO is one tenant's entry in the overdue report.
type TenantArrearsDTO struct {
	TenantID           string             `json:"tenant_id"`
	TenantName         string             `json:"tenant_name"`
	PropertyName       string             `json:"property_name"`
	LeaseID            string             `json:"lease_id"`
	BillingMode        string             `json:"billing_mode"`
	DueDay             int                `json:"due_day"`
	PeriodsOutstanding int                `json:"periods_outstanding"`
	TotalBalance       decimal.Decimal    `json:"total_balance"`
	OldestPeriod       string             `json:"oldest_period"`
	LastPaymentAt      *string            `json:"last_payment_at,omitempty"`
	Periods            []PeriodArrearsDTO `json:"periods"`
}

// OverdueReportDTO wraps the report with its cutoff and totals.
type OverdueReportDTO struct {
	AsOf         string             `json:"as_of"`
	TenantCount  int                `json:"tenant_count"`
	TotalBalance decimal.Decimal    `json:"total_balance"`
	Tenants      []TenantArrearsDTO `json:"tenants"`
}

// =============================================================================
// ADMIN TYPES
// =============================================================================

// EnsurePeriodsRequest triggers period backfill for one tenant's lease or,
// when tenant_id is empty, for every known lease.
type EnsurePeriodsRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
	AsOf     string `json:"as_of,omitempty"` // YYYY-MM-DD, defaults to today
}

// EnsurePeriodsResponse reports backfill results per lease.
type EnsurePeriodsResponse struct {
	LeasesProcessed int `json:"leases_processed"`
	PeriodsCreated  int `json:"periods_created"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// AllocationConflictResponse is the 409 body when allocation retries are
// exhausted. Period updates that committed before the conflict stay
// committed, so the partial receipt is included: callers need to see what
// already applied before retrying the rest.
type AllocationConflictResponse struct {
	Error      string                `json:"error"`
	Details    string                `json:"details,omitempty"`
	Payment    PaymentDTO            `json:"payment"`
	Allocation *AllocationReceiptDTO `json:"allocation"`
}
