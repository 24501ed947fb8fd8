// Package events defines the allocation events this service publishes
// and the publisher contract. Publishing is best-effort: a failed publish
// is logged by the caller and never fails the allocation it describes.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const TopicPaymentAllocated = "payment_allocated"

type Publisher interface {
	Publish(topic string, event any) error
}

// AllocationLine mirrors one receipt line in the published event.
type AllocationLine struct {
	PeriodID string          `json:"period_id"`
	Period   string          `json:"period"`
	Applied  decimal.Decimal `json:"applied"`
	Status   string          `json:"status"`
}

// PaymentAllocated is emitted after a payment has been allocated across
// rent periods. Remainder is the unallocated surplus, reported so a
// downstream consumer can decide what to do with it.
type PaymentAllocated struct {
	PaymentID   string           `json:"payment_id"`
	TenantID    string           `json:"tenant_id"`
	LeaseID     string           `json:"lease_id"`
	Amount      decimal.Decimal  `json:"amount"`
	Applied     decimal.Decimal  `json:"applied"`
	Remainder   decimal.Decimal  `json:"remainder"`
	Lines       []AllocationLine `json:"lines"`
	PaymentDate time.Time        `json:"payment_date"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// Noop discards events. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(string, any) error { return nil }
