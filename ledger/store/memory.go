// Package store provides in-memory implementations of the ledger's
// persistence interfaces, used by tests and local development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rento/rent-ledger/ledger"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MEMORY STORE - PeriodStore + PaymentStore + directories
// =============================================================================

type periodKey struct {
	LeaseID ledger.LeaseID
	Key     ledger.PeriodKey
}

type Memory struct {
	mu       sync.RWMutex
	periods  map[ledger.PeriodID]*ledger.RentPeriod
	byKey    map[periodKey]ledger.PeriodID
	payments []ledger.Payment
	leases   map[ledger.TenantID]ledger.Lease
	tenants  map[ledger.TenantID]ledger.TenantInfo
}

func NewMemory() *Memory {
	return &Memory{
		periods: make(map[ledger.PeriodID]*ledger.RentPeriod),
		byKey:   make(map[periodKey]ledger.PeriodID),
		leases:  make(map[ledger.TenantID]ledger.Lease),
		tenants: make(map[ledger.TenantID]ledger.TenantInfo),
	}
}

// -----------------------------------------------------------------------------
// PeriodStore
// -----------------------------------------------------------------------------

func (m *Memory) InsertPeriod(_ context.Context, p ledger.RentPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := periodKey{LeaseID: p.LeaseID, Key: p.Key}
	if _, exists := m.byKey[k]; exists {
		return ledger.ErrDuplicatePeriod
	}
	cp := p
	m.periods[p.ID] = &cp
	m.byKey[k] = p.ID
	return nil
}

func (m *Memory) PeriodsByLease(_ context.Context, leaseID ledger.LeaseID) ([]ledger.RentPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.RentPeriod
	for _, p := range m.periods {
		if p.LeaseID == leaseID {
			result = append(result, *p)
		}
	}
	sortPeriods(result)
	return result, nil
}

func (m *Memory) OutstandingByLease(_ context.Context, leaseID ledger.LeaseID) ([]ledger.RentPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.RentPeriod
	for _, p := range m.periods {
		if p.LeaseID == leaseID && p.Outstanding() {
			result = append(result, *p)
		}
	}
	sortPeriods(result)
	return result, nil
}

func (m *Memory) OutstandingThrough(_ context.Context, cutoff ledger.PeriodKey) ([]ledger.RentPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.RentPeriod
	for _, p := range m.periods {
		if p.Outstanding() && !p.Key.After(cutoff) {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TenantID != result[j].TenantID {
			return result[i].TenantID < result[j].TenantID
		}
		if result[i].LeaseID != result[j].LeaseID {
			return result[i].LeaseID < result[j].LeaseID
		}
		return result[i].Key.Before(result[j].Key)
	})
	return result, nil
}

func (m *Memory) ApplyPayment(_ context.Context, id ledger.PeriodID, amount decimal.Decimal, paidAt time.Time, expectedPaid decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.periods[id]
	if !ok {
		return ledger.ErrStoreUnavailable
	}
	if !p.PaidAmount.Equal(expectedPaid) {
		return ledger.ErrConcurrentModification
	}
	newPaid := p.PaidAmount.Add(amount)
	if newPaid.GreaterThan(p.DueAmount) {
		return ledger.ErrOverApplied
	}

	p.PaidAmount = newPaid
	p.Status = ledger.StatusFor(p.DueAmount, newPaid)
	t := paidAt
	p.LastPaymentAt = &t
	return nil
}

func sortPeriods(ps []ledger.RentPeriod) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Key.Before(ps[j].Key) })
}

// -----------------------------------------------------------------------------
// PaymentStore
// -----------------------------------------------------------------------------

func (m *Memory) RecordPayment(_ context.Context, p ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, p)
	return nil
}

func (m *Memory) Payments(_ context.Context) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ledger.Payment{}, m.payments...), nil
}

func (m *Memory) PaymentsByTenant(_ context.Context, tenantID ledger.TenantID) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Payment
	for _, p := range m.payments {
		if p.TenantID == tenantID {
			result = append(result, p)
		}
	}
	return result, nil
}

// -----------------------------------------------------------------------------
// Directories (seeded by tests)
// -----------------------------------------------------------------------------

func (m *Memory) PutLease(l ledger.Lease) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leases[l.TenantID] = l
}

func (m *Memory) PutTenant(id ledger.TenantID, info ledger.TenantInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[id] = info
}

func (m *Memory) LeaseByTenant(_ context.Context, tenantID ledger.TenantID) (*ledger.Lease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.leases[tenantID]
	if !ok {
		return nil, ledger.ErrLeaseNotFound
	}
	cp := l
	return &cp, nil
}

func (m *Memory) Leases(_ context.Context) ([]ledger.Lease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Lease, 0, len(m.leases))
	for _, l := range m.leases {
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) TenantInfo(_ context.Context, tenantID ledger.TenantID) (ledger.TenantInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.tenants[tenantID]
	if !ok {
		return ledger.TenantInfo{Name: "Unknown", PropertyName: "Unknown"}, nil
	}
	return info, nil
}
