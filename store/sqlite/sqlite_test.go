package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/rento/rent-ledger/ledger"
	"github.com/rento/rent-ledger/store/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func amt(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func period(id string, leaseID string, tenantID string, year int, month time.Month) ledger.RentPeriod {
	key := ledger.PeriodKey{Year: year, Month: month}
	return ledger.RentPeriod{
		ID:         ledger.PeriodID(id),
		LeaseID:    ledger.LeaseID(leaseID),
		TenantID:   ledger.TenantID(tenantID),
		Key:        key,
		DueAmount:  amt("1200.00"),
		PaidAmount: decimal.Zero,
		Status:     ledger.StatusUnpaid,
		DueDate:    day(year, month, 1),
		CreatedAt:  time.Now().UTC(),
	}
}

// =============================================================================
// PERIOD STORE TESTS
// =============================================================================

func TestInsertPeriod_DuplicateKeyRejected(t *testing.T) {
	// GIVEN: A period row for (lease-1, 2024, March)
	// WHEN: Inserting another row for the same lease and month
	// THEN: ErrDuplicatePeriod, and the original row survives

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertPeriod(ctx, period("p1", "lease-1", "tenant-1", 2024, time.March)))

	err := store.InsertPeriod(ctx, period("p2", "lease-1", "tenant-1", 2024, time.March))
	assert.ErrorIs(t, err, ledger.ErrDuplicatePeriod)

	periods, err := store.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, ledger.PeriodID("p1"), periods[0].ID)
}

func TestInsertPeriod_SameMonthDifferentLease(t *testing.T) {
	// GIVEN: lease-1 has March 2024
	// WHEN: lease-2 inserts March 2024
	// THEN: Both rows exist; uniqueness is per lease

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertPeriod(ctx, period("p1", "lease-1", "tenant-1", 2024, time.March)))
	require.NoError(t, store.InsertPeriod(ctx, period("p2", "lease-2", "tenant-2", 2024, time.March)))
}

func TestApplyPayment_UpdatesBalanceAndStatus(t *testing.T) {
	// GIVEN: An unpaid period at 1200
	// WHEN: Applying 500, then the remaining 700
	// THEN: Status moves unpaid -> partial -> paid and timestamps stick

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertPeriod(ctx, period("p1", "lease-1", "tenant-1", 2024, time.March)))

	paidAt := day(2024, time.March, 10)
	require.NoError(t, store.ApplyPayment(ctx, "p1", amt("500.00"), paidAt, decimal.Zero))

	periods, err := store.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	p := periods[0]
	assert.True(t, p.PaidAmount.Equal(amt("500.00")))
	assert.Equal(t, ledger.StatusPartial, p.Status)
	require.NotNil(t, p.LastPaymentAt)

	require.NoError(t, store.ApplyPayment(ctx, "p1", amt("700.00"), paidAt, amt("500.00")))

	periods, err = store.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPaid, periods[0].Status)
	assert.True(t, periods[0].Balance().IsZero())
}

func TestApplyPayment_StaleExpectationConflicts(t *testing.T) {
	// GIVEN: A period whose paid amount moved after it was read
	// WHEN: Applying with the stale expected value
	// THEN: ErrConcurrentModification and no change

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertPeriod(ctx, period("p1", "lease-1", "tenant-1", 2024, time.March)))

	paidAt := day(2024, time.March, 10)
	require.NoError(t, store.ApplyPayment(ctx, "p1", amt("500.00"), paidAt, decimal.Zero))

	// A second writer still believes paid is zero.
	err := store.ApplyPayment(ctx, "p1", amt("700.00"), paidAt, decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)

	periods, err := store.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	assert.True(t, periods[0].PaidAmount.Equal(amt("500.00")), "losing write changed nothing")
}

func TestApplyPayment_OverApplicationRejected(t *testing.T) {
	// GIVEN: A period with 1200 due
	// WHEN: Applying 1300
	// THEN: ErrOverApplied

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertPeriod(ctx, period("p1", "lease-1", "tenant-1", 2024, time.March)))

	err := store.ApplyPayment(ctx, "p1", amt("1300.00"), day(2024, time.March, 10), decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrOverApplied)
}

func TestOutstanding_FiltersAndOrders(t *testing.T) {
	// GIVEN: Three periods with February fully paid
	// WHEN: Reading outstanding periods for the lease
	// THEN: January and March, oldest first

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertPeriod(ctx, period("p3", "lease-1", "tenant-1", 2024, time.March)))
	require.NoError(t, store.InsertPeriod(ctx, period("p1", "lease-1", "tenant-1", 2024, time.January)))
	require.NoError(t, store.InsertPeriod(ctx, period("p2", "lease-1", "tenant-1", 2024, time.February)))

	require.NoError(t, store.ApplyPayment(ctx, "p2", amt("1200.00"), day(2024, time.February, 5), decimal.Zero))

	outstanding, err := store.OutstandingByLease(ctx, "lease-1")
	require.NoError(t, err)
	require.Len(t, outstanding, 2)
	assert.Equal(t, time.January, outstanding[0].Key.Month)
	assert.Equal(t, time.March, outstanding[1].Key.Month)
}

func TestOutstandingThrough_CutoffAcrossYears(t *testing.T) {
	// GIVEN: Outstanding periods in December 2023 and February 2024
	// WHEN: Reading through January 2024
	// THEN: Only December 2023 qualifies

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertPeriod(ctx, period("p1", "lease-1", "tenant-1", 2023, time.December)))
	require.NoError(t, store.InsertPeriod(ctx, period("p2", "lease-1", "tenant-1", 2024, time.February)))

	rows, err := store.OutstandingThrough(ctx, ledger.PeriodKey{Year: 2024, Month: time.January})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ledger.PeriodKey{Year: 2023, Month: time.December}, rows[0].Key)
}

// =============================================================================
// PAYMENT STORE TESTS
// =============================================================================

func TestPayments_RecordAndQuery(t *testing.T) {
	// GIVEN: Payments from two tenants
	// WHEN: Listing all and per tenant
	// THEN: Rows round-trip with amounts intact

	store := newTestStore(t)
	ctx := context.Background()

	p1 := ledger.Payment{
		ID: "pay-1", TenantID: "tenant-1", Amount: amt("1200.00"),
		Method: "bank_transfer", Status: "completed",
		PaymentDate: day(2024, time.March, 5), CreatedAt: time.Now().UTC(),
	}
	p2 := ledger.Payment{
		ID: "pay-2", TenantID: "tenant-2", Amount: amt("850.50"),
		Method: "cash", Status: "completed",
		PaymentDate: day(2024, time.March, 7), CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.RecordPayment(ctx, p1))
	require.NoError(t, store.RecordPayment(ctx, p2))

	all, err := store.Payments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := store.PaymentsByTenant(ctx, "tenant-2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.True(t, mine[0].Amount.Equal(amt("850.50")))
	assert.Equal(t, "cash", mine[0].Method)
}

// =============================================================================
// DIRECTORY TESTS
// =============================================================================

func TestLeaseDirectory_LatestLeaseWins(t *testing.T) {
	// GIVEN: A tenant with an expired lease and a newer one
	// WHEN: Resolving the lease
	// THEN: The most recent lease_start wins

	store := newTestStore(t)
	ctx := context.Background()

	old := ledger.Lease{
		ID: "lease-old", TenantID: "tenant-1", MonthlyRent: amt("1000.00"),
		Start: day(2022, time.January, 1), End: day(2023, time.December, 31),
		DueDay: 1, Mode: ledger.BillingPrepaid,
	}
	current := ledger.Lease{
		ID: "lease-new", TenantID: "tenant-1", MonthlyRent: amt("1200.00"),
		Start: day(2024, time.January, 1), End: day(2025, time.December, 31),
		DueDay: 1, Mode: ledger.BillingPrepaid,
	}
	require.NoError(t, store.SaveLease(ctx, old))
	require.NoError(t, store.SaveLease(ctx, current))

	lease, err := store.LeaseByTenant(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.LeaseID("lease-new"), lease.ID)
	assert.True(t, lease.MonthlyRent.Equal(amt("1200.00")))
}

func TestLeaseDirectory_UnknownTenant(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LeaseByTenant(context.Background(), "nobody")
	assert.ErrorIs(t, err, ledger.ErrLeaseNotFound)
}

func TestTenantDirectory_UnknownDegradesToPlaceholders(t *testing.T) {
	// GIVEN: No tenant row
	// WHEN: Looking up display names
	// THEN: "Unknown" placeholders, no error

	store := newTestStore(t)

	info, err := store.TenantInfo(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", info.Name)
	assert.Equal(t, "Unknown", info.PropertyName)
}

func TestTenantDirectory_SaveAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTenant(ctx, "tenant-1", ledger.TenantInfo{Name: "Alice Adams", PropertyName: "Hilltop"}))

	info, err := store.TenantInfo(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice Adams", info.Name)
	assert.Equal(t, "Hilltop", info.PropertyName)
}
