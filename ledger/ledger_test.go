package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/rento/rent-ledger/ledger"
	"github.com/rento/rent-ledger/ledger/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func rent(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// testLease is a 2-year prepaid lease at 1200/month, due on the 1st.
func testLease() *ledger.Lease {
	return &ledger.Lease{
		ID:          "lease-1",
		TenantID:    "tenant-1",
		PropertyID:  "prop-1",
		MonthlyRent: rent("1200.00"),
		Start:       date(2024, time.January, 1),
		End:         date(2025, time.December, 31),
		DueDay:      1,
		Mode:        ledger.BillingPrepaid,
	}
}

// =============================================================================
// MATERIALIZATION TESTS
// =============================================================================

func TestEnsurePeriods_CreatesMonthsFromLeaseStart(t *testing.T) {
	// GIVEN: A lease starting January 2024 and an empty ledger
	// WHEN: Ensuring periods as of mid-April 2024
	// THEN: January through April exist, unpaid, at the lease's rent

	mem := store.NewMemory()
	rl := ledger.NewRentLedger(mem)
	ctx := context.Background()

	created, err := rl.EnsurePeriods(ctx, testLease(), date(2024, time.April, 15))
	require.NoError(t, err)
	assert.Equal(t, 4, created)

	periods, err := mem.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	require.Len(t, periods, 4)

	assert.Equal(t, ledger.PeriodKey{Year: 2024, Month: time.January}, periods[0].Key)
	assert.Equal(t, ledger.PeriodKey{Year: 2024, Month: time.April}, periods[3].Key)
	for _, p := range periods {
		assert.Equal(t, ledger.StatusUnpaid, p.Status)
		assert.True(t, p.DueAmount.Equal(rent("1200.00")))
		assert.True(t, p.PaidAmount.IsZero())
	}
}

func TestEnsurePeriods_Idempotent(t *testing.T) {
	// GIVEN: Periods already materialized through April
	// WHEN: Ensuring periods again for the same date
	// THEN: Nothing is created and nothing changes

	mem := store.NewMemory()
	rl := ledger.NewRentLedger(mem)
	ctx := context.Background()
	asOf := date(2024, time.April, 15)

	_, err := rl.EnsurePeriods(ctx, testLease(), asOf)
	require.NoError(t, err)

	created, err := rl.EnsurePeriods(ctx, testLease(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	periods, err := mem.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	assert.Len(t, periods, 4)
}

func TestEnsurePeriods_BackfillBoundedToTwelveMonths(t *testing.T) {
	// GIVEN: A lease that started January 2020
	// WHEN: Ensuring periods as of June 2024
	// THEN: Only the last 12 months back are created, not four years

	lease := testLease()
	lease.Start = date(2020, time.January, 1)
	lease.End = date(2026, time.December, 31)

	mem := store.NewMemory()
	rl := ledger.NewRentLedger(mem)
	ctx := context.Background()

	created, err := rl.EnsurePeriods(ctx, lease, date(2024, time.June, 15))
	require.NoError(t, err)
	// June 2023 (12 months back) through June 2024 inclusive.
	assert.Equal(t, 13, created)

	periods, err := mem.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.PeriodKey{Year: 2023, Month: time.June}, periods[0].Key)
}

func TestEnsurePeriods_NeverBeyondLeaseEnd(t *testing.T) {
	// GIVEN: A lease that ended in March 2024
	// WHEN: Ensuring periods as of June 2024
	// THEN: Nothing past March is created

	lease := testLease()
	lease.End = date(2024, time.March, 31)

	mem := store.NewMemory()
	rl := ledger.NewRentLedger(mem)
	ctx := context.Background()

	_, err := rl.EnsurePeriods(ctx, lease, date(2024, time.June, 15))
	require.NoError(t, err)

	periods, err := mem.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	require.NotEmpty(t, periods)
	last := periods[len(periods)-1]
	assert.Equal(t, ledger.PeriodKey{Year: 2024, Month: time.March}, last.Key)
}

func TestEnsurePeriods_BeforeLeaseStart(t *testing.T) {
	// GIVEN: A lease starting July 2024
	// WHEN: Ensuring periods as of March 2024
	// THEN: No periods exist yet

	lease := testLease()
	lease.Start = date(2024, time.July, 1)

	mem := store.NewMemory()
	rl := ledger.NewRentLedger(mem)

	created, err := rl.EnsurePeriods(context.Background(), lease, date(2024, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestEnsurePeriods_DuplicateInsertIsNoOp(t *testing.T) {
	// GIVEN: A period row already inserted by a concurrent materializer
	// WHEN: EnsurePeriods runs over the same range
	// THEN: The existing row survives untouched and the rest are created

	mem := store.NewMemory()
	rl := ledger.NewRentLedger(mem)
	ctx := context.Background()

	existing := ledger.RentPeriod{
		ID:         "pre-existing",
		LeaseID:    "lease-1",
		TenantID:   "tenant-1",
		Key:        ledger.PeriodKey{Year: 2024, Month: time.February},
		DueAmount:  rent("1100.00"), // older rent level
		PaidAmount: rent("1100.00"),
		Status:     ledger.StatusPaid,
		DueDate:    date(2024, time.February, 1),
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, mem.InsertPeriod(ctx, existing))

	created, err := rl.EnsurePeriods(ctx, testLease(), date(2024, time.March, 15))
	require.NoError(t, err)
	assert.Equal(t, 2, created, "January and March; February already existed")

	periods, err := mem.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	require.Len(t, periods, 3)
	feb := periods[1]
	assert.Equal(t, ledger.PeriodID("pre-existing"), feb.ID)
	assert.True(t, feb.DueAmount.Equal(rent("1100.00")), "existing due amount never rewritten")
	assert.Equal(t, ledger.StatusPaid, feb.Status)
}

func TestEnsurePeriods_PostpaidDueDates(t *testing.T) {
	// GIVEN: A postpaid lease due on the 15th
	// WHEN: Periods are materialized
	// THEN: Each period's due date lands in the following month

	lease := testLease()
	lease.Mode = ledger.BillingPostpaid
	lease.DueDay = 15

	mem := store.NewMemory()
	rl := ledger.NewRentLedger(mem)
	ctx := context.Background()

	_, err := rl.EnsurePeriods(ctx, lease, date(2024, time.February, 20))
	require.NoError(t, err)

	periods, err := mem.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, date(2024, time.February, 15), periods[0].DueDate, "January rent due February 15")
	assert.Equal(t, date(2024, time.March, 15), periods[1].DueDate)
}

// =============================================================================
// OUTSTANDING / STATUS TESTS
// =============================================================================

func TestOutstanding_OldestFirstAndExcludesPaid(t *testing.T) {
	// GIVEN: Three periods with January fully paid
	// WHEN: Reading outstanding periods
	// THEN: February and March, oldest first

	mem := store.NewMemory()
	rl := ledger.NewRentLedger(mem)
	ctx := context.Background()

	_, err := rl.EnsurePeriods(ctx, testLease(), date(2024, time.March, 10))
	require.NoError(t, err)

	all, err := mem.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	require.NoError(t, rl.Apply(ctx, all[0], rent("1200.00"), date(2024, time.January, 2)))

	outstanding, err := rl.Outstanding(ctx, "lease-1")
	require.NoError(t, err)
	require.Len(t, outstanding, 2)
	assert.Equal(t, time.February, outstanding[0].Key.Month)
	assert.Equal(t, time.March, outstanding[1].Key.Month)
}

func TestStatusFor_Transitions(t *testing.T) {
	due := rent("1200.00")

	assert.Equal(t, ledger.StatusUnpaid, ledger.StatusFor(due, decimal.Zero))
	assert.Equal(t, ledger.StatusPartial, ledger.StatusFor(due, rent("600.00")))
	assert.Equal(t, ledger.StatusPaid, ledger.StatusFor(due, rent("1200.00")))
}
