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
// TEST SETUP
// =============================================================================

func newTestAllocator(t *testing.T) (*ledger.Allocator, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.PutLease(*testLease())

	rl := ledger.NewRentLedger(mem)
	return ledger.NewAllocator(rl, mem), mem
}

func requireConservation(t *testing.T, receipt *ledger.AllocationReceipt, amount decimal.Decimal) {
	t.Helper()
	require.NotNil(t, receipt)
	total := receipt.TotalApplied().Add(receipt.Remainder)
	assert.True(t, total.Equal(amount),
		"conservation: applied %s + remainder %s != %s", receipt.TotalApplied(), receipt.Remainder, amount)
}

// =============================================================================
// BASIC ALLOCATION TESTS
// =============================================================================

func TestAllocate_SettlesOldestFirst(t *testing.T) {
	// GIVEN: Three unpaid months at 1200 each
	// WHEN: Paying 2400 in March
	// THEN: January and February are paid in full; March stays unpaid

	allocator, mem := newTestAllocator(t)
	ctx := context.Background()

	receipt, err := allocator.Allocate(ctx, "tenant-1", rent("2400.00"), date(2024, time.March, 10))
	require.NoError(t, err)
	requireConservation(t, receipt, rent("2400.00"))

	require.Len(t, receipt.Lines, 2)
	assert.Equal(t, time.January, receipt.Lines[0].Period.Month)
	assert.Equal(t, time.February, receipt.Lines[1].Period.Month)
	assert.True(t, receipt.Remainder.IsZero())

	outstanding, err := mem.OutstandingByLease(ctx, "lease-1")
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	assert.Equal(t, time.March, outstanding[0].Key.Month)
}

func TestAllocate_PartialPayment(t *testing.T) {
	// GIVEN: One unpaid month at 1200
	// WHEN: Paying 500
	// THEN: The period is partial with 700 left

	allocator, mem := newTestAllocator(t)
	ctx := context.Background()

	receipt, err := allocator.Allocate(ctx, "tenant-1", rent("500.00"), date(2024, time.January, 10))
	require.NoError(t, err)
	requireConservation(t, receipt, rent("500.00"))

	require.Len(t, receipt.Lines, 1)
	line := receipt.Lines[0]
	assert.True(t, line.Applied.Equal(rent("500.00")))
	assert.True(t, line.PreviousBalance.Equal(rent("1200.00")))
	assert.True(t, line.NewBalance.Equal(rent("700.00")))
	assert.Equal(t, ledger.StatusPartial, line.Status)

	periods, err := mem.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPartial, periods[0].Status)
	assert.True(t, periods[0].PaidAmount.Equal(rent("500.00")))
}

func TestAllocate_TopsUpPartialPeriodBeforeNewer(t *testing.T) {
	// GIVEN: January partially paid (500 of 1200), February unpaid
	// WHEN: Paying 1000 in February
	// THEN: January's remaining 700 settles first, 300 goes to February

	allocator, _ := newTestAllocator(t)
	ctx := context.Background()

	_, err := allocator.Allocate(ctx, "tenant-1", rent("500.00"), date(2024, time.January, 10))
	require.NoError(t, err)

	receipt, err := allocator.Allocate(ctx, "tenant-1", rent("1000.00"), date(2024, time.February, 10))
	require.NoError(t, err)
	requireConservation(t, receipt, rent("1000.00"))

	require.Len(t, receipt.Lines, 2)
	assert.Equal(t, time.January, receipt.Lines[0].Period.Month)
	assert.True(t, receipt.Lines[0].Applied.Equal(rent("700.00")))
	assert.Equal(t, ledger.StatusPaid, receipt.Lines[0].Status)

	assert.Equal(t, time.February, receipt.Lines[1].Period.Month)
	assert.True(t, receipt.Lines[1].Applied.Equal(rent("300.00")))
	assert.Equal(t, ledger.StatusPartial, receipt.Lines[1].Status)
}

func TestAllocate_SurplusReportedAsRemainder(t *testing.T) {
	// GIVEN: One unpaid month at 1200
	// WHEN: Paying 2000
	// THEN: 1200 applies, 800 is reported as remainder and persisted nowhere

	allocator, mem := newTestAllocator(t)
	ctx := context.Background()

	receipt, err := allocator.Allocate(ctx, "tenant-1", rent("2000.00"), date(2024, time.January, 10))
	require.NoError(t, err)
	requireConservation(t, receipt, rent("2000.00"))

	assert.True(t, receipt.TotalApplied().Equal(rent("1200.00")))
	assert.True(t, receipt.Remainder.Equal(rent("800.00")))

	outstanding, err := mem.OutstandingByLease(ctx, "lease-1")
	require.NoError(t, err)
	assert.Empty(t, outstanding, "no period carries the surplus")
}

func TestAllocate_NothingOutstanding(t *testing.T) {
	// GIVEN: Every materialized month already paid
	// WHEN: Paying again
	// THEN: Everything is remainder, no lines

	allocator, _ := newTestAllocator(t)
	ctx := context.Background()

	_, err := allocator.Allocate(ctx, "tenant-1", rent("1200.00"), date(2024, time.January, 10))
	require.NoError(t, err)

	receipt, err := allocator.Allocate(ctx, "tenant-1", rent("100.00"), date(2024, time.January, 11))
	require.NoError(t, err)
	requireConservation(t, receipt, rent("100.00"))
	assert.Empty(t, receipt.Lines)
	assert.True(t, receipt.Remainder.Equal(rent("100.00")))
}

func TestAllocate_MaterializesPeriodsOnDemand(t *testing.T) {
	// GIVEN: An empty ledger for the lease
	// WHEN: The first payment arrives in March
	// THEN: January through March exist afterwards

	allocator, mem := newTestAllocator(t)
	ctx := context.Background()

	_, err := allocator.Allocate(ctx, "tenant-1", rent("100.00"), date(2024, time.March, 10))
	require.NoError(t, err)

	periods, err := mem.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	assert.Len(t, periods, 3)
}

// =============================================================================
// INPUT VALIDATION TESTS
// =============================================================================

func TestAllocate_RejectsNonPositiveAmounts(t *testing.T) {
	allocator, _ := newTestAllocator(t)
	ctx := context.Background()

	_, err := allocator.Allocate(ctx, "tenant-1", decimal.Zero, date(2024, time.January, 10))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = allocator.Allocate(ctx, "tenant-1", rent("-50.00"), date(2024, time.January, 10))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestAllocate_UnknownTenant(t *testing.T) {
	// GIVEN: No lease for the tenant
	// WHEN: Allocating
	// THEN: ErrLeaseNotFound

	allocator, _ := newTestAllocator(t)

	_, err := allocator.Allocate(context.Background(), "nobody", rent("100.00"), date(2024, time.January, 10))
	assert.ErrorIs(t, err, ledger.ErrLeaseNotFound)
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

// contendedStore wraps the memory store and simulates a concurrent writer:
// before each of the first `conflicts` ApplyPayment calls, it commits a
// competing payment against the same period so the caller's conditional
// update fails.
type contendedStore struct {
	*store.Memory
	conflicts int
	competing decimal.Decimal
}

func (c *contendedStore) ApplyPayment(ctx context.Context, id ledger.PeriodID, amount decimal.Decimal, paidAt time.Time, expectedPaid decimal.Decimal) error {
	if c.conflicts > 0 {
		c.conflicts--
		if err := c.Memory.ApplyPayment(ctx, id, c.competing, paidAt, expectedPaid); err != nil {
			return err
		}
	}
	return c.Memory.ApplyPayment(ctx, id, amount, paidAt, expectedPaid)
}

func TestAllocate_RetriesAfterConflictAndConserves(t *testing.T) {
	// GIVEN: A concurrent writer wins the first period update
	// WHEN: Allocating 1200 against a 1200 month
	// THEN: The allocator re-reads, applies what is still owed, and the
	//       receipt still conserves the input amount

	mem := store.NewMemory()
	mem.PutLease(*testLease())
	contended := &contendedStore{Memory: mem, conflicts: 1, competing: rent("200.00")}

	rl := ledger.NewRentLedger(contended)
	allocator := ledger.NewAllocator(rl, mem)
	ctx := context.Background()

	amount := rent("1200.00")
	receipt, err := allocator.Allocate(ctx, "tenant-1", amount, date(2024, time.January, 10))
	require.NoError(t, err)
	requireConservation(t, receipt, amount)

	// The competing 200 shrank January's balance to 1000; the re-read
	// applies 1000 there and the rest rolls forward or remains.
	require.NotEmpty(t, receipt.Lines)
	assert.True(t, receipt.Lines[0].Applied.Equal(rent("1000.00")))

	periods, err := mem.PeriodsByLease(ctx, "lease-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPaid, periods[0].Status)
}

func TestAllocate_GivesUpAfterBoundedRetries(t *testing.T) {
	// GIVEN: A writer that wins every race
	// WHEN: Allocating
	// THEN: AllocationConflict after MaxRetries attempts, with the
	//       unallocated amount reported and conservation intact

	mem := store.NewMemory()
	mem.PutLease(*testLease())
	contended := &contendedStore{Memory: mem, conflicts: 1000, competing: rent("1.00")}

	rl := ledger.NewRentLedger(contended)
	allocator := ledger.NewAllocator(rl, mem)
	allocator.MaxRetries = 3
	ctx := context.Background()

	amount := rent("600.00")
	receipt, err := allocator.Allocate(ctx, "tenant-1", amount, date(2024, time.January, 10))

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrAllocationConflict)
	assert.True(t, ledger.IsRetryable(err))

	var conflictErr *ledger.AllocationConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, 3, conflictErr.Attempts)
	assert.True(t, conflictErr.Unallocated.Equal(amount))

	requireConservation(t, receipt, amount)
	assert.Empty(t, receipt.Lines, "no line committed under total contention")
}
