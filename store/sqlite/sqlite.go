/*
Package sqlite provides a SQLite-backed implementation of the ledger's
storage interfaces.

PURPOSE:
  Implements PeriodStore, PaymentStore, LeaseDirectory, and TenantDirectory
  on SQLite for the single-binary deployment. The same SQL shapes apply to
  Postgres (see store/postgres) with only dialect differences.

KEY TABLES:
  rent_periods: one row per (lease, year, month); the only mutable table,
                and only through the conditional ApplyPayment update
  payments:     append-only incoming payment records
  leases:       billing terms, read by the ledger, written by seeding/admin
  tenants:      display names for report decoration

INVARIANT ENFORCEMENT:
  - UNIQUE(lease_id, year, month) arbitrates concurrent materialization;
    a constraint violation maps to ErrDuplicatePeriod (benign no-op)
  - ApplyPayment is one UPDATE conditioned on paid_amount being unchanged
    since read; zero rows affected maps to ErrConcurrentModification
  - paid_amount <= due_amount is checked before the write (ErrOverApplied)

CONCURRENCY:
  Uses sync.RWMutex for in-process thread-safety and WAL mode for better
  reader/writer concurrency. With Postgres, database-level concurrency
  control does this instead.

USAGE:
  store, err := sqlite.New("./data/rento.db")
  rentLedger := ledger.NewRentLedger(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rento/rent-ledger/ledger"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Store implements the ledger storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Rent periods: one row per (lease, month, year)
	CREATE TABLE IF NOT EXISTS rent_periods (
		id TEXT PRIMARY KEY,
		lease_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		due_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		due_date TEXT NOT NULL,
		last_payment_at TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: the arbiter for concurrent materialization. Two callers
	-- ensuring the same month race on this index; the loser's insert is a
	-- benign no-op.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_rent_periods_unique
		ON rent_periods(lease_id, year, month);

	CREATE INDEX IF NOT EXISTS idx_rent_periods_outstanding
		ON rent_periods(status, tenant_id, year, month)
		WHERE status IN ('unpaid', 'partial');

	-- Payments (append-only)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		method TEXT,
		status TEXT,
		payment_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_tenant
		ON payments(tenant_id, payment_date);

	-- Leases (billing terms; read-only to the core)
	CREATE TABLE IF NOT EXISTS leases (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		property_id TEXT,
		monthly_rent TEXT NOT NULL,
		lease_start TEXT NOT NULL,
		lease_end TEXT NOT NULL,
		due_day INTEGER NOT NULL,
		billing_mode TEXT NOT NULL,
		status TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leases_tenant
		ON leases(tenant_id);

	-- Tenants (display names for report decoration)
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		property_name TEXT,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PERIOD STORE (ledger.PeriodStore interface)
// =============================================================================

// InsertPeriod creates a period row. The unique index on
// (lease_id, year, month) turns a concurrent duplicate into
// ErrDuplicatePeriod.
func (s *Store) InsertPeriod(ctx context.Context, p ledger.RentPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO rent_periods
		(id, lease_id, tenant_id, year, month, due_amount, paid_amount, status,
		 due_date, last_payment_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.LeaseID,
		p.TenantID,
		p.Key.Year,
		int(p.Key.Month),
		p.DueAmount.String(),
		p.PaidAmount.String(),
		p.Status,
		p.DueDate.Format(dateLayout),
		nullTime(p.LastPaymentAt),
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicatePeriod
		}
		return fmt.Errorf("%w: inserting period: %v", ledger.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) PeriodsByLease(ctx context.Context, leaseID ledger.LeaseID) ([]ledger.RentPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectPeriods + `
		WHERE lease_id = ?
		ORDER BY year ASC, month ASC
	`
	return s.queryPeriods(ctx, query, leaseID)
}

func (s *Store) OutstandingByLease(ctx context.Context, leaseID ledger.LeaseID) ([]ledger.RentPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectPeriods + `
		WHERE lease_id = ? AND status IN ('unpaid', 'partial')
		ORDER BY year ASC, month ASC
	`
	return s.queryPeriods(ctx, query, leaseID)
}

func (s *Store) OutstandingThrough(ctx context.Context, cutoff ledger.PeriodKey) ([]ledger.RentPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectPeriods + `
		WHERE status IN ('unpaid', 'partial')
		  AND (year < ? OR (year = ? AND month <= ?))
		ORDER BY tenant_id ASC, lease_id ASC, year ASC, month ASC
	`
	return s.queryPeriods(ctx, query, cutoff.Year, cutoff.Year, int(cutoff.Month))
}

// ApplyPayment performs the atomic compare-and-update: the write commits
// only if paid_amount still equals expectedPaid.
func (s *Store) ApplyPayment(ctx context.Context, id ledger.PeriodID, amount decimal.Decimal, paidAt time.Time, expectedPaid decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dueStr string
	err := s.db.QueryRowContext(ctx,
		"SELECT due_amount FROM rent_periods WHERE id = ?", id,
	).Scan(&dueStr)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: period %s does not exist", ledger.ErrStoreUnavailable, id)
	}
	if err != nil {
		return fmt.Errorf("%w: reading period %s: %v", ledger.ErrStoreUnavailable, id, err)
	}

	due, err := decimal.NewFromString(dueStr)
	if err != nil {
		return fmt.Errorf("%w: corrupt due_amount on period %s: %v", ledger.ErrStoreUnavailable, id, err)
	}
	newPaid := expectedPaid.Add(amount)
	if newPaid.GreaterThan(due) {
		return ledger.ErrOverApplied
	}

	// due_amount never changes after creation, so conditioning on
	// paid_amount alone keeps the status recomputation consistent.
	res, err := s.db.ExecContext(ctx, `
		UPDATE rent_periods
		SET paid_amount = ?, status = ?, last_payment_at = ?
		WHERE id = ? AND paid_amount = ?
	`,
		newPaid.String(),
		ledger.StatusFor(due, newPaid),
		paidAt.UTC().Format(time.RFC3339),
		id,
		expectedPaid.String(),
	)
	if err != nil {
		return fmt.Errorf("%w: applying payment to period %s: %v", ledger.ErrStoreUnavailable, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: applying payment to period %s: %v", ledger.ErrStoreUnavailable, id, err)
	}
	if affected == 0 {
		return ledger.ErrConcurrentModification
	}
	return nil
}

const selectPeriods = `
	SELECT id, lease_id, tenant_id, year, month, due_amount, paid_amount,
	       status, due_date, last_payment_at, created_at
	FROM rent_periods
`

func (s *Store) queryPeriods(ctx context.Context, query string, args ...any) ([]ledger.RentPeriod, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying periods: %v", ledger.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var periods []ledger.RentPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func scanPeriod(rows *sql.Rows) (ledger.RentPeriod, error) {
	var (
		p             ledger.RentPeriod
		year, month   int
		due, paid     string
		dueDate       string
		lastPaymentAt sql.NullString
		createdAt     string
	)

	err := rows.Scan(
		&p.ID, &p.LeaseID, &p.TenantID, &year, &month, &due, &paid,
		&p.Status, &dueDate, &lastPaymentAt, &createdAt,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan period: %w", err)
	}

	p.Key = ledger.PeriodKey{Year: year, Month: time.Month(month)}
	p.DueAmount = mustDecimal(due)
	p.PaidAmount = mustDecimal(paid)
	p.DueDate, _ = time.Parse(dateLayout, dueDate)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if lastPaymentAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastPaymentAt.String)
		p.LastPaymentAt = &t
	}
	return p, nil
}

// =============================================================================
// PAYMENT STORE (ledger.PaymentStore interface)
// =============================================================================

// RecordPayment appends a payment. Payments are immutable once recorded;
// there is no update and no delete.
func (s *Store) RecordPayment(ctx context.Context, p ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payments (id, tenant_id, amount, method, status, payment_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.TenantID,
		p.Amount.String(),
		p.Method,
		p.Status,
		p.PaymentDate.Format(dateLayout),
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: recording payment: %v", ledger.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Payments(ctx context.Context) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectPayments + " ORDER BY payment_date DESC, created_at DESC"
	return s.queryPayments(ctx, query)
}

func (s *Store) PaymentsByTenant(ctx context.Context, tenantID ledger.TenantID) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectPayments + " WHERE tenant_id = ? ORDER BY payment_date DESC, created_at DESC"
	return s.queryPayments(ctx, query, tenantID)
}

const selectPayments = `
	SELECT id, tenant_id, amount, method, status, payment_date, created_at
	FROM payments
`

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]ledger.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying payments: %v", ledger.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		var (
			p           ledger.Payment
			amount      string
			method      sql.NullString
			status      sql.NullString
			paymentDate string
			createdAt   string
		)
		if err := rows.Scan(&p.ID, &p.TenantID, &amount, &method, &status, &paymentDate, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Amount = mustDecimal(amount)
		p.Method = method.String
		p.Status = status.String
		p.PaymentDate, _ = time.Parse(dateLayout, paymentDate)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// LEASE DIRECTORY (ledger.LeaseDirectory interface)
// =============================================================================

// SaveLease upserts a lease record. Lease ownership lives with the lease
// service; this exists for seeding and the single-binary deployment.
func (s *Store) SaveLease(ctx context.Context, l ledger.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO leases (id, tenant_id, property_id, monthly_rent, lease_start,
			lease_end, due_day, billing_mode, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			property_id = excluded.property_id,
			monthly_rent = excluded.monthly_rent,
			lease_start = excluded.lease_start,
			lease_end = excluded.lease_end,
			due_day = excluded.due_day,
			billing_mode = excluded.billing_mode,
			status = excluded.status
	`

	_, err := s.db.ExecContext(ctx, query,
		l.ID, l.TenantID, l.PropertyID, l.MonthlyRent.String(),
		l.Start.Format(dateLayout), l.End.Format(dateLayout),
		l.DueDay, l.Mode, l.Status,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) LeaseByTenant(ctx context.Context, tenantID ledger.TenantID) (*ledger.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectLeases + `
		WHERE tenant_id = ?
		ORDER BY lease_start DESC
		LIMIT 1
	`

	leases, err := s.queryLeases(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	if len(leases) == 0 {
		return nil, ledger.ErrLeaseNotFound
	}
	return &leases[0], nil
}

func (s *Store) Leases(ctx context.Context) ([]ledger.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLeases(ctx, selectLeases+" ORDER BY id")
}

const selectLeases = `
	SELECT id, tenant_id, property_id, monthly_rent, lease_start, lease_end,
	       due_day, billing_mode, status
	FROM leases
`

func (s *Store) queryLeases(ctx context.Context, query string, args ...any) ([]ledger.Lease, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying leases: %v", ledger.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var leases []ledger.Lease
	for rows.Next() {
		var (
			l          ledger.Lease
			propertyID sql.NullString
			rent       string
			start, end string
			status     sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.TenantID, &propertyID, &rent, &start, &end, &l.DueDay, &l.Mode, &status); err != nil {
			return nil, fmt.Errorf("failed to scan lease: %w", err)
		}
		l.PropertyID = propertyID.String
		l.MonthlyRent = mustDecimal(rent)
		l.Start, _ = time.Parse(dateLayout, start)
		l.End, _ = time.Parse(dateLayout, end)
		l.Status = status.String
		leases = append(leases, l)
	}
	return leases, rows.Err()
}

// =============================================================================
// TENANT DIRECTORY (ledger.TenantDirectory interface)
// =============================================================================

// SaveTenant upserts a tenant's display names.
func (s *Store) SaveTenant(ctx context.Context, id ledger.TenantID, info ledger.TenantInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO tenants (id, full_name, property_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			property_name = excluded.property_name
	`

	_, err := s.db.ExecContext(ctx, query,
		id, info.Name, info.PropertyName,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// TenantInfo returns display names for a tenant. An unknown tenant
// degrades to "Unknown" placeholders rather than an error; only
// infrastructure failure is reported, wrapped as ErrLookupUnavailable.
func (s *Store) TenantInfo(ctx context.Context, tenantID ledger.TenantID) (ledger.TenantInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var info ledger.TenantInfo
	var propertyName sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT full_name, property_name FROM tenants WHERE id = ?", tenantID,
	).Scan(&info.Name, &propertyName)

	if err == sql.ErrNoRows {
		return ledger.TenantInfo{Name: "Unknown", PropertyName: "Unknown"}, nil
	}
	if err != nil {
		return ledger.TenantInfo{}, fmt.Errorf("%w: tenant %s: %v", ledger.ErrLookupUnavailable, tenantID, err)
	}
	info.PropertyName = propertyName.String
	if info.PropertyName == "" {
		info.PropertyName = "Unknown"
	}
	return info, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
