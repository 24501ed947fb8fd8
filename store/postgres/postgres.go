/*
Package postgres provides a PostgreSQL-backed implementation of the
ledger's storage interfaces.

Same contracts as store/sqlite, expressed in Postgres dialect:
  - $n placeholders instead of ?
  - unique-violation detection by pq error code 23505 instead of message
    string matching
  - native TIMESTAMPTZ / DATE / NUMERIC column types
  - no process-level mutex; the database arbitrates concurrent writers

Used by the platform deployment where the ledger shares a Postgres
cluster with the other rento services.
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rento/rent-ledger/ledger"
	"github.com/shopspring/decimal"
)

// Store implements the ledger storage interfaces on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New connects to Postgres with the given DSN and ensures the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
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
	CREATE TABLE IF NOT EXISTS rent_periods (
		id TEXT PRIMARY KEY,
		lease_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		due_amount NUMERIC(12,2) NOT NULL,
		paid_amount NUMERIC(12,2) NOT NULL,
		status TEXT NOT NULL,
		due_date DATE NOT NULL,
		last_payment_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT rent_periods_lease_month UNIQUE (lease_id, year, month)
	);

	CREATE INDEX IF NOT EXISTS idx_rent_periods_outstanding
		ON rent_periods(status, tenant_id, year, month)
		WHERE status IN ('unpaid', 'partial');

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		amount NUMERIC(12,2) NOT NULL,
		method TEXT,
		status TEXT,
		payment_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_tenant
		ON payments(tenant_id, payment_date);

	CREATE TABLE IF NOT EXISTS leases (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		property_id TEXT,
		monthly_rent NUMERIC(12,2) NOT NULL,
		lease_start DATE NOT NULL,
		lease_end DATE NOT NULL,
		due_day INTEGER NOT NULL,
		billing_mode TEXT NOT NULL,
		status TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leases_tenant ON leases(tenant_id);

	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		property_name TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PERIOD STORE
// =============================================================================

func (s *Store) InsertPeriod(ctx context.Context, p ledger.RentPeriod) error {
	query := `
		INSERT INTO rent_periods
		(id, lease_id, tenant_id, year, month, due_amount, paid_amount, status,
		 due_date, last_payment_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var lastPaymentAt sql.NullTime
	if p.LastPaymentAt != nil {
		lastPaymentAt = sql.NullTime{Time: p.LastPaymentAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.LeaseID, p.TenantID,
		p.Key.Year, int(p.Key.Month),
		p.DueAmount.String(), p.PaidAmount.String(),
		p.Status, p.DueDate, lastPaymentAt, p.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicatePeriod
		}
		return fmt.Errorf("%w: inserting period: %v", ledger.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) PeriodsByLease(ctx context.Context, leaseID ledger.LeaseID) ([]ledger.RentPeriod, error) {
	query := selectPeriods + `
		WHERE lease_id = $1
		ORDER BY year ASC, month ASC
	`
	return s.queryPeriods(ctx, query, leaseID)
}

func (s *Store) OutstandingByLease(ctx context.Context, leaseID ledger.LeaseID) ([]ledger.RentPeriod, error) {
	query := selectPeriods + `
		WHERE lease_id = $1 AND status IN ('unpaid', 'partial')
		ORDER BY year ASC, month ASC
	`
	return s.queryPeriods(ctx, query, leaseID)
}

func (s *Store) OutstandingThrough(ctx context.Context, cutoff ledger.PeriodKey) ([]ledger.RentPeriod, error) {
	query := selectPeriods + `
		WHERE status IN ('unpaid', 'partial')
		  AND (year < $1 OR (year = $1 AND month <= $2))
		ORDER BY tenant_id ASC, lease_id ASC, year ASC, month ASC
	`
	return s.queryPeriods(ctx, query, cutoff.Year, int(cutoff.Month))
}

func (s *Store) ApplyPayment(ctx context.Context, id ledger.PeriodID, amount decimal.Decimal, paidAt time.Time, expectedPaid decimal.Decimal) error {
	var dueStr string
	err := s.db.QueryRowContext(ctx,
		"SELECT due_amount FROM rent_periods WHERE id = $1", id,
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

	// NUMERIC comparison against the expected value; due_amount is
	// immutable, so the status recomputation stays consistent.
	res, err := s.db.ExecContext(ctx, `
		UPDATE rent_periods
		SET paid_amount = $1, status = $2, last_payment_at = $3
		WHERE id = $4 AND paid_amount = $5
	`,
		newPaid.String(),
		ledger.StatusFor(due, newPaid),
		paidAt.UTC(),
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
		var (
			p             ledger.RentPeriod
			year, month   int
			due, paid     string
			lastPaymentAt sql.NullTime
		)
		err := rows.Scan(
			&p.ID, &p.LeaseID, &p.TenantID, &year, &month, &due, &paid,
			&p.Status, &p.DueDate, &lastPaymentAt, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		p.Key = ledger.PeriodKey{Year: year, Month: time.Month(month)}
		p.DueAmount = mustDecimal(due)
		p.PaidAmount = mustDecimal(paid)
		if lastPaymentAt.Valid {
			t := lastPaymentAt.Time
			p.LastPaymentAt = &t
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

func (s *Store) RecordPayment(ctx context.Context, p ledger.Payment) error {
	query := `
		INSERT INTO payments (id, tenant_id, amount, method, status, payment_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.TenantID, p.Amount.String(), p.Method, p.Status,
		p.PaymentDate, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: recording payment: %v", ledger.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Payments(ctx context.Context) ([]ledger.Payment, error) {
	query := selectPayments + " ORDER BY payment_date DESC, created_at DESC"
	return s.queryPayments(ctx, query)
}

func (s *Store) PaymentsByTenant(ctx context.Context, tenantID ledger.TenantID) ([]ledger.Payment, error) {
	query := selectPayments + " WHERE tenant_id = $1 ORDER BY payment_date DESC, created_at DESC"
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
			p      ledger.Payment
			amount string
			method sql.NullString
			status sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.TenantID, &amount, &method, &status, &p.PaymentDate, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Amount = mustDecimal(amount)
		p.Method = method.String
		p.Status = status.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// LEASE DIRECTORY
// =============================================================================

func (s *Store) SaveLease(ctx context.Context, l ledger.Lease) error {
	query := `
		INSERT INTO leases (id, tenant_id, property_id, monthly_rent, lease_start,
			lease_end, due_day, billing_mode, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			property_id = EXCLUDED.property_id,
			monthly_rent = EXCLUDED.monthly_rent,
			lease_start = EXCLUDED.lease_start,
			lease_end = EXCLUDED.lease_end,
			due_day = EXCLUDED.due_day,
			billing_mode = EXCLUDED.billing_mode,
			status = EXCLUDED.status
	`

	_, err := s.db.ExecContext(ctx, query,
		l.ID, l.TenantID, l.PropertyID, l.MonthlyRent.String(),
		l.Start, l.End, l.DueDay, l.Mode, l.Status, time.Now().UTC(),
	)
	return err
}

func (s *Store) LeaseByTenant(ctx context.Context, tenantID ledger.TenantID) (*ledger.Lease, error) {
	query := selectLeases + `
		WHERE tenant_id = $1
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
			status     sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.TenantID, &propertyID, &rent, &l.Start, &l.End, &l.DueDay, &l.Mode, &status); err != nil {
			return nil, fmt.Errorf("failed to scan lease: %w", err)
		}
		l.PropertyID = propertyID.String
		l.MonthlyRent = mustDecimal(rent)
		l.Status = status.String
		leases = append(leases, l)
	}
	return leases, rows.Err()
}

// =============================================================================
// TENANT DIRECTORY
// =============================================================================

func (s *Store) SaveTenant(ctx context.Context, id ledger.TenantID, info ledger.TenantInfo) error {
	query := `
		INSERT INTO tenants (id, full_name, property_name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			property_name = EXCLUDED.property_name
	`

	_, err := s.db.ExecContext(ctx, query, id, info.Name, info.PropertyName, time.Now().UTC())
	return err
}

func (s *Store) TenantInfo(ctx context.Context, tenantID ledger.TenantID) (ledger.TenantInfo, error) {
	var info ledger.TenantInfo
	var propertyName sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT full_name, property_name FROM tenants WHERE id = $1", tenantID,
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

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
