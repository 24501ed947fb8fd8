/*
arrears.go - Per-tenant overdue reporting

PURPOSE:
  Scans the ledger for periods still unpaid or partially paid as of a
  cutoff and produces the per-tenant summary used for collections.

DEGRADE-ON-FAILURE:
  Report generation is read-only and tolerates partial failures per
  tenant. A failed display-name lookup degrades that entry to "Unknown";
  a failed lease lookup skips that tenant with a log line. Neither aborts
  the scan.
*/
package ledger

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// Reporter produces overdue reports. It reads the ledger and never
// mutates it.
type Reporter struct {
	Periods PeriodStore
	Leases  LeaseDirectory
	Tenants TenantDirectory
	Log     *log.Logger
}

func NewReporter(periods PeriodStore, leases LeaseDirectory, tenants TenantDirectory) *Reporter {
	return &Reporter{Periods: periods, Leases: leases, Tenants: tenants, Log: log.Default()}
}

// OverdueReport returns one entry per tenant with at least one outstanding
// period in or before asOf's month. No future period is ever reported:
// periods only exist once materialized, and materialization is bounded to
// the dates payments and reports have seen.
func (r *Reporter) OverdueReport(ctx context.Context, asOf time.Time) ([]TenantArrears, error) {
	rows, err := r.Periods.OutstandingThrough(ctx, KeyOf(asOf))
	if err != nil {
		return nil, err
	}

	// Rows arrive ordered by tenant, then oldest first.
	var report []TenantArrears
	byTenant := make(map[TenantID][]RentPeriod)
	var order []TenantID
	for _, p := range rows {
		if _, seen := byTenant[p.TenantID]; !seen {
			order = append(order, p.TenantID)
		}
		byTenant[p.TenantID] = append(byTenant[p.TenantID], p)
	}

	for _, tenantID := range order {
		periods := byTenant[tenantID]

		lease, err := r.Leases.LeaseByTenant(ctx, tenantID)
		if err != nil {
			// Can't describe this tenant's billing terms; skip the entry
			// rather than fail the whole report.
			r.logf("overdue report: skipping tenant %s: %v", tenantID, err)
			continue
		}

		entry := TenantArrears{
			TenantID:     tenantID,
			LeaseID:      lease.ID,
			BillingMode:  lease.Mode,
			DueDay:       lease.DueDay,
			TotalBalance: decimal.Zero,
			OldestPeriod: periods[0].Key,
		}

		info, err := r.Tenants.TenantInfo(ctx, tenantID)
		if err != nil {
			r.logf("overdue report: tenant %s lookup degraded: %v", tenantID, err)
			info = TenantInfo{Name: "Unknown", PropertyName: "Unknown"}
		}
		entry.TenantName = info.Name
		entry.PropertyName = info.PropertyName

		for _, p := range periods {
			entry.TotalBalance = entry.TotalBalance.Add(p.Balance())
			entry.PeriodsOutstanding++
			if p.LastPaymentAt != nil {
				if entry.LastPaymentAt == nil || p.LastPaymentAt.After(*entry.LastPaymentAt) {
					entry.LastPaymentAt = p.LastPaymentAt
				}
			}

			overdue := daysBetween(p.DueDate, asOf)
			if overdue < 0 {
				overdue = 0
			}
			entry.Periods = append(entry.Periods, PeriodArrears{
				Period:      p.Key,
				DueDate:     p.DueDate,
				Expected:    p.DueAmount,
				Paid:        p.PaidAmount,
				Balance:     p.Balance(),
				Partial:     p.Status == StatusPartial,
				DaysOverdue: overdue,
			})
		}

		report = append(report, entry)
	}
	return report, nil
}

func (r *Reporter) logf(format string, args ...any) {
	if r.Log != nil {
		r.Log.Printf(format, args...)
	}
}
