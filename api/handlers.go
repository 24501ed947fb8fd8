/*
handlers.go - HTTP API handlers for the rent ledger service

PURPOSE:
  Exposes payment recording, allocation, tenant ledgers, and arrears
  reporting over REST. Handles HTTP request/response and JSON
  serialization, and delegates to the ledger core.

ENDPOINTS:
  Payments:
    POST   /api/payments                    Record a payment and allocate it
    GET    /api/payments                    List payments (decorated)
    GET    /api/payments/tenant/{tenantID}  Payment history for a tenant

  Ledger:
    GET    /api/tenants/{tenantID}/ledger   Rent periods for a tenant

  Reports:
    GET    /api/reports/overdue?as_of=YYYY-MM-DD

  Admin:
    POST   /api/admin/ensure-periods        Backfill missing periods

ERROR HANDLING:
  Domain errors map to HTTP statuses:
  - 400: invalid amount, malformed input
  - 404: no lease for tenant
  - 409: allocation conflict (retries exhausted)
  - 502: lease/tenant lookup service unavailable
  - 500: store failure

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rento/rent-ledger/events"
	"github.com/rento/rent-ledger/ledger"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Allocator *ledger.Allocator
	Ledger    *ledger.RentLedger
	Reporter  *ledger.Reporter
	Payments  ledger.PaymentStore
	Leases    ledger.LeaseDirectory
	Tenants   ledger.TenantDirectory
	Publisher events.Publisher
	Log       *log.Logger
}

// NewHandler wires a handler over the ledger core. A nil publisher
// disables event emission.
func NewHandler(allocator *ledger.Allocator, rentLedger *ledger.RentLedger, reporter *ledger.Reporter,
	payments ledger.PaymentStore, leases ledger.LeaseDirectory, tenants ledger.TenantDirectory,
	publisher events.Publisher) *Handler {

	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Handler{
		Allocator: allocator,
		Ledger:    rentLedger,
		Reporter:  reporter,
		Payments:  payments,
		Leases:    leases,
		Tenants:   tenants,
		Publisher: publisher,
		Log:       log.Default(),
	}
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment records an incoming payment and allocates it across the
// tenant's outstanding periods. The payment row is written first: even if
// allocation then fails, the money's arrival is never lost.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required", nil)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be positive", nil)
		return
	}

	paymentDate := time.Now().UTC()
	if req.PaymentDate != "" {
		paymentDate, err = time.Parse(dateLayout, req.PaymentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid payment_date, expected YYYY-MM-DD", err)
			return
		}
	}

	payment := ledger.Payment{
		ID:          ledger.PaymentID(uuid.NewString()),
		TenantID:    ledger.TenantID(req.TenantID),
		Amount:      amount,
		Method:      req.Method,
		Status:      "completed",
		PaymentDate: paymentDate,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Payments.RecordPayment(r.Context(), payment); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record payment", err)
		return
	}

	receipt, err := h.Allocator.Allocate(r.Context(), payment.TenantID, amount, paymentDate)
	if err != nil {
		// The payment row is already committed, and so are any period
		// updates that applied before the failure. On a conflict, return
		// the partial receipt so the caller can see what settled.
		if errors.Is(err, ledger.ErrAllocationConflict) && receipt != nil {
			writeJSON(w, http.StatusConflict, AllocationConflictResponse{
				Error:      "Allocation conflict",
				Details:    err.Error(),
				Payment:    toPaymentDTO(payment, "", ""),
				Allocation: toReceiptDTO(receipt),
			})
			return
		}
		writeError(w, statusForError(err), "Allocation failed", err)
		return
	}

	h.publishAllocation(payment, receipt)

	writeJSON(w, http.StatusCreated, RecordPaymentResponse{
		Payment:    toPaymentDTO(payment, "", ""),
		Allocation: toReceiptDTO(receipt),
	})
}

// ListPayments returns all payments decorated with tenant and property
// display names. A failed lookup degrades that row to "Unknown".
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Payments.Payments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	// Cache lookups per tenant; payment lists repeat tenants heavily.
	infoCache := make(map[ledger.TenantID]ledger.TenantInfo)
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		info, ok := infoCache[p.TenantID]
		if !ok {
			var err error
			info, err = h.Tenants.TenantInfo(r.Context(), p.TenantID)
			if err != nil {
				h.logf("payment listing: tenant %s lookup degraded: %v", p.TenantID, err)
				info = ledger.TenantInfo{Name: "Unknown", PropertyName: "Unknown"}
			}
			infoCache[p.TenantID] = info
		}
		dtos[i] = toPaymentDTO(p, info.Name, info.PropertyName)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetTenantPayments returns the payment history for one tenant.
func (h *Handler) GetTenantPayments(w http.ResponseWriter, r *http.Request) {
	tenantID := ledger.TenantID(chi.URLParam(r, "tenantID"))

	payments, err := h.Payments.PaymentsByTenant(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payments", err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p, "", "")
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetTenantLedger returns the tenant's rent periods, materializing any
// missing months up to today first so the view is current.
func (h *Handler) GetTenantLedger(w http.ResponseWriter, r *http.Request) {
	tenantID := ledger.TenantID(chi.URLParam(r, "tenantID"))

	lease, err := h.Leases.LeaseByTenant(r.Context(), tenantID)
	if err != nil {
		writeError(w, statusForError(err), "Failed to resolve lease", err)
		return
	}

	if _, err := h.Ledger.EnsurePeriods(r.Context(), lease, time.Now().UTC()); err != nil {
		writeError(w, statusForError(err), "Failed to materialize periods", err)
		return
	}

	periods, err := h.Ledger.Periods.PeriodsByLease(r.Context(), lease.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read ledger", err)
		return
	}

	out := TenantLedgerDTO{
		TenantID:     string(tenantID),
		LeaseID:      string(lease.ID),
		TotalDue:     decimal.Zero,
		TotalPaid:    decimal.Zero,
		TotalBalance: decimal.Zero,
		Periods:      make([]PeriodDTO, len(periods)),
	}
	for i, p := range periods {
		out.TotalDue = out.TotalDue.Add(p.DueAmount)
		out.TotalPaid = out.TotalPaid.Add(p.PaidAmount)
		out.TotalBalance = out.TotalBalance.Add(p.Balance())
		out.Periods[i] = toPeriodDTO(p)
	}

	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetOverdueReport returns the per-tenant arrears summary as of a cutoff
// date (query param as_of, default today).
func (h *Handler) GetOverdueReport(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if s := r.URL.Query().Get("as_of"); s != "" {
		var err error
		asOf, err = time.Parse(dateLayout, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of, expected YYYY-MM-DD", err)
			return
		}
	}

	entries, err := h.Reporter.OverdueReport(r.Context(), asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate report", err)
		return
	}

	report := OverdueReportDTO{
		AsOf:         asOf.Format(dateLayout),
		TenantCount:  len(entries),
		TotalBalance: decimal.Zero,
		Tenants:      make([]TenantArrearsDTO, len(entries)),
	}
	for i, e := range entries {
		report.TotalBalance = report.TotalBalance.Add(e.TotalBalance)
		report.Tenants[i] = toArrearsDTO(e)
	}

	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// EnsurePeriods backfills missing billing periods for one tenant's lease,
// or for every known lease when tenant_id is empty. Idempotent; safe to
// run from a cron.
func (h *Handler) EnsurePeriods(w http.ResponseWriter, r *http.Request) {
	var req EnsurePeriodsRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	asOf := time.Now().UTC()
	if req.AsOf != "" {
		var err error
		asOf, err = time.Parse(dateLayout, req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of, expected YYYY-MM-DD", err)
			return
		}
	}

	var leases []ledger.Lease
	if req.TenantID != "" {
		lease, err := h.Leases.LeaseByTenant(r.Context(), ledger.TenantID(req.TenantID))
		if err != nil {
			writeError(w, statusForError(err), "Failed to resolve lease", err)
			return
		}
		leases = []ledger.Lease{*lease}
	} else {
		var err error
		leases, err = h.Leases.Leases(r.Context())
		if err != nil {
			writeError(w, statusForError(err), "Failed to list leases", err)
			return
		}
	}

	resp := EnsurePeriodsResponse{}
	for i := range leases {
		created, err := h.Ledger.EnsurePeriods(r.Context(), &leases[i], asOf)
		if err != nil {
			// Report progress so far rather than discard it.
			h.logf("ensure-periods: lease %s failed: %v", leases[i].ID, err)
			continue
		}
		resp.LeasesProcessed++
		resp.PeriodsCreated += created
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health is the liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// EVENTS
// =============================================================================

// publishAllocation emits a PaymentAllocated event. Best-effort: failure
// is logged and never surfaces to the caller.
func (h *Handler) publishAllocation(p ledger.Payment, receipt *ledger.AllocationReceipt) {
	event := events.PaymentAllocated{
		PaymentID:   string(p.ID),
		TenantID:    string(receipt.TenantID),
		LeaseID:     string(receipt.LeaseID),
		Amount:      receipt.Amount,
		Applied:     receipt.TotalApplied(),
		Remainder:   receipt.Remainder,
		PaymentDate: receipt.PaymentDate,
		OccurredAt:  time.Now().UTC(),
	}
	for _, line := range receipt.Lines {
		event.Lines = append(event.Lines, events.AllocationLine{
			PeriodID: string(line.PeriodID),
			Period:   line.Period.String(),
			Applied:  line.Applied,
			Status:   string(line.Status),
		})
	}

	if err := h.Publisher.Publish(events.TopicPaymentAllocated, event); err != nil {
		h.logf("event publish failed for payment %s: %v", p.ID, err)
	}
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func toPaymentDTO(p ledger.Payment, tenantName, propertyName string) PaymentDTO {
	return PaymentDTO{
		ID:           string(p.ID),
		TenantID:     string(p.TenantID),
		TenantName:   tenantName,
		PropertyName: propertyName,
		Amount:       p.Amount,
		Method:       p.Method,
		Status:       p.Status,
		PaymentDate:  p.PaymentDate.Format(dateLayout),
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
}

func toReceiptDTO(r *ledger.AllocationReceipt) *AllocationReceiptDTO {
	dto := &AllocationReceiptDTO{
		TenantID:     string(r.TenantID),
		LeaseID:      string(r.LeaseID),
		Amount:       r.Amount,
		TotalApplied: r.TotalApplied(),
		Remainder:    r.Remainder,
		Lines:        make([]AllocationLineDTO, len(r.Lines)),
	}
	for i, line := range r.Lines {
		dto.Lines[i] = AllocationLineDTO{
			PeriodID:        string(line.PeriodID),
			Period:          line.Period.String(),
			Applied:         line.Applied,
			PreviousBalance: line.PreviousBalance,
			NewBalance:      line.NewBalance,
			Status:          string(line.Status),
		}
	}
	return dto
}

func toPeriodDTO(p ledger.RentPeriod) PeriodDTO {
	dto := PeriodDTO{
		ID:         string(p.ID),
		LeaseID:    string(p.LeaseID),
		Period:     p.Key.String(),
		DueAmount:  p.DueAmount,
		PaidAmount: p.PaidAmount,
		Balance:    p.Balance(),
		Status:     string(p.Status),
		DueDate:    p.DueDate.Format(dateLayout),
	}
	if p.LastPaymentAt != nil {
		s := p.LastPaymentAt.Format(time.RFC3339)
		dto.LastPaymentAt = &s
	}
	return dto
}

func toArrearsDTO(e ledger.TenantArrears) TenantArrearsDTO {
	dto := TenantArrearsDTO{
		TenantID:           string(e.TenantID),
		TenantName:         e.TenantName,
		PropertyName:       e.PropertyName,
		LeaseID:            string(e.LeaseID),
		BillingMode:        string(e.BillingMode),
		DueDay:             e.DueDay,
		PeriodsOutstanding: e.PeriodsOutstanding,
		TotalBalance:       e.TotalBalance,
		OldestPeriod:       e.OldestPeriod.String(),
		Periods:            make([]PeriodArrearsDTO, len(e.Periods)),
	}
	if e.LastPaymentAt != nil {
		s := e.LastPaymentAt.Format(time.RFC3339)
		dto.LastPaymentAt = &s
	}
	for i, p := range e.Periods {
		dto.Periods[i] = PeriodArrearsDTO{
			Period:      p.Period.String(),
			DueDate:     p.DueDate.Format(dateLayout),
			Expected:    p.Expected,
			Paid:        p.Paid,
			Balance:     p.Balance,
			Partial:     p.Partial,
			DaysOverdue: p.DaysOverdue,
		}
	}
	return dto
}

// =============================================================================
// HELPERS
// =============================================================================

func statusForError(err error) int {
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrAllocationConflict):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrLookupUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) logf(format string, args ...any) {
	if h.Log != nil {
		h.Log.Printf(format, args...)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
