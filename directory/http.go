/*
Package directory provides HTTP lookup clients for the split-service
deployment, where leases and tenants live in their own services.

The clients implement ledger.LeaseDirectory and ledger.TenantDirectory
over plain GET + JSON. Lookup failure semantics match what the ledger
expects from any directory:
  - lease 404            -> ledger.ErrLeaseNotFound
  - lease service down   -> error wrapping ledger.ErrLookupUnavailable
  - tenant 404           -> "Unknown" placeholders, nil error
  - tenant service down  -> error wrapping ledger.ErrLookupUnavailable
    (callers degrade to "Unknown" themselves and keep going)
*/
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rento/rent-ledger/ledger"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 5 * time.Second

// =============================================================================
// LEASE CLIENT (ledger.LeaseDirectory)
// =============================================================================

// LeaseClient resolves leases from the lease service.
type LeaseClient struct {
	BaseURL string
	Client  *http.Client
}

func NewLeaseClient(baseURL string) *LeaseClient {
	return &LeaseClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: defaultTimeout},
	}
}

// leaseDTO mirrors the lease service's JSON shape. due_date is the
// day-of-month rent is due, not a full date.
type leaseDTO struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	PropertyID  string `json:"property_id"`
	MonthlyRent string `json:"monthly_rent"`
	LeaseStart  string `json:"lease_start"`
	LeaseEnd    string `json:"lease_end"`
	DueDate     int    `json:"due_date"`
	BillingMode string `json:"billing_mode"`
	Status      string `json:"status"`
}

func (d leaseDTO) toLease() (ledger.Lease, error) {
	rent, err := decimal.NewFromString(d.MonthlyRent)
	if err != nil {
		return ledger.Lease{}, fmt.Errorf("invalid monthly_rent %q: %w", d.MonthlyRent, err)
	}
	start, err := time.Parse("2006-01-02", d.LeaseStart)
	if err != nil {
		return ledger.Lease{}, fmt.Errorf("invalid lease_start %q: %w", d.LeaseStart, err)
	}
	end, err := time.Parse("2006-01-02", d.LeaseEnd)
	if err != nil {
		return ledger.Lease{}, fmt.Errorf("invalid lease_end %q: %w", d.LeaseEnd, err)
	}

	mode := ledger.BillingMode(d.BillingMode)
	if mode == "" {
		mode = ledger.BillingPrepaid
	}
	dueDay := d.DueDate
	if dueDay < 1 {
		dueDay = 1
	}

	return ledger.Lease{
		ID:          ledger.LeaseID(d.ID),
		TenantID:    ledger.TenantID(d.TenantID),
		PropertyID:  d.PropertyID,
		MonthlyRent: rent,
		Start:       start,
		End:         end,
		DueDay:      dueDay,
		Mode:        mode,
		Status:      d.Status,
	}, nil
}

func (c *LeaseClient) LeaseByTenant(ctx context.Context, tenantID ledger.TenantID) (*ledger.Lease, error) {
	url := fmt.Sprintf("%s/api/leases/tenant/%s", c.BaseURL, tenantID)

	// The lease service returns the tenant's single active lease as one
	// JSON object; a tenant without one is a 404.
	var dto leaseDTO
	status, err := c.getJSON(ctx, url, &dto)
	if err != nil {
		return nil, fmt.Errorf("%w: lease service: %v", ledger.ErrLookupUnavailable, err)
	}
	if status == http.StatusNotFound {
		return nil, ledger.ErrLeaseNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: lease service returned %d", ledger.ErrLookupUnavailable, status)
	}

	lease, err := dto.toLease()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrLookupUnavailable, err)
	}
	return &lease, nil
}

func (c *LeaseClient) Leases(ctx context.Context) ([]ledger.Lease, error) {
	url := c.BaseURL + "/api/leases"

	var dtos []leaseDTO
	status, err := c.getJSON(ctx, url, &dtos)
	if err != nil {
		return nil, fmt.Errorf("%w: lease service: %v", ledger.ErrLookupUnavailable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: lease service returned %d", ledger.ErrLookupUnavailable, status)
	}

	leases := make([]ledger.Lease, 0, len(dtos))
	for _, d := range dtos {
		lease, err := d.toLease()
		if err != nil {
			// One malformed lease record must not hide the rest.
			continue
		}
		leases = append(leases, lease)
	}
	return leases, nil
}

func (c *LeaseClient) getJSON(ctx context.Context, url string, out any) (int, error) {
	return getJSON(ctx, c.Client, url, out)
}

// =============================================================================
// TENANT CLIENT (ledger.TenantDirectory)
// =============================================================================

// TenantClient resolves tenant and property display names. It chains two
// lookups the way the original report did: tenant -> property.
type TenantClient struct {
	TenantBaseURL   string
	PropertyBaseURL string
	Client          *http.Client
}

func NewTenantClient(tenantBaseURL, propertyBaseURL string) *TenantClient {
	return &TenantClient{
		TenantBaseURL:   tenantBaseURL,
		PropertyBaseURL: propertyBaseURL,
		Client:          &http.Client{Timeout: defaultTimeout},
	}
}

type tenantDTO struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	PropertyID string `json:"property_id"`
	UnitID     string `json:"unit_id"`
}

type propertyDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *TenantClient) TenantInfo(ctx context.Context, tenantID ledger.TenantID) (ledger.TenantInfo, error) {
	info := ledger.TenantInfo{Name: "Unknown", PropertyName: "Unknown"}

	var tenant tenantDTO
	status, err := getJSON(ctx, c.Client, fmt.Sprintf("%s/api/tenants/%s", c.TenantBaseURL, tenantID), &tenant)
	if err != nil {
		return info, fmt.Errorf("%w: tenant service: %v", ledger.ErrLookupUnavailable, err)
	}
	if status == http.StatusNotFound {
		return info, nil
	}
	if status != http.StatusOK {
		return info, fmt.Errorf("%w: tenant service returned %d", ledger.ErrLookupUnavailable, status)
	}
	if tenant.FullName != "" {
		info.Name = tenant.FullName
	}

	// Property name is pure decoration; failure here never bubbles past
	// the placeholder.
	if tenant.PropertyID != "" && c.PropertyBaseURL != "" {
		var property propertyDTO
		status, err := getJSON(ctx, c.Client, fmt.Sprintf("%s/api/properties/%s", c.PropertyBaseURL, tenant.PropertyID), &property)
		if err == nil && status == http.StatusOK && property.Name != "" {
			info.PropertyName = property.Name
		}
	}
	return info, nil
}

// =============================================================================
// SHARED HTTP HELPER
// =============================================================================

// getJSON performs a GET and decodes the body into out when the status is
// 200. Non-200 statuses are returned to the caller undecoded.
func getJSON(ctx context.Context, client *http.Client, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return resp.StatusCode, nil
}
