// Package opportunity holds the distribution core: the fan-out engine
// that announces a new lead to eligible companies, the admission
// controller that arbitrates paid seat claims, and the query service
// that serves redacted views back to claiming companies.
package opportunity

import (
	"context"
	"errors"

	"github.com/MikaelConecto/services-splitted-stacks/platforms/crm"
)

var (
	ErrAuthorizationMismatch = errors.New("the connected company is not the same as the notified one")
	ErrNoPaymentConfigured   = errors.New("no payment method configured for this company")
	ErrPaymentCaptureFailed  = errors.New("payment capture failed")
)

// CRM is the slice of the CRM client the core needs. The live
// associated-company list on the CRM opportunity is the durable seat
// record.
type CRM interface {
	FetchOpportunity(ctx context.Context, id int64) (*crm.Opportunity, error)
	FetchContact(ctx context.Context, id int64) (*crm.Contact, error)
	SearchCompanies(ctx context.Context) ([]*crm.Contact, error)
	CompanyContacts(ctx context.Context, companyID int64) ([]*crm.Contact, error)
	AddAssociatedCompany(ctx context.Context, opportunityID, companyID int64) error
	UpdateOpportunity(ctx context.Context, id int64, fields map[string]interface{}) error
}

// Charger captures a fixed amount from a stored customer; must fail
// atomically and be retry-safe (fresh idempotency key per attempt).
type Charger interface {
	Charge(customer string, amount uint64, desc string, meta map[string]string) (transactionID string, err error)
}

type SMSSender interface {
	Send(to, body string) error
}

type Mailer interface {
	Send(to, toName, subject, html string) error
}

type Shortener interface {
	Shorten(ctx context.Context, longURL string, tags []string, campaignContent string) (string, error)
}

// MapSaver renders the static map for the acceptance page. Optional and
// best-effort.
type MapSaver interface {
	Save(trackingID string, lat, lng float64) error
}
