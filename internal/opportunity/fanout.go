package opportunity

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MikaelConecto/services-splitted-stacks/config"
	"github.com/MikaelConecto/services-splitted-stacks/internal/auth"
	"github.com/MikaelConecto/services-splitted-stacks/internal/common"
	"github.com/MikaelConecto/services-splitted-stacks/internal/store"
	"github.com/MikaelConecto/services-splitted-stacks/internal/templates"
	"github.com/MikaelConecto/services-splitted-stacks/internal/tokens"
	"github.com/MikaelConecto/services-splitted-stacks/misc"
	"github.com/MikaelConecto/services-splitted-stacks/platforms/crm"
)

// Engine fans a freshly created opportunity out to every verified
// company's active contacts. Safe to re-run for the same
// (opportunity, customer) pair: the snapshot and each notification row
// are created at most once, and already-notified contacts get no second
// SMS or email.
type Engine struct {
	Cfg       *config.Config
	Store     *store.Store
	CRM       CRM
	Codec     *tokens.Codec
	SMS       SMSSender
	Mail      Mailer
	Shortener Shortener
	Maps      MapSaver
	Identity  auth.Provider

	Alert func(msg string, err error)
}

type RecipientFailure struct {
	CompanyID int64  `json:"companyId"`
	ContactID int64  `json:"contactId,omitempty"`
	Reason    string `json:"reason"`
}

// Report is the per-batch summary. Failures are collected, never fatal:
// one broken recipient must not silence the rest of the batch.
type Report struct {
	OpportunityID     int64              `json:"opportunityId"`
	TrackingID        string             `json:"trackingId"`
	Created           bool               `json:"created"`
	CompaniesNotified int                `json:"companiesNotified"`
	ContactsNotified  int                `json:"contactsNotified"`
	SkippedExisting   int                `json:"skippedExisting"`
	Failures          []RecipientFailure `json:"failures,omitempty"`
}

func (e *Engine) alert(msg string, err error) {
	if e.Alert != nil {
		e.Alert(msg, err)
	}
}

// Distribute runs the full fan-out for one new opportunity.
func (e *Engine) Distribute(ctx context.Context, opportunityID, customerContactID int64) (*Report, error) {
	var (
		crmOpp   *crm.Opportunity
		customer *crm.Contact
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		crmOpp, err = e.CRM.FetchOpportunity(egCtx, opportunityID)
		return
	})
	eg.Go(func() (err error) {
		customer, err = e.CRM.FetchContact(egCtx, customerContactID)
		return
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	companies, err := e.CRM.SearchCompanies(ctx)
	if err != nil {
		return nil, err
	}

	now := store.Now()
	snapshot := &common.Opportunity{
		ID:                opportunityID,
		TrackingID:        misc.TrackingCode(e.Cfg.TrackingPrefix, 10),
		CustomerContactID: customerContactID,
		Status:            common.StatusNotified,
		TotalSeats:        e.Cfg.TotalSeats,
		RemainingSeats:    e.Cfg.TotalSeats,

		Name:      crmOpp.Name,
		Email:     customer.Email,
		FirstName: customer.FirstName,
		LastName:  customer.LastName,
		Phone:     normalizePhone(customer.Phone),

		Address:    customer.Address.Line1,
		PostalCode: customer.Address.PostalCode,
		City:       customer.Address.City,
		State:      customer.Address.State,
		Country:    customer.Address.Country,

		JobType:                crmOpp.JobType,
		JobTypeSpecific:        crmOpp.JobTypeSpecific,
		PreferredContactMethod: crmOpp.PreferredContactMethod,
		PreferredContactTime:   crmOpp.PreferredContactTime,
		Latitude:               crmOpp.Latitude,
		Longitude:              crmOpp.Longitude,

		CompaniesNotified: len(companies),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	existing, err := e.Store.CreateOpportunity(snapshot)
	if err != nil {
		return nil, err
	}

	rep := &Report{OpportunityID: opportunityID, Created: existing == nil}
	if existing != nil {
		// Webhook retry: reuse the stored tracking ID, never reset seats.
		snapshot = existing
	} else {
		// Cross-reference the tracking ID on the CRM record and kick off
		// the static map render. Neither may fail the fan-out.
		if err := e.CRM.UpdateOpportunity(ctx, opportunityID, map[string]interface{}{"uniqueId": snapshot.TrackingID}); err != nil {
			e.alert("failed to back-write tracking id to CRM", err)
		}
		if e.Maps != nil {
			go func(tid string, lat, lng float64) {
				if err := e.Maps.Save(tid, lat, lng); err != nil {
					e.alert("failed to save static map for "+tid, err)
				}
			}(snapshot.TrackingID, snapshot.Latitude, snapshot.Longitude)
		}
	}
	rep.TrackingID = snapshot.TrackingID

	encOppID := e.Codec.EncryptID(opportunityID)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	fail := func(companyID, contactID int64, err error) {
		mu.Lock()
		rep.Failures = append(rep.Failures, RecipientFailure{CompanyID: companyID, ContactID: contactID, Reason: err.Error()})
		mu.Unlock()
	}

	for _, company := range companies {
		wg.Add(1)
		go func(company *crm.Contact) {
			defer wg.Done()
			notified, skipped := e.notifyCompany(ctx, snapshot, company, encOppID, fail)
			mu.Lock()
			if notified > 0 {
				rep.CompaniesNotified++
			}
			rep.ContactsNotified += notified
			rep.SkippedExisting += skipped
			mu.Unlock()
		}(company)
	}
	wg.Wait()

	return rep, nil
}

// notifyCompany resolves the company's active contacts and dispatches to
// each of them concurrently. Returns how many contacts were notified and
// how many were skipped as already notified.
func (e *Engine) notifyCompany(ctx context.Context, snapshot *common.Opportunity, company *crm.Contact, encOppID string, fail func(int64, int64, error)) (notified, skipped int) {
	contacts, err := e.CRM.CompanyContacts(ctx, company.ID)
	if err != nil {
		fail(company.ID, 0, err)
		return 0, 0
	}
	if len(contacts) == 0 {
		return 0, 0
	}

	locale := templates.Locale(company.Locale)
	origin := e.Cfg.Acceptance.OriginEN
	if locale == "fr" {
		origin = e.Cfg.Acceptance.OriginFR
	}

	encCompanyID := e.Codec.EncryptID(company.ID)
	base := origin + e.Cfg.Acceptance.Path + "?d=" + encOppID + "&c=" + encCompanyID

	// One link per delivery method so opens stay attributable; if the
	// shortener is down the long URL still works.
	smsLink := e.shorten(ctx, base+"&t=sms", "sms", company.ID, snapshot.TrackingID)
	emailLink := e.shorten(ctx, base+"&t=email", "email", company.ID, snapshot.TrackingID)

	postal := misc.TruncatePostal(snapshot.PostalCode)
	jobLabel := templates.JobLabel(locale, snapshot.JobType)
	jobSpecificLabel := templates.JobSpecificLabel(locale, snapshot.JobTypeSpecific)

	smsBody := templates.OpportunitySMS(locale, snapshot.TrackingID, snapshot.City, postal, jobLabel, jobSpecificLabel, smsLink)
	subject := templates.OpportunitySubject(locale, snapshot.City, postal)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, contact := range contacts {
		if !contact.ActiveForCategory {
			continue
		}
		wg.Add(1)
		go func(contact *crm.Contact) {
			defer wg.Done()
			n, s, err := e.notifyContact(ctx, snapshot, company, contact, locale, subject, smsBody, emailLink)
			if err != nil {
				fail(company.ID, contact.ID, err)
			}
			mu.Lock()
			notified += n
			skipped += s
			mu.Unlock()
		}(contact)
	}
	wg.Wait()
	return notified, skipped
}

func (e *Engine) notifyContact(ctx context.Context, snapshot *common.Opportunity, company, contact *crm.Contact, locale, subject, smsBody, emailLink string) (notified, skipped int, err error) {
	now := store.Now()
	row := &common.Notification{
		ID:            common.NotificationKey(company.ID, contact.ID, snapshot.ID),
		OpportunityID: snapshot.ID,
		TrackingID:    snapshot.TrackingID,
		CompanyID:     company.ID,
		ContactID:     contact.ID,
		Answer:        common.Unanswered,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := e.Store.PutNotificationIfAbsent(row)
	if err != nil {
		return 0, 0, err
	}
	if !created {
		// Already notified in a previous run; no duplicate dispatch.
		return 0, 1, nil
	}

	var dispatchErr error

	if e.SMS != nil && e.phoneVerified(ctx, contact) {
		if err := e.SMS.Send(normalizePhone(contact.Phone), smsBody); err != nil {
			dispatchErr = err
		}
	}

	if e.Mail != nil {
		html := templates.OpportunityEmail(locale).Render(map[string]interface{}{
			"Name":            contact.FirstName + " " + contact.LastName,
			"TrackingID":      snapshot.TrackingID,
			"City":            snapshot.City,
			"JobType":         templates.JobLabel(locale, snapshot.JobType),
			"JobTypeSpecific": templates.JobSpecificLabel(locale, snapshot.JobTypeSpecific),
			"AcceptanceURL":   emailLink,
		})
		if err := e.Mail.Send(contact.Email, contact.FirstName+" "+contact.LastName, subject, html); err != nil && dispatchErr == nil {
			dispatchErr = err
		}
	}

	return 1, 0, dispatchErr
}

func (e *Engine) phoneVerified(ctx context.Context, contact *crm.Contact) bool {
	if e.Identity == nil || contact.IdentitySub == "" {
		return false
	}
	u, err := e.Identity.UserBySub(ctx, contact.IdentitySub)
	if err != nil {
		e.alert("failed to resolve identity for contact "+strconv.FormatInt(contact.ID, 10), err)
		return false
	}
	return u.PhoneVerified
}

func (e *Engine) shorten(ctx context.Context, longURL, method string, companyID int64, trackingID string) string {
	if e.Shortener == nil {
		return longURL
	}
	short, err := e.Shortener.Shorten(ctx, longURL,
		[]string{method, strconv.FormatInt(companyID, 10), trackingID}, "opp-"+trackingID)
	if err != nil {
		e.alert("shortlink creation failed, falling back to long URL", err)
		return longURL
	}
	return short
}

// normalizePhone coerces the CRM's free-form numbers into E.164; ten
// digit north-american numbers get the +1 prefix.
func normalizePhone(p string) string {
	var digits strings.Builder
	for _, r := range p {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case strings.HasPrefix(p, "+"):
		return "+" + d
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	default:
		return p
	}
}
