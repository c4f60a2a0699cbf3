package opportunity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/boltdb/bolt"

	"github.com/MikaelConecto/services-splitted-stacks/config"
	"github.com/MikaelConecto/services-splitted-stacks/internal/auth"
	"github.com/MikaelConecto/services-splitted-stacks/internal/store"
	"github.com/MikaelConecto/services-splitted-stacks/internal/tokens"
	"github.com/MikaelConecto/services-splitted-stacks/misc"
	"github.com/MikaelConecto/services-splitted-stacks/platforms/crm"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		ServiceName:     "Toiture",
		TotalSeats:      3,
		OpportunityCost: 4500,
		TrackingPrefix:  "CO",
		TokenSecret:     "test-secret",
	}
	cfg.Acceptance.OriginFR = "https://app.example.test"
	cfg.Acceptance.OriginEN = "https://app.example.test/en"
	cfg.Acceptance.Path = "/acceptation"
	cfg.Bucket.Opportunity = "opportunity"
	cfg.Bucket.Notification = "notification"
	return cfg
}

func testStore(t *testing.T, cfg *config.Config) *store.Store {
	t.Helper()
	db := misc.OpenDB(t.TempDir()+"/", "test")
	t.Cleanup(func() { db.Close() })
	if err := db.Update(func(tx *bolt.Tx) error {
		return misc.InitBuckets(tx, cfg.AllBuckets()...)
	}); err != nil {
		t.Fatal(err)
	}
	return store.New(db, cfg)
}

func testCodec(t *testing.T, cfg *config.Config) *tokens.Codec {
	t.Helper()
	c, err := tokens.New(cfg.TokenSecret)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// fakeCRM keeps the whole CRM in memory; the associated-company list on
// the opportunity behaves like the real one (deduped adds).
type fakeCRM struct {
	mu sync.Mutex

	opp             *crm.Opportunity
	contacts        map[int64]*crm.Contact
	companies       []*crm.Contact
	companyContacts map[int64][]*crm.Contact

	updated map[string]interface{}
	addErrs int // next N AddAssociatedCompany calls fail
}

func (f *fakeCRM) FetchOpportunity(_ context.Context, id int64) (*crm.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opp == nil || f.opp.ID != id {
		return nil, crm.ErrNotFound
	}
	cp := *f.opp
	cp.AssociatedCompanyIDs = append([]int64(nil), f.opp.AssociatedCompanyIDs...)
	return &cp, nil
}

func (f *fakeCRM) FetchContact(_ context.Context, id int64) (*crm.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contacts[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	return c, nil
}

func (f *fakeCRM) SearchCompanies(context.Context) ([]*crm.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*crm.Contact(nil), f.companies...), nil
}

func (f *fakeCRM) CompanyContacts(_ context.Context, companyID int64) ([]*crm.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cc, ok := f.companyContacts[companyID]
	if !ok {
		return nil, errors.New("company contacts unavailable")
	}
	return cc, nil
}

func (f *fakeCRM) AddAssociatedCompany(_ context.Context, opportunityID, companyID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErrs > 0 {
		f.addErrs--
		return errors.New("crm write failed")
	}
	if f.opp == nil || f.opp.ID != opportunityID {
		return crm.ErrNotFound
	}
	for _, id := range f.opp.AssociatedCompanyIDs {
		if id == companyID {
			return nil
		}
	}
	f.opp.AssociatedCompanyIDs = append(f.opp.AssociatedCompanyIDs, companyID)
	return nil
}

func (f *fakeCRM) UpdateOpportunity(_ context.Context, id int64, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updated == nil {
		f.updated = make(map[string]interface{})
	}
	for k, v := range fields {
		f.updated[k] = v
	}
	return nil
}

type fakeCharger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCharger) Charge(customer string, amount uint64, desc string, meta map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls++
	return fmt.Sprintf("ch_%d", f.calls), nil
}

func (f *fakeCharger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSMS struct {
	mu   sync.Mutex
	sent []string // recipient numbers
	err  error
}

func (f *fakeSMS) Send(to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string // recipient addresses
	err  error
}

func (f *fakeMailer) Send(to, toName, subject, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeShortener struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeShortener) Shorten(_ context.Context, longURL string, tags []string, campaignContent string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls++
	return fmt.Sprintf("https://cnc.to/s%d", f.calls), nil
}

// fakeIdentity resolves subs to users; phone verification is per sub.
type fakeIdentity struct {
	users map[string]*auth.User
}

func (f *fakeIdentity) UserByToken(_ context.Context, token string) (*auth.User, error) {
	u, ok := f.users[token]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeIdentity) UserBySub(_ context.Context, sub string) (*auth.User, error) {
	u, ok := f.users[sub]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return u, nil
}
