package opportunity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MikaelConecto/services-splitted-stacks/internal/auth"
	"github.com/MikaelConecto/services-splitted-stacks/internal/common"
	"github.com/MikaelConecto/services-splitted-stacks/internal/store"
	"github.com/MikaelConecto/services-splitted-stacks/platforms/crm"
)

const (
	testOppID    = 500
	testCustomer = 900
)

func newAdmissionEnv(t *testing.T, seats int, companies ...int64) (*Admission, *admissionTestState) {
	t.Helper()
	cfg := testConfig()
	cfg.TotalSeats = seats
	st := testStore(t, cfg)
	codec := testCodec(t, cfg)

	fc := &fakeCRM{
		opp: &crm.Opportunity{
			ID:        testOppID,
			Name:      "Doe, John",
			ContactID: testCustomer,
		},
		contacts: map[int64]*crm.Contact{},
	}
	for _, c := range companies {
		fc.contacts[c] = &crm.Contact{
			ID:             c,
			IsOrganization: true,
			StripeCustomer: fmt.Sprintf("cus_%d", c),
			StripeSource:   fmt.Sprintf("card_%d", c),
		}
	}

	opp := &common.Opportunity{
		ID:                testOppID,
		TrackingID:        "CO-RACETRACK",
		CustomerContactID: testCustomer,
		Status:            common.StatusNotified,
		TotalSeats:        seats,
		RemainingSeats:    seats,
		PostalCode:        "J4B 5E4",
		City:              "Boucherville",
	}
	if _, err := st.CreateOpportunity(opp); err != nil {
		t.Fatal(err)
	}
	for _, c := range companies {
		for _, contact := range []int64{c * 10, c*10 + 1} {
			key := common.NotificationKey(c, contact, testOppID)
			if _, err := st.PutNotificationIfAbsent(&common.Notification{
				ID: key, OpportunityID: testOppID, CompanyID: c, ContactID: contact,
				Answer: common.Unanswered,
			}); err != nil {
				t.Fatal(err)
			}
		}
	}

	charger := &fakeCharger{}
	adm := NewAdmission(cfg, st, fc, charger, codec)

	state := &admissionTestState{
		store:   st,
		crm:     fc,
		charger: charger,
		encOpp:  codec.EncryptID(testOppID),
		enc:     map[int64]string{},
	}
	for _, c := range companies {
		state.enc[c] = codec.EncryptID(c)
	}
	return adm, state
}

type admissionTestState struct {
	store   *store.Store
	crm     *fakeCRM
	charger *fakeCharger
	encOpp  string
	enc     map[int64]string
}

func companyUser(companyID, contactID int64) *auth.User {
	return &auth.User{
		Sub:       fmt.Sprintf("sub-%d", contactID),
		CompanyID: companyID,
		ContactID: contactID,
		IsActive:  true,
	}
}

func TestAcceptSequentialFill(t *testing.T) {
	adm, st := newAdmissionEnv(t, 3, 10, 11, 12, 13)
	ctx := context.Background()

	for _, c := range []int64{10, 11, 12} {
		out, err := adm.Accept(ctx, companyUser(c, c*10), st.encOpp, st.enc[c], "direct")
		if err != nil {
			t.Fatalf("company %d: %v", c, err)
		}
		if out != common.OutcomeAcceptedFirst {
			t.Fatalf("company %d: outcome %s", c, out)
		}
	}

	out, err := adm.Accept(ctx, companyUser(13, 130), st.encOpp, st.enc[13], "direct")
	if err != nil {
		t.Fatal(err)
	}
	if out != common.OutcomeTooLate {
		t.Fatalf("fourth company: outcome %s", out)
	}
	if st.charger.count() != 3 {
		t.Fatalf("charges = %d, want 3", st.charger.count())
	}

	opp, _ := st.store.Opportunity(testOppID)
	if !opp.SeatsConsistent() || opp.RemainingSeats != 0 || opp.Status != common.StatusFull {
		t.Fatalf("final opportunity: %+v", opp)
	}
	// Seats mirrored onto the CRM record.
	if got := len(st.crm.opp.AssociatedCompanyIDs); got != 3 {
		t.Fatalf("crm associated companies = %d, want 3", got)
	}
	// The late claimer's row carries the timing-specific answer.
	n, _ := st.store.Notification(common.NotificationKey(13, 130, testOppID))
	if n.Answer != common.AcceptedTooLate {
		t.Fatalf("late answer = %s", n.Answer)
	}
}

func TestAcceptIdempotentPerCompany(t *testing.T) {
	adm, st := newAdmissionEnv(t, 3, 10)
	ctx := context.Background()

	if out, err := adm.Accept(ctx, companyUser(10, 100), st.encOpp, st.enc[10], "direct"); err != nil || out != common.OutcomeAcceptedFirst {
		t.Fatalf("first accept: %s %v", out, err)
	}

	// Colleague rows cascaded with the shared transaction id.
	sib, _ := st.store.Notification(common.NotificationKey(10, 101, testOppID))
	if sib.Answer != common.Accepted || sib.AnswerType != common.AnswerTypeColleague {
		t.Fatalf("cascaded row: %+v", sib)
	}

	// A colleague accepting later is already owned, never re-charged.
	out, err := adm.Accept(ctx, companyUser(10, 101), st.encOpp, st.enc[10], "direct")
	if err != nil {
		t.Fatal(err)
	}
	if out != common.OutcomeAlreadyOwned {
		t.Fatalf("second accept: %s", out)
	}
	if st.charger.count() != 1 {
		t.Fatalf("charges = %d, want 1", st.charger.count())
	}
	opp, _ := st.store.Opportunity(testOppID)
	if len(opp.SeatHolders) != 1 {
		t.Fatalf("seat holders: %v", opp.SeatHolders)
	}
}

func TestAcceptRaceLastSeat(t *testing.T) {
	adm, st := newAdmissionEnv(t, 1, 10, 11)
	ctx := context.Background()

	outcomes := make([]common.Outcome, 2)
	var wg sync.WaitGroup
	for i, c := range []int64{10, 11} {
		wg.Add(1)
		go func(i int, c int64) {
			defer wg.Done()
			out, err := adm.Accept(ctx, companyUser(c, c*10), st.encOpp, st.enc[c], "direct")
			if err != nil {
				t.Errorf("company %d: %v", c, err)
				return
			}
			outcomes[i] = out
		}(i, c)
	}
	wg.Wait()

	var first, late int
	for _, out := range outcomes {
		switch out {
		case common.OutcomeAcceptedFirst:
			first++
		case common.OutcomeTooLate:
			late++
		}
	}
	if first != 1 || late != 1 {
		t.Fatalf("outcomes = %v", outcomes)
	}
	if st.charger.count() != 1 {
		t.Fatalf("charges = %d, want exactly 1", st.charger.count())
	}
	opp, _ := st.store.Opportunity(testOppID)
	if !opp.SeatsConsistent() || len(opp.SeatHolders) != 1 {
		t.Fatalf("seat state: %+v", opp)
	}
}

func TestAcceptFullNeverCharges(t *testing.T) {
	adm, st := newAdmissionEnv(t, 1, 10, 11)
	ctx := context.Background()

	if _, err := adm.Accept(ctx, companyUser(10, 100), st.encOpp, st.enc[10], "direct"); err != nil {
		t.Fatal(err)
	}
	before := st.charger.count()

	out, err := adm.Accept(ctx, companyUser(11, 110), st.encOpp, st.enc[11], "direct")
	if err != nil {
		t.Fatal(err)
	}
	if out != common.OutcomeTooLate {
		t.Fatalf("outcome = %s", out)
	}
	if st.charger.count() != before {
		t.Fatal("payment attempted on a full opportunity")
	}
	opp, _ := st.store.Opportunity(testOppID)
	if len(opp.SeatHolders) != 1 {
		t.Fatalf("seat holders mutated: %v", opp.SeatHolders)
	}
}

func TestAcceptCRMSeatIsAuthoritative(t *testing.T) {
	adm, st := newAdmissionEnv(t, 3, 10)
	ctx := context.Background()

	// The CRM already carries the seat (e.g. the local commit was lost);
	// membership in either list means owned, never a second charge.
	st.crm.opp.AssociatedCompanyIDs = []int64{10}

	out, err := adm.Accept(ctx, companyUser(10, 100), st.encOpp, st.enc[10], "direct")
	if err != nil {
		t.Fatal(err)
	}
	if out != common.OutcomeAlreadyOwned {
		t.Fatalf("outcome = %s", out)
	}
	if st.charger.count() != 0 {
		t.Fatal("charged a company the CRM already seats")
	}
}

func TestAcceptNoPaymentConfigured(t *testing.T) {
	adm, st := newAdmissionEnv(t, 3, 10)
	st.crm.contacts[10].StripeCustomer = ""

	_, err := adm.Accept(context.Background(), companyUser(10, 100), st.encOpp, st.enc[10], "direct")
	if !errors.Is(err, ErrNoPaymentConfigured) {
		t.Fatalf("expected ErrNoPaymentConfigured, got %v", err)
	}
	if st.charger.count() != 0 {
		t.Fatal("charge attempted without a payment method")
	}
}

func TestAcceptPaymentFailure(t *testing.T) {
	adm, st := newAdmissionEnv(t, 3, 10)
	st.charger.err = errors.New("card declined")

	_, err := adm.Accept(context.Background(), companyUser(10, 100), st.encOpp, st.enc[10], "direct")
	if !errors.Is(err, ErrPaymentCaptureFailed) {
		t.Fatalf("expected ErrPaymentCaptureFailed, got %v", err)
	}
	// Nothing committed; the claim can be retried.
	opp, _ := st.store.Opportunity(testOppID)
	if len(opp.SeatHolders) != 0 || opp.RemainingSeats != 3 {
		t.Fatalf("partial seat mutation: %+v", opp)
	}
	st.charger.err = nil
	if out, err := adm.Accept(context.Background(), companyUser(10, 100), st.encOpp, st.enc[10], "direct"); err != nil || out != common.OutcomeAcceptedFirst {
		t.Fatalf("retry: %s %v", out, err)
	}
}

func TestAcceptAuthorizationMismatch(t *testing.T) {
	adm, st := newAdmissionEnv(t, 3, 10, 11)

	// User from company 11 presents company 10's token.
	_, err := adm.Accept(context.Background(), companyUser(11, 110), st.encOpp, st.enc[10], "direct")
	if !errors.Is(err, ErrAuthorizationMismatch) {
		t.Fatalf("expected ErrAuthorizationMismatch, got %v", err)
	}
	if st.charger.count() != 0 {
		t.Fatal("side effects on rejected authorization")
	}
}

func TestAcceptInvalidToken(t *testing.T) {
	adm, st := newAdmissionEnv(t, 3, 10)
	if _, err := adm.Accept(context.Background(), companyUser(10, 100), "garbage", st.enc[10], "direct"); err == nil {
		t.Fatal("expected invalid token error")
	}
}

func TestAcceptCRMSyncRetries(t *testing.T) {
	adm, st := newAdmissionEnv(t, 3, 10)
	st.crm.addErrs = 2 // first two mirror attempts fail

	out, err := adm.Accept(context.Background(), companyUser(10, 100), st.encOpp, st.enc[10], "direct")
	if err != nil {
		t.Fatal(err)
	}
	if out != common.OutcomeAcceptedFirst {
		t.Fatalf("outcome = %s", out)
	}
	if len(st.crm.opp.AssociatedCompanyIDs) != 1 {
		t.Fatal("seat never landed on the CRM record")
	}
}

func TestRejectRacingColleagueAccept(t *testing.T) {
	// One contact rejects while a colleague accepts. Whichever lands
	// second must see the other's outcome: either the cascade overwrites
	// the plain rejection, or the rejection observes the seat and records
	// the owned variant. A seated company may never keep a plain Rejected
	// row.
	for i := 0; i < 20; i++ {
		adm, st := newAdmissionEnv(t, 3, 10)
		ctx := context.Background()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := adm.Accept(ctx, companyUser(10, 100), st.encOpp, st.enc[10], "direct"); err != nil {
				t.Errorf("accept: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := adm.Reject(ctx, companyUser(10, 101), st.encOpp, st.enc[10], "direct"); err != nil {
				t.Errorf("reject: %v", err)
			}
		}()
		wg.Wait()

		opp, _ := st.store.Opportunity(testOppID)
		if !opp.HasSeat(10) {
			t.Fatal("accept never landed")
		}
		n, _ := st.store.Notification(common.NotificationKey(10, 101, testOppID))
		switch n.Answer {
		case common.Accepted, common.RejectedAlreadyOwned:
		default:
			t.Fatalf("seated company left with answer %q", n.Answer)
		}
		if st.charger.count() != 1 {
			t.Fatalf("charges = %d, want 1", st.charger.count())
		}
	}
}

func TestReject(t *testing.T) {
	adm, st := newAdmissionEnv(t, 3, 10, 11)
	ctx := context.Background()

	out, err := adm.Reject(ctx, companyUser(10, 100), st.encOpp, st.enc[10], "direct")
	if err != nil {
		t.Fatal(err)
	}
	if out != common.OutcomeRejected {
		t.Fatalf("outcome = %s", out)
	}
	n, _ := st.store.Notification(common.NotificationKey(10, 100, testOppID))
	if n.Answer != common.Rejected {
		t.Fatalf("answer = %s", n.Answer)
	}

	// Rejecting after the company took a seat is the owned variant.
	if _, err := adm.Accept(ctx, companyUser(11, 110), st.encOpp, st.enc[11], "direct"); err != nil {
		t.Fatal(err)
	}
	out, err = adm.Reject(ctx, companyUser(11, 111), st.encOpp, st.enc[11], "direct")
	if err != nil {
		t.Fatal(err)
	}
	if out != common.OutcomeRejectedAlreadyOwned {
		t.Fatalf("outcome = %s", out)
	}

	// Rejection never touches seats or payment.
	if st.charger.count() != 1 {
		t.Fatalf("charges = %d, want 1", st.charger.count())
	}
	opp, _ := st.store.Opportunity(testOppID)
	if len(opp.SeatHolders) != 1 || opp.SeatHolders[0] != 11 {
		t.Fatalf("seats: %v", opp.SeatHolders)
	}
}
