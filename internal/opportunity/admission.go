package opportunity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikaelConecto/services-splitted-stacks/config"
	"github.com/MikaelConecto/services-splitted-stacks/internal/auth"
	"github.com/MikaelConecto/services-splitted-stacks/internal/common"
	"github.com/MikaelConecto/services-splitted-stacks/internal/store"
	"github.com/MikaelConecto/services-splitted-stacks/internal/tokens"
	"github.com/MikaelConecto/services-splitted-stacks/platforms/crm"
)

const crmSyncAttempts = 3

// Admission arbitrates seat claims. Decisions for one opportunity are
// serialized: the seat read, the charge and the commit all happen under
// that opportunity's lock, and the commit still re-checks the seat count
// as a conditional-write backstop.
type Admission struct {
	cfg     *config.Config
	store   *store.Store
	crm     CRM
	charger Charger
	codec   *tokens.Codec
	locks   *seatLocks

	Alert func(msg string, err error)
}

func NewAdmission(cfg *config.Config, st *store.Store, c CRM, ch Charger, codec *tokens.Codec) *Admission {
	return &Admission{
		cfg:     cfg,
		store:   st,
		crm:     c,
		charger: ch,
		codec:   codec,
		locks:   newSeatLocks(),
	}
}

func (a *Admission) alert(msg string, err error) {
	if a.Alert != nil {
		a.Alert(msg, err)
	}
}

// decode unwraps the opaque path tokens and asserts the company token
// matches the authenticated caller before anything else happens.
func (a *Admission) decode(user *auth.User, encOppID, encCompanyID string) (oppID, companyID int64, err error) {
	if oppID, err = a.codec.DecryptID(encOppID); err != nil {
		return 0, 0, err
	}
	if companyID, err = a.codec.DecryptID(encCompanyID); err != nil {
		return 0, 0, err
	}
	if companyID != user.CompanyID {
		return 0, 0, ErrAuthorizationMismatch
	}
	return oppID, companyID, nil
}

// readSeats loads the live CRM associated-company list and the local
// snapshot together, and asserts the two seat representations agree
// before the decision trusts them. On divergence it alerts and treats
// membership in either list as "seated", which can never double-charge.
func (a *Admission) readSeats(ctx context.Context, oppID int64) (*crm.Opportunity, *common.Opportunity, error) {
	var (
		crmOpp *crm.Opportunity
		snap   *common.Opportunity
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		crmOpp, err = a.crm.FetchOpportunity(egCtx, oppID)
		return
	})
	eg.Go(func() (err error) {
		snap, err = a.store.Opportunity(oppID)
		return
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	if diverged(crmOpp.AssociatedCompanyIDs, snap.SeatHolders) {
		a.alert(fmt.Sprintf("seat lists diverged for opportunity %d: crm=%v local=%v",
			oppID, crmOpp.AssociatedCompanyIDs, snap.SeatHolders), nil)
	}
	return crmOpp, snap, nil
}

func diverged(crmList, local []int64) bool {
	if len(crmList) != len(local) {
		return true
	}
	seen := make(map[int64]bool, len(crmList))
	for _, id := range crmList {
		seen[id] = true
	}
	for _, id := range local {
		if !seen[id] {
			return true
		}
	}
	return false
}

func seated(crmOpp *crm.Opportunity, snap *common.Opportunity, companyID int64) bool {
	if snap.HasSeat(companyID) {
		return true
	}
	for _, id := range crmOpp.AssociatedCompanyIDs {
		if id == companyID {
			return true
		}
	}
	return false
}

// Accept runs the claim state machine for one company. Repeated calls
// from an already-seated company are idempotent: no re-charge, no
// re-cascade.
func (a *Admission) Accept(ctx context.Context, user *auth.User, encOppID, encCompanyID, answerType string) (common.Outcome, error) {
	oppID, companyID, err := a.decode(user, encOppID, encCompanyID)
	if err != nil {
		return "", err
	}

	mu := a.locks.Get(oppID)
	mu.Lock()
	defer mu.Unlock()

	crmOpp, snap, err := a.readSeats(ctx, oppID)
	if err != nil {
		return "", err
	}

	now := store.Now()
	key := common.NotificationKey(companyID, user.ContactID, oppID)

	if seated(crmOpp, snap, companyID) {
		if err := a.store.SetAnswer(key, common.AcceptedAlreadyOwned, answerType, user.Sub, now); err != nil {
			return "", err
		}
		return common.OutcomeAlreadyOwned, nil
	}

	if snap.RemainingSeats == 0 {
		// No payment is ever attempted on a full opportunity.
		if err := a.store.SetAnswer(key, common.AcceptedTooLate, answerType, user.Sub, now); err != nil {
			return "", err
		}
		return common.OutcomeTooLate, nil
	}

	company, err := a.crm.FetchContact(ctx, companyID)
	if err != nil {
		return "", err
	}
	if company.StripeCustomer == "" || company.StripeSource == "" {
		return "", ErrNoPaymentConfigured
	}

	desc := fmt.Sprintf("%d - Conecto %s - %s", oppID, a.cfg.ServiceName, crmOpp.Name)
	txID, err := a.charger.Charge(company.StripeCustomer, a.cfg.OpportunityCost, desc, map[string]string{
		"opportunityId": strconv.FormatInt(oppID, 10),
		"companyId":     strconv.FormatInt(companyID, 10),
	})
	if err != nil {
		// Nothing was committed; the caller may retry.
		return "", fmt.Errorf("%w: %v", ErrPaymentCaptureFailed, err)
	}

	if _, err := a.store.CommitAcceptance(oppID, companyID, user.ContactID, answerType, user.Sub, txID, snap.RemainingSeats, now); err != nil {
		// Payment is captured at this point; whatever happens next must be
		// visible for manual reconciliation.
		switch {
		case errors.Is(err, store.ErrAlreadySeat):
			a.alert("charge "+txID+" captured for company already seated", err)
			return common.OutcomeAlreadyOwned, nil
		case errors.Is(err, store.ErrNoSeats), errors.Is(err, store.ErrSeatConflict):
			a.alert("charge "+txID+" captured but seats were gone at commit", err)
			return common.OutcomeTooLate, nil
		default:
			a.alert("charge "+txID+" captured but local commit failed", err)
			return "", err
		}
	}

	// Mirror the seat onto the CRM's associated-company list. The CRM
	// dedupes the pair, so retrying is safe; after a captured payment we
	// push until it lands or alert for manual repair.
	var syncErr error
	for i := 0; i < crmSyncAttempts; i++ {
		if syncErr = a.crm.AddAssociatedCompany(ctx, oppID, companyID); syncErr == nil {
			break
		}
		time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
	}
	if syncErr != nil {
		a.alert(fmt.Sprintf("failed to register company %d on CRM opportunity %d after charge %s", companyID, oppID, txID), syncErr)
	}

	return common.OutcomeAcceptedFirst, nil
}

// Reject records a company's refusal. Never touches seats or payment.
func (a *Admission) Reject(ctx context.Context, user *auth.User, encOppID, encCompanyID, answerType string) (common.Outcome, error) {
	oppID, companyID, err := a.decode(user, encOppID, encCompanyID)
	if err != nil {
		return "", err
	}

	// Same lock as Accept: a rejection racing a colleague's acceptance
	// must observe the seat either before or after the whole claim, or
	// the plain Rejected write could clobber the cascaded answer.
	mu := a.locks.Get(oppID)
	mu.Lock()
	defer mu.Unlock()

	crmOpp, snap, err := a.readSeats(ctx, oppID)
	if err != nil {
		return "", err
	}

	now := store.Now()
	key := common.NotificationKey(companyID, user.ContactID, oppID)

	if seated(crmOpp, snap, companyID) {
		if err := a.store.SetAnswer(key, common.RejectedAlreadyOwned, answerType, user.Sub, now); err != nil {
			return "", err
		}
		return common.OutcomeRejectedAlreadyOwned, nil
	}

	if err := a.store.SetAnswer(key, common.Rejected, answerType, user.Sub, now); err != nil {
		return "", err
	}
	return common.OutcomeRejected, nil
}
