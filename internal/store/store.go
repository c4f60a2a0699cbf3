// Package store owns the bolt-backed records for opportunities and
// notifications. All seat mutations happen inside a single writable
// transaction with the observed seat count as a precondition, so two
// racing acceptances can never both consume the last seat.
package store

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/boltdb/bolt"

	"github.com/MikaelConecto/services-splitted-stacks/config"
	"github.com/MikaelConecto/services-splitted-stacks/internal/common"
	"github.com/MikaelConecto/services-splitted-stacks/misc"
)

var (
	ErrOpportunityNotFound  = errors.New("opportunity not found")
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrCustomerMismatch means the opportunity ID is already stored for a
	// different customer contact; replaying is only safe for the same pair.
	ErrCustomerMismatch = errors.New("opportunity exists for a different customer contact")

	// ErrSeatConflict means the snapshot moved between the caller's read
	// and the write; the admission decision must be re-read and retried.
	ErrSeatConflict = errors.New("seat snapshot changed, retry the decision")
	ErrNoSeats      = errors.New("no seats remaining")
	ErrAlreadySeat  = errors.New("company already holds a seat")
)

type Store struct {
	db  *bolt.DB
	cfg *config.Config
}

func New(db *bolt.DB, cfg *config.Config) *Store {
	return &Store{db: db, cfg: cfg}
}

// CreateOpportunity inserts the snapshot unless a record for the same
// (opportunityId, customerContactId) pair exists; repeated delivery of the
// same creation event reuses the stored row and its tracking ID.
func (s *Store) CreateOpportunity(o *common.Opportunity) (existing *common.Opportunity, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := misc.GetBucket(tx, s.cfg.Bucket.Opportunity)
		if v := b.Get([]byte(o.Key())); v != nil {
			var cur common.Opportunity
			if err := misc.GetTxJson(tx, s.cfg.Bucket.Opportunity, o.Key(), &cur); err != nil {
				return err
			}
			if cur.CustomerContactID == o.CustomerContactID {
				existing = &cur
				return nil
			}
			// Same CRM lead re-announced with a different customer contact.
			// Overwriting would lose seat history, so refuse and let a human
			// sort the CRM side out.
			return ErrCustomerMismatch
		}
		return misc.PutTxJson(tx, s.cfg.Bucket.Opportunity, o.Key(), o)
	})
	return existing, err
}

func (s *Store) Opportunity(id int64) (*common.Opportunity, error) {
	var o common.Opportunity
	err := s.db.View(func(tx *bolt.Tx) error {
		v := misc.GetBucket(tx, s.cfg.Bucket.Opportunity).Get([]byte(strconv.FormatInt(id, 10)))
		if v == nil {
			return ErrOpportunityNotFound
		}
		return misc.GetTxJson(tx, s.cfg.Bucket.Opportunity, strconv.FormatInt(id, 10), &o)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) OpportunityByTrackingID(trackingID string) (*common.Opportunity, error) {
	var found *common.Opportunity
	err := s.db.View(func(tx *bolt.Tx) error {
		return misc.GetBucket(tx, s.cfg.Bucket.Opportunity).ForEach(func(k, v []byte) error {
			var o common.Opportunity
			if err := json.Unmarshal(v, &o); err != nil {
				return nil // skip corrupt rows, they are logged elsewhere
			}
			if o.TrackingID == trackingID {
				found = &o
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrOpportunityNotFound
	}
	return found, nil
}

// PutNotificationIfAbsent creates the row once per composite key. A retry
// of the same fan-out must not reset an already-answered row.
func (s *Store) PutNotificationIfAbsent(n *common.Notification) (created bool, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := misc.GetBucket(tx, s.cfg.Bucket.Notification)
		if v := b.Get([]byte(n.ID)); v != nil {
			return nil
		}
		created = true
		return misc.PutTxJson(tx, s.cfg.Bucket.Notification, n.ID, n)
	})
	return created, err
}

func (s *Store) Notification(key string) (*common.Notification, error) {
	var n common.Notification
	err := s.db.View(func(tx *bolt.Tx) error {
		v := misc.GetBucket(tx, s.cfg.Bucket.Notification).Get([]byte(key))
		if v == nil {
			return ErrNotificationNotFound
		}
		return misc.GetTxJson(tx, s.cfg.Bucket.Notification, key, &n)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Store) NotificationsByOpportunity(opportunityID int64) ([]*common.Notification, error) {
	var out []*common.Notification
	err := s.db.View(func(tx *bolt.Tx) error {
		return misc.GetBucket(tx, s.cfg.Bucket.Notification).ForEach(func(k, v []byte) error {
			var n common.Notification
			if err := json.Unmarshal(v, &n); err != nil {
				return nil
			}
			if n.OpportunityID == opportunityID {
				out = append(out, &n)
			}
			return nil
		})
	})
	return out, err
}

// SetAnswer records a terminal answer on one notification row. Used for
// rejections and for the no-seat/already-owned accept outcomes, which
// never touch the seat fields.
func (s *Store) SetAnswer(key string, answer common.Answer, answerType, answeredBy string, at int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var n common.Notification
		if misc.GetBucket(tx, s.cfg.Bucket.Notification).Get([]byte(key)) == nil {
			return ErrNotificationNotFound
		}
		if err := misc.GetTxJson(tx, s.cfg.Bucket.Notification, key, &n); err != nil {
			return err
		}
		n.Answer = answer
		n.AnswerType = answerType
		n.AnsweredBy = answeredBy
		n.AnsweredAt = at
		n.UpdatedAt = at
		return misc.PutTxJson(tx, s.cfg.Bucket.Notification, key, &n)
	})
}

// CommitAcceptance is the one-shot seat claim. Inside a single write
// transaction it re-validates the seat snapshot against what the caller
// observed, records the accepting contact's answer, cascades the same
// answer to every sibling contact of the company, appends the company to
// the seat list and decrements the remaining count. expectRemaining is
// the compare-and-set precondition.
func (s *Store) CommitAcceptance(opportunityID, companyID, contactID int64, answerType, answeredBy, transactionID string, expectRemaining int, at int64) (*common.Opportunity, error) {
	var out *common.Opportunity
	err := s.db.Update(func(tx *bolt.Tx) error {
		oppKey := strconv.FormatInt(opportunityID, 10)
		if misc.GetBucket(tx, s.cfg.Bucket.Opportunity).Get([]byte(oppKey)) == nil {
			return ErrOpportunityNotFound
		}
		var opp common.Opportunity
		if err := misc.GetTxJson(tx, s.cfg.Bucket.Opportunity, oppKey, &opp); err != nil {
			return err
		}

		if opp.HasSeat(companyID) {
			return ErrAlreadySeat
		}
		if opp.RemainingSeats == 0 {
			return ErrNoSeats
		}
		if opp.RemainingSeats != expectRemaining {
			return ErrSeatConflict
		}

		// The accepting contact's own row.
		key := common.NotificationKey(companyID, contactID, opportunityID)
		var n common.Notification
		if misc.GetBucket(tx, s.cfg.Bucket.Notification).Get([]byte(key)) == nil {
			return ErrNotificationNotFound
		}
		if err := misc.GetTxJson(tx, s.cfg.Bucket.Notification, key, &n); err != nil {
			return err
		}
		n.Answer = common.Accepted
		n.AnswerType = answerType
		n.AnsweredBy = answeredBy
		n.TransactionID = transactionID
		n.AnsweredAt = at
		n.UpdatedAt = at
		if err := misc.PutTxJson(tx, s.cfg.Bucket.Notification, key, &n); err != nil {
			return err
		}

		// Cascade to the company's other contacts so everyone at the
		// accepting company converges on the same terminal answer.
		b := misc.GetBucket(tx, s.cfg.Bucket.Notification)
		var cascade []*common.Notification
		if err := b.ForEach(func(k, v []byte) error {
			var sib common.Notification
			if err := json.Unmarshal(v, &sib); err != nil {
				return nil
			}
			if sib.ID == key || sib.CompanyID != companyID || sib.OpportunityID != opportunityID {
				return nil
			}
			if sib.Answer.IsAcceptedVariant() {
				return nil
			}
			sib.Answer = common.Accepted
			sib.AnswerType = common.AnswerTypeColleague
			sib.AnsweredBy = answeredBy
			sib.TransactionID = transactionID
			sib.AnsweredAt = at
			sib.UpdatedAt = at
			cascade = append(cascade, &sib)
			return nil
		}); err != nil {
			return err
		}
		for _, sib := range cascade {
			if err := misc.PutTxJson(tx, s.cfg.Bucket.Notification, sib.ID, sib); err != nil {
				return err
			}
		}

		opp.SeatHolders = append(opp.SeatHolders, companyID)
		opp.RemainingSeats--
		if opp.RemainingSeats > 0 {
			opp.Status = common.StatusInProgress
		} else {
			opp.Status = common.StatusFull
		}
		opp.UpdatedAt = at

		out = &opp
		return misc.PutTxJson(tx, s.cfg.Bucket.Opportunity, oppKey, &opp)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Now is split out so tests can pin timestamps.
func Now() int64 {
	return time.Now().UnixMilli()
}
