package opportunity

import (
	"github.com/MikaelConecto/services-splitted-stacks/internal/auth"
	"github.com/MikaelConecto/services-splitted-stacks/internal/common"
	"github.com/MikaelConecto/services-splitted-stacks/internal/store"
	"github.com/MikaelConecto/services-splitted-stacks/internal/tokens"
	"github.com/MikaelConecto/services-splitted-stacks/misc"
)

// Query serves read-side views to claiming companies. Everything that
// leaves here is redacted: internal IDs go back out as opaque tokens,
// postal codes are truncated and nobody sees another company's seat.
type Query struct {
	Store *store.Store
	Codec *tokens.Codec
}

// OwnedSnapshot is what a seat-holding company gets for its purchased
// lead: full customer coordinates, but only its own seat.
type OwnedSnapshot struct {
	OpportunityID     string `json:"opportunityId"`
	TrackingID        string `json:"trackingId"`
	CustomerContactID string `json:"customerContactId"`
	Status            string `json:"status"`

	Name      string `json:"name"`
	Email     string `json:"email"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Phone     string `json:"phone"`

	Address    string `json:"address"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`

	JobType                string  `json:"jobType"`
	JobTypeSpecific        string  `json:"jobTypeSpecific"`
	PreferredContactMethod string  `json:"preferredContactMethod"`
	PreferredContactTime   string  `json:"preferredContactTime"`
	Latitude               float64 `json:"latitude"`
	Longitude              float64 `json:"longitude"`

	RemainingSeats int   `json:"remainingSeats"`
	CreatedAt      int64 `json:"createdAt"`
	UpdatedAt      int64 `json:"updatedAt"`
}

// NotificationView is the pre-decision view: enough to decide whether
// the lead is worth a seat, never enough to reach the customer around
// the platform.
type NotificationView struct {
	OpportunityID string `json:"opportunityId"`
	CompanyID     string `json:"companyId"`
	ContactID     string `json:"contactId"`
	TrackingID    string `json:"trackingId"`

	Answer     common.Answer `json:"answer"`
	AnswerType string        `json:"answerType,omitempty"`
	Accepted   bool          `json:"accepted"`

	Status         string `json:"status"`
	RemainingSeats int    `json:"remainingSeats"`

	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
	State      string `json:"state"`

	JobType                string  `json:"jobType"`
	JobTypeSpecific        string  `json:"jobTypeSpecific"`
	PreferredContactMethod string  `json:"preferredContactMethod"`
	PreferredContactTime   string  `json:"preferredContactTime"`
	Latitude               float64 `json:"latitude"`
	Longitude              float64 `json:"longitude"`

	CompaniesNotified int   `json:"companiesNotified"`
	CreatedAt         int64 `json:"createdAt"`
	UpdatedAt         int64 `json:"updatedAt"`
}

// FetchOwnedSnapshot resolves a tracking ID for the calling company.
// A miss on the ownership check is a normal outcome, not an error:
// owned == false with a nil snapshot.
func (q *Query) FetchOwnedSnapshot(user *auth.User, trackingID string) (*OwnedSnapshot, bool, error) {
	o, err := q.Store.OpportunityByTrackingID(trackingID)
	if err != nil {
		return nil, false, err
	}
	if !o.HasSeat(user.CompanyID) {
		return nil, false, nil
	}

	return &OwnedSnapshot{
		OpportunityID:     q.Codec.EncryptID(o.ID),
		TrackingID:        o.TrackingID,
		CustomerContactID: q.Codec.EncryptID(o.CustomerContactID),
		Status:            string(o.Status),

		Name:      o.Name,
		Email:     o.Email,
		FirstName: o.FirstName,
		LastName:  o.LastName,
		Phone:     o.Phone,

		Address:    o.Address,
		PostalCode: misc.TruncatePostal(o.PostalCode),
		City:       o.City,
		State:      o.State,
		Country:    o.Country,

		JobType:                o.JobType,
		JobTypeSpecific:        o.JobTypeSpecific,
		PreferredContactMethod: o.PreferredContactMethod,
		PreferredContactTime:   o.PreferredContactTime,
		Latitude:               o.Latitude,
		Longitude:              o.Longitude,

		RemainingSeats: o.RemainingSeats,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}, true, nil
}

// FetchForNotification resolves the tokens from a notification link and
// returns the redacted pre-decision view. The accepted flag is
// recomputed from the current seat slots rather than trusted from the
// stored answer.
func (q *Query) FetchForNotification(user *auth.User, encOppID, encCompanyID string) (*NotificationView, error) {
	oppID, err := q.Codec.DecryptID(encOppID)
	if err != nil {
		return nil, err
	}
	companyID, err := q.Codec.DecryptID(encCompanyID)
	if err != nil {
		return nil, err
	}
	if companyID != user.CompanyID {
		return nil, ErrAuthorizationMismatch
	}

	o, err := q.Store.Opportunity(oppID)
	if err != nil {
		return nil, err
	}
	n, err := q.Store.Notification(common.NotificationKey(companyID, user.ContactID, oppID))
	if err != nil {
		return nil, err
	}

	return &NotificationView{
		OpportunityID: q.Codec.EncryptID(o.ID),
		CompanyID:     q.Codec.EncryptID(companyID),
		ContactID:     q.Codec.EncryptID(n.ContactID),
		TrackingID:    o.TrackingID,

		Answer:     n.Answer,
		AnswerType: n.AnswerType,
		Accepted:   o.HasSeat(companyID),

		Status:         string(o.Status),
		RemainingSeats: o.RemainingSeats,

		PostalCode: misc.TruncatePostal(o.PostalCode),
		City:       o.City,
		State:      o.State,

		JobType:                o.JobType,
		JobTypeSpecific:        o.JobTypeSpecific,
		PreferredContactMethod: o.PreferredContactMethod,
		PreferredContactTime:   o.PreferredContactTime,
		Latitude:               o.Latitude,
		Longitude:              o.Longitude,

		CompaniesNotified: o.CompaniesNotified,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}, nil
}
