package common

import "fmt"

type Answer string

const (
	Unanswered           Answer = "Unanswered"
	Accepted             Answer = "Accepted"
	AcceptedAlreadyOwned Answer = "Accepted but already owned"
	AcceptedTooLate      Answer = "Accepted too late"
	Rejected             Answer = "Rejected"
	RejectedAlreadyOwned Answer = "Rejected but already owned"
)

// IsAcceptedVariant filters the colleague cascade: rows already carrying
// an accepted answer are never rewritten.
func (a Answer) IsAcceptedVariant() bool {
	return a == Accepted || a == AcceptedAlreadyOwned
}

// AnswerType values. "colleague" marks rows cascaded from a coworker's
// acceptance rather than answered directly.
const (
	AnswerTypeColleague = "colleague"
)

// Notification is one row per (company, contact, opportunity). Created
// exactly once by fan-out, answered at most once per company; the
// firstContact fields belong to the downstream contact flow and are only
// zeroed here at creation.
type Notification struct {
	ID string `json:"id"` // companyId_contactId_opportunityId

	OpportunityID int64  `json:"opportunityId"`
	TrackingID    string `json:"trackingId"`
	CompanyID     int64  `json:"companyId"`
	ContactID     int64  `json:"contactId"`

	Answer        Answer `json:"answer"`
	AnswerType    string `json:"answerType,omitempty"`
	AnsweredBy    string `json:"answeredBy,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	AnsweredAt    int64  `json:"answeredAt,omitempty"`

	FirstContact       bool   `json:"firstContact"`
	FirstContactMethod string `json:"firstContactMethod,omitempty"`
	FirstContactInfo   string `json:"firstContactInfo,omitempty"`
	FirstContactDate   int64  `json:"firstContactDate,omitempty"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

func NotificationKey(companyID, contactID, opportunityID int64) string {
	return fmt.Sprintf("%d_%d_%d", companyID, contactID, opportunityID)
}
