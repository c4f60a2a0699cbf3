package common

import "strconv"

type OpportunityStatus string

const (
	StatusNotified   OpportunityStatus = "Notified"
	StatusInProgress OpportunityStatus = "In progress"
	StatusFull       OpportunityStatus = "Full"
)

// Opportunity is the local snapshot of a distributed customer lead. The
// CRM remains the system of record for the lead itself; this row owns the
// seat accounting and the customer details frozen at fan-out time.
type Opportunity struct {
	ID                int64  `json:"opportunityId"`
	TrackingID        string `json:"trackingId"`
	CustomerContactID int64  `json:"customerContactId"`

	Status OpportunityStatus `json:"status"`

	TotalSeats     int     `json:"totalSeats"`
	RemainingSeats int     `json:"remainingSeats"`
	SeatHolders    []int64 `json:"seatHolders,omitempty"` // company IDs, append-only, index = claim order

	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`

	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`

	JobType                string  `json:"jobType,omitempty"`
	JobTypeSpecific        string  `json:"jobTypeSpecific,omitempty"`
	PreferredContactMethod string  `json:"preferredContactMethod,omitempty"`
	PreferredContactTime   string  `json:"preferredContactTime,omitempty"`
	Latitude               float64 `json:"latitude,omitempty"`
	Longitude              float64 `json:"longitude,omitempty"`

	CompaniesNotified int `json:"companiesNotified,omitempty"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

func (o *Opportunity) Key() string {
	return strconv.FormatInt(o.ID, 10)
}

func (o *Opportunity) HasSeat(companyID int64) bool {
	for _, id := range o.SeatHolders {
		if id == companyID {
			return true
		}
	}
	return false
}

// SeatsConsistent reports whether seats held plus seats remaining still
// equals the configured total.
func (o *Opportunity) SeatsConsistent() bool {
	return o.RemainingSeats+len(o.SeatHolders) == o.TotalSeats
}
