// Package crm is the client for the external CRM holding companies,
// contacts and the durable opportunity records. The associated-company
// list on a CRM opportunity is the system of record for seat occupancy.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrNotFound = errors.New("crm: not found")
)

type Opportunity struct {
	ID                   int64   `json:"id"`
	Name                 string  `json:"name"`
	ContactID            int64   `json:"contact_id"` // the customer who raised the lead
	AssociatedCompanyIDs []int64 `json:"-"`

	JobType                string  `json:"jobType"`
	JobTypeSpecific        string  `json:"jobTypeSpecific"`
	PreferredContactMethod string  `json:"preferredContactMethod"`
	PreferredContactTime   string  `json:"preferredContactTime"`
	Latitude               float64 `json:"latitude,string"`
	Longitude              float64 `json:"longitude,string"`
	TrackingID             string  `json:"uniqueId"`
}

type Address struct {
	Line1      string `json:"line1"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
}

// Contact doubles as a person and (when IsOrganization) a company, the
// way the CRM models both.
type Contact struct {
	ID             int64   `json:"id"`
	IsOrganization bool    `json:"is_organization"`
	ContactID      int64   `json:"contact_id"` // owning company for person rows
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	Address        Address `json:"address"`

	// Custom fields the platform relies on.
	Verified          bool   `json:"verified"`
	Locale            string `json:"locale"`
	ActiveForCategory bool   `json:"activeForCategory"`
	IdentitySub       string `json:"identitySub"`
	StripeCustomer    string `json:"stripeCustomer"`
	StripeSource      string `json:"stripeSource"`
}

type Client struct {
	endpoint string
	token    string
	hc       *http.Client
}

func New(endpoint, token string) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		hc:       &http.Client{Timeout: 3 * time.Second},
	}
}

type associatedItem struct {
	Data struct {
		ContactID int64 `json:"contact_id"`
	} `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("crm: %s %s returned %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) FetchOpportunity(ctx context.Context, id int64) (*Opportunity, error) {
	var raw struct {
		Data struct {
			Opportunity
			CustomFields       json.RawMessage `json:"custom_fields"`
			AssociatedContacts struct {
				Items []associatedItem `json:"items"`
			} `json:"associated_contacts"`
		} `json:"data"`
	}
	if err := c.do(ctx, "GET", fmt.Sprintf("/deals/%d", id), nil, &raw); err != nil {
		return nil, err
	}

	opp := raw.Data.Opportunity
	if len(raw.Data.CustomFields) != 0 {
		// Job metadata lives in custom fields on the CRM side.
		if err := json.Unmarshal(raw.Data.CustomFields, &opp); err != nil {
			return nil, err
		}
	}
	for _, it := range raw.Data.AssociatedContacts.Items {
		opp.AssociatedCompanyIDs = append(opp.AssociatedCompanyIDs, it.Data.ContactID)
	}
	return &opp, nil
}

func (c *Client) FetchContact(ctx context.Context, id int64) (*Contact, error) {
	var raw struct {
		Data struct {
			Contact
			CustomFields json.RawMessage `json:"custom_fields"`
		} `json:"data"`
	}
	if err := c.do(ctx, "GET", fmt.Sprintf("/contacts/%d", id), nil, &raw); err != nil {
		return nil, err
	}
	ct := raw.Data.Contact
	if len(raw.Data.CustomFields) != 0 {
		if err := json.Unmarshal(raw.Data.CustomFields, &ct); err != nil {
			return nil, err
		}
	}
	return &ct, nil
}

// SearchCompanies returns the verified organizations eligible for
// fan-out.
func (c *Client) SearchCompanies(ctx context.Context) ([]*Contact, error) {
	body := map[string]interface{}{
		"is_organization": true,
		"custom_fields":   map[string]interface{}{"verified": 1},
	}
	return c.search(ctx, body)
}

// CompanyContacts returns the person rows attached to a company.
func (c *Client) CompanyContacts(ctx context.Context, companyID int64) ([]*Contact, error) {
	body := map[string]interface{}{
		"contact_id":      companyID,
		"is_organization": false,
	}
	return c.search(ctx, body)
}

func (c *Client) search(ctx context.Context, body interface{}) ([]*Contact, error) {
	var raw struct {
		Items []struct {
			Data struct {
				Contact
				CustomFields json.RawMessage `json:"custom_fields"`
			} `json:"data"`
		} `json:"items"`
	}
	if err := c.do(ctx, "POST", "/contacts/search", body, &raw); err != nil {
		return nil, err
	}
	out := make([]*Contact, 0, len(raw.Items))
	for _, it := range raw.Items {
		ct := it.Data.Contact
		if len(it.Data.CustomFields) != 0 {
			if err := json.Unmarshal(it.Data.CustomFields, &ct); err != nil {
				continue
			}
		}
		out = append(out, &ct)
	}
	return out, nil
}

// AddAssociatedCompany registers a company on the CRM opportunity. The
// CRM deduplicates the pair, so retries never double-consume a seat on
// its side.
func (c *Client) AddAssociatedCompany(ctx context.Context, opportunityID, companyID int64) error {
	body := map[string]interface{}{"data": map[string]int64{"contact_id": companyID}}
	return c.do(ctx, "POST", fmt.Sprintf("/deals/%d/associated_contacts", opportunityID), body, nil)
}

// UpdateOpportunity writes custom fields back onto the CRM record (the
// tracking ID cross-reference).
func (c *Client) UpdateOpportunity(ctx context.Context, id int64, fields map[string]interface{}) error {
	body := map[string]interface{}{"data": map[string]interface{}{"custom_fields": fields}}
	return c.do(ctx, "PUT", fmt.Sprintf("/deals/%d", id), body, nil)
}
