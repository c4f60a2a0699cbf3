package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// IdentityClient talks to the identity provider's admin API. Responses
// carry the custom attributes we map onto User.
type IdentityClient struct {
	endpoint string
	key      string
	hc       *http.Client
}

func NewIdentityClient(endpoint, key string) *IdentityClient {
	return &IdentityClient{
		endpoint: endpoint,
		key:      key,
		hc:       &http.Client{Timeout: 3 * time.Second},
	}
}

type identityResponse struct {
	Sub           string `json:"sub"`
	CompanyID     int64  `json:"custom:companyId,string"`
	ContactID     int64  `json:"custom:contactId,string"`
	IsActive      string `json:"custom:isActive"`
	IsAdmin       string `json:"custom:isAdmin"`
	PhoneVerified string `json:"phone_number_verified"`
}

func (ic *IdentityClient) UserByToken(ctx context.Context, token string) (*User, error) {
	return ic.fetch(ctx, ic.endpoint+"/user?accessToken="+url.QueryEscape(token))
}

func (ic *IdentityClient) UserBySub(ctx context.Context, sub string) (*User, error) {
	return ic.fetch(ctx, ic.endpoint+"/user?sub="+url.QueryEscape(sub))
}

func (ic *IdentityClient) fetch(ctx context.Context, endpoint string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+ic.key)
	req.Header.Set("Accept", "application/json")

	resp, err := ic.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrUserNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidToken
	default:
		return nil, fmt.Errorf("identity provider returned %d", resp.StatusCode)
	}

	var ir identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, err
	}
	return &User{
		Sub:           ir.Sub,
		CompanyID:     ir.CompanyID,
		ContactID:     ir.ContactID,
		IsActive:      ir.IsActive == "1" || ir.IsActive == "true",
		IsAdmin:       ir.IsAdmin == "1" || ir.IsAdmin == "true",
		PhoneVerified: ir.PhoneVerified == "true",
	}, nil
}
