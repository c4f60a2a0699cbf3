// Package auth resolves bearer tokens into the user-claims record served
// by the external identity provider. Identity itself lives outside this
// service; we only gate on the resolved claims.
package auth

import (
	"context"
	"errors"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrUserInactive = errors.New("the user is not active")
	ErrUserNotFound = errors.New("user not found")
)

// User is the claims record. CompanyID/ContactID are the caller's CRM
// identities; Sub is the identity provider's stable subject.
type User struct {
	Sub       string `json:"sub"`
	CompanyID int64  `json:"companyId"`
	ContactID int64  `json:"contactId"`
	IsActive  bool   `json:"isActive"`
	IsAdmin   bool   `json:"isAdmin"`

	PhoneVerified bool `json:"phoneVerified"`
}

type Provider interface {
	// UserByToken resolves a request bearer token.
	UserByToken(ctx context.Context, token string) (*User, error)
	// UserBySub looks a user up by identity subject; fan-out uses it to
	// check phone verification before dispatching SMS.
	UserBySub(ctx context.Context, sub string) (*User, error)
}
