// Package billing wraps the payment processor. One call, one captured
// charge; the processor guarantees atomicity per idempotency key, so a
// retried attempt gets a fresh key.
package billing

import (
	"errors"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/charge"
	"github.com/stripe/stripe-go/currency"
)

var (
	ErrAmount   = errors.New("attempting to charge zero dollar value")
	ErrCustomer = errors.New("unrecognized customer")
)

func Init(key string) {
	stripe.Key = key
}

type Client struct{}

// Charge captures amount (cents) from the stored customer. The
// description and metadata carry the opportunity and company identifiers
// for reconciliation if a later step fails.
func (Client) Charge(customer string, amount uint64, desc string, meta map[string]string) (string, error) {
	if amount == 0 {
		return "", ErrAmount
	}
	if customer == "" {
		return "", ErrCustomer
	}

	params := &stripe.ChargeParams{
		Amount:   amount,
		Currency: currency.CAD,
		Customer: customer,
		Desc:     desc,
	}
	params.IdempotencyKey = uuid.NewString()
	for k, v := range meta {
		params.AddMeta(k, v)
	}

	ch, err := charge.New(params)
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}
