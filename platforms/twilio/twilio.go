// Package twilio sends the fan-out SMS. Only contacts with a verified
// phone number ever reach this client.
package twilio

import (
	"errors"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

var (
	ErrMissingPhone = errors.New("missing destination phone number")
)

type Client struct {
	rest *twilio.RestClient
	from string
}

func New(sid, token, from string) *Client {
	return &Client{
		rest: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: sid,
			Password: token,
		}),
		from: from,
	}
}

func (c *Client) Send(to, body string) error {
	if to == "" {
		return ErrMissingPhone
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)

	_, err := c.rest.Api.CreateMessage(params)
	return err
}
