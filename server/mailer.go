package server

import (
	"errors"

	"github.com/missionMeteora/mandrill"
)

// mandrillMailer adapts the outbound mandrill client to the dispatch
// interface. A rejected recipient counts as a failed send.
type mandrillMailer struct {
	ec *mandrill.Client
}

func (m *mandrillMailer) Send(to, toName, subject, html string) error {
	resp, err := m.ec.SendMessage(html, subject, to, toName, []string{"opportunity"})
	if err != nil {
		return err
	}
	if len(resp) != 1 || resp[0].RejectReason != "" {
		return errors.New("email rejected for " + to)
	}
	return nil
}
