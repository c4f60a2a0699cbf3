package common

// Outcome is the terminal result of an admission decision. These are
// values returned to the caller, not errors; the messages are the wire
// strings clients already key on.
type Outcome string

const (
	OutcomeAcceptedFirst        Outcome = "opportunity_is_accepted"
	OutcomeAlreadyOwned         Outcome = "opportunity_already_owned"
	OutcomeTooLate              Outcome = "opportunity_is_full"
	OutcomeRejected             Outcome = "rejected_opportunity"
	OutcomeRejectedAlreadyOwned Outcome = "rejected_opportunity_already_owned"
	OutcomeNotOwned             Outcome = "opportunity_not_owned"
)
