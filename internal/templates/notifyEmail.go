package templates

import "fmt"

const opportunityEmailFrTmpl = `
<div>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Bonjour {{Name}},
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Une nouvelle opportunité vient d'être publiée dans votre secteur :
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		<table border="0" cellpadding="12" cellspacing="0" width="600" style="font-size:14px;">
		<tr>
			<th align="left">Numéro :</th>
			<th align="left">Ville :</th>
			<th align="left">Type :</th>
			<th align="left">Pente :</th>
		</tr>
		<tr>
			<td align="left" valign="middle">{{TrackingID}}</td>
			<td align="left" valign="middle">{{City}}</td>
			<td align="left" valign="middle">{{JobType}}</td>
			<td align="left" valign="middle">{{JobTypeSpecific}}</td>
		</tr>
		</table>
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Pour accepter ou refuser cette opportunité, rendez-vous sur la plateforme :<br/>
		<a href="{{AcceptanceURL}}">{{AcceptanceURL}}</a>
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		L'équipe Conecto
	</p>
</div>
`

const opportunityEmailEnTmpl = `
<div>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Hi {{Name}},
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		A new opportunity was just published in your area:
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		<table border="0" cellpadding="12" cellspacing="0" width="600" style="font-size:14px;">
		<tr>
			<th align="left">Number:</th>
			<th align="left">City:</th>
			<th align="left">Type:</th>
			<th align="left">Slope:</th>
		</tr>
		<tr>
			<td align="left" valign="middle">{{TrackingID}}</td>
			<td align="left" valign="middle">{{City}}</td>
			<td align="left" valign="middle">{{JobType}}</td>
			<td align="left" valign="middle">{{JobTypeSpecific}}</td>
		</tr>
		</table>
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		To accept or decline this opportunity, head over to the platform:<br/>
		<a href="{{AcceptanceURL}}">{{AcceptanceURL}}</a>
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		The Conecto team
	</p>
</div>
`

var (
	OpportunityEmailFR = MustacheMust(opportunityEmailFrTmpl)
	OpportunityEmailEN = MustacheMust(opportunityEmailEnTmpl)
)

func OpportunityEmail(locale string) interface {
	Render(context ...interface{}) string
} {
	if Locale(locale) == "fr" {
		return OpportunityEmailFR
	}
	return OpportunityEmailEN
}

// OpportunitySubject is the mail subject line; the postal code arrives
// already truncated.
func OpportunitySubject(locale, city, postal string) string {
	if Locale(locale) == "fr" {
		return fmt.Sprintf("Conecto - Nouvelle opportunité dans la ville de %s (%s)", city, postal)
	}
	return fmt.Sprintf("Conecto - New opportunity in %s (%s)", city, postal)
}

// OpportunitySMS is the SMS body; carriers split at 160 characters, keep
// it tight.
func OpportunitySMS(locale, trackingID, city, postal, jobLabel, jobSpecificLabel, link string) string {
	if Locale(locale) == "fr" {
		return fmt.Sprintf("* Message de Conecto * Nouvelle opportunité *\n\n%s\nVille de %s (%s)\nPente: %s\nType: %s\n\nAller sur la plateforme\n%s",
			trackingID, city, postal, jobSpecificLabel, jobLabel, link)
	}
	return fmt.Sprintf("* Message from Conecto * New opportunity *\n\n%s\n%s (%s)\nSlope: %s\nType: %s\n\nGo on the platform:\n%s",
		trackingID, city, postal, jobSpecificLabel, jobLabel, link)
}
