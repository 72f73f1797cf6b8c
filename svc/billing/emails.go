package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/a-h/templ"
)

// DunningEmailData fills the failed-payment email.
type DunningEmailData struct {
	FanName       string
	TierName      string
	Amount        string
	AttemptNumber int
	Reason        string
	GraceEndsAt   *time.Time
	UpdateURL     string
}

// WinBackEmailData fills the email sent after suspension.
type WinBackEmailData struct {
	FanName       string
	TierName      string
	Amount        string
	ReactivateURL string
}

// DunningEmail is the body of notify:dunning_email.
func DunningEmail(d DunningEmailData) templ.Component {
	next := paragraph("We'll try again automatically. This was attempt ", fmt.Sprint(d.AttemptNumber), ".")
	if d.GraceEndsAt != nil {
		next = paragraph("You keep full access until ", d.GraceEndsAt.Format("January 2, 2006"),
			". After that the subscription is paused.")
	}
	var reason templ.Component = templ.NopComponent
	if d.Reason != "" {
		reason = paragraph("Your bank said: ", d.Reason, ".")
	}
	return emailLayout("Your payment didn't go through",
		paragraph("Hi ", d.FanName, ","),
		paragraph("We couldn't charge ", d.Amount, " for your ", d.TierName, " subscription."),
		reason,
		next,
		actionButton("Update payment method", d.UpdateURL),
	)
}

// WinBackEmail is the body of notify:win_back_email.
func WinBackEmail(d WinBackEmailData) templ.Component {
	return emailLayout("Your subscription is paused",
		paragraph("Hi ", d.FanName, ","),
		paragraph("We couldn't collect payment for ", d.TierName, ", so your access has been paused."),
		paragraph("Pick up where you left off for ", d.Amount, "."),
		actionButton("Reactivate", d.ReactivateURL),
	)
}

// Shared email markup. Text arguments are escaped; only the fixed markup is raw.

func emailLayout(title string, body ...templ.Component) templ.Component {
	return templ.Join(
		templ.Raw(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`+templ.EscapeString(title)+
			`</title></head><body style="font-family:sans-serif;max-width:560px;margin:0 auto"><h1>`+
			templ.EscapeString(title)+`</h1>`),
		templ.Join(body...),
		templ.Raw(`</body></html>`),
	)
}

func paragraph(text ...string) templ.Component {
	var b strings.Builder
	for _, t := range text {
		b.WriteString(templ.EscapeString(t))
	}
	return templ.Raw("<p>" + b.String() + "</p>")
}

func actionButton(label, href string) templ.Component {
	if href == "" {
		return templ.NopComponent
	}
	return templ.Raw(`<p><a href="` + templ.EscapeString(string(templ.URL(href))) +
		`" style="display:inline-block;padding:10px 16px;background:#111;color:#fff;text-decoration:none">` +
		templ.EscapeString(label) + `</a></p>`)
}
