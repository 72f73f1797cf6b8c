// Package email sends transactional billing emails.
//
// EmailSender is implemented by a Postmark client for production and by
// DevSender, which writes each message to disk for local inspection. New
// picks one from Config.Driver. Every implementation validates
// SendEmailParams before sending.
//
// Bodies are rendered from templ components with Render:
//
//	html, err := email.Render(ctx, billing.DunningEmail(data))
//	if err != nil {
//		return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   fan.Email,
//		Subject:  "Your payment failed",
//		BodyHTML: html,
//		Tag:      "dunning",
//	})
package email
