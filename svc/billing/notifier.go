package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/text/language"

	"github.com/dmitrymomot/creatorpay/pkg/email"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
	"github.com/dmitrymomot/creatorpay/pkg/subscription"
)

// TierCatalog looks up tiers. subscription.Service satisfies it.
type TierCatalog interface {
	Tier(id string) (subscription.Tier, error)
}

// EmailNotifier renders notify:* intents as emails.
type EmailNotifier struct {
	sender email.EmailSender
	fans   FanDirectory
	tiers  TierCatalog
	appURL string
	lang   language.Tag
	log    *slog.Logger
}

// NewEmailNotifier creates a notifier. Panics on nil dependencies.
func NewEmailNotifier(sender email.EmailSender, fans FanDirectory, tiers TierCatalog, appURL string, log *slog.Logger) *EmailNotifier {
	if sender == nil || fans == nil || tiers == nil {
		panic("billing: email notifier requires sender, fan directory and tier catalog")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &EmailNotifier{
		sender: sender,
		fans:   fans,
		tiers:  tiers,
		appURL: strings.TrimRight(appURL, "/"),
		lang:   language.English,
		log:    log,
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, sub subscription.Subscription, in subscription.Intent) error {
	fan, err := n.fans.Fan(ctx, sub.FanID)
	if err != nil {
		return fmt.Errorf("resolve fan %s: %w", sub.FanID, err)
	}
	tier, err := n.tiers.Tier(sub.TierID)
	if err != nil {
		return err
	}

	name := fan.DisplayName
	if name == "" {
		name = "there"
	}
	amount := FormatMoney(n.lang, tier.Price)

	var (
		subject string
		body    templ.Component
	)
	switch in.Kind {
	case subscription.IntentDunningEmail:
		subject = fmt.Sprintf("Payment failed for %s", tier.Name)
		body = DunningEmail(DunningEmailData{
			FanName:       name,
			TierName:      tier.Name,
			Amount:        amount,
			AttemptNumber: in.AttemptNumber,
			Reason:        in.Reason,
			GraceEndsAt:   sub.GraceEndsAt,
			UpdateURL:     fmt.Sprintf("%s/subscriptions/%s/payment", n.appURL, sub.ID),
		})
	case subscription.IntentWinBackEmail:
		subject = fmt.Sprintf("Come back to %s", tier.Name)
		body = WinBackEmail(WinBackEmailData{
			FanName:       name,
			TierName:      tier.Name,
			Amount:        amount,
			ReactivateURL: fmt.Sprintf("%s/subscriptions/%s/reactivate", n.appURL, sub.ID),
		})
	default:
		return fmt.Errorf("not a notification intent: %q", in.Kind)
	}

	html, err := email.Render(ctx, body)
	if err != nil {
		return err
	}
	if err := n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   fan.Email,
		Subject:  subject,
		BodyHTML: html,
		Tag:      strings.TrimPrefix(string(in.Kind), "notify:"),
	}); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "notification sent",
		logger.SubscriptionID(sub.ID),
		logger.Intent(string(in.Kind)))
	return nil
}
