package email

import "fmt"

// Driver selects the EmailSender implementation.
type Driver string

const (
	DriverPostmark Driver = "postmark"
	DriverDev      Driver = "dev"
)

// Config holds email service configuration. Postmark tokens are only
// required by the postmark driver.
type Config struct {
	Driver               Driver `env:"EMAIL_DRIVER" envDefault:"dev"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:"tmp/emails"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"billing@creatorpay.local"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@creatorpay.local"`
}

// New returns the sender configured by cfg.Driver.
func New(cfg Config) (EmailSender, error) {
	switch cfg.Driver {
	case DriverPostmark:
		return NewPostmarkClient(cfg)
	case DriverDev, "":
		return NewDevSender(cfg.DevDir), nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, cfg.Driver)
	}
}
