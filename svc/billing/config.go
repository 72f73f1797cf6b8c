package billing

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/creatorpay/pkg/billingcycle"
	"github.com/dmitrymomot/creatorpay/pkg/queue"
)

// Config holds the billing shell configuration.
type Config struct {
	TiersFile       string        `env:"BILLING_TIERS_FILE" envDefault:"tiers.yaml"`
	PlatformFee     float64       `env:"BILLING_PLATFORM_FEE" envDefault:"0.30"`
	ProrationPolicy string        `env:"BILLING_PRORATION_POLICY" envDefault:"immediate"`
	SweepSchedule   string        `env:"BILLING_SWEEP_SCHEDULE" envDefault:"*/5 * * * *"`
	SweepBatchSize  int           `env:"BILLING_SWEEP_BATCH_SIZE" envDefault:"200"`
	SweepWorkers    int           `env:"BILLING_SWEEP_WORKERS" envDefault:"8"`
	SweepTimeout    time.Duration `env:"BILLING_SWEEP_TIMEOUT" envDefault:"4m"`
	ChargeTimeout   time.Duration `env:"BILLING_CHARGE_TIMEOUT" envDefault:"72h"`
	AppURL          string        `env:"APP_URL" envDefault:"http://localhost:8080"`
}

// Validate checks the values that cannot be validated by struct tags.
func (c Config) Validate() error {
	if !billingcycle.ProrationPolicy(c.ProrationPolicy).Valid() {
		return fmt.Errorf("%w: proration policy %q", ErrInvalidConfig, c.ProrationPolicy)
	}
	if c.PlatformFee < 0 || c.PlatformFee > 1 {
		return fmt.Errorf("%w: platform fee %v", ErrInvalidConfig, c.PlatformFee)
	}
	if c.SweepBatchSize < 1 || c.SweepWorkers < 1 {
		return fmt.Errorf("%w: sweep batch size and workers must be positive", ErrInvalidConfig)
	}
	if c.ChargeTimeout <= 0 {
		return fmt.Errorf("%w: charge timeout must be positive", ErrInvalidConfig)
	}
	if _, err := c.Schedule(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Schedule returns the sweep schedule: an interval such as "5m",
// "daily HH:MM" or a cron expression.
func (c Config) Schedule() (queue.Schedule, error) {
	return queue.ParseSchedule(c.SweepSchedule)
}

// Proration returns the configured proration policy.
func (c Config) Proration() billingcycle.ProrationPolicy {
	return billingcycle.ProrationPolicy(c.ProrationPolicy)
}
