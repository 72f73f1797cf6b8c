package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/creatorpay/pkg/billingcycle"
)

// Tier is a creator's priced offering fans subscribe to.
type Tier struct {
	ID            string                `json:"id" yaml:"id"`
	CreatorID     uuid.UUID             `json:"creator_id" yaml:"creator_id"`
	Name          string                `json:"name" yaml:"name"`
	Price         Money                 `json:"price" yaml:"price"`
	BillingPeriod billingcycle.Interval `json:"billing_period" yaml:"billing_period"`
	TrialDays     *int                  `json:"trial_days,omitempty" yaml:"trial_days"` // nil means no trial
	IsActive      bool                  `json:"is_active" yaml:"active"`
}

// Validate rejects tiers that break the catalog invariants.
func (t Tier) Validate() error {
	var errs []error
	if t.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if t.CreatorID == uuid.Nil {
		errs = append(errs, errors.New("creator id is required"))
	}
	if t.Price.Amount <= 0 {
		errs = append(errs, fmt.Errorf("price must be positive, got %d", t.Price.Amount))
	}
	if len(t.Price.Currency) != 3 {
		errs = append(errs, fmt.Errorf("currency must be an ISO 4217 code, got %q", t.Price.Currency))
	}
	if !t.BillingPeriod.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", billingcycle.ErrInvalidInterval, t.BillingPeriod))
	}
	if t.TrialDays != nil && *t.TrialDays < 0 {
		errs = append(errs, ErrInvalidTrialDays)
	}
	if len(errs) > 0 {
		return errors.Join(ErrInvalidTierConfiguration, fmt.Errorf("tier %q: %w", t.ID, errors.Join(errs...)))
	}
	return nil
}

// TierSource defines how tiers are loaded into the subscription service.
type TierSource interface {
	Load(ctx context.Context) (map[string]Tier, error)
}

type inMemSource struct {
	mu    sync.RWMutex
	tiers map[string]Tier
}

// NewInMemSource returns an in-memory TierSource with a copy of the given tiers.
// Panics if no tiers are provided.
func NewInMemSource(tiers ...Tier) TierSource {
	if len(tiers) < 1 {
		panic("subscription: at least one tier is required")
	}
	m := make(map[string]Tier, len(tiers))
	for _, t := range tiers {
		m[t.ID] = copyTier(t)
	}
	return &inMemSource{tiers: m}
}

func (s *inMemSource) Load(_ context.Context) (map[string]Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Tier, len(s.tiers))
	for id, t := range s.tiers {
		out[id] = copyTier(t)
	}
	return out, nil
}

type yamlCatalog struct {
	Tiers []Tier `yaml:"tiers"`
}

type yamlSource struct {
	path string
}

// NewYAMLSource returns a TierSource that reads the catalog file at path on every Load.
func NewYAMLSource(path string) TierSource {
	return &yamlSource{path: path}
}

func (s *yamlSource) Load(_ context.Context) (map[string]Tier, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open tier catalog: %w", err)
	}
	defer f.Close()

	return DecodeTiers(f)
}

// DecodeTiers parses a YAML tier catalog:
//
//	tiers:
//	  - id: gold_monthly
//	    creator_id: 7f1c...
//	    name: Gold
//	    price: {amount: 2000, currency: USD}
//	    billing_period: monthly
//	    trial_days: 7
//	    active: true
func DecodeTiers(r io.Reader) (map[string]Tier, error) {
	var catalog yamlCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("decode tier catalog: %w", err)
	}

	tiers := make(map[string]Tier, len(catalog.Tiers))
	for _, t := range catalog.Tiers {
		if _, dup := tiers[t.ID]; dup {
			return nil, errors.Join(ErrInvalidTierConfiguration, fmt.Errorf("duplicate tier id %q", t.ID))
		}
		tiers[t.ID] = t
	}
	return tiers, nil
}

func copyTier(t Tier) Tier {
	if t.TrialDays != nil {
		days := *t.TrialDays
		t.TrialDays = &days
	}
	return t
}

// validateTiers ensures tier configurations are internally consistent.
func validateTiers(tiers map[string]Tier) error {
	for id, t := range tiers {
		if t.ID != id {
			return errors.Join(ErrInvalidTierConfiguration,
				fmt.Errorf("tier ID mismatch: map key %s != tier.ID %s", id, t.ID))
		}
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}
