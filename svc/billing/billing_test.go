package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorpay/pkg/billingcycle"
	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/subscription"
	"github.com/dmitrymomot/creatorpay/svc/billing"
)

const day = 24 * time.Hour

var (
	creatorID = uuid.MustParse("0b6f2f7e-3c1a-4f4e-9a51-6d0f4a2b9c11")
	startAt   = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, sub subscription.Subscription, in subscription.Intent) error {
	return m.Called(ctx, sub, in).Error(0)
}

func (m *mockNotifier) sent(kind subscription.IntentKind) int {
	n := 0
	for _, c := range m.Calls {
		if c.Arguments.Get(2).(subscription.Intent).Kind == kind {
			n++
		}
	}
	return n
}

// scriptedCharger answers charges from a queue of outcomes.
type scriptedCharger struct {
	mu       sync.Mutex
	outcomes []billing.ChargeResult
	requests []billing.ChargeRequest
}

func (c *scriptedCharger) push(outcome dunning.Outcome, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, billing.ChargeResult{Outcome: outcome, Reason: reason})
}

func (c *scriptedCharger) Charge(_ context.Context, req billing.ChargeRequest) (billing.ChargeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.outcomes) == 0 {
		return billing.ChargeResult{Outcome: dunning.OutcomePending}, nil
	}
	next := c.outcomes[0]
	c.outcomes = c.outcomes[1:]
	return next, nil
}

func (c *scriptedCharger) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *scriptedCharger) request(i int) billing.ChargeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[i]
}

func (c *scriptedCharger) last() billing.ChargeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

func intPtr(v int) *int { return &v }

func testTiers() []subscription.Tier {
	return []subscription.Tier{
		{
			ID:            "gold",
			CreatorID:     creatorID,
			Name:          "Gold",
			Price:         subscription.Money{Amount: 999, Currency: "USD"},
			BillingPeriod: billingcycle.Monthly,
			IsActive:      true,
		},
		{
			ID:            "silver_trial",
			CreatorID:     creatorID,
			Name:          "Silver",
			Price:         subscription.Money{Amount: 499, Currency: "USD"},
			BillingPeriod: billingcycle.Monthly,
			TrialDays:     intPtr(7),
			IsActive:      true,
		},
		{
			ID:            "silver",
			CreatorID:     creatorID,
			Name:          "Silver",
			Price:         subscription.Money{Amount: 499, Currency: "USD"},
			BillingPeriod: billingcycle.Monthly,
			IsActive:      true,
		},
	}
}

type fixture struct {
	engine   *billing.Engine
	sweeper  *billing.Sweeper
	store    *subscription.MemoryStore
	tracker  *dunning.Tracker
	access   *billing.MemoryAccess
	notifier *mockNotifier
	charger  *scriptedCharger
	clock    *clock
}

func newFixture(t *testing.T, opts ...subscription.ServiceOption) *fixture {
	t.Helper()

	clk := &clock{now: startAt}
	store := subscription.NewMemoryStore()
	ledger, err := subscription.NewService(context.Background(),
		subscription.NewInMemSource(testTiers()...), store,
		append([]subscription.ServiceOption{subscription.WithClock(clk.Now)}, opts...)...)
	require.NoError(t, err)

	tracker, err := dunning.NewTracker(dunning.NewMemoryStore(), dunning.WithClock(clk.Now))
	require.NoError(t, err)

	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	access := billing.NewMemoryAccess()
	engine := billing.NewEngine(ledger, tracker,
		billing.WithClock(clk.Now),
		billing.WithAccessControl(access),
		billing.WithNotifier(notifier),
	)
	charger := &scriptedCharger{}

	return &fixture{
		engine:   engine,
		sweeper:  billing.NewSweeper(engine, store, tracker, charger, billing.WithWorkers(4)),
		store:    store,
		tracker:  tracker,
		access:   access,
		notifier: notifier,
		charger:  charger,
		clock:    clk,
	}
}

func (f *fixture) sweepAt(t *testing.T, at time.Time) billing.SweepStats {
	t.Helper()
	f.clock.Set(at)
	stats, err := f.sweeper.Sweep(context.Background(), at)
	require.NoError(t, err)
	return stats
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *subscription.Subscription {
	t.Helper()
	sub, err := f.engine.Ledger().GetSubscription(context.Background(), id)
	require.NoError(t, err)
	return sub
}

// paidSubscription creates a gold subscription and settles its first charge at startAt.
func (f *fixture) paidSubscription(t *testing.T) *subscription.Subscription {
	t.Helper()
	return f.paidOn(t, "gold")
}

func (f *fixture) paidOn(t *testing.T, tierID string) *subscription.Subscription {
	t.Helper()

	sub, err := f.engine.Subscribe(context.Background(), uuid.New(), creatorID, tierID)
	require.NoError(t, err)

	f.charger.push(dunning.OutcomeSucceeded, "")
	stats := f.sweepAt(t, startAt)
	require.Equal(t, 1, stats.Resolved)

	sub = f.get(t, sub.ID)
	require.Equal(t, subscription.StateActive, sub.State)
	require.False(t, sub.InitialChargePending)
	return sub
}
