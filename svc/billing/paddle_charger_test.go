package billing_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/subscription"
	"github.com/dmitrymomot/creatorpay/svc/billing"
)

// paddleAPI records transaction requests and answers with a canned response.
type paddleAPI struct {
	mu     sync.Mutex
	status int
	body   string
	got    []map[string]any
	auth   []string
}

func (p *paddleAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r.Method != http.MethodPost || r.URL.Path != "/transactions" {
		http.NotFound(w, r)
		return
	}
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.got = append(p.got, payload)
	p.auth = append(p.auth, r.Header.Get("Authorization"))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(p.status)
	_, _ = w.Write([]byte(p.body))
}

func (p *paddleAPI) requests() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.got
}

func newPaddleCharger(t *testing.T, api *paddleAPI, fans billing.FanDirectory) *billing.PaddleCharger {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client, err := billing.NewPaddleClient(billing.PaddleConfig{APIKey: "pdl_test_key", Environment: "sandbox"},
		paddle.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return billing.NewPaddleCharger(client, fans, nil)
}

func chargeRequest(fanID uuid.UUID) billing.ChargeRequest {
	return billing.ChargeRequest{
		Attempt: dunning.ChargeAttempt{
			ID:            uuid.New(),
			AttemptNumber: 1,
			Class:         dunning.ClassAdjustment,
		},
		Subscription: subscription.Subscription{ID: uuid.New(), FanID: fanID},
		Amount:       subscription.Money{Amount: 339, Currency: "USD"},
		TierName:     "Gold",
	}
}

func TestNewPaddleClient(t *testing.T) {
	t.Parallel()

	_, err := billing.NewPaddleClient(billing.PaddleConfig{})
	assert.ErrorIs(t, err, billing.ErrInvalidConfig)

	_, err = billing.NewPaddleClient(billing.PaddleConfig{APIKey: "key", Environment: "staging"})
	assert.ErrorIs(t, err, billing.ErrInvalidConfig)

	client, err := billing.NewPaddleClient(billing.PaddleConfig{APIKey: "key"})
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestPaddleCharger_Charge(t *testing.T) {
	t.Parallel()

	fan := billing.Fan{ID: uuid.New(), Email: "fan@example.com", PaddleCustomerID: "ctm_01", PaddleAddressID: "add_01"}

	t.Run("creates a transaction carrying the attempt id", func(t *testing.T) {
		t.Parallel()

		api := &paddleAPI{
			status: http.StatusCreated,
			body:   `{"data":{"id":"txn_01","status":"ready"},"meta":{"request_id":"req_01"}}`,
		}
		charger := newPaddleCharger(t, api, billing.NewMemoryFans(fan))
		req := chargeRequest(fan.ID)

		res, err := charger.Charge(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, dunning.OutcomePending, res.Outcome)

		got := api.requests()
		require.Len(t, got, 1)
		body := got[0]
		assert.Equal(t, "ctm_01", body["customer_id"])
		assert.Equal(t, "add_01", body["address_id"])
		assert.Equal(t, "USD", body["currency_code"])
		assert.Equal(t, "automatic", body["collection_mode"])
		assert.Equal(t, map[string]any{
			"attempt_id":      req.Attempt.ID.String(),
			"subscription_id": req.Subscription.ID.String(),
		}, body["custom_data"])

		items := body["items"].([]any)
		require.Len(t, items, 1)
		price := items[0].(map[string]any)["price"].(map[string]any)
		assert.Equal(t, map[string]any{"amount": "339", "currency_code": "USD"}, price["unit_price"])
		assert.Equal(t, "Gold", price["product"].(map[string]any)["name"])
		assert.Equal(t, "Bearer pdl_test_key", api.auth[0])
	})

	t.Run("completed transaction succeeds", func(t *testing.T) {
		t.Parallel()

		api := &paddleAPI{status: http.StatusCreated, body: `{"data":{"id":"txn_02","status":"completed"}}`}
		charger := newPaddleCharger(t, api, billing.NewMemoryFans(fan))

		res, err := charger.Charge(context.Background(), chargeRequest(fan.ID))
		require.NoError(t, err)
		assert.Equal(t, dunning.OutcomeSucceeded, res.Outcome)
	})

	t.Run("request error fails the attempt", func(t *testing.T) {
		t.Parallel()

		api := &paddleAPI{
			status: http.StatusBadRequest,
			body:   `{"error":{"type":"request_error","code":"transaction_customer_not_found","detail":"customer not found"}}`,
		}
		charger := newPaddleCharger(t, api, billing.NewMemoryFans(fan))

		res, err := charger.Charge(context.Background(), chargeRequest(fan.ID))
		require.NoError(t, err)
		assert.Equal(t, dunning.OutcomeFailed, res.Outcome)
		assert.Equal(t, "transaction_customer_not_found", res.Reason)
	})

	t.Run("api error is returned", func(t *testing.T) {
		t.Parallel()

		api := &paddleAPI{
			status: http.StatusInternalServerError,
			body:   `{"error":{"type":"api_error","code":"internal_error","detail":"try again"}}`,
		}
		charger := newPaddleCharger(t, api, billing.NewMemoryFans(fan))

		_, err := charger.Charge(context.Background(), chargeRequest(fan.ID))
		assert.Error(t, err)
	})

	t.Run("fan without paddle customer", func(t *testing.T) {
		t.Parallel()

		api := &paddleAPI{status: http.StatusCreated}
		charger := newPaddleCharger(t, api, billing.NewMemoryFans())

		res, err := charger.Charge(context.Background(), chargeRequest(uuid.New()))
		require.NoError(t, err)
		assert.Equal(t, dunning.OutcomeFailed, res.Outcome)
		assert.Equal(t, "no_paddle_customer", res.Reason)
		assert.Empty(t, api.requests())
	})
}
