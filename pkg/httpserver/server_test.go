package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorpay/pkg/httpserver"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
)

func TestHealthCheckHandler(t *testing.T) {
	t.Parallel()

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
		t.Helper()
		var body map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		return body
	}

	t.Run("liveness", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		httpserver.HealthCheckHandler(logger.Discard())(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decode(t, rec)["status"])
	})

	t.Run("readiness failing", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		h := httpserver.HealthCheckHandler(logger.Discard(),
			httpserver.HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
			httpserver.HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }},
		)
		h(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, map[string]any{"postgres": "ok", "redis": "failing"}, body["checks"])
	})
}

func TestServer(t *testing.T) {
	t.Parallel()

	t.Run("stops on context cancel and runs hooks", func(t *testing.T) {
		t.Parallel()

		hookCalled := make(chan struct{}, 1)
		srv := httpserver.New(
			httpserver.WithAddr("127.0.0.1:0"),
			httpserver.WithShutdownTimeout(time.Second),
			httpserver.WithStopHook(func(context.Context) error {
				hookCalled <- struct{}{}
				return nil
			}),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		require.NoError(t, srv.Run(ctx, http.NotFoundHandler()))
		select {
		case <-hookCalled:
		default:
			t.Fatal("stop hook was not called")
		}
		assert.NoError(t, srv.Shutdown(context.Background()))
	})

	t.Run("invalid options panic", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { httpserver.WithAddr("") })
		assert.Panics(t, func() { httpserver.WithShutdownTimeout(0) })
		assert.Panics(t, func() { httpserver.WithStopHook(nil) })
	})
}
