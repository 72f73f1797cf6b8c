package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorpay/handler"
	"github.com/dmitrymomot/creatorpay/pkg/binder"
)

type echoRequest struct {
	Name  string `json:"name"`
	Count int    `query:"count"`
}

var errDomain = errors.New("domain failure")

func decode(t *testing.T, rec *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	var out handler.JSONResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestWrap(t *testing.T) {
	t.Parallel()

	echo := func(ctx handler.Context, req echoRequest) handler.Response {
		if req.Name == "fail" {
			return handler.JSONError(errDomain)
		}
		return handler.JSON(req, handler.WithJSONStatus(http.StatusCreated))
	}
	h := handler.Wrap(echo, handler.WithBinders[handler.Context, echoRequest](binder.Query(), binder.JSON()))

	t.Run("binds all sources", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/?count=3", strings.NewReader(`{"name":"ann"}`))
		r.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, r)

		require.Equal(t, http.StatusCreated, rec.Code)
		data := decode(t, rec).Data.(map[string]any)
		assert.Equal(t, "ann", data["name"])
		assert.Equal(t, float64(3), data["Count"])
	})

	t.Run("optional body", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/?count=2", nil))
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("unknown error hides message", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"fail"}`))
		rec := httptest.NewRecorder()
		h(rec, r)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		out := decode(t, rec)
		require.NotNil(t, out.Error)
		assert.Equal(t, "internal_server_error", out.Error.Code)
		assert.NotContains(t, out.Error.Message, "domain")
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		nilHandler := handler.Wrap(func(handler.Context, echoRequest) handler.Response { return nil })
		rec := httptest.NewRecorder()
		nilHandler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("decorators run outermost first", func(t *testing.T) {
		t.Parallel()
		var order []string
		mark := func(name string) handler.Decorator[handler.Context, echoRequest] {
			return func(next handler.HandlerFunc[handler.Context, echoRequest]) handler.HandlerFunc[handler.Context, echoRequest] {
				return func(ctx handler.Context, req echoRequest) handler.Response {
					order = append(order, name)
					return next(ctx, req)
				}
			}
		}
		d := handler.Wrap(func(handler.Context, echoRequest) handler.Response { return handler.Empty() },
			handler.WithDecorators(mark("outer"), mark("inner")))
		rec := httptest.NewRecorder()
		d(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{"outer", "inner"}, order)
	})
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	mapper := func(err error) error {
		if errors.Is(err, errDomain) {
			return handler.WithStatus(handler.ErrConflict, err)
		}
		return nil
	}

	h := handler.Wrap(func(handler.Context, echoRequest) handler.Response { return handler.Empty() },
		handler.WithBinders[handler.Context, echoRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, echoRequest](handler.NewErrorHandler[handler.Context](log, mapper)),
	)

	t.Run("binder error is bad request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope":1}`))
		rec := httptest.NewRecorder()
		h(rec, r)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad_request", decode(t, rec).Error.Code)
		assert.Contains(t, buf.String(), `"level":"WARN"`)
		assert.Contains(t, buf.String(), `"status_code":400`)
	})

	t.Run("mapped domain error", func(t *testing.T) {
		resp := handler.JSONError(errDomain, mapper)
		rec := httptest.NewRecorder()
		require.NoError(t, resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

		require.Equal(t, http.StatusConflict, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, "conflict", out.Error.Code)
		assert.Equal(t, "domain failure", out.Error.Message)
	})
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	verr := handler.NewValidationError()
	assert.NoError(t, verr.OrNil())

	verr.Add("tier_id", "is required")
	verr.Add("fan_id", "is required")
	assert.True(t, verr.Has("tier_id"))
	assert.Equal(t, "validation error: fan_id: is required, tier_id: is required", verr.Error())

	rec := httptest.NewRecorder()
	require.NoError(t, handler.JSONError(verr.OrNil()).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, "validation_error", out.Error.Code)
	assert.Equal(t, []string{"is required"}, out.Error.Details["tier_id"])
}
