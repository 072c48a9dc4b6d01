package httpgin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	postgresrepo "github.com/bashostudio/basho-go/internal/repository/postgres"
	"github.com/bashostudio/basho-go/internal/service"
	"github.com/bashostudio/basho-go/internal/service/booking"
	"github.com/bashostudio/basho-go/internal/service/checkout"
	"github.com/bashostudio/basho-go/internal/service/settlement"
)

func TestRespondErrStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", &booking.ValidationError{Msg: "bad"}, http.StatusBadRequest},
		{"cart empty", checkout.ErrCartEmpty, http.StatusBadRequest},
		{"experience not found", booking.ErrExperienceNotFound, http.StatusNotFound},
		{"reservation not found", booking.ErrReservationNotFound, http.StatusNotFound},
		{"capacity exceeded", &booking.CapacityExceededError{Available: 2}, http.StatusConflict},
		{"out of stock", &checkout.OutOfStockError{ProductID: 7, Available: 0}, http.StatusConflict},
		{"rate limited", booking.ErrRateLimited, http.StatusTooManyRequests},
		{"gateway down", booking.ErrGateway, http.StatusBadGateway},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondErr(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRespondErrIncludesAvailableUnits(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	respondErr(c, &booking.CapacityExceededError{Available: 3})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"not enough capacity","available":3}`, w.Body.String())
}

// The callback handlers decode the raw body by hand, so the empty-field
// checks are the only guard against partial payloads.
func TestPaymentCallbacksRejectMissingFields(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svcs := &service.Services{
		Settlement: settlement.New(&postgresrepo.Store{}, nil, nil, nil, nil, nil),
	}

	tests := []struct {
		name    string
		handler gin.HandlerFunc
		body    string
	}{
		{"verify missing signature", handleVerifyPayment(svcs),
			`{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1"}`},
		{"verify missing payment id", handleVerifyPayment(svcs),
			`{"razorpay_order_id":"order_1","razorpay_signature":"sig"}`},
		{"verify empty body", handleVerifyPayment(svcs), `{}`},
		{"failed missing order id", handlePaymentFailed(svcs), `{"reason":"declined"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			tt.handler(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestWriteJSONWithCacheETag(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	writeJSONWithCache(c, http.StatusOK, gin.H{"x": 1}, "public, max-age=15", true)

	require.Equal(t, http.StatusOK, w.Code)
	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)
	assert.Equal(t, "public, max-age=15", w.Header().Get("Cache-Control"))

	// Replay with the tag: expect 304 and no body.
	w2 := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(w2)
	c2.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c2.Request.Header.Set("If-None-Match", tag)

	writeJSONWithCache(c2, http.StatusOK, gin.H{"x": 1}, "public, max-age=15", true)
	// CreateTestContext bypasses the engine, which normally flushes the
	// lazily-set status at the end of request handling.
	c2.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNotModified, w2.Code)
	assert.Empty(t, w2.Body.String())
}
