package paypal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGateway struct {
	tokenCalls   atomic.Int32
	captureCalls atomic.Int32
	tokenStatus  int
	capture      func(w http.ResponseWriter, r *http.Request)
}

func (g *fakeGateway) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		g.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "grant_type=client_credentials", string(body))

		if g.tokenStatus != 0 {
			w.WriteHeader(g.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"A21AA","token_type":"Bearer","expires_in":32400}`))
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		g.captureCalls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer A21AA", r.Header.Get("Authorization"))
		assert.Equal(t, "capture-ORDER-1", r.Header.Get("PayPal-Request-Id"))
		g.capture(w, r)
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completedOrder))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.PurchaseUnits, 1) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "CAPTURE", req.Intent)
		assert.Equal(t, "114.99", req.PurchaseUnits[0].Amount.Value)
		assert.Equal(t, "100.00", req.PurchaseUnits[0].Amount.Breakdown.ItemTotal.Value)
		assert.Nil(t, req.PurchaseUnits[0].Amount.Breakdown.Discount)
		assert.Equal(t, "2", req.PurchaseUnits[0].Items[0].Quantity)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-NEW","status":"CREATED","links":[
			{"href":"https://api-m.sandbox.paypal.com/v2/checkout/orders/ORDER-NEW","rel":"self"},
			{"href":"https://www.sandbox.paypal.com/checkoutnow?token=ORDER-NEW","rel":"approve"}]}`))
	})
	return mux
}

const completedOrder = `{
	"id": "ORDER-1",
	"status": "COMPLETED",
	"payer": {"email_address": "buyer@example.com"},
	"purchase_units": [{"payments": {"captures": [
		{"id": "CAP-9", "status": "COMPLETED", "amount": {"currency_code": "USD", "value": "100.00"}}
	]}}]
}`

func newTestClient(t *testing.T, g *fakeGateway) *Client {
	t.Helper()
	srv := httptest.NewServer(g.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(Config{ClientID: "client-id", ClientSecret: "client-secret", BaseURL: srv.URL}, zap.NewNop())
}

func TestObtainAccessToken_MissingCredentials(t *testing.T) {
	c := NewClient(Config{ClientID: "only-id"}, zap.NewNop())

	_, err := c.ObtainAccessToken(context.Background())
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"PAYPAL_CLIENT_SECRET"}, cfgErr.Missing)
}

func TestObtainAccessToken_RejectedCredentials(t *testing.T) {
	g := &fakeGateway{tokenStatus: http.StatusUnauthorized}
	c := newTestClient(t, g)

	_, err := c.ObtainAccessToken(context.Background())
	var authErr *GatewayAuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestObtainAccessToken_Cached(t *testing.T) {
	g := &fakeGateway{}
	c := newTestClient(t, g)

	for i := 0; i < 3; i++ {
		tok, err := c.ObtainAccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "A21AA", tok)
	}
	assert.Equal(t, int32(1), g.tokenCalls.Load())
}

func TestCaptureOrder_Success(t *testing.T) {
	g := &fakeGateway{capture: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(completedOrder))
	}}
	c := newTestClient(t, g)

	res, err := c.CaptureOrder(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "buyer@example.com", res.PayerEmail)
	assert.Equal(t, "CAP-9", res.CaptureID)
	assert.Equal(t, "100.00", res.Amount)
	assert.NotEmpty(t, res.Raw)
}

func TestCaptureOrder_Unprocessable(t *testing.T) {
	g := &fakeGateway{capture: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"INSTRUMENT_DECLINED"}]}`))
	}}
	c := newTestClient(t, g)

	_, err := c.CaptureOrder(context.Background(), "ORDER-1")
	var ce *CaptureError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusUnprocessableEntity, ce.StatusCode)
	assert.Equal(t, "INSTRUMENT_DECLINED", ce.Issue)
	assert.Contains(t, ce.Body, "UNPROCESSABLE_ENTITY")
	assert.False(t, IsAlreadyCaptured(err))
}

func TestCaptureOrder_AlreadyCaptured(t *testing.T) {
	g := &fakeGateway{capture: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`))
	}}
	c := newTestClient(t, g)

	_, err := c.CaptureOrder(context.Background(), "ORDER-1")
	assert.True(t, IsAlreadyCaptured(err))

	res, err := c.GetOrder(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
}

func TestCaptureOrder_UnauthorizedDropsCachedToken(t *testing.T) {
	g := &fakeGateway{capture: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}}
	c := newTestClient(t, g)

	_, err := c.CaptureOrder(context.Background(), "ORDER-1")
	require.Error(t, err)
	_, err = c.ObtainAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), g.tokenCalls.Load())
}

func TestCreateOrder(t *testing.T) {
	c := newTestClient(t, &fakeGateway{})

	out, err := c.CreateOrder(context.Background(), CreateOrderInput{
		ItemTotal: "100.00",
		Shipping:  "14.99",
		Discount:  "0.00",
		Total:     "114.99",
		Items:     []LineItem{{Name: "Gift Certificate $50", SKU: "GC050", Quantity: 2, UnitPrice: "50.00"}},
		ReturnURL: "https://shop.example.com/checkout/paypal/return",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-NEW", out.ID)
	assert.Equal(t, "https://www.sandbox.paypal.com/checkoutnow?token=ORDER-NEW", out.ApproveURL)
}

func TestConfig_BaseURL(t *testing.T) {
	assert.Equal(t, SandboxBaseURL, Config{}.baseURL())
	assert.Equal(t, LiveBaseURL, Config{Mode: "LIVE"}.baseURL())
	assert.Equal(t, "http://localhost:9999", Config{Mode: "live", BaseURL: "http://localhost:9999/"}.baseURL())
}
