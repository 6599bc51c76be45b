package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/controllers"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/middleware"
	"github.com/bmr-suspension/storefront-backend/services/common/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(v *auth.Verifier) *gin.Engine {
	return NewRouter(Handlers{
		PayPal: controllers.NewPayPalController(nil, nil, false),
		Orders: controllers.NewOrderController(nil, false),
		Card:   controllers.NewCardController(nil, false),
		Admin:  controllers.NewAdminController(nil, nil, nil, false),
		Health: controllers.NewHealthController(serviceName, nil),
	}, Options{
		Logger:            zap.NewNop(),
		Verifier:          v,
		AllowedOrigins:    []string{"https://shop.example"},
		ServiceToken:      "svc-token",
		CheckoutPerMinute: 60,
		CheckoutBurst:     1,
	})
}

func get(r *gin.Engine, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthRoute(t *testing.T) {
	w := get(newTestRouter(auth.NewVerifier("s")), "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAdminRoutes_RequireAdminToken(t *testing.T) {
	v := auth.NewVerifier("route-secret")
	r := newTestRouter(v)

	w := get(r, "/admin/dealer-tiers", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok, err := v.Sign(auth.Identity{UserID: "u1", Role: "customer"}, time.Hour)
	require.NoError(t, err)
	w = get(r, "/admin/dealer-tiers", "Bearer "+tok)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUnknownRoute_IsJSON404(t *testing.T) {
	w := get(newTestRouter(auth.NewVerifier("s")), "/nope", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"Not found"}`, w.Body.String())
}

func TestCheckoutRoutes_RateLimited(t *testing.T) {
	r := newTestRouter(auth.NewVerifier("s"))

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/paypal/create-order", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// Burst of one: the second immediate call from the same IP is refused.
	assert.Equal(t, http.StatusBadRequest, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
}

func TestCreateOrderRoute_RequiresServiceToken(t *testing.T) {
	r := newTestRouter(auth.NewVerifier("route-secret"))

	post := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set(middleware.ServiceTokenHeader, token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post("")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"Unauthorized"}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, post("guess").Code)

	// The right token reaches the handler, which rejects the broken body.
	assert.Equal(t, http.StatusBadRequest, post("svc-token").Code)
}

func TestCreateOrderRoute_CustomerTokenIsNotEnough(t *testing.T) {
	v := auth.NewVerifier("route-secret")
	r := newTestRouter(v)

	tok, err := v.Sign(auth.Identity{UserID: "u1", Role: "admin"}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOrderLookupRoute_RateLimited(t *testing.T) {
	r := newTestRouter(auth.NewVerifier("s"))

	// Without an email or a signed-in owner the handler answers 400 before
	// touching storage; the second call is refused by the limiter.
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/orders/BMR1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/api/orders/BMR1", "").Code)
}
