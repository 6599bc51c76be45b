package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/paypal"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/pricing"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/repository"
)

type captureHarness struct {
	pending   *mockPending
	gateway   *mockGateway
	orders    *mockOrderRepo
	giftCards *mockGiftCardRepo
	notifier  *mockNotifier
	orderSvc  *OrderService
	svc       *CaptureService
}

func newCaptureHarness(cfg CaptureConfig) *captureHarness {
	h := &captureHarness{
		pending:   newMockPending(),
		gateway:   &mockGateway{},
		orders:    newMockOrderRepo(),
		giftCards: newMockGiftCardRepo(),
		notifier:  &mockNotifier{},
	}
	h.orderSvc = NewOrderService(h.orders, newMockCouponRepo(), h.giftCards, nil, "", nil, zap.NewNop())
	h.svc = NewCaptureService(h.pending, h.gateway, h.orderSvc, h.notifier, nil, zap.NewNop(), cfg)
	return h
}

func price(s string) pricing.Price {
	return pricing.NewPrice(decimal.RequireFromString(s))
}

func giftCertificatePayload() *models.CheckoutPayload {
	return &models.CheckoutPayload{
		Billing: models.Address{FirstName: "Dana", LastName: "Reyes", Email: "dana@example.com"},
		Items: []models.CartItem{
			{Name: "Gift Certificate $50", PartNumber: "GC050", Quantity: 2, Price: price("50")},
		},
		Discount: price("0"),
	}
}

func TestCapture_GiftCertificateOrder(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{})
	ctx := context.Background()
	require.NoError(t, h.pending.Put(ctx, "TOKEN-A", giftCertificatePayload()))

	out, serr := h.svc.Capture(ctx, "TOKEN-A")
	require.Nil(t, serr)
	require.NotEmpty(t, out.OrderNumber)

	order, err := h.orders.FindByOrderNumber(ctx, out.OrderNumber)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, models.PaymentMethodPayPal, order.PaymentMethod)
	assert.Equal(t, "payer@example.com", order.PaypalEmail)
	assert.Equal(t, "CAP-TOKEN-A", order.PaymentReference)

	cards, _ := h.giftCards.FindByOrderID(ctx, order.ID)
	require.Len(t, cards, 2)
	assert.NotEqual(t, cards[0].Code, cards[1].Code)
	for _, c := range cards {
		assert.Equal(t, "50.00", c.RemainingBalance.StringFixed(2))
		assert.Equal(t, "50.00", c.InitialAmount.StringFixed(2))
	}

	assert.False(t, h.pending.has("TOKEN-A"), "pending order is consumed")
	require.Equal(t, 1, h.notifier.count())
	assert.Equal(t, "dana@example.com", h.notifier.sent[0].email)
	assert.Len(t, h.notifier.sent[0].data.GiftCards, 2)
}

func TestCapture_UnknownToken(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{})

	out, serr := h.svc.Capture(context.Background(), "NOPE")
	assert.Nil(t, out)
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.Equal(t, "Checkout session expired or invalid.", serr.Message)
	assert.Equal(t, KindExpiredSession, serr.Kind)
	assert.Equal(t, 0, h.gateway.captures(), "unknown tokens never reach the gateway")
	assert.Equal(t, 0, h.orders.count())
}

func TestCapture_EmptyToken(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{})
	_, serr := h.svc.Capture(context.Background(), "  ")
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
}

func TestCapture_GatewayRejectsCapture(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{})
	ctx := context.Background()
	require.NoError(t, h.pending.Put(ctx, "TOKEN-C", giftCertificatePayload()))
	h.gateway.captureFn = func(context.Context, string) (*paypal.CaptureResult, error) {
		return nil, &paypal.CaptureError{StatusCode: 422, Issue: "INSTRUMENT_DECLINED", Body: `{"name":"UNPROCESSABLE_ENTITY"}`}
	}

	_, serr := h.svc.Capture(ctx, "TOKEN-C")
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
	assert.Equal(t, "PayPal capture failed. Please contact support.", serr.Message)
	assert.Equal(t, 0, h.orders.count())
	assert.True(t, h.pending.has("TOKEN-C"), "pending order is preserved")
	assert.Contains(t, h.pending.released, "TOKEN-C")

	_, err := h.pending.Claim(ctx, "TOKEN-C", time.Minute)
	assert.NoError(t, err, "released claim can be taken again")
}

func TestCapture_ConfigurationErrorIsNotShownToCustomer(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{})
	ctx := context.Background()
	require.NoError(t, h.pending.Put(ctx, "TOKEN-CFG", giftCertificatePayload()))
	h.gateway.captureFn = func(context.Context, string) (*paypal.CaptureResult, error) {
		return nil, &paypal.ConfigurationError{Missing: []string{"PAYPAL_CLIENT_ID"}}
	}

	_, serr := h.svc.Capture(ctx, "TOKEN-CFG")
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusInternalServerError, serr.StatusCode)
	assert.Equal(t, KindConfiguration, serr.Kind)
	assert.NotContains(t, serr.Message, "PAYPAL_CLIENT_ID")
	assert.True(t, h.pending.has("TOKEN-CFG"))
}

func TestCapture_RetryAfterOrderCreationFailure(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{})
	ctx := context.Background()
	require.NoError(t, h.pending.Put(ctx, "TOKEN-D", giftCertificatePayload()))
	h.orders.createErrs = []error{errBoom}

	_, serr := h.svc.Capture(ctx, "TOKEN-D")
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusInternalServerError, serr.StatusCode)
	assert.Equal(t, KindPersistence, serr.Kind)
	assert.True(t, h.pending.has("TOKEN-D"), "pending order survives a failed order write")
	assert.Equal(t, 0, h.orders.count())

	// The payment went through on the first attempt, so the gateway now
	// refuses a second capture.
	h.gateway.captureFn = func(context.Context, string) (*paypal.CaptureResult, error) {
		return nil, &paypal.CaptureError{StatusCode: 422, Issue: "ORDER_ALREADY_CAPTURED"}
	}

	out, serr := h.svc.Capture(ctx, "TOKEN-D")
	require.Nil(t, serr)
	assert.NotEmpty(t, out.OrderNumber)
	assert.Equal(t, 1, h.orders.count())
	assert.False(t, h.pending.has("TOKEN-D"))
}

func TestCapture_AlreadyCapturedButNotCompleted(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{})
	ctx := context.Background()
	require.NoError(t, h.pending.Put(ctx, "TOKEN-P", giftCertificatePayload()))
	h.gateway.captureFn = func(context.Context, string) (*paypal.CaptureResult, error) {
		return nil, &paypal.CaptureError{StatusCode: 422, Issue: "ORDER_ALREADY_CAPTURED"}
	}
	h.gateway.getFn = func(_ context.Context, id string) (*paypal.CaptureResult, error) {
		return &paypal.CaptureResult{OrderID: id, Status: "VOIDED"}, nil
	}

	_, serr := h.svc.Capture(ctx, "TOKEN-P")
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
	assert.Equal(t, 0, h.orders.count())
}

func TestCapture_AlreadyCapturedLookupGetsItsOwnTimeout(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{GatewayTimeout: 20 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, h.pending.Put(ctx, "TOKEN-SLOW", giftCertificatePayload()))

	// The capture call runs out the whole gateway timeout before the gateway
	// answers that the order was already captured.
	h.gateway.captureFn = func(ctx context.Context, _ string) (*paypal.CaptureResult, error) {
		<-ctx.Done()
		return nil, &paypal.CaptureError{StatusCode: 422, Issue: "ORDER_ALREADY_CAPTURED"}
	}
	h.gateway.getFn = func(ctx context.Context, id string) (*paypal.CaptureResult, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return completedCapture(id), nil
	}

	out, serr := h.svc.Capture(ctx, "TOKEN-SLOW")
	require.Nil(t, serr)
	assert.NotEmpty(t, out.OrderNumber)
	assert.Equal(t, 1, h.orders.count())
}

func TestCapture_UnreadablePayloadIsDiscarded(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{})
	ctx := context.Background()
	require.NoError(t, h.pending.Put(ctx, "TOKEN-BAD", giftCertificatePayload()))
	h.pending.claimErr = fmt.Errorf("%w: unexpected end of JSON input", repository.ErrInvalidPayload)

	_, serr := h.svc.Capture(ctx, "TOKEN-BAD")
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.Equal(t, KindExpiredSession, serr.Kind)
	assert.False(t, h.pending.has("TOKEN-BAD"))
	assert.Contains(t, h.pending.deleted, "TOKEN-BAD")
	assert.Equal(t, 0, h.gateway.captures())
}

func TestCapture_ReplayAfterSuccess(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{})
	ctx := context.Background()
	require.NoError(t, h.pending.Put(ctx, "TOKEN-I", giftCertificatePayload()))

	_, serr := h.svc.Capture(ctx, "TOKEN-I")
	require.Nil(t, serr)

	_, serr = h.svc.Capture(ctx, "TOKEN-I")
	require.NotNil(t, serr)
	assert.Equal(t, KindExpiredSession, serr.Kind)
	assert.Equal(t, 1, h.orders.count())
	assert.Equal(t, 1, h.gateway.captures())
}

func TestCapture_ConcurrentCallbacksCreateOneOrder(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{})
	ctx := context.Background()
	require.NoError(t, h.pending.Put(ctx, "TOKEN-RACE", giftCertificatePayload()))
	h.gateway.captureFn = func(_ context.Context, id string) (*paypal.CaptureResult, error) {
		time.Sleep(10 * time.Millisecond)
		return completedCapture(id), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, expired := 0, 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, serr := h.svc.Capture(ctx, "TOKEN-RACE")
			mu.Lock()
			defer mu.Unlock()
			if serr == nil {
				successes++
			} else if serr.Kind == KindExpiredSession {
				expired++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, expired)
	assert.Equal(t, 1, h.orders.count())
	assert.Equal(t, 1, h.gateway.captures())
}

func TestCapture_GatewayTimeoutIsRetryable(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{GatewayTimeout: 20 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, h.pending.Put(ctx, "TOKEN-T", giftCertificatePayload()))
	h.gateway.captureFn = func(ctx context.Context, _ string) (*paypal.CaptureResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, serr := h.svc.Capture(ctx, "TOKEN-T")
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
	assert.True(t, h.pending.has("TOKEN-T"))
	assert.Contains(t, h.pending.released, "TOKEN-T")
}

func TestCapture_InvalidPayloadIsDiscarded(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{})
	ctx := context.Background()
	require.NoError(t, h.pending.Put(ctx, "TOKEN-BAD", &models.CheckoutPayload{}))

	_, serr := h.svc.Capture(ctx, "TOKEN-BAD")
	require.NotNil(t, serr)
	assert.Equal(t, KindExpiredSession, serr.Kind)
	assert.False(t, h.pending.has("TOKEN-BAD"))
	assert.Equal(t, 0, h.gateway.captures())
}

func TestCapture_TotalsComeFromStoredPayload(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{})
	ctx := context.Background()
	payload := &models.CheckoutPayload{
		Billing:      models.Address{Email: "dana@example.com"},
		Items:        []models.CartItem{{Name: "Control Arm", PartNumber: "CA001", Quantity: 2, Price: price("186.96")}},
		ShippingCost: price("12.50"),
		Discount:     price("500"),
	}
	require.NoError(t, h.pending.Put(ctx, "TOKEN-TOT", payload))

	out, serr := h.svc.Capture(ctx, "TOKEN-TOT")
	require.Nil(t, serr)

	order, err := h.orders.FindByOrderNumber(ctx, out.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, "373.92", order.Subtotal.StringFixed(2))
	assert.Equal(t, "373.92", order.Discount.StringFixed(2), "discount is clamped to the subtotal")
	assert.Equal(t, "12.50", order.Total.StringFixed(2))
	assert.Empty(t, order.GiftCards)
}

func TestCapture_NoEmailAddress(t *testing.T) {
	h := newCaptureHarness(CaptureConfig{})
	ctx := context.Background()
	p := giftCertificatePayload()
	p.Billing.Email = ""
	require.NoError(t, h.pending.Put(ctx, "TOKEN-E", p))
	h.gateway.captureFn = func(_ context.Context, id string) (*paypal.CaptureResult, error) {
		return &paypal.CaptureResult{OrderID: id, Status: paypal.StatusCompleted, CaptureID: "CAP"}, nil
	}

	_, serr := h.svc.Capture(ctx, "TOKEN-E")
	require.Nil(t, serr)
	assert.Equal(t, 0, h.notifier.count())
}

func TestCaptureConfigDefaults(t *testing.T) {
	cfg := CaptureConfig{GatewayTimeout: 10 * time.Second, OrderTimeout: 5 * time.Second}.withDefaults()
	assert.Greater(t, cfg.ClaimLease, 25*time.Second)

	cfg = CaptureConfig{}.withDefaults()
	assert.Equal(t, 30*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 30*time.Second, cfg.OrderTimeout)
}
