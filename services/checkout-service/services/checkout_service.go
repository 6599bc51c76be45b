package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	awspkg "github.com/bmr-suspension/storefront-backend/pkg/aws"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/paypal"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/pricing"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/repository"
	"github.com/bmr-suspension/storefront-backend/services/common/logger"
)

const (
	checkoutCurrency = "USD"

	MsgCheckoutStartFailed = "Could not start PayPal checkout. Please try again."
)

// CheckoutRequest is the cart as submitted by the storefront. Prices in it
// are list prices; the server re-prices every line.
type CheckoutRequest struct {
	Billing        models.Address    `json:"billing"`
	Shipping       models.Address    `json:"shipping"`
	Items          []models.CartItem `json:"items" binding:"required,min=1,dive"`
	ShippingMethod string            `json:"shippingMethod"`
	ShippingCost   pricing.Price     `json:"shippingCost"`
	CouponCode     string            `json:"couponCode,omitempty"`
	Notes          string            `json:"notes,omitempty"`
}

// CheckoutSession is a PayPal order waiting for buyer approval.
type CheckoutSession struct {
	OrderID     string         `json:"orderId"`
	ApprovalURL string         `json:"approvalUrl"`
	Totals      pricing.Totals `json:"totals"`
}

type CheckoutService struct {
	dealerTiers repository.DealerTierRepository
	customers   repository.CustomerRepository
	coupons     *CouponService
	gateway     PaymentGateway
	pending     repository.PendingOrderRepository
	metrics     awspkg.MetricsRecorder
	logger      *zap.Logger
	siteURL     string
	timeout     time.Duration
}

func NewCheckoutService(
	dealerTiers repository.DealerTierRepository,
	customers repository.CustomerRepository,
	coupons *CouponService,
	gateway PaymentGateway,
	pending repository.PendingOrderRepository,
	metrics awspkg.MetricsRecorder,
	logger *zap.Logger,
	siteURL string,
	gatewayTimeout time.Duration,
) *CheckoutService {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 30 * time.Second
	}
	return &CheckoutService{
		dealerTiers: dealerTiers,
		customers:   customers,
		coupons:     coupons,
		gateway:     gateway,
		pending:     pending,
		metrics:     orNoopMetrics(metrics),
		logger:      logger,
		siteURL:     strings.TrimRight(siteURL, "/"),
		timeout:     gatewayTimeout,
	}
}

// PriceCart turns a submitted cart into a checkout payload with final
// prices: dealer pricing for the customer's tier (gift certificates are
// always sold at face value), then the coupon, then totals.
func (s *CheckoutService) PriceCart(ctx context.Context, customerID string, req *CheckoutRequest) (*models.CheckoutPayload, *ServiceError) {
	if req == nil || len(req.Items) == 0 {
		return nil, badRequest("Cart is empty")
	}

	percent := s.dealerPercent(ctx, customerID)

	items := make([]models.CartItem, len(req.Items))
	lines := make([]pricing.Line, 0, len(req.Items))
	for i, it := range req.Items {
		if it.Quantity < 1 {
			return nil, badRequest("Item quantity must be at least 1")
		}
		price := pricing.RoundCents(it.Price.Decimal)
		if percent.IsPositive() && !models.IsGiftCertificate(it.PartNumber, it.Name) {
			price = pricing.ComputeDealerPrice(price, percent)
		}
		it.Price = pricing.NewPrice(price)
		items[i] = it
		lines = append(lines, pricing.Line{UnitPrice: price, Quantity: it.Quantity})
	}
	subtotal := pricing.CartTotals(lines, decimal.Zero, decimal.Zero).Subtotal

	payload := &models.CheckoutPayload{
		Billing:        req.Billing,
		Shipping:       req.Shipping,
		Items:          items,
		ShippingMethod: req.ShippingMethod,
		ShippingCost:   pricing.NewPrice(pricing.RoundCents(req.ShippingCost.Decimal)),
		Notes:          req.Notes,
	}
	if customerID != "" {
		payload.CustomerID = customerID
	}

	applied, serr := s.coupons.Evaluate(ctx, req.CouponCode, subtotal)
	if serr != nil {
		return nil, serr
	}
	if applied != nil {
		payload.CouponCode = applied.Coupon.Code
		payload.CouponID = applied.Coupon.ID.String()
		payload.Discount = pricing.NewPrice(applied.Discount)
		payload.FreeShipping = applied.FreeShipping
	}

	if err := validatePayload(payload); err != nil {
		return nil, badRequest(err.Error())
	}
	return payload, nil
}

// dealerPercent returns the discount of the customer's dealer tier, or
// zero when there is none. Lookup failures fall back to list price.
func (s *CheckoutService) dealerPercent(ctx context.Context, customerID string) decimal.Decimal {
	if customerID == "" || s.customers == nil || s.dealerTiers == nil {
		return decimal.Zero
	}
	id, err := uuid.Parse(customerID)
	if err != nil {
		return decimal.Zero
	}
	customer, err := s.customers.FindByID(ctx, id)
	if err != nil {
		if !repository.IsNotFound(err) {
			logger.Warn(ctx, s.logger, "Customer lookup failed; using list prices", zap.Error(err))
		}
		return decimal.Zero
	}
	if customer.DealerTier == nil {
		return decimal.Zero
	}
	tier, err := s.dealerTiers.FindByTier(ctx, *customer.DealerTier)
	if err != nil {
		if !repository.IsNotFound(err) {
			logger.Warn(ctx, s.logger, "Dealer tier lookup failed; using list prices",
				zap.Int("tier", *customer.DealerTier), zap.Error(err))
		}
		return decimal.Zero
	}
	return pricing.ClampPercent(tier.DiscountPercent)
}

// BeginPayPalCheckout prices the cart, opens a PayPal order for it and
// stores the payload under the PayPal order id until capture.
func (s *CheckoutService) BeginPayPalCheckout(ctx context.Context, customerID string, req *CheckoutRequest) (*CheckoutSession, *ServiceError) {
	payload, serr := s.PriceCart(ctx, customerID, req)
	if serr != nil {
		return nil, serr
	}
	totals := payload.Totals()

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	created, err := s.gateway.CreateOrder(gctx, s.gatewayOrder(payload, totals))
	if err != nil {
		var cfgErr *paypal.ConfigurationError
		if errors.As(err, &cfgErr) {
			logger.Error(ctx, s.logger, "PayPal is not configured", err)
			return nil, configurationFailure(err)
		}
		logger.Error(ctx, s.logger, "PayPal order creation failed", err)
		return nil, gatewayFailure(MsgCheckoutStartFailed, err)
	}

	if err := s.pending.Put(ctx, created.ID, payload); err != nil {
		logger.Error(ctx, s.logger, "Failed to store pending order", err, zap.String("token", created.ID))
		return nil, persistenceFailure(MsgCheckoutStartFailed, err)
	}

	_ = s.metrics.RecordCount(ctx, awspkg.MetricCheckoutsStarted, map[string]string{"PaymentMethod": models.PaymentMethodPayPal})
	logger.Info(ctx, s.logger, "PayPal checkout started",
		zap.String("token", created.ID),
		zap.String("total", totals.Total.StringFixed(2)))

	return &CheckoutSession{OrderID: created.ID, ApprovalURL: created.ApproveURL, Totals: totals}, nil
}

func (s *CheckoutService) gatewayOrder(p *models.CheckoutPayload, totals pricing.Totals) paypal.CreateOrderInput {
	items := make([]paypal.LineItem, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, paypal.LineItem{
			Name:      it.Name,
			SKU:       it.PartNumber,
			Quantity:  it.Quantity,
			UnitPrice: it.Price.StringFixed(2),
		})
	}

	in := paypal.CreateOrderInput{
		ReferenceID: uuid.NewString(),
		Currency:    checkoutCurrency,
		ItemTotal:   totals.Subtotal.StringFixed(2),
		Shipping:    totals.Shipping.StringFixed(2),
		Discount:    totals.Discount.StringFixed(2),
		Total:       totals.Total.StringFixed(2),
		Items:       items,
		ReturnURL:   s.siteURL + "/checkout/paypal/return",
		CancelURL:   s.siteURL + "/cart",
	}
	if p.Shipping.Address1 != "" {
		in.ShipTo = &paypal.Shipping{
			FullName:   strings.TrimSpace(p.Shipping.FirstName + " " + p.Shipping.LastName),
			Address1:   p.Shipping.Address1,
			Address2:   p.Shipping.Address2,
			City:       p.Shipping.City,
			State:      p.Shipping.State,
			PostalCode: p.Shipping.Zip,
			Country:    p.Shipping.Country,
		}
	}
	return in
}

// PurgeExpired deletes pending orders whose checkout session ran out.
func (s *CheckoutService) PurgeExpired(ctx context.Context) (int64, *ServiceError) {
	n, err := s.pending.PurgeExpired(ctx)
	if err != nil {
		logger.Error(ctx, s.logger, "Failed to purge expired pending orders", err)
		return 0, persistenceFailure("Failed to purge expired pending orders", err)
	}
	if n > 0 {
		_ = s.metrics.RecordValue(ctx, awspkg.MetricPendingOrdersPurged, float64(n), nil)
	}
	logger.Info(ctx, s.logger, "Expired pending orders purged", zap.Int64("count", n))
	return n, nil
}
