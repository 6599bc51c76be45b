package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	awspkg "github.com/bmr-suspension/storefront-backend/pkg/aws"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/pricing"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/repository"
	"github.com/bmr-suspension/storefront-backend/services/common/logger"
)

// MaxOrderNumberAttempts bounds order-number generation per order.
const MaxOrderNumberAttempts = 5

type OrderService struct {
	orders         repository.OrderRepository
	coupons        repository.CouponRepository
	giftCards      repository.GiftCardRepository
	issuer         *GiftCardIssuer
	events         EventPublisher
	topicArn       string
	metrics        awspkg.MetricsRecorder
	logger         *zap.Logger
	newOrderNumber func() (string, error)
}

func NewOrderService(
	orders repository.OrderRepository,
	coupons repository.CouponRepository,
	giftCards repository.GiftCardRepository,
	events EventPublisher,
	topicArn string,
	metrics awspkg.MetricsRecorder,
	logger *zap.Logger,
) *OrderService {
	metrics = orNoopMetrics(metrics)
	return &OrderService{
		orders:         orders,
		coupons:        coupons,
		giftCards:      giftCards,
		issuer:         NewGiftCardIssuer(giftCards, logger, metrics),
		events:         events,
		topicArn:       topicArn,
		metrics:        metrics,
		logger:         logger,
		newOrderNumber: NewOrderNumber,
	}
}

// CreateOrder durably writes an order built from req. It is idempotent on
// req.PaymentReference: a second call for the same payment returns the
// order written by the first.
func (s *OrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, *ServiceError) {
	if req == nil {
		return nil, badRequest("Order request is required")
	}
	if strings.TrimSpace(req.PaymentReference) == "" {
		return nil, badRequest("Payment reference is required")
	}

	existing, err := s.orders.FindByPaymentReference(ctx, req.PaymentReference)
	if err == nil {
		return s.alreadyCreated(ctx, existing), nil
	}
	if !repository.IsNotFound(err) {
		logger.Error(ctx, s.logger, "Failed to look up order by payment reference", err)
		return nil, persistenceFailure(MsgOrderFailed, err)
	}

	if err := validatePayload(&req.CheckoutPayload); err != nil {
		return nil, badRequest(err.Error())
	}
	switch req.PaymentMethod {
	case models.PaymentMethodPayPal, models.PaymentMethodCard:
	default:
		return nil, badRequest(fmt.Sprintf("Unsupported payment method %q", req.PaymentMethod))
	}

	order, err := buildOrder(req)
	if err != nil {
		return nil, badRequest(err.Error())
	}

	existing, serr := s.insertWithOrderNumber(ctx, order)
	if serr != nil {
		return nil, serr
	}
	if existing != nil {
		return s.alreadyCreated(ctx, existing), nil
	}

	s.redeemCoupon(ctx, order)

	report := s.issuer.IssueForOrder(ctx, order)
	order.GiftCards = report.Issued

	s.publishCreated(ctx, order)

	dims := map[string]string{"PaymentMethod": order.PaymentMethod}
	_ = s.metrics.RecordCount(ctx, awspkg.MetricOrdersCreated, dims)
	_ = s.metrics.RecordValue(ctx, awspkg.MetricOrderValue, order.Total.InexactFloat64(), dims)

	logger.Info(ctx, s.logger, "Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("payment_method", order.PaymentMethod),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("gift_cards", len(report.Issued)),
		zap.Int("gift_card_failures", report.Failed),
	)
	return order, nil
}

// alreadyCreated finishes a replayed create for an order that exists: any
// gift cards the first attempt failed to issue are issued now, and the
// order is returned with all of its cards.
func (s *OrderService) alreadyCreated(ctx context.Context, existing *models.Order) *models.Order {
	report := s.issuer.IssueForOrder(ctx, existing)
	if cards, err := s.giftCards.FindByOrderID(ctx, existing.ID); err == nil {
		existing.GiftCards = cards
	} else {
		existing.GiftCards = append(existing.GiftCards, report.Issued...)
	}
	logger.Info(ctx, s.logger, "Order already exists for payment",
		zap.String("payment_reference", existing.PaymentReference),
		zap.String("order_number", existing.OrderNumber),
		zap.Int("gift_cards_topped_up", len(report.Issued)))
	return existing
}

// SubmitOrder adapts CreateOrder to OrderCreator.
func (s *OrderService) SubmitOrder(ctx context.Context, req *models.CreateOrderRequest) (*CreatedOrder, error) {
	order, serr := s.CreateOrder(ctx, req)
	if serr != nil {
		return nil, serr
	}
	return &CreatedOrder{
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		Order:       order,
	}, nil
}

// insertWithOrderNumber writes order under a fresh order number. When the
// insert collides on the payment reference instead, the order that won is
// returned and nothing is written.
func (s *OrderService) insertWithOrderNumber(ctx context.Context, order *models.Order) (*models.Order, *ServiceError) {
	var lastErr error
	for attempt := 1; attempt <= MaxOrderNumberAttempts; attempt++ {
		number, err := s.newOrderNumber()
		if err != nil {
			return nil, persistenceFailure(MsgOrderFailed, err)
		}
		exists, err := s.orders.OrderNumberExists(ctx, number)
		if err != nil {
			logger.Error(ctx, s.logger, "Failed to check order number", err)
			return nil, persistenceFailure(MsgOrderFailed, err)
		}
		if exists {
			lastErr = fmt.Errorf("order number %s taken", number)
			continue
		}

		order.ID = uuid.Nil
		order.OrderNumber = number
		err = s.orders.Create(ctx, order)
		if err == nil {
			return nil, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			logger.Error(ctx, s.logger, "Failed to create order", err, zap.String("order_number", number))
			return nil, persistenceFailure(MsgOrderFailed, err)
		}

		existing, findErr := s.orders.FindByPaymentReference(ctx, order.PaymentReference)
		if findErr == nil {
			return existing, nil
		}
		if !repository.IsNotFound(findErr) {
			logger.Error(ctx, s.logger, "Failed to look up order by payment reference", findErr)
			return nil, persistenceFailure(MsgOrderFailed, findErr)
		}
		lastErr = err
	}
	logger.Error(ctx, s.logger, "Could not allocate a unique order number", lastErr,
		zap.Int("attempts", MaxOrderNumberAttempts))
	return nil, persistenceFailure(MsgOrderFailed, lastErr)
}

func (s *OrderService) redeemCoupon(ctx context.Context, order *models.Order) {
	if order.CouponCode == "" || s.coupons == nil {
		return
	}
	ok, err := s.coupons.IncrementUsedCount(ctx, order.CouponCode)
	if err != nil {
		logger.Warn(ctx, s.logger, "Failed to record coupon usage",
			zap.String("coupon", order.CouponCode), zap.Error(err))
		return
	}
	if !ok {
		logger.Warn(ctx, s.logger, "Coupon usage not recorded; limit reached or coupon inactive",
			zap.String("coupon", order.CouponCode))
	}
}

func (s *OrderService) publishCreated(ctx context.Context, order *models.Order) {
	if s.events == nil || s.topicArn == "" {
		return
	}
	evt := models.OrderCreatedEvent{
		EventType:     models.EventOrderCreated,
		OrderID:       order.ID.String(),
		OrderNumber:   order.OrderNumber,
		Email:         order.Billing.Email,
		PaymentMethod: order.PaymentMethod,
		Total:         order.Total.StringFixed(2),
		ItemCount:     len(order.Items),
		GiftCards:     len(order.GiftCards),
		Timestamp:     time.Now().UTC(),
	}
	if order.CustomerID != nil {
		evt.CustomerID = order.CustomerID.String()
	}
	if err := s.events.PublishEvent(ctx, s.topicArn, models.EventOrderCreated, evt); err != nil {
		logger.Warn(ctx, s.logger, "Failed to publish order event",
			zap.String("order_number", order.OrderNumber), zap.Error(err))
	}
}

// buildOrder maps a request onto an unsaved order. Amounts come from the
// payload alone.
func buildOrder(req *models.CreateOrderRequest) (*models.Order, error) {
	totals := req.Totals()
	order := &models.Order{
		Status:           models.OrderStatusPending,
		Billing:          req.Billing,
		Shipping:         req.Shipping,
		ShippingMethod:   req.ShippingMethod,
		ShippingCost:     totals.Shipping,
		FreeShipping:     req.FreeShipping,
		Subtotal:         totals.Subtotal,
		Discount:         totals.Discount,
		Total:            totals.Total,
		CouponCode:       strings.ToUpper(strings.TrimSpace(req.CouponCode)),
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		PaypalEmail:      req.PaypalEmail,
		Notes:            req.Notes,
	}

	if req.CustomerID != "" {
		id, err := uuid.Parse(req.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("invalid customer id")
		}
		order.CustomerID = &id
	}
	if req.CouponID != "" {
		id, err := uuid.Parse(req.CouponID)
		if err != nil {
			return nil, fmt.Errorf("invalid coupon id")
		}
		order.CouponID = &id
	}

	order.Items = make([]models.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		name := it.Name
		if name == "" {
			name = it.PartNumber
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID:  it.ProductID,
			Name:       name,
			PartNumber: it.PartNumber,
			Quantity:   it.Quantity,
			UnitPrice:  pricing.RoundCents(it.Price.Decimal),
			Color:      it.Color,
			Platform:   it.Platform,
			YearRange:  it.YearRange,
		})
	}
	return order, nil
}

// LookupOrder returns the confirmation view of an order. The caller must
// prove ownership with the billing email or by being the signed-in
// customer the order belongs to; anything else looks like a missing
// order. Gift-card codes are never part of the view.
func (s *OrderService) LookupOrder(ctx context.Context, orderNumber, email, customerID string) (*models.Order, *ServiceError) {
	email = strings.TrimSpace(email)
	if email == "" && customerID == "" {
		return nil, badRequest("Billing email is required")
	}

	number := strings.ToUpper(strings.TrimSpace(orderNumber))
	order, err := s.orders.FindByOrderNumber(ctx, number)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("Order not found")
		}
		logger.Error(ctx, s.logger, "Failed to load order", err, zap.String("order_number", number))
		return nil, persistenceFailure("Failed to load order", err)
	}

	owner := customerID != "" && order.CustomerID != nil && order.CustomerID.String() == customerID
	if !owner && (email == "" || !strings.EqualFold(order.Billing.Email, email)) {
		logger.Warn(ctx, s.logger, "Order lookup did not match the order owner",
			zap.String("order_number", number))
		return nil, notFound("Order not found")
	}

	order.GiftCards = nil
	return order, nil
}

// UpdateStatus moves an order along the status state machine.
func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus) (*models.Order, *ServiceError) {
	if !to.Valid() {
		return nil, badRequest(fmt.Sprintf("Unknown order status %q", to))
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("Order not found")
		}
		return nil, persistenceFailure("Failed to load order", err)
	}
	from := order.Status
	if !from.CanTransition(to) {
		return nil, conflict(fmt.Sprintf("Cannot change order status from %s to %s", from, to))
	}

	changed, err := s.orders.TransitionStatus(ctx, id, from, to)
	if err != nil {
		logger.Error(ctx, s.logger, "Failed to update order status", err, zap.String("order_id", id.String()))
		return nil, persistenceFailure("Failed to update order status", err)
	}
	if !changed {
		return nil, conflict("Order status was changed by another request")
	}

	order.Status = to
	if to == models.OrderStatusCancelled {
		now := time.Now()
		order.CancelledAt = &now
	}
	logger.Info(ctx, s.logger, "Order status updated",
		zap.String("order_number", order.OrderNumber),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return order, nil
}

// ReissueResult reports a gift-card re-drive.
type ReissueResult struct {
	OrderNumber string            `json:"orderNumber"`
	Issued      []models.GiftCard `json:"issued"`
	Outstanding int               `json:"outstanding"`
}

// ReissueGiftCards issues any gift cards an order is still missing and
// resolves the recorded failures that are now covered. Running it again
// after success issues nothing.
func (s *OrderService) ReissueGiftCards(ctx context.Context, id uuid.UUID) (*ReissueResult, *ServiceError) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("Order not found")
		}
		return nil, persistenceFailure("Failed to load order", err)
	}

	report := s.issuer.IssueForOrder(ctx, order)

	failures, err := s.giftCards.UnresolvedFailures(ctx, order.ID)
	if err != nil {
		return nil, persistenceFailure("Failed to load gift card failures", err)
	}
	type unitKey struct {
		item uuid.UUID
		unit int
	}
	missing := make(map[unitKey]struct{})
	for _, f := range failures {
		issued, err := s.giftCards.UnitIssued(ctx, f.OrderItemID, f.UnitIndex)
		if err != nil || !issued {
			missing[unitKey{f.OrderItemID, f.UnitIndex}] = struct{}{}
			continue
		}
		if err := s.giftCards.ResolveFailure(ctx, f.ID); err != nil {
			logger.Warn(ctx, s.logger, "Failed to resolve gift card failure",
				zap.String("failure_id", f.ID.String()), zap.Error(err))
		}
	}

	outstanding := len(missing)
	logger.Info(ctx, s.logger, "Gift cards re-driven",
		zap.String("order_number", order.OrderNumber),
		zap.Int("issued", len(report.Issued)),
		zap.Int("outstanding", outstanding))
	return &ReissueResult{OrderNumber: order.OrderNumber, Issued: report.Issued, Outstanding: outstanding}, nil
}
