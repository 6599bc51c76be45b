package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	awspkg "github.com/bmr-suspension/storefront-backend/pkg/aws"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/notification"
	"github.com/bmr-suspension/storefront-backend/services/common/logger"
)

const paymentSucceeded = "succeeded"

// CardCharge is a confirmed card payment to make.
type CardCharge struct {
	Amount          decimal.Decimal
	Currency        string
	PaymentMethodID string
	IdempotencyKey  string
	ReceiptEmail    string
	Metadata        map[string]string
}

// CardPayment is the processor's view of a charge.
type CardPayment struct {
	ID     string
	Status string
}

// CardDeclinedError means the card itself was refused; the customer can
// try another card.
type CardDeclinedError struct {
	Code        string
	DeclineCode string
	Message     string
}

func (e *CardDeclinedError) Error() string {
	return fmt.Sprintf("card declined: %s (%s)", e.Code, e.DeclineCode)
}

// CardProcessor charges cards (Stripe in production).
type CardProcessor interface {
	Charge(ctx context.Context, charge CardCharge) (*CardPayment, error)
}

// CardCheckoutRequest is a cart plus a tokenized card. CheckoutID is
// generated by the storefront once per checkout attempt and makes retries
// of the same attempt charge at most once.
type CardCheckoutRequest struct {
	CheckoutRequest
	PaymentMethodID string `json:"paymentMethodId" binding:"required"`
	CheckoutID      string `json:"checkoutId" binding:"required"`
}

type CardCheckoutService struct {
	checkout  *CheckoutService
	processor CardProcessor
	orders    OrderCreator
	notifier  ConfirmationSender
	metrics   awspkg.MetricsRecorder
	logger    *zap.Logger
}

func NewCardCheckoutService(
	checkout *CheckoutService,
	processor CardProcessor,
	orders OrderCreator,
	notifier ConfirmationSender,
	metrics awspkg.MetricsRecorder,
	logger *zap.Logger,
) *CardCheckoutService {
	return &CardCheckoutService{
		checkout:  checkout,
		processor: processor,
		orders:    orders,
		notifier:  notifier,
		metrics:   orNoopMetrics(metrics),
		logger:    logger,
	}
}

// Checkout prices the cart, charges the card and writes the order.
func (s *CardCheckoutService) Checkout(ctx context.Context, customerID string, req *CardCheckoutRequest) (*CaptureOutcome, *ServiceError) {
	if req == nil {
		return nil, badRequest("Checkout request is required")
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		return nil, badRequest("Payment method is required")
	}
	if strings.TrimSpace(req.CheckoutID) == "" {
		return nil, badRequest("Checkout id is required")
	}
	if s.processor == nil {
		return nil, configurationFailure(errors.New("card processor not configured"))
	}

	payload, serr := s.checkout.PriceCart(ctx, customerID, &req.CheckoutRequest)
	if serr != nil {
		return nil, serr
	}
	totals := payload.Totals()
	_ = s.metrics.RecordCount(ctx, awspkg.MetricCheckoutsStarted, map[string]string{"PaymentMethod": models.PaymentMethodCard})

	payment, err := s.processor.Charge(ctx, CardCharge{
		Amount:          totals.Total,
		Currency:        checkoutCurrency,
		PaymentMethodID: req.PaymentMethodID,
		IdempotencyKey:  req.CheckoutID,
		ReceiptEmail:    payload.Billing.Email,
		Metadata:        map[string]string{"checkout_id": req.CheckoutID},
	})
	if err != nil {
		_ = s.metrics.RecordCount(ctx, awspkg.MetricCapturesFailed, map[string]string{"PaymentMethod": models.PaymentMethodCard})
		var declined *CardDeclinedError
		if errors.As(err, &declined) {
			logger.Warn(ctx, s.logger, "Card declined",
				zap.String("code", declined.Code), zap.String("decline_code", declined.DeclineCode))
			msg := MsgCardFailed
			if declined.Message != "" {
				msg = declined.Message
			}
			return nil, &ServiceError{StatusCode: http.StatusPaymentRequired, Message: msg, Kind: KindGateway, Err: err}
		}
		logger.Error(ctx, s.logger, "Card charge failed", err)
		return nil, gatewayFailure(MsgCardFailed, err)
	}
	if payment.Status != paymentSucceeded {
		logger.Warn(ctx, s.logger, "Card payment not completed",
			zap.String("payment_id", payment.ID), zap.String("status", payment.Status))
		return nil, &ServiceError{StatusCode: http.StatusPaymentRequired, Message: MsgCardFailed, Kind: KindGateway}
	}
	_ = s.metrics.RecordCount(ctx, awspkg.MetricCapturesSucceeded, map[string]string{"PaymentMethod": models.PaymentMethodCard})

	created, err := s.orders.SubmitOrder(ctx, &models.CreateOrderRequest{
		CheckoutPayload:  *payload,
		PaymentMethod:    models.PaymentMethodCard,
		PaymentReference: payment.ID,
	})
	if err != nil {
		// The card is charged; a retry with the same checkout id reuses the
		// payment and finds or writes the order.
		logger.Error(ctx, s.logger, "Order creation failed after card charge", err,
			zap.String("payment_id", payment.ID))
		return nil, persistenceFailure(MsgOrderFailed, err)
	}

	if s.notifier != nil && payload.Billing.Email != "" {
		data := notification.FromPayload(created.OrderID, created.OrderNumber, payload, models.PaymentMethodCard)
		if created.Order != nil {
			data = notification.FromOrder(created.Order)
		}
		s.notifier.SendOrderConfirmation(context.WithoutCancel(ctx), payload.Billing.Email, data)
	}

	return &CaptureOutcome{OrderID: created.OrderID, OrderNumber: created.OrderNumber}, nil
}
