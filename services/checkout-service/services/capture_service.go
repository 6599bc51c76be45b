package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	awspkg "github.com/bmr-suspension/storefront-backend/pkg/aws"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/notification"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/paypal"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/repository"
	"github.com/bmr-suspension/storefront-backend/services/common/logger"
)

type CaptureConfig struct {
	// ClaimLease must outlast GatewayTimeout plus OrderTimeout, or a
	// concurrent callback may claim the token mid-finalization.
	ClaimLease     time.Duration
	GatewayTimeout time.Duration
	OrderTimeout   time.Duration
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = 30 * time.Second
	}
	if c.OrderTimeout <= 0 {
		c.OrderTimeout = 30 * time.Second
	}
	if floor := c.GatewayTimeout*2 + c.OrderTimeout; c.ClaimLease < floor {
		c.ClaimLease = floor + 30*time.Second
	}
	return c
}

// CaptureOutcome identifies the order a successful capture produced.
type CaptureOutcome struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
}

// CaptureService finalizes a PayPal checkout: it claims the pending order
// for the token, captures the payment, writes the order and consumes the
// pending order exactly once.
type CaptureService struct {
	pending  repository.PendingOrderRepository
	gateway  PaymentGateway
	orders   OrderCreator
	notifier ConfirmationSender
	metrics  awspkg.MetricsRecorder
	logger   *zap.Logger
	cfg      CaptureConfig
}

func NewCaptureService(
	pending repository.PendingOrderRepository,
	gateway PaymentGateway,
	orders OrderCreator,
	notifier ConfirmationSender,
	metrics awspkg.MetricsRecorder,
	logger *zap.Logger,
	cfg CaptureConfig,
) *CaptureService {
	return &CaptureService{
		pending:  pending,
		gateway:  gateway,
		orders:   orders,
		notifier: notifier,
		metrics:  orNoopMetrics(metrics),
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}
}

// Capture runs the finalization for token. On every retryable failure the
// pending order is released intact so the callback can be retried.
func (s *CaptureService) Capture(ctx context.Context, token string) (*CaptureOutcome, *ServiceError) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, badRequest("Missing checkout token.")
	}
	log := logger.For(ctx, s.logger).With(zap.String("token", token))

	payload, err := s.pending.Claim(ctx, token, s.cfg.ClaimLease)
	if err != nil {
		if errors.Is(err, repository.ErrPendingOrderNotFound) {
			log.Warn("No claimable pending order for token")
			_ = s.metrics.RecordCount(ctx, awspkg.MetricSessionsExpired, nil)
			return nil, expiredSession(err)
		}
		if errors.Is(err, repository.ErrInvalidPayload) {
			log.Warn("Pending order payload is unreadable; discarding", zap.Error(err))
			s.deletePending(ctx, log, token)
			_ = s.metrics.RecordCount(ctx, awspkg.MetricSessionsExpired, nil)
			return nil, expiredSession(err)
		}
		log.Error("Failed to claim pending order", zap.Error(err))
		return nil, persistenceFailure(MsgOrderFailed, err)
	}

	if err := validatePayload(payload); err != nil {
		log.Warn("Pending order payload is invalid; discarding", zap.Error(err))
		s.deletePending(ctx, log, token)
		_ = s.metrics.RecordCount(ctx, awspkg.MetricSessionsExpired, nil)
		return nil, expiredSession(err)
	}

	capture, err := s.capturePayment(ctx, token)
	if err != nil {
		s.releasePending(ctx, log, token)
		_ = s.metrics.RecordCount(ctx, awspkg.MetricCapturesFailed, nil)

		var cfgErr *paypal.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Error("PayPal is not configured", zap.Strings("missing", cfgErr.Missing))
			return nil, configurationFailure(err)
		}
		fields := []zap.Field{zap.Error(err)}
		var ce *paypal.CaptureError
		if errors.As(err, &ce) {
			fields = append(fields, zap.Int("gateway_status", ce.StatusCode), zap.String("gateway_body", ce.Body))
		}
		log.Error("PayPal capture failed", fields...)
		return nil, gatewayFailure(MsgCaptureFailed, err)
	}
	_ = s.metrics.RecordCount(ctx, awspkg.MetricCapturesSucceeded, nil)

	reference := capture.CaptureID
	if reference == "" {
		reference = token
	}
	req := &models.CreateOrderRequest{
		CheckoutPayload:  *payload,
		PaymentMethod:    models.PaymentMethodPayPal,
		PaypalEmail:      capture.PayerEmail,
		PaymentReference: reference,
	}

	octx, cancel := context.WithTimeout(ctx, s.cfg.OrderTimeout)
	created, err := s.orders.SubmitOrder(octx, req)
	cancel()
	if err != nil {
		s.releasePending(ctx, log, token)
		log.Error("Order creation failed after payment capture",
			zap.String("payment_reference", reference), zap.Error(err))
		return nil, persistenceFailure(MsgOrderFailed, err)
	}

	s.deletePending(ctx, log, token)

	log.Info("Checkout finalized",
		zap.String("order_id", created.OrderID),
		zap.String("order_number", created.OrderNumber),
		zap.String("payment_reference", reference))

	s.sendConfirmation(ctx, log, created, payload, capture.PayerEmail)

	return &CaptureOutcome{OrderID: created.OrderID, OrderNumber: created.OrderNumber}, nil
}

// capturePayment captures token on the gateway. A capture that already
// happened on an earlier attempt counts as success once the gateway
// confirms the order is completed.
func (s *CaptureService) capturePayment(ctx context.Context, token string) (*paypal.CaptureResult, error) {
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	result, err := s.gateway.CaptureOrder(gctx, token)
	if err == nil {
		return result, nil
	}
	if !paypal.IsAlreadyCaptured(err) {
		return nil, err
	}

	// The capture attempt may have used up most of gctx.
	lctx, lcancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer lcancel()
	existing, getErr := s.gateway.GetOrder(lctx, token)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Status != paypal.StatusCompleted {
		return nil, err
	}
	logger.Info(ctx, s.logger, "Gateway order was already captured; continuing finalization",
		zap.String("token", token))
	return existing, nil
}

func (s *CaptureService) releasePending(ctx context.Context, log *zap.Logger, token string) {
	if err := s.pending.Release(context.WithoutCancel(ctx), token); err != nil {
		log.Warn("Failed to release pending order claim", zap.Error(err))
	}
}

func (s *CaptureService) deletePending(ctx context.Context, log *zap.Logger, token string) {
	if err := s.pending.Delete(context.WithoutCancel(ctx), token); err != nil {
		log.Warn("Failed to delete pending order", zap.Error(err))
	}
}

func (s *CaptureService) sendConfirmation(ctx context.Context, log *zap.Logger, created *CreatedOrder, payload *models.CheckoutPayload, payerEmail string) {
	if s.notifier == nil {
		return
	}
	email := payload.Billing.Email
	if email == "" {
		email = payerEmail
	}
	if email == "" {
		log.Warn("No email address for order confirmation", zap.String("order_number", created.OrderNumber))
		return
	}

	var data *notification.OrderConfirmation
	if created.Order != nil {
		data = notification.FromOrder(created.Order)
	} else {
		data = notification.FromPayload(created.OrderID, created.OrderNumber, payload, models.PaymentMethodPayPal)
	}
	s.notifier.SendOrderConfirmation(context.WithoutCancel(ctx), email, data)
}
