package services

import (
	"context"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/notification"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/paypal"
)

// PaymentGateway is the PayPal surface the checkout flow depends on.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, in paypal.CreateOrderInput) (*paypal.CreatedOrder, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error)
	GetOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error)
}

// CreatedOrder identifies an order written by an OrderCreator. Order is set
// when the creator ran in-process.
type CreatedOrder struct {
	OrderID     string
	OrderNumber string
	Order       *models.Order
}

// OrderCreator durably writes an order. Implemented in-process by
// OrderService and over HTTP by OrderHTTPClient.
type OrderCreator interface {
	SubmitOrder(ctx context.Context, req *models.CreateOrderRequest) (*CreatedOrder, error)
}

// ConfirmationSender queues an order confirmation email. The returned
// channel yields exactly one result and may be ignored.
type ConfirmationSender interface {
	SendOrderConfirmation(ctx context.Context, email string, data *notification.OrderConfirmation) <-chan notification.Result
}

// EventPublisher publishes domain events (SNS in production).
type EventPublisher interface {
	PublishEvent(ctx context.Context, topicArn, eventType string, v interface{}) error
}
