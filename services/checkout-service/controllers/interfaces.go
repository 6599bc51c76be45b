package controllers

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/services"
)

type PaymentCapturer interface {
	Capture(ctx context.Context, token string) (*services.CaptureOutcome, *services.ServiceError)
}

type CheckoutStarter interface {
	BeginPayPalCheckout(ctx context.Context, customerID string, req *services.CheckoutRequest) (*services.CheckoutSession, *services.ServiceError)
}

type PendingOrderPurger interface {
	PurgeExpired(ctx context.Context) (int64, *services.ServiceError)
}

type CardCheckout interface {
	Checkout(ctx context.Context, customerID string, req *services.CardCheckoutRequest) (*services.CaptureOutcome, *services.ServiceError)
}

type OrderManager interface {
	CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, *services.ServiceError)
	LookupOrder(ctx context.Context, orderNumber, email, customerID string) (*models.Order, *services.ServiceError)
	UpdateStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus) (*models.Order, *services.ServiceError)
	ReissueGiftCards(ctx context.Context, id uuid.UUID) (*services.ReissueResult, *services.ServiceError)
}

type DealerTierManager interface {
	List(ctx context.Context) ([]models.DealerTier, *services.ServiceError)
	Update(ctx context.Context, tier int, discountPercent decimal.Decimal) (*models.DealerTier, *services.ServiceError)
}
