package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/pricing"
)

// CartItem is one line of the cart as captured at checkout time. binding
// tags are checked when a request is bound, validate tags whenever a
// payload is about to become an order.
type CartItem struct {
	ProductID  string        `json:"productId"`
	Name       string        `json:"name" binding:"required_without=PartNumber" validate:"required_without=PartNumber"`
	PartNumber string        `json:"partNumber" binding:"required_without=Name" validate:"required_without=Name"`
	Quantity   int           `json:"quantity" binding:"gte=1" validate:"gte=1"`
	Price      pricing.Price `json:"price" validate:"gte=0"`
	Color      string        `json:"color,omitempty"`
	Platform   string        `json:"platform,omitempty"`
	YearRange  string        `json:"yearRange,omitempty"`
}

// CheckoutPayload is everything needed to create an order, frozen when the
// customer is sent to the payment gateway. Prices in it are final.
type CheckoutPayload struct {
	Billing        Address       `json:"billing"`
	Shipping       Address       `json:"shipping"`
	Items          []CartItem    `json:"items" binding:"required,min=1,dive" validate:"required,min=1,dive"`
	ShippingMethod string        `json:"shippingMethod"`
	ShippingCost   pricing.Price `json:"shippingCost" validate:"gte=0"`
	FreeShipping   bool          `json:"freeShipping"`
	Discount       pricing.Price `json:"discount" validate:"gte=0"`
	CouponCode     string        `json:"couponCode,omitempty"`
	CouponID       string        `json:"couponId,omitempty"`
	CustomerID     string        `json:"customerId,omitempty"`
	Notes          string        `json:"notes,omitempty"`
}

// Lines converts the items for pricing.CartTotals.
func (p *CheckoutPayload) Lines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(p.Items))
	for _, it := range p.Items {
		lines = append(lines, pricing.Line{UnitPrice: it.Price.Decimal, Quantity: it.Quantity})
	}
	return lines
}

// Totals prices the payload.
func (p *CheckoutPayload) Totals() pricing.Totals {
	shipping := p.ShippingCost.Decimal
	if p.FreeShipping {
		shipping = decimal.Zero
	}
	return pricing.CartTotals(p.Lines(), shipping, p.Discount.Decimal)
}

// PendingOrder is the row bridging "begin checkout" and "payment captured"
// across the gateway redirect. Payload holds a JSON CheckoutPayload.
type PendingOrder struct {
	Token        string     `gorm:"type:varchar(64);primaryKey"`
	Payload      []byte     `gorm:"type:jsonb;not null"`
	ClaimedUntil *time.Time `gorm:"index"`
	ExpiresAt    time.Time  `gorm:"not null;index"`
	CreatedAt    time.Time  `gorm:"autoCreateTime"`
}

// CreateOrderRequest is the body of the create-order call: the checkout
// payload plus how it was paid.
type CreateOrderRequest struct {
	CheckoutPayload
	PaymentMethod    string `json:"paymentMethod" binding:"required,oneof=paypal card"`
	PaypalEmail      string `json:"paypalEmail,omitempty"`
	PaymentReference string `json:"paymentReference,omitempty" binding:"required"`
}

// CreateOrderResponse is the reply of the create-order call.
type CreateOrderResponse struct {
	Success     bool   `json:"success"`
	OrderNumber string `json:"orderNumber,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
	Error       string `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
}
