package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusProcessed OrderStatus = "processed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions lists the statuses reachable from each status.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusProcessed, OrderStatusCancelled},
	OrderStatusProcessed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered, OrderStatusCancelled},
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

const (
	PaymentMethodPayPal = "paypal"
	PaymentMethodCard   = "card"
)

// Address is a billing or shipping address. It is embedded into orders with
// a column prefix.
type Address struct {
	FirstName string `gorm:"type:varchar(100)" json:"firstName"`
	LastName  string `gorm:"type:varchar(100)" json:"lastName"`
	Email     string `gorm:"type:varchar(255)" json:"email"`
	Phone     string `gorm:"type:varchar(40)" json:"phone,omitempty"`
	Company   string `gorm:"type:varchar(255)" json:"company,omitempty"`
	Address1  string `gorm:"type:varchar(255)" json:"address1"`
	Address2  string `gorm:"type:varchar(255)" json:"address2,omitempty"`
	City      string `gorm:"type:varchar(100)" json:"city"`
	State     string `gorm:"type:varchar(100)" json:"state"`
	Zip       string `gorm:"type:varchar(20)" json:"zip"`
	Country   string `gorm:"type:varchar(2)" json:"country"`
}

type Order struct {
	ID               uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderNumber      string          `gorm:"type:varchar(20);uniqueIndex;not null" json:"orderNumber"`
	CustomerID       *uuid.UUID      `gorm:"type:uuid;index" json:"customerId,omitempty"`
	Status           OrderStatus     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Billing          Address         `gorm:"embedded;embeddedPrefix:billing_" json:"billing"`
	Shipping         Address         `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping"`
	ShippingMethod   string          `gorm:"type:varchar(100)" json:"shippingMethod"`
	ShippingCost     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"shippingCost"`
	FreeShipping     bool            `gorm:"not null;default:false" json:"freeShipping"`
	Subtotal         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"subtotal"`
	Discount         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"discount"`
	Total            decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total"`
	CouponCode       string          `gorm:"type:varchar(64)" json:"couponCode,omitempty"`
	CouponID         *uuid.UUID      `gorm:"type:uuid" json:"couponId,omitempty"`
	PaymentMethod    string          `gorm:"type:varchar(20);not null" json:"paymentMethod"`
	PaymentReference string          `gorm:"type:varchar(100);index:idx_orders_payment_reference_unique,unique,where:payment_reference <> ''" json:"paymentReference,omitempty"`
	PaypalEmail      string          `gorm:"type:varchar(255)" json:"paypalEmail,omitempty"`
	Notes            string          `gorm:"type:text" json:"notes,omitempty"`
	CancelledAt      *time.Time      `json:"cancelledAt,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
	Items            []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	GiftCards        []GiftCard      `gorm:"foreignKey:OrderID" json:"giftCards,omitempty"`
}

type OrderItem struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"orderId"`
	ProductID  string          `gorm:"type:varchar(64)" json:"productId"`
	Name       string          `gorm:"type:varchar(255);not null" json:"name"`
	PartNumber string          `gorm:"type:varchar(64)" json:"partNumber"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unitPrice"`
	Color      string          `gorm:"type:varchar(64)" json:"color,omitempty"`
	Platform   string          `gorm:"type:varchar(128)" json:"platform,omitempty"`
	YearRange  string          `gorm:"type:varchar(32)" json:"yearRange,omitempty"`
}

// LineTotal is unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
