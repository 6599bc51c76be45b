package notification

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/pricing"
)

type ConfirmationItem struct {
	Name       string `json:"name"`
	PartNumber string `json:"partNumber"`
	Details    string `json:"details,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
	LineTotal  string `json:"lineTotal"`
}

type ConfirmationGiftCard struct {
	Code        string `json:"code"`
	Amount      string `json:"amount"`
	ProductName string `json:"productName"`
}

// OrderConfirmation is everything the confirmation email shows. It is
// plain data so it can travel through a queue.
type OrderConfirmation struct {
	OrderID             string                 `json:"orderId"`
	OrderNumber         string                 `json:"orderNumber"`
	CustomerName        string                 `json:"customerName"`
	PaymentMethod       string                 `json:"paymentMethod"`
	ShippingMethod      string                 `json:"shippingMethod"`
	ShipTo              models.Address         `json:"shipTo"`
	Items               []ConfirmationItem     `json:"items"`
	Subtotal            string                 `json:"subtotal"`
	Discount            string                 `json:"discount"`
	Shipping            string                 `json:"shipping"`
	Total               string                 `json:"total"`
	CouponCode          string                 `json:"couponCode,omitempty"`
	HasGiftCertificates bool                   `json:"hasGiftCertificates"`
	GiftCards           []ConfirmationGiftCard `json:"giftCards,omitempty"`
}

// HasDiscount is used by the template.
func (c *OrderConfirmation) HasDiscount() bool {
	d, err := decimal.NewFromString(c.Discount)
	return err == nil && d.IsPositive()
}

// FromOrder builds confirmation data from a persisted order.
func FromOrder(o *models.Order) *OrderConfirmation {
	c := &OrderConfirmation{
		OrderID:        o.ID.String(),
		OrderNumber:    o.OrderNumber,
		CustomerName:   fullName(o.Billing),
		PaymentMethod:  o.PaymentMethod,
		ShippingMethod: o.ShippingMethod,
		ShipTo:         o.Shipping,
		Subtotal:       o.Subtotal.StringFixed(2),
		Discount:       o.Discount.StringFixed(2),
		Shipping:       o.ShippingCost.StringFixed(2),
		Total:          o.Total.StringFixed(2),
		CouponCode:     o.CouponCode,
	}
	for _, it := range o.Items {
		c.Items = append(c.Items, ConfirmationItem{
			Name:       it.Name,
			PartNumber: it.PartNumber,
			Details:    itemDetails(it.Color, it.Platform, it.YearRange),
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice.StringFixed(2),
			LineTotal:  it.LineTotal().StringFixed(2),
		})
		if models.IsGiftCertificate(it.PartNumber, it.Name) {
			c.HasGiftCertificates = true
		}
	}
	c.SetGiftCards(o.GiftCards)
	return c
}

// FromPayload builds confirmation data when only the checkout payload and
// the created order's identifiers are at hand.
func FromPayload(orderID, orderNumber string, p *models.CheckoutPayload, paymentMethod string) *OrderConfirmation {
	totals := p.Totals()
	c := &OrderConfirmation{
		OrderID:        orderID,
		OrderNumber:    orderNumber,
		CustomerName:   fullName(p.Billing),
		PaymentMethod:  paymentMethod,
		ShippingMethod: p.ShippingMethod,
		ShipTo:         p.Shipping,
		Subtotal:       totals.Subtotal.StringFixed(2),
		Discount:       totals.Discount.StringFixed(2),
		Shipping:       totals.Shipping.StringFixed(2),
		Total:          totals.Total.StringFixed(2),
		CouponCode:     p.CouponCode,
	}
	for _, it := range p.Items {
		unit := pricing.RoundCents(it.Price.Decimal)
		c.Items = append(c.Items, ConfirmationItem{
			Name:       it.Name,
			PartNumber: it.PartNumber,
			Details:    itemDetails(it.Color, it.Platform, it.YearRange),
			Quantity:   it.Quantity,
			UnitPrice:  unit.StringFixed(2),
			LineTotal:  unit.Mul(decimal.NewFromInt(int64(it.Quantity))).StringFixed(2),
		})
		if models.IsGiftCertificate(it.PartNumber, it.Name) {
			c.HasGiftCertificates = true
		}
	}
	return c
}

// SetGiftCards replaces the gift cards shown in the email.
func (c *OrderConfirmation) SetGiftCards(cards []models.GiftCard) {
	c.GiftCards = c.GiftCards[:0]
	for _, gc := range cards {
		c.GiftCards = append(c.GiftCards, ConfirmationGiftCard{
			Code:        gc.Code,
			Amount:      gc.InitialAmount.StringFixed(2),
			ProductName: gc.ProductName,
		})
	}
}

func fullName(a models.Address) string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

func itemDetails(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " / ")
}
