package pricing

import "github.com/shopspring/decimal"

// Line is one priced cart line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals is the money breakdown of a cart.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// CartTotals sums lines and applies discount and shipping. Discount is
// clamped to [0, subtotal] and negative shipping is treated as zero, so the
// total is never negative.
func CartTotals(lines []Line, shipping, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	subtotal = RoundCents(subtotal)

	discount = ClampDiscount(discount, subtotal)
	if shipping.IsNegative() {
		shipping = decimal.Zero
	}
	shipping = RoundCents(shipping)

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Total:    subtotal.Sub(discount).Add(shipping),
	}
}

// ClampDiscount limits discount to [0, subtotal] and rounds it to the cent.
func ClampDiscount(discount, subtotal decimal.Decimal) decimal.Decimal {
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	return RoundCents(discount)
}

// CouponKind mirrors the stored coupon types.
type CouponKind string

const (
	CouponPercentage   CouponKind = "percentage"
	CouponFlat         CouponKind = "flat"
	CouponFreeShipping CouponKind = "freeshipping"
)

// CouponDiscount returns the discount a coupon of kind/value grants on
// subtotal, and whether it waives shipping.
func CouponDiscount(kind CouponKind, value, subtotal decimal.Decimal) (decimal.Decimal, bool) {
	switch kind {
	case CouponPercentage:
		return ClampDiscount(subtotal.Mul(ClampPercent(value)).Div(hundred), subtotal), false
	case CouponFlat:
		return ClampDiscount(value, subtotal), false
	case CouponFreeShipping:
		return decimal.Zero, true
	default:
		return decimal.Zero, false
	}
}
