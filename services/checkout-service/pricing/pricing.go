// Package pricing holds the pure money arithmetic used when a cart is
// priced at checkout time: loose price parsing, dealer-tier discounts,
// coupon application and cart totals. Nothing here has side effects.
package pricing

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParsePrice coerces a possibly currency-formatted string into an amount by
// dropping everything except digits, '.' and '-'. Anything that still does
// not parse yields zero.
func ParsePrice(raw string) decimal.Decimal {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ClampPercent limits p to [0, 100].
func ClampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

// RoundCents rounds half away from zero to two decimal places.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeDealerPrice applies a dealer discount percentage (clamped to
// [0, 100]) to base and rounds to the cent.
func ComputeDealerPrice(base, discountPercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(ClampPercent(discountPercent).Div(hundred))
	return RoundCents(base.Mul(factor))
}

// Price is an amount that decodes from a JSON number or a loosely formatted
// JSON string ("$1,234.56") and encodes as a plain two-decimal number.
type Price struct {
	decimal.Decimal
}

// NewPrice wraps d.
func NewPrice(d decimal.Decimal) Price {
	return Price{Decimal: d}
}

func (p *Price) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "" || s == "null":
		p.Decimal = decimal.Zero
	case s[0] == '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		p.Decimal = ParsePrice(str)
	default:
		d, err := decimal.NewFromString(s)
		if err != nil {
			d = ParsePrice(s)
		}
		p.Decimal = d
	}
	return nil
}

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.StringFixed(2)), nil
}
