package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"go.uber.org/zap"
)

// StripeProcessor charges cards with confirmed PaymentIntents.
type StripeProcessor struct {
	api    *client.API
	logger *zap.Logger
}

// NewStripeProcessor returns nil when secretKey is empty so card checkout
// reports a configuration error instead of calling Stripe unauthenticated.
func NewStripeProcessor(secretKey string, logger *zap.Logger) *StripeProcessor {
	if secretKey == "" {
		return nil
	}
	return newStripeProcessor(secretKey, nil, logger)
}

func newStripeProcessor(secretKey string, backends *stripe.Backends, logger *zap.Logger) *StripeProcessor {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeProcessor{api: api, logger: logger}
}

func (p *StripeProcessor) Charge(ctx context.Context, c CardCharge) (*CardPayment, error) {
	cents := c.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if cents <= 0 {
		return nil, fmt.Errorf("charge amount must be positive, got %s", c.Amount.StringFixed(2))
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(cents),
		Currency:      stripe.String(strings.ToLower(c.Currency)),
		PaymentMethod: stripe.String(c.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if c.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(c.ReceiptEmail)
	}
	for k, v := range c.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if c.IdempotencyKey != "" {
		params.SetIdempotencyKey("card-checkout-" + c.IdempotencyKey)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
			return nil, &CardDeclinedError{
				Code:        string(se.Code),
				DeclineCode: string(se.DeclineCode),
				Message:     se.Msg,
			}
		}
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	p.logger.Info("PaymentIntent created",
		zap.String("payment_intent_id", pi.ID),
		zap.String("status", string(pi.Status)),
		zap.Int64("amount", pi.Amount))
	return &CardPayment{ID: pi.ID, Status: string(pi.Status)}, nil
}
