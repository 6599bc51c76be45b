package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	awspkg "github.com/bmr-suspension/storefront-backend/pkg/aws"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/repository"
	"github.com/bmr-suspension/storefront-backend/services/common/logger"
)

// MaxGiftCardCodeAttempts bounds code generation for a single card.
const MaxGiftCardCodeAttempts = 10

var errCodeSpaceExhausted = errors.New("no unique gift card code after max attempts")

// GiftCardIssuer turns gift-certificate order lines into redeemable cards,
// one per unit. Issuance is idempotent per (order item, unit index).
type GiftCardIssuer struct {
	repo    repository.GiftCardRepository
	logger  *zap.Logger
	metrics awspkg.MetricsRecorder
	newCode func() (string, error)
}

func NewGiftCardIssuer(repo repository.GiftCardRepository, logger *zap.Logger, metrics awspkg.MetricsRecorder) *GiftCardIssuer {
	return &GiftCardIssuer{
		repo:    repo,
		logger:  logger,
		metrics: orNoopMetrics(metrics),
		newCode: NewGiftCardCode,
	}
}

// IssuanceReport summarises one issuance pass over an order.
type IssuanceReport struct {
	Issued []models.GiftCard
	Failed int
}

// IssueForOrder issues every missing card for the order's gift-certificate
// lines. A failing unit is recorded for later re-drive and does not stop
// the others.
func (g *GiftCardIssuer) IssueForOrder(ctx context.Context, order *models.Order) IssuanceReport {
	var report IssuanceReport
	for _, item := range order.Items {
		if !models.IsGiftCertificate(item.PartNumber, item.Name) {
			continue
		}
		for unit := 0; unit < item.Quantity; unit++ {
			card, err := g.issueUnit(ctx, order, item, unit)
			if err != nil {
				report.Failed++
				g.recordFailure(ctx, order, item, unit, err)
				continue
			}
			if card != nil {
				report.Issued = append(report.Issued, *card)
			}
		}
	}

	if n := len(report.Issued); n > 0 {
		g.metrics.RecordValue(ctx, awspkg.MetricGiftCardsIssued, float64(n), nil)
	}
	if report.Failed > 0 {
		g.metrics.RecordValue(ctx, awspkg.MetricGiftCardIssueFailed, float64(report.Failed), nil)
	}
	return report
}

// issueUnit returns (nil, nil) when the unit already has a card.
func (g *GiftCardIssuer) issueUnit(ctx context.Context, order *models.Order, item models.OrderItem, unit int) (*models.GiftCard, error) {
	issued, err := g.repo.UnitIssued(ctx, item.ID, unit)
	if err != nil {
		return nil, fmt.Errorf("check issued unit: %w", err)
	}
	if issued {
		return nil, nil
	}

	for attempt := 1; attempt <= MaxGiftCardCodeAttempts; attempt++ {
		code, err := g.newCode()
		if err != nil {
			return nil, err
		}
		exists, err := g.repo.CodeExists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("check gift card code: %w", err)
		}
		if exists {
			continue
		}

		card := &models.GiftCard{
			Code:             code,
			InitialAmount:    item.UnitPrice,
			RemainingBalance: item.UnitPrice,
			OrderID:          order.ID,
			OrderItemID:      item.ID,
			UnitIndex:        unit,
			ProductName:      item.Name,
			PartNumber:       item.PartNumber,
		}
		err = g.repo.Create(ctx, card)
		if err == nil {
			return card, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("create gift card: %w", err)
		}
		// Lost a race: either the code was taken in the meantime or another
		// pass issued this unit.
		if issued, err := g.repo.UnitIssued(ctx, item.ID, unit); err == nil && issued {
			return nil, nil
		}
	}
	return nil, errCodeSpaceExhausted
}

func (g *GiftCardIssuer) recordFailure(ctx context.Context, order *models.Order, item models.OrderItem, unit int, cause error) {
	logger.Error(ctx, g.logger, "Gift card issuance failed", cause,
		zap.String("order_number", order.OrderNumber),
		zap.String("order_item_id", item.ID.String()),
		zap.Int("unit_index", unit),
	)
	f := &models.GiftCardIssuanceFailure{
		OrderID:     order.ID,
		OrderItemID: item.ID,
		UnitIndex:   unit,
		Reason:      cause.Error(),
	}
	if err := g.repo.RecordFailure(ctx, f); err != nil {
		logger.Error(ctx, g.logger, "Failed to record gift card issuance failure", err,
			zap.String("order_number", order.OrderNumber))
	}
}
