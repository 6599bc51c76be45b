package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/repository"
)

var hundredPercent = decimal.NewFromInt(100)

type DealerTierService struct {
	repo   repository.DealerTierRepository
	logger *zap.Logger
}

func NewDealerTierService(repo repository.DealerTierRepository, logger *zap.Logger) *DealerTierService {
	return &DealerTierService{repo: repo, logger: logger}
}

func (s *DealerTierService) List(ctx context.Context) ([]models.DealerTier, *ServiceError) {
	tiers, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list dealer tiers", zap.Error(err))
		return nil, persistenceFailure("Failed to load dealer tiers", err)
	}
	return tiers, nil
}

// Update sets the discount of a tier, creating the tier if needed.
func (s *DealerTierService) Update(ctx context.Context, tier int, discountPercent decimal.Decimal) (*models.DealerTier, *ServiceError) {
	if tier < models.MinDealerTier || tier > models.MaxDealerTier {
		return nil, badRequest(fmt.Sprintf("Tier must be between %d and %d", models.MinDealerTier, models.MaxDealerTier))
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThan(hundredPercent) {
		return nil, badRequest("Discount percent must be between 0 and 100")
	}

	dt := &models.DealerTier{Tier: tier, DiscountPercent: discountPercent.Round(2)}
	if err := s.repo.Upsert(ctx, dt); err != nil {
		s.logger.Error("Failed to update dealer tier", zap.Int("tier", tier), zap.Error(err))
		return nil, persistenceFailure("Failed to update dealer tier", err)
	}
	s.logger.Info("Dealer tier updated", zap.Int("tier", tier), zap.String("discount_percent", dt.DiscountPercent.String()))
	return dt, nil
}
