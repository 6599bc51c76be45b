package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/pricing"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/repository"
)

// AppliedCoupon is a coupon that passed validation against a cart.
type AppliedCoupon struct {
	Coupon       *models.Coupon
	Discount     decimal.Decimal
	FreeShipping bool
}

type CouponService struct {
	repo   repository.CouponRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewCouponService(repo repository.CouponRepository, logger *zap.Logger) *CouponService {
	return &CouponService{repo: repo, logger: logger, now: time.Now}
}

// Evaluate checks code against a cart subtotal. An empty code yields no
// coupon and no error. Usage is not recorded here; that happens once the
// order is written.
func (s *CouponService) Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (*AppliedCoupon, *ServiceError) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, badRequest("Coupon not found or inactive")
		}
		s.logger.Error("Failed to look up coupon", zap.String("code", code), zap.Error(err))
		return nil, persistenceFailure("Failed to validate coupon", err)
	}

	if s.now().After(coupon.ExpiresAt) {
		return nil, badRequest("Coupon has expired")
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return nil, badRequest("Coupon usage limit reached")
	}
	if subtotal.LessThan(coupon.MinOrderValue) {
		return nil, badRequest(fmt.Sprintf("Minimum order value of %s required", coupon.MinOrderValue.StringFixed(2)))
	}

	switch coupon.Type {
	case pricing.CouponPercentage, pricing.CouponFlat, pricing.CouponFreeShipping:
	default:
		s.logger.Error("Coupon has unknown type", zap.String("code", coupon.Code), zap.String("type", string(coupon.Type)))
		return nil, &ServiceError{StatusCode: 500, Message: "Unknown coupon type", Kind: KindConfiguration}
	}

	discount, free := pricing.CouponDiscount(coupon.Type, coupon.Value, subtotal)
	return &AppliedCoupon{Coupon: coupon, Discount: discount, FreeShipping: free}, nil
}
