package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
)

type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	// IncrementUsedCount bumps used_count unless the usage limit is
	// already reached; it reports whether the increment happened.
	IncrementUsedCount(ctx context.Context, code string) (bool, error)
}

type gormCouponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &gormCouponRepository{db: db}
}

func (r *gormCouponRepository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := r.db.WithContext(ctx).
		Where("code = ? AND active = ?", strings.ToUpper(code), true).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormCouponRepository) IncrementUsedCount(ctx context.Context, code string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("code = ? AND (usage_limit = 0 OR used_count < usage_limit)", strings.ToUpper(code)).
		UpdateColumn("used_count", gorm.Expr("used_count + ?", 1))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
