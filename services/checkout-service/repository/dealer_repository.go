package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
)

type DealerTierRepository interface {
	FindByTier(ctx context.Context, tier int) (*models.DealerTier, error)
	List(ctx context.Context) ([]models.DealerTier, error)
	Upsert(ctx context.Context, tier *models.DealerTier) error
}

type CustomerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

type gormDealerTierRepository struct {
	db *gorm.DB
}

func NewDealerTierRepository(db *gorm.DB) DealerTierRepository {
	return &gormDealerTierRepository{db: db}
}

func (r *gormDealerTierRepository) FindByTier(ctx context.Context, tier int) (*models.DealerTier, error) {
	var t models.DealerTier
	if err := r.db.WithContext(ctx).Where("tier = ?", tier).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *gormDealerTierRepository) List(ctx context.Context) ([]models.DealerTier, error) {
	var tiers []models.DealerTier
	err := r.db.WithContext(ctx).Order("tier ASC").Find(&tiers).Error
	return tiers, err
}

func (r *gormDealerTierRepository) Upsert(ctx context.Context, tier *models.DealerTier) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tier"}},
		DoUpdates: clause.AssignmentColumns([]string{"discount_percent", "updated_at"}),
	}).Create(tier).Error
}

type gormCustomerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &gormCustomerRepository{db: db}
}

func (r *gormCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}
