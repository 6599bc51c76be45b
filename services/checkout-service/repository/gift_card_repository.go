package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
)

type GiftCardRepository interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	// Create inserts a card; a unique violation on the code or on the
	// (item, unit) pair is reported as ErrDuplicate.
	Create(ctx context.Context, card *models.GiftCard) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.GiftCard, error)
	UnitIssued(ctx context.Context, orderItemID uuid.UUID, unitIndex int) (bool, error)
	RecordFailure(ctx context.Context, f *models.GiftCardIssuanceFailure) error
	UnresolvedFailures(ctx context.Context, orderID uuid.UUID) ([]models.GiftCardIssuanceFailure, error)
	ResolveFailure(ctx context.Context, id uuid.UUID) error
}

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

type gormGiftCardRepository struct {
	db *gorm.DB
}

func NewGiftCardRepository(db *gorm.DB) GiftCardRepository {
	return &gormGiftCardRepository{db: db}
}

func (r *gormGiftCardRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GiftCard{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *gormGiftCardRepository) Create(ctx context.Context, card *models.GiftCard) error {
	err := r.db.WithContext(ctx).Create(card).Error
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *gormGiftCardRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.GiftCard, error) {
	var cards []models.GiftCard
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&cards).Error
	return cards, err
}

func (r *gormGiftCardRepository) UnitIssued(ctx context.Context, orderItemID uuid.UUID, unitIndex int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GiftCard{}).
		Where("order_item_id = ? AND unit_index = ?", orderItemID, unitIndex).
		Count(&count).Error
	return count > 0, err
}

func (r *gormGiftCardRepository) RecordFailure(ctx context.Context, f *models.GiftCardIssuanceFailure) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *gormGiftCardRepository) UnresolvedFailures(ctx context.Context, orderID uuid.UUID) ([]models.GiftCardIssuanceFailure, error) {
	var failures []models.GiftCardIssuanceFailure
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND resolved_at IS NULL", orderID).
		Order("created_at ASC").
		Find(&failures).Error
	return failures, err
}

func (r *gormGiftCardRepository) ResolveFailure(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.GiftCardIssuanceFailure{}).
		Where("id = ?", id).
		Update("resolved_at", time.Now()).Error
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "23505")
}
