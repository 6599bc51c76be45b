package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
)

// ErrPendingOrderNotFound covers unknown, expired, already consumed and
// currently claimed tokens alike.
var ErrPendingOrderNotFound = errors.New("pending order not found")

// ErrInvalidPayload means a stored entry exists but its payload cannot be
// decoded. Such an entry can never become an order.
var ErrInvalidPayload = errors.New("pending order payload is invalid")

// PendingOrderRepository stores checkout payloads keyed by the payment
// gateway's order token between checkout start and payment capture.
type PendingOrderRepository interface {
	// Put stores payload under token, replacing any previous entry and
	// clearing any claim on it.
	Put(ctx context.Context, token string, payload *models.CheckoutPayload) error
	Get(ctx context.Context, token string) (*models.CheckoutPayload, error)
	// Claim atomically takes exclusive ownership of token for lease and
	// returns its payload. Concurrent callers get ErrPendingOrderNotFound
	// until the claim is released or the lease runs out.
	Claim(ctx context.Context, token string, lease time.Duration) (*models.CheckoutPayload, error)
	// Release drops a claim so the entry can be claimed again.
	Release(ctx context.Context, token string) error
	// Delete removes the entry. Deleting a missing token is not an error.
	Delete(ctx context.Context, token string) error
	// PurgeExpired removes entries past their expiry and returns how many
	// were removed (backends with native expiry may return 0).
	PurgeExpired(ctx context.Context) (int64, error)
}

type gormPendingOrderRepository struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewPendingOrderRepository returns the Postgres-backed store. Entries
// expire ttl after they are written.
func NewPendingOrderRepository(db *gorm.DB, ttl time.Duration) PendingOrderRepository {
	return &gormPendingOrderRepository{db: db, ttl: ttl, now: time.Now}
}

func (r *gormPendingOrderRepository) Put(ctx context.Context, token string, payload *models.CheckoutPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal pending order: %w", err)
	}
	now := r.now()
	row := models.PendingOrder{
		Token:     token,
		Payload:   data,
		ExpiresAt: now.Add(r.ttl),
		CreatedAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "claimed_until", "expires_at", "created_at"}),
	}).Create(&row).Error
}

func (r *gormPendingOrderRepository) Get(ctx context.Context, token string) (*models.CheckoutPayload, error) {
	var row models.PendingOrder
	err := r.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, r.now()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPendingOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodePayload(row.Payload)
}

func (r *gormPendingOrderRepository) Claim(ctx context.Context, token string, lease time.Duration) (*models.CheckoutPayload, error) {
	now := r.now()
	var claimed []models.PendingOrder
	res := r.db.WithContext(ctx).Model(&claimed).
		Clauses(clause.Returning{}).
		Where("token = ? AND expires_at > ? AND (claimed_until IS NULL OR claimed_until < ?)", token, now, now).
		Update("claimed_until", now.Add(lease))
	if res.Error != nil {
		return nil, res.Error
	}
	if len(claimed) == 0 {
		return nil, ErrPendingOrderNotFound
	}
	return decodePayload(claimed[0].Payload)
}

func (r *gormPendingOrderRepository) Release(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Model(&models.PendingOrder{}).
		Where("token = ?", token).
		Update("claimed_until", nil).Error
}

func (r *gormPendingOrderRepository) Delete(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.PendingOrder{}).Error
}

func (r *gormPendingOrderRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", r.now()).Delete(&models.PendingOrder{})
	return res.RowsAffected, res.Error
}

func decodePayload(data []byte) (*models.CheckoutPayload, error) {
	var p models.CheckoutPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &p, nil
}
