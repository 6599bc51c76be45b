package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/pricing"
)

type Coupon struct {
	ID            uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code          string             `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Type          pricing.CouponKind `gorm:"type:varchar(20);not null" json:"type"`
	Value         decimal.Decimal    `gorm:"type:numeric(12,2);not null" json:"value"`
	MinOrderValue decimal.Decimal    `gorm:"type:numeric(12,2);not null;default:0" json:"minOrderValue"`
	UsageLimit    int                `gorm:"not null;default:0" json:"usageLimit"` // 0 = unlimited
	UsedCount     int                `gorm:"not null;default:0" json:"usedCount"`
	ExpiresAt     time.Time          `gorm:"not null" json:"expiresAt"`
	Active        bool               `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt     gorm.DeletedAt     `gorm:"index" json:"-"`
}
