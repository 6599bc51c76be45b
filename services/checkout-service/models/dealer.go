package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MinDealerTier = 1
	MaxDealerTier = 8
)

// DealerTier maps a tier number to its discount off list price.
type DealerTier struct {
	Tier            int             `gorm:"primaryKey;autoIncrement:false" json:"tier"`
	DiscountPercent decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"discountPercent"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Customer is the slice of the customer account this service needs: who
// they are and which dealer tier they buy at.
type Customer struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	DealerTier *int      `json:"dealerTier,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}
