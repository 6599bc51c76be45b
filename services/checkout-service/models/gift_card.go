package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GiftCard is one redeemable code. A gift-certificate line of quantity N
// yields N cards, distinguished by UnitIndex.
type GiftCard struct {
	ID               uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code             string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	InitialAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"initialAmount"`
	RemainingBalance decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"remainingBalance"`
	OrderID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"orderId"`
	OrderItemID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_gift_card_unit" json:"orderItemId"`
	UnitIndex        int             `gorm:"not null;uniqueIndex:idx_gift_card_unit" json:"-"`
	ProductName      string          `gorm:"type:varchar(255)" json:"productName"`
	PartNumber       string          `gorm:"type:varchar(64)" json:"partNumber"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"createdAt"`
}

// GiftCardIssuanceFailure records a unit that could not be issued so it can
// be re-driven later.
type GiftCardIssuanceFailure struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"orderId"`
	OrderItemID uuid.UUID  `gorm:"type:uuid;not null" json:"orderItemId"`
	UnitIndex   int        `gorm:"not null" json:"unitIndex"`
	Reason      string     `gorm:"type:text" json:"reason"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

var giftCertificatePart = regexp.MustCompile(`(?i)^(GC|GIFT)[-_]?\d+$`)

// IsGiftCertificate reports whether a line item sells a gift certificate:
// either the part number follows the gift-certificate numbering (GC050,
// GC-100, GIFT25) or the product name mentions "gift certificate".
func IsGiftCertificate(partNumber, name string) bool {
	if giftCertificatePart.MatchString(strings.TrimSpace(partNumber)) {
		return true
	}
	return strings.Contains(strings.ToLower(name), "gift certificate")
}
