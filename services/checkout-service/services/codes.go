package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	orderNumberPrefix = "BMR"
	orderNumberDigits = 8

	// Ambiguous glyphs (0/O, 1/I/L) are left out so codes survive being
	// read over the phone.
	giftCardAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

// NewOrderNumber returns "BMR" followed by eight random digits.
func NewOrderNumber() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return fmt.Sprintf("%s%0*d", orderNumberPrefix, orderNumberDigits, n.Int64()), nil
}

// NewGiftCardCode returns a code of the form GC-XXXX-XXXX-XXXX.
func NewGiftCardCode() (string, error) {
	var b strings.Builder
	b.WriteString("GC")
	limit := big.NewInt(int64(len(giftCardAlphabet)))
	for group := 0; group < 3; group++ {
		b.WriteByte('-')
		for i := 0; i < 4; i++ {
			n, err := rand.Int(rand.Reader, limit)
			if err != nil {
				return "", fmt.Errorf("generate gift card code: %w", err)
			}
			b.WriteByte(giftCardAlphabet[n.Int64()])
		}
	}
	return b.String(), nil
}
