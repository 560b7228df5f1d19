package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	referencePrefix     = "CANDICE"
	affiliateCodePrefix = "CANDICE"
)

// NewReference returns "CANDICE-<unix seconds>-<8 upper hex>". The suffix comes from a
// random UUID, so references minted in the same second still differ.
func NewReference(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("%s-%d-%s", referencePrefix, now.Unix(), strings.ToUpper(hex.EncodeToString(id[:4])))
}

// NewAffiliateCode returns "CANDICE" followed by six upper-case hex characters.
func NewAffiliateCode() (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate affiliate code: %w", err)
	}
	return affiliateCodePrefix + strings.ToUpper(hex.EncodeToString(buf)), nil
}
