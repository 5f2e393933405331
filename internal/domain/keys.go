package domain

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	keyAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyLength    = 16
	keyGroupSize = 4
	keySeparator = '-'
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// GenerateKey draws a XXXX-XXXX-XXXX-XXXX license key value.
func GenerateKey() (string, error) {
	var b strings.Builder
	b.Grow(keyLength + keyLength/keyGroupSize - 1)
	base := big.NewInt(int64(len(keyAlphabet)))
	for i := 0; i < keyLength; i++ {
		if i > 0 && i%keyGroupSize == 0 {
			b.WriteByte(keySeparator)
		}
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		b.WriteByte(keyAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func ValidKeyFormat(key string) bool {
	return keyPattern.MatchString(key)
}
