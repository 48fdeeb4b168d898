package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Reservation codes follow RES-YYYYMMDD-XXXXX, e.g. RES-20250108-A3K9M.
const (
	codePrefix       = "RES"
	codeRandomLength = 5
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewCode generates a reservation code for the given day. Uniqueness is
// enforced by the database; collisions are handled by regenerating.
func NewCode(now time.Time) string {
	buf := make([]byte, codeRandomLength)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return fmt.Sprintf("%s-%s-%s", codePrefix, now.UTC().Format("20060102"), string(buf))
}

// ValidCode reports whether code matches the RES-YYYYMMDD-XXXXX format.
func ValidCode(code string) bool {
	parts := strings.Split(code, "-")
	if len(parts) != 3 {
		return false
	}
	if parts[0] != codePrefix {
		return false
	}
	if len(parts[1]) != 8 {
		return false
	}
	for _, r := range parts[1] {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	if len(parts[2]) != codeRandomLength {
		return false
	}
	for _, r := range parts[2] {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
