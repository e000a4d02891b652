package auth

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net/mail"
	"strings"
)

var (
	ErrEmailRequired = errors.New("email is required")
	ErrEmailInvalid  = errors.New("email format is invalid")
)

// GenerateNumericCode returns length decimal digits drawn from crypto/rand.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// NormalizeEmail trims and lowercases email and requires a bare address.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", ErrEmailRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrEmailInvalid
	}
	return email, nil
}

// MaskEmail hides most of the local part for logs.
func MaskEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	switch len(local) {
	case 0:
		return "***@" + domain
	case 1, 2:
		return local[:1] + "***@" + domain
	default:
		return local[:1] + "***" + local[len(local)-1:] + "@" + domain
	}
}
