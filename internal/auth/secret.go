package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashClientSecret hashes the secret that token clients must present.
func HashClientSecret(plain string) (string, error) {
	if len(plain) == 0 {
		return "", errors.New("client secret is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyClientSecret compares a presented secret against the configured bcrypt hash.
// An empty hash disables the check.
func VerifyClientSecret(hash, plain string) error {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return ErrBadClientSecret
	}
	return nil
}
