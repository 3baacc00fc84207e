package auth

import "errors"

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRevoked is returned for tokens whose session was ended explicitly.
	ErrRevoked = errors.New("auth: session revoked")
	// ErrBadClientSecret rejects token issuance when a client secret is configured.
	ErrBadClientSecret = errors.New("auth: client secret mismatch")
)
