package ports

import "github.com/melkam/therapy-api/internal/core/domain"

// TokenClaims is the payload embedded in signed tokens. Access tokens carry
// all three fields; refresh tokens carry the user id only.
type TokenClaims struct {
	UserID string
	Email  string
	Role   domain.Role
}

// TokenCodec signs and verifies self-contained expiring tokens. Verification
// needs no server-side state: signature and expiry are checked from the token
// itself. Verify failures are always domain.ErrInvalidAccessToken or
// domain.ErrInvalidRefreshToken, never a raw parser error.
type TokenCodec interface {
	GenerateAccessToken(claims TokenClaims) (string, error)
	GenerateRefreshToken(claims TokenClaims) (string, error)
	VerifyAccessToken(token string) (*TokenClaims, error)
	VerifyRefreshToken(token string) (*TokenClaims, error)
}

// OTPGenerator produces short-lived one-time codes and opaque identifiers.
type OTPGenerator interface {
	// GenerateOTP returns length uniformly random digits. Leading zeros are
	// allowed.
	GenerateOTP(length int) string
	// GenerateToken returns an opaque globally unique string.
	GenerateToken() string
}
