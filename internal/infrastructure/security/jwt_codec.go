package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/melkam/therapy-api/internal/core/domain"
	"github.com/melkam/therapy-api/internal/core/ports"
)

// JWTCodec signs and verifies access and refresh tokens with distinct secrets
// and lifetimes. Access tokens are short-lived and carry id/email/role;
// refresh tokens are long-lived and carry the user id only.
type JWTCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewJWTCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTCodec {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &JWTCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (c *JWTCodec) GenerateAccessToken(claims ports.TokenClaims) (string, error) {
	return c.sign(jwt.MapClaims{
		"id":    claims.UserID,
		"email": claims.Email,
		"role":  string(claims.Role),
		"exp":   time.Now().Add(c.accessTTL).Unix(),
	}, c.accessSecret)
}

func (c *JWTCodec) GenerateRefreshToken(claims ports.TokenClaims) (string, error) {
	return c.sign(jwt.MapClaims{
		"id":  claims.UserID,
		"exp": time.Now().Add(c.refreshTTL).Unix(),
	}, c.refreshSecret)
}

func (c *JWTCodec) VerifyAccessToken(token string) (*ports.TokenClaims, error) {
	claims, err := c.verify(token, c.accessSecret)
	if err != nil {
		return nil, domain.ErrInvalidAccessToken
	}
	return claims, nil
}

func (c *JWTCodec) VerifyRefreshToken(token string) (*ports.TokenClaims, error) {
	claims, err := c.verify(token, c.refreshSecret)
	if err != nil {
		return nil, domain.ErrInvalidRefreshToken
	}
	return claims, nil
}

func (c *JWTCodec) sign(claims jwt.MapClaims, secret []byte) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

func (c *JWTCodec) verify(token string, secret []byte) (*ports.TokenClaims, error) {
	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}

	out := &ports.TokenClaims{}
	if id, ok := claims["id"].(string); ok {
		out.UserID = id
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if role, ok := claims["role"].(string); ok {
		out.Role = domain.Role(role)
	}
	if out.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return out, nil
}
