package ports

import (
	"context"

	"github.com/melkam/therapy-api/internal/core/domain"
)

// RegisterInput carries the fields needed to create an account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      domain.Role
}

// AuthResult is returned by operations that establish a session.
type AuthResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
}

// TokenPair is returned by a successful refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RefreshCoordinator sits in front of AuthService.RefreshToken and collapses
// concurrent attempts for the same user into a single rotation.
type RefreshCoordinator interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
}

// AuthService owns every state transition on a user's credential and token
// fields.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	// RefreshToken rotates the session: the presented token must both verify
	// and equal the stored value for its user.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, userID string) error
	VerifyEmail(ctx context.Context, email, otp string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, otp, newPassword string) error
	// CleanExpiredOTP scrubs stale unconsumed verification codes. Errors are
	// reported to the caller for logging but the sweep is always safe to rerun.
	CleanExpiredOTP(ctx context.Context) error
}
