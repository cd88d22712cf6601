package ports

import (
	"context"
	"time"

	"github.com/melkam/therapy-api/internal/core/domain"
)

// UserRepository defines persistence for user credential and session state.
// Update writes the full credential/token field set of the aggregate in one
// single-record operation.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByPasswordResetToken(ctx context.Context, token string) (*domain.User, error)
	FindByRefreshToken(ctx context.Context, token string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	// ClearExpiredVerificationTokens bulk-clears verification token+expiry for
	// unverified users whose expiry is before now. Returns the number of users
	// touched.
	ClearExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context) ([]*domain.User, error)
}
