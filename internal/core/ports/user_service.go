package ports

import (
	"context"

	"github.com/melkam/therapy-api/internal/core/domain"
)

// UserService exposes read-side user operations.
type UserService interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
}

// AttemptLimiter throttles OTP guesses per account.
type AttemptLimiter interface {
	// Allow reports whether another attempt is permitted for key.
	Allow(ctx context.Context, key string) (bool, error)
	// RecordFailure counts a failed attempt against key.
	RecordFailure(ctx context.Context, key string) error
	// Reset clears the counter for key after a successful attempt.
	Reset(ctx context.Context, key string) error
}
