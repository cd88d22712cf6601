package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/melkam/therapy-api/internal/api/metrics"
	"github.com/melkam/therapy-api/internal/core/domain"
	"github.com/melkam/therapy-api/internal/core/ports"
)

const defaultRefreshTimeout = 10 * time.Second

// Refresher is the single operation the gate guards.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*ports.TokenPair, error)
}

// RefreshGate collapses concurrent refresh attempts for the same user into a
// single rotation. A client holding one expired access token can have many
// requests discover the 401 at once; without the gate each would present the
// same refresh token, exactly one would win the rotation, and the rest would
// be rejected for holding a now-stale value.
//
// The first caller for a key becomes the leader and performs the rotation.
// Later callers for the same key are parked in arrival order and receive the
// leader's outcome, success or failure, when it resolves. Waiters are
// released in FIFO order and never before the in-flight rotation resolves.
//
// The rotation itself is bounded by a timeout. If the credential store hangs
// past it, the leader and all waiters are failed and the gate resets, so an
// outage cannot wedge the key forever.
type RefreshGate struct {
	auth    Refresher
	codec   ports.TokenCodec
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	flights map[string]*refreshFlight
}

type refreshFlight struct {
	waiters []chan refreshOutcome
}

type refreshOutcome struct {
	pair *ports.TokenPair
	err  error
}

func NewRefreshGate(auth Refresher, codec ports.TokenCodec, timeout time.Duration, log zerolog.Logger) *RefreshGate {
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}
	return &RefreshGate{
		auth:    auth,
		codec:   codec,
		timeout: timeout,
		log:     log,
		flights: make(map[string]*refreshFlight),
	}
}

// Refresh rotates the session for the presented refresh token, coalescing
// concurrent calls per user. Tokens that do not verify never enter the gate:
// they are rejected up front, which also stops a failed rotation from being
// retried through itself.
func (g *RefreshGate) Refresh(ctx context.Context, refreshToken string) (*ports.TokenPair, error) {
	claims, err := g.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, domain.ErrInvalidRefreshToken
	}
	key := claims.UserID

	g.mu.Lock()
	if fl, ok := g.flights[key]; ok {
		// A rotation is in flight for this user: park behind it. The buffered
		// channel lets the leader fan out without blocking, so a caller that
		// gave up just discards its outcome.
		ch := make(chan refreshOutcome, 1)
		fl.waiters = append(fl.waiters, ch)
		g.mu.Unlock()

		metrics.RefreshCoalescedTotal.Inc()
		select {
		case out := <-ch:
			return out.pair, out.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fl := &refreshFlight{}
	g.flights[key] = fl
	g.mu.Unlock()

	out := g.perform(ctx, refreshToken, key)

	g.mu.Lock()
	delete(g.flights, key)
	waiters := fl.waiters
	fl.waiters = nil
	g.mu.Unlock()

	fanOut(waiters, out)
	return out.pair, out.err
}

// fanOut delivers the leader's outcome to parked waiters in arrival order.
func fanOut(waiters []chan refreshOutcome, out refreshOutcome) {
	for _, ch := range waiters {
		ch <- out
	}
}

// perform executes the rotation once, bounded by the gate timeout. The call
// is detached from the leader's cancellation: waiters parked behind it must
// not lose their rotation because the leader hung up.
func (g *RefreshGate) perform(ctx context.Context, refreshToken, key string) refreshOutcome {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	done := make(chan refreshOutcome, 1)
	go func() {
		pair, err := g.auth.RefreshToken(callCtx, refreshToken)
		done <- refreshOutcome{pair: pair, err: err}
	}()

	select {
	case out := <-done:
		return out
	case <-callCtx.Done():
		// The rotation may have resolved in the same instant the deadline
		// fired. Its outcome wins: the store already reflects it, and failing
		// here would strand every caller on a rotated-away token.
		select {
		case out := <-done:
			return out
		default:
		}
		g.log.Error().Str("user_id", key).Dur("timeout", g.timeout).
			Msg("refresh did not resolve in time, draining waiters")
		return refreshOutcome{err: fmt.Errorf("%w: %w", domain.ErrRefreshTimeout, callCtx.Err())}
	}
}
