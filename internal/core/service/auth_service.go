package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/melkam/therapy-api/internal/api/metrics"
	"github.com/melkam/therapy-api/internal/core/domain"
	"github.com/melkam/therapy-api/internal/core/ports"
)

const (
	otpLength = 6
	otpTTL    = 10 * time.Minute
)

// AuthService is the session lifecycle engine. It owns every transition on a
// user's credential and token fields; persistence, signing, and delivery are
// collaborators behind ports.
//
// Transitions on the same user are not synchronized here. The refresh path is
// serialized by RefreshGate; the remaining transitions are rare,
// user-initiated, and tolerate last-writer-wins.
type AuthService struct {
	repo    ports.UserRepository
	codec   ports.TokenCodec
	otp     ports.OTPGenerator
	mail    ports.MailEnqueuer
	limiter ports.AttemptLimiter
	log     zerolog.Logger
}

func NewAuthService(
	repo ports.UserRepository,
	codec ports.TokenCodec,
	otp ports.OTPGenerator,
	mail ports.MailEnqueuer,
	limiter ports.AttemptLimiter,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{repo: repo, codec: codec, otp: otp, mail: mail, limiter: limiter, log: log}
}

// Register creates an unverified account, arms a verification code, opens a
// session, and queues the verification email. The email is queued only after
// the code is persisted, so a lost notification never leaves the store ahead
// of itself.
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error) {
	if !domain.ValidRole(in.Role) {
		in.Role = domain.RolePatient
	}

	if _, err := s.repo.FindByEmail(ctx, in.Email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	code := s.otp.GenerateOTP(otpLength)
	user.SetEmailVerificationToken(code, now.Add(otpTTL), now)

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	metrics.OTPIssuedTotal.WithLabelValues("verification").Inc()

	s.mail.Enqueue(ports.MailJob{
		Kind: ports.MailVerification,
		To:   created.Email,
		Name: created.FirstName,
		OTP:  code,
	})

	result, err := s.openSession(ctx, created)
	if err != nil {
		return nil, err
	}

	metrics.RegistrationsTotal.Inc()
	s.log.Info().Str("user_id", created.ID).Msg("user registered")
	return result, nil
}

// Login authenticates by email and password. Unknown email and wrong password
// return the same error so responses do not reveal which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.AuthResult, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.IsEmailVerified {
		return nil, domain.ErrEmailNotVerified
	}

	result, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	metrics.LoginsTotal.Inc()
	s.log.Info().Str("user_id", user.ID).Msg("user logged in")
	return result, nil
}

// RefreshToken rotates the session. The presented token must verify against
// the refresh secret AND equal the value currently stored for its user; the
// equality check is what rejects replay of a token that has already been
// rotated away.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*ports.TokenPair, error) {
	claims, err := s.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("rejected").Inc()
		return nil, domain.ErrInvalidRefreshToken
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("rejected").Inc()
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidRefreshToken
		}
		return nil, err
	}

	if !user.HasRefreshToken(refreshToken) {
		metrics.RefreshTotal.WithLabelValues("rejected").Inc()
		s.log.Warn().Str("user_id", user.ID).Msg("stale refresh token presented")
		return nil, domain.ErrInvalidRefreshToken
	}

	result, err := s.openSession(ctx, user)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.RefreshTotal.WithLabelValues("rotated").Inc()
	return &ports.TokenPair{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken}, nil
}

// Logout clears the stored refresh token. Idempotent: an unknown user or an
// already-cleared token is a no-op.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return err
	}

	user.ClearRefreshToken(time.Now().UTC())
	if err := s.repo.Update(ctx, user); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Msg("user logged out")
	return nil
}

// VerifyEmail consumes the verification code. The code is cleared on success,
// so a second call with the same code fails with domain.ErrCodeInvalid.
func (s *AuthService) VerifyEmail(ctx context.Context, email, otp string) error {
	if err := s.checkAttempts(ctx, email); err != nil {
		return err
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.recordFailure(ctx, email)
			return domain.ErrCodeInvalid
		}
		return err
	}

	if user.EmailVerificationToken == nil || *user.EmailVerificationToken != otp {
		s.recordFailure(ctx, email)
		return domain.ErrCodeInvalid
	}

	now := time.Now().UTC()
	if !user.EmailVerificationTokenValid(now) {
		return domain.ErrCodeExpired
	}

	user.VerifyEmail(now)
	if err := s.repo.Update(ctx, user); err != nil {
		return err
	}
	s.resetAttempts(ctx, email)

	// Verification is durable at this point; the welcome email is best-effort.
	s.mail.Enqueue(ports.MailJob{Kind: ports.MailWelcome, To: user.Email, Name: user.FirstName})

	s.log.Info().Str("user_id", user.ID).Msg("email verified")
	return nil
}

// ForgotPassword arms a reset code and queues the reset email. The handler
// masks ErrUserNotFound so responses do not confirm account existence.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	code := s.otp.GenerateOTP(otpLength)
	user.SetPasswordResetToken(code, now.Add(otpTTL), now)
	if err := s.repo.Update(ctx, user); err != nil {
		return err
	}
	metrics.OTPIssuedTotal.WithLabelValues("password_reset").Inc()

	s.mail.Enqueue(ports.MailJob{
		Kind: ports.MailPasswordReset,
		To:   user.Email,
		Name: user.FirstName,
		OTP:  code,
	})

	s.log.Info().Str("user_id", user.ID).Msg("password reset code issued")
	return nil
}

// ResetPassword consumes the reset code and stores the new password hash.
func (s *AuthService) ResetPassword(ctx context.Context, otp, newPassword string) error {
	user, err := s.repo.FindByPasswordResetToken(ctx, otp)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrCodeInvalid
		}
		return err
	}

	now := time.Now().UTC()
	if !user.PasswordResetTokenValid(now) {
		return domain.ErrCodeExpired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user.UpdatePassword(string(hash), now)
	user.ClearPasswordResetToken(now)
	if err := s.repo.Update(ctx, user); err != nil {
		return err
	}

	s.log.Info().Str("user_id", user.ID).Msg("password reset")
	return nil
}

// CleanExpiredOTP bulk-clears expired, unconsumed verification codes. The
// predicate only narrows over time, so overlapping runs are harmless.
func (s *AuthService) CleanExpiredOTP(ctx context.Context) error {
	n, err := s.repo.ClearExpiredVerificationTokens(ctx, time.Now().UTC())
	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.SweepRunsTotal.WithLabelValues("ok").Inc()
	metrics.SweepClearedTotal.Add(float64(n))
	if n > 0 {
		s.log.Info().Int64("cleared", n).Msg("expired verification codes cleared")
	}
	return nil
}

// openSession issues a fresh token pair and persists the rotated refresh token.
func (s *AuthService) openSession(ctx context.Context, user *domain.User) (*ports.AuthResult, error) {
	access, err := s.codec.GenerateAccessToken(ports.TokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return nil, err
	}

	refresh, err := s.codec.GenerateRefreshToken(ports.TokenClaims{UserID: user.ID})
	if err != nil {
		return nil, err
	}

	user.SetRefreshToken(refresh, time.Now().UTC())
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	return &ports.AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// checkAttempts consults the limiter when one is configured. Limiter outages
// fail open: a throttling layer must not take verification down with it.
func (s *AuthService) checkAttempts(ctx context.Context, key string) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Msg("attempt limiter unavailable, allowing")
		return nil
	}
	if !ok {
		return domain.ErrTooManyAttempts
	}
	return nil
}

func (s *AuthService) recordFailure(ctx context.Context, key string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.RecordFailure(ctx, key); err != nil {
		s.log.Warn().Err(err).Msg("failed to record verification attempt")
	}
}

func (s *AuthService) resetAttempts(ctx context.Context, key string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Reset(ctx, key); err != nil {
		s.log.Warn().Err(err).Msg("failed to reset verification attempts")
	}
}
