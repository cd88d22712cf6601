package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/melkam/therapy-api/internal/core/domain"
	"github.com/melkam/therapy-api/internal/core/ports"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────

type stubUserRepo struct {
	users map[string]*domain.User // keyed by id
	seq   int
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == user.Email {
			return nil, domain.ErrUserExists
		}
	}
	r.seq++
	created := cloneUser(user)
	created.ID = "u" + strconv.Itoa(r.seq)
	r.users[created.ID] = cloneUser(created)
	return cloneUser(created), nil
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := r.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByPasswordResetToken(_ context.Context, token string) (*domain.User, error) {
	for _, u := range r.users {
		if u.PasswordResetToken != nil && *u.PasswordResetToken == token {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByRefreshToken(_ context.Context, token string) (*domain.User, error) {
	for _, u := range r.users {
		if u.HasRefreshToken(token) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) Update(_ context.Context, user *domain.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *stubUserRepo) ClearExpiredVerificationTokens(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, u := range r.users {
		if !u.IsEmailVerified && u.EmailVerificationExpiry != nil && u.EmailVerificationExpiry.Before(now) {
			u.EmailVerificationToken = nil
			u.EmailVerificationExpiry = nil
			u.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *stubUserRepo) List(_ context.Context) ([]*domain.User, error) {
	out := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, cloneUser(u))
	}
	return out, nil
}

// stubCodec issues sequential fake tokens and remembers which user each
// refresh token belongs to.
type stubCodec struct {
	seq     int
	refresh map[string]string // token -> user id
}

func newStubCodec() *stubCodec {
	return &stubCodec{refresh: make(map[string]string)}
}

func (c *stubCodec) GenerateAccessToken(claims ports.TokenClaims) (string, error) {
	c.seq++
	return fmt.Sprintf("access-%s-%d", claims.UserID, c.seq), nil
}

func (c *stubCodec) GenerateRefreshToken(claims ports.TokenClaims) (string, error) {
	c.seq++
	token := fmt.Sprintf("refresh-%s-%d", claims.UserID, c.seq)
	c.refresh[token] = claims.UserID
	return token, nil
}

func (c *stubCodec) VerifyAccessToken(token string) (*ports.TokenClaims, error) {
	return nil, domain.ErrInvalidAccessToken
}

func (c *stubCodec) VerifyRefreshToken(token string) (*ports.TokenClaims, error) {
	if id, ok := c.refresh[token]; ok {
		return &ports.TokenClaims{UserID: id}, nil
	}
	return nil, domain.ErrInvalidRefreshToken
}

type stubOTP struct {
	next string
}

func (g *stubOTP) GenerateOTP(length int) string {
	if g.next != "" {
		return g.next
	}
	return "123456"
}

func (g *stubOTP) GenerateToken() string { return "opaque-token" }

type stubMail struct {
	jobs []ports.MailJob
}

func (m *stubMail) Enqueue(job ports.MailJob) { m.jobs = append(m.jobs, job) }

type stubLimiter struct {
	allow    bool
	failures int
	resets   int
}

func (l *stubLimiter) Allow(_ context.Context, _ string) (bool, error) { return l.allow, nil }
func (l *stubLimiter) RecordFailure(_ context.Context, _ string) error {
	l.failures++
	return nil
}
func (l *stubLimiter) Reset(_ context.Context, _ string) error {
	l.resets++
	return nil
}

type fixture struct {
	repo  *stubUserRepo
	codec *stubCodec
	mail  *stubMail
	svc   *AuthService
}

func newFixture() *fixture {
	repo := newStubUserRepo()
	codec := newStubCodec()
	mail := &stubMail{}
	svc := NewAuthService(repo, codec, &stubOTP{}, mail, nil, zerolog.Nop())
	return &fixture{repo: repo, codec: codec, mail: mail, svc: svc}
}

func register(t *testing.T, f *fixture, email string) *ports.AuthResult {
	t.Helper()
	result, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email:     email,
		Password:  "Passw0rd!",
		FirstName: "A",
		LastName:  "B",
		Role:      domain.RolePatient,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return result
}

func verify(t *testing.T, f *fixture, email string) {
	t.Helper()
	if err := f.svc.VerifyEmail(context.Background(), email, "123456"); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}

// ── Register ──────────────────────────────────────────────────────────────────

func TestAuthService_Register(t *testing.T) {
	f := newFixture()
	result := register(t, f, "a@x.com")

	user := f.repo.users[result.User.ID]
	if user.IsEmailVerified {
		t.Fatalf("new user must be unverified")
	}
	if user.EmailVerificationToken == nil || user.EmailVerificationExpiry == nil {
		t.Fatalf("verification code and expiry must both be set")
	}
	if *user.EmailVerificationToken != "123456" {
		t.Fatalf("unexpected code: %s", *user.EmailVerificationToken)
	}
	if user.RefreshToken == nil || *user.RefreshToken != result.RefreshToken {
		t.Fatalf("refresh token not persisted")
	}
	if result.AccessToken == "" {
		t.Fatalf("expected access token")
	}
	if user.PasswordHash == "Passw0rd!" {
		t.Fatalf("password stored in clear")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Passw0rd!")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}

	if len(f.mail.jobs) != 1 || f.mail.jobs[0].Kind != ports.MailVerification {
		t.Fatalf("expected one verification mail, got %+v", f.mail.jobs)
	}
	if f.mail.jobs[0].OTP != "123456" {
		t.Fatalf("mail carries wrong code: %s", f.mail.jobs[0].OTP)
	}
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	f := newFixture()
	register(t, f, "a@x.com")

	_, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email: "a@x.com", Password: "Other1234", FirstName: "C", LastName: "D", Role: domain.RolePatient,
	})
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

// ── Login ─────────────────────────────────────────────────────────────────────

func TestAuthService_Login_UnverifiedRefused(t *testing.T) {
	f := newFixture()
	register(t, f, "a@x.com")

	_, err := f.svc.Login(context.Background(), "a@x.com", "Passw0rd!")
	if !errors.Is(err, domain.ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}
}

func TestAuthService_Login_MasksUnknownEmail(t *testing.T) {
	f := newFixture()
	register(t, f, "a@x.com")
	verify(t, f, "a@x.com")

	_, wrongPass := f.svc.Login(context.Background(), "a@x.com", "nope")
	_, wrongMail := f.svc.Login(context.Background(), "ghost@x.com", "Passw0rd!")

	if !errors.Is(wrongPass, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", wrongPass)
	}
	if !errors.Is(wrongMail, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", wrongMail)
	}
	// same error either way, so responses cannot distinguish the two
	if wrongPass.Error() != wrongMail.Error() {
		t.Fatalf("error messages differ: %q vs %q", wrongPass, wrongMail)
	}
}

func TestAuthService_Login_RotatesSession(t *testing.T) {
	f := newFixture()
	first := register(t, f, "a@x.com")
	verify(t, f, "a@x.com")

	result, err := f.svc.Login(context.Background(), "a@x.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if result.RefreshToken == first.RefreshToken {
		t.Fatalf("login must overwrite the prior session token")
	}
	user := f.repo.users[result.User.ID]
	if !user.HasRefreshToken(result.RefreshToken) {
		t.Fatalf("new refresh token not persisted")
	}
}

// ── RefreshToken ──────────────────────────────────────────────────────────────

func TestAuthService_RefreshToken_RotatesAndRejectsReplay(t *testing.T) {
	f := newFixture()
	result := register(t, f, "a@x.com")

	pair, err := f.svc.RefreshToken(context.Background(), result.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if pair.RefreshToken == result.RefreshToken {
		t.Fatalf("refresh must rotate the token")
	}

	// The pre-rotation token still verifies cryptographically but no longer
	// matches the stored value: replay must be rejected.
	if _, err := f.svc.RefreshToken(context.Background(), result.RefreshToken); !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for replayed token, got %v", err)
	}

	// The rotated token works.
	if _, err := f.svc.RefreshToken(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("rotated token refused: %v", err)
	}
}

func TestAuthService_RefreshToken_Garbage(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.RefreshToken(context.Background(), "not-a-token"); !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

// ── Logout ────────────────────────────────────────────────────────────────────

func TestAuthService_Logout(t *testing.T) {
	f := newFixture()
	result := register(t, f, "a@x.com")

	if err := f.svc.Logout(context.Background(), result.User.ID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if f.repo.users[result.User.ID].RefreshToken != nil {
		t.Fatalf("refresh token not cleared")
	}

	// Idempotent: clearing again and clearing for unknown users succeed.
	if err := f.svc.Logout(context.Background(), result.User.ID); err != nil {
		t.Fatalf("second logout failed: %v", err)
	}
	if err := f.svc.Logout(context.Background(), "ghost"); err != nil {
		t.Fatalf("logout of unknown user failed: %v", err)
	}

	if _, err := f.svc.RefreshToken(context.Background(), result.RefreshToken); !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Fatalf("expected refresh to fail after logout, got %v", err)
	}
}

// ── VerifyEmail ───────────────────────────────────────────────────────────────

func TestAuthService_VerifyEmail_OneWay(t *testing.T) {
	f := newFixture()
	result := register(t, f, "a@x.com")

	if err := f.svc.VerifyEmail(context.Background(), "a@x.com", "123456"); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	user := f.repo.users[result.User.ID]
	if !user.IsEmailVerified || user.EmailVerificationToken != nil || user.EmailVerificationExpiry != nil {
		t.Fatalf("verification fields not cleared: %+v", user)
	}

	// welcome mail queued after the verification mail
	if len(f.mail.jobs) != 2 || f.mail.jobs[1].Kind != ports.MailWelcome {
		t.Fatalf("expected welcome mail, got %+v", f.mail.jobs)
	}

	// Second call with the same code: the token was consumed, so the lookup
	// finds nothing to match.
	if err := f.svc.VerifyEmail(context.Background(), "a@x.com", "123456"); !errors.Is(err, domain.ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid on second verify, got %v", err)
	}
}

func TestAuthService_VerifyEmail_WrongCode(t *testing.T) {
	f := newFixture()
	register(t, f, "a@x.com")

	if err := f.svc.VerifyEmail(context.Background(), "a@x.com", "000000"); !errors.Is(err, domain.ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
	if err := f.svc.VerifyEmail(context.Background(), "ghost@x.com", "123456"); !errors.Is(err, domain.ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid for unknown email, got %v", err)
	}
}

func TestAuthService_VerifyEmail_Expired(t *testing.T) {
	f := newFixture()
	result := register(t, f, "a@x.com")

	past := time.Now().UTC().Add(-time.Minute)
	user := f.repo.users[result.User.ID]
	user.EmailVerificationExpiry = &past

	if err := f.svc.VerifyEmail(context.Background(), "a@x.com", "123456"); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestAuthService_VerifyEmail_Throttled(t *testing.T) {
	repo := newStubUserRepo()
	limiter := &stubLimiter{allow: false}
	svc := NewAuthService(repo, newStubCodec(), &stubOTP{}, &stubMail{}, limiter, zerolog.Nop())

	if err := svc.VerifyEmail(context.Background(), "a@x.com", "123456"); !errors.Is(err, domain.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestAuthService_VerifyEmail_RecordsFailures(t *testing.T) {
	f := newFixture()
	limiter := &stubLimiter{allow: true}
	svc := NewAuthService(f.repo, f.codec, &stubOTP{}, f.mail, limiter, zerolog.Nop())

	if _, err := svc.Register(context.Background(), ports.RegisterInput{
		Email: "a@x.com", Password: "Passw0rd!", FirstName: "A", LastName: "B", Role: domain.RolePatient,
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_ = svc.VerifyEmail(context.Background(), "a@x.com", "000000")
	if limiter.failures != 1 {
		t.Fatalf("expected 1 recorded failure, got %d", limiter.failures)
	}

	if err := svc.VerifyEmail(context.Background(), "a@x.com", "123456"); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if limiter.resets != 1 {
		t.Fatalf("expected counter reset on success, got %d", limiter.resets)
	}
}

// ── ForgotPassword / ResetPassword ────────────────────────────────────────────

func TestAuthService_ForgotPassword(t *testing.T) {
	f := newFixture()
	result := register(t, f, "a@x.com")

	if err := f.svc.ForgotPassword(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}

	user := f.repo.users[result.User.ID]
	if user.PasswordResetToken == nil || user.PasswordResetExpiry == nil {
		t.Fatalf("reset code and expiry must both be set")
	}
	last := f.mail.jobs[len(f.mail.jobs)-1]
	if last.Kind != ports.MailPasswordReset || last.OTP == "" {
		t.Fatalf("expected reset mail with code, got %+v", last)
	}

	if err := f.svc.ForgotPassword(context.Background(), "ghost@x.com"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAuthService_ResetPassword(t *testing.T) {
	f := newFixture()
	result := register(t, f, "a@x.com")
	verify(t, f, "a@x.com")

	if err := f.svc.ForgotPassword(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}

	if err := f.svc.ResetPassword(context.Background(), "123456", "NewPassw0rd"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	user := f.repo.users[result.User.ID]
	if user.PasswordResetToken != nil || user.PasswordResetExpiry != nil {
		t.Fatalf("reset fields not cleared")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("NewPassw0rd")); err != nil {
		t.Fatalf("new password not stored: %v", err)
	}

	// The code was consumed.
	if err := f.svc.ResetPassword(context.Background(), "123456", "Another1234"); !errors.Is(err, domain.ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid on reuse, got %v", err)
	}
}

func TestAuthService_ResetPassword_Expired(t *testing.T) {
	f := newFixture()
	result := register(t, f, "a@x.com")

	if err := f.svc.ForgotPassword(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	f.repo.users[result.User.ID].PasswordResetExpiry = &past

	if err := f.svc.ResetPassword(context.Background(), "123456", "NewPassw0rd"); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

// ── CleanExpiredOTP ───────────────────────────────────────────────────────────

func TestAuthService_CleanExpiredOTP(t *testing.T) {
	f := newFixture()
	stale := register(t, f, "stale@x.com")
	fresh := register(t, f, "fresh@x.com")
	done := register(t, f, "done@x.com")
	verify(t, f, "done@x.com")

	past := time.Now().UTC().Add(-time.Minute)
	f.repo.users[stale.User.ID].EmailVerificationExpiry = &past

	if err := f.svc.CleanExpiredOTP(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	staleUser := f.repo.users[stale.User.ID]
	if staleUser.EmailVerificationToken != nil || staleUser.EmailVerificationExpiry != nil {
		t.Fatalf("stale code not cleared")
	}
	if staleUser.IsEmailVerified {
		t.Fatalf("sweep must not verify anyone")
	}

	freshUser := f.repo.users[fresh.User.ID]
	if freshUser.EmailVerificationToken == nil {
		t.Fatalf("unexpired code must survive the sweep")
	}

	doneUser := f.repo.users[done.User.ID]
	if !doneUser.IsEmailVerified {
		t.Fatalf("verified user must be untouched")
	}
}
