package domain

import (
	"errors"
	"time"
)

// Role determines which protected resources a user may reach.
type Role string

const (
	RolePatient   Role = "PATIENT"
	RoleTherapist Role = "THERAPIST"
	RoleAdmin     Role = "ADMIN"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RolePatient, RoleTherapist, RoleAdmin:
		return true
	}
	return false
}

var (
	ErrUserExists          = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailNotVerified    = errors.New("email not verified")
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTimeout      = errors.New("refresh timed out")
	ErrCodeInvalid         = errors.New("invalid verification code")
	ErrCodeExpired         = errors.New("verification code expired")
	ErrTooManyAttempts     = errors.New("too many verification attempts")
	ErrForbidden           = errors.New("access forbidden")
)

// User is the aggregate root for credential and session state.
//
// Verification and reset codes always travel with their expiry: both set or
// both nil. The named transition methods below are the only mutation points,
// so the pairing holds everywhere a User comes from.
type User struct {
	ID           string `json:"id" bson:"_id,omitempty"`
	Email        string `json:"email" bson:"email"`
	PasswordHash string `json:"-" bson:"password_hash"`
	FirstName    string `json:"firstName" bson:"first_name"`
	LastName     string `json:"lastName" bson:"last_name"`
	Role         Role   `json:"role" bson:"role"`

	IsEmailVerified         bool       `json:"isEmailVerified" bson:"is_email_verified"`
	EmailVerificationToken  *string    `json:"-" bson:"email_verification_token,omitempty"`
	EmailVerificationExpiry *time.Time `json:"-" bson:"email_verification_expiry,omitempty"`

	PasswordResetToken  *string    `json:"-" bson:"password_reset_token,omitempty"`
	PasswordResetExpiry *time.Time `json:"-" bson:"password_reset_expiry,omitempty"`

	// RefreshToken holds the single active session token. A new login or
	// refresh overwrites it, revoking the previous session.
	RefreshToken *string `json:"-" bson:"refresh_token,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// FullName joins first and last name for notification templates.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// touch keeps UpdatedAt monotonically non-decreasing.
func (u *User) touch(now time.Time) {
	if now.After(u.UpdatedAt) {
		u.UpdatedAt = now
	}
}

// SetEmailVerificationToken arms a fresh verification code.
func (u *User) SetEmailVerificationToken(token string, expiry, now time.Time) {
	u.EmailVerificationToken = &token
	u.EmailVerificationExpiry = &expiry
	u.touch(now)
}

// VerifyEmail flips the verified flag and clears the code. One-way: there is
// no transition back to unverified.
func (u *User) VerifyEmail(now time.Time) {
	u.IsEmailVerified = true
	u.EmailVerificationToken = nil
	u.EmailVerificationExpiry = nil
	u.touch(now)
}

// EmailVerificationTokenValid reports whether a code is armed and unexpired.
func (u *User) EmailVerificationTokenValid(now time.Time) bool {
	if u.EmailVerificationToken == nil || u.EmailVerificationExpiry == nil {
		return false
	}
	return u.EmailVerificationExpiry.After(now)
}

// SetPasswordResetToken arms a fresh reset code.
func (u *User) SetPasswordResetToken(token string, expiry, now time.Time) {
	u.PasswordResetToken = &token
	u.PasswordResetExpiry = &expiry
	u.touch(now)
}

// ClearPasswordResetToken disarms the reset code.
func (u *User) ClearPasswordResetToken(now time.Time) {
	u.PasswordResetToken = nil
	u.PasswordResetExpiry = nil
	u.touch(now)
}

// PasswordResetTokenValid reports whether a reset code is armed and unexpired.
func (u *User) PasswordResetTokenValid(now time.Time) bool {
	if u.PasswordResetToken == nil || u.PasswordResetExpiry == nil {
		return false
	}
	return u.PasswordResetExpiry.After(now)
}

// SetRefreshToken rotates the active session token.
func (u *User) SetRefreshToken(token string, now time.Time) {
	u.RefreshToken = &token
	u.touch(now)
}

// ClearRefreshToken ends the active session. Idempotent.
func (u *User) ClearRefreshToken(now time.Time) {
	u.RefreshToken = nil
	u.touch(now)
}

// HasRefreshToken reports whether token matches the stored session token.
// A token already rotated away does not match.
func (u *User) HasRefreshToken(token string) bool {
	return u.RefreshToken != nil && *u.RefreshToken == token
}

// UpdatePassword stores a new password hash.
func (u *User) UpdatePassword(hash string, now time.Time) {
	u.PasswordHash = hash
	u.touch(now)
}
