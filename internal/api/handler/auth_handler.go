package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/melkam/therapy-api/internal/core/domain"
	"github.com/melkam/therapy-api/internal/core/ports"
)

// AuthHandler exposes the session lifecycle over HTTP. Refresh goes through
// the coordinator rather than straight to the service so that concurrent
// attempts from one client collapse into a single rotation.
type AuthHandler struct {
	auth    ports.AuthService
	refresh ports.RefreshCoordinator
	cookie  CookieSettings
	log     zerolog.Logger
}

func NewAuthHandler(auth ports.AuthService, refresh ports.RefreshCoordinator, cookie CookieSettings, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, refresh: refresh, cookie: cookie, log: log}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Role      string `json:"role" validate:"omitempty,oneof=PATIENT THERAPIST ADMIN"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type verifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	OTP         string `json:"otp" validate:"required,len=6,numeric"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

type sessionData struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"accessToken"`
}

type refreshData struct {
	AccessToken string `json:"accessToken"`
}

// Register creates a new account and opens a pre-verification session.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Registration details"
// @Success      201   {object}  envelope
// @Failure      400   {object}  map[string]any
// @Failure      409   {object}  map[string]any
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.auth.Register(c.Request().Context(), ports.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      domain.Role(req.Role),
	})
	if err != nil {
		return err
	}

	setRefreshCookie(c, result.RefreshToken, h.cookie)
	return respond(c, http.StatusCreated,
		sessionData{User: result.User, AccessToken: result.AccessToken},
		"User registered. A verification code was sent to your email.")
}

// Login authenticates a verified user.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  envelope
// @Failure      401   {object}  map[string]any
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	setRefreshCookie(c, result.RefreshToken, h.cookie)
	return respond(c, http.StatusOK,
		sessionData{User: result.User, AccessToken: result.AccessToken},
		"Login successful")
}

// RefreshToken rotates the session named by the refresh cookie.
//
// @Summary      Refresh access token
// @Tags         auth
// @Produce      json
// @Success      200  {object}  envelope
// @Failure      401  {object}  map[string]any
// @Router       /auth/refresh-token [post]
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token required")
	}

	pair, err := h.refresh.Refresh(c.Request().Context(), cookie.Value)
	if err != nil {
		return err
	}

	setRefreshCookie(c, pair.RefreshToken, h.cookie)
	return respond(c, http.StatusOK, refreshData{AccessToken: pair.AccessToken}, "Tokens refreshed")
}

// Logout ends the caller's session.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  envelope
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	if err := h.auth.Logout(c.Request().Context(), userID); err != nil {
		return err
	}

	clearRefreshCookie(c, h.cookie)
	return respond(c, http.StatusOK, nil, "Logged out")
}

// VerifyEmail consumes a verification code.
//
// @Summary      Verify email with OTP
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      verifyEmailRequest  true  "Email and code"
// @Success      200   {object}  envelope
// @Failure      400   {object}  map[string]any
// @Failure      404   {object}  map[string]any
// @Router       /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req verifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.auth.VerifyEmail(c.Request().Context(), req.Email, req.OTP); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "Email verified successfully")
}

// ForgotPassword issues a reset code. The response is identical whether or
// not the account exists, so it cannot be used to enumerate emails.
//
// @Summary      Request password reset
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      forgotPasswordRequest  true  "Account email"
// @Success      200   {object}  envelope
// @Router       /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.auth.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		h.log.Debug().Str("email", req.Email).Msg("password reset requested for unknown email")
	}
	return respond(c, http.StatusOK, nil, "Password reset email sent")
}

// ResetPassword consumes a reset code and sets a new password.
//
// @Summary      Reset password with OTP
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      resetPasswordRequest  true  "Code and new password"
// @Success      200   {object}  envelope
// @Failure      400   {object}  map[string]any
// @Failure      404   {object}  map[string]any
// @Router       /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.auth.ResetPassword(c.Request().Context(), req.OTP, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "Password reset successful")
}
