package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// envelope is the canonical success body: {"success":true,"data":…,"message":"…"}.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

func respond(c echo.Context, status int, data any, message string) error {
	return c.JSON(status, envelope{Success: true, Data: data, Message: message})
}

const (
	refreshCookieName   = "refreshToken"
	refreshCookieMaxAge = 7 * 24 * time.Hour
)

// CookieSettings carries the environment-dependent cookie attributes.
type CookieSettings struct {
	Secure bool
	Domain string
}

func setRefreshCookie(c echo.Context, token string, cfg CookieSettings) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   int(refreshCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearRefreshCookie(c echo.Context, cfg CookieSettings) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
