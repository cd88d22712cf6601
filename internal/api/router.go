package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/melkam/therapy-api/internal/api/handler"
	"github.com/melkam/therapy-api/internal/api/middleware"
	"github.com/melkam/therapy-api/internal/core/domain"
	"github.com/melkam/therapy-api/internal/core/ports"
)

// Dependencies carries everything the router wires into handlers. Services
// are constructed in main so their background collaborators (mail dispatcher,
// sweeper) share the process lifecycle.
type Dependencies struct {
	Mongo   *mongo.Database
	Redis   *redis.Client
	Auth    ports.AuthService
	Refresh ports.RefreshCoordinator
	Users   ports.UserService
	Codec   ports.TokenCodec
	Cookie  handler.CookieSettings
	Log     zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("therapy"))

	authMiddleware := middleware.Auth(deps.Codec)

	// --- Auth routes ---
	authHandler := handler.NewAuthHandler(deps.Auth, deps.Refresh, deps.Cookie, deps.Log)
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)
	e.POST("/auth/refresh-token", authHandler.RefreshToken)
	e.POST("/auth/logout", authHandler.Logout, authMiddleware)
	e.POST("/auth/verify-email", authHandler.VerifyEmail)
	e.POST("/auth/forgot-password", authHandler.ForgotPassword)
	e.POST("/auth/reset-password", authHandler.ResetPassword)

	// --- User routes ---
	userHandler := handler.NewUserHandler(deps.Users)
	e.GET("/users/me", userHandler.Me, authMiddleware)
	e.GET("/users", userHandler.List, authMiddleware, middleware.RBAC(domain.RoleAdmin))

	// --- Observability (no auth required) ---
	e.GET("/metrics", echoprometheus.NewHandler())

	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(deps.Mongo, deps.Redis)
	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", readinessHandler.Readiness)

	return e
}
