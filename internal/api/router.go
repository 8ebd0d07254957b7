package api

import (
	"crypto/rsa"
	"net/http"
	"sync"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/identity-system/docs"
	"github.com/99minutos/identity-system/internal/api/handler"
	"github.com/99minutos/identity-system/internal/api/middleware"
	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	Users    ports.UserService
	Tokens   ports.TokenService
	External ports.ExternalUserService

	// Optional: a nil limiter or recorder disables the feature.
	Limiter ports.RateLimiter
	Events  ports.EventRecorder

	PublicKey    *rsa.PublicKey
	Issuer       string
	HealthChecks map[string]handler.Check
	Log          zerolog.Logger
}

// echoprometheus registers its collectors globally, so the middleware is
// built once per process.
var httpMetrics = sync.OnceValue(func() echo.MiddlewareFunc {
	return echoprometheus.NewMiddleware("identity")
})

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(httpMetrics())

	accountHandler := handler.NewAccountHandler(deps.Users, deps.Tokens)
	identityHandler := handler.NewIdentityHandler(deps.External, deps.Users, deps.Tokens)
	auth := middleware.Auth(deps.PublicKey, deps.Issuer)
	superUser := middleware.RequireSuperUser()
	event := func(t domain.EventType) echo.MiddlewareFunc {
		return middleware.RecordEvent(deps.Events, t)
	}
	limit := func(scope string) echo.MiddlewareFunc {
		return middleware.RateLimit(deps.Limiter, scope, deps.Log)
	}

	// --- Account routes ---
	account := e.Group("/account")
	account.POST("/login", accountHandler.Login, event(domain.EventAccountLogin), limit("account_login"))
	account.POST("/refresh", accountHandler.Refresh, event(domain.EventAccountRefresh))
	account.POST("/change-password", accountHandler.ChangePassword, event(domain.EventAccountChangePassword), auth)
	account.POST("/revoke/:username", accountHandler.Revoke, event(domain.EventAccountRevoke), auth, superUser)
	account.POST("/block/:username", accountHandler.Block, event(domain.EventAccountBlock), auth, superUser)
	account.POST("/unblock/:username", accountHandler.Unblock, event(domain.EventAccountUnblock), auth, superUser)

	// --- Identity routes ---
	identity := e.Group("/identity")
	identity.GET("/authenticate/:clientUri", identityHandler.Authenticate, event(domain.EventIdentityAuthenticate))
	identity.GET("/callback/:clientUri", identityHandler.Callback, event(domain.EventIdentityCallback))
	identity.POST("/callback/:clientUri", identityHandler.Callback, event(domain.EventIdentityCallback))
	identity.POST("/login", identityHandler.Login, event(domain.EventIdentityLogin), limit("identity_login"))

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(deps.HealthChecks)

	e.GET("/health", healthHandler.Liveness)           // liveness
	e.GET("/health/ready", readinessHandler.Readiness) // readiness: mongo and redis
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Status >= http.StatusInternalServerError {
				evt = log.Error().Err(v.Error)
			}
			// Query strings may carry codes and one-time tokens.
			evt.Str("method", v.Method).
				Str("path", c.Path()).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
