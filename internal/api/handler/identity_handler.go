package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-system/internal/api/metrics"
	"github.com/99minutos/identity-system/internal/core/ports"
)

type IdentityHandler struct {
	external ports.ExternalUserService
	users    ports.UserService
	tokens   ports.TokenService
}

func NewIdentityHandler(external ports.ExternalUserService, users ports.UserService, tokens ports.TokenService) *IdentityHandler {
	return &IdentityHandler{external: external, users: users, tokens: tokens}
}

type externalLoginRequest struct {
	AuthenticationToken string `json:"authenticationToken" validate:"required"`
}

// Authenticate redirects the browser to the provider sign-in page.
//
// @Summary      Start external login
// @Tags         identity
// @Param        clientUri  path  string  true  "Auth client uri"
// @Success      302
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /identity/authenticate/{clientUri} [get]
func (h *IdentityHandler) Authenticate(c echo.Context) error {
	location, err := h.external.GetRedirectLocation(c.Request().Context(), c.Param("clientUri"))
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, location)
}

// Callback receives the authorization code. Apple posts it as a form, the
// other providers send it in the query string.
//
// @Summary      External login callback
// @Tags         identity
// @Param        clientUri  path   string  true  "Auth client uri"
// @Param        code       query  string  true  "Authorization code"
// @Success      302
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /identity/callback/{clientUri} [get]
// @Router       /identity/callback/{clientUri} [post]
func (h *IdentityHandler) Callback(c echo.Context) error {
	clientURI := c.Param("clientUri")
	start := time.Now()

	location, err := h.external.Callback(c.Request().Context(), clientURI, c.FormValue("code"))
	metrics.ExternalCallbackDuration.WithLabelValues(clientURI).Observe(time.Since(start).Seconds())
	metrics.ExternalCallbacksTotal.WithLabelValues(clientURI, resultLabel(err)).Inc()
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, location)
}

// Login exchanges a one-time authentication token for a token pair.
//
// @Summary      External login
// @Tags         identity
// @Accept       json
// @Produce      json
// @Param        body  body      externalLoginRequest  true  "Authentication token"
// @Success      200   {object}  domain.AccessTokens
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /identity/login [post]
func (h *IdentityHandler) Login(c echo.Context) error {
	var req externalLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.users.LoginByAuthenticationToken(c.Request().Context(), req.AuthenticationToken)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("external", resultLabel(err)).Inc()
		return err
	}
	c.Set("user_id", user.ID)

	tokens, err := h.tokens.CreateAccessTokens(c.Request().Context(), user)
	metrics.LoginsTotal.WithLabelValues("external", resultLabel(err)).Inc()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokens)
}
