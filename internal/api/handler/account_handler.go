package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-system/internal/api/metrics"
	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

type AccountHandler struct {
	users  ports.UserService
	tokens ports.TokenService
}

func NewAccountHandler(users ports.UserService, tokens ports.TokenService) *AccountHandler {
	return &AccountHandler{users: users, tokens: tokens}
}

type loginRequest struct {
	UserNameOrEmail string `json:"userNameOrEmail" validate:"required"`
	Password        string `json:"password" validate:"required"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=32,nefield=CurrentPassword"`
}

// Login authenticates a user name or email with a password.
//
// @Summary      Login
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      200   {object}  domain.AccessTokens
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /account/login [post]
func (h *AccountHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.users.Login(c.Request().Context(), req.UserNameOrEmail, req.Password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("password", resultLabel(err)).Inc()
		return err
	}
	c.Set("user_id", user.ID)

	tokens, err := h.tokens.CreateAccessTokens(c.Request().Context(), user)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("password", resultLabel(err)).Inc()
		return err
	}

	metrics.LoginsTotal.WithLabelValues("password", "success").Inc()
	return c.JSON(http.StatusOK, tokens)
}

// Refresh rotates a refresh token into a new token pair.
//
// @Summary      Refresh access token
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        body  body      refreshTokenRequest  true  "Refresh token"
// @Success      200   {object}  domain.AccessTokens
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /account/refresh [post]
func (h *AccountHandler) Refresh(c echo.Context) error {
	var req refreshTokenRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	tokens, err := h.refresh(c, req.RefreshToken)
	metrics.TokenRefreshesTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokens)
}

func (h *AccountHandler) refresh(c echo.Context, refreshToken string) (*domain.AccessTokens, error) {
	ctx := c.Request().Context()
	if _, err := h.tokens.ValidateRefreshToken(ctx, refreshToken); err != nil {
		return nil, err
	}
	user, err := h.tokens.GetUserByRefreshToken(ctx, refreshToken)
	if err != nil {
		// A deleted or blocked owner makes the token unusable.
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
		}
		return nil, err
	}
	c.Set("user_id", user.ID)
	return h.tokens.UpdateAccessTokens(ctx, user, refreshToken)
}

// ChangePassword replaces the password of the authenticated user and signs
// out every session.
//
// @Summary      Change password
// @Tags         account
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  changePasswordRequest  true  "Passwords"
// @Success      200
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /account/change-password [post]
func (h *AccountHandler) ChangePassword(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.users.ChangePassword(c.Request().Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// Revoke invalidates every refresh token of a user.
//
// @Summary      Revoke refresh tokens
// @Tags         account
// @Security     BearerAuth
// @Param        username  path  string  true  "User name"
// @Success      200
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /account/revoke/{username} [post]
func (h *AccountHandler) Revoke(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := h.users.GetByUserName(ctx, c.Param("username"))
	if err != nil {
		return err
	}
	if err := h.tokens.RevokeRefreshTokens(ctx, user); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// Block prevents a user from logging in and revokes their sessions.
//
// @Summary      Block user
// @Tags         account
// @Security     BearerAuth
// @Param        username  path  string  true  "User name"
// @Success      200
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /account/block/{username} [post]
func (h *AccountHandler) Block(c echo.Context) error {
	return h.setBlocked(c, true)
}

// Unblock lifts a block.
//
// @Summary      Unblock user
// @Tags         account
// @Security     BearerAuth
// @Param        username  path  string  true  "User name"
// @Success      200
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /account/unblock/{username} [post]
func (h *AccountHandler) Unblock(c echo.Context) error {
	return h.setBlocked(c, false)
}

func (h *AccountHandler) setBlocked(c echo.Context, blocked bool) error {
	if err := h.users.SetBlocked(c.Request().Context(), c.Param("username"), blocked); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// resultLabel turns an error into a low-cardinality metric label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrAccountBlocked):
		return "blocked"
	case errors.Is(err, domain.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, domain.ErrClientNotFound):
		return "client_not_found"
	case errors.Is(err, domain.ErrInvalidIdentityToken):
		return "invalid_identity_token"
	case errors.Is(err, domain.ErrExternalProvider):
		return "provider_error"
	default:
		return "error"
	}
}
