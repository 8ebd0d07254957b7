package handler

import (
	"context"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

type stubUserService struct {
	loginFn          func(ctx context.Context, userNameOrEmail, password string) (*domain.User, error)
	loginByTokenFn   func(ctx context.Context, token string) (*domain.User, error)
	changePasswordFn func(ctx context.Context, userID, current, next string) error
	getByUserNameFn  func(ctx context.Context, userName string) (*domain.User, error)
	setBlockedFn     func(ctx context.Context, userName string, blocked bool) error
}

func (s *stubUserService) Login(ctx context.Context, userNameOrEmail, password string) (*domain.User, error) {
	return s.loginFn(ctx, userNameOrEmail, password)
}

func (s *stubUserService) LoginByAuthenticationToken(ctx context.Context, token string) (*domain.User, error) {
	return s.loginByTokenFn(ctx, token)
}

func (s *stubUserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	return s.changePasswordFn(ctx, userID, current, next)
}

func (s *stubUserService) GetByUserName(ctx context.Context, userName string) (*domain.User, error) {
	return s.getByUserNameFn(ctx, userName)
}

func (s *stubUserService) CreateUser(context.Context, ports.NewUser) (*domain.User, error) {
	panic("not used by handlers")
}

func (s *stubUserService) SetBlocked(ctx context.Context, userName string, blocked bool) error {
	return s.setBlockedFn(ctx, userName, blocked)
}

type stubTokenService struct {
	createFn   func(ctx context.Context, user *domain.User) (*domain.AccessTokens, error)
	validateFn func(ctx context.Context, token string) (*domain.RefreshToken, error)
	userFn     func(ctx context.Context, token string) (*domain.User, error)
	updateFn   func(ctx context.Context, user *domain.User, old string) (*domain.AccessTokens, error)
	revokeFn   func(ctx context.Context, user *domain.User) error
}

func (s *stubTokenService) CreateAccessTokens(ctx context.Context, user *domain.User) (*domain.AccessTokens, error) {
	return s.createFn(ctx, user)
}

func (s *stubTokenService) ValidateRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	return s.validateFn(ctx, token)
}

func (s *stubTokenService) GetUserByRefreshToken(ctx context.Context, token string) (*domain.User, error) {
	return s.userFn(ctx, token)
}

func (s *stubTokenService) UpdateAccessTokens(ctx context.Context, user *domain.User, old string) (*domain.AccessTokens, error) {
	return s.updateFn(ctx, user, old)
}

func (s *stubTokenService) RevokeRefreshTokens(ctx context.Context, user *domain.User) error {
	return s.revokeFn(ctx, user)
}

type stubExternalService struct {
	redirectFn func(ctx context.Context, clientURI string) (string, error)
	callbackFn func(ctx context.Context, clientURI, code string) (string, error)
}

func (s *stubExternalService) GetRedirectLocation(ctx context.Context, clientURI string) (string, error) {
	return s.redirectFn(ctx, clientURI)
}

func (s *stubExternalService) Callback(ctx context.Context, clientURI, code string) (string, error) {
	return s.callbackFn(ctx, clientURI, code)
}

func issued(user *domain.User) (*domain.AccessTokens, error) {
	return &domain.AccessTokens{AccessToken: "access-" + user.ID, RefreshToken: "refresh-" + user.ID}, nil
}

// newJSONContext builds an echo context for a JSON request with the
// validator the router installs.
func newJSONContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}
