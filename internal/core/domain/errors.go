package domain

import "errors"

var (
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrAccountBlocked       = errors.New("account is blocked")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrForbidden            = errors.New("access forbidden")
	ErrInternal             = errors.New("internal error")
	ErrClientNotFound       = errors.New("authentication client not found")
	ErrInvalidClientName    = errors.New("authentication client name is missing")
	ErrCodeNotFound         = errors.New("authorization code is missing")
	ErrInvalidIdentityToken = errors.New("identity token is invalid")
	ErrExternalProvider     = errors.New("external provider request failed")

	// ErrExternalUserExists is returned by the store when the
	// (provider type, external id) pair is already linked.
	ErrExternalUserExists = errors.New("external user already exists")
)
