package domain

import "time"

// RefreshToken is an opaque, persisted token that can be exchanged for a new
// access token exactly once.
type RefreshToken struct {
	ID         string    `bson:"_id"`
	Token      string    `bson:"token"`
	UserID     string    `bson:"user_id"`
	CreatedAt  time.Time `bson:"created_at"`
	ExpiryDate time.Time `bson:"expiry_date"`
	Revoked    bool      `bson:"revoked"`
}

// IsActive reports whether the token can still be used at now.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiryDate)
}

// AccessTokens is the pair handed to a client after a successful login.
type AccessTokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}
