package domain

import "time"

// ExternalUser links a local user to an identity at an external provider.
// AuthenticationToken is a one-time token bridging the provider redirect to
// the token-issuing login call; it is cleared once consumed.
type ExternalUser struct {
	ID                  string         `bson:"_id"`
	Type                AuthClientType `bson:"type"`
	ExternalID          string         `bson:"external_id"`
	UserID              string         `bson:"user_id"`
	AuthenticationToken string         `bson:"authentication_token,omitempty"`
	TokenCreatedAt      *time.Time     `bson:"token_created_at,omitempty"`
	CreatedAt           time.Time      `bson:"created_at"`
}

// OAuthUser is the identity extracted from a verified provider id_token.
// Name parts are nil when the provider does not send them.
type OAuthUser struct {
	UniqueID   string
	Email      string
	GivenName  *string
	FamilyName *string
	Name       *string
}
