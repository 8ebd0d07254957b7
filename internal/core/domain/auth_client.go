package domain

// AuthClientType identifies an external identity provider.
type AuthClientType string

const (
	AuthClientApple     AuthClientType = "apple"
	AuthClientGoogle    AuthClientType = "google"
	AuthClientMicrosoft AuthClientType = "microsoft"
)

// Valid reports whether t is a supported provider.
func (t AuthClientType) Valid() bool {
	switch t {
	case AuthClientApple, AuthClientGoogle, AuthClientMicrosoft:
		return true
	}
	return false
}

// AuthClient is a registration at an external provider, addressed by Uri.
type AuthClient struct {
	ID           string         `json:"id" bson:"_id" yaml:"-"`
	URI          string         `json:"uri" bson:"uri" yaml:"uri"`
	Type         AuthClientType `json:"type" bson:"type" yaml:"type"`
	Name         string         `json:"name" bson:"name" yaml:"name"`
	ClientID     string         `json:"clientId" bson:"client_id" yaml:"clientId"`
	ClientSecret string         `json:"-" bson:"client_secret" yaml:"clientSecret"`
	CallbackURL  string         `json:"callbackUrl" bson:"callback_url" yaml:"callbackUrl"`
	AuthorizeURL string         `json:"authorizeUrl" bson:"authorize_url" yaml:"authorizeUrl"`
	TokenURL     string         `json:"tokenUrl" bson:"token_url" yaml:"tokenUrl"`
	// Optional overrides of the provider defaults.
	JWKSURL string `json:"jwksUrl,omitempty" bson:"jwks_url,omitempty" yaml:"jwksUrl,omitempty"`
	Issuer  string `json:"issuer,omitempty" bson:"issuer,omitempty" yaml:"issuer,omitempty"`
}
