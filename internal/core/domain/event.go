package domain

import "time"

// EventType names an audited account operation.
type EventType string

const (
	EventAccountLogin          EventType = "accountLogin"
	EventAccountRefresh        EventType = "accountRefresh"
	EventAccountChangePassword EventType = "accountChangePassword"
	EventAccountRevoke         EventType = "accountRevoke"
	EventAccountBlock          EventType = "accountBlock"
	EventAccountUnblock        EventType = "accountUnblock"
	EventIdentityAuthenticate  EventType = "identityAuthenticate"
	EventIdentityCallback      EventType = "identityCallback"
	EventIdentityLogin         EventType = "identityLogin"
)

// AccountEvent is an audit record of a single request to an account endpoint.
// Request bodies are never recorded.
type AccountEvent struct {
	Type       EventType `bson:"type"`
	Method     string    `bson:"method"`
	URI        string    `bson:"uri"`
	UserID     string    `bson:"user_id,omitempty"`
	StatusCode int       `bson:"status_code"`
	Error      string    `bson:"error,omitempty"`
	ClientIP   string    `bson:"client_ip,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}
