package domain

import (
	"strings"
	"time"
)

// User models a local account. Users created through an external provider
// carry a random password placeholder that is never used for login.
type User struct {
	ID                    string     `json:"id" bson:"_id"`
	UserName              string     `json:"userName" bson:"user_name"`
	UserNameNormalized    string     `json:"-" bson:"user_name_normalized"`
	Email                 string     `json:"email" bson:"email"`
	EmailNormalized       string     `json:"-" bson:"email_normalized"`
	Name                  string     `json:"name,omitempty" bson:"name"`
	Password              string     `json:"-" bson:"password"`
	Salt                  string     `json:"-" bson:"salt"`
	EmailWasConfirmed     bool       `json:"emailWasConfirmed" bson:"email_was_confirmed"`
	IsBlocked             bool       `json:"isBlocked" bson:"is_blocked"`
	EmailConfirmationGUID string     `json:"-" bson:"email_confirmation_guid"`
	GravatarHash          string     `json:"gravatarHash,omitempty" bson:"gravatar_hash"`
	Bio                   *string    `json:"bio,omitempty" bson:"bio,omitempty"`
	Location              *string    `json:"location,omitempty" bson:"location,omitempty"`
	Website               *string    `json:"website,omitempty" bson:"website,omitempty"`
	BirthDate             *time.Time `json:"birthDate,omitempty" bson:"birth_date,omitempty"`
	Roles                 []string   `json:"roles" bson:"roles"`
	CreatedAt             time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt             time.Time  `json:"updatedAt" bson:"updated_at"`
}

// Role groups permissions under a stable code.
type Role struct {
	ID                 string `json:"id" bson:"_id"`
	Code               string `json:"code" bson:"code"`
	Title              string `json:"title" bson:"title"`
	Description        string `json:"description,omitempty" bson:"description,omitempty"`
	IsDefault          bool   `json:"isDefault" bson:"is_default"`
	HasSuperPrivileges bool   `json:"hasSuperPrivileges" bson:"has_super_privileges"`
}

// NormalizeUserName strips "@" and upper-cases, so that "@john" and "John"
// address the same account.
func NormalizeUserName(userName string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(userName), "@", ""))
}

// NormalizeEmail upper-cases the address for case-insensitive lookups.
func NormalizeEmail(email string) string {
	return strings.ToUpper(strings.TrimSpace(email))
}

// IsSuperUser reports whether any of the given roles grants super privileges.
func IsSuperUser(roles []Role) bool {
	for _, r := range roles {
		if r.HasSuperPrivileges {
			return true
		}
	}
	return false
}
