package token

import "github.com/golang-jwt/jwt/v5"

// Token types carried in the "typ" claim. Verification requires an
// exact match so an access token can never stand in for a refresh
// token or the other way around.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the signed claim set for both token types. Roles and
// Permissions are snapshots taken at issue time; revocation happens
// through the blacklist and the session layer, not by claim edits.
type Claims struct {
	jwt.RegisteredClaims

	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Type        string   `json:"typ"`
	SessionID   string   `json:"sid,omitempty"`
}
