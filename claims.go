package identity

import (
	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims is the claim set expected inside org-signed identity tokens.
// Upstream signers are not guaranteed to agree on an avatar key casing, so
// all three spellings are accepted and folded by AvatarValue.
type IdentityClaims struct {
	jwt.RegisteredClaims
	UID         string   `json:"id,omitempty"`
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
	AvatarURL   string   `json:"avatarUrl,omitempty"`
	AvatarSnake string   `json:"avatar_url,omitempty"`
	Company     *Company `json:"company,omitempty"`
}

// UserID returns the external user id, falling back to the registered
// subject claim when the signer used `sub` instead of `id`.
func (c *IdentityClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// AvatarValue normalizes the accepted avatar key spellings to one value.
func (c *IdentityClaims) AvatarValue() string {
	if c.Avatar != "" {
		return c.Avatar
	}
	if c.AvatarURL != "" {
		return c.AvatarURL
	}
	return c.AvatarSnake
}

// RequireIdentity enforces the mandatory id and email claims.
func (c *IdentityClaims) RequireIdentity() error {
	if c.UserID() == "" || c.Email == "" {
		return ErrMissingRequiredClaims.WithMetadata(map[string]any{
			"has_id":    c.UserID() != "",
			"has_email": c.Email != "",
		})
	}
	return nil
}

// Profile extracts the upsert-ready profile carried by the claims.
func (c *IdentityClaims) Profile() *IdentifiedUser {
	return &IdentifiedUser{
		ID:      c.UserID(),
		Email:   c.Email,
		Name:    c.Name,
		Avatar:  c.AvatarValue(),
		Company: c.Company.clone(),
	}
}
