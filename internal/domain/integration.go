package domain

import "time"

// Integration holds one organization's credentials for one provider.
// Token and the secret keys of Extra are stored encrypted.
type Integration struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	Provider       string         `json:"provider" db:"provider"`
	TokenEncrypted string         `json:"-" db:"token_encrypted"`
	Extra          map[string]any `json:"extra,omitempty" db:"extra"`
	IsActive       bool           `json:"is_active" db:"is_active"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// ExtraString returns extra[key] when it is a non-empty string.
func (i *Integration) ExtraString(key string) string {
	if i.Extra == nil {
		return ""
	}
	s, _ := i.Extra[key].(string)
	return s
}

// Credentials are the decrypted secrets handed to a channel sender.
type Credentials struct {
	Token string
	Extra map[string]any
}

// ExtraString returns Extra[key] when it is a string.
func (c Credentials) ExtraString(key string) string {
	if c.Extra == nil {
		return ""
	}
	s, _ := c.Extra[key].(string)
	return s
}
