package models

import (
	"time"
)

// SocialAccount binds one user to one platform identity. Token fields are
// stored AES-GCM encrypted and are only mutated by the token service after
// a successful refresh. The consumer/signing quadruple is the static
// OAuth 1.0a credential set used exclusively for legacy media upload.
type SocialAccount struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	Platform        string    `db:"platform" json:"platform"`
	AccountID       string    `db:"account_id" json:"account_id"`
	AccountName     string    `db:"account_name" json:"account_name"`
	AccountUsername string    `db:"account_username" json:"account_username"`
	AccessToken     string    `db:"access_token" json:"-"`
	RefreshToken    string    `db:"refresh_token" json:"-"`
	TokenType       string    `db:"token_type" json:"token_type"`
	Scope           string    `db:"scope" json:"scope"`
	TokenExpiresAt  time.Time `db:"token_expires_at" json:"token_expires_at"`
	ConsumerKey     string    `db:"consumer_key" json:"-"`
	ConsumerSecret  string    `db:"consumer_secret" json:"-"`
	SigningToken    string    `db:"signing_token" json:"-"`
	SigningSecret   string    `db:"signing_secret" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
