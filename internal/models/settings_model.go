package models

import "time"

// NotificationSettings is the per-user dispatch preference. It is written
// by the dashboard (out of scope here) and read by the dispatcher.
type NotificationSettings struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	Enabled         bool      `db:"enabled" json:"enabled"`
	Email           string    `db:"email" json:"email"`
	NotifyOnSuccess bool      `db:"notify_on_success" json:"notify_on_success"`
	NotifyOnFailure bool      `db:"notify_on_failure" json:"notify_on_failure"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
