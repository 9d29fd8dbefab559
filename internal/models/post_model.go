package models

import "time"

type Post struct {
	ID            int64      `db:"id" json:"id"`
	UserID        int64      `db:"user_id" json:"user_id"`
	AccountID     int64      `db:"account_id" json:"account_id"`
	Caption       string     `db:"caption" json:"caption"`
	ScheduledTime time.Time  `db:"scheduled_time" json:"scheduled_time"`
	Status        string     `db:"status" json:"status"` // draft, scheduled, queued, processing, posted, failed
	TweetID       string     `db:"tweet_id" json:"tweet_id"`
	LastError     string     `db:"last_error" json:"last_error"`
	RetryCount    int        `db:"retry_count" json:"retry_count"`
	MaxRetries    int        `db:"max_retries" json:"max_retries"`
	NextRetryAt   *time.Time `db:"next_retry_at" json:"next_retry_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

type MediaAsset struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	FileName  string    `db:"file_name"`
	FileType  string    `db:"file_type"`
	FileSize  int64     `db:"file_size"`
	FileURL   string    `db:"file_url"`
	CreatedAt time.Time `db:"created_at"`
}

type PostMedia struct {
	PostID       int64     `db:"post_id"`
	AssetID      int64     `db:"asset_id"`
	MediaKind    string    `db:"media_kind"` // photo, gif, video
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusQueued     = "queued"
	PostStatusProcessing = "processing"
	PostStatusPosted     = "posted"
	PostStatusFailed     = "failed"
)

const (
	MediaKindPhoto = "photo"
	MediaKindGif   = "gif"
	MediaKindVideo = "video"
)
