package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Twitter struct {
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	UploadURL    string
	TokenURL     string
}

type Config struct {
	Twitter        Twitter
	PostgresURI    string
	RedisURI       string
	PublicBaseURL  string
	CronSpec       string
	RetryBaseDelay time.Duration
	MaxRetries     int
	R2             R2
	SecretKey      string
	GmailFrom      string
	GmailCredsFile string
}

func LoadConfig() *Config {
	return &Config{
		Twitter: Twitter{
			ClientID:     getEnv("TWITTER_CLIENT_ID", ""),
			ClientSecret: getEnv("TWITTER_CLIENT_SECRET", ""),
			APIBaseURL:   getEnv("TWITTER_API_BASE_URL", "https://api.twitter.com"),
			UploadURL:    getEnv("TWITTER_UPLOAD_URL", "https://upload.twitter.com/1.1/media/upload.json"),
			TokenURL:     getEnv("TWITTER_TOKEN_URL", "https://api.twitter.com/2/oauth2/token"),
		},
		PostgresURI:    getEnv("POSTGRES_URI", ""),
		RedisURI:       getEnv("REDIS_URI", ""),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),
		CronSpec:       getEnv("CRON_SPEC", "* * * * *"),
		RetryBaseDelay: getDurationEnv("RETRY_BASE_DELAY", time.Minute),
		MaxRetries:     getIntEnv("MAX_RETRIES", 3),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		SecretKey:      getEnv("SECRET_KEY", ""),
		GmailFrom:      getEnv("GMAIL_FROM", ""),
		GmailCredsFile: getEnv("GMAIL_CREDENTIALS_FILE", ""),
	}
}

// Validate reports the unrecoverable configuration errors. The process
// must not start without these; everything else degrades at runtime.
func (c *Config) Validate() error {
	if len(c.SecretKey) != 32 {
		return errors.New("SECRET_KEY must be a 32-byte AES key")
	}
	if c.PostgresURI == "" {
		return errors.New("POSTGRES_URI is required")
	}
	if c.Twitter.ClientID == "" || c.Twitter.ClientSecret == "" {
		return errors.New("TWITTER_CLIENT_ID and TWITTER_CLIENT_SECRET are required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
