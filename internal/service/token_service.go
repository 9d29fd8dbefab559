package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
	"golang.org/x/oauth2"

	config "postflow/configs"
	"postflow/internal/models"
	"postflow/internal/repository"
	"postflow/pkg/utils"
)

// expirySkew is how close to expiry a bearer token may get before a
// refresh is forced ahead of publishing.
const expirySkew = 300 * time.Second

type TokenService interface {
	// EnsureFreshToken returns a usable bearer token for the account,
	// refreshing it first when it is within expirySkew of expiry. A failed
	// refresh is logged and the stale token is returned so the publish
	// attempt can proceed and be classified downstream.
	EnsureFreshToken(ctx context.Context, acc *models.SocialAccount) (string, error)

	// SigningClient builds an OAuth 1.0a signing HTTP client from the
	// account's static credential quadruple. Returns an error when any of
	// the four fields is missing; callers skip media upload in that case.
	SigningClient(ctx context.Context, acc *models.SocialAccount) (*http.Client, error)
}

type tokenService struct {
	cfg config.Config
	sa  repository.SocialAccountRepository
}

func NewTokenService(cfg config.Config, sa repository.SocialAccountRepository) TokenService {
	return &tokenService{cfg: cfg, sa: sa}
}

func (s *tokenService) EnsureFreshToken(ctx context.Context, acc *models.SocialAccount) (string, error) {
	currentToken, err := utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return "", err
	}

	if time.Until(acc.TokenExpiresAt) > expirySkew {
		return currentToken, nil
	}

	refreshed, err := s.refresh(ctx, acc)
	if err != nil {
		slog.Info("token refresh failed, proceeding with stale token",
			"account_id", acc.ID, "error", err.Error())
		return currentToken, nil
	}

	return refreshed, nil
}

func (s *tokenService) refresh(ctx context.Context, acc *models.SocialAccount) (string, error) {
	refreshToken, err := utils.Decrypt(acc.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return "", err
	}

	conf := &oauth2.Config{
		ClientID:     s.cfg.Twitter.ClientID,
		ClientSecret: s.cfg.Twitter.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  s.cfg.Twitter.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", err
	}

	encryptedAccess, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return "", err
	}

	// The refresh token is rotated on every exchange; keep the old one
	// only if the endpoint did not send a replacement.
	encryptedRefresh := ""
	if token.RefreshToken != "" {
		encryptedRefresh, err = utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return "", err
		}
	}

	updated := models.SocialAccount{
		AccessToken:    encryptedAccess,
		RefreshToken:   encryptedRefresh,
		TokenExpiresAt: token.Expiry,
	}
	if err := s.sa.SetToken(ctx, acc.ID, acc.AccessToken, &updated); err != nil {
		return "", err
	}

	acc.AccessToken = encryptedAccess
	if encryptedRefresh != "" {
		acc.RefreshToken = encryptedRefresh
	}
	acc.TokenExpiresAt = token.Expiry

	return token.AccessToken, nil
}

func (s *tokenService) SigningClient(ctx context.Context, acc *models.SocialAccount) (*http.Client, error) {
	if acc.ConsumerKey == "" || acc.ConsumerSecret == "" ||
		acc.SigningToken == "" || acc.SigningSecret == "" {
		return nil, errors.New("account is missing signing credentials")
	}

	consumerKey, err := utils.Decrypt(acc.ConsumerKey, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}
	consumerSecret, err := utils.Decrypt(acc.ConsumerSecret, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}
	signingToken, err := utils.Decrypt(acc.SigningToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}
	signingSecret, err := utils.Decrypt(acc.SigningSecret, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	conf := oauth1.NewConfig(consumerKey, consumerSecret)
	token := oauth1.NewToken(signingToken, signingSecret)
	client := conf.Client(ctx, token)
	client.Timeout = 2 * time.Minute
	return client, nil
}
