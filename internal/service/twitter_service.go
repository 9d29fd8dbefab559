package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	config "postflow/configs"
	"postflow/internal/models"
	"postflow/internal/repository"
	"postflow/internal/transfer"
)

type TwitterService interface {
	// HandlePost publishes one post on the account's behalf and returns the
	// remote tweet id. Failures from the platform come back as *PublishError
	// so callers can read the category without touching raw codes.
	HandlePost(ctx context.Context, post *models.Post, acc *models.SocialAccount) (string, error)
}

type twitterService struct {
	cfg        config.Config
	tokens     TokenService
	media      MediaService
	pm         repository.PostMediaRepository
	httpClient *http.Client
}

func NewTwitterService(
	cfg config.Config,
	tokens TokenService,
	media MediaService,
	pm repository.PostMediaRepository) TwitterService {
	return &twitterService{
		cfg:        cfg,
		tokens:     tokens,
		media:      media,
		pm:         pm,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (s *twitterService) HandlePost(ctx context.Context, post *models.Post, acc *models.SocialAccount) (string, error) {
	accessToken, err := s.tokens.EnsureFreshToken(ctx, acc)
	if err != nil {
		return "", err
	}

	payload := transfer.TweetRequest{Text: post.Caption}

	mediaCount, err := s.pm.CountByPostID(ctx, post.ID)
	if err != nil {
		return "", err
	}

	if mediaCount > 0 {
		signedClient, err := s.tokens.SigningClient(ctx, acc)
		if err != nil {
			// Text-only post still goes out.
			slog.Info("signing credentials unavailable, skipping media upload",
				"post_id", post.ID, "account_id", acc.ID, "error", err.Error())
		} else {
			mediaIDs, err := s.media.UploadAll(ctx, post.ID, signedClient)
			if err != nil {
				return "", err
			}
			if len(mediaIDs) > 0 {
				payload.Media = &transfer.TweetMedia{MediaIDs: mediaIDs}
			}
		}
	}

	return s.submit(ctx, &payload, accessToken)
}

func (s *twitterService) submit(ctx context.Context, payload *transfer.TweetRequest, accessToken string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := s.cfg.Twitter.APIBaseURL + "/2/tweets"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", ClassifyResponse(resp.StatusCode, respBody)
	}

	var result transfer.TweetResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("no tweet id returned from platform")
	}

	return result.Data.ID, nil
}
