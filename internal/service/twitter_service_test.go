package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	config "postflow/configs"
	"postflow/internal/models"
	"postflow/internal/transfer"
)

type fakeTokenService struct {
	token         string
	tokenErr      error
	signingClient *http.Client
	signingErr    error
	signingCalls  int
}

func (f *fakeTokenService) EnsureFreshToken(_ context.Context, _ *models.SocialAccount) (string, error) {
	return f.token, f.tokenErr
}

func (f *fakeTokenService) SigningClient(_ context.Context, _ *models.SocialAccount) (*http.Client, error) {
	f.signingCalls++
	return f.signingClient, f.signingErr
}

type fakeMediaService struct {
	ids   []string
	err   error
	calls int
}

func (f *fakeMediaService) UploadAll(_ context.Context, _ int64, _ *http.Client) ([]string, error) {
	f.calls++
	return f.ids, f.err
}

func decodeTweetRequest(t *testing.T, r *http.Request) transfer.TweetRequest {
	t.Helper()
	var req transfer.TweetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("decode tweet request: %v", err)
	}
	return req
}

func TestHandlePostTextOnly(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" {
			t.Errorf("path = %q, want /2/tweets", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer fresh-token" {
			t.Errorf("Authorization = %q", got)
		}
		req := decodeTweetRequest(t, r)
		if req.Text != "hello world" {
			t.Errorf("text = %q", req.Text)
		}
		if req.Media != nil {
			t.Error("text-only post should not carry media ids")
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"id":"1900000000000000001","text":"hello world"}}`)
	}))
	defer server.Close()

	cfg := config.Config{}
	cfg.Twitter.APIBaseURL = server.URL

	tokens := &fakeTokenService{token: "fresh-token"}
	media := &fakeMediaService{}
	svc := NewTwitterService(cfg, tokens, media, &fakePostMediaRepo{})

	tweetID, err := svc.HandlePost(context.Background(),
		&models.Post{ID: 1, Caption: "hello world"}, &models.SocialAccount{ID: 10})
	if err != nil {
		t.Fatalf("HandlePost error: %v", err)
	}
	if tweetID != "1900000000000000001" {
		t.Fatalf("tweetID = %q", tweetID)
	}
	if tokens.signingCalls != 0 || media.calls != 0 {
		t.Fatal("media path should not run for a post without attachments")
	}
}

func TestHandlePostAttachesUploadedMedia(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeTweetRequest(t, r)
		if req.Media == nil || len(req.Media.MediaIDs) != 2 {
			t.Errorf("media ids = %+v, want two", req.Media)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"id":"42","text":"with media"}}`)
	}))
	defer server.Close()

	cfg := config.Config{}
	cfg.Twitter.APIBaseURL = server.URL

	pm := &fakePostMediaRepo{medias: map[int64][]*models.PostMedia{
		5: {{PostID: 5, AssetID: 1, MediaKind: models.MediaKindPhoto}},
	}}
	tokens := &fakeTokenService{token: "tok", signingClient: http.DefaultClient}
	media := &fakeMediaService{ids: []string{"m1", "m2"}}
	svc := NewTwitterService(cfg, tokens, media, pm)

	tweetID, err := svc.HandlePost(context.Background(),
		&models.Post{ID: 5, Caption: "with media"}, &models.SocialAccount{ID: 10})
	if err != nil {
		t.Fatalf("HandlePost error: %v", err)
	}
	if tweetID != "42" {
		t.Fatalf("tweetID = %q", tweetID)
	}
	if media.calls != 1 {
		t.Fatalf("UploadAll calls = %d, want 1", media.calls)
	}
}

func TestHandlePostFallsBackToTextWithoutSigningKeys(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeTweetRequest(t, r)
		if req.Media != nil {
			t.Error("post should go out without media when signing keys are missing")
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"id":"77","text":"degraded"}}`)
	}))
	defer server.Close()

	cfg := config.Config{}
	cfg.Twitter.APIBaseURL = server.URL

	pm := &fakePostMediaRepo{medias: map[int64][]*models.PostMedia{
		6: {{PostID: 6, AssetID: 1, MediaKind: models.MediaKindPhoto}},
	}}
	tokens := &fakeTokenService{token: "tok", signingErr: errors.New("account is missing signing credentials")}
	media := &fakeMediaService{ids: []string{"never"}}
	svc := NewTwitterService(cfg, tokens, media, pm)

	tweetID, err := svc.HandlePost(context.Background(),
		&models.Post{ID: 6, Caption: "degraded"}, &models.SocialAccount{ID: 10})
	if err != nil {
		t.Fatalf("HandlePost error: %v", err)
	}
	if tweetID != "77" {
		t.Fatalf("tweetID = %q", tweetID)
	}
	if media.calls != 0 {
		t.Fatal("UploadAll should be skipped without a signing client")
	}
}

func TestHandlePostClassifiesPlatformRejection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"errors":[{"code":187,"message":"Status is a duplicate."}]}`)
	}))
	defer server.Close()

	cfg := config.Config{}
	cfg.Twitter.APIBaseURL = server.URL

	svc := NewTwitterService(cfg, &fakeTokenService{token: "tok"}, &fakeMediaService{}, &fakePostMediaRepo{})

	_, err := svc.HandlePost(context.Background(),
		&models.Post{ID: 9, Caption: "again"}, &models.SocialAccount{ID: 10})
	if err == nil {
		t.Fatal("expected a publish error")
	}

	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("error type = %T, want *PublishError", err)
	}
	if pubErr.Category != CategoryDuplicateContent {
		t.Fatalf("Category = %s, want %s", pubErr.Category, CategoryDuplicateContent)
	}
	if pubErr.StatusCode != http.StatusForbidden {
		t.Fatalf("StatusCode = %d, want 403", pubErr.StatusCode)
	}
}
