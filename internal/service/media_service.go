package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/h2non/filetype"

	config "postflow/configs"
	"postflow/internal/models"
	"postflow/internal/repository"
	"postflow/internal/transfer"
)

// ObjectStore fetches stored media bytes by key. R2Service satisfies it.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

type MediaService interface {
	// UploadAll runs the per-asset upload loop for a post and returns the
	// media ids of the uploads that succeeded, in display order. Individual
	// asset failures are logged and skipped; the error return is reserved
	// for not being able to list the post's media at all.
	UploadAll(ctx context.Context, postID int64, signedClient *http.Client) ([]string, error)
}

type mediaService struct {
	cfg        config.Config
	pm         repository.PostMediaRepository
	ma         repository.MediaAssetRepository
	store      ObjectStore
	httpClient *http.Client
}

func NewMediaService(
	cfg config.Config,
	pm repository.PostMediaRepository,
	ma repository.MediaAssetRepository,
	store ObjectStore) MediaService {
	return &mediaService{
		cfg:        cfg,
		pm:         pm,
		ma:         ma,
		store:      store,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Per-asset upload states.
const (
	uploadPending  = "pending"
	uploadUploaded = "uploaded"
	uploadFailed   = "failed"
)

type assetUpload struct {
	media   *models.PostMedia
	status  string
	mediaID string
	err     error
}

func (s *mediaService) UploadAll(ctx context.Context, postID int64, signedClient *http.Client) ([]string, error) {
	medias, err := s.pm.ListByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}

	uploads := make([]*assetUpload, 0, len(medias))
	for _, pm := range medias {
		uploads = append(uploads, &assetUpload{media: pm, status: uploadPending})
	}

	for _, u := range uploads {
		if mediaID, err := s.uploadOne(ctx, u.media, signedClient); err != nil {
			u.status = uploadFailed
			u.err = err
			slog.Info("media upload failed, skipping asset",
				"post_id", postID, "asset_id", u.media.AssetID, "error", err.Error())
		} else {
			u.status = uploadUploaded
			u.mediaID = mediaID
		}
	}

	var mediaIDs []string
	for _, u := range uploads {
		if u.status == uploadUploaded {
			mediaIDs = append(mediaIDs, u.mediaID)
		}
	}
	return mediaIDs, nil
}

func (s *mediaService) uploadOne(ctx context.Context, pm *models.PostMedia, signedClient *http.Client) (string, error) {
	asset, err := s.ma.GetByID(ctx, pm.AssetID)
	if err != nil {
		return "", err
	}
	if asset == nil || asset.FileURL == "" {
		return "", fmt.Errorf("media asset %d is missing or incomplete", pm.AssetID)
	}

	data, err := s.fetch(ctx, asset.FileURL)
	if err != nil {
		return "", fmt.Errorf("fetch asset bytes: %w", err)
	}

	mimeType, err := mediaMIMEType(pm.MediaKind, asset.FileName, data)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.Twitter.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mimeType)

	resp, err := signedClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", ClassifyResponse(resp.StatusCode, body)
	}

	var result transfer.MediaUploadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.MediaIDString == "" {
		return "", fmt.Errorf("no media id returned from upload endpoint")
	}

	return result.MediaIDString, nil
}

// fetch resolves an asset reference to raw bytes. r2:// keys come out of
// the object store; anything else is treated as a URL, relative paths
// joined against the public base URL.
func (s *mediaService) fetch(ctx context.Context, ref string) ([]byte, error) {
	if key, ok := strings.CutPrefix(ref, "r2://"); ok {
		return s.store.Download(ctx, key)
	}

	fileURL := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		fileURL = strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + strings.TrimPrefix(ref, "/")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d fetching %s", resp.StatusCode, fileURL)
	}
	return io.ReadAll(resp.Body)
}

// mediaMIMEType maps a media kind and file extension to the MIME type the
// upload endpoint requires, sniffing the bytes when the extension is not
// in the table.
func mediaMIMEType(kind, fileName string, data []byte) (string, error) {
	ext := strings.ToLower(path.Ext(fileName))

	switch kind {
	case models.MediaKindPhoto:
		switch ext {
		case ".jpg", ".jpeg":
			return "image/jpeg", nil
		case ".png":
			return "image/png", nil
		case ".webp":
			return "image/webp", nil
		case ".gif":
			return "image/gif", nil
		}
	case models.MediaKindGif:
		return "image/gif", nil
	case models.MediaKindVideo:
		switch ext {
		case ".mp4":
			return "video/mp4", nil
		case ".webm":
			return "video/webm", nil
		case ".mov":
			return "video/quicktime", nil
		}
	default:
		return "", fmt.Errorf("unsupported media kind %q", kind)
	}

	if t, err := filetype.Match(data); err == nil && t.MIME.Value != "" {
		return t.MIME.Value, nil
	}
	return "", fmt.Errorf("cannot determine MIME type for %q (kind %s)", fileName, kind)
}
