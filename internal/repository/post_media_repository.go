package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"postflow/internal/models"
)

type PostMediaRepository interface {
	ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error)
	CountByPostID(ctx context.Context, postID int64) (int, error)
}

type postMediaRepository struct {
	db *sql.DB
}

func NewPostMediaRepository(db *sql.DB) PostMediaRepository {
	return &postMediaRepository{db: db}
}

func (r *postMediaRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error) {
	query := `SELECT post_id, asset_id, media_kind, display_order, created_at
		FROM post_media WHERE post_id = $1 ORDER BY display_order`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var medias []*models.PostMedia
	for rows.Next() {
		var pm models.PostMedia
		err := rows.Scan(&pm.PostID, &pm.AssetID, &pm.MediaKind, &pm.DisplayOrder, &pm.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		medias = append(medias, &pm)
	}
	return medias, rows.Err()
}

func (r *postMediaRepository) CountByPostID(ctx context.Context, postID int64) (int, error) {
	query := `SELECT COUNT(*) FROM post_media WHERE post_id = $1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, postID).Scan(&count); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return count, nil
}
