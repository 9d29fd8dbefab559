package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"postflow/internal/models"
)

type SettingsRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*models.NotificationSettings, bool, error)
}

type settingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) GetByUserID(ctx context.Context, userID int64) (*models.NotificationSettings, bool, error) {
	query := `SELECT id, user_id, enabled, email, notify_on_success, notify_on_failure, created_at, updated_at
		FROM notification_settings WHERE user_id = $1`
	row := r.db.QueryRowContext(ctx, query, userID)

	var settings models.NotificationSettings
	err := row.Scan(&settings.ID, &settings.UserID, &settings.Enabled, &settings.Email,
		&settings.NotifyOnSuccess, &settings.NotifyOnFailure, &settings.CreatedAt, &settings.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}

	return &settings, true, nil
}
