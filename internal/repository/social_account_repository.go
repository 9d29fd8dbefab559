package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"postflow/internal/models"
)

type SocialAccountRepository interface {
	GetByID(ctx context.Context, id int64) (*models.SocialAccount, error)
	SetToken(ctx context.Context, accountID int64, oldAccessToken string, sa *models.SocialAccount) error
	CountWithSigningKeys(ctx context.Context) (int, error)
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

const socialAccountColumns = `id, user_id, platform, account_id, account_name, account_username,
	access_token, refresh_token, token_type, scope, token_expires_at,
	consumer_key, consumer_secret, signing_token, signing_secret, created_at, updated_at`

func (r *socialAccountRepository) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var sa models.SocialAccount
	err := row.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.AccountID, &sa.AccountName,
		&sa.AccountUsername, &sa.AccessToken, &sa.RefreshToken, &sa.TokenType,
		&sa.Scope, &sa.TokenExpiresAt, &sa.ConsumerKey, &sa.ConsumerSecret,
		&sa.SigningToken, &sa.SigningSecret, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &sa, nil
}

// SetToken persists a refreshed token set in one transaction, guarded on
// the access token the refresh started from. Only the token service calls
// this, and only after a successful refresh.
func (r *socialAccountRepository) SetToken(ctx context.Context, accountID int64, oldAccessToken string, sa *models.SocialAccount) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	query := `
		UPDATE social_accounts
		SET
			access_token = COALESCE(NULLIF($3, ''), access_token),
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = COALESCE($5, token_expires_at),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND access_token = $2;
	`
	result, err := tx.ExecContext(ctx, query, accountID, oldAccessToken,
		sa.AccessToken, sa.RefreshToken, sa.TokenExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("no rows affected; account token changed underneath the refresh")
		return errors.New("no rows affected; account token changed underneath the refresh")
	}

	return tx.Commit()
}

// CountWithSigningKeys reports how many accounts carry the full signing
// quadruple; surfaced by the detailed status probe.
func (r *socialAccountRepository) CountWithSigningKeys(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM social_accounts
		WHERE consumer_key <> '' AND consumer_secret <> ''
		  AND signing_token <> '' AND signing_secret <> ''`

	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return count, nil
}
