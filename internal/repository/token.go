package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dkopylov/modvault/internal/domain/model"
)

// TokenRepository — интерфейс для таблицы service_account_tokens.
type TokenRepository interface {
	// Create сохраняет новый токен.
	Create(ctx context.Context, token *model.ServiceAccountToken) error
	// GetByKey возвращает токен по ключу.
	GetByKey(ctx context.Context, key string) (*model.ServiceAccountToken, error)
	// DeleteForUser удаляет токены пользователя.
	// Возвращает количество удалённых записей.
	DeleteForUser(ctx context.Context, userID string) (int64, error)
}

// tokenRepo — реализация TokenRepository.
type tokenRepo struct {
	db DBTX
}

// NewTokenRepository создаёт репозиторий токенов.
func NewTokenRepository(db DBTX) TokenRepository {
	return &tokenRepo{db: db}
}

func (r *tokenRepo) Create(ctx context.Context, token *model.ServiceAccountToken) error {
	query := `
		INSERT INTO service_account_tokens (key, user_id)
		VALUES ($1, $2)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, token.Key, token.UserID).Scan(&token.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: токен для пользователя уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания токена: %w", err)
	}
	return nil
}

func (r *tokenRepo) GetByKey(ctx context.Context, key string) (*model.ServiceAccountToken, error) {
	query := `SELECT key, user_id, created_at FROM service_account_tokens WHERE key = $1`

	token := &model.ServiceAccountToken{}
	err := r.db.QueryRow(ctx, query, key).Scan(&token.Key, &token.UserID, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения токена: %w", err)
	}
	return token, nil
}

func (r *tokenRepo) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM service_account_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления токенов: %w", err)
	}
	return tag.RowsAffected(), nil
}
