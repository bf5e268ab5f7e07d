package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dkopylov/modvault/internal/domain/model"
)

// ServiceAccountRepository — интерфейс CRUD для таблицы service_accounts.
type ServiceAccountRepository interface {
	// Create создаёт новый сервисный аккаунт.
	Create(ctx context.Context, sa *model.ServiceAccount) error
	// GetByID возвращает сервисный аккаунт по UUID.
	GetByID(ctx context.Context, id string) (*model.ServiceAccount, error)
	// GetByIDForUser возвращает сервисный аккаунт по UUID, ограничиваясь
	// аккаунтами identity, в которых user состоит. Для не-членов
	// возвращает ErrNotFound — существование аккаунта не раскрывается.
	GetByIDForUser(ctx context.Context, id, userID string) (*model.ServiceAccount, error)
	// GetByUserID возвращает сервисный аккаунт по UUID связанного пользователя.
	GetByUserID(ctx context.Context, userID string) (*model.ServiceAccount, error)
	// ListByIdentity возвращает сервисные аккаунты identity.
	ListByIdentity(ctx context.Context, identityID string) ([]*model.ServiceAccount, error)
	// UpdateNickname обновляет nickname сервисного аккаунта.
	UpdateNickname(ctx context.Context, id, nickname string) error
	// TouchLastUsed обновляет last_used по UUID связанного пользователя.
	// created_at не затрагивается.
	TouchLastUsed(ctx context.Context, userID string) error
}

// serviceAccountRepo — реализация ServiceAccountRepository.
type serviceAccountRepo struct {
	db DBTX
}

// NewServiceAccountRepository создаёт репозиторий сервисных аккаунтов.
func NewServiceAccountRepository(db DBTX) ServiceAccountRepository {
	return &serviceAccountRepo{db: db}
}

const saColumns = `id, identity_id, user_id, nickname, created_at, last_used`

// scanServiceAccount сканирует строку результата в модель ServiceAccount.
func scanServiceAccount(row pgx.Row) (*model.ServiceAccount, error) {
	sa := &model.ServiceAccount{}
	err := row.Scan(
		&sa.ID, &sa.IdentityID, &sa.UserID, &sa.Nickname, &sa.CreatedAt, &sa.LastUsed,
	)
	return sa, err
}

func (r *serviceAccountRepo) Create(ctx context.Context, sa *model.ServiceAccount) error {
	query := `
		INSERT INTO service_accounts (id, identity_id, user_id, nickname)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		sa.ID, sa.IdentityID, sa.UserID, sa.Nickname,
	).Scan(&sa.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: сервисный аккаунт уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания сервисного аккаунта: %w", err)
	}
	return nil
}

func (r *serviceAccountRepo) GetByID(ctx context.Context, id string) (*model.ServiceAccount, error) {
	query := fmt.Sprintf(`SELECT %s FROM service_accounts WHERE id = $1`, saColumns)
	sa, err := scanServiceAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сервисного аккаунта: %w", err)
	}
	return sa, nil
}

func (r *serviceAccountRepo) GetByIDForUser(ctx context.Context, id, userID string) (*model.ServiceAccount, error) {
	query := `
		SELECT sa.id, sa.identity_id, sa.user_id, sa.nickname, sa.created_at, sa.last_used
		FROM service_accounts sa
		JOIN uploader_identity_members m ON m.identity_id = sa.identity_id
		WHERE sa.id = $1 AND m.user_id = $2`

	sa, err := scanServiceAccount(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сервисного аккаунта для пользователя: %w", err)
	}
	return sa, nil
}

func (r *serviceAccountRepo) GetByUserID(ctx context.Context, userID string) (*model.ServiceAccount, error) {
	query := fmt.Sprintf(`SELECT %s FROM service_accounts WHERE user_id = $1`, saColumns)
	sa, err := scanServiceAccount(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сервисного аккаунта по user_id: %w", err)
	}
	return sa, nil
}

func (r *serviceAccountRepo) ListByIdentity(ctx context.Context, identityID string) ([]*model.ServiceAccount, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM service_accounts
		WHERE identity_id = $1
		ORDER BY created_at DESC`, saColumns)

	rows, err := r.db.Query(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка сервисных аккаунтов: %w", err)
	}
	defer rows.Close()

	var result []*model.ServiceAccount
	for rows.Next() {
		sa := &model.ServiceAccount{}
		if err := rows.Scan(
			&sa.ID, &sa.IdentityID, &sa.UserID, &sa.Nickname, &sa.CreatedAt, &sa.LastUsed,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сервисного аккаунта: %w", err)
		}
		result = append(result, sa)
	}
	return result, rows.Err()
}

func (r *serviceAccountRepo) UpdateNickname(ctx context.Context, id, nickname string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE service_accounts SET nickname = $2 WHERE id = $1`, id, nickname)
	if err != nil {
		return fmt.Errorf("ошибка обновления nickname: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *serviceAccountRepo) TouchLastUsed(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE service_accounts SET last_used = now() WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("ошибка обновления last_used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
