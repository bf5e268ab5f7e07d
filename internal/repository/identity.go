package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dkopylov/modvault/internal/domain/model"
)

// UploaderIdentityRepository — интерфейс для таблиц uploader_identities
// и uploader_identity_members.
type UploaderIdentityRepository interface {
	// Create создаёт новую uploader identity.
	Create(ctx context.Context, identity *model.UploaderIdentity) error
	// GetByID возвращает identity по UUID.
	GetByID(ctx context.Context, id string) (*model.UploaderIdentity, error)
	// GetByName возвращает identity по имени.
	GetByName(ctx context.Context, name string) (*model.UploaderIdentity, error)
	// GetByNameForUser возвращает identity по имени, ограничиваясь
	// identity, в которых user состоит. Для не-членов возвращает
	// ErrNotFound — наличие identity не раскрывается.
	GetByNameForUser(ctx context.Context, name, userID string) (*model.UploaderIdentity, error)
	// ListForUser возвращает identity, в которых состоит пользователь.
	ListForUser(ctx context.Context, userID string) ([]*model.UploaderIdentity, error)
	// AddMember добавляет членство (user, identity, role).
	AddMember(ctx context.Context, m *model.UploaderIdentityMember) error
	// GetMemberRole возвращает роль пользователя в identity.
	// ErrNotFound — пользователь не состоит в identity.
	GetMemberRole(ctx context.Context, identityID, userID string) (string, error)
	// ListMembers возвращает членства identity.
	ListMembers(ctx context.Context, identityID string) ([]*model.UploaderIdentityMember, error)
	// HasMemberWithRole проверяет существование членства с указанной ролью.
	HasMemberWithRole(ctx context.Context, identityID, userID, role string) (bool, error)
}

// identityRepo — реализация UploaderIdentityRepository.
type identityRepo struct {
	db DBTX
}

// NewUploaderIdentityRepository создаёт репозиторий uploader identities.
func NewUploaderIdentityRepository(db DBTX) UploaderIdentityRepository {
	return &identityRepo{db: db}
}

const identityColumns = `id, name, created_at`

// scanIdentity сканирует строку результата в модель UploaderIdentity.
func scanIdentity(row pgx.Row) (*model.UploaderIdentity, error) {
	identity := &model.UploaderIdentity{}
	err := row.Scan(&identity.ID, &identity.Name, &identity.CreatedAt)
	return identity, err
}

func (r *identityRepo) Create(ctx context.Context, identity *model.UploaderIdentity) error {
	query := `
		INSERT INTO uploader_identities (id, name)
		VALUES ($1, $2)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, identity.ID, identity.Name).Scan(&identity.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: identity с таким именем уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания identity: %w", err)
	}
	return nil
}

func (r *identityRepo) GetByID(ctx context.Context, id string) (*model.UploaderIdentity, error) {
	query := fmt.Sprintf(`SELECT %s FROM uploader_identities WHERE id = $1`, identityColumns)
	identity, err := scanIdentity(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения identity: %w", err)
	}
	return identity, nil
}

func (r *identityRepo) GetByName(ctx context.Context, name string) (*model.UploaderIdentity, error) {
	query := fmt.Sprintf(`SELECT %s FROM uploader_identities WHERE name = $1`, identityColumns)
	identity, err := scanIdentity(r.db.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения identity по имени: %w", err)
	}
	return identity, nil
}

func (r *identityRepo) GetByNameForUser(ctx context.Context, name, userID string) (*model.UploaderIdentity, error) {
	query := `
		SELECT i.id, i.name, i.created_at
		FROM uploader_identities i
		JOIN uploader_identity_members m ON m.identity_id = i.id
		WHERE i.name = $1 AND m.user_id = $2`

	identity, err := scanIdentity(r.db.QueryRow(ctx, query, name, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения identity для пользователя: %w", err)
	}
	return identity, nil
}

func (r *identityRepo) ListForUser(ctx context.Context, userID string) ([]*model.UploaderIdentity, error) {
	query := `
		SELECT i.id, i.name, i.created_at
		FROM uploader_identities i
		JOIN uploader_identity_members m ON m.identity_id = i.id
		WHERE m.user_id = $1
		ORDER BY i.name`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка identity: %w", err)
	}
	defer rows.Close()

	var result []*model.UploaderIdentity
	for rows.Next() {
		identity := &model.UploaderIdentity{}
		if err := rows.Scan(&identity.ID, &identity.Name, &identity.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования identity: %w", err)
		}
		result = append(result, identity)
	}
	return result, rows.Err()
}

func (r *identityRepo) AddMember(ctx context.Context, m *model.UploaderIdentityMember) error {
	query := `
		INSERT INTO uploader_identity_members (id, identity_id, user_id, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, m.ID, m.IdentityID, m.UserID, m.Role).Scan(&m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пользователь уже состоит в identity", ErrConflict)
		}
		return fmt.Errorf("ошибка добавления членства: %w", err)
	}
	return nil
}

func (r *identityRepo) GetMemberRole(ctx context.Context, identityID, userID string) (string, error) {
	query := `
		SELECT role FROM uploader_identity_members
		WHERE identity_id = $1 AND user_id = $2`

	var role string
	err := r.db.QueryRow(ctx, query, identityID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка получения роли членства: %w", err)
	}
	return role, nil
}

func (r *identityRepo) ListMembers(ctx context.Context, identityID string) ([]*model.UploaderIdentityMember, error) {
	query := `
		SELECT id, identity_id, user_id, role, created_at
		FROM uploader_identity_members
		WHERE identity_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения членств: %w", err)
	}
	defer rows.Close()

	var result []*model.UploaderIdentityMember
	for rows.Next() {
		m := &model.UploaderIdentityMember{}
		if err := rows.Scan(&m.ID, &m.IdentityID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования членства: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *identityRepo) HasMemberWithRole(ctx context.Context, identityID, userID, role string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM uploader_identity_members
			WHERE identity_id = $1 AND user_id = $2 AND role = $3
		)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, identityID, userID, role).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки членства: %w", err)
	}
	return exists, nil
}
