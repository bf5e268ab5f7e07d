package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dkopylov/modvault/internal/domain/model"
)

// CommunityRepository — интерфейс для таблицы communities.
type CommunityRepository interface {
	// Create создаёт новое сообщество.
	Create(ctx context.Context, c *model.Community) error
	// GetByIdentifier возвращает сообщество по внешнему идентификатору.
	// Unlisted-сообщества возвращаются наравне с listed: прямые ссылки
	// на них должны работать.
	GetByIdentifier(ctx context.Context, identifier string) (*model.Community, error)
	// List возвращает listed-сообщества с пагинацией.
	List(ctx context.Context, limit, offset int) ([]*model.Community, error)
}

// communityRepo — реализация CommunityRepository.
type communityRepo struct {
	db DBTX
}

// NewCommunityRepository создаёт репозиторий сообществ.
func NewCommunityRepository(db DBTX) CommunityRepository {
	return &communityRepo{db: db}
}

const communityColumns = `id, identifier, name, short_description, description,
	discord_url, wiki_url, is_listed, background_image_url, icon_url,
	total_package_count, total_download_count, datetime_created`

// scanCommunity сканирует строку результата в модель Community.
func scanCommunity(row pgx.Row) (*model.Community, error) {
	c := &model.Community{}
	err := row.Scan(
		&c.ID, &c.Identifier, &c.Name, &c.ShortDescription, &c.Description,
		&c.DiscordURL, &c.WikiURL, &c.IsListed, &c.BackgroundImageURL, &c.IconURL,
		&c.TotalPackageCount, &c.TotalDownloadCount, &c.DatetimeCreated,
	)
	return c, err
}

func (r *communityRepo) Create(ctx context.Context, c *model.Community) error {
	query := `
		INSERT INTO communities (id, identifier, name, short_description, description,
			discord_url, wiki_url, is_listed, background_image_url, icon_url,
			total_package_count, total_download_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING datetime_created`

	err := r.db.QueryRow(ctx, query,
		c.ID, c.Identifier, c.Name, c.ShortDescription, c.Description,
		c.DiscordURL, c.WikiURL, c.IsListed, c.BackgroundImageURL, c.IconURL,
		c.TotalPackageCount, c.TotalDownloadCount,
	).Scan(&c.DatetimeCreated)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: сообщество с таким идентификатором уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания сообщества: %w", err)
	}
	return nil
}

func (r *communityRepo) GetByIdentifier(ctx context.Context, identifier string) (*model.Community, error) {
	query := fmt.Sprintf(`SELECT %s FROM communities WHERE identifier = $1`, communityColumns)
	c, err := scanCommunity(r.db.QueryRow(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сообщества: %w", err)
	}
	return c, nil
}

func (r *communityRepo) List(ctx context.Context, limit, offset int) ([]*model.Community, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM communities
		WHERE is_listed
		ORDER BY name
		LIMIT $1 OFFSET $2`, communityColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка сообществ: %w", err)
	}
	defer rows.Close()

	var result []*model.Community
	for rows.Next() {
		c := &model.Community{}
		if err := rows.Scan(
			&c.ID, &c.Identifier, &c.Name, &c.ShortDescription, &c.Description,
			&c.DiscordURL, &c.WikiURL, &c.IsListed, &c.BackgroundImageURL, &c.IconURL,
			&c.TotalPackageCount, &c.TotalDownloadCount, &c.DatetimeCreated,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сообщества: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
