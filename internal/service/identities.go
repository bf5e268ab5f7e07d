// identities.go — бизнес-логика uploader identities.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dkopylov/modvault/internal/domain/model"
	"github.com/dkopylov/modvault/internal/domain/roles"
	"github.com/dkopylov/modvault/internal/repository"
)

// IdentityService — сервис управления uploader identities и их членством.
type IdentityService struct {
	tx         *repository.TxRunner
	users      repository.UserRepository
	identities repository.UploaderIdentityRepository
	logger     *slog.Logger
}

// NewIdentityService создаёт сервис управления uploader identities.
func NewIdentityService(
	tx *repository.TxRunner,
	users repository.UserRepository,
	identities repository.UploaderIdentityRepository,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		tx:         tx,
		users:      users,
		identities: identities,
		logger:     logger.With(slog.String("component", "identities")),
	}
}

// Create создаёт uploader identity. Создатель становится её owner.
func (s *IdentityService) Create(ctx context.Context, creator *model.User, name string) (*model.UploaderIdentity, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: имя identity не задано", ErrValidation)
	}

	identity := &model.UploaderIdentity{
		ID:   uuid.NewString(),
		Name: name,
	}
	member := &model.UploaderIdentityMember{
		ID:         uuid.NewString(),
		IdentityID: identity.ID,
		UserID:     creator.ID,
		Role:       roles.RoleOwner,
	}

	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		identityRepo := repository.NewUploaderIdentityRepository(tx)
		if err := identityRepo.Create(ctx, identity); err != nil {
			return err
		}
		return identityRepo.AddMember(ctx, member)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("ошибка создания identity: %w", err)
	}

	s.logger.Info("создана uploader identity",
		slog.String("identity", identity.Name),
		slog.String("actor", creator.Username))
	return identity, nil
}

// Get возвращает identity по имени, если actor в ней состоит.
// Identity, в которой actor не состоит, неотличима от несуществующей.
func (s *IdentityService) Get(ctx context.Context, actor *model.User, name string) (*model.UploaderIdentity, error) {
	identity, err := s.identities.GetByNameForUser(ctx, name, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return identity, nil
}

// ListForUser возвращает identity, в которых состоит пользователь.
func (s *IdentityService) ListForUser(ctx context.Context, user *model.User) ([]*model.UploaderIdentity, error) {
	return s.identities.ListForUser(ctx, user.ID)
}

// AddMember добавляет пользователя username в identity name с ролью role.
// Добавлять участников может только owner.
func (s *IdentityService) AddMember(ctx context.Context, actor *model.User, name, username, role string) (*model.UploaderIdentityMember, error) {
	if !roles.IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	identity, err := s.identities.GetByNameForUser(ctx, name, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	actorRole, err := s.identities.GetMemberRole(ctx, identity.ID, actor.ID)
	if err != nil {
		return nil, err
	}
	if actorRole != roles.RoleOwner {
		return nil, ErrForbidden
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	member := &model.UploaderIdentityMember{
		ID:         uuid.NewString(),
		IdentityID: identity.ID,
		UserID:     user.ID,
		Role:       role,
	}
	if err := s.identities.AddMember(ctx, member); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("ошибка добавления участника: %w", err)
	}

	s.logger.Info("добавлен участник identity",
		slog.String("identity", identity.Name),
		slog.String("username", username),
		slog.String("role", role),
		slog.String("actor", actor.Username))
	return member, nil
}

// ListMembers возвращает участников identity, видимых actor.
func (s *IdentityService) ListMembers(ctx context.Context, actor *model.User, name string) ([]*model.UploaderIdentityMember, error) {
	identity, err := s.identities.GetByNameForUser(ctx, name, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.identities.ListMembers(ctx, identity.ID)
}
