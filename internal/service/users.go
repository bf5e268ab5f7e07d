// users.go — бизнес-логика пользователей и профиля текущего пользователя.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dkopylov/modvault/internal/domain/model"
	"github.com/dkopylov/modvault/internal/domain/roles"
	"github.com/dkopylov/modvault/internal/repository"
)

// Capability-строки текущего пользователя.
const (
	// CapabilityPackageRate — право оценивать пакеты (есть у всех
	// аутентифицированных пользователей).
	CapabilityPackageRate = "package.rate"
	// CapabilityPackageUpload — право загружать пакеты (есть у участников
	// хотя бы одной uploader identity).
	CapabilityPackageUpload = "package.upload"
)

// CurrentUserInfo — профиль текущего пользователя для API.
type CurrentUserInfo struct {
	Username     string
	Capabilities []string
	// IdentityRoles — роль пользователя в каждой identity, где он состоит.
	IdentityRoles map[string]string
}

// UserService — сервис пользователей.
type UserService struct {
	users           repository.UserRepository
	identities      repository.UploaderIdentityRepository
	serviceAccounts repository.ServiceAccountRepository
	logger          *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(
	users repository.UserRepository,
	identities repository.UploaderIdentityRepository,
	serviceAccounts repository.ServiceAccountRepository,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:           users,
		identities:      identities,
		serviceAccounts: serviceAccounts,
		logger:          logger.With(slog.String("component", "users")),
	}
}

// EnsureOIDCUser возвращает пользователя по OIDC subject, создавая запись
// при первом входе (JIT-provisioning).
func (s *UserService) EnsureOIDCUser(ctx context.Context, subject, username, firstName string) (*model.User, error) {
	user, err := s.users.GetByOIDCSubject(ctx, subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	user = &model.User{
		ID:          uuid.NewString(),
		Username:    username,
		FirstName:   firstName,
		OIDCSubject: &subject,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// параллельный первый запрос того же пользователя уже создал запись
			return s.users.GetByOIDCSubject(ctx, subject)
		}
		return nil, fmt.Errorf("ошибка создания пользователя: %w", err)
	}

	s.logger.Info("создан пользователь из OIDC",
		slog.String("username", username),
		slog.String("subject", subject))
	return user, nil
}

// CurrentUser возвращает профиль пользователя: имя, capabilities и роли
// в uploader identities.
func (s *UserService) CurrentUser(ctx context.Context, user *model.User) (*CurrentUserInfo, error) {
	info := &CurrentUserInfo{
		Username:      user.Username,
		Capabilities:  []string{CapabilityPackageRate},
		IdentityRoles: map[string]string{},
	}

	identities, err := s.identities.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения identities пользователя: %w", err)
	}
	for _, identity := range identities {
		role, err := s.identities.GetMemberRole(ctx, identity.ID, user.ID)
		if err != nil {
			return nil, err
		}
		info.IdentityRoles[identity.Name] = role
	}
	if len(identities) > 0 {
		info.Capabilities = append(info.Capabilities, CapabilityPackageUpload)
	}
	return info, nil
}

// OwnsAnyIdentity сообщает, является ли пользователь owner хотя бы одной identity.
func (s *UserService) OwnsAnyIdentity(ctx context.Context, user *model.User) (bool, error) {
	identities, err := s.identities.ListForUser(ctx, user.ID)
	if err != nil {
		return false, err
	}
	for _, identity := range identities {
		ok, err := s.identities.HasMemberWithRole(ctx, identity.ID, user.ID, roles.RoleOwner)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
