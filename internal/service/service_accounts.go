// service_accounts.go — бизнес-логика сервисных аккаунтов.
//
// Операции оформлены как формы: форма валидируется (IsValid), собирая все
// ошибки по полям, и только после успешной валидации сохраняется (Save).
// Тексты ошибок валидации — пользовательские сообщения API на английском,
// их точные формулировки являются частью контракта.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dkopylov/modvault/internal/domain/model"
	"github.com/dkopylov/modvault/internal/domain/roles"
	"github.com/dkopylov/modvault/internal/repository"
)

// Пользовательские сообщения об ошибках валидации.
const (
	msgMustBeOwnerCreate = "Must be an owner to create a service account"
	msgMustBeOwnerDelete = "Must be an owner to delete a service account"
	msgMustBeOwnerEdit   = "Must be an owner to edit a service account"
	msgMustBeOwnerToken  = "Must be an owner to generate a service account token"
	msgInvalidChoice     = "Select a valid choice. That choice is not one of the available choices."
	msgFieldRequired     = "This field is required."
)

// nicknameMaxLength — максимальная длина nickname в символах.
const nicknameMaxLength = 32

// FieldErrors — ошибки валидации, сгруппированные по полям формы.
type FieldErrors map[string][]string

// Add добавляет ошибку к полю.
func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// HasErrors сообщает, есть ли хотя бы одна ошибка.
func (f FieldErrors) HasErrors() bool {
	return len(f) > 0
}

// validateNickname проверяет nickname и добавляет ошибки в errs.
func validateNickname(nickname string, errs FieldErrors) {
	if nickname == "" {
		errs.Add("nickname", msgFieldRequired)
		return
	}
	if n := utf8.RuneCountInString(nickname); n > nicknameMaxLength {
		errs.Add("nickname", fmt.Sprintf(
			"Ensure this value has at most %d characters (it has %d).", nicknameMaxLength, n))
	}
}

// ServiceAccountService — сервис управления сервисными аккаунтами.
type ServiceAccountService struct {
	tx              *repository.TxRunner
	users           repository.UserRepository
	identities      repository.UploaderIdentityRepository
	serviceAccounts repository.ServiceAccountRepository
	tokens          repository.TokenRepository
	logger          *slog.Logger
}

// NewServiceAccountService создаёт сервис управления сервисными аккаунтами.
func NewServiceAccountService(
	tx *repository.TxRunner,
	users repository.UserRepository,
	identities repository.UploaderIdentityRepository,
	serviceAccounts repository.ServiceAccountRepository,
	tokens repository.TokenRepository,
	logger *slog.Logger,
) *ServiceAccountService {
	return &ServiceAccountService{
		tx:              tx,
		users:           users,
		identities:      identities,
		serviceAccounts: serviceAccounts,
		tokens:          tokens,
		logger:          logger.With(slog.String("component", "service_accounts")),
	}
}

// ListForIdentity возвращает сервисные аккаунты identity, видимые пользователю.
// Identity, в которой пользователь не состоит, неотличима от несуществующей.
func (s *ServiceAccountService) ListForIdentity(ctx context.Context, user *model.User, identityName string) ([]*model.ServiceAccount, error) {
	identity, err := s.identities.GetByNameForUser(ctx, identityName, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.serviceAccounts.ListByIdentity(ctx, identity.ID)
}

// Get возвращает сервисный аккаунт по ID, видимый пользователю.
func (s *ServiceAccountService) Get(ctx context.Context, user *model.User, id string) (*model.ServiceAccount, error) {
	sa, err := s.serviceAccounts.GetByIDForUser(ctx, id, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sa, nil
}

// AuthenticateToken аутентифицирует запрос по opaque токену сервисного
// аккаунта. Возвращает синтетического пользователя аккаунта и обновляет
// last_used: каждое аутентифицированное использование токена фиксируется.
func (s *ServiceAccountService) AuthenticateToken(ctx context.Context, key string) (*model.User, error) {
	token, err := s.tokens.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения пользователя токена: %w", err)
	}

	if err := s.serviceAccounts.TouchLastUsed(ctx, token.UserID); err != nil {
		// аутентификация не ломается из-за ошибки обновления метки
		s.logger.Warn("не удалось обновить last_used сервисного аккаунта",
			slog.String("user_id", token.UserID),
			slog.String("error", err.Error()))
	}
	return user, nil
}

// requireOwner проверяет, что user — owner identity, и добавляет ошибку
// валидации в errs, если это не так.
func (s *ServiceAccountService) requireOwner(ctx context.Context, identityID string, user *model.User, field, message string, errs FieldErrors) error {
	role, err := s.identities.GetMemberRole(ctx, identityID, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// member-запись исчезла между запросами
			errs.Add(field, message)
			return nil
		}
		return err
	}
	if !roles.CanManageServiceAccounts(role) {
		errs.Add(field, message)
	}
	return nil
}

// resolveServiceAccount находит сервисный аккаунт, видимый пользователю.
// Невидимый или несуществующий аккаунт даёт одну и ту же ошибку выбора:
// наличие чужих сервисных аккаунтов не раскрывается.
func (s *ServiceAccountService) resolveServiceAccount(ctx context.Context, user *model.User, id, field string, errs FieldErrors) (*model.ServiceAccount, error) {
	if id == "" {
		errs.Add(field, msgFieldRequired)
		return nil, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		errs.Add(field, msgInvalidChoice)
		return nil, nil
	}
	sa, err := s.serviceAccounts.GetByIDForUser(ctx, id, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			errs.Add(field, msgInvalidChoice)
			return nil, nil
		}
		return nil, err
	}
	return sa, nil
}

// CreateServiceAccountForm — форма создания сервисного аккаунта.
type CreateServiceAccountForm struct {
	svc  *ServiceAccountService
	user *model.User

	// Identity — имя uploader identity
	Identity string
	// Nickname — человекочитаемое имя аккаунта
	Nickname string

	errs      FieldErrors
	validated bool
	identity  *model.UploaderIdentity
}

// NewCreateForm создаёт форму создания сервисного аккаунта от имени user.
func (s *ServiceAccountService) NewCreateForm(user *model.User, identityName, nickname string) *CreateServiceAccountForm {
	return &CreateServiceAccountForm{
		svc:      s,
		user:     user,
		Identity: identityName,
		Nickname: nickname,
		errs:     FieldErrors{},
	}
}

// IsValid валидирует форму, собирая все ошибки по полям.
func (f *CreateServiceAccountForm) IsValid(ctx context.Context) (bool, error) {
	f.validated = true
	validateNickname(f.Nickname, f.errs)

	if f.Identity == "" {
		f.errs.Add("identity", msgFieldRequired)
		return !f.errs.HasErrors(), nil
	}

	identity, err := f.svc.identities.GetByNameForUser(ctx, f.Identity, f.user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// identity не существует или пользователь в ней не состоит —
			// оба случая выглядят одинаково
			f.errs.Add("identity", msgInvalidChoice)
			return false, nil
		}
		return false, err
	}
	f.identity = identity

	if err := f.svc.requireOwner(ctx, identity.ID, f.user, "identity", msgMustBeOwnerCreate, f.errs); err != nil {
		return false, err
	}
	return !f.errs.HasErrors(), nil
}

// Errors возвращает ошибки валидации по полям.
func (f *CreateServiceAccountForm) Errors() FieldErrors { return f.errs }

// Save создаёт сервисный аккаунт вместе с синтетическим пользователем.
// Вызов до успешной валидации — ошибка программирования.
func (f *CreateServiceAccountForm) Save(ctx context.Context) (*model.ServiceAccount, error) {
	if !f.validated || f.errs.HasErrors() {
		return nil, ErrValidation
	}

	saID := uuid.NewString()
	user := &model.User{
		ID:               uuid.NewString(),
		Username:         ServiceAccountUsername(uuid.MustParse(saID)),
		FirstName:        f.Nickname,
		IsServiceAccount: true,
	}
	sa := &model.ServiceAccount{
		ID:         saID,
		IdentityID: f.identity.ID,
		UserID:     user.ID,
		Nickname:   f.Nickname,
	}

	member := &model.UploaderIdentityMember{
		ID:         uuid.NewString(),
		IdentityID: f.identity.ID,
		UserID:     user.ID,
		Role:       roles.RoleMember,
	}

	err := f.svc.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := repository.NewUserRepository(tx).Create(ctx, user); err != nil {
			return fmt.Errorf("ошибка создания пользователя сервисного аккаунта: %w", err)
		}
		if err := repository.NewServiceAccountRepository(tx).Create(ctx, sa); err != nil {
			return fmt.Errorf("ошибка создания сервисного аккаунта: %w", err)
		}
		if err := repository.NewUploaderIdentityRepository(tx).AddMember(ctx, member); err != nil {
			return fmt.Errorf("ошибка добавления членства сервисного аккаунта: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.svc.logger.Info("создан сервисный аккаунт",
		slog.String("service_account_id", sa.ID),
		slog.String("identity", f.identity.Name),
		slog.String("actor", f.user.Username))
	return sa, nil
}

// DeleteServiceAccountForm — форма удаления сервисного аккаунта.
type DeleteServiceAccountForm struct {
	svc  *ServiceAccountService
	user *model.User

	// ServiceAccount — UUID удаляемого аккаунта
	ServiceAccount string

	errs      FieldErrors
	validated bool
	sa        *model.ServiceAccount
}

// NewDeleteForm создаёт форму удаления сервисного аккаунта от имени user.
func (s *ServiceAccountService) NewDeleteForm(user *model.User, serviceAccountID string) *DeleteServiceAccountForm {
	return &DeleteServiceAccountForm{
		svc:            s,
		user:           user,
		ServiceAccount: serviceAccountID,
		errs:           FieldErrors{},
	}
}

// IsValid валидирует форму.
func (f *DeleteServiceAccountForm) IsValid(ctx context.Context) (bool, error) {
	f.validated = true
	sa, err := f.svc.resolveServiceAccount(ctx, f.user, f.ServiceAccount, "service_account", f.errs)
	if err != nil {
		return false, err
	}
	if sa == nil {
		return false, nil
	}
	f.sa = sa

	if err := f.svc.requireOwner(ctx, sa.IdentityID, f.user, "service_account", msgMustBeOwnerDelete, f.errs); err != nil {
		return false, err
	}
	return !f.errs.HasErrors(), nil
}

// Errors возвращает ошибки валидации по полям.
func (f *DeleteServiceAccountForm) Errors() FieldErrors { return f.errs }

// Save удаляет сервисный аккаунт. Удаляется синтетический пользователь,
// каскад внешних ключей убирает сам аккаунт и его токен.
func (f *DeleteServiceAccountForm) Save(ctx context.Context) error {
	if !f.validated || f.errs.HasErrors() {
		return ErrValidation
	}

	if err := f.svc.users.Delete(ctx, f.sa.UserID); err != nil {
		return fmt.Errorf("ошибка удаления сервисного аккаунта: %w", err)
	}

	f.svc.logger.Info("удалён сервисный аккаунт",
		slog.String("service_account_id", f.sa.ID),
		slog.String("actor", f.user.Username))
	return nil
}

// EditServiceAccountForm — форма редактирования сервисного аккаунта.
type EditServiceAccountForm struct {
	svc  *ServiceAccountService
	user *model.User

	// ServiceAccount — UUID редактируемого аккаунта
	ServiceAccount string
	// Nickname — новое человекочитаемое имя
	Nickname string

	errs      FieldErrors
	validated bool
	sa        *model.ServiceAccount
}

// NewEditForm создаёт форму редактирования сервисного аккаунта от имени user.
func (s *ServiceAccountService) NewEditForm(user *model.User, serviceAccountID, nickname string) *EditServiceAccountForm {
	return &EditServiceAccountForm{
		svc:            s,
		user:           user,
		ServiceAccount: serviceAccountID,
		Nickname:       nickname,
		errs:           FieldErrors{},
	}
}

// IsValid валидирует форму.
func (f *EditServiceAccountForm) IsValid(ctx context.Context) (bool, error) {
	f.validated = true
	validateNickname(f.Nickname, f.errs)

	sa, err := f.svc.resolveServiceAccount(ctx, f.user, f.ServiceAccount, "service_account", f.errs)
	if err != nil {
		return false, err
	}
	if sa == nil {
		return false, nil
	}
	f.sa = sa

	if err := f.svc.requireOwner(ctx, sa.IdentityID, f.user, "service_account", msgMustBeOwnerEdit, f.errs); err != nil {
		return false, err
	}
	return !f.errs.HasErrors(), nil
}

// Errors возвращает ошибки валидации по полям.
func (f *EditServiceAccountForm) Errors() FieldErrors { return f.errs }

// Save обновляет nickname аккаунта и отображаемое имя его пользователя.
// created_at и last_used не меняются.
func (f *EditServiceAccountForm) Save(ctx context.Context) (*model.ServiceAccount, error) {
	if !f.validated || f.errs.HasErrors() {
		return nil, ErrValidation
	}

	err := f.svc.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := repository.NewServiceAccountRepository(tx).UpdateNickname(ctx, f.sa.ID, f.Nickname); err != nil {
			return fmt.Errorf("ошибка обновления сервисного аккаунта: %w", err)
		}
		if err := repository.NewUserRepository(tx).UpdateFirstName(ctx, f.sa.UserID, f.Nickname); err != nil {
			return fmt.Errorf("ошибка обновления пользователя сервисного аккаунта: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.sa.Nickname = f.Nickname
	f.svc.logger.Info("изменён сервисный аккаунт",
		slog.String("service_account_id", f.sa.ID),
		slog.String("actor", f.user.Username))
	return f.sa, nil
}

// CreateTokenForm — форма выпуска API-токена сервисного аккаунта.
type CreateTokenForm struct {
	svc  *ServiceAccountService
	user *model.User

	// ServiceAccount — UUID аккаунта, для которого выпускается токен
	ServiceAccount string

	errs      FieldErrors
	validated bool
	sa        *model.ServiceAccount
}

// NewCreateTokenForm создаёт форму выпуска токена от имени user.
func (s *ServiceAccountService) NewCreateTokenForm(user *model.User, serviceAccountID string) *CreateTokenForm {
	return &CreateTokenForm{
		svc:            s,
		user:           user,
		ServiceAccount: serviceAccountID,
		errs:           FieldErrors{},
	}
}

// IsValid валидирует форму.
func (f *CreateTokenForm) IsValid(ctx context.Context) (bool, error) {
	f.validated = true
	sa, err := f.svc.resolveServiceAccount(ctx, f.user, f.ServiceAccount, "service_account", f.errs)
	if err != nil {
		return false, err
	}
	if sa == nil {
		return false, nil
	}
	f.sa = sa

	if err := f.svc.requireOwner(ctx, sa.IdentityID, f.user, "service_account", msgMustBeOwnerToken, f.errs); err != nil {
		return false, err
	}
	return !f.errs.HasErrors(), nil
}

// Errors возвращает ошибки валидации по полям.
func (f *CreateTokenForm) Errors() FieldErrors { return f.errs }

// Save выпускает новый токен, отзывая предыдущий: в любой момент
// у сервисного аккаунта существует не более одного действующего токена.
func (f *CreateTokenForm) Save(ctx context.Context) (*model.ServiceAccountToken, error) {
	if !f.validated || f.errs.HasErrors() {
		return nil, ErrValidation
	}

	key, err := generateTokenKey()
	if err != nil {
		return nil, err
	}
	token := &model.ServiceAccountToken{
		Key:    key,
		UserID: f.sa.UserID,
	}

	err = f.svc.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		tokens := repository.NewTokenRepository(tx)
		if _, err := tokens.DeleteForUser(ctx, f.sa.UserID); err != nil {
			return fmt.Errorf("ошибка отзыва предыдущего токена: %w", err)
		}
		if err := tokens.Create(ctx, token); err != nil {
			return fmt.Errorf("ошибка сохранения токена: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.svc.logger.Info("выпущен токен сервисного аккаунта",
		slog.String("service_account_id", f.sa.ID),
		slog.String("actor", f.user.Username))
	return token, nil
}
