package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dkopylov/modvault/internal/api/middleware"
	"github.com/dkopylov/modvault/internal/domain/model"
	"github.com/dkopylov/modvault/internal/domain/roles"
	"github.com/dkopylov/modvault/internal/repository"
	"github.com/dkopylov/modvault/internal/service"
)

// --- In-memory реализации репозиториев для тестов обработчиков ---

type memStore struct {
	users       map[string]*model.User
	identities  map[string]*model.UploaderIdentity
	members     []*model.UploaderIdentityMember
	accounts    map[string]*model.ServiceAccount
	communities map[string]*model.Community
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]*model.User{},
		identities:  map[string]*model.UploaderIdentity{},
		accounts:    map[string]*model.ServiceAccount{},
		communities: map[string]*model.Community{},
	}
}

type memUserRepo struct{ s *memStore }

func (r *memUserRepo) Create(_ context.Context, u *model.User) error {
	u.CreatedAt = time.Now()
	r.s.users[u.ID] = u
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range r.s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) GetByOIDCSubject(_ context.Context, subject string) (*model.User, error) {
	for _, u := range r.s.users {
		if u.OIDCSubject != nil && *u.OIDCSubject == subject {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) UpdateFirstName(_ context.Context, id, firstName string) error {
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.FirstName = firstName
	return nil
}

func (r *memUserRepo) Delete(_ context.Context, id string) error {
	delete(r.s.users, id)
	return nil
}

type memIdentityRepo struct{ s *memStore }

func (r *memIdentityRepo) Create(_ context.Context, identity *model.UploaderIdentity) error {
	for _, existing := range r.s.identities {
		if existing.Name == identity.Name {
			return repository.ErrConflict
		}
	}
	identity.CreatedAt = time.Now()
	r.s.identities[identity.ID] = identity
	return nil
}

func (r *memIdentityRepo) GetByID(_ context.Context, id string) (*model.UploaderIdentity, error) {
	identity, ok := r.s.identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return identity, nil
}

func (r *memIdentityRepo) GetByName(_ context.Context, name string) (*model.UploaderIdentity, error) {
	for _, identity := range r.s.identities {
		if identity.Name == name {
			return identity, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memIdentityRepo) GetByNameForUser(ctx context.Context, name, userID string) (*model.UploaderIdentity, error) {
	identity, err := r.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, m := range r.s.members {
		if m.IdentityID == identity.ID && m.UserID == userID {
			return identity, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memIdentityRepo) ListForUser(_ context.Context, userID string) ([]*model.UploaderIdentity, error) {
	var result []*model.UploaderIdentity
	for _, m := range r.s.members {
		if m.UserID == userID {
			result = append(result, r.s.identities[m.IdentityID])
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *memIdentityRepo) AddMember(_ context.Context, m *model.UploaderIdentityMember) error {
	for _, existing := range r.s.members {
		if existing.IdentityID == m.IdentityID && existing.UserID == m.UserID {
			return repository.ErrConflict
		}
	}
	m.CreatedAt = time.Now()
	r.s.members = append(r.s.members, m)
	return nil
}

func (r *memIdentityRepo) GetMemberRole(_ context.Context, identityID, userID string) (string, error) {
	for _, m := range r.s.members {
		if m.IdentityID == identityID && m.UserID == userID {
			return m.Role, nil
		}
	}
	return "", repository.ErrNotFound
}

func (r *memIdentityRepo) ListMembers(_ context.Context, identityID string) ([]*model.UploaderIdentityMember, error) {
	var result []*model.UploaderIdentityMember
	for _, m := range r.s.members {
		if m.IdentityID == identityID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *memIdentityRepo) HasMemberWithRole(ctx context.Context, identityID, userID, role string) (bool, error) {
	got, err := r.GetMemberRole(ctx, identityID, userID)
	if err != nil {
		return false, nil
	}
	return got == role, nil
}

type memServiceAccountRepo struct{ s *memStore }

func (r *memServiceAccountRepo) Create(_ context.Context, sa *model.ServiceAccount) error {
	sa.CreatedAt = time.Now()
	r.s.accounts[sa.ID] = sa
	return nil
}

func (r *memServiceAccountRepo) GetByID(_ context.Context, id string) (*model.ServiceAccount, error) {
	sa, ok := r.s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return sa, nil
}

func (r *memServiceAccountRepo) GetByIDForUser(ctx context.Context, id, userID string) (*model.ServiceAccount, error) {
	sa, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, m := range r.s.members {
		if m.IdentityID == sa.IdentityID && m.UserID == userID {
			return sa, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memServiceAccountRepo) GetByUserID(_ context.Context, userID string) (*model.ServiceAccount, error) {
	for _, sa := range r.s.accounts {
		if sa.UserID == userID {
			return sa, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memServiceAccountRepo) ListByIdentity(_ context.Context, identityID string) ([]*model.ServiceAccount, error) {
	var result []*model.ServiceAccount
	for _, sa := range r.s.accounts {
		if sa.IdentityID == identityID {
			result = append(result, sa)
		}
	}
	return result, nil
}

func (r *memServiceAccountRepo) UpdateNickname(_ context.Context, id, nickname string) error {
	sa, ok := r.s.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	sa.Nickname = nickname
	return nil
}

func (r *memServiceAccountRepo) TouchLastUsed(_ context.Context, userID string) error {
	for _, sa := range r.s.accounts {
		if sa.UserID == userID {
			now := time.Now()
			sa.LastUsed = &now
		}
	}
	return nil
}

type memTokenRepo struct{}

func (r *memTokenRepo) Create(_ context.Context, token *model.ServiceAccountToken) error {
	token.CreatedAt = time.Now()
	return nil
}

func (r *memTokenRepo) GetByKey(_ context.Context, _ string) (*model.ServiceAccountToken, error) {
	return nil, repository.ErrNotFound
}

func (r *memTokenRepo) DeleteForUser(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

type memCommunityRepo struct{ s *memStore }

func (r *memCommunityRepo) Create(_ context.Context, c *model.Community) error {
	c.DatetimeCreated = time.Now()
	r.s.communities[c.Identifier] = c
	return nil
}

func (r *memCommunityRepo) GetByIdentifier(_ context.Context, identifier string) (*model.Community, error) {
	c, ok := r.s.communities[identifier]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (r *memCommunityRepo) List(_ context.Context, _, _ int) ([]*model.Community, error) {
	var result []*model.Community
	for _, c := range r.s.communities {
		if c.IsListed {
			result = append(result, c)
		}
	}
	return result, nil
}

// --- Сборка обработчика поверх in-memory слоя ---

type handlerEnv struct {
	store   *memStore
	handler *APIHandler
	router  chi.Router
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	users := &memUserRepo{s: store}
	identities := &memIdentityRepo{s: store}
	accounts := &memServiceAccountRepo{s: store}
	tokens := &memTokenRepo{}
	communities := &memCommunityRepo{s: store}

	// TxRunner не нужен: тесты обработчиков не доходят до транзакционных Save
	saSvc := service.NewServiceAccountService(nil, users, identities, accounts, tokens, logger)
	identitySvc := service.NewIdentityService(nil, users, identities, logger)
	communitySvc := service.NewCommunityService(communities, 16, time.Minute, logger)
	userSvc := service.NewUserService(users, identities, accounts, logger)

	h := NewAPIHandler(NewHealthHandler(nil, nil), saSvc, identitySvc, communitySvc, userSvc, logger)

	router := chi.NewRouter()
	router.Get("/api/cyberstorm/community/{community_id}/", h.GetCommunity)
	router.Get("/api/experimental/current-user/", h.GetCurrentUser)
	router.Post("/api/v1/service-accounts", h.CreateServiceAccount)
	router.Get("/api/v1/service-accounts", h.ListServiceAccounts)

	return &handlerEnv{store: store, handler: h, router: router}
}

// do выполняет запрос; user != nil кладётся в контекст, имитируя middleware.
func (e *handlerEnv) do(t *testing.T, method, path, body string, user *model.User) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	if user != nil {
		req = req.WithContext(context.WithValue(req.Context(), middleware.ContextKeyUser, user))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *handlerEnv) addUser(username string) *model.User {
	u := &model.User{ID: uuid.NewString(), Username: username, CreatedAt: time.Now()}
	e.store.users[u.ID] = u
	return u
}

func (e *handlerEnv) addIdentity(name string, owner *model.User) *model.UploaderIdentity {
	identity := &model.UploaderIdentity{ID: uuid.NewString(), Name: name, CreatedAt: time.Now()}
	e.store.identities[identity.ID] = identity
	e.store.members = append(e.store.members, &model.UploaderIdentityMember{
		ID:         uuid.NewString(),
		IdentityID: identity.ID,
		UserID:     owner.ID,
		Role:       roles.RoleOwner,
		CreatedAt:  time.Now(),
	})
	return identity
}

// validationBody разбирает тело ответа 400 VALIDATION_ERROR.
type validationBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Fields map[string][]string `json:"fields"`
}

// --- Тесты ---

func TestGetCommunityHandler(t *testing.T) {
	env := newHandlerEnv(t)
	env.store.communities["riskofrain2"] = &model.Community{
		ID:         uuid.NewString(),
		Identifier: "riskofrain2",
		Name:       "Risk of Rain 2",
		IsListed:   true,
	}
	env.store.communities["hidden-game"] = &model.Community{
		ID:         uuid.NewString(),
		Identifier: "hidden-game",
		Name:       "Hidden Game",
		IsListed:   false,
	}

	rec := env.do(t, http.MethodGet, "/api/cyberstorm/community/riskofrain2/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидалось 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("невалидный JSON: %v", err)
	}
	if resp["name"] != "Risk of Rain 2" {
		t.Errorf("name = %v, ожидалось %q", resp["name"], "Risk of Rain 2")
	}

	// Unlisted доступно по прямой ссылке
	rec = env.do(t, http.MethodGet, "/api/cyberstorm/community/hidden-game/", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("статус(unlisted) = %d, ожидалось 200", rec.Code)
	}

	// Несуществующее — 404 с envelope
	rec = env.do(t, http.MethodGet, "/api/cyberstorm/community/nope/", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("статус(несуществующее) = %d, ожидалось 404", rec.Code)
	}
	var errResp validationBody
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("невалидный JSON ошибки: %v", err)
	}
	if errResp.Error.Code != "NOT_FOUND" {
		t.Errorf("code = %q, ожидалось NOT_FOUND", errResp.Error.Code)
	}
}

func TestCreateServiceAccountHandlerValidation(t *testing.T) {
	env := newHandlerEnv(t)
	owner := env.addUser("owner")
	outsider := env.addUser("outsider")
	env.addIdentity("MyTeam", owner)

	// Без аутентификации — 401
	rec := env.do(t, http.MethodPost, "/api/v1/service-accounts",
		`{"identity":"MyTeam","nickname":"bot"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус(без auth) = %d, ожидалось 401", rec.Code)
	}

	// Некорректный JSON — 400
	rec = env.do(t, http.MethodPost, "/api/v1/service-accounts", `{broken`, owner)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус(битый JSON) = %d, ожидалось 400", rec.Code)
	}

	// Чужая identity — 400 с ошибкой выбора в fields
	rec = env.do(t, http.MethodPost, "/api/v1/service-accounts",
		`{"identity":"MyTeam","nickname":"bot"}`, outsider)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус(чужая identity) = %d, ожидалось 400", rec.Code)
	}
	var resp validationBody
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("невалидный JSON: %v", err)
	}
	if resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q, ожидалось VALIDATION_ERROR", resp.Error.Code)
	}
	want := "Select a valid choice. That choice is not one of the available choices."
	if len(resp.Fields["identity"]) != 1 || resp.Fields["identity"][0] != want {
		t.Errorf("fields[identity] = %v, ожидалось [%q]", resp.Fields["identity"], want)
	}

	// Длинный nickname — точное сообщение с количеством символов
	rec = env.do(t, http.MethodPost, "/api/v1/service-accounts",
		`{"identity":"MyTeam","nickname":"`+strings.Repeat("x", 33)+`"}`, owner)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус(длинный nickname) = %d, ожидалось 400", rec.Code)
	}
	resp = validationBody{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("невалидный JSON: %v", err)
	}
	wantNick := "Ensure this value has at most 32 characters (it has 33)."
	if len(resp.Fields["nickname"]) != 1 || resp.Fields["nickname"][0] != wantNick {
		t.Errorf("fields[nickname] = %v, ожидалось [%q]", resp.Fields["nickname"], wantNick)
	}
}

func TestListServiceAccountsHandler(t *testing.T) {
	env := newHandlerEnv(t)
	owner := env.addUser("list-owner")
	outsider := env.addUser("list-outsider")
	identity := env.addIdentity("ListTeam", owner)

	saUser := env.addUser("list-sa-user")
	env.store.accounts["sa-1"] = &model.ServiceAccount{
		ID:         "sa-1",
		IdentityID: identity.ID,
		UserID:     saUser.ID,
		Nickname:   "list-bot",
		CreatedAt:  time.Now(),
	}

	rec := env.do(t, http.MethodGet, "/api/v1/service-accounts?identity=ListTeam", "", owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидалось 200", rec.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("невалидный JSON: %v", err)
	}
	if len(list) != 1 || list[0]["nickname"] != "list-bot" {
		t.Errorf("list = %v, ожидался один аккаунт list-bot", list)
	}

	// Не-участник: identity неотличима от несуществующей — 404
	rec = env.do(t, http.MethodGet, "/api/v1/service-accounts?identity=ListTeam", "", outsider)
	if rec.Code != http.StatusNotFound {
		t.Errorf("статус(не-участник) = %d, ожидалось 404", rec.Code)
	}

	// Без параметра identity — 400
	rec = env.do(t, http.MethodGet, "/api/v1/service-accounts", "", owner)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус(без identity) = %d, ожидалось 400", rec.Code)
	}
}

func TestGetCurrentUserHandler(t *testing.T) {
	env := newHandlerEnv(t)
	user := env.addUser("current-user")
	env.addIdentity("CurTeam", user)

	rec := env.do(t, http.MethodGet, "/api/experimental/current-user/", "", user)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидалось 200", rec.Code)
	}

	var resp struct {
		Username     string            `json:"username"`
		Capabilities []string          `json:"capabilities"`
		TeamRoles    map[string]string `json:"team_roles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("невалидный JSON: %v", err)
	}
	if resp.Username != "current-user" {
		t.Errorf("username = %q, ожидалось %q", resp.Username, "current-user")
	}
	hasUpload := false
	for _, c := range resp.Capabilities {
		if c == "package.upload" {
			hasUpload = true
		}
	}
	if !hasUpload {
		t.Errorf("capabilities = %v, ожидалось наличие package.upload", resp.Capabilities)
	}
	if resp.TeamRoles["CurTeam"] != "owner" {
		t.Errorf("team_roles[CurTeam] = %q, ожидалось owner", resp.TeamRoles["CurTeam"])
	}

	// Без аутентификации — 401
	rec = env.do(t, http.MethodGet, "/api/experimental/current-user/", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус(без auth) = %d, ожидалось 401", rec.Code)
	}
}
