// auth.go — middleware аутентификации modvault.
// Поддерживает два типа bearer-credentials:
//   - OIDC JWT (RS256, подпись проверяется через JWKS провайдера) — живые
//     пользователи; запись в БД создаётся при первом входе;
//   - opaque токен сервисного аккаунта (40 hex-символов) — проверяется по БД,
//     каждое использование обновляет last_used аккаунта.
//
// Тип credentials определяется по форме токена: JWT содержит две точки.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/dkopylov/modvault/internal/api/errors"
	"github.com/dkopylov/modvault/internal/domain/model"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyUser — аутентифицированный пользователь в контексте запроса.
	ContextKeyUser contextKey = "auth_user"
)

// UserProvisioner — создание/поиск пользователя по OIDC claims.
// Реализуется service.UserService.
type UserProvisioner interface {
	EnsureOIDCUser(ctx context.Context, subject, username, firstName string) (*model.User, error)
}

// TokenAuthenticator — аутентификация по opaque токену сервисного аккаунта.
// Реализуется service.ServiceAccountService.
type TokenAuthenticator interface {
	AuthenticateToken(ctx context.Context, key string) (*model.User, error)
}

// oidcClaims — raw claims из OIDC JWT.
type oidcClaims struct {
	jwt.RegisteredClaims
	// PreferredUsername — имя пользователя.
	PreferredUsername string `json:"preferred_username"`
	// Email — электронная почта.
	Email string `json:"email"`
	// GivenName — отображаемое имя.
	GivenName string `json:"given_name,omitempty"`
}

// Auth — middleware аутентификации (OIDC JWT + токены сервисных аккаунтов).
type Auth struct {
	jwks      keyfunc.Keyfunc
	users     UserProvisioner
	saTokens  TokenAuthenticator
	issuer    string
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// NewAuth создаёт middleware аутентификации с JWKS OIDC-провайдера.
// jwksURL — URL к JWKS endpoint провайдера.
// caCertPath — опциональный путь к CA-сертификату для TLS.
// issuer — ожидаемый issuer JWT (обычно https://oidc/realms/modvault).
// jwksClientTimeout — таймаут HTTP-клиента JWKS (MV_JWKS_CLIENT_TIMEOUT).
// jwksRefreshInterval — интервал обновления JWKS-ключей (MV_JWKS_REFRESH_INTERVAL).
// jwtLeeway — допустимое отклонение времени при проверке JWT (MV_JWT_LEEWAY).
func NewAuth(
	jwksURL string,
	caCertPath string,
	issuer string,
	users UserProvisioner,
	saTokens TokenAuthenticator,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*Auth, error) {
	// HTTP-клиент для JWKS (с кастомным CA или стандартный)
	httpClient := http.DefaultClient
	if caCertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(caCertPath, jwksClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
		}
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	// JWKS Storage с фоновым обновлением.
	// NoErrorReturnFirstHTTPReq — стартуем даже если провайдер ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &Auth{
		jwks:      k,
		users:     users,
		saTokens:  saTokens,
		issuer:    issuer,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "auth")),
	}, nil
}

// NewAuthWithKeyfunc создаёт middleware аутентификации с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewAuthWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	users UserProvisioner,
	saTokens TokenAuthenticator,
	logger *slog.Logger,
) *Auth {
	return &Auth{
		jwks:     kf,
		users:    users,
		saTokens: saTokens,
		issuer:   issuer,
		logger:   logger.With(slog.String("component", "auth")),
	}
}

// httpClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: caCertPool,
			},
		},
	}, nil
}

// Middleware возвращает HTTP middleware аутентификации.
// Извлекает Bearer token, аутентифицирует субъект (JWT или SA-токен)
// и помещает *model.User в контекст запроса.
func (a *Auth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := parts[1]
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			var user *model.User
			var err error
			if strings.Count(tokenString, ".") == 2 {
				user, err = a.authenticateJWT(r.Context(), tokenString, r.RemoteAddr)
			} else {
				user, err = a.authenticateServiceAccountToken(r.Context(), tokenString)
			}
			if err != nil {
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticateJWT валидирует OIDC JWT и возвращает пользователя,
// создавая запись в БД при первом входе.
func (a *Auth) authenticateJWT(ctx context.Context, tokenString, remoteAddr string) (*model.User, error) {
	rawClaims := &oidcClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.jwtLeeway),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, rawClaims, a.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		a.logger.Debug("JWT валидация не пройдена",
			slog.String("error", err.Error()),
			slog.String("remote_addr", remoteAddr),
		)
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}

	subject, err := rawClaims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("отсутствует sub в токене")
	}

	username := rawClaims.PreferredUsername
	if username == "" {
		username = subject
	}
	return a.users.EnsureOIDCUser(ctx, subject, username, rawClaims.GivenName)
}

// saTokenLength — длина opaque токена сервисного аккаунта в hex-символах.
const saTokenLength = 40

// authenticateServiceAccountToken проверяет opaque токен по БД.
// Формат проверяется до обращения к БД: 40 символов [0-9a-f].
func (a *Auth) authenticateServiceAccountToken(ctx context.Context, tokenString string) (*model.User, error) {
	if len(tokenString) != saTokenLength || !isLowerHex(tokenString) {
		return nil, fmt.Errorf("некорректный формат токена")
	}
	return a.saTokens.AuthenticateToken(ctx, tokenString)
}

// isLowerHex проверяет, что строка состоит только из [0-9a-f].
func isLowerHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// --- Context helpers ---

// UserFromContext извлекает аутентифицированного пользователя из контекста.
// Возвращает nil, если пользователь не найден.
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(ContextKeyUser).(*model.User)
	return user
}

// --- ReadinessChecker для OIDC-провайдера ---

// OIDCReadinessChecker — проверка доступности OIDC-провайдера через JWKS.
type OIDCReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewOIDCReadinessChecker создаёт checker доступности OIDC-провайдера.
func NewOIDCReadinessChecker(jwksURL, caCertPath string, readinessTimeout time.Duration) (*OIDCReadinessChecker, error) {
	client := &http.Client{Timeout: readinessTimeout}
	if caCertPath != "" {
		var err error
		client, err = httpClientWithCA(caCertPath, readinessTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
	}

	return &OIDCReadinessChecker{
		jwksURL: jwksURL,
		client:  client,
	}, nil
}

const statusFail = "fail"

// CheckReady проверяет доступность JWKS endpoint OIDC-провайдера.
func (k *OIDCReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return statusFail, fmt.Sprintf("OIDC JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("OIDC JWKS вернул статус %d", resp.StatusCode)
	}

	// Проверяем, что ответ — валидный JSON с ключами
	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("OIDC JWKS: невалидный JSON: %v", err)
	}

	if len(jwksResp.Keys) == 0 {
		return "degraded", "OIDC JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}

// Close освобождает ресурсы middleware аутентификации.
func (a *Auth) Close() {
	// keyfunc v3 не требует явного закрытия
}
