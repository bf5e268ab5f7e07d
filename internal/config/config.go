// Пакет config — загрузка и валидация конфигурации modvault
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации modvault.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- OIDC (аутентификация живых пользователей) ---

	// URL OIDC-провайдера (например, https://auth.modvault.dev)
	OIDCURL string
	// Имя realm у провайдера
	OIDCRealm string
	// Issuer JWT (авто-вычисляется из OIDCURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из OIDCURL, если не задан)
	JWTJWKSURL string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал фонового обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Путь к CA-сертификату для TLS-соединений с провайдером (опционально)
	OIDCCACertPath string

	// --- Кэш сообществ ---

	// Максимальное количество записей в LRU-кэше сообществ
	CommunityCacheSize int
	// TTL записи кэша сообществ
	CommunityCacheTTL time.Duration

	// --- Мониторинг зависимостей ---

	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// MV_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("MV_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("MV_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("MV_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	// MV_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MV_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MV_LOG_LEVEL: %w", err)
	}

	// MV_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("MV_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MV_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// MV_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("MV_DB_HOST")
	if err != nil {
		return nil, err
	}

	// MV_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("MV_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("MV_DB_PORT: %w", err)
	}

	// MV_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("MV_DB_NAME")
	if err != nil {
		return nil, err
	}

	// MV_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("MV_DB_USER")
	if err != nil {
		return nil, err
	}

	// MV_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("MV_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// MV_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("MV_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("MV_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- OIDC ---

	// MV_OIDC_URL — обязательный
	cfg.OIDCURL, err = getEnvRequired("MV_OIDC_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.OIDCURL = strings.TrimRight(cfg.OIDCURL, "/")

	// MV_OIDC_REALM — realm (по умолчанию modvault)
	cfg.OIDCRealm = getEnvDefault("MV_OIDC_REALM", "modvault")

	// MV_JWT_ISSUER — авто-вычисляется из OIDCURL, если не задан
	cfg.JWTIssuer = getEnvDefault("MV_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.OIDCURL, cfg.OIDCRealm))

	// MV_JWT_JWKS_URL — авто-вычисляется из OIDCURL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("MV_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.OIDCURL, cfg.OIDCRealm))

	// MV_JWKS_CLIENT_TIMEOUT — таймаут HTTP-клиента JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("MV_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MV_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// MV_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 1h)
	cfg.JWKSRefreshInterval, err = getEnvDuration("MV_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MV_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// MV_JWT_LEEWAY — отклонение времени при проверке JWT (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("MV_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MV_JWT_LEEWAY: %w", err)
	}

	// MV_OIDC_CA_CERT_PATH — путь к CA-сертификату провайдера (опционально)
	cfg.OIDCCACertPath = getEnvDefault("MV_OIDC_CA_CERT_PATH", "")

	// --- Кэш сообществ ---

	// MV_COMMUNITY_CACHE_SIZE — размер LRU-кэша (по умолчанию 1024)
	cfg.CommunityCacheSize, err = getEnvInt("MV_COMMUNITY_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("MV_COMMUNITY_CACHE_SIZE: %w", err)
	}
	if cfg.CommunityCacheSize < 1 || cfg.CommunityCacheSize > 100000 {
		return nil, fmt.Errorf("MV_COMMUNITY_CACHE_SIZE: значение %d вне допустимого диапазона 1-100000", cfg.CommunityCacheSize)
	}

	// MV_COMMUNITY_CACHE_TTL — TTL записи кэша (по умолчанию 5m)
	cfg.CommunityCacheTTL, err = getEnvDuration("MV_COMMUNITY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MV_COMMUNITY_CACHE_TTL: %w", err)
	}

	// --- Мониторинг зависимостей ---

	// MV_DEPHEALTH_GROUP — группа topologymetrics (по умолчанию modvault)
	cfg.DephealthGroup = getEnvDefault("MV_DEPHEALTH_GROUP", "modvault")

	// MV_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("MV_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MV_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// MV_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("MV_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MV_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL
// (используется в лейблах метрик topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
