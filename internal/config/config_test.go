package config

import (
	"log/slog"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"MV_DB_HOST":     "localhost",
		"MV_DB_NAME":     "modvault",
		"MV_DB_USER":     "modvault",
		"MV_DB_PASSWORD": "secret",
		"MV_OIDC_URL":    "https://auth.modvault.dev",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8000 {
		t.Errorf("Port = %d, ожидается 8000", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, ожидается disable", cfg.DBSSLMode)
	}
	if cfg.OIDCRealm != "modvault" {
		t.Errorf("OIDCRealm = %q, ожидается modvault", cfg.OIDCRealm)
	}
	if cfg.JWTIssuer != "https://auth.modvault.dev/realms/modvault" {
		t.Errorf("JWTIssuer = %q, ожидается авто-вычисленный issuer", cfg.JWTIssuer)
	}
	if cfg.JWTJWKSURL != "https://auth.modvault.dev/realms/modvault/protocol/openid-connect/certs" {
		t.Errorf("JWTJWKSURL = %q, ожидается авто-вычисленный JWKS URL", cfg.JWTJWKSURL)
	}
	if cfg.CommunityCacheSize != 1024 {
		t.Errorf("CommunityCacheSize = %d, ожидается 1024", cfg.CommunityCacheSize)
	}
	if cfg.CommunityCacheTTL != 5*time.Minute {
		t.Errorf("CommunityCacheTTL = %v, ожидается 5m", cfg.CommunityCacheTTL)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval = %v, ожидается 15s", cfg.DephealthCheckInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	required := []string{"MV_DB_HOST", "MV_DB_NAME", "MV_DB_USER", "MV_DB_PASSWORD", "MV_OIDC_URL"}

	for _, missing := range required {
		t.Run(missing, func(t *testing.T) {
			envs := minimalEnvs()
			envs[missing] = ""
			setEnvs(t, envs)

			if _, err := Load(); err == nil {
				t.Errorf("Load() без %s должен возвращать ошибку", missing)
			}
		})
	}
}

func TestLoad_PortOutOfRange(t *testing.T) {
	envs := minimalEnvs()
	envs["MV_PORT"] = "9090"
	setEnvs(t, envs)

	if _, err := Load(); err == nil {
		t.Error("Load() с портом вне диапазона 8000-8009 должен возвращать ошибку")
	}
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	envs := minimalEnvs()
	envs["MV_LOG_FORMAT"] = "xml"
	setEnvs(t, envs)

	if _, err := Load(); err == nil {
		t.Error("Load() с недопустимым форматом логов должен возвращать ошибку")
	}
}

func TestLoad_TrailingSlashTrimmed(t *testing.T) {
	envs := minimalEnvs()
	envs["MV_OIDC_URL"] = "https://auth.modvault.dev/"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.OIDCURL != "https://auth.modvault.dev" {
		t.Errorf("OIDCURL = %q, trailing slash должен убираться", cfg.OIDCURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	envs := minimalEnvs()
	envs["MV_PORT"] = "8003"
	envs["MV_LOG_LEVEL"] = "debug"
	envs["MV_LOG_FORMAT"] = "text"
	envs["MV_COMMUNITY_CACHE_TTL"] = "30s"
	envs["MV_JWT_ISSUER"] = "https://sso.example.com/realms/mods"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.Port != 8003 {
		t.Errorf("Port = %d, ожидается 8003", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.CommunityCacheTTL != 30*time.Second {
		t.Errorf("CommunityCacheTTL = %v, ожидается 30s", cfg.CommunityCacheTTL)
	}
	if cfg.JWTIssuer != "https://sso.example.com/realms/mods" {
		t.Errorf("JWTIssuer = %q, явное значение должно иметь приоритет", cfg.JWTIssuer)
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.local",
		DBPort:     5433,
		DBName:     "modvault",
		DBUser:     "mv",
		DBPassword: "pw",
		DBSSLMode:  "require",
	}

	want := "host=db.local port=5433 dbname=modvault user=mv password=pw sslmode=require"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, хотели %q", got, want)
	}
}
