// Пакет config — загрузка и валидация конфигурации filevault
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые алгоритмы подписи локальных токенов.
var validJWTAlgorithms = map[string]bool{
	"HS256": true,
	"HS384": true,
	"HS512": true,
}

// Config содержит все параметры конфигурации filevault.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// --- Хранилище ---

	// Корневая директория хранения файлов
	StorageDir string
	// Максимальный размер загружаемого файла (байт)
	MaxUploadSize int64
	// Максимальный размер исходного файла для сборки архива в памяти (байт)
	ArchiveMaxSourceSize int64
	// Количество одновременных сборок архивов
	ArchiveWorkers int

	// --- Политика скачивания ---

	// Скачивание только владельцем файла
	DownloadOwnerOnly bool
	// Учитывать флаг is_downloadable
	DownloadRespectFlag bool

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// Максимальное количество соединений в пуле
	DBMaxConns int

	// --- JWT ---

	// Секрет для подписи локальных токенов
	JWTSecretKey string
	// Алгоритм подписи (HS256, HS384, HS512)
	JWTAlgorithm string
	// Время жизни access token
	JWTAccessTokenTTL time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// URL JWKS внешнего IdP (опционально, RS256)
	JWKSUrl string
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Стоимость bcrypt
	BcryptCost int

	// --- Кэш метаданных ---

	CacheSize int
	CacheTTL  time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
	DephealthIsEntry       bool
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
//
//nolint:gocyclo,cyclop // линейный разбор переменных окружения
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// FV_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("FV_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("FV_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FV_PORT: порт вне диапазона 1-65535: %d", cfg.Port)
	}

	// FV_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FV_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FV_LOG_LEVEL: %w", err)
	}

	// FV_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FV_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FV_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	// FV_HTTP_READ_TIMEOUT — таймаут чтения (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("FV_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_HTTP_READ_TIMEOUT: %w", err)
	}

	// FV_HTTP_WRITE_TIMEOUT — таймаут записи (по умолчанию 5m, архивы собираются до ответа)
	cfg.HTTPWriteTimeout, err = getEnvDuration("FV_HTTP_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FV_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// FV_HTTP_IDLE_TIMEOUT — таймаут простоя (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("FV_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// FV_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 10s)
	cfg.ShutdownTimeout, err = getEnvDuration("FV_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Хранилище ---

	// FV_STORAGE_DIR — корневая директория файлов (по умолчанию ./storage)
	cfg.StorageDir = getEnvDefault("FV_STORAGE_DIR", "./storage")

	// FV_MAX_UPLOAD_SIZE — лимит загрузки (по умолчанию 1 GiB)
	cfg.MaxUploadSize, err = getEnvSize("FV_MAX_UPLOAD_SIZE", 1<<30)
	if err != nil {
		return nil, fmt.Errorf("FV_MAX_UPLOAD_SIZE: %w", err)
	}

	// FV_ARCHIVE_MAX_SOURCE_SIZE — лимит исходного файла для архивации (по умолчанию 256 MiB)
	cfg.ArchiveMaxSourceSize, err = getEnvSize("FV_ARCHIVE_MAX_SOURCE_SIZE", 256<<20)
	if err != nil {
		return nil, fmt.Errorf("FV_ARCHIVE_MAX_SOURCE_SIZE: %w", err)
	}

	// FV_ARCHIVE_WORKERS — параллельные сборки архивов (по умолчанию GOMAXPROCS)
	cfg.ArchiveWorkers, err = getEnvInt("FV_ARCHIVE_WORKERS", runtime.GOMAXPROCS(0))
	if err != nil {
		return nil, fmt.Errorf("FV_ARCHIVE_WORKERS: %w", err)
	}
	if cfg.ArchiveWorkers < 1 {
		return nil, fmt.Errorf("FV_ARCHIVE_WORKERS: значение должно быть >= 1")
	}

	// --- Политика скачивания ---

	// FV_DOWNLOAD_OWNER_ONLY — скачивание только владельцем (по умолчанию false)
	cfg.DownloadOwnerOnly, err = getEnvBool("FV_DOWNLOAD_OWNER_ONLY", false)
	if err != nil {
		return nil, fmt.Errorf("FV_DOWNLOAD_OWNER_ONLY: %w", err)
	}

	// FV_DOWNLOAD_RESPECT_FLAG — проверять is_downloadable (по умолчанию false)
	cfg.DownloadRespectFlag, err = getEnvBool("FV_DOWNLOAD_RESPECT_FLAG", false)
	if err != nil {
		return nil, fmt.Errorf("FV_DOWNLOAD_RESPECT_FLAG: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("FV_DB_HOST"); err != nil {
		return nil, err
	}

	// FV_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("FV_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("FV_DB_PORT: %w", err)
	}

	if cfg.DBName, err = getEnvRequired("FV_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("FV_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("FV_DB_PASSWORD"); err != nil {
		return nil, err
	}

	// FV_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("FV_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("FV_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// FV_DB_MAX_CONNS — размер пула (по умолчанию 10)
	cfg.DBMaxConns, err = getEnvInt("FV_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("FV_DB_MAX_CONNS: %w", err)
	}

	// --- JWT ---

	if cfg.JWTSecretKey, err = getEnvRequired("FV_JWT_SECRET_KEY"); err != nil {
		return nil, err
	}

	// FV_JWT_ALGORITHM — алгоритм подписи (по умолчанию HS256)
	cfg.JWTAlgorithm = strings.ToUpper(getEnvDefault("FV_JWT_ALGORITHM", "HS256"))
	if !validJWTAlgorithms[cfg.JWTAlgorithm] {
		return nil, fmt.Errorf("FV_JWT_ALGORITHM: недопустимый алгоритм %q, допустимые: HS256, HS384, HS512", cfg.JWTAlgorithm)
	}

	// FV_JWT_ACCESS_TOKEN_TTL — время жизни токена (по умолчанию 30m)
	cfg.JWTAccessTokenTTL, err = getEnvPositiveDuration("FV_JWT_ACCESS_TOKEN_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FV_JWT_ACCESS_TOKEN_TTL: %w", err)
	}

	// FV_JWT_LEEWAY — отклонение времени (по умолчанию 5s)
	cfg.JWTLeeway, err = getEnvDuration("FV_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_JWT_LEEWAY: %w", err)
	}

	// FV_JWKS_URL — JWKS внешнего IdP (опционально)
	cfg.JWKSUrl = os.Getenv("FV_JWKS_URL")

	// FV_JWKS_REFRESH_INTERVAL — обновление JWKS (по умолчанию 15m)
	cfg.JWKSRefreshInterval, err = getEnvPositiveDuration("FV_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FV_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// FV_BCRYPT_COST — стоимость bcrypt (по умолчанию 10)
	cfg.BcryptCost, err = getEnvInt("FV_BCRYPT_COST", 10)
	if err != nil {
		return nil, fmt.Errorf("FV_BCRYPT_COST: %w", err)
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("FV_BCRYPT_COST: значение вне диапазона 4-31: %d", cfg.BcryptCost)
	}

	// --- Кэш ---

	// FV_CACHE_SIZE — размер LRU-кэша метаданных (по умолчанию 1000)
	cfg.CacheSize, err = getEnvInt("FV_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("FV_CACHE_SIZE: %w", err)
	}

	// FV_CACHE_TTL — TTL записи кэша (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvPositiveDuration("FV_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FV_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("FV_DEPHEALTH_GROUP", "filevault")

	cfg.DephealthCheckInterval, err = getEnvPositiveDuration("FV_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	cfg.DephealthIsEntry, err = getEnvBool("FV_DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("FV_DEPHEALTH_ISENTRY: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s pool_max_conns=%d",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode, c.DBMaxConns,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для метрик и логов).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
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

// getEnvSize возвращает размер в байтах. Поддерживаются суффиксы
// KB, MB, GB (степени 1024) и число без суффикса.
func getEnvSize(key string, defaultVal int64) (int64, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	n, err := parseSize(val)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// parseSize разбирает строку размера: "1024", "512KB", "256MB", "1GB".
func parseSize(s string) (int64, error) {
	upper := strings.ToUpper(s)
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if strings.HasSuffix(upper, unit.suffix) {
			multiplier = unit.mult
			upper = strings.TrimSpace(strings.TrimSuffix(upper, unit.suffix))
			break
		}
	}

	n, err := strconv.ParseInt(upper, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("некорректный размер: %q (примеры: 1048576, 512KB, 256MB, 1GB)", s)
	}
	return n * multiplier, nil
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

// getEnvPositiveDuration — как getEnvDuration, но значение должно быть > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
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
