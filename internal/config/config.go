// Пакет config — загрузка и валидация конфигурации File Service
// из переменных окружения (и опционального .env файла).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранилища метаданных.
const (
	MetadataMemory   = "memory"
	MetadataPostgres = "postgres"
	MetadataMongo    = "mongo"
)

// Бэкенды blob-хранилища.
const (
	BlobLocal  = "local"
	BlobBucket = "bucket"
	BlobS3     = "s3"
)

// Бэкенды кэша FileRecord.
const (
	CacheLRU   = "lru"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// defaultAllowedMIMETypes — типы, разрешённые для загрузки по умолчанию.
var defaultAllowedMIMETypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"text/plain",
	"text/markdown",
	"text/csv",
	"application/pdf",
	"application/json",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// googleSecureTokenJWKS — JWKS, которым подписаны Firebase ID tokens.
const googleSecureTokenJWKS = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

// Config содержит все параметры конфигурации File Service.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Префикс API маршрутов (например, "/api")
	APIPrefix string
	// Идентификатор сервиса (вершина графа topologymetrics)
	ServiceID string

	// Максимальный размер файла в байтах
	MaxFileSize int64
	// Максимальное количество файлов у одного владельца
	MaxFilesPerOwner int
	// Разрешённые MIME-типы
	AllowedMIMETypes []string
	// Срок хранения загрузок и данных досок
	RetentionPeriod time.Duration
	// Интервал фоновой очистки (0 — только по внешнему вызову)
	SweepInterval time.Duration
	// Общий секрет для endpoint очистки
	ServiceKey string
	// Базовый публичный URL blob-хранилища (опционально)
	PublicBaseURL string

	// URL JWKS endpoint для проверки токенов
	JWKSUrl string
	// Ожидаемый iss (пусто — не проверяется)
	JWTIssuer string
	// Ожидаемый aud (пусто — не проверяется)
	JWTAudience string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration

	// Бэкенд метаданных: memory, postgres, mongo
	MetadataBackend string
	// PostgreSQL
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// MongoDB
	MongoURI      string
	MongoDatabase string

	// Бэкенд blob-хранилища: local, bucket, s3
	BlobBackend string
	// Корневая директория local бэкенда
	DataDir string
	// URL бакета gocloud (gs://, file://, mem://)
	BucketURL string
	// S3
	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	S3ForcePathStyle bool

	// Кэш FileRecord: lru, redis, none
	CacheBackend string
	CacheSize    int
	CacheTTL     time.Duration
	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Разрешённые CORS origins
	CORSAllowedOrigins []string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Если существует файл FS_ENV_FILE (по умолчанию .env), его значения
// подставляются для переменных, не заданных в окружении.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvDefault("FS_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// FS_PORT — порт HTTP-сервера (по умолчанию 4000)
	cfg.Port, err = getEnvInt("FS_PORT", 4000)
	if err != nil {
		return nil, fmt.Errorf("FS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// FS_API_PREFIX — префикс API (по умолчанию /api)
	cfg.APIPrefix = "/" + strings.Trim(getEnvDefault("FS_API_PREFIX", "/api"), "/")
	if cfg.APIPrefix == "/" {
		cfg.APIPrefix = ""
	}

	cfg.ServiceID = getEnvDefault("FS_SERVICE_ID", "file-service")

	// FS_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 10 MiB)
	cfg.MaxFileSize, err = getEnvInt64("FS_MAX_FILE_SIZE", 10*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("FS_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("FS_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// FS_MAX_FILES_PER_OWNER — квота файлов на владельца (по умолчанию 5)
	cfg.MaxFilesPerOwner, err = getEnvInt("FS_MAX_FILES_PER_OWNER", 5)
	if err != nil {
		return nil, fmt.Errorf("FS_MAX_FILES_PER_OWNER: %w", err)
	}
	if cfg.MaxFilesPerOwner <= 0 {
		return nil, fmt.Errorf("FS_MAX_FILES_PER_OWNER: значение должно быть положительным")
	}

	// FS_ALLOWED_MIME_TYPES — список через запятую
	cfg.AllowedMIMETypes = getEnvList("FS_ALLOWED_MIME_TYPES", defaultAllowedMIMETypes)
	if len(cfg.AllowedMIMETypes) == 0 {
		return nil, fmt.Errorf("FS_ALLOWED_MIME_TYPES: список не может быть пустым")
	}

	// FS_RETENTION_PERIOD — срок хранения (по умолчанию 15 дней)
	cfg.RetentionPeriod, err = getEnvDuration("FS_RETENTION_PERIOD", 15*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FS_RETENTION_PERIOD: %w", err)
	}
	if cfg.RetentionPeriod <= 0 {
		return nil, fmt.Errorf("FS_RETENTION_PERIOD: значение должно быть положительным")
	}

	// FS_SWEEP_INTERVAL — интервал фоновой очистки (по умолчанию выключена)
	cfg.SweepInterval, err = getEnvDuration("FS_SWEEP_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("FS_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepInterval < 0 {
		return nil, fmt.Errorf("FS_SWEEP_INTERVAL: значение не может быть отрицательным")
	}

	cfg.ServiceKey = getEnvDefault("FS_SERVICE_KEY", "")

	cfg.PublicBaseURL = strings.TrimRight(getEnvDefault("FS_PUBLIC_BASE_URL", ""), "/")
	if cfg.PublicBaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.PublicBaseURL); err != nil {
			return nil, fmt.Errorf("FS_PUBLIC_BASE_URL: некорректный URL %q", cfg.PublicBaseURL)
		}
	}

	// --- Аутентификация ---

	cfg.JWKSUrl = getEnvDefault("FS_JWKS_URL", googleSecureTokenJWKS)
	projectID := getEnvDefault("FS_FIREBASE_PROJECT_ID", "")
	defaultIssuer, defaultAudience := "", ""
	if projectID != "" {
		defaultIssuer = "https://securetoken.google.com/" + projectID
		defaultAudience = projectID
	}
	cfg.JWTIssuer = getEnvDefault("FS_JWT_ISSUER", defaultIssuer)
	cfg.JWTAudience = getEnvDefault("FS_JWT_AUDIENCE", defaultAudience)

	cfg.JWTLeeway, err = getEnvDuration("FS_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FS_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("FS_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FS_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("FS_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FS_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// --- Хранилище метаданных ---

	cfg.MetadataBackend = getEnvDefault("FS_METADATA_BACKEND", MetadataMemory)
	switch cfg.MetadataBackend {
	case MetadataMemory:
	case MetadataPostgres:
		if cfg.DBHost, err = getEnvRequired("FS_DB_HOST"); err != nil {
			return nil, err
		}
		if cfg.DBPort, err = getEnvInt("FS_DB_PORT", 5432); err != nil {
			return nil, fmt.Errorf("FS_DB_PORT: %w", err)
		}
		if cfg.DBName, err = getEnvRequired("FS_DB_NAME"); err != nil {
			return nil, err
		}
		if cfg.DBUser, err = getEnvRequired("FS_DB_USER"); err != nil {
			return nil, err
		}
		cfg.DBPassword = getEnvDefault("FS_DB_PASSWORD", "")
		cfg.DBSSLMode = getEnvDefault("FS_DB_SSL_MODE", "disable")
	case MetadataMongo:
		if cfg.MongoURI, err = getEnvRequired("FS_MONGO_URI"); err != nil {
			return nil, err
		}
		cfg.MongoDatabase = getEnvDefault("FS_MONGO_DATABASE", "files")
	default:
		return nil, fmt.Errorf("FS_METADATA_BACKEND: недопустимое значение %q, допустимые: memory, postgres, mongo",
			cfg.MetadataBackend)
	}

	// --- Blob-хранилище ---

	cfg.BlobBackend = getEnvDefault("FS_BLOB_BACKEND", BlobLocal)
	switch cfg.BlobBackend {
	case BlobLocal:
		cfg.DataDir = getEnvDefault("FS_DATA_DIR", "./data")
	case BlobBucket:
		if cfg.BucketURL, err = getEnvRequired("FS_BUCKET_URL"); err != nil {
			return nil, err
		}
	case BlobS3:
		if cfg.S3Bucket, err = getEnvRequired("FS_S3_BUCKET"); err != nil {
			return nil, err
		}
		cfg.S3Region = getEnvDefault("FS_S3_REGION", "us-east-1")
		cfg.S3Endpoint = getEnvDefault("FS_S3_ENDPOINT", "")
		if cfg.S3ForcePathStyle, err = getEnvBool("FS_S3_FORCE_PATH_STYLE", false); err != nil {
			return nil, fmt.Errorf("FS_S3_FORCE_PATH_STYLE: %w", err)
		}
	default:
		return nil, fmt.Errorf("FS_BLOB_BACKEND: недопустимое значение %q, допустимые: local, bucket, s3",
			cfg.BlobBackend)
	}

	// --- Кэш ---

	cfg.CacheBackend = getEnvDefault("FS_CACHE_BACKEND", CacheLRU)
	if cfg.CacheSize, err = getEnvInt("FS_CACHE_SIZE", 1000); err != nil {
		return nil, fmt.Errorf("FS_CACHE_SIZE: %w", err)
	}
	if cfg.CacheTTL, err = getEnvDuration("FS_CACHE_TTL", 30*time.Second); err != nil {
		return nil, fmt.Errorf("FS_CACHE_TTL: %w", err)
	}
	switch cfg.CacheBackend {
	case CacheNone:
	case CacheLRU:
		if cfg.CacheSize <= 0 {
			return nil, fmt.Errorf("FS_CACHE_SIZE: значение должно быть положительным")
		}
	case CacheRedis:
		if cfg.RedisAddr, err = getEnvRequired("FS_REDIS_ADDR"); err != nil {
			return nil, err
		}
		cfg.RedisPassword = getEnvDefault("FS_REDIS_PASSWORD", "")
		if cfg.RedisDB, err = getEnvInt("FS_REDIS_DB", 0); err != nil {
			return nil, fmt.Errorf("FS_REDIS_DB: %w", err)
		}
	default:
		return nil, fmt.Errorf("FS_CACHE_BACKEND: недопустимое значение %q, допустимые: lru, redis, none",
			cfg.CacheBackend)
	}

	cfg.CORSAllowedOrigins = getEnvList("FS_CORS_ALLOWED_ORIGINS",
		[]string{"http://localhost:3000", "https://localhost:3000"})

	// --- Логирование ---

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FS_LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = getEnvDefault("FS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP-сервер ---

	if cfg.HTTPReadTimeout, err = getEnvDuration("FS_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("FS_HTTP_READ_TIMEOUT: %w", err)
	}
	// WriteTimeout 0 — скачивание больших файлов не обрывается
	if cfg.HTTPWriteTimeout, err = getEnvDuration("FS_HTTP_WRITE_TIMEOUT", 0); err != nil {
		return nil, fmt.Errorf("FS_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("FS_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("FS_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("FS_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("FS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- topologymetrics ---

	if cfg.DephealthCheckInterval, err = getEnvDuration("FS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("FS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("FS_DEPHEALTH_GROUP", "file-service")

	return cfg, nil
}

// DatabaseDSN возвращает DSN для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		c.dbUserInfo(), c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf("pgx5://%s@%s:%d/%s?sslmode=%s",
		c.dbUserInfo(), c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// DatabaseURLRedacted — DSN без пароля, для логов и меток topologymetrics.
func (c *Config) DatabaseURLRedacted() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", url.PathEscape(c.DBUser), c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) dbUserInfo() string {
	if c.DBPassword == "" {
		return url.User(c.DBUser).String()
	}
	return url.UserPassword(c.DBUser, c.DBPassword).String()
}

// MaxFileSizeMB — лимит размера в мегабайтах (для /upload/health).
func (c *Config) MaxFileSizeMB() int64 {
	return c.MaxFileSize / (1024 * 1024)
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

// loadEnvFile подгружает .env файл, если он существует.
// Уже заданные переменные окружения не перезаписываются.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("FS_ENV_FILE: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("FS_ENV_FILE: ошибка чтения %s: %w", path, err)
	}
	return nil
}

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

// getEnvList разбирает список через запятую, пустые элементы отбрасываются.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), defaultVal...)
	}
	var result []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
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

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает bool значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 360h)", val)
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
