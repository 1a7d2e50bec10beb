package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageBackendLocal = "local"
	StorageBackendMinio = "minio"
)

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	MaxFileSize   int64
	LogLevel      string
	LogFormat     string

	Upload  UploadConfig
	Storage StorageConfig
	Discord DiscordConfig
	Auth    AuthConfig
}

type UploadConfig struct {
	Dir                    string
	SecretKey              string
	Passwords              []string
	FileTokenBytes         int
	OriginalFilenameLength int
	MagicBufferBytes       int
	AllowedExtensions      []string
}

type StorageConfig struct {
	Backend   string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type DiscordConfig struct {
	Webhooks []string
	Timeout  time.Duration
}

type AuthConfig struct {
	JWKSUrl      string
	Issuer       string
	Audience     string
	JWKSCacheTTL int // Cache TTL in seconds
}

// Load reads a .env file when one is present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	maxFileSize, err := strconv.ParseInt(getEnv("UPLOAD_MAX_FILE_SIZE", "10485760"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_MAX_FILE_SIZE: %w", err)
	}

	tokenBytes, err := getEnvInt("UPLOAD_FILE_TOKEN_BYTES", 8)
	if err != nil {
		return nil, err
	}
	if tokenBytes < 4 {
		return nil, fmt.Errorf("invalid UPLOAD_FILE_TOKEN_BYTES: must be at least 4, got %d", tokenBytes)
	}

	rootLength, err := getEnvInt("UPLOAD_ORIGINAL_FILENAME_LENGTH", 18)
	if err != nil {
		return nil, err
	}

	magicBytes, err := getEnvInt("UPLOAD_MAGIC_BUFFER_BYTES", 2048)
	if err != nil {
		return nil, err
	}
	if magicBytes <= 0 {
		return nil, fmt.Errorf("invalid UPLOAD_MAGIC_BUFFER_BYTES: must be positive, got %d", magicBytes)
	}

	webhookTimeout, err := time.ParseDuration(getEnv("DISCORD_WEBHOOK_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISCORD_WEBHOOK_TIMEOUT: %w", err)
	}

	jwksCacheTTL, err := getEnvInt("AUTH_JWKS_CACHE_TTL", 900)
	if err != nil {
		return nil, err
	}

	useSSL, err := strconv.ParseBool(getEnv("STORAGE_USE_SSL", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid STORAGE_USE_SSL: %w", err)
	}

	secretKey := getEnv("UPLOAD_SECRET_KEY", "")
	if secretKey == "" {
		return nil, errors.New("UPLOAD_SECRET_KEY is required")
	}

	backend := strings.ToLower(getEnv("STORAGE_BACKEND", StorageBackendLocal))
	if backend != StorageBackendLocal && backend != StorageBackendMinio {
		return nil, fmt.Errorf("invalid STORAGE_BACKEND: %q", backend)
	}

	return &Config{
		HTTPAddr:      getEnv("UPLOAD_HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(getEnv("UPLOAD_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		MaxFileSize:   maxFileSize,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		Upload: UploadConfig{
			Dir:                    getEnv("UPLOAD_DIR", "./uploads"),
			SecretKey:              secretKey,
			Passwords:              splitList(getEnv("UPLOAD_PASSWORDS", "")),
			FileTokenBytes:         tokenBytes,
			OriginalFilenameLength: rootLength,
			MagicBufferBytes:       magicBytes,
			AllowedExtensions:      splitList(getEnv("UPLOAD_ALLOWED_EXTENSIONS", "")),
		},
		Storage: StorageConfig{
			Backend:   backend,
			Endpoint:  getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("STORAGE_BUCKET", "uploads"),
			UseSSL:    useSSL,
		},
		Discord: DiscordConfig{
			Webhooks: splitList(getEnv("DISCORD_WEBHOOKS", "")),
			Timeout:  webhookTimeout,
		},
		Auth: AuthConfig{
			JWKSUrl:      getEnv("AUTH_JWKS_URL", ""),
			Issuer:       getEnv("AUTH_ISSUER", ""),
			Audience:     getEnv("AUTH_AUDIENCE", ""),
			JWKSCacheTTL: jwksCacheTTL,
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
