package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/storage"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "MHCN"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultMaxBodyBytes    = 4 << 20
	defaultStorageBackend  = storage.BackendFilesystem
	defaultStoragePath     = "chatrooms"
	defaultDatabasePath    = "mhcn.db"
	defaultMessageLifetime = 7 * 24 * time.Hour
	defaultKeyCacheSize    = 256
	defaultCookieName      = "mhcn_session"
	defaultSessionTTL      = 30 * 24 * time.Hour
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	MaxBodyBytes    int64
	AllowedOrigins  []string
	SecureCookies   bool
	StorageBackend  string
	StoragePath     string
	DatabasePath    string
	S3              storage.S3Config
	MessageLifetime time.Duration
	KeyCacheSize    int
	SigningSecret   string
	CookieName      string
	SessionTTL      time.Duration
	LogLevel        string
	LogFormat       string
}

// Storage returns the storage backend configuration.
func (c AppConfig) Storage() storage.Config {
	return storage.Config{
		Backend:      c.StorageBackend,
		Path:         c.StoragePath,
		DatabasePath: c.DatabasePath,
		S3:           c.S3,
	}
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.max_body_bytes", defaultMaxBodyBytes)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("http.secure_cookies", false)
	configViper.SetDefault("storage.backend", defaultStorageBackend)
	configViper.SetDefault("storage.path", defaultStoragePath)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("s3.bucket", "")
	configViper.SetDefault("s3.prefix", "")
	configViper.SetDefault("s3.region", "")
	configViper.SetDefault("s3.endpoint", "")
	configViper.SetDefault("rooms.message_lifetime", defaultMessageLifetime)
	configViper.SetDefault("rooms.key_cache_size", defaultKeyCacheSize)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.ttl", defaultSessionTTL)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		MaxBodyBytes:   configViper.GetInt64("http.max_body_bytes"),
		AllowedOrigins: splitList(configViper.GetStringSlice("http.allowed_origins")),
		SecureCookies:  configViper.GetBool("http.secure_cookies"),
		StorageBackend: strings.ToLower(strings.TrimSpace(configViper.GetString("storage.backend"))),
		StoragePath:    configViper.GetString("storage.path"),
		DatabasePath:   configViper.GetString("database.path"),
		S3: storage.S3Config{
			Bucket:   configViper.GetString("s3.bucket"),
			Prefix:   configViper.GetString("s3.prefix"),
			Region:   configViper.GetString("s3.region"),
			Endpoint: configViper.GetString("s3.endpoint"),
		},
		MessageLifetime: configViper.GetDuration("rooms.message_lifetime"),
		KeyCacheSize:    configViper.GetInt("rooms.key_cache_size"),
		SigningSecret:   configViper.GetString("session.signing_secret"),
		CookieName:      configViper.GetString("session.cookie_name"),
		SessionTTL:      configViper.GetDuration("session.ttl"),
		LogLevel:        configViper.GetString("log.level"),
		LogFormat:       configViper.GetString("log.format"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// splitList accepts both list values and a single comma separated env string.
func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}

// ValidateServing checks the settings only the HTTP server needs.
func (c AppConfig) ValidateServing() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be positive")
	}
	return nil
}

func (c AppConfig) validate() error {
	if c.MessageLifetime < 0 {
		return fmt.Errorf("rooms.message_lifetime must not be negative")
	}
	if c.KeyCacheSize < 0 {
		return fmt.Errorf("rooms.key_cache_size must not be negative")
	}
	switch c.StorageBackend {
	case storage.BackendFilesystem:
		if strings.TrimSpace(c.StoragePath) == "" {
			return fmt.Errorf("storage.path is required")
		}
	case storage.BackendSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case storage.BackendS3:
		if strings.TrimSpace(c.S3.Bucket) == "" {
			return fmt.Errorf("s3.bucket is required")
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.StorageBackend)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "console", "":
	default:
		return fmt.Errorf("log.format %q is not supported", c.LogFormat)
	}
	return nil
}
