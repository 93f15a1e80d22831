package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "LECTERN"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseDriver    = "sqlite"
	defaultDatabaseDSN       = "lectern.db"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultStorageEndpoint   = "https://s3.us-west-004.backblazeb2.com"
	defaultStorageRegion     = "us-west-004"
	defaultPublicBaseURL     = "https://f000.backblazeb2.com"
	defaultStorageSessionTTL = 23 * time.Hour
	defaultSignedURLTTL      = time.Hour
	defaultMediaFetchTimeout = 30 * time.Second
	defaultSessionIssuer     = "tauth"
	defaultCookieName        = "app_session"
	defaultVisitorWindow     = 30 * 24 * time.Hour
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	LogLevel          string
	LogFormat         string
	DatabaseDriver    string
	DatabaseDSN       string
	Storage           StorageConfig
	SignedURLTTL      time.Duration
	MediaFetchTimeout time.Duration
	SigningSecret     string
	SessionIssuer     string
	SessionCookieName string
	AllowedOrigins    []string
	AdminOrigins      []string
	VisitorWindow     time.Duration
}

// StorageConfig describes the S3-compatible bucket holding media blobs.
type StorageConfig struct {
	Endpoint       string
	Region         string
	Bucket         string
	KeyID          string
	ApplicationKey string
	PublicBaseURL  string
	SessionTTL     time.Duration
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
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("storage.endpoint", defaultStorageEndpoint)
	configViper.SetDefault("storage.region", defaultStorageRegion)
	configViper.SetDefault("storage.bucket", "")
	configViper.SetDefault("storage.key_id", "")
	configViper.SetDefault("storage.application_key", "")
	configViper.SetDefault("storage.public_base_url", defaultPublicBaseURL)
	configViper.SetDefault("storage.session_ttl", defaultStorageSessionTTL)
	configViper.SetDefault("media.signed_url_ttl", defaultSignedURLTTL)
	configViper.SetDefault("media.fetch_timeout", defaultMediaFetchTimeout)
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.issuer", defaultSessionIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("cors.allowed_origins", []string{"*"})
	configViper.SetDefault("cors.admin_origins", []string{})
	configViper.SetDefault("visitors.window", defaultVisitorWindow)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		Storage: StorageConfig{
			Endpoint:       configViper.GetString("storage.endpoint"),
			Region:         configViper.GetString("storage.region"),
			Bucket:         configViper.GetString("storage.bucket"),
			KeyID:          configViper.GetString("storage.key_id"),
			ApplicationKey: configViper.GetString("storage.application_key"),
			PublicBaseURL:  strings.TrimRight(configViper.GetString("storage.public_base_url"), "/"),
			SessionTTL:     configViper.GetDuration("storage.session_ttl"),
		},
		SignedURLTTL:      configViper.GetDuration("media.signed_url_ttl"),
		MediaFetchTimeout: configViper.GetDuration("media.fetch_timeout"),
		SigningSecret:     configViper.GetString("auth.signing_secret"),
		SessionIssuer:     configViper.GetString("auth.issuer"),
		SessionCookieName: configViper.GetString("auth.cookie_name"),
		AllowedOrigins:    configViper.GetStringSlice("cors.allowed_origins"),
		AdminOrigins:      configViper.GetStringSlice("cors.admin_origins"),
		VisitorWindow:     configViper.GetDuration("visitors.window"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadDatabase parses only the settings needed by the database commands.
func LoadDatabase(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:    configViper.GetString("database.dsn"),
	}
	if err := cfg.validateDatabase(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if strings.TrimSpace(c.Storage.KeyID) == "" {
		return fmt.Errorf("storage.key_id is required")
	}
	if strings.TrimSpace(c.Storage.ApplicationKey) == "" {
		return fmt.Errorf("storage.application_key is required")
	}
	if strings.TrimSpace(c.Storage.Endpoint) == "" {
		return fmt.Errorf("storage.endpoint is required")
	}
	if strings.TrimSpace(c.Storage.PublicBaseURL) == "" {
		return fmt.Errorf("storage.public_base_url is required")
	}
	if c.SignedURLTTL <= 0 {
		return fmt.Errorf("media.signed_url_ttl must be positive")
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.VisitorWindow <= 0 {
		return fmt.Errorf("visitors.window must be positive")
	}
	if slices.Contains(c.AdminOrigins, "*") {
		return fmt.Errorf("cors.admin_origins must list explicit origins")
	}
	return nil
}

func (c AppConfig) validateDatabase() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	return nil
}
