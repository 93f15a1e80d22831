package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndRequiresSecrets(t *testing.T) {
	configViper := NewViper()

	_, err := Load(configViper)
	require.ErrorContains(t, err, "storage.bucket is required")

	configViper.Set("storage.bucket", "lectern-media")
	configViper.Set("storage.key_id", "key-id")
	configViper.Set("storage.application_key", "app-key")
	_, err = Load(configViper)
	require.ErrorContains(t, err, "auth.signing_secret is required")

	configViper.Set("auth.signing_secret", "secret")
	cfg, err := Load(configViper)
	require.NoError(t, err)
	require.Equal(t, defaultHTTPAddress, cfg.HTTPAddress)
	require.Equal(t, "sqlite", cfg.DatabaseDriver)
	require.Equal(t, "lectern.db", cfg.DatabaseDSN)
	require.Equal(t, 23*time.Hour, cfg.Storage.SessionTTL)
	require.Equal(t, time.Hour, cfg.SignedURLTTL)
	require.Equal(t, "tauth", cfg.SessionIssuer)
	require.Equal(t, "app_session", cfg.SessionCookieName)
	require.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	require.Empty(t, cfg.AdminOrigins)
	require.Equal(t, 30*24*time.Hour, cfg.VisitorWindow)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("LECTERN_STORAGE_BUCKET", "env-bucket")
	t.Setenv("LECTERN_STORAGE_KEY_ID", "env-key")
	t.Setenv("LECTERN_STORAGE_APPLICATION_KEY", "env-secret")
	t.Setenv("LECTERN_STORAGE_PUBLIC_BASE_URL", "https://cdn.example.com/")
	t.Setenv("LECTERN_AUTH_SIGNING_SECRET", "env-signing")
	t.Setenv("LECTERN_DATABASE_DRIVER", "Postgres")
	t.Setenv("LECTERN_DATABASE_DSN", "postgres://lectern@localhost/lectern")

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	require.Equal(t, "env-bucket", cfg.Storage.Bucket)
	require.Equal(t, "https://cdn.example.com", cfg.Storage.PublicBaseURL)
	require.Equal(t, "postgres", cfg.DatabaseDriver)
	require.Equal(t, "postgres://lectern@localhost/lectern", cfg.DatabaseDSN)
}

func TestLoadDatabaseRejectsUnknownDriver(t *testing.T) {
	configViper := NewViper()
	configViper.Set("database.driver", "mysql")

	_, err := LoadDatabase(configViper)
	require.ErrorContains(t, err, "database.driver must be sqlite or postgres")

	configViper.Set("database.driver", "sqlite")
	cfg, err := LoadDatabase(configViper)
	require.NoError(t, err)
	require.Equal(t, "lectern.db", cfg.DatabaseDSN)
}

func TestLoadRejectsWildcardAdminOrigins(t *testing.T) {
	configViper := NewViper()
	configViper.Set("storage.bucket", "lectern-media")
	configViper.Set("storage.key_id", "key-id")
	configViper.Set("storage.application_key", "app-key")
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("cors.admin_origins", []string{"*"})

	_, err := Load(configViper)
	require.ErrorContains(t, err, "cors.admin_origins must list explicit origins")

	configViper.Set("cors.admin_origins", []string{"https://admin.lectern.example.com"})
	cfg, err := Load(configViper)
	require.NoError(t, err)
	require.Equal(t, []string{"https://admin.lectern.example.com"}, cfg.AdminOrigins)
}
