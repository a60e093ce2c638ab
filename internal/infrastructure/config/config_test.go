package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "erp-backoffice", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8081", cfg.App.Port)
		assert.Equal(t, "http://localhost:8080/api/v1", cfg.Backend.BaseURL)
		assert.Equal(t, 3, cfg.Backend.MaxRetries)
		assert.Equal(t, 30*time.Second, cfg.Cache.StaleTime)
		assert.True(t, cfg.Cache.RefetchOnInvalidate)
		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, "backoffice:cache:invalidate", cfg.Redis.InvalidationChannel)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "ar", cfg.Locale.Default)
		assert.True(t, cfg.Telemetry.MetricsEnabled)
	})

	t.Run("loads values from environment variables with BACKOFFICE prefix", func(t *testing.T) {
		t.Setenv("BACKOFFICE_APP_PORT", "9000")
		t.Setenv("BACKOFFICE_BACKEND_BASE_URL", "http://erp.internal/api/v1")
		t.Setenv("BACKOFFICE_BACKEND_RATE_LIMIT", "12.5")
		t.Setenv("BACKOFFICE_CACHE_STALE_TIME", "5s")
		t.Setenv("BACKOFFICE_CACHE_REFETCH_ON_INVALIDATE", "false")
		t.Setenv("BACKOFFICE_REDIS_ENABLED", "true")
		t.Setenv("BACKOFFICE_REDIS_PORT", "6380")
		t.Setenv("BACKOFFICE_DATABASE_DRIVER", "postgres")
		t.Setenv("BACKOFFICE_LOCALE_DEFAULT", "en")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "http://erp.internal/api/v1", cfg.Backend.BaseURL)
		assert.Equal(t, 12.5, cfg.Backend.RateLimit)
		assert.Equal(t, 5*time.Second, cfg.Cache.StaleTime)
		assert.False(t, cfg.Cache.RefetchOnInvalidate)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 6380, cfg.Redis.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "en", cfg.Locale.Default)
	})

	t.Run("rejects unknown database driver", func(t *testing.T) {
		t.Setenv("BACKOFFICE_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("rejects relative backend url", func(t *testing.T) {
		t.Setenv("BACKOFFICE_BACKEND_BASE_URL", "/api/v1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend.base_url")
	})

	t.Run("rejects unknown locale", func(t *testing.T) {
		t.Setenv("BACKOFFICE_LOCALE_DEFAULT", "fr")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "locale.default")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("BACKOFFICE_DATABASE_MAX_OPEN_CONNS", "4")
		t.Setenv("BACKOFFICE_DATABASE_MAX_IDLE_CONNS", "8")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("BACKOFFICE_APP_ENV", "production")
		t.Setenv("BACKOFFICE_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		t.Setenv("BACKOFFICE_BACKEND_BASE_URL", "https://erp.example.com/api/v1")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.IsProduction())
	})

	t.Run("requires jwt.secret in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("BACKOFFICE_JWT_SECRET", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required in production")
	})

	t.Run("requires jwt.secret at least 32 characters in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("BACKOFFICE_JWT_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 32 characters")
	})

	t.Run("requires https backend in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("BACKOFFICE_BACKEND_BASE_URL", "http://erp.example.com/api/v1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "https")
	})

	t.Run("requires SSL for postgres in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("BACKOFFICE_DATABASE_DRIVER", "postgres")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "user",
		Password: "pass@word#123",
		DBName:   "backoffice",
		SSLMode:  "disable",
	}

	dsn := cfg.DSN()
	assert.Contains(t, dsn, "localhost:5432")
	assert.Contains(t, dsn, "pass%40word%23123")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestDatabaseConfig_SQLitePath(t *testing.T) {
	assert.Equal(t, "file::memory:?cache=shared", (&DatabaseConfig{}).SQLitePath())
	assert.Equal(t, "journal.db", (&DatabaseConfig{Path: "journal.db"}).SQLitePath())
}
