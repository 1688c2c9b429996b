package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("RECORD_STORE", "postgres")
	t.Setenv("ADMIN_TOKEN", "s3cret")

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, RecordStorePostgres, cfg.Intake.RecordStore)
	assert.Equal(t, "s3cret", cfg.Intake.AdminToken)
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"RATE_LIMIT_MAX", "RECORD_TTL", "MAX_FILES", "MAX_FILE_BYTES", "MAX_REQUEST_BYTES", "RATE_LIMIT_BACKEND", "MINIO_ENDPOINT"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, 5, cfg.RateLimit.Max)
	assert.Equal(t, RateLimitMemory, cfg.RateLimit.Backend)
	assert.Equal(t, 90*24*time.Hour, cfg.Intake.RecordTTL)
	assert.Equal(t, 5, cfg.Intake.MaxFiles)
	assert.Equal(t, int64(4*1024*1024), cfg.Intake.MaxFileBytes)
	assert.Equal(t, int64(10*1024*1024), cfg.Intake.MaxRequestBytes)
	assert.False(t, cfg.MinIO.Enabled())
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_DURATION_VAR"

	os.Setenv(key, "90s")
	assert.Equal(t, 90*time.Second, getEnvDuration(key, time.Minute))

	os.Setenv(key, "soon")
	assert.Equal(t, time.Minute, getEnvDuration(key, time.Minute))

	os.Unsetenv(key)
	assert.Equal(t, time.Minute, getEnvDuration(key, time.Minute))
}
