package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.CatalogDriver)
	assert.Equal(t, "/uploads", cfg.UploadURLPrefix)
	assert.Equal(t, int64(50)<<20, cfg.MaxFileSize)
	assert.Equal(t, 10, cfg.MaxUploadFiles)
	assert.Equal(t, 60*time.Second, cfg.ProcessTimeout)
	assert.Equal(t, int64(50_000_000), cfg.MaxImagePixels)
	assert.Equal(t, []string{"admin", "editor"}, cfg.ElevatedRoles)
	assert.False(t, cfg.MongoEnabled())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("CATALOG_DRIVER", "Mongo")
	t.Setenv("UPLOAD_URL_PREFIX", "/media/")
	t.Setenv("MAX_FILE_SIZE_MB", "5")
	t.Setenv("UPLOAD_WORKERS", "-3")
	t.Setenv("PROCESS_TIMEOUT", "90s")
	t.Setenv("RECONCILE_GRACE", "soon")
	t.Setenv("MAX_IMAGE_PIXELS", "1000000")
	t.Setenv("ELEVATED_ROLES", " Admin , ,Clergy")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "mongo", cfg.CatalogDriver)
	assert.True(t, cfg.MongoEnabled())
	assert.Equal(t, "/media", cfg.UploadURLPrefix)
	assert.Equal(t, int64(5)<<20, cfg.MaxFileSize)
	assert.Equal(t, 4, cfg.UploadWorkers, "invalid values fall back to defaults")
	assert.Equal(t, 90*time.Second, cfg.ProcessTimeout)
	assert.Equal(t, time.Hour, cfg.ReconcileGrace)
	assert.Equal(t, int64(1_000_000), cfg.MaxImagePixels)
	assert.Equal(t, []string{"admin", "clergy"}, cfg.ElevatedRoles)
}

func TestMongoEnabledForLogSink(t *testing.T) {
	cfg := &Config{CatalogDriver: "postgres", MongoURI: "mongodb://localhost", LogToDB: true}
	assert.True(t, cfg.MongoEnabled())

	cfg.LogToDB = false
	assert.False(t, cfg.MongoEnabled())
}
