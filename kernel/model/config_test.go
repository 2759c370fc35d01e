package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	content := `{
  "region": "eu-west-1",
  "logLevel": "debug",
  "callTimeout": "45s",
  "database": {"type": "SQLite"},
  "defaultTags": {"team": "hpc"}
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644))
	t.Setenv("HF_PROVIDER_WORKDIR", filepath.Join(dir, "work"))
	t.Setenv("AWS_REGION", "ap-south-1")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "ap-south-1", cfg.Region)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.CallTimeout)
	assert.Equal(t, DatabaseSQLite, cfg.Database.Type)
	assert.Equal(t, filepath.Join(dir, "work", "request_db.sqlite"), cfg.Database.Path)
	assert.Equal(t, filepath.Join(dir, TemplatesFileName), cfg.TemplatesFile)
	assert.Equal(t, "hpc", cfg.DefaultTags["team"])
	assert.Equal(t, SchedulerHostFactory, cfg.Scheduler)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HF_PROVIDER_WORKDIR", "")
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DatabaseJSON, cfg.Database.Type)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 14*24*time.Hour, cfg.RequestRetention)
	assert.Equal(t, time.Hour, cfg.ReturnGracePeriod)
}

func TestLoadConfig_RejectsUnknownDatabase(t *testing.T) {
	t.Setenv("HF_DB_TYPE", "oracle")
	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestProviderConfig_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"scheduler": "default"}`), 0644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, SchedulerDefault, cfg.Scheduler)

	require.NoError(t, os.WriteFile(path, []byte(`{"scheduler": "hostfactory", "lockRequests": true}`), 0644))
	require.NoError(t, cfg.Reload())
	assert.Equal(t, SchedulerHostFactory, cfg.Scheduler)
	assert.True(t, cfg.LockRequests)
}
