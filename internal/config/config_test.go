package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFilesPresent(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	require.Equal(t, 8080, cfg.HTTP.Port)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yml := "mongo:\n  database: custom_db\nhttp:\n  port: 9090\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "custom_db", cfg.Mongo.Database)
	require.Equal(t, 9090, cfg.HTTP.Port)
}

func TestLoad_LocalYAMLOverridesConfigYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("http:\n  port: 9090\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.yml"), []byte("http:\n  port: 7070\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.HTTP.Port)
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("http:\n  port: 9090\n"), 0o644))
	t.Setenv("SSE_HTTP_PORT", "6060")
	t.Setenv("SSE_HEARTBEAT_INTERVAL", "45s")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 6060, cfg.HTTP.Port)
	require.Equal(t, 45*time.Second, cfg.Service.HeartbeatInterval)
}

func TestLoad_RejectsEmptyDatabase(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("mongo:\n  database: \"\"\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}
