package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orincore/circle-core/internal/apperr"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CIRCLE_JWT_SECRET", "test-secret")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "test-secret", cfg.JWTSecret)
	assert.Equal(t, "/ws", cfg.WSPath)
	assert.Equal(t, 20, cfg.BlindDate.RevealThreshold)
}

func TestLoad_MissingJWTSecretIsFatal(t *testing.T) {
	t.Setenv("CIRCLE_JWT_SECRET", "")
	_, err := Load("")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.FatalConfig))
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bind_port: 9000\njwt_secret: from-yaml\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.BindPort)
	assert.Equal(t, "from-yaml", cfg.JWTSecret)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jwt_secret: from-yaml\n"), 0o644))
	t.Setenv("CIRCLE_JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
}

func TestAddr(t *testing.T) {
	cfg := Default()
	cfg.BindHost = "127.0.0.1"
	cfg.BindPort = 9999
	assert.Equal(t, "127.0.0.1:9999", cfg.Addr())
}
