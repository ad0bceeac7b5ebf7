package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "local", cfg.Store.Profile)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.ChatModel)
	assert.Equal(t, int32(768), cfg.Gemini.EmbeddingDimensions)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.CORS.Enabled)

	dsn, err := cfg.Store.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "postgres://")
}

func TestLoadProfileSelection(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load(writeConfig(t, `
store:
  profile: railway
  profiles:
    railway:
      dsn: postgres://deploy@db.internal:5432/news
`))
	require.NoError(t, err)

	dsn, err := cfg.Store.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://deploy@db.internal:5432/news", dsn)
}

func TestDSNUnknownProfile(t *testing.T) {
	s := Store{Profile: "missing", Profiles: map[string]StoreProfile{}}
	_, err := s.DSN()
	assert.Error(t, err)

	s = Store{Profile: "empty", Profiles: map[string]StoreProfile{"empty": {}}}
	_, err = s.DSN()
	assert.Error(t, err)
}

func TestLoadCaches(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	first, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)
	second, err := Load("some-other-file.yaml")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
