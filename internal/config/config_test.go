package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultPageSize, cfg.Batch.PageSize)
	assert.Equal(t, DefaultSaveRetries, cfg.Batch.SaveRetries)
	assert.Equal(t, DefaultShortPreviewRunes, cfg.Processing.ShortPreviewRunes)
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[batch]
page_size = 50

[embed]
handler_timeout = "2s"
failure_cooldown = "10m"
imgur_client_id = "abc"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Batch.PageSize)
	assert.Equal(t, "abc", cfg.Embed.ImgurClientID)
	assert.Equal(t, DefaultYouTubeOEmbed, cfg.Embed.YouTubeOEmbed)

	d, err := cfg.Embed.Durations()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d.HandlerTimeout)
	assert.Equal(t, 10*time.Minute, d.FailureCooldown)
	assert.Zero(t, d.MaxAge)
}

func TestDurationsRejectsNonPositive(t *testing.T) {
	t.Parallel()

	_, err := EmbedConfig{HandlerTimeout: "0s"}.Durations()
	assert.Error(t, err)
	_, err = EmbedConfig{FailureCooldown: "soon"}.Durations()
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	t.Parallel()

	dsn := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p@ss", Database: "forum", SSLMode: "disable"}.DSN()
	assert.Equal(t, "postgres://u:p%40ss@db:5433/forum?sslmode=disable", dsn)
}
