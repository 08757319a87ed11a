package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefault(t *testing.T) {
	cfg, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "9081", cfg.Server.ListenPort)
	assert.Equal(t, "en", cfg.Bot.Language)
	assert.Equal(t, 15, cfg.Bot.MaxBatchSize)
	assert.Equal(t, int64(5*1024*1024), cfg.Limits.MaxFileSize)
	assert.Equal(t, 30, cfg.Converter.FPS)
	assert.Equal(t, 512, cfg.Converter.Width)
	assert.Equal(t, 512, cfg.Converter.Height)
	assert.True(t, cfg.Converter.Sanitize)

	assert.Equal(t, 3*time.Second, cfg.Bot.GetBatchWait())
	assert.Equal(t, 5*time.Minute, cfg.Bot.GetBatchTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Bot.GetFileDelay())
	assert.Equal(t, 100*time.Millisecond, cfg.Bot.GetBroadcastDelay())
}

func TestLoadMergesUserConfigOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
bot:
  owner_id: 42
  batch_wait: 7s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, int64(42), cfg.Bot.OwnerID)
	assert.Equal(t, 7*time.Second, cfg.Bot.GetBatchWait())
	// Untouched keys keep their defaults.
	assert.Equal(t, "9081", cfg.Server.ListenPort)
	assert.Equal(t, 15, cfg.Bot.MaxBatchSize)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadExpandsEnvInUserConfig(t *testing.T) {
	t.Setenv("TEST_TGS_TOKEN", "123:abc")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telegram:\n  token: ${TEST_TGS_TOKEN}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TGSFORGE_BOT_OWNER_ID", "77")
	t.Setenv("TGSFORGE_LOG_LEVEL", "warn")

	cfg, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, int64(77), cfg.Bot.OwnerID)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadDefault()
		require.NoError(t, err)
		cfg.Telegram.Token = "123:abc"
		cfg.Bot.OwnerID = 1
		return cfg
	}

	assert.NoError(t, valid().Validate())

	t.Run("missing token", func(t *testing.T) {
		cfg := valid()
		cfg.Telegram.Token = ""
		assert.ErrorContains(t, cfg.Validate(), "telegram.token")
	})

	t.Run("missing owner", func(t *testing.T) {
		cfg := valid()
		cfg.Bot.OwnerID = 0
		assert.ErrorContains(t, cfg.Validate(), "bot.owner_id")
	})

	t.Run("bad duration", func(t *testing.T) {
		cfg := valid()
		cfg.Bot.BatchWait = "3 seconds"
		assert.ErrorContains(t, cfg.Validate(), "bot.batch_wait")
	})

	t.Run("non-positive limits", func(t *testing.T) {
		cfg := valid()
		cfg.Limits.MaxFileSize = 0
		cfg.Bot.MaxBatchSize = -1
		err := cfg.Validate()
		assert.ErrorContains(t, err, "limits.max_file_size")
		assert.ErrorContains(t, err, "bot.max_batch_size")
	})

	t.Run("negative converter values", func(t *testing.T) {
		cfg := valid()
		cfg.Converter.FPS = -1
		assert.ErrorContains(t, cfg.Validate(), "converter.fps")
	})
}

func TestDurationFallbackOnGarbage(t *testing.T) {
	b := BotConfig{BatchWait: "garbage"}
	assert.Equal(t, 3*time.Second, b.GetBatchWait())
}
