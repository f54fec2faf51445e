package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"LOG_LEVEL", "GEMINI_API_KEY", "GEMINI_BASE_URL", "GEMINI_API_VERSION", "JUDGE_MODEL",
	"JUDGE_TIMEOUT_SECONDS", "JUDGE_CACHE_TTL_SECONDS", "SCENARIO_SAMPLE_BUDGET", "PREFER_IPV4",
	"HTTP_TIMEOUT_SECONDS", "WEB_ADDR", "PRESETS_FILE", "MAX_CONCURRENT", "TELEGRAM_BOT_TOKEN", "REVIEW_CHAT_ID",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 20*time.Second, cfg.JudgeTimeout)
	assert.Equal(t, 10*time.Minute, cfg.JudgeCacheTTL)
	assert.Equal(t, 10, cfg.SampleBudget)
	assert.Equal(t, ":8080", cfg.WebAddr)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.True(t, cfg.PreferIPv4)
	assert.False(t, cfg.JudgeEnabled())
	assert.False(t, cfg.ReviewEnabled())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("JUDGE_TIMEOUT_SECONDS", "5")
	t.Setenv("SCENARIO_SAMPLE_BUDGET", "0")
	t.Setenv("MAX_CONCURRENT", "not-a-number")
	t.Setenv("PREFER_IPV4", "false")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("REVIEW_CHAT_ID", "-100123")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.JudgeTimeout)
	assert.Equal(t, 10, cfg.SampleBudget)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.False(t, cfg.PreferIPv4)
	assert.Equal(t, int64(-100123), cfg.ReviewChatID)
	assert.True(t, cfg.JudgeEnabled())
	assert.True(t, cfg.ReviewEnabled())
}

func TestLoadRejectsBadReviewConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("REVIEW_CHAT_ID", "abc")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("REVIEW_CHAT_ID", "42")
	_, err = Load()
	assert.Error(t, err, "chat id without token")
}
