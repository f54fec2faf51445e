package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	LogLevel string

	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiAPIVersion string
	JudgeModel       string
	JudgeTimeout     time.Duration
	JudgeCacheTTL    time.Duration
	SampleBudget     int

	PreferIPv4  bool
	HTTPTimeout time.Duration

	WebAddr       string
	PresetsFile   string
	MaxConcurrent int

	TelegramToken string
	ReviewChatID  int64
}

func Load() (Config, error) {
	cfg := Config{
		LogLevel:         strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		GeminiAPIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiBaseURL:    strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion: strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		JudgeModel:       strings.TrimSpace(getEnv("JUDGE_MODEL", "gemini-2.5-flash")),
		JudgeTimeout:     time.Duration(getEnvInt("JUDGE_TIMEOUT_SECONDS", 20)) * time.Second,
		JudgeCacheTTL:    time.Duration(getEnvInt("JUDGE_CACHE_TTL_SECONDS", 600)) * time.Second,
		SampleBudget:     getEnvInt("SCENARIO_SAMPLE_BUDGET", 10),
		PreferIPv4:       getEnvBool("PREFER_IPV4", true),
		HTTPTimeout:      time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 60)) * time.Second,
		WebAddr:          getEnv("WEB_ADDR", ":8080"),
		PresetsFile:      strings.TrimSpace(os.Getenv("PRESETS_FILE")),
		MaxConcurrent:    getEnvInt("MAX_CONCURRENT", 4),
		TelegramToken:    strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
	}

	if raw := strings.TrimSpace(os.Getenv("REVIEW_CHAT_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, errors.New("REVIEW_CHAT_ID must be an integer chat id")
		}
		cfg.ReviewChatID = id
	}
	if cfg.ReviewChatID != 0 && cfg.TelegramToken == "" {
		return Config{}, errors.New("REVIEW_CHAT_ID requires TELEGRAM_BOT_TOKEN")
	}

	if cfg.JudgeTimeout <= 0 {
		cfg.JudgeTimeout = 20 * time.Second
	}
	if cfg.JudgeCacheTTL < 0 {
		cfg.JudgeCacheTTL = 0
	}
	if cfg.SampleBudget < 1 {
		cfg.SampleBudget = 10
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}

	return cfg, nil
}

// JudgeEnabled reports whether a Gemini key is configured.
func (c Config) JudgeEnabled() bool {
	return c.GeminiAPIKey != ""
}

// ReviewEnabled reports whether failed validations go to a Telegram chat.
func (c Config) ReviewEnabled() bool {
	return c.TelegramToken != "" && c.ReviewChatID != 0
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
