package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	Port     int
	LogLevel string
	LogFile  string

	Provider        string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string

	Temperature     float64
	GatheringTokens int
	SummaryTokens   int
	AdviceTokens    int
	MemoryWindow    int
	SessionTTL      time.Duration

	APIToken         string
	MetricsNamespace string

	DatabaseURL  string
	NatsURL      string
	NatsToken    string
	SlackToken   string
	SlackChannel string
}

func Load() Config {
	return Config{
		Port:     envInt("MEDBOT_PORT", 8760),
		LogLevel: envStr("LOG_LEVEL", "info"),
		LogFile:  envStr("LOG_FILE", ""),

		Provider:        envStr("LLM_PROVIDER", ProviderAnthropic),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("MEDBOT_ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		OpenAIModel:     envStr("MEDBOT_OPENAI_MODEL", "gpt-4o-mini"),

		Temperature:     envFloat("MEDBOT_TEMPERATURE", 0.7),
		GatheringTokens: envInt("MEDBOT_GATHERING_TOKENS", 256),
		SummaryTokens:   envInt("MEDBOT_SUMMARY_TOKENS", 500),
		AdviceTokens:    envInt("MEDBOT_ADVICE_TOKENS", 400),
		MemoryWindow:    envInt("MEDBOT_MEMORY_WINDOW", 10),
		SessionTTL:      envDuration("MEDBOT_SESSION_TTL", 30*time.Minute),

		APIToken:         envStr("MEDBOT_API_TOKEN", ""),
		MetricsNamespace: envStr("MEDBOT_METRICS_NAMESPACE", "medbot"),

		DatabaseURL:  envStr("DATABASE_URL", ""),
		NatsURL:      envStr("NATS_URL", ""),
		NatsToken:    envStr("NATS_TOKEN", ""),
		SlackToken:   envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel: envStr("SLACK_HANDOFF_CHANNEL", ""),
	}
}

// Validate reports settings that would make every turn fail.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %s", c.Provider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %s", c.Provider)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (expected anthropic|openai)", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("MEDBOT_TEMPERATURE must be within [0,1], got %g", c.Temperature)
	}
	if c.GatheringTokens <= 0 || c.SummaryTokens <= 0 || c.AdviceTokens <= 0 {
		return fmt.Errorf("token budgets must be positive")
	}
	if c.MemoryWindow <= 0 {
		return fmt.Errorf("MEDBOT_MEMORY_WINDOW must be positive")
	}
	return nil
}

// SlackEnabled is true when both the bot token and handoff channel are set.
func (c Config) SlackEnabled() bool {
	return c.SlackToken != "" && c.SlackChannel != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
