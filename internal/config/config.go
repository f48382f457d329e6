// Package config provides configuration types and loading for uflbot.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix for all environment variables.
const EnvPrefix = "UFLBOT"

// Config is the root configuration struct.
type Config struct {
	Bot     BotConfig     `json:"bot"`
	Store   StoreConfig   `json:"store"`
	Agent   AgentConfig   `json:"agent"`
	Bridge  BridgeConfig  `json:"bridge"`
	Archive ArchiveConfig `json:"archive"`
}

// BotConfig groups handler-level settings.
type BotConfig struct {
	// AdminIDs are numeric identities allowed to run privileged commands.
	AdminIDs []int64 `json:"adminIds" envconfig:"ADMIN_IDS"`
	// AllowedIDs is the static allow-list. Empty means everyone is allowed.
	AllowedIDs []int64 `json:"allowedIds" envconfig:"ALLOWED_IDS"`
	// HistoryContextSize is the number of prior turns sent to the agent.
	HistoryContextSize int `json:"historyContextSize" envconfig:"HISTORY_CONTEXT_SIZE"`
}

// StoreConfig contains storage settings.
type StoreConfig struct {
	// DatabaseURL is a postgres:// URL or a SQLite file path.
	DatabaseURL string `json:"databaseUrl" envconfig:"DATABASE_URL"`
}

// AgentConfig contains the remote completion service settings.
type AgentConfig struct {
	APIURL  string        `json:"apiUrl" envconfig:"AGENT_API_URL"`
	APIKey  string        `json:"apiKey" envconfig:"AGENT_API_KEY"`
	Timeout time.Duration `json:"timeout" envconfig:"AGENT_TIMEOUT"`
}

// BridgeConfig contains the transport bridge settings.
type BridgeConfig struct {
	// Token authenticates both the inbound endpoint and the outbound webhook.
	Token string `json:"token" envconfig:"BOT_TOKEN"`
	// ListenAddr is the inbound HTTP listen address.
	ListenAddr string `json:"listenAddr" envconfig:"LISTEN_ADDR"`
	// OutboundURL is where replies are POSTed. Empty means log-only delivery.
	OutboundURL string `json:"outboundUrl" envconfig:"OUTBOUND_URL"`
}

// ArchiveConfig contains the optional Kafka archive feed settings.
type ArchiveConfig struct {
	// KafkaBrokers is a comma-separated broker list. Empty disables the feed.
	KafkaBrokers string `json:"kafkaBrokers" envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string `json:"kafkaTopic" envconfig:"KAFKA_TOPIC"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			HistoryContextSize: 10,
		},
		Agent: AgentConfig{
			APIURL:  "https://pkjzktabbahfqfh3jbrfc7rv.agents.do-ai.run",
			Timeout: 60 * time.Second,
		},
		Bridge: BridgeConfig{
			ListenAddr: "127.0.0.1:8090",
		},
		Archive: ArchiveConfig{
			KafkaTopic: "group-archive",
		},
	}
}

// Load builds the effective configuration: defaults, then an optional .env
// file, then UFLBOT_* environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.DatabaseURL) == "" {
		return fmt.Errorf("%s_DATABASE_URL is required", EnvPrefix)
	}
	if strings.TrimSpace(c.Agent.APIKey) == "" {
		return fmt.Errorf("%s_AGENT_API_KEY is required", EnvPrefix)
	}
	if c.Bot.HistoryContextSize <= 0 {
		return fmt.Errorf("history context size must be positive, got %d", c.Bot.HistoryContextSize)
	}
	return nil
}
