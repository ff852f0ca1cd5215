package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger"
)

type Config struct {
	Server  ServerConfig  `envPrefix:"SERVER_"`
	API     APIConfig     `envPrefix:"API_"`
	Socket  SocketConfig  `envPrefix:"SOCKET_"`
	Session SessionConfig `envPrefix:"SESSION_"`
	Log     logger.Config `envPrefix:"LOG_"`
}

type ServerConfig struct {
	Addr        string `env:"ADDR" envDefault:"127.0.0.1:8787"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"^https?://(localhost|127\\.0\\.0\\.1)(:[0-9]+)?$"`
}

type APIConfig struct {
	BaseURL    string        `env:"BASE_URL,required,notEmpty"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"10s"`
	RetryCount int           `env:"RETRY_COUNT" envDefault:"3"`
}

type SocketConfig struct {
	URL              string        `env:"URL,required,notEmpty"`
	ReconnectBase    time.Duration `env:"RECONNECT_BASE" envDefault:"1s"`
	MaxAttempts      int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"10s"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
}

type SessionConfig struct {
	CampaignID     string        `env:"CAMPAIGN_ID,required,notEmpty"`
	UserID         string        `env:"USER_ID"`
	Credential     string        `env:"CREDENTIAL"`
	ChannelID      string        `env:"CHANNEL_ID"`
	TypingIdle     time.Duration `env:"TYPING_IDLE" envDefault:"1s"`
	TypingTTL      time.Duration `env:"TYPING_TTL" envDefault:"5s"`
	PendingTimeout time.Duration `env:"PENDING_TIMEOUT" envDefault:"15s"`
	MatchWindow    time.Duration `env:"MATCH_WINDOW" envDefault:"10s"`
	HistoryLimit   int           `env:"HISTORY_LIMIT" envDefault:"50"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}

func (c *Config) validate() error {
	if c.Socket.MaxAttempts < 1 {
		return fmt.Errorf("SOCKET_MAX_ATTEMPTS must be at least 1, got %d", c.Socket.MaxAttempts)
	}
	if c.Socket.ReconnectBase <= 0 {
		return fmt.Errorf("SOCKET_RECONNECT_BASE must be positive")
	}
	if _, err := regexp.Compile(c.Server.CORSOrigins); err != nil {
		return fmt.Errorf("SERVER_CORS_ORIGINS is not a valid pattern: %w", err)
	}
	if c.Session.HistoryLimit < 1 {
		return fmt.Errorf("SESSION_HISTORY_LIMIT must be at least 1, got %d", c.Session.HistoryLimit)
	}
	return nil
}
