package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Session  SessionConfig  `mapstructure:"session"`
	Inbound  InboundConfig  `mapstructure:"inbound"`
	Outbound OutboundConfig `mapstructure:"outbound"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr          string `mapstructure:"addr"`
	WebhookPath   string `mapstructure:"webhook_path"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	MediaDir      string `mapstructure:"media_dir"`
}

type TwilioConfig struct {
	AccountSID        string `mapstructure:"account_sid"`
	AuthToken         string `mapstructure:"auth_token"`
	ValidateSignature bool   `mapstructure:"validate_signature"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	MaxHistory  int           `mapstructure:"max_history"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PersonaPath string        `mapstructure:"persona_path"`
}

type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type InboundConfig struct {
	// MaxPending bounds the events waiting per sender.
	MaxPending int `mapstructure:"max_pending"`
}

type OutboundConfig struct {
	Pacing       time.Duration `mapstructure:"pacing"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	MaxPending   int           `mapstructure:"max_pending"`
	BookingLinks bool          `mapstructure:"booking_links"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// TwilioConfigured reports whether outbound Twilio credentials are present.
func (c *Config) TwilioConfigured() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != ""
}

// ModelConfigured reports whether the model API key is present.
func (c *Config) ModelConfigured() bool {
	return c.OpenAI.APIKey != ""
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q: %w", u.Port(), err)
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// LoadDotEnv loads a .env file into the process environment. Variables
// that are already set to a non-empty value win; empty ones are filled.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	for key, value := range values {
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.webhook_path", "/whatsapp")
	v.SetDefault("twilio.validate_signature", false)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 400)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.max_history", 40)
	v.SetDefault("openai.timeout", "30s")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.max_sessions", 10000)
	v.SetDefault("session.cleanup_interval", "1m")
	v.SetDefault("inbound.max_pending", 20)
	v.SetDefault("outbound.pacing", "900ms")
	v.SetDefault("outbound.send_timeout", "15s")
	v.SetDefault("outbound.max_pending", 100)
	v.SetDefault("outbound.booking_links", true)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", true)
	v.SetDefault("log.development", false)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	overrides := map[string]*string{
		"OPENAI_API_KEY":     &config.OpenAI.APIKey,
		"TWILIO_ACCOUNT_SID": &config.Twilio.AccountSID,
		"TWILIO_AUTH_TOKEN":  &config.Twilio.AuthToken,
		"TELEGRAM_TOKEN":     &config.Telegram.Token,
		"PUBLIC_URL":         &config.Server.PublicBaseURL,
	}
	for key, field := range overrides {
		if value := os.Getenv(key); value != "" {
			*field = value
		}
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Outbound.Pacing <= 0 {
		return fmt.Errorf("invalid config: outbound.pacing must be positive")
	}
	if c.OpenAI.Timeout <= 0 {
		return fmt.Errorf("invalid config: openai.timeout must be positive")
	}
	if c.Inbound.MaxPending < 0 || c.Outbound.MaxPending < 0 {
		return fmt.Errorf("invalid config: max_pending cannot be negative")
	}
	if c.Session.TTL < 0 || c.Session.MaxSessions < 0 {
		return fmt.Errorf("invalid config: session limits cannot be negative")
	}
	if !strings.HasPrefix(c.Server.WebhookPath, "/") {
		return fmt.Errorf("invalid config: server.webhook_path must start with /")
	}
	return nil
}
