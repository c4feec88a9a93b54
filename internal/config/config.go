package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Session  SessionConfig  `mapstructure:"session"`
	Log      LogConfig      `mapstructure:"log"`
	Status   StatusConfig   `mapstructure:"status"`
	Relay    RelayConfig    `mapstructure:"relay"`
}

type APIConfig struct {
	// BaseURL is the REST root, e.g. http://host:8080/api
	BaseURL string        `mapstructure:"base_url"`
	WSURL   string        `mapstructure:"ws_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type QueueConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	CountdownInterval time.Duration `mapstructure:"countdown_interval"`
}

type RealtimeConfig struct {
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

type SessionConfig struct {
	// Backend is "file" or "redis"
	Backend             string        `mapstructure:"backend"`
	Dir                 string        `mapstructure:"dir"`
	RedisAddr           string        `mapstructure:"redis_addr"`
	RedisDB             int           `mapstructure:"redis_db"`
	Profile             string        `mapstructure:"profile"`
	ExpiryCheckInterval time.Duration `mapstructure:"expiry_check_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

type RelayConfig struct {
	// NATSURL empty disables the relay.
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080/api",
			WSURL:   "ws://localhost:8080/ws",
			Timeout: 15 * time.Second,
		},
		Queue: QueueConfig{
			PollInterval:      10 * time.Second,
			CountdownInterval: time.Second,
		},
		Realtime: RealtimeConfig{ReconnectDelay: 5 * time.Second},
		Session: SessionConfig{
			Backend:             "file",
			Dir:                 filepath.Join(Dir(), "session"),
			RedisAddr:           "localhost:6379",
			Profile:             "default",
			ExpiryCheckInterval: 30 * time.Second,
		},
		Log:    LogConfig{Level: "info", Format: "console"},
		Status: StatusConfig{Addr: "127.0.0.1:9464"},
		Relay:  RelayConfig{Subject: "siasat.realtime"},
	}
}

// Dir is $XDG_CONFIG_HOME/siasat, falling back to ~/.config/siasat.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "siasat")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".siasat"
	}
	return filepath.Join(home, ".config", "siasat")
}

func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.ws_url", d.API.WSURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("queue.poll_interval", d.Queue.PollInterval)
	v.SetDefault("queue.countdown_interval", d.Queue.CountdownInterval)
	v.SetDefault("realtime.reconnect_delay", d.Realtime.ReconnectDelay)
	v.SetDefault("session.backend", d.Session.Backend)
	v.SetDefault("session.dir", d.Session.Dir)
	v.SetDefault("session.redis_addr", d.Session.RedisAddr)
	v.SetDefault("session.redis_db", d.Session.RedisDB)
	v.SetDefault("session.profile", d.Session.Profile)
	v.SetDefault("session.expiry_check_interval", d.Session.ExpiryCheckInterval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("status.addr", d.Status.Addr)
	v.SetDefault("relay.nats_url", d.Relay.NATSURL)
	v.SetDefault("relay.subject", d.Relay.Subject)
}

// Load reads .env files (if any), then the YAML config file (explicit path
// or the usual search dirs), then SIASAT_* env vars. Later sources win.
func Load(v *viper.Viper, cfgFile string, envFiles ...string) (*Config, error) {
	if err := loadDotenv(envFiles...); err != nil {
		return nil, err
	}

	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SIASAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	// godotenv.Load never overrides variables already in the environment
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

var (
	ErrMissingBaseURL = errors.New("api.base_url is required")
	ErrBadBackend     = errors.New("session.backend must be file or redis")
)

func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	switch c.Session.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("%w: got %q", ErrBadBackend, c.Session.Backend)
	}
	if c.Queue.PollInterval <= 0 || c.Queue.CountdownInterval <= 0 {
		return fmt.Errorf("queue intervals must be positive")
	}
	if c.Realtime.ReconnectDelay <= 0 {
		return fmt.Errorf("realtime.reconnect_delay must be positive")
	}
	return nil
}

// WSURLOrDerived returns api.ws_url, or derives ws(s)://host/ws from the
// REST base URL when it is unset.
func (c *Config) WSURLOrDerived() string {
	if c.API.WSURL != "" {
		return c.API.WSURL
	}
	u := strings.TrimSuffix(c.API.BaseURL, "/")
	u = strings.TrimSuffix(u, "/api")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}
