package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// DefaultPath is used when GMCONSOLE_CONFIG is unset.
const DefaultPath = "config/server.toml"

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Network  NetworkConfig  `toml:"network"`
	Session  SessionConfig  `toml:"session"`
	Logging  LoggingConfig  `toml:"logging"`
	Database DatabaseConfig `toml:"database"`
}

type ServerConfig struct {
	Name          string `toml:"name"`
	DMPassword    string `toml:"dm_password"`
	ClientDir     string `toml:"client_dir"`
	CharactersDir string `toml:"characters_dir"`
	ClassesFile   string `toml:"classes_file"`
	ScriptsDir    string `toml:"scripts_dir"`
	StartTime     int64  // unix ms, set at boot, not from config
}

type NetworkConfig struct {
	BindAddress        string        `toml:"bind_address"`
	WSPath             string        `toml:"ws_path"`
	TickRate           time.Duration `toml:"tick_rate"`
	InQueueSize        int           `toml:"in_queue_size"`
	OutQueueSize       int           `toml:"out_queue_size"`
	MaxMessagesPerTick int           `toml:"max_messages_per_tick"`
	MessagesPerSecond  int           `toml:"messages_per_second"` // 0 = unlimited
	WriteTimeout       time.Duration `toml:"write_timeout"`
	ReadTimeout        time.Duration `toml:"read_timeout"`
	MaxMessageSize     int64         `toml:"max_message_size"`
}

type SessionConfig struct {
	MaxHPPotions int `toml:"max_hp_potions"`
	MaxMPPotions int `toml:"max_mp_potions"`
	MaxGemSlots  int `toml:"max_gem_slots"`
}

type LoggingConfig struct {
	Level            string `toml:"level"`
	Format           string `toml:"format"`     // "json" or "console"
	AccessLog        string `toml:"access_log"` // "" disables the access log
	AccessLogMaxMB   int    `toml:"access_log_max_mb"`
	AccessLogBackups int    `toml:"access_log_backups"`
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"` // "" disables the command journal
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

// environment holds the variables that override the file.
type environment struct {
	ConfigPath  string `env:"GMCONSOLE_CONFIG"`
	DMPassword  string `env:"DM_PASSWORD"`
	Port        string `env:"PORT"`
	DatabaseURL string `env:"DATABASE_URL"`
}

// Path returns the config file location, honouring GMCONSOLE_CONFIG.
func Path() (string, error) {
	e, err := env.ParseAs[environment]()
	if err != nil {
		return "", fmt.Errorf("parse env: %w", err)
	}
	if e.ConfigPath == "" {
		return DefaultPath, nil
	}
	return e.ConfigPath, nil
}

// Load reads the TOML file over defaults, then applies the environment.
// A missing file is not an error; the defaults and environment still apply.
func Load(path string) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	e, err := env.ParseAs[environment]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyEnv(e)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Server.StartTime = time.Now().UnixMilli()
	return cfg, nil
}

func (cfg *Config) applyEnv(e environment) {
	if e.DMPassword != "" {
		cfg.Server.DMPassword = e.DMPassword
	}
	if e.Port != "" {
		cfg.Network.BindAddress = ":" + strings.TrimPrefix(e.Port, ":")
	}
	if e.DatabaseURL != "" {
		cfg.Database.DSN = e.DatabaseURL
	}
}

func (cfg *Config) validate() error {
	if cfg.Server.DMPassword == "" {
		return errors.New("config: dm_password is empty (set it in the file or DM_PASSWORD)")
	}
	if cfg.Network.TickRate <= 0 {
		return fmt.Errorf("config: tick_rate must be positive, got %s", cfg.Network.TickRate)
	}
	if cfg.Session.MaxHPPotions < 0 || cfg.Session.MaxMPPotions < 0 || cfg.Session.MaxGemSlots < 0 {
		return errors.New("config: session limits must not be negative")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:          "GM Console",
			ClientDir:     "client",
			CharactersDir: "characters",
			ClassesFile:   "data/classes.yaml",
			ScriptsDir:    "scripts",
		},
		Network: NetworkConfig{
			BindAddress:        "0.0.0.0:3000",
			WSPath:             "/ws",
			TickRate:           20 * time.Millisecond,
			InQueueSize:        64,
			OutQueueSize:       256,
			MaxMessagesPerTick: 16,
			MessagesPerSecond:  30,
			WriteTimeout:       10 * time.Second,
			ReadTimeout:        60 * time.Second,
			MaxMessageSize:     64 << 10,
		},
		Session: SessionConfig{
			MaxHPPotions: 3,
			MaxMPPotions: 3,
			MaxGemSlots:  6,
		},
		Logging: LoggingConfig{
			Level:            "info",
			Format:           "console",
			AccessLog:        "logs/ips.log",
			AccessLogMaxMB:   10,
			AccessLogBackups: 1,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
	}
}
