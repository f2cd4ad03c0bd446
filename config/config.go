package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	RCON       RCONConfig       `yaml:"rcon"`
	SSH        SSHConfig        `yaml:"ssh"`
	Poller     PollerConfig     `yaml:"poller"`
	Stats      StatsConfig      `yaml:"stats"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	// Timezone is the reference zone for calendar-day aggregates.
	Timezone string `yaml:"timezone"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	StaticDir       string  `yaml:"static_dir"`
}

// RCONConfig holds the command-protocol endpoint.
type RCONConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Password       string        `yaml:"password"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// SSHConfig holds the remote-shell endpoint used for metrics and stats files.
type SSHConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	KeyPath        string        `yaml:"key_path"`
	KnownHostsPath string        `yaml:"known_hosts_path"`
	ServerDir      string        `yaml:"server_dir"`
	DiskPath       string        `yaml:"disk_path"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// PollerConfig holds the background poll loop settings.
type PollerConfig struct {
	Disabled          bool          `yaml:"disabled"`
	IntervalSeconds   int           `yaml:"interval_seconds"`
	Interval          time.Duration `yaml:"-"`
	StaleAfterSeconds int           `yaml:"stale_after_seconds"`
	StaleAfter        time.Duration `yaml:"-"`
}

// StatsConfig holds the leaderboard stats refresh settings.
type StatsConfig struct {
	Disabled            bool          `yaml:"disabled"`
	IntervalSeconds     int           `yaml:"interval_seconds"`
	Interval            time.Duration `yaml:"-"`
	InitialDelaySeconds int           `yaml:"initial_delay_seconds"`
	InitialDelay        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the session store connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // sqlite or postgres
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path, applies environment
// overrides and then fills in defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 10
	}

	if cfg.RCON.Host == "" {
		cfg.RCON.Host = "localhost"
	}
	if cfg.RCON.Port <= 0 {
		cfg.RCON.Port = 25575
	}
	if cfg.RCON.TimeoutSeconds <= 0 {
		cfg.RCON.TimeoutSeconds = 5
	}
	cfg.RCON.Timeout = time.Duration(cfg.RCON.TimeoutSeconds) * time.Second

	if cfg.SSH.Host == "" {
		cfg.SSH.Host = cfg.RCON.Host
	}
	if cfg.SSH.Port <= 0 {
		cfg.SSH.Port = 22
	}
	if cfg.SSH.TimeoutSeconds <= 0 {
		cfg.SSH.TimeoutSeconds = 10
	}
	cfg.SSH.Timeout = time.Duration(cfg.SSH.TimeoutSeconds) * time.Second
	if cfg.SSH.DiskPath == "" {
		cfg.SSH.DiskPath = cfg.SSH.ServerDir
	}
	if cfg.SSH.DiskPath == "" {
		cfg.SSH.DiskPath = "/"
	}

	if cfg.Poller.IntervalSeconds <= 0 {
		cfg.Poller.IntervalSeconds = 5
	}
	cfg.Poller.Interval = time.Duration(cfg.Poller.IntervalSeconds) * time.Second
	if cfg.Poller.StaleAfterSeconds <= 0 {
		cfg.Poller.StaleAfterSeconds = 30
	}
	cfg.Poller.StaleAfter = time.Duration(cfg.Poller.StaleAfterSeconds) * time.Second

	if cfg.Stats.IntervalSeconds <= 0 {
		cfg.Stats.IntervalSeconds = 300
	}
	cfg.Stats.Interval = time.Duration(cfg.Stats.IntervalSeconds) * time.Second
	if cfg.Stats.InitialDelaySeconds <= 0 {
		cfg.Stats.InitialDelaySeconds = 10
	}
	cfg.Stats.InitialDelay = time.Duration(cfg.Stats.InitialDelaySeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "data/dashboard.db"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Timezone == "" {
		cfg.Timezone = "America/Los_Angeles"
	}
}

// applyEnv lets secrets and endpoints come from the environment instead of the file.
func (cfg *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("ignoring %s=%q: %v", key, v, err)
			return
		}
		*dst = n
	}

	setString(&cfg.RCON.Host, "MC_SERVER_HOST")
	setInt(&cfg.RCON.Port, "MC_RCON_PORT")
	setString(&cfg.RCON.Password, "MC_RCON_PASSWORD")
	setString(&cfg.SSH.Host, "SSH_HOST")
	setInt(&cfg.SSH.Port, "SSH_PORT")
	setString(&cfg.SSH.User, "SSH_USER")
	setString(&cfg.SSH.KeyPath, "SSH_KEY_PATH")
	setString(&cfg.SSH.ServerDir, "MC_SERVER_DIR")
	setString(&cfg.Database.DSN, "DB_PATH")
}

// Validate checks that the settings required to reach the game server are present.
func (cfg *Config) Validate() error {
	if cfg.RCON.Password == "" || cfg.RCON.Password == "changeme" {
		return errors.New("rcon.password is not set; configure it or export MC_RCON_PASSWORD")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return err
	}
	return nil
}
