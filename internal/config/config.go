package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port                string `mapstructure:"port"`
	MetricsPort         string `mapstructure:"metrics_port"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	Development         bool   `mapstructure:"development"`
}

type MongoCfg struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	Enabled  bool   `mapstructure:"enabled"`
}

type KafkaCfg struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Enabled bool     `mapstructure:"enabled"`
}

type JWTCfg struct {
	Algorithm     string `mapstructure:"algorithm"` // HS256 or RS256
	Secret        string `mapstructure:"secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type WSCfg struct {
	PingIntervalSeconds int   `mapstructure:"ping_interval_seconds"`
	WriteTimeoutSeconds int   `mapstructure:"write_timeout_seconds"`
	MaxMessageSize      int64 `mapstructure:"max_message_size"`
	SendBuffer          int   `mapstructure:"send_buffer"`
}

type RateLimitCfg struct {
	Limit         int `mapstructure:"limit"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

type Config struct {
	Server    ServerCfg    `mapstructure:"server"`
	Mongo     MongoCfg     `mapstructure:"mongo"`
	Redis     RedisCfg     `mapstructure:"redis"`
	Kafka     KafkaCfg     `mapstructure:"kafka"`
	JWT       JWTCfg       `mapstructure:"jwt"`
	WS        WSCfg        `mapstructure:"ws"`
	RateLimit RateLimitCfg `mapstructure:"rate_limit"`
	// Store selects the repository backend: "mongo" or "memory" (dev).
	Store string `mapstructure:"store"`

	// Derived
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
	WSWriteWait  time.Duration
	RateWindow   time.Duration
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.MetricsPort == "" {
		cfg.Server.MetricsPort = "9100"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "inspirecraft"
	}
	if cfg.WS.PingIntervalSeconds == 0 {
		cfg.WS.PingIntervalSeconds = 30
	}
	if cfg.WS.WriteTimeoutSeconds == 0 {
		cfg.WS.WriteTimeoutSeconds = 10
	}
	if cfg.WS.MaxMessageSize == 0 {
		cfg.WS.MaxMessageSize = 64 * 1024
	}
	if cfg.WS.SendBuffer == 0 {
		cfg.WS.SendBuffer = 256
	}
	if cfg.RateLimit.Limit == 0 {
		cfg.RateLimit.Limit = 60
	}
	if cfg.RateLimit.WindowSeconds == 0 {
		cfg.RateLimit.WindowSeconds = 60
	}
	if cfg.Store == "" {
		cfg.Store = "mongo"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "ic"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "inspirecraft.events"
	}

	cfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	cfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	cfg.PingInterval = time.Duration(cfg.WS.PingIntervalSeconds) * time.Second
	cfg.WSWriteWait = time.Duration(cfg.WS.WriteTimeoutSeconds) * time.Second
	cfg.RateWindow = time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
}
