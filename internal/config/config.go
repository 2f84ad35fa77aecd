package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dkeye/Parley/internal/store/mongo"
	"github.com/dkeye/Parley/internal/store/redis"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type CallRate struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`
	JWTSecret  string        `mapstructure:"jwt_secret"`

	// Storage is "memory" or "mongo".
	Storage        string        `mapstructure:"storage"`
	Mongo          mongo.Config  `mapstructure:"mongo"`
	Redis          redis.Config  `mapstructure:"redis"`
	DeliveryPolicy string        `mapstructure:"delivery_policy"`
	StatusQueue    int           `mapstructure:"status_queue"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`
	BacklogLimit   int           `mapstructure:"backlog_limit"`

	RingTimeout  time.Duration `mapstructure:"ring_timeout"`
	CallRate     CallRate      `mapstructure:"call_rate"`
	Backpressure string        `mapstructure:"backpressure"`
	ICEServers   []ICEServer   `mapstructure:"ice_servers"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Storage: %s\n", cfg.Mode, cfg.Port, cfg.Storage)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "")
	v.SetDefault("jwt_secret", "")

	v.SetDefault("storage", "memory")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "parley")
	v.SetDefault("mongo.max_pool_size", 50)
	v.SetDefault("mongo.max_retry", 3)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.last_seen_ttl", "720h")
	v.SetDefault("delivery_policy", "all")
	v.SetDefault("status_queue", 1024)
	v.SetDefault("persist_timeout", "5s")
	v.SetDefault("backlog_limit", 500)

	v.SetDefault("ring_timeout", "30s")
	v.SetDefault("call_rate.limit", 5)
	v.SetDefault("call_rate.interval", "10s")
	v.SetDefault("backpressure", "kick")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}

func (c *Config) Validate() error {
	switch c.Storage {
	case "memory", "mongo":
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}
	switch c.DeliveryPolicy {
	case "first", "all":
	default:
		return fmt.Errorf("unknown delivery_policy %q", c.DeliveryPolicy)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.Secret == "" {
		c.Secret = c.JWTSecret
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive")
	}
	return nil
}
