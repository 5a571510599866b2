package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	Secret     string        `mapstructure:"secret"`
	DBPath     string        `mapstructure:"db_path"`
	RedisAddr  string        `mapstructure:"redis_addr"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	ChatBurst  int           `mapstructure:"chat_burst"`
	ChatWindow time.Duration `mapstructure:"chat_window"`
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

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "./data/syncd.db")
	v.SetDefault("redis_addr", "")
	v.SetDefault("cache_ttl", "5m")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("chat_burst", 10)
	v.SetDefault("chat_window", "10s")

	v.SetEnvPrefix("SYNCD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("secret is required (set SYNCD_SECRET or config key 'secret')")
	}
	return &cfg, nil
}
