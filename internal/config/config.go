package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	DatabaseURL string `mapstructure:"database_url"`

	MaxParticipants int `mapstructure:"max_participants"`

	ChatRateLimit    int           `mapstructure:"chat_rate_limit"`
	ChatRateWindow   time.Duration `mapstructure:"chat_rate_window"`
	ChatRetention    int           `mapstructure:"chat_retention"`
	ChatHistoryLimit int           `mapstructure:"chat_history_limit"`
}

func Load() (*Config, error) {
	// .env feeds credentials (database url, cookie secret) into the
	// environment before viper reads it; absence is fine.
	_ = godotenv.Load()

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
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("database_url", os.Getenv("CLASSMEET_DB_CONN"))
	v.SetDefault("max_participants", 64)
	v.SetDefault("chat_rate_limit", 5)
	v.SetDefault("chat_rate_window", "5s")
	v.SetDefault("chat_retention", 2000)
	v.SetDefault("chat_history_limit", 100)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}
