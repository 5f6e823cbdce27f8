package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                 string        `mapstructure:"ENV"`
	Port                string        `mapstructure:"PORT"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	AdminKey            string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed         string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	ConsolidateInterval time.Duration `mapstructure:"CONSOLIDATE_INTERVAL"`
	ReconcileInterval   time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	ListenAction        string        `mapstructure:"LISTEN_ACTION"`
	FallbackIntent      string        `mapstructure:"FALLBACK_INTENT"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("CONSOLIDATE_INTERVAL", "10s")
	v.SetDefault("RECONCILE_INTERVAL", "10s")
	v.SetDefault("LISTEN_ACTION", "action_listen")
	v.SetDefault("FALLBACK_INTENT", "nlu_fallback")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
