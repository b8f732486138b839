package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Name string `mapstructure:"name"`
		Port string `mapstructure:"port"`
		// Mode is "development" or "production"; it gates the URL safety
		// rules applied before every feed fetch.
		Mode string `mapstructure:"mode"`
	} `mapstructure:"app"`
	Database struct {
		Host         string `mapstructure:"host"`
		Port         string `mapstructure:"port"`
		User         string `mapstructure:"user"`
		Password     string `mapstructure:"password"`
		Name         string `mapstructure:"name"`
		Sslmode      string `mapstructure:"sslmode"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"DB"`
	} `mapstructure:"redis"`
	Sync struct {
		PollIntervalMinutes int `mapstructure:"poll_interval_minutes"`
		MaxFeedSizeMiB      int `mapstructure:"max_feed_size_mib"`
		FetchTimeoutMs      int `mapstructure:"fetch_timeout_ms"`
	} `mapstructure:"sync"`
	Encryption struct {
		// Key encrypts feed URLs at rest; 64 hex characters (32 bytes).
		Key string `mapstructure:"key"`
	} `mapstructure:"encryption"`
}

var AppConfig *Config

func InitConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")

	viper.SetDefault("app.name", "feedcal")
	viper.SetDefault("app.port", ":8080")
	viper.SetDefault("app.mode", "production")
	viper.SetDefault("sync.poll_interval_minutes", 15)
	viper.SetDefault("sync.max_feed_size_mib", 10)
	viper.SetDefault("sync.fetch_timeout_ms", 10000)

	viper.SetEnvPrefix("feedcal")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("Failed to read config file: %v", err)
		}
		log.Println("No config file found, using defaults and environment")
	}

	AppConfig = &Config{}
	if err := viper.Unmarshal(AppConfig); err != nil {
		log.Fatalf("Failed to unmarshal config: %v", err)
	}

	initDB()
	initRedis()
}
