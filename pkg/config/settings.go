package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Settings struct {
	Database      DbSettings                   `mapstructure:"database"`
	TaskStore     DbSettings                   `mapstructure:"task_store"`
	Broker        BrokerSettings               `mapstructure:"broker"`
	Cache         CacheSettings                `mapstructure:"cache"`
	Payouts       PayoutSettings               `mapstructure:"payouts"`
	Connectors    map[string]ConnectorSettings `mapstructure:"connectors" validate:"dive"`
	PollInterval  time.Duration                `mapstructure:"poll_interval" validate:"gt=0"`
	BatchSize     int                          `mapstructure:"batch_size" validate:"gt=0"`
	MaxRetries    int                          `mapstructure:"max_retries" validate:"gte=0"`
	Observability Observability                `mapstructure:"observability"` // Observability settings
}

func (c *Settings) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func setDefaults() {
	viper.SetDefault("poll_interval", 5*time.Second)
	viper.SetDefault("batch_size", 10)
	viper.SetDefault("max_retries", 3)
	viper.SetDefault("database.type", "postgres")
	viper.SetDefault("task_store.type", "postgres")
	viper.SetDefault("broker.type", "local")
	viper.SetDefault("broker.exchange", "payouts")
	viper.SetDefault("broker.pool_size", 5)
	viper.SetDefault("cache.type", "memory")
	viper.SetDefault("cache.kv_ttl", 24*time.Hour)
	viper.SetDefault("payouts.default_eligibility", true)
	viper.SetDefault("payouts.onboarding_delay", 60*time.Second)
	viper.SetDefault("payouts.link_expiry", 900*time.Second)
	viper.SetDefault("payouts.max_auto_retries", 1)
	viper.SetDefault("payouts.temp_locker_ttl", 15*time.Minute)
}

func LoadFromFile(filePath string) (*Settings, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	env := getEnvWithDefaultLookup("ENVIRONMENT", "development")

	cfg := &Settings{}
	setDefaults()
	viper.SetConfigType("yaml")
	viper.SetConfigName("payouts")
	viper.AddConfigPath(filePath)
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("No config file found or read error: %v (will rely on env)", err)
	}

	if err := mergeConfig(filePath, "payouts."+env); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("merging %s config: %w", env, err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Settings) LoadFromEnv() error {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("PAYOUTS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // env vars like PAYOUTS_DATABASE_TYPE

	for _, key := range []string{
		"database.type",
		"database.dsn",
		"database.uri",
		"task_store.type",
		"task_store.dsn",
		"task_store.uri",
		"task_store.db_name",
		"task_store.collection",
		"broker.type",
		"broker.url",
		"broker.exchange",
		"broker.project_id",
		"broker.pool_size",
		"cache.type",
		"cache.addr",
		"cache.password",
		"cache.db",
		"cache.kv_ttl",
		"payouts.default_eligibility",
		"payouts.onboarding_delay",
		"payouts.base_url",
		"payouts.link_expiry",
		"payouts.max_auto_retries",
		"payouts.temp_locker_ttl",
		"payouts.eligible_connectors",
		"poll_interval",
		"batch_size",
		"max_retries",
		"observability.service_name",
		"observability.tracing_url",
	} {
		if err := viper.BindEnv(key); err != nil {
			return err
		}
	}

	return viper.Unmarshal(c)
}

func mergeConfig(path string, name string) error {
	viper.SetConfigName(name)
	viper.AddConfigPath(path)
	return viper.MergeInConfig()
}

func getEnvWithDefaultLookup(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
