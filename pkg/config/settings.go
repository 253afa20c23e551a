package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Settings struct {
	Server         ServerSettings `mapstructure:"server"`
	Database       DbSettings     `mapstructure:"database"`
	Broker         BrokerSettings `mapstructure:"broker"`
	CounterShards  int            `mapstructure:"counter_shards" validate:"required,min=1"`
	PublishTimeout time.Duration  `mapstructure:"publish_timeout"`
	StoreTimeout   time.Duration  `mapstructure:"store_timeout"`
	Observability  Observability  `mapstructure:"observability"`
	Debug          DebugSettings  `mapstructure:"debug"`
}

type ServerSettings struct {
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`
}

type DbSettings struct {
	Type       string `mapstructure:"type" validate:"required,oneof=mongo postgres spanner"`
	DSN        string `mapstructure:"dsn"`
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"name"`
	Collection string `mapstructure:"collection"`
}

// DebugSettings holds switches that must never be on in production.
// PoisonEventType makes the worker fail every event carrying that type, to
// drive messages into the broker's dead-letter path on purpose; empty
// disables the hook.
type DebugSettings struct {
	PoisonEventType string `mapstructure:"poison_event_type"`
}

func (c *Settings) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func LoadFromFile(filePath string) (*Settings, error) {

	env := getEnvWithDefaultLookup("ENVIRONMENT", "development")

	cfg := &Settings{}
	viper.SetConfigType("yaml")
	viper.SetConfigName("pipeline")
	viper.AddConfigPath(filePath) // path to config
	viper.AddConfigPath(".")      // current directory

	viper.SetDefault("counter_shards", 20)
	viper.SetDefault("publish_timeout", 10*time.Second)
	viper.SetDefault("store_timeout", 10*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("No config file found or read error: %v (will rely on env)", err)
	}

	err := mergeConfig(filePath, "pipeline."+env)
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error merging dev config: %s\n", err)
			os.Exit(1)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatalf("Failed to load from env: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg, nil
}

func (c *Settings) LoadFromEnv() error {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("PIPELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // env vars like PIPELINE_DATABASE_TYPE

	// Bind environment variables explicitly to ensure they map correctly
	viper.BindEnv("server.port")
	viper.BindEnv("database.type")
	viper.BindEnv("database.dsn")
	viper.BindEnv("database.uri")
	viper.BindEnv("database.name")
	viper.BindEnv("database.collection")
	viper.BindEnv("broker.type")
	viper.BindEnv("broker.url")
	viper.BindEnv("broker.projectID")
	viper.BindEnv("broker.topic")
	viper.BindEnv("broker.dead_letter_subscription")
	viper.BindEnv("counter_shards")
	viper.BindEnv("publish_timeout")
	viper.BindEnv("store_timeout")
	viper.BindEnv("observability.service_name")
	viper.BindEnv("observability.tracing_url")
	viper.BindEnv("debug.poison_event_type")

	if err := viper.Unmarshal(&c); err != nil {
		return err
	}
	return nil
}

func mergeConfig(path string, name string) error {
	viper.SetConfigName(name)
	viper.AddConfigPath(path)
	err := viper.MergeInConfig()
	if err != nil {
		return err
	}
	return nil
}

func getEnvWithDefaultLookup(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
