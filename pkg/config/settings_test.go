package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Server: ServerSettings{Port: 8080},
		Database: DbSettings{
			Type: "mongo",
			URI:  "mongodb://localhost:27017",
		},
		Broker: BrokerSettings{
			Type:      "pubsub",
			ProjectID: "test-project",
			Topic:     "events-ingestion",
		},
		CounterShards:  20,
		PublishTimeout: 10 * time.Second,
		StoreTimeout:   10 * time.Second,
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validSettings().Validate())
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{name: "missing port", mutate: func(s *Settings) { s.Server.Port = 0 }},
		{name: "port out of range", mutate: func(s *Settings) { s.Server.Port = 70000 }},
		{name: "unknown database type", mutate: func(s *Settings) { s.Database.Type = "dynamodb" }},
		{name: "unknown broker type", mutate: func(s *Settings) { s.Broker.Type = "kafka" }},
		{name: "missing topic", mutate: func(s *Settings) { s.Broker.Topic = "" }},
		{name: "zero counter shards", mutate: func(s *Settings) { s.CounterShards = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validSettings()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
database:
  type: mongo
  uri: mongodb://localhost:27017
  name: pipeline
broker:
  type: pubsub
  projectID: test-project
  topic: events-ingestion
  dead_letter_subscription: events-ingestion-dlq
debug:
  poison_event_type: chaos.fail
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadFromFile(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "mongo", cfg.Database.Type)
	assert.Equal(t, "pipeline", cfg.Database.Database)
	assert.Equal(t, "events-ingestion", cfg.Broker.Topic)
	assert.Equal(t, "events-ingestion-dlq", cfg.Broker.DeadLetterSubscription)
	assert.Equal(t, "chaos.fail", cfg.Debug.PoisonEventType)

	// Defaults fill in anything the file leaves out
	assert.Equal(t, 20, cfg.CounterShards)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 10*time.Second, cfg.StoreTimeout)
}
