package config

// BrokerSettings holds configuration for connecting to a message broker.
type BrokerSettings struct {
	Type      string `mapstructure:"type" validate:"required,oneof=rabbitmq pubsub"`
	URL       string `mapstructure:"url"`
	Exchange  string `mapstructure:"exchange"`
	ProjectID string `mapstructure:"projectID"` // Optional for brokers like GCP Pub/Sub
	// Topic is the main ingestion topic (or exchange routing key for RabbitMQ).
	Topic string `mapstructure:"topic" validate:"required"`
	// DeadLetterSubscription is the subscription (or queue) the broker
	// dead-letters exhausted deliveries into.
	DeadLetterSubscription string `mapstructure:"dead_letter_subscription"`
	PoolSize               int    `mapstructure:"pool_size"`
}
