package config

// BrokerSettings holds configuration for connecting to a message broker.
type BrokerSettings struct {
	Type      string `mapstructure:"type" validate:"required,oneof=rabbitmq gcp-pubsub local"`
	URL       string `mapstructure:"url" validate:"required_if=Type rabbitmq"`
	Exchange  string `mapstructure:"exchange"`
	ProjectID string `mapstructure:"project_id" validate:"required_if=Type gcp-pubsub"` // Optional for brokers like GCP Pub/Sub
	PoolSize  int    `mapstructure:"pool_size"`                                         // RabbitMQ channel pool
}
