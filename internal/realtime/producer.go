package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"parktayo/pkg/logger"
)

// Publisher is the real-time bus contract. Publishing is best-effort from
// the caller's point of view: booking transitions commit before events go
// out, and a publish failure never rolls a transition back.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
	HealthCheck(ctx context.Context) error
}

// ProducerConfig contains configuration for the Kafka event producer.
type ProducerConfig struct {
	Brokers          []string
	UserTopic        string
	LandlordTopic    string
	RetryMax         int
	TimeoutMs        int
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
}

// DefaultProducerConfig returns a default producer configuration.
func DefaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		Brokers:          []string{"localhost:9092"},
		UserTopic:        "parktayo.user.events",
		LandlordTopic:    "parktayo.landlord.events",
		RetryMax:         3,
		TimeoutMs:        10000,
		RequiredAcks:     sarama.WaitForAll,
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
	}
}

// KafkaPublisher publishes booking events to Kafka.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	config   *ProducerConfig
	log      *logger.Logger
}

// NewKafkaPublisher creates a Kafka publisher with an idempotent sync
// producer and hash partitioning on the recipient id.
func NewKafkaPublisher(config *ProducerConfig) (Publisher, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = config.RequiredAcks
	saramaConfig.Producer.Compression = config.CompressionType
	saramaConfig.Producer.Retry.Max = config.RetryMax
	saramaConfig.Producer.Timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	saramaConfig.Producer.Idempotent = config.IdempotentWrites

	if config.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Hash partitioner keeps per-recipient ordering.
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaPublisher{
		producer: producer,
		config:   config,
		log:      logger.GetDefault(),
	}, nil
}

func (p *KafkaPublisher) topicFor(event *Event) string {
	if event.Audience == AudienceLandlord {
		return p.config.LandlordTopic
	}
	return p.config.UserTopic
}

func (p *KafkaPublisher) Publish(ctx context.Context, event *Event) error {
	messageBytes, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     p.topicFor(event),
		Key:       sarama.StringEncoder(event.PartitionKey()),
		Value:     sarama.ByteEncoder(messageBytes),
		Timestamp: event.CreatedAt,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send event to Kafka: %w", err)
	}

	p.log.Debug("event published",
		"type", event.Type,
		"topic", message.Topic,
		"partition", partition,
		"offset", offset,
		"recipient_id", event.RecipientID,
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func (p *KafkaPublisher) HealthCheck(ctx context.Context) error {
	if p.producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}
	return nil
}

// NopPublisher drops every event. Used when Kafka is not configured and in
// tests that don't assert on events.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event *Event) error { return nil }
func (NopPublisher) Close() error                                    { return nil }
func (NopPublisher) HealthCheck(ctx context.Context) error           { return nil }

// CapturingPublisher records events in memory for test assertions.
type CapturingPublisher struct {
	Events []*Event
}

func (c *CapturingPublisher) Publish(ctx context.Context, event *Event) error {
	c.Events = append(c.Events, event)
	return nil
}

func (c *CapturingPublisher) Close() error                          { return nil }
func (c *CapturingPublisher) HealthCheck(ctx context.Context) error { return nil }

// Types records the event types in publish order.
func (c *CapturingPublisher) Types() []EventType {
	types := make([]EventType, 0, len(c.Events))
	for _, e := range c.Events {
		types = append(types, e.Type)
	}
	return types
}
