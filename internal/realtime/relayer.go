package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"parktayo/pkg/logger"
)

// Relayer consumes the event topics and hands each event to a delivery
// sink (websocket gateway, push service). Delivery is at-least-once; sinks
// must tolerate duplicates.
type Relayer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Sink receives relayed events.
type Sink interface {
	Deliver(ctx context.Context, event *Event) error
}

// LogSink logs every event. The default sink until a gateway is attached.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{log: logger.GetDefault()}
}

func (s *LogSink) Deliver(ctx context.Context, event *Event) error {
	s.log.Info("event relayed",
		"type", event.Type,
		"audience", event.Audience,
		"recipient_id", event.RecipientID,
		"booking_id", event.BookingID,
	)
	return nil
}

// RelayerConfig holds consumer-group settings.
type RelayerConfig struct {
	Brokers          []string
	GroupID          string
	Topics           []string
	SessionTimeoutMs int
	HeartbeatMs      int
	OffsetOldest     bool
}

// DefaultRelayerConfig returns a default relayer configuration.
func DefaultRelayerConfig() *RelayerConfig {
	return &RelayerConfig{
		Brokers:          []string{"localhost:9092"},
		GroupID:          "parktayo-event-relayers",
		Topics:           []string{"parktayo.user.events", "parktayo.landlord.events"},
		SessionTimeoutMs: 30000,
		HeartbeatMs:      3000,
		OffsetOldest:     false,
	}
}

type kafkaRelayer struct {
	consumerGroup sarama.ConsumerGroup
	config        *RelayerConfig
	sink          Sink
	log           *logger.Logger
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewKafkaRelayer creates the consumer-group relayer.
func NewKafkaRelayer(config *RelayerConfig, sink Sink) (Relayer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMs) * time.Millisecond
	saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatMs) * time.Millisecond
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second

	if config.OffsetOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	consumerGroup, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &kafkaRelayer{
		consumerGroup: consumerGroup,
		config:        config,
		sink:          sink,
		log:           logger.GetDefault(),
	}, nil
}

func (r *kafkaRelayer) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range r.consumerGroup.Errors() {
			r.log.Error("relayer consumer error", "error", err)
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		handler := &relayHandler{sink: r.sink, log: r.log}
		for {
			if err := r.consumerGroup.Consume(ctx, r.config.Topics, handler); err != nil {
				r.log.Error("relayer consume failed", "error", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.log.Info("event relayer started", "topics", r.config.Topics, "group", r.config.GroupID)
	return nil
}

func (r *kafkaRelayer) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	err := r.consumerGroup.Close()
	r.wg.Wait()
	return err
}

// relayHandler implements sarama.ConsumerGroupHandler.
type relayHandler struct {
	sink Sink
	log  *logger.Logger
}

func (h *relayHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *relayHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *relayHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		event, err := FromJSON(message.Value)
		if err != nil {
			h.log.Warn("dropping malformed event",
				"topic", message.Topic,
				"offset", message.Offset,
				"error", err,
			)
			session.MarkMessage(message, "")
			continue
		}

		if err := h.sink.Deliver(session.Context(), event); err != nil {
			// At-least-once: leave the offset unmarked so the message is
			// retried after rebalance.
			h.log.Error("event delivery failed", "type", event.Type, "error", err)
			continue
		}
		session.MarkMessage(message, "")
	}
	return nil
}
