package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"go-portal-realtime/internal/infrastructure/hub"
	"go-portal-realtime/internal/infrastructure/logger"
)

const DefaultTopic = "portal.updates"

// partitionKey pins every update to one partition. Kafka only orders within a
// partition, and clients must see broadcasts in submission order.
const partitionKey = "portal-updates"

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	Version  string // Kafka version (e.g., "2.8.0")
}

// Kafka relays update events through a Kafka topic. Every instance joins
// its own consumer group so each one receives the full stream.
type Kafka struct {
	client   sarama.Client
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	topic    string
	local    hub.Broadcaster
	logger   logger.Logger
	backoff  time.Duration
}

var _ hub.Broadcaster = (*Kafka)(nil)

func NewKafka(cfg KafkaConfig, local hub.Broadcaster, log logger.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers cannot be empty")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "portal-realtime"
	}
	if cfg.Version == "" {
		cfg.Version = "2.8.0"
	}

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid kafka version: %w", err)
	}

	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = version
	kafkaConfig.ClientID = cfg.ClientID
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	kafkaConfig.Consumer.Return.Errors = true
	kafkaConfig.Net.DialTimeout = 10 * time.Second

	client, err := sarama.NewClient(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	// Live notifications only: a fresh group per process starts at the
	// newest offset and never competes with other instances for partitions.
	// Groups left behind by restarts expire with the broker's
	// offsets.retention.minutes.
	group, err := sarama.NewConsumerGroupFromClient(cfg.ClientID+"-"+uuid.NewString(), client)
	if err != nil {
		_ = producer.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	return &Kafka{
		client:   client,
		producer: producer,
		group:    group,
		topic:    cfg.Topic,
		local:    local,
		logger:   log.WithField("component", "relay"),
		backoff:  time.Second,
	}, nil
}

// Broadcast publishes event to the relay topic.
func (k *Kafka) Broadcast(ctx context.Context, event hub.UpdateEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(partitionKey),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("failed to publish update: %w", err)
	}
	return nil
}

// Run consumes the relay topic and forwards events to the local hub until
// ctx is cancelled.
func (k *Kafka) Run(ctx context.Context) error {
	k.logger.Infof("Relaying updates on Kafka topic %s", k.topic)
	handler := &consumerGroupHandler{local: k.local, logger: k.logger}

	go func() {
		for err := range k.group.Errors() {
			k.logger.Errorf("Kafka consumer error: %v", err)
		}
	}()

	for {
		err := k.group.Consume(ctx, []string{k.topic}, handler)
		if ctx.Err() != nil || errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return nil
		}
		if err == nil {
			// rebalance
			continue
		}

		k.logger.Errorf("Kafka consumer error: %v", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(k.backoff):
		}
	}
}

// Close releases the consumer group, producer and client.
func (k *Kafka) Close() error {
	var errs []error
	if err := k.group.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close consumer: %w", err))
	}
	if err := k.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close producer: %w", err))
	}
	if err := k.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
		errs = append(errs, fmt.Errorf("close client: %w", err))
	}
	return errors.Join(errs...)
}

type consumerGroupHandler struct {
	local  hub.Broadcaster
	logger logger.Logger
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			forward(session.Context(), h.local, h.logger, msg.Value)
			session.MarkMessage(msg, "")
		}
	}
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
