// Package kafka provides the Kafka channel implementation for multi-worker
// deployments.
package kafka

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/repopulse/pulseflow/pkg/events"
)

func brokersFromEnv() ([]string, error) {
	raw := os.Getenv("PULSEFLOW_KAFKA_BROKERS")
	if raw == "" {
		return nil, errors.New("PULSEFLOW_KAFKA_BROKERS environment variable is not set")
	}

	brokers := strings.Split(raw, ",")
	for i, broker := range brokers {
		brokers[i] = strings.TrimSpace(broker)
	}

	return brokers, nil
}

// marshaler partitions every message by the event key metadata, so all
// events of one execution land on the same partition and arrive in order.
func marshaler() kafka.MarshalerUnmarshaler {
	return kafka.NewWithPartitioningMarshaler(func(topic string, msg *message.Message) (string, error) {
		return msg.Metadata.Get(events.EventMetadataKey), nil
	})
}

func newSubscriber(logger watermill.LoggerAdapter, brokers []string, consumerGroup string) (*kafka.Subscriber, error) {
	subscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	subscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	return kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           marshaler(),
			OverwriteSaramaConfig: subscriberConfig,
			ConsumerGroup:         consumerGroup,
			OTELEnabled:           true,
		},
		logger,
	)
}

// CreateChannel builds a Kafka-backed publisher and two subscribers. The
// shared subscriber joins the service-wide consumer group, so workers of one
// service split the partition assignment between them. The control subscriber
// carries a consumer group unique to this process: control events such as
// pause requests must reach every worker, because only the worker driving an
// execution can honor them.
func CreateChannel(logger watermill.LoggerAdapter, serviceName string) (*kafka.Publisher, *kafka.Subscriber, *kafka.Subscriber, error) {
	brokers, err := brokersFromEnv()
	if err != nil {
		return nil, nil, nil, err
	}

	subscriber, err := newSubscriber(logger, brokers, "pulseflow-"+serviceName)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create kafka subscriber: %w", err)
	}

	control, err := newSubscriber(logger, brokers, "pulseflow-"+serviceName+"-"+watermill.NewShortUUID())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create kafka control subscriber: %w", err)
	}

	// Execution lifecycle events must not be lost or duplicated on broker
	// failover, so the producer waits for all in-sync replicas.
	publisherConfig := sarama.NewConfig()
	publisherConfig.Producer.Return.Successes = true
	publisherConfig.Producer.RequiredAcks = sarama.WaitForAll
	publisherConfig.Producer.Idempotent = true
	publisherConfig.Net.MaxOpenRequests = 1

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             marshaler(),
			OverwriteSaramaConfig: publisherConfig,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return publisher, subscriber, control, nil
}
