package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/repopulse/pulseflow/pkg/events"
)

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	control       message.Subscriber
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return NewWatermillEventBusWithControl(pub, sub, sub)
}

// NewWatermillEventBusWithControl takes a separate subscriber for the control
// topic. On Kafka the control subscriber carries a per-process consumer group
// so pause requests reach every worker, not just one group member.
func NewWatermillEventBusWithControl(pub message.Publisher, sub, control message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		control:       control,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// topicFor routes audit, usage, and control events to their dedicated
// topics; all other lifecycle and node events share the main topic.
func topicFor(eventType events.EventType) string {
	switch eventType {
	case events.ExecutionPauseRequestedEvent:
		return events.ControlTopic
	case events.ModelAttemptedEvent:
		return events.ModelAuditTopic
	case events.TokenUsageRecordedEvent:
		return events.TokenUsageTopic
	default:
		return events.Topic
	}
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(topicFor(event.GetType()), msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	for _, topic := range []string{events.Topic, events.ModelAuditTopic, events.TokenUsageTopic} {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, messages)
	}

	messages, err := eb.control.Subscribe(ctx, events.ControlTopic)
	if err != nil {
		return err
	}

	go eb.consume(ctx, messages)

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		var event any

		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		handler, exists := eb.subscriptions[eventType]
		if !exists {
			msg.Ack()

			continue
		}

		switch eventType {
		case events.ExecutionRequestedEvent:
			event = &events.ExecutionRequested{}
		case events.ExecutionStartedEvent:
			event = &events.ExecutionStarted{}
		case events.ExecutionCompletedEvent:
			event = &events.ExecutionCompleted{}
		case events.ExecutionFailedEvent:
			event = &events.ExecutionFailed{}
		case events.ExecutionPauseRequestedEvent:
			event = &events.ExecutionPauseRequested{}
		case events.ExecutionPausedEvent:
			event = &events.ExecutionPaused{}
		case events.ExecutionResumeRequestedEvent:
			event = &events.ExecutionResumeRequested{}
		case events.ExecutionResumedEvent:
			event = &events.ExecutionResumed{}
		case events.NodeCompletedEvent:
			event = &events.NodeCompleted{}
		case events.NodeFailedEvent:
			event = &events.NodeFailed{}
		case events.ModelAttemptedEvent:
			event = &events.ModelAttempted{}
		case events.TokenUsageRecordedEvent:
			event = &events.TokenUsageRecorded{}
		default:
			msg.Nack()

			continue
		}

		err := json.Unmarshal(msg.Payload, event)
		if err != nil {
			msg.Nack()

			continue
		}

		err = handler(ctx, event)
		if err != nil {
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	if eb.control != eb.subscriber {
		err = eb.control.Close()
		if err != nil {
			return err
		}
	}

	return eb.subscriber.Close()
}
