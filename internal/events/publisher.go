package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"comms-orchestrator/internal/comms"

	"github.com/IBM/sarama"
)

const TopicDelivery = "comms.delivery"

// DeliveryEvent is emitted once per processed request with its terminal
// outcome. Consumers key on CommunicationID.
type DeliveryEvent struct {
	CommunicationID string              `json:"communication_id"`
	PlanID          string              `json:"plan_id"`
	ClientID        string              `json:"client_id"`
	MessageType     comms.MessageType   `json:"message_type"`
	Urgency         comms.Urgency       `json:"urgency"`
	Status          comms.Status        `json:"status"`
	Channel         comms.Channel       `json:"channel"`
	Attempts        int                 `json:"attempts"`
	FallbackUsed    bool                `json:"fallback_used"`
	Error           string              `json:"error,omitempty"`
	ErrorCategory   comms.ErrorCategory `json:"error_category,omitempty"`
	OccurredAt      time.Time           `json:"occurred_at"`
}

// NewDeliveryEvent builds the event for req's terminal result.
func NewDeliveryEvent(req comms.Request, res comms.Result, at time.Time) DeliveryEvent {
	return DeliveryEvent{
		CommunicationID: res.CommunicationID,
		PlanID:          req.PlanID,
		ClientID:        req.ClientID,
		MessageType:     req.MessageType,
		Urgency:         req.Urgency,
		Status:          res.Status,
		Channel:         res.Channel,
		Attempts:        res.Attempts,
		FallbackUsed:    res.Metadata[comms.MetaFallbackUsed] == "true",
		Error:           res.Error,
		ErrorCategory:   res.ErrorCategory,
		OccurredAt:      at.UTC(),
	}
}

type Publisher interface {
	PublishDelivery(ctx context.Context, e DeliveryEvent) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishDelivery(ctx context.Context, e DeliveryEvent) error { return nil }

// KafkaPublisher writes delivery events as JSON, partitioned by
// communication id.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *slog.Logger
}

func NewKafkaPublisher(brokers []string, log *slog.Logger) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: create producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, TopicDelivery, log), nil
}

func NewKafkaPublisherWithProducer(p sarama.SyncProducer, topic string, log *slog.Logger) *KafkaPublisher {
	if log == nil {
		log = slog.Default()
	}
	if topic == "" {
		topic = TopicDelivery
	}
	return &KafkaPublisher{producer: p, topic: topic, log: log.With("component", "events")}
}

func (p *KafkaPublisher) PublishDelivery(ctx context.Context, e DeliveryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(e.CommunicationID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("events: send: %w", err)
	}
	p.log.Debug("delivery event published", "communication_id", e.CommunicationID, "partition", partition, "offset", offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
