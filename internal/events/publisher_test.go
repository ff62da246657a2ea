package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"comms-orchestrator/internal/comms"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestNewDeliveryEvent(t *testing.T) {
	req := comms.Request{PlanID: "p1", ClientID: "c1", MessageType: comms.MessageReminder, Urgency: comms.UrgencyLow}
	res := comms.Result{CommunicationID: "id1", Status: comms.StatusSent, Channel: comms.ChannelSMS, Attempts: 2}.
		WithMeta(comms.MetaFallbackUsed, "true")

	e := NewDeliveryEvent(req, res, time.Unix(1700000000, 0))
	if !e.FallbackUsed || e.Channel != comms.ChannelSMS || e.Attempts != 2 || e.ClientID != "c1" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp")
	}
}

func TestKafkaPublisher_SendsJSON(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var e DeliveryEvent
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if e.CommunicationID != "id1" || e.Status != comms.StatusFailed {
			return fmt.Errorf("unexpected payload %s", val)
		}
		return nil
	})

	p := NewKafkaPublisherWithProducer(sp, "", nil)
	err := p.PublishDelivery(context.Background(), DeliveryEvent{CommunicationID: "id1", Status: comms.StatusFailed})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected close err: %v", err)
	}
}

func TestKafkaPublisher_ReturnsSendError(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(sp, TopicDelivery, nil)
	err := p.PublishDelivery(context.Background(), DeliveryEvent{CommunicationID: "id1"})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
	_ = p.Close()
}

func TestNopPublisher(t *testing.T) {
	if err := (NopPublisher{}).PublishDelivery(context.Background(), DeliveryEvent{}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}
