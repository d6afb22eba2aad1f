package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	OrderConfirmed     = "order.confirmed"
	OrderStatusChanged = "order.status_changed"
	OrderRefunded      = "order.refunded"
)

type OrderEvent struct {
	Type     string `json:"type"`
	OrderID  string `json:"order_id"`
	TenantID string `json:"tenant_id"`
	Status   string `json:"status"`
	At       int64  `json:"at"`
}

// Publisher feeds the kitchen display's event stream. Publishing is
// best-effort: the state machine never depends on delivery.
type Publisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			WriteTimeout:           5 * time.Second,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev OrderEvent) error {
	if ev.At == 0 {
		ev.At = time.Now().Unix()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("events: write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
