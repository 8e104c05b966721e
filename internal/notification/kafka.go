package notification

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/segmentio/kafka-go"
)

type KafkaDispatcher struct {
	writer *kafka.Writer
}

func NewKafkaDispatcher(brokers ...string) *KafkaDispatcher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "order-events",
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaDispatcher{writer: w}
}

func (d *KafkaDispatcher) OrderTransitioned(ctx context.Context, order *domain.Order, previous, next domain.OrderStatus) {
	payload := map[string]interface{}{
		"order_id":             order.ID,
		"order_number":         order.OrderNumber,
		"owner_id":             order.OwnerID,
		"previous_status":      previous,
		"new_status":           next,
		"payment_method":       order.PaymentMethod,
		"payment_status":       order.PaymentStatus,
		"bank_transfer_status": order.BankTransferStatus,
		"total_amount":         order.TotalAmount,
		"occurred_at":          time.Now().UTC(),
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal transition event for order %v: %v", order.ID, err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(order.ID.String()), // order id for per-order ordering
		Value: payloadJSON,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("order.status_changed")},
		},
	}

	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("failed to publish transition event for order %v: %v", order.ID, err)
	}
}

func (d *KafkaDispatcher) Close() {
	if err := d.writer.Close(); err != nil {
		log.Printf("error closing kafka writer: %v", err)
	}
}
