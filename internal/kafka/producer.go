package kafka

import (
	"context"
	"encoding/json"
	"time"

	"ms-invites/internal/models"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer}
}

type message struct {
	Type        string    `json:"type"`
	UserID      string    `json:"user_id"`
	ProductType string    `json:"product_type,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	EventID     string    `json:"event_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func (p *Producer) publish(key string, msg message) error {
	msg.Timestamp = time.Now()
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

// PublishPurchaseFinalized streams a finalized credit purchase.
func (p *Producer) PublishPurchaseFinalized(record models.PurchaseRecord) error {
	return p.publish(record.UserID, message{
		Type:        "purchase.finalized",
		UserID:      record.UserID,
		ProductType: record.ProductType,
		Quantity:    record.Quantity,
		EventID:     record.EventID,
		SessionID:   record.CheckoutSessionID,
	})
}

// PublishEventPublished streams an event going live.
func (p *Producer) PublishEventPublished(event models.Event) error {
	return p.publish(event.UserID, message{
		Type:        "event.published",
		UserID:      event.UserID,
		ProductType: event.ProductType(),
		Quantity:    event.MaxGuests,
		EventID:     event.ID,
	})
}

// PublishUsageDebited streams a credit debit from the RSVP or send flows.
func (p *Producer) PublishUsageDebited(userID, productType string, n int) error {
	return p.publish(userID, message{
		Type:        "usage.debited",
		UserID:      userID,
		ProductType: productType,
		Quantity:    n,
	})
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
