package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	AccountRegistered   = "account_registered"
	AccountLoggedIn     = "account_logged_in"
	AccountBanned       = "account_banned"
	AccountUnbanned     = "account_unbanned"
	AccountDeleted      = "account_deleted"
	RoleChanged         = "role_changed"
	KeyGenerated        = "key_generated"
	KeyRedeemed         = "key_redeemed"
	SubscriptionGranted = "subscription_granted"
	SubscriptionRevoked = "subscription_revoked"
)

type Event struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	UID   uint           `json:"uid"`
	Actor string         `json:"actor,omitempty"`
	At    time.Time      `json:"at"`
	Data  map[string]any `json:"data,omitempty"`
}

func New(typ string, uid uint, actor string, at time.Time, data map[string]any) Event {
	return Event{ID: uuid.NewString(), Type: typ, UID: uid, Actor: actor, At: at.UTC(), Data: data}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}}
}

// Publish writes e keyed by uid so events of one account stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(e.UID), 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error { return nil }
