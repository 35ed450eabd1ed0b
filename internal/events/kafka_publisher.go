package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/yungbote/trackflow-backend/internal/observability"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  Writer
	log     *logger.Logger
	metrics *observability.Metrics
}

func NewKafkaPublisher(log *logger.Logger, brokers []string, topic string, metrics *observability.Metrics) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewKafkaPublisherWithWriter(log, w, metrics), nil
}

func NewKafkaPublisherWithWriter(log *logger.Logger, w Writer, metrics *observability.Metrics) *KafkaPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaPublisher{writer: w, log: log.With("publisher", "kafka"), metrics: metrics}
}

// Publish keys messages by entity id so the changes of one batch or assembly stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.EntityID.String()),
		Value: raw,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
		Time: ev.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.IncEventPublished("kafka", string(ev.Type), "error")
		p.log.Warn("kafka publish failed", "event_type", ev.Type, "entity_id", ev.EntityID, "error", err)
		return fmt.Errorf("kafka publish %s: %w", ev.Type, err)
	}
	p.metrics.IncEventPublished("kafka", string(ev.Type), "ok")
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
