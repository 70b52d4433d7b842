package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const EventSyncCompleted = "sync.completed"

type Config struct {
	Brokers []string
	Topic   string
}

// ParseConfig parses a comma-separated broker string
func ParseConfig(brokers string, topic string) Config {
	var brokerList []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokerList = append(brokerList, b)
		}
	}
	return Config{
		Brokers: brokerList,
		Topic:   topic,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes sync run events.
type Producer struct {
	writer messageWriter
	topic  string
	logger ectologger.Logger
}

func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer: writer,
		topic:  cfg.Topic,
		logger: logger,
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// SyncEventMessage announces a finished import run to downstream consumers.
type SyncEventMessage struct {
	Type       string            `json:"type"`
	RunID      string            `json:"run_id"`
	Partner    string            `json:"partner"`
	EntityType string            `json:"entity_type"`
	Status     models.RunStatus  `json:"status"`
	Summary    models.RunSummary `json:"summary"`
	Error      string            `json:"error,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	TraceID    string            `json:"trace_id,omitempty"`
}

func (p *Producer) PublishSyncEvent(ctx context.Context, evt *SyncEventMessage) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishSyncEvent")
	defer span.End()

	if evt == nil {
		return fmt.Errorf("sync event is nil")
	}
	if evt.Type == "" {
		evt.Type = EventSyncCompleted
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.TraceID = tracing.GetTraceID(ctx)

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("run_id", evt.RunID),
		attribute.String("partner", evt.Partner),
	)

	data, err := json.Marshal(evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	// keyed by partner so one partner's runs stay ordered
	headers := []kafka.Header{
		{Key: "type", Value: []byte(evt.Type)},
		{Key: "partner", Value: []byte(evt.Partner)},
		{Key: "run_id", Value: []byte(evt.RunID)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(evt.Partner),
		Value:   data,
		Headers: headers,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		metrics.RecordKafkaPublish(p.topic, "error")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish sync event to Kafka topic %s", p.topic)
		return err
	}

	span.SetStatus(codes.Ok, "message published")
	metrics.RecordKafkaPublish(p.topic, "success")
	p.logger.WithContext(ctx).Debugf("Published sync event: run=%s partner=%s status=%s", evt.RunID, evt.Partner, evt.Status)
	return nil
}
