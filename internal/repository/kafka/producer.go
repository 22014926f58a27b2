package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

type Config struct {
	Enable       bool          `mapstructure:"enable"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Partitions   int           `mapstructure:"partitions"`
	Replication  int           `mapstructure:"replication"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Message is one keyed protobuf payload.
type Message struct {
	Key   []byte
	Value proto.Message
}

type Producer struct {
	w     *kafka.Writer
	topic string
	log   *zap.Logger
}

func NewProducer(cfg Config) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			WriteTimeout:           cfg.WriteTimeout,
			RequiredAcks:           kafka.RequireOne,
		},
		topic: cfg.Topic,
		log:   zap.L().With(zap.String("component", "kafka.producer"), zap.String("topic", cfg.Topic)),
	}
}

func (p *Producer) WithLogger(l *zap.Logger) *Producer {
	if l == nil {
		return p
	}
	cp := *p
	cp.log = l.With(zap.String("component", "kafka.producer"), zap.String("topic", p.topic))
	return &cp
}

// PublishProto writes msgs in one batch. The current trace context travels in
// the headers of every message.
func (p *Producer) PublishProto(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tr := otel.Tracer("kafka.producer")
	ctx, span := tr.Start(ctx, "kafka.produce "+p.topic, trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingOperationPublish,
			attribute.Int("messaging.batch.message_count", len(msgs)),
		),
	)
	defer span.End()

	hdrs := mapCarrierHeaders{}
	otel.GetTextMapPropagator().Inject(ctx, hdrs)

	out := make([]kafka.Message, 0, len(msgs))
	size := 0
	for _, m := range msgs {
		value, err := proto.Marshal(m.Value)
		if err != nil {
			p.log.Error("proto marshal failed", zap.Error(err))
			span.RecordError(err)
			return err
		}
		size += len(value)
		out = append(out, kafka.Message{Key: m.Key, Value: value, Headers: hdrs.ToKafka()})
	}

	if err := p.w.WriteMessages(ctx, out...); err != nil {
		p.log.Error("kafka write failed", zap.Error(err))
		span.RecordError(err)
		return err
	}
	p.log.Debug("messages published",
		zap.Int("count", len(out)),
		zap.Int("bytes", size),
	)
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }
