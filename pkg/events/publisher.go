package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-records-api/pkg/config"
)

// Metadata keys set on every published message.
const (
	MetadataEventType = "event_type"
	MetadataSource    = "source"
	MetadataTimestamp = "timestamp"
)

// Publisher delivers JSON events to an external transport.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, payload interface{}) error
	Close() error
}

// WatermillPublisher adapts any watermill message.Publisher.
type WatermillPublisher struct {
	publisher message.Publisher
	source    string
	logger    *zap.Logger
}

// NewWatermillPublisher wraps a watermill publisher.
func NewWatermillPublisher(publisher message.Publisher, source string, logger *zap.Logger) *WatermillPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatermillPublisher{publisher: publisher, source: source, logger: logger}
}

// NewMemoryPublisher builds an in-process gochannel transport. The returned GoChannel can be subscribed to.
func NewMemoryPublisher(source string, logger *zap.Logger) (*WatermillPublisher, *gochannel.GoChannel) {
	channel := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, NewZapAdapter(logger))
	return NewWatermillPublisher(channel, source, logger), channel
}

// NewKafkaPublisher connects a watermill-kafka publisher to brokers.
func NewKafkaPublisher(brokers []string, source string, logger *zap.Logger) (*WatermillPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, NewZapAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return NewWatermillPublisher(publisher, source, logger), nil
}

// Publish marshals payload and hands it to the underlying transport.
func (p *WatermillPublisher) Publish(ctx context.Context, topic, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataEventType, eventType)
	msg.Metadata.Set(MetadataSource, p.source)
	msg.Metadata.Set(MetadataTimestamp, time.Now().UTC().Format(time.RFC3339))

	if err := p.publisher.Publish(topic, msg); err != nil {
		p.logger.Sugar().Errorw("publish event failed", "topic", topic, "event_type", eventType, "message_id", msg.UUID, "error", err)
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	p.logger.Sugar().Debugw("event published", "topic", topic, "event_type", eventType, "message_id", msg.UUID)
	return nil
}

// Close releases the transport.
func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}

// New selects a publisher implementation from configuration.
func New(cfg config.NotificationConfig, source string, logger *zap.Logger) (Publisher, error) {
	switch cfg.Driver {
	case config.NotifyDriverKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, source, logger)
	case config.NotifyDriverNATS:
		return NewNATSPublisher(cfg.NATSURL, source, logger)
	case "", config.NotifyDriverMemory:
		publisher, _ := NewMemoryPublisher(source, logger)
		return publisher, nil
	default:
		return nil, fmt.Errorf("unsupported notification driver %q", cfg.Driver)
	}
}
