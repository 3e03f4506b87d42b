package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher publishes events as NATS messages with metadata headers.
type NATSPublisher struct {
	conn   *nats.Conn
	source string
	logger *zap.Logger
}

// NewNATSPublisher dials url and returns a publisher.
func NewNATSPublisher(url, source string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url, nats.Name(source), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: conn, source: source, logger: logger}, nil
}

// Publish sends payload on the subject named by topic.
func (p *NATSPublisher) Publish(ctx context.Context, topic, eventType string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	msg := nats.NewMsg(topic)
	msg.Data = data
	msg.Header.Set("Nats-Msg-Id", uuid.NewString())
	msg.Header.Set(MetadataEventType, eventType)
	msg.Header.Set(MetadataSource, p.source)
	msg.Header.Set(MetadataTimestamp, time.Now().UTC().Format(time.RFC3339))
	if err := p.conn.PublishMsg(msg); err != nil {
		p.logger.Sugar().Errorw("publish nats event failed", "subject", topic, "event_type", eventType, "error", err)
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
