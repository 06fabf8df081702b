package queue

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/nathanyu/mini-ledger/internal/domain"
	"github.com/nathanyu/mini-ledger/internal/telemetry"
)

// EventSubject carries every committed ledger event
const EventSubject = "ledger.events"

// NATSClient publishes ledger events over a NATS connection
type NATSClient struct {
	conn    *nats.Conn
	subject string
}

// NewNATSClient connects to url and publishes on EventSubject
func NewNATSClient(url, name string, logger *slog.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSClient{conn: conn, subject: EventSubject}, nil
}

// Publish sends one event. The message carries a unique Nats-Msg-Id and the
// caller's trace context in its headers.
func (c *NATSClient) Publish(ctx context.Context, event domain.Event) error {
	data, err := domain.SerializeEvent(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	msg := nats.NewMsg(c.subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	msg.Header.Set("Ledger-Event-Type", event.GetType())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))

	if err := c.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	telemetry.EventsPublishedTotal.WithLabelValues(event.GetType()).Inc()
	return nil
}

// Close drains and closes the NATS connection
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Drain()
		c.conn.Close()
	}
}
