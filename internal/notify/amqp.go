package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"leadbridge/internal/leads"
)

const (
	routingKeyLeadFinished = "lead.call.finished"

	publishTimeout = 5 * time.Second
)

// AMQPPublisher emits end-of-call snapshots on a topic exchange so follow-up
// tooling (CRM sync, dialers, dashboards) can consume them without coupling
// to this service.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
	log      *slog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQPPublisher declares the exchange and holds one publishing channel.
func NewAMQPPublisher(url, exchange string, log *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare exchange %q: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, exchange: exchange, log: log, ch: ch}, nil
}

// LeadFinished implements leads.Notifier.
func (p *AMQPPublisher) LeadFinished(ctx context.Context, snap leads.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("notify: marshal snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKeyLeadFinished, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: snap.LeadID,
		Timestamp:     snap.FinishedAt,
		Type:          routingKeyLeadFinished,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("notify: publish %s: %w", routingKeyLeadFinished, err)
	}
	p.log.InfoContext(ctx, "snapshot published",
		"lead_id", snap.LeadID, "outcome", snap.Outcome, "routing_key", routingKeyLeadFinished)
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}
