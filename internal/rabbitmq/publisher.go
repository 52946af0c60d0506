package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"messaging-service/internal/observability"
	"messaging-service/internal/telemetry"
)

const (
	appID          = "messaging-service"
	publishTimeout = 5 * time.Second
)

// Publisher sends JSON events to the messaging exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher connects to the broker. An unreachable broker yields a
// publisher that drops events.
func NewPublisher(amqpURL, exchange string, log logrus.FieldLogger) Publisher {
	log = log.WithField("component", "rabbitmq")
	if amqpURL == "" {
		log.Warn("rabbitmq disabled: empty amqp url")
		return discardPublisher{log: log}
	}

	p := &amqpPublisher{url: amqpURL, exchange: exchange, log: log}
	if err := p.connect(); err != nil {
		log.WithError(err).Warn("rabbitmq disabled: dropping events")
		return discardPublisher{log: log}
	}
	log.WithField("exchange", exchange).Info("rabbitmq connected")
	return p
}

type amqpPublisher struct {
	url      string
	exchange string
	log      logrus.FieldLogger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func (p *amqpPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %q: %w", p.exchange, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// channel returns an open channel, redialling once if the broker dropped us.
func (p *amqpPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.log.Warn("rabbitmq channel closed, reconnecting")
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p.ch, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", routingKey, err)
	}

	ch, err := p.channel()
	if err != nil {
		observability.IncAMQPPublishError()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        appID,
		Type:         routingKey,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if requestID := telemetry.RequestIDFromContext(ctx); requestID != "" {
		msg.CorrelationId = requestID
	}

	if err := ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		observability.IncAMQPPublishError()
		p.log.WithError(err).WithField("routing_key", routingKey).Warn("rabbitmq publish failed")
		return err
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type discardPublisher struct {
	log logrus.FieldLogger
}

func (p discardPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.log.WithField("routing_key", routingKey).Debug("rabbitmq disabled, event dropped")
	return nil
}

func (discardPublisher) Close() error {
	return nil
}

// Enabled reports whether p talks to a broker.
func Enabled(p Publisher) bool {
	_, ok := p.(*amqpPublisher)
	return ok
}
