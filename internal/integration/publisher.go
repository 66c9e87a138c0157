package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/pkg/events"
)

// EventPublisher forwards session lifecycle events to a message broker.
type EventPublisher interface {
	Publish(ctx context.Context, event events.TaskEvent) error
	Close() error
}

type rabbitMQPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     zerolog.Logger
}

func NewRabbitMQPublisher(url, exchange, routingKey string, logger zerolog.Logger) (EventPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info().
		Str("exchange", exchange).
		Str("routing_key", routingKey).
		Msg("Connected to RabbitMQ")

	return &rabbitMQPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

// RoutingKey is <prefix>.<kind>.<stage>, e.g. speech.analysis.completed.
func RoutingKey(prefix string, event events.TaskEvent) string {
	kind := event.Kind
	if kind == "" {
		kind = "unknown"
	}
	if prefix == "" {
		return kind + "." + string(event.Stage)
	}
	return prefix + "." + kind + "." + string(event.Stage)
}

// eventMessage is the broker payload. Audio stays out of it; the archive
// key travels through the history store instead.
type eventMessage struct {
	events.TaskEvent
	AudioBytes int `json:"audio_bytes,omitempty"`
}

func (p *rabbitMQPublisher) Publish(ctx context.Context, event events.TaskEvent) error {
	body, err := json.Marshal(eventMessage{TaskEvent: event, AudioBytes: len(event.Audio)})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := RoutingKey(p.routingKey, event)
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			Body:          body,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now(),
			CorrelationId: event.Session,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug().
		Str("routing_key", key).
		Str("session", event.Session).
		Msg("Session event published")

	return nil
}

func (p *rabbitMQPublisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Error().Err(err).Msg("Failed to close RabbitMQ channel")
		}
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	return nil
}
