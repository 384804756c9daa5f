package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"auction_watcher/internal/domain"
)

const (
	EventArrival = "arrival"
	EventUrgent  = "urgent"
)

// RabbitMQ delivers listing notifications to a direct exchange, one routing
// key per event class.
type RabbitMQ struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	exchange    string
	routingKeys map[string]string
	logger      *slog.Logger

	mu sync.Mutex
}

type Config struct {
	URL               string
	Exchange          string
	RoutingKeyArrival string
	RoutingKeyUrgent  string
	QueueName         string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	for _, key := range []string{cfg.RoutingKeyArrival, cfg.RoutingKeyUrgent} {
		if err := ch.QueueBind(q.Name, key, cfg.Exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("bind queue to %s: %w", key, err)
		}
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key_arrival", cfg.RoutingKeyArrival,
		"routing_key_urgent", cfg.RoutingKeyUrgent,
	)

	return &RabbitMQ{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		routingKeys: map[string]string{
			EventArrival: cfg.RoutingKeyArrival,
			EventUrgent:  cfg.RoutingKeyUrgent,
		},
		logger: logger.With("component", "publisher"),
	}, nil
}

type ListingMessage struct {
	Event     string         `json:"event"` // "arrival" or "urgent"
	Listing   domain.Listing `json:"listing"`
	Timestamp time.Time      `json:"timestamp"`
}

func (r *RabbitMQ) NotifyArrival(ctx context.Context, listing *domain.Listing) error {
	return r.publish(ctx, EventArrival, listing)
}

func (r *RabbitMQ) NotifyUrgent(ctx context.Context, listing *domain.Listing) error {
	return r.publish(ctx, EventUrgent, listing)
}

func (r *RabbitMQ) publish(ctx context.Context, event string, listing *domain.Listing) error {
	msg := ListingMessage{
		Event:     event,
		Listing:   *listing,
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	r.mu.Lock()
	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKeys[event],
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         event,
			MessageId:    event + ":" + listing.ID,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish %s message: %w", event, err)
	}

	r.logger.Debug("published listing",
		"listing_id", listing.ID,
		"event", event,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
