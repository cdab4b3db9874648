package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/medsupply/medsupply-backend/pkg/config"
	"github.com/medsupply/medsupply-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrUnavailable is returned while the broker connection is down
var ErrUnavailable = errors.New("rabbitmq connection unavailable")

// RabbitMQ owns the broker connection. It publishes on whatever channel is
// current, so publishers keep working after Watch re-establishes the connection.
type RabbitMQ struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	config    *config.RabbitMQConfig
	logger    *logger.Logger
	exchanges []string
	mu        sync.RWMutex
	closed    bool
}

// New dials the broker
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	rmq := &RabbitMQ{
		config: cfg,
		logger: log.WithComponent("rabbitmq"),
	}

	if err := rmq.connect(); err != nil {
		return nil, err
	}

	return rmq, nil
}

// connect dials and redeclares known exchanges. Callers hold mu or own r exclusively.
func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	for _, name := range r.exchanges {
		if err := declareTopic(ch, name); err != nil {
			conn.Close()
			return fmt.Errorf("failed to redeclare exchange %s: %w", name, err)
		}
	}

	r.conn, r.channel = conn, ch
	r.logger.Info().Int("exchanges", len(r.exchanges)).Msg("connected to RabbitMQ")
	return nil
}

// PublishWithContext publishes on the current channel
func (r *RabbitMQ) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	r.mu.RLock()
	ch := r.channel
	r.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrUnavailable
	}
	return ch.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

// DeclareExchange declares a durable topic exchange and remembers it for reconnects
func (r *RabbitMQ) DeclareExchange(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel == nil {
		return ErrUnavailable
	}
	if err := declareTopic(r.channel, name); err != nil {
		return err
	}
	for _, known := range r.exchanges {
		if known == name {
			return nil
		}
	}
	r.exchanges = append(r.exchanges, name)
	return nil
}

func declareTopic(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
}

// Watch reconnects whenever the broker drops the connection, until ctx ends
// or Close is called.
func (r *RabbitMQ) Watch(ctx context.Context) {
	go func() {
		for {
			r.mu.RLock()
			conn := r.conn
			r.mu.RUnlock()
			if conn == nil {
				return
			}

			lost := conn.NotifyClose(make(chan *amqp.Error, 1))
			select {
			case <-ctx.Done():
				return
			case amqpErr, ok := <-lost:
				if !ok && amqpErr == nil && r.isClosed() {
					return
				}
				r.logger.Warn().Interface("reason", amqpErr).Msg("RabbitMQ connection lost")
			}

			if err := r.Reconnect(ctx); err != nil {
				r.logger.Error().Err(err).Msg("giving up on RabbitMQ, events will be dropped")
				return
			}
		}
	}()
}

// Reconnect re-dials with a fixed delay between attempts
func (r *RabbitMQ) Reconnect(ctx context.Context) error {
	for i := 0; i < r.config.MaxRetries; i++ {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return fmt.Errorf("connection is permanently closed")
		}
		err := r.connect()
		r.mu.Unlock()
		if err == nil {
			return nil
		}

		r.logger.Warn().Err(err).Int("attempt", i+1).Msg("reconnection attempt failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.ReconnectDelay):
		}
	}

	return fmt.Errorf("failed to reconnect after %d attempts", r.config.MaxRetries)
}

func (r *RabbitMQ) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Close closes the channel and connection for good
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close channel")
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}

	r.logger.Info().Msg("RabbitMQ connection closed")
	return nil
}

// Health reports the connection state
func (r *RabbitMQ) Health() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := map[string]string{
		"status":    "up",
		"exchanges": fmt.Sprint(len(r.exchanges)),
	}

	if r.conn == nil || r.conn.IsClosed() {
		status["status"] = "down"
		status["error"] = "connection closed"
	}

	return status
}
