package producer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/spf13/viper"
	"github.com/streadway/amqp"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/rabbitmq"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/customer"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/event"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/order"
)

const (
	startMaxRetries = 3
	contentType     = "application/x-protobuf"
)

// bus is the slice of the RabbitMQ client the producer uses; tests substitute
// an in-memory implementation.
type bus interface {
	DeclareQueue(cfg rabbitmq.DeclareQueueConfig) (amqp.Queue, error)
	Publish(exchange, routingKey, contentType string, body []byte) error
	IsOpen() bool
	Close() error
}

// Producer owns the process's long-lived bus connection and publishes domain
// events decoupled from request latency.
type Producer struct {
	mu      sync.Mutex
	client  bus
	started bool

	connect func() (bus, error)
	queue   string

	// In-flight background publishes; Stop drains them to completion rather
	// than aborting, so no partial event is ever abandoned mid-send.
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

// NewProducer creates a producer; the connection is established by Start.
func NewProducer() *Producer {
	queue := viper.GetString("rabbitmq.queue")
	if queue == "" {
		queue = "order.events"
	}

	return &Producer{
		connect: func() (bus, error) { return rabbitmq.NewClient() },
		queue:   queue,
	}
}

// Start connects to the bus with bounded retry. It is idempotent: concurrent
// calls collapse into one connect attempt under the mutex. Exhausting the
// retries is a fatal configuration error for callers.
func (p *Producer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started && p.client != nil && p.client.IsOpen() {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < startMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if p.client != nil {
			if err := p.client.Close(); err != nil {
				slog.Warn("Failed to close stale bus connection", "error", err)
			}
			p.client = nil
		}

		client, err := p.connect()
		if err != nil {
			lastErr = err
			slog.Warn("Bus connect attempt failed", "attempt", attempt+1, "error", err)

			continue
		}

		if _, err := client.DeclareQueue(rabbitmq.DeclareQueueConfig{
			Name:    p.queue,
			Durable: true,
		}); err != nil {
			lastErr = err
			if closeErr := client.Close(); closeErr != nil {
				slog.Warn("Failed to close bus connection after declare error", "error", closeErr)
			}

			continue
		}

		p.client = client
		p.started = true

		slog.Info("Event producer started", "queue", p.queue)

		return nil
	}

	return fmt.Errorf("failed to start event producer after %d attempts: %w", startMaxRetries, lastErr)
}

// Healthy reports whether the bus connection is currently open.
func (p *Producer) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.started && p.client != nil && p.client.IsOpen()
}

// PublishOrderCreated publishes an ORDER_CREATED event. With background set,
// the publish is fire-and-forget: it is tracked in the in-flight set and any
// send error is only logged. Without it the caller awaits the outcome.
func (p *Producer) PublishOrderCreated(
	ctx context.Context,
	orderID string,
	cust customer.Customer,
	items []order.Item,
	background bool,
) error {
	if !p.Healthy() {
		if err := p.Start(ctx); err != nil {
			return err
		}
	}

	evt := event.NewOrderCreated(orderID, cust, items)

	if !background {
		return p.send(evt)
	}

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()

		if err := p.send(evt); err != nil {
			slog.Error("Failed to publish order event",
				"order_id", evt.OrderID,
				"event_id", evt.EventID,
				"error", err,
			)
		}
	}()

	return nil
}

func (p *Producer) send(evt event.Event) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil {
		return fmt.Errorf("event producer is not started")
	}

	if err := client.Publish("", p.queue, contentType, evt.Marshal()); err != nil {
		return fmt.Errorf("failed to publish %s for order %s: %w", evt.Type, evt.OrderID, err)
	}

	slog.Info("Event published",
		"event_type", evt.Type.String(),
		"event_id", evt.EventID,
		"order_id", evt.OrderID,
	)

	return nil
}

// Stop blocks until all in-flight background publishes complete, then closes
// the connection exactly once. Safe to call even if Start never ran.
func (p *Producer) Stop() error {
	p.inflight.Wait()

	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		if p.client != nil {
			err = p.client.Close()
			p.client = nil
		}
		p.started = false
	})

	return err
}
