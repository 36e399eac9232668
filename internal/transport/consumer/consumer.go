package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/interfaces/iprocessedeventrepo"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/rabbitmq"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/customer"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/event"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/order"
)

// service is the slice of the saga the consumer replays into.
type service interface {
	ReplayOrder(ctx context.Context, cust customer.Customer, items []order.ItemRequest) (order.CreatedSummary, error)
}

// Consumer re-applies ORDER_CREATED events from the bus into the saga,
// at-least-once. The processed-event ledger suppresses redeliveries; the
// bus's own per-partition-per-group delivery is what keeps two consumers in
// one group from racing on the same message in the first place.
type Consumer struct {
	client  *rabbitmq.Client
	service service
	ledger  iprocessedeventrepo.IProcessedEventRepository
	queue   amqp.Queue
	stop    chan struct{}
	done    chan struct{}
}

// NewConsumer creates a new Consumer.
func NewConsumer(
	client *rabbitmq.Client,
	service service,
	ledger iprocessedeventrepo.IProcessedEventRepository,
) *Consumer {
	queueName := viper.GetString("rabbitmq.queue")
	if queueName == "" {
		queueName = "order.events"
	}

	queue, err := client.DeclareQueue(rabbitmq.DeclareQueueConfig{
		Name:    queueName,
		Durable: true,
	})
	if err != nil {
		panic(err)
	}

	return &Consumer{
		client:  client,
		service: service,
		ledger:  ledger,
		queue:   queue,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run starts consuming messages from the bus.
func (c *Consumer) Run(ctx context.Context) error {
	consumerTag := viper.GetString("rabbitmq.consumer_tag")
	if consumerTag == "" {
		consumerTag = "order-replay"
	}

	msgs, err := c.client.Consume(rabbitmq.ConsumeConfig{
		Queue:    c.queue.Name,
		Consumer: consumerTag,
	})
	if err != nil {
		return err
	}

	slog.Info("Consumer started", "queue", c.queue.Name, "consumer_tag", consumerTag)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(viperLimit())

	go func() {
		for {
			select {
			case <-c.stop:
				slog.Info("Stopping consumer")
				close(c.done)

				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Info("Message channel closed")
					close(c.done)

					return
				}

				g.Go(func() error {
					return c.processMessage(gctx, msg)
				})
			}
		}
	}()

	<-c.done
	if err := g.Wait(); err != nil {
		slog.Error("Error processing messages", "error", err)
	}

	return nil
}

func viperLimit() int {
	limit := viper.GetInt("consumer.max_concurrency")
	if limit == 0 {
		limit = 50
	}

	return limit
}

// processMessage applies a single delivery: decode, dedupe, replay, record.
func (c *Consumer) processMessage(ctx context.Context, msg amqp.Delivery) error {
	ctx, span := otel.Tracer("consumer").Start(ctx, "Consumer.processMessage")
	defer span.End()

	evt, err := event.Unmarshal(msg.Body)
	if err != nil {
		slog.Error("Failed to decode event", "error", err)
		// Malformed payloads can never succeed; reject without requeueing.
		if err := msg.Nack(false, false); err != nil {
			slog.Error("Failed to nack message", "error", err)
		}

		return err
	}

	if evt.Type != event.TypeOrderCreated {
		slog.Warn("Skipping event of unhandled type", "event_type", evt.Type.String(), "event_id", evt.EventID)

		return msg.Ack(false)
	}

	processed, err := c.ledger.Exists(ctx, evt.EventID)
	if err != nil {
		slog.Error("Failed to check idempotency ledger", "event_id", evt.EventID, "error", err)
		if err := msg.Nack(false, true); err != nil {
			slog.Error("Failed to nack message", "error", err)
		}

		return err
	}

	if processed {
		slog.Info("Event already applied, discarding", "event_id", evt.EventID, "order_id", evt.OrderID)

		return msg.Ack(false)
	}

	if err := c.applyOrderCreated(ctx, evt); err != nil {
		slog.Error("Failed to apply event", "event_id", evt.EventID, "order_id", evt.OrderID, "error", err)
		// Requeue for retry.
		if err := msg.Nack(false, true); err != nil {
			slog.Error("Failed to nack message", "error", err)
		}

		return err
	}

	if err := c.ledger.MarkProcessed(ctx, evt.EventID); err != nil {
		// The effect is applied but not recorded: the at-least-once window
		// the ledger cannot fully close. Surface it and ack anyway.
		slog.Error("Failed to record processed event", "event_id", evt.EventID, "error", err)
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("Failed to ack message", "error", err)

		return err
	}

	slog.Info("Event applied", "event_id", evt.EventID, "order_id", evt.OrderID)

	return nil
}

func (c *Consumer) applyOrderCreated(ctx context.Context, evt event.Event) error {
	oc := evt.OrderCreated
	if oc == nil {
		slog.Warn("ORDER_CREATED event without payload", "event_id", evt.EventID)

		return nil
	}

	items := make([]order.ItemRequest, 0, len(oc.Items))
	for _, item := range oc.Items {
		items = append(items, order.ItemRequest{SKU: item.SKU, Quantity: item.Quantity})
	}

	_, err := c.service.ReplayOrder(ctx, oc.Customer, items)

	return err
}

// Shutdown gracefully shuts down the consumer.
func (c *Consumer) Shutdown() error {
	slog.Info("Shutting down consumer")
	close(c.stop)

	// Wait for processing to finish with timeout
	select {
	case <-c.done:
		slog.Info("Consumer stopped successfully")
	case <-time.After(10 * time.Second):
		slog.Warn("Consumer shutdown timeout")
	}

	return nil
}
